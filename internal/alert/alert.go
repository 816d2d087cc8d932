// Package alert renders and delivers incident notifications. Senders are
// adapters for one channel type each; the Dispatcher drains the store's
// notification outbox through them.
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/upmon/upmon/internal/monitor"
)

// Sender delivers one alert over its channel. cfg carries the per-channel
// configuration of the outbox row; builtin rows pass an empty map and the
// sender falls back to its process-wide defaults.
type Sender interface {
	Type() monitor.ChannelType
	Send(ctx context.Context, event monitor.AlertEvent, cfg map[string]string) error
}

// Registry routes outbox rows to the sender registered for their channel
// type. Later senders of the same type win.
type Registry struct {
	senders map[monitor.ChannelType]Sender
}

func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: make(map[monitor.ChannelType]Sender, len(senders))}
	for _, s := range senders {
		r.senders[s.Type()] = s
	}
	return r
}

func (r *Registry) Resolve(t monitor.ChannelType) (Sender, bool) {
	s, ok := r.senders[t]
	return s, ok
}

// FormatMessage renders the plain-text alert body shared by all senders.
func FormatMessage(ev monitor.AlertEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Site: %s\n", ev.TargetName)
	fmt.Fprintf(&b, "URL: %s\n", ev.URL)
	fmt.Fprintf(&b, "Status: %s", ev.Status)
	if ev.PreviousStatus != "" {
		fmt.Fprintf(&b, " (prev: %s)", ev.PreviousStatus)
	}
	if ev.IncidentID != 0 {
		fmt.Fprintf(&b, "\nIncident: %d", ev.IncidentID)
	}
	end := "?"
	if ev.EndedAt != nil {
		end = ev.EndedAt.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(&b, "\nWindow: %s → %s", ev.StartedAt.UTC().Format(time.RFC3339), end)
	if ev.Error != nil {
		fmt.Fprintf(&b, "\nError: %s", *ev.Error)
	}
	fmt.Fprintf(&b, "\nChecked at: %s", ev.CheckedAt.UTC().Format(time.RFC3339))
	return b.String()
}
