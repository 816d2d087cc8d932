package monitor

import "time"

// AlertEvent is the payload handed to notification senders when an incident
// opens or resolves. It is rebuilt from store state on redelivery, so it
// carries everything a sender needs.
type AlertEvent struct {
	Kind           TransitionKind `json:"kind"`
	TargetID       int64          `json:"target_id"`
	TargetName     string         `json:"target_name"`
	URL            string         `json:"url"`
	Status         Status         `json:"status"`
	PreviousStatus Status         `json:"previous_status"`
	IncidentID     int64          `json:"incident_id"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        *time.Time     `json:"ended_at"`
	Error          *ErrorKind     `json:"error"`
	CheckedAt      time.Time      `json:"checked_at"`
}

// PendingNotification is a claimed outbox row ready for delivery.
type PendingNotification struct {
	EventID       int64
	Channel       ChannelType
	ChannelConfig map[string]string
	Attempts      int
	Event         AlertEvent
}

// EventForTransition builds the alert payload for a transition on the given
// incident. errKind is the error of the check that opened the incident, when
// known.
func EventForTransition(kind TransitionKind, inc Incident, target Target, errKind *ErrorKind) AlertEvent {
	ev := AlertEvent{
		Kind:       kind,
		TargetID:   target.ID,
		TargetName: target.Name,
		URL:        target.URL,
		IncidentID: inc.ID,
		StartedAt:  inc.StartTS,
		EndedAt:    inc.EndTS,
		Error:      errKind,
	}
	switch kind {
	case TransitionResolved:
		ev.Status = StatusUp
		ev.PreviousStatus = StatusDown
		if inc.EndTS != nil {
			ev.CheckedAt = *inc.EndTS
		} else {
			ev.CheckedAt = inc.StartTS
		}
	default:
		ev.Status = StatusDown
		ev.PreviousStatus = StatusUp
		ev.CheckedAt = inc.StartTS
	}
	return ev
}
