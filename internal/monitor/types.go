// Package monitor defines the domain model shared by the store, the probe
// worker and the REST API: targets, check results, incidents, scheduler
// entries and notification records.
package monitor

import "time"

// Status is the outcome classification of a probe.
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// ErrorKind is the normalized, user-facing classification of a transport
// failure. Stable values; stored verbatim on check results.
type ErrorKind string

const (
	ErrKindTimeout   ErrorKind = "timeout"
	ErrKindConnect   ErrorKind = "connect_error"
	ErrKindDNS       ErrorKind = "dns_error"
	ErrKindTLS       ErrorKind = "tls_error"
	ErrKindTransport ErrorKind = "transport_error"
	ErrKindOther     ErrorKind = "other"
)

// Target is an endpoint under monitoring.
type Target struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	URL              string    `json:"url"`
	CheckIntervalSec int       `json:"check_interval_sec"`
	TimeoutMS        int       `json:"timeout_ms"`
	RetryCount       int       `json:"retry_count"`
	RetryBackoffMS   int       `json:"retry_backoff_ms"`
	SLATarget        int       `json:"sla_target"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Interval returns the probing interval as a duration.
func (t Target) Interval() time.Duration {
	return time.Duration(t.CheckIntervalSec) * time.Second
}

// Timeout returns the per-attempt probe deadline.
func (t Target) Timeout() time.Duration {
	return time.Duration(t.TimeoutMS) * time.Millisecond
}

// RetryBackoff returns the sleep between probe attempts.
func (t Target) RetryBackoff() time.Duration {
	return time.Duration(t.RetryBackoffMS) * time.Millisecond
}

// CheckResult is the persisted, append-only outcome of a single probe cycle.
type CheckResult struct {
	ID         int64      `json:"id"`
	TargetID   int64      `json:"target_id"`
	Status     Status     `json:"status"`
	HTTPStatus *int       `json:"http_status"`
	LatencyMS  *int64     `json:"latency_ms"`
	Error      *ErrorKind `json:"error"`
	CheckedAt  time.Time  `json:"checked_at"`
}

// Incident is a contiguous DOWN interval for a target. At most one
// unresolved incident exists per target at any time; the store enforces this
// with a partial unique index.
type Incident struct {
	ID         int64      `json:"id"`
	TargetID   int64      `json:"target_id"`
	StartTS    time.Time  `json:"start_ts"`
	EndTS      *time.Time `json:"end_ts"`
	LastStatus Status     `json:"last_status"`
	Resolved   bool       `json:"resolved"`
}

// SchedulerEntry is the per-target scheduling row. Exactly one exists per
// target; a non-nil lease marks the target as in flight on some worker.
type SchedulerEntry struct {
	ID             int64
	TargetID       int64
	NextRunAt      time.Time
	LeaseOwner     *string
	LeaseExpiresAt *time.Time
}

// Job is a leased unit of work: the scheduler row id plus a snapshot of the
// target taken at acquire time.
type Job struct {
	SchedulerID int64
	Target      Target
}

// ChannelType identifies a notification adapter.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelLog      ChannelType = "log"
)

// NotificationChannel is a configured notification destination. Config keys
// depend on the type; for telegram: chat_id and optional parse_mode.
type NotificationChannel struct {
	ID        int64             `json:"id"`
	Type      ChannelType       `json:"type"`
	Config    map[string]string `json:"config"`
	IsActive  bool              `json:"is_active"`
	CreatedAt time.Time         `json:"created_at"`
}

// EventStatus is the delivery state of an outbox row.
type EventStatus string

const (
	EventQueued EventStatus = "QUEUED"
	EventSent   EventStatus = "SENT"
	EventFailed EventStatus = "FAILED"
)

// NotificationEvent is one row of the transactional outbox: a pending or
// delivered alert for a single incident transition on a single channel.
// ChannelID is nil for the env-configured Telegram notifier.
type NotificationEvent struct {
	ID         int64          `json:"id"`
	IncidentID int64          `json:"incident_id"`
	ChannelID  *int64         `json:"channel_id"`
	Channel    ChannelType    `json:"channel"`
	Kind       TransitionKind `json:"kind"`
	Status     EventStatus    `json:"status"`
	Attempts   int            `json:"attempts"`
	Error      *string        `json:"error"`
	SentAt     *time.Time     `json:"sent_at"`
	CreatedAt  time.Time      `json:"created_at"`
}
