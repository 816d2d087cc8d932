package monitor

// IncidentAction is what the incident tracker must do with a new check
// result, given whether the target currently has an open incident.
type IncidentAction int

const (
	// IncidentNone: healthy target stayed healthy. Nothing to do.
	IncidentNone IncidentAction = iota
	// IncidentOpen: first DOWN after a healthy stretch. Open an incident.
	IncidentOpen
	// IncidentRefresh: still failing. Touch last_status on the open incident.
	IncidentRefresh
	// IncidentResolve: recovered. Close the open incident.
	IncidentResolve
)

// TransitionKind names the two observable state-machine transitions. These
// are the only events that produce notifications.
type TransitionKind string

const (
	TransitionOpened   TransitionKind = "incident_opened"
	TransitionResolved TransitionKind = "incident_resolved"
)

// NextIncidentAction implements the per-target state machine: HEALTHY is
// "no open incident", FAILING is "exactly one open incident".
func NextIncidentAction(hasOpen bool, s Status) IncidentAction {
	switch {
	case !hasOpen && s == StatusDown:
		return IncidentOpen
	case hasOpen && s == StatusDown:
		return IncidentRefresh
	case hasOpen && s == StatusUp:
		return IncidentResolve
	default:
		return IncidentNone
	}
}

// Transition reports the notification-worthy transition an action causes,
// if any.
func (a IncidentAction) Transition() (TransitionKind, bool) {
	switch a {
	case IncidentOpen:
		return TransitionOpened, true
	case IncidentResolve:
		return TransitionResolved, true
	default:
		return "", false
	}
}
