package models

// ✅ Ticket states (waiting pool membership)
const (
	TicketStateWaiting = "waiting"
	TicketStateInCall  = "in_call"
)

// ✅ Cooldown kinds
const (
	CooldownKindNormal = "normal"
	CooldownKindSkip   = "skip"
)

// ✅ Statuses returned to clients
const (
	StatusWaiting        = "waiting"
	StatusMatched        = "matched"
	StatusIdle           = "idle"
	StatusDisconnected   = "disconnected"
	StatusReconnected    = "reconnected"
	StatusSkipped        = "skipped"
	StatusNone           = "none"
	StatusLeftBehind     = "left_behind"
	StatusAlreadyMatched = "already_matched"
)
