package models

// BillingMode selects which shape of the draft is active: a single calendar
// session, or a list of month labels billed monthly or per 3-month block.
type BillingMode string

const (
	PerSession BillingMode = "per_session"
	PerMonth   BillingMode = "per_month"
	PerQuarter BillingMode = "per_quarter"
)

func (m BillingMode) Valid() bool {
	switch m {
	case PerSession, PerMonth, PerQuarter:
		return true
	default:
		return false
	}
}

// Recurring reports whether the mode selects months rather than a session.
func (m BillingMode) Recurring() bool {
	return m == PerMonth || m == PerQuarter
}

// DraftState is the lifecycle position of a payment draft.
type DraftState string

const (
	StateIdle              DraftState = "idle"
	StateSelectingMode     DraftState = "selecting_mode"
	StateSelectingAdherent DraftState = "selecting_adherent"
	StateSelectingActivity DraftState = "selecting_activity"
	StateSelectingPeriod   DraftState = "selecting_period"
	StateReady             DraftState = "ready"
	StateSubmitting        DraftState = "submitting"
	StateSettled           DraftState = "settled"
	StateFailed            DraftState = "failed"
)
