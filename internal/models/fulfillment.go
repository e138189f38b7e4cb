package models

// Fulfillment is the period half of a submission payload. The two billing
// shapes are separate types rather than one struct with optional fields, so a
// month list can never ride along on a session submission or vice versa.
type Fulfillment interface {
	fulfillment()
}

// SessionFulfillment settles a single calendar session.
type SessionFulfillment struct {
	SessionID   int64  `json:"session_id"`
	SessionDate string `json:"session_date"`
}

// MonthsFulfillment settles a list of month labels. Under quarterly billing
// each label names a 3-month block; the backend owns the expansion.
type MonthsFulfillment struct {
	Months []string `json:"months"`
}

func (SessionFulfillment) fulfillment() {}
func (MonthsFulfillment) fulfillment()  {}
