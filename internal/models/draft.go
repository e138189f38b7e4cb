package models

// PaymentDraft is an immutable snapshot of the in-progress selection. The
// selection package owns the mutable machine; everything downstream (pricing,
// checkout, handlers) works on snapshots so the machine's lock never leaks.
type PaymentDraft struct {
	BillingMode     BillingMode `json:"billing_mode"`
	Adherents       []Adherent  `json:"adherents"`
	Activities      []Activity  `json:"activities"`
	SelectedSession *Session    `json:"selected_session,omitempty"`
	// SessionChoices is how many sessions existed on the picked date; values
	// above 1 mean the caller should offer explicit disambiguation.
	SessionChoices int        `json:"session_choices,omitempty"`
	SelectedMonths []string   `json:"selected_months,omitempty"`
	State          DraftState `json:"state"`
	FailureReason  string     `json:"failure_reason,omitempty"`
}
