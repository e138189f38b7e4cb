package models

// Activity is a payable offering. UnitPrice is the per-month base price under
// recurring billing; per-session purchases use the session's own price.
type Activity struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
}
