// Package pricing maps a payment draft to a monetary total. It is pure: no
// I/O, no clock, safe to call on every edit for live display. Callers are
// responsible for keeping already-paid months out of the draft; the total
// prices whatever months are present.
package pricing

import (
	"math"

	"github.com/Majdabbassi/chellymobil-sub000/internal/models"
)

// monthsPerQuarter: each selected label under quarterly billing stands for a
// 3-month block billed at 3× the monthly unit price.
const monthsPerQuarter = 3

// ComputeTotal returns the amount due for the draft's selection.
//
// Per-session: the session's own price, which overrides the activity's
// nominal unit price. Recurring: the sum over selected activities of
// unit price × month count, tripled for quarterly blocks.
func ComputeTotal(draft models.PaymentDraft) float64 {
	switch draft.BillingMode {
	case models.PerSession:
		if draft.SelectedSession == nil {
			return 0
		}
		return draft.SelectedSession.Price
	case models.PerMonth:
		return recurringTotal(draft, 1)
	case models.PerQuarter:
		return recurringTotal(draft, monthsPerQuarter)
	default:
		return 0
	}
}

func recurringTotal(draft models.PaymentDraft, blockMonths int) float64 {
	months := len(draft.SelectedMonths)
	if months == 0 {
		return 0
	}
	total := 0.0
	for _, activity := range draft.Activities {
		total += activity.UnitPrice * float64(months) * float64(blockMonths)
	}
	return total
}

// MinorUnits converts an amount to integer minor currency units for the
// hosted gateway, rounding half away from zero to shed float dust.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
