package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/Majdabbassi/chellymobil-sub000/internal/clubapi"
	"github.com/Majdabbassi/chellymobil-sub000/internal/models"
	"github.com/Majdabbassi/chellymobil-sub000/internal/pricing"
	"github.com/Majdabbassi/chellymobil-sub000/internal/selection"
)

// Keystore namespaces for the two installation tokens.
const (
	cartKeyNamespace        = "cart"
	reservationKeyNamespace = "reservation"
)

type BackendClient interface {
	ListPaidMonths(ctx context.Context, token string, activityID int64) ([]string, error)
	CreateReservation(ctx context.Context, token string, input clubapi.ReservationInput) error
	CreatePaymentIntent(ctx context.Context, token string, input clubapi.PaymentIntentInput) (*clubapi.PaymentIntentResponse, error)
}

type KeyProvider interface {
	GetOrCreateKey(ctx context.Context, namespace string) (string, error)
}

// Outcome is the terminal result of a submission attempt. Every failure past
// the local gate lands here as StateFailed with a human-readable reason;
// nothing propagates to the hosting screen as an error.
type Outcome struct {
	State      models.DraftState `json:"state"`
	Reason     string            `json:"reason,omitempty"`
	Amount     float64           `json:"amount"`
	PaymentURL string            `json:"payment_url,omitempty"`
}

// Orchestrator runs the two fulfillment protocols behind one precondition
// gate: the draft must be complete and the guardian contact must validate.
// Local gate failures return as errors before the draft enters Submitting;
// everything after that resolves the draft to Settled or Failed.
type Orchestrator struct {
	api                BackendClient
	keys               KeyProvider
	defaultPhonePrefix string
}

func NewOrchestrator(api BackendClient, keys KeyProvider, defaultPhonePrefix string) *Orchestrator {
	return &Orchestrator{
		api:                api,
		keys:               keys,
		defaultPhonePrefix: defaultPhonePrefix,
	}
}

// SubmitCashReservation records an in-person reservation against the durable
// cart key, so repeated taps and network retries cannot duplicate it.
func (o *Orchestrator) SubmitCashReservation(
	ctx context.Context,
	draft *selection.Draft,
	contact models.GuardianContact,
) (*Outcome, error) {
	snap, guardian, err := o.begin(draft, contact)
	if err != nil {
		return nil, err
	}

	if outcome := o.recheckPaidMonths(ctx, draft, snap); outcome != nil {
		return outcome, nil
	}

	key, err := o.keys.GetOrCreateKey(ctx, cartKeyNamespace)
	if err != nil {
		return o.fail(draft, snap, fmt.Sprintf("could not prepare reservation: %v", err)), nil
	}

	amount := pricing.ComputeTotal(snap)
	err = o.api.CreateReservation(ctx, draft.Token(), clubapi.ReservationInput{
		AdherentID:     snap.Adherents[0].ID,
		ActivityIDs:    activityIDs(snap),
		IdempotencyKey: key,
		Fulfillment:    buildFulfillment(snap),
		Amount:         amount,
		Guardian:       guardian,
	})
	if err != nil {
		return o.fail(draft, snap, submissionReason(err)), nil
	}

	draft.FinishSettled()
	return &Outcome{State: models.StateSettled, Amount: amount}, nil
}

// SubmitHostedGateway creates a payment intent and hands back the gateway's
// redirect URL. Any response without an absolute http(s) URL is a terminal
// failure; a malformed redirect is never followed or retried.
func (o *Orchestrator) SubmitHostedGateway(
	ctx context.Context,
	draft *selection.Draft,
	contact models.GuardianContact,
) (*Outcome, error) {
	snap, guardian, err := o.begin(draft, contact)
	if err != nil {
		return nil, err
	}

	if outcome := o.recheckPaidMonths(ctx, draft, snap); outcome != nil {
		return outcome, nil
	}

	reference, err := o.keys.GetOrCreateKey(ctx, reservationKeyNamespace)
	if err != nil {
		return o.fail(draft, snap, fmt.Sprintf("could not prepare payment: %v", err)), nil
	}

	amount := pricing.ComputeTotal(snap)
	resp, err := o.api.CreatePaymentIntent(ctx, draft.Token(), clubapi.PaymentIntentInput{
		AdherentID:  snap.Adherents[0].ID,
		ActivityIDs: activityIDs(snap),
		Fulfillment: buildFulfillment(snap),
		AmountMinor: pricing.MinorUnits(amount),
		Description: describeSelection(snap),
		Reference:   reference,
		Guardian:    guardian,
	})
	if err != nil {
		return o.fail(draft, snap, submissionReason(err)), nil
	}

	if !validPaymentURL(resp.PaymentURL) {
		return o.fail(draft, snap, fmt.Sprintf("gateway returned a malformed payment URL: %q", resp.PaymentURL)), nil
	}

	draft.FinishSettled()
	return &Outcome{
		State:      models.StateSettled,
		Amount:     amount,
		PaymentURL: resp.PaymentURL,
	}, nil
}

// begin runs the shared local gate: contact validation, then the draft's own
// completeness and single-flight checks. Nothing here touches the network.
func (o *Orchestrator) begin(
	draft *selection.Draft,
	contact models.GuardianContact,
) (models.PaymentDraft, models.GuardianContact, error) {
	guardian, err := ValidateContact(contact, o.defaultPhonePrefix)
	if err != nil {
		return models.PaymentDraft{}, models.GuardianContact{}, err
	}
	if err := draft.BeginSubmit(); err != nil {
		return models.PaymentDraft{}, models.GuardianContact{}, err
	}
	return draft.Snapshot(), guardian, nil
}

// recheckPaidMonths consults the guard one last time before submitting, to
// close the race between the selection-time load and submit (another device
// may have just paid the same month). A transient re-check failure does not
// block the submission; the backend still rejects settled periods
// authoritatively.
func (o *Orchestrator) recheckPaidMonths(
	ctx context.Context,
	draft *selection.Draft,
	snap models.PaymentDraft,
) *Outcome {
	if !snap.BillingMode.Recurring() {
		return nil
	}
	selected := make(map[string]struct{}, len(snap.SelectedMonths))
	for _, m := range snap.SelectedMonths {
		selected[m] = struct{}{}
	}
	for _, activity := range snap.Activities {
		months, err := o.api.ListPaidMonths(ctx, draft.Token(), activity.ID)
		if err != nil {
			log.Printf("paid-month recheck failed (activity=%d): %v", activity.ID, err)
			continue
		}
		for _, m := range months {
			if _, ok := selected[m]; ok {
				reason := fmt.Sprintf("%s is already paid for %s", m, activity.Name)
				return o.fail(draft, snap, reason)
			}
		}
	}
	return nil
}

func (o *Orchestrator) fail(draft *selection.Draft, snap models.PaymentDraft, reason string) *Outcome {
	draft.FinishFailed(reason)
	return &Outcome{
		State:  models.StateFailed,
		Reason: reason,
		Amount: pricing.ComputeTotal(snap),
	}
}

// submissionReason surfaces the backend's own message verbatim when there is
// one.
func submissionReason(err error) string {
	var apiErr *clubapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}

func buildFulfillment(snap models.PaymentDraft) models.Fulfillment {
	if snap.BillingMode == models.PerSession {
		return models.SessionFulfillment{
			SessionID:   snap.SelectedSession.ID,
			SessionDate: snap.SelectedSession.DateKey(),
		}
	}
	return models.MonthsFulfillment{Months: snap.SelectedMonths}
}

func activityIDs(snap models.PaymentDraft) []int64 {
	if len(snap.Activities) == 0 && snap.SelectedSession != nil {
		return []int64{snap.SelectedSession.ActivityID}
	}
	ids := make([]int64, 0, len(snap.Activities))
	for _, a := range snap.Activities {
		ids = append(ids, a.ID)
	}
	return ids
}

// describeSelection builds the human-readable line the gateway shows on its
// payment page.
func describeSelection(snap models.PaymentDraft) string {
	names := make([]string, 0, len(snap.Activities))
	for _, a := range snap.Activities {
		names = append(names, a.Name)
	}
	subject := strings.Join(names, " + ")

	adherent := ""
	if len(snap.Adherents) > 0 {
		adherent = snap.Adherents[0].FullName()
	}

	period := ""
	switch {
	case snap.BillingMode == models.PerSession && snap.SelectedSession != nil:
		period = "session " + snap.SelectedSession.DateKey()
		if subject == "" {
			subject = snap.SelectedSession.TeamName
		}
	case snap.BillingMode == models.PerQuarter:
		period = "quarters " + strings.Join(snap.SelectedMonths, ", ")
	default:
		period = strings.Join(snap.SelectedMonths, ", ")
	}

	parts := make([]string, 0, 3)
	for _, part := range []string{subject, adherent, period} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " - ")
}

func validPaymentURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
