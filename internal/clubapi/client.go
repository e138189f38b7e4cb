package clubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Majdabbassi/chellymobil-sub000/internal/models"
)

var (
	ErrAlreadyPaid  = errors.New("period already paid")
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError carries the backend's own failure message so the orchestrator can
// surface it verbatim.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("club backend returned status %d", e.Status)
}

// Client talks to the club backend's collaborator endpoints. Every call is
// bounded by the configured timeout; callers pass the guardian's bearer token
// through with each request.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) ListAdherents(ctx context.Context, token string) ([]models.Adherent, error) {
	var payload struct {
		Adherents []models.Adherent `json:"adherents"`
	}
	if err := c.get(ctx, token, "/api/v1/guardian/adherents", &payload); err != nil {
		return nil, err
	}
	adherents := payload.Adherents
	sort.Slice(adherents, func(i, j int) bool {
		if adherents[i].LastName != adherents[j].LastName {
			return adherents[i].LastName < adherents[j].LastName
		}
		return adherents[i].FirstName < adherents[j].FirstName
	})
	return adherents, nil
}

// ListActivities returns the payable offerings for the given mode. Session
// billing is open to the whole catalog; recurring billing only offers the
// activities the adherent is enrolled in.
func (c *Client) ListActivities(
	ctx context.Context,
	token string,
	mode models.BillingMode,
	adherentID int64,
) ([]models.Activity, error) {
	path := "/api/v1/activities"
	if mode.Recurring() {
		if adherentID <= 0 {
			return []models.Activity{}, nil
		}
		path = fmt.Sprintf("/api/v1/adherents/%d/activities", adherentID)
	}

	var payload struct {
		Activities []models.Activity `json:"activities"`
	}
	if err := c.get(ctx, token, path, &payload); err != nil {
		return nil, err
	}
	activities := payload.Activities
	sort.Slice(activities, func(i, j int) bool {
		return activities[i].Name < activities[j].Name
	})
	return activities, nil
}

func (c *Client) GetGuardianContact(ctx context.Context, token string) (*models.GuardianContact, error) {
	var payload struct {
		Guardian models.GuardianContact `json:"guardian"`
	}
	if err := c.get(ctx, token, "/api/v1/guardian/contact", &payload); err != nil {
		return nil, err
	}
	return &payload.Guardian, nil
}

func (c *Client) ListSessions(
	ctx context.Context,
	token string,
	activityID int64,
	from, to time.Time,
) ([]models.Session, error) {
	path := fmt.Sprintf(
		"/api/v1/activities/%d/sessions?from=%s&to=%s",
		activityID,
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
	)
	var payload struct {
		Sessions []models.Session `json:"sessions"`
	}
	if err := c.get(ctx, token, path, &payload); err != nil {
		return nil, err
	}
	return payload.Sessions, nil
}

func (c *Client) ListPaidMonths(ctx context.Context, token string, activityID int64) ([]string, error) {
	var payload struct {
		Months []string `json:"months"`
	}
	path := fmt.Sprintf("/api/v1/activities/%d/paid-months", activityID)
	if err := c.get(ctx, token, path, &payload); err != nil {
		return nil, err
	}
	return payload.Months, nil
}

type ReservationInput struct {
	AdherentID     int64
	ActivityIDs    []int64
	IdempotencyKey string
	Fulfillment    models.Fulfillment
	Amount         float64
	Guardian       models.GuardianContact
}

// CreateReservation posts a cash reservation. The backend treats the
// idempotency key as the dedup handle; an already-settled period comes back
// as ErrAlreadyPaid so the orchestrator can report it as authoritative.
func (c *Client) CreateReservation(ctx context.Context, token string, input ReservationInput) error {
	body := map[string]any{
		"adherent_id":     input.AdherentID,
		"activity_ids":    input.ActivityIDs,
		"idempotency_key": input.IdempotencyKey,
		"amount":          input.Amount,
		"guardian":        input.Guardian,
	}
	switch f := input.Fulfillment.(type) {
	case models.SessionFulfillment:
		body["session"] = f
	case models.MonthsFulfillment:
		body["months"] = f.Months
	default:
		return fmt.Errorf("unsupported fulfillment type %T", input.Fulfillment)
	}
	return c.post(ctx, token, "/api/v1/reservations", body, nil)
}

type PaymentIntentInput struct {
	AdherentID  int64
	ActivityIDs []int64
	Fulfillment models.Fulfillment
	// AmountMinor is the total in integer minor currency units.
	AmountMinor int64
	Description string
	// Reference is the installation's durable reservation token; the gateway
	// dedupes retried intents on it.
	Reference string
	Guardian  models.GuardianContact
}

type PaymentIntentResponse struct {
	PaymentURL string `json:"payment_url"`
}

// CreatePaymentIntent asks the hosted gateway for a redirect URL. Validating
// the URL shape is the orchestrator's job, not the client's.
func (c *Client) CreatePaymentIntent(
	ctx context.Context,
	token string,
	input PaymentIntentInput,
) (*PaymentIntentResponse, error) {
	body := map[string]any{
		"adherent_id":  input.AdherentID,
		"activity_ids": input.ActivityIDs,
		"amount":       input.AmountMinor,
		"description":  input.Description,
		"reference":    input.Reference,
		"guardian":     input.Guardian,
	}
	switch f := input.Fulfillment.(type) {
	case models.SessionFulfillment:
		body["session"] = f
	case models.MonthsFulfillment:
		body["months"] = f.Months
	default:
		return nil, fmt.Errorf("unsupported fulfillment type %T", input.Fulfillment)
	}

	var resp PaymentIntentResponse
	if err := c.post(ctx, token, "/api/v1/payments/intents", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, token, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	message := ""
	if err := json.Unmarshal(raw, &payload); err == nil {
		message = payload.Error
	}
	if resp.StatusCode == http.StatusConflict || payload.Code == "already_paid" {
		if message == "" {
			return ErrAlreadyPaid
		}
		return fmt.Errorf("%w: %s", ErrAlreadyPaid, message)
	}
	return &APIError{Status: resp.StatusCode, Message: message}
}
