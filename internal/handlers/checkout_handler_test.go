package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/Majdabbassi/chellymobil-sub000/internal/checkout"
	"github.com/Majdabbassi/chellymobil-sub000/internal/models"
	"github.com/Majdabbassi/chellymobil-sub000/internal/selection"
)

type stubCheckoutService struct {
	cashOutcome    *checkout.Outcome
	cashErr        error
	gatewayOutcome *checkout.Outcome
	gatewayErr     error
	lastContact    models.GuardianContact
	cashCalls      int
	gatewayCalls   int
}

func (s *stubCheckoutService) SubmitCashReservation(_ context.Context, _ *selection.Draft, contact models.GuardianContact) (*checkout.Outcome, error) {
	s.cashCalls++
	s.lastContact = contact
	return s.cashOutcome, s.cashErr
}

func (s *stubCheckoutService) SubmitHostedGateway(_ context.Context, _ *selection.Draft, contact models.GuardianContact) (*checkout.Outcome, error) {
	s.gatewayCalls++
	s.lastContact = contact
	return s.gatewayOutcome, s.gatewayErr
}

func newCheckoutApp(manager *selection.Manager, service *stubCheckoutService) *fiber.App {
	handler := &CheckoutHandler{drafts: manager, service: service}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("guardian_id", "42")
		c.Locals("token", "tok")
		return c.Next()
	})
	app.Post("/api/v1/payment-drafts/:id/checkout/cash", handler.SubmitCash)
	app.Post("/api/v1/payment-drafts/:id/checkout/gateway", handler.SubmitGateway)
	return app
}

func TestSubmitCashSettlesAndDiscardsDraft(t *testing.T) {
	manager := selection.NewManager(&stubLoader{paidMonths: map[int64][]string{}})
	service := &stubCheckoutService{
		cashOutcome: &checkout.Outcome{State: models.StateSettled, Amount: 100},
	}
	app := newCheckoutApp(manager, service)

	draftID, _ := manager.Create("tok")

	resp, body := doJSON(t, app, http.MethodPost,
		"/api/v1/payment-drafts/"+draftID+"/checkout/cash",
		`{"guardian":{"first_name":"Leila","last_name":"Abbassi","email":"leila@example.com","phone":"20123456"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	outcome := body["outcome"].(map[string]any)
	if outcome["state"] != string(models.StateSettled) {
		t.Errorf("Expected settled outcome, got %v", outcome)
	}
	if service.cashCalls != 1 {
		t.Errorf("Expected 1 service call, got %d", service.cashCalls)
	}
	if service.lastContact.FirstName != "Leila" {
		t.Errorf("Expected the request contact passed through, got %+v", service.lastContact)
	}

	// Settled drafts leave the registry.
	if _, err := manager.Get(draftID); err == nil {
		t.Errorf("Expected the draft discarded after settlement")
	}
}

func TestSubmitFallsBackToLoadedGuardianContact(t *testing.T) {
	manager := selection.NewManager(&stubLoader{paidMonths: map[int64][]string{}})
	service := &stubCheckoutService{
		cashOutcome: &checkout.Outcome{State: models.StateSettled, Amount: 100},
	}
	app := newCheckoutApp(manager, service)

	draftID, draft := manager.Create("tok")
	waitFor(t, "guardian contact", func() bool { return draft.Guardian() != nil })

	resp, _ := doJSON(t, app, http.MethodPost,
		"/api/v1/payment-drafts/"+draftID+"/checkout/cash", `{}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if service.lastContact.Email != "leila@example.com" {
		t.Errorf("Expected the loaded guardian contact used, got %+v", service.lastContact)
	}
}

func TestSubmitIncompleteDraftIsRejectedLocally(t *testing.T) {
	manager := selection.NewManager(&stubLoader{paidMonths: map[int64][]string{}})
	service := &stubCheckoutService{cashErr: selection.ErrDraftIncomplete}
	app := newCheckoutApp(manager, service)

	draftID, _ := manager.Create("tok")

	resp, body := doJSON(t, app, http.MethodPost,
		"/api/v1/payment-drafts/"+draftID+"/checkout/cash", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	if body["error"] != "Selection is incomplete" {
		t.Errorf("Expected the incomplete-selection message, got %v", body)
	}
}

func TestSubmitInvalidContactIsRejectedLocally(t *testing.T) {
	manager := selection.NewManager(&stubLoader{paidMonths: map[int64][]string{}})
	service := &stubCheckoutService{cashErr: checkout.ErrContactPhone}
	app := newCheckoutApp(manager, service)

	draftID, _ := manager.Create("tok")

	resp, _ := doJSON(t, app, http.MethodPost,
		"/api/v1/payment-drafts/"+draftID+"/checkout/cash", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestFailedGatewayOutcomeIsUnprocessable(t *testing.T) {
	manager := selection.NewManager(&stubLoader{paidMonths: map[int64][]string{}})
	service := &stubCheckoutService{
		gatewayOutcome: &checkout.Outcome{
			State:  models.StateFailed,
			Reason: "gateway returned a malformed payment URL: \"not-a-url\"",
		},
	}
	app := newCheckoutApp(manager, service)

	draftID, _ := manager.Create("tok")

	resp, body := doJSON(t, app, http.MethodPost,
		"/api/v1/payment-drafts/"+draftID+"/checkout/gateway", `{}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", resp.StatusCode)
	}
	outcome := body["outcome"].(map[string]any)
	if outcome["state"] != string(models.StateFailed) {
		t.Errorf("Expected failed outcome, got %v", outcome)
	}
	if _, hasURL := outcome["payment_url"]; hasURL {
		t.Errorf("Expected no navigation target on failure, got %v", outcome)
	}

	// The draft survives the failure for correction and resubmission.
	if _, err := manager.Get(draftID); err != nil {
		t.Errorf("Expected the draft preserved after failure, got %v", err)
	}
}

func TestSubmitInFlightConflict(t *testing.T) {
	manager := selection.NewManager(&stubLoader{paidMonths: map[int64][]string{}})
	service := &stubCheckoutService{cashErr: selection.ErrSubmissionInFlight}
	app := newCheckoutApp(manager, service)

	draftID, _ := manager.Create("tok")

	resp, _ := doJSON(t, app, http.MethodPost,
		"/api/v1/payment-drafts/"+draftID+"/checkout/cash", `{}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", resp.StatusCode)
	}
}
