package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/Majdabbassi/chellymobil-sub000/internal/checkout"
	"github.com/Majdabbassi/chellymobil-sub000/internal/models"
	"github.com/Majdabbassi/chellymobil-sub000/internal/selection"
)

type CheckoutHandler struct {
	drafts  draftRegistry
	service checkoutService
}

type checkoutService interface {
	SubmitCashReservation(ctx context.Context, draft *selection.Draft, contact models.GuardianContact) (*checkout.Outcome, error)
	SubmitHostedGateway(ctx context.Context, draft *selection.Draft, contact models.GuardianContact) (*checkout.Outcome, error)
}

func NewCheckoutHandler(manager *selection.Manager, orchestrator *checkout.Orchestrator) *CheckoutHandler {
	return &CheckoutHandler{drafts: manager, service: orchestrator}
}

type submitRequest struct {
	Guardian *models.GuardianContact `json:"guardian"`
}

// SubmitCash runs the cash-reservation fulfillment path.
func (h *CheckoutHandler) SubmitCash(c *fiber.Ctx) error {
	return h.submit(c, h.service.SubmitCashReservation)
}

// SubmitGateway runs the hosted-gateway path; a settled outcome carries the
// redirect URL.
func (h *CheckoutHandler) SubmitGateway(c *fiber.Ctx) error {
	return h.submit(c, h.service.SubmitHostedGateway)
}

func (h *CheckoutHandler) submit(
	c *fiber.Ctx,
	run func(ctx context.Context, draft *selection.Draft, contact models.GuardianContact) (*checkout.Outcome, error),
) error {
	draftID := c.Params("id")
	draft, err := h.drafts.Get(draftID)
	if err != nil {
		return mapDraftError(c, err)
	}

	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	contact := models.GuardianContact{}
	if req.Guardian != nil {
		contact = *req.Guardian
	} else if loaded := draft.Guardian(); loaded != nil {
		contact = *loaded
	}

	outcome, err := run(c.Context(), draft, contact)
	if err != nil {
		return mapSubmitError(c, err)
	}

	if outcome.State == models.StateSettled {
		// Successful submissions end the draft's lifecycle.
		_ = h.drafts.Discard(draftID)
		return c.JSON(fiber.Map{"outcome": outcome})
	}
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"outcome": outcome})
}

// mapSubmitError covers the local gate: validation and draft-state failures
// that blocked the submission before any network call.
func mapSubmitError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, checkout.ErrContactName),
		errors.Is(err, checkout.ErrContactEmail),
		errors.Is(err, checkout.ErrContactPhone):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, selection.ErrDraftIncomplete):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Selection is incomplete"})
	default:
		return mapDraftError(c, err)
	}
}
