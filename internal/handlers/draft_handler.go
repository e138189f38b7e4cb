package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Majdabbassi/chellymobil-sub000/internal/models"
	"github.com/Majdabbassi/chellymobil-sub000/internal/pricing"
	"github.com/Majdabbassi/chellymobil-sub000/internal/selection"
)

type DraftHandler struct {
	drafts draftRegistry
}

type draftRegistry interface {
	Create(token string) (string, *selection.Draft)
	Get(id string) (*selection.Draft, error)
	Discard(id string) error
}

func NewDraftHandler(manager *selection.Manager) *DraftHandler {
	return &DraftHandler{drafts: manager}
}

type setModeRequest struct {
	BillingMode string `json:"billing_mode"`
}

type selectAdherentRequest struct {
	AdherentID int64 `json:"adherent_id"`
}

type toggleActivityRequest struct {
	ActivityID int64 `json:"activity_id"`
}

type pickDateRequest struct {
	Date      string `json:"date"`
	SessionID int64  `json:"session_id"`
}

type toggleMonthRequest struct {
	Month string `json:"month"`
}

func (h *DraftHandler) CreateDraft(c *fiber.Ctx) error {
	token, ok := c.Locals("token").(string)
	if !ok || token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	id, draft := h.drafts.Create(token)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"draft_id": id,
		"view":     draft.View(),
	})
}

func (h *DraftHandler) GetDraft(c *fiber.Ctx) error {
	draft, err := h.drafts.Get(c.Params("id"))
	if err != nil {
		return mapDraftError(c, err)
	}
	return h.respondView(c, draft)
}

func (h *DraftHandler) SetBillingMode(c *fiber.Ctx) error {
	draft, err := h.drafts.Get(c.Params("id"))
	if err != nil {
		return mapDraftError(c, err)
	}

	var req setModeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := draft.SetBillingMode(models.BillingMode(strings.TrimSpace(req.BillingMode))); err != nil {
		return mapDraftError(c, err)
	}
	return h.respondView(c, draft)
}

func (h *DraftHandler) SelectAdherent(c *fiber.Ctx) error {
	draft, err := h.drafts.Get(c.Params("id"))
	if err != nil {
		return mapDraftError(c, err)
	}

	var req selectAdherentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.AdherentID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "adherent_id must be greater than 0"})
	}

	if err := draft.SelectAdherent(req.AdherentID); err != nil {
		return mapDraftError(c, err)
	}
	return h.respondView(c, draft)
}

func (h *DraftHandler) ToggleActivity(c *fiber.Ctx) error {
	draft, err := h.drafts.Get(c.Params("id"))
	if err != nil {
		return mapDraftError(c, err)
	}

	var req toggleActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ActivityID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "activity_id must be greater than 0"})
	}

	if err := draft.ToggleActivity(req.ActivityID); err != nil {
		return mapDraftError(c, err)
	}
	return h.respondView(c, draft)
}

func (h *DraftHandler) PickDate(c *fiber.Ctx) error {
	draft, err := h.drafts.Get(c.Params("id"))
	if err != nil {
		return mapDraftError(c, err)
	}

	var req pickDateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Date) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "date is required"})
	}

	if req.SessionID > 0 {
		err = draft.PickSession(req.Date, req.SessionID)
	} else {
		err = draft.PickDate(req.Date)
	}
	if err != nil {
		return mapDraftError(c, err)
	}
	return h.respondView(c, draft)
}

func (h *DraftHandler) ToggleMonth(c *fiber.Ctx) error {
	draft, err := h.drafts.Get(c.Params("id"))
	if err != nil {
		return mapDraftError(c, err)
	}

	var req toggleMonthRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Month) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "month is required"})
	}

	if err := draft.ToggleMonth(req.Month); err != nil {
		return mapDraftError(c, err)
	}
	return h.respondView(c, draft)
}

func (h *DraftHandler) RetryLoads(c *fiber.Ctx) error {
	draft, err := h.drafts.Get(c.Params("id"))
	if err != nil {
		return mapDraftError(c, err)
	}
	draft.RetryLoads()
	return c.JSON(fiber.Map{"status": "retrying"})
}

func (h *DraftHandler) DiscardDraft(c *fiber.Ctx) error {
	if err := h.drafts.Discard(c.Params("id")); err != nil {
		return mapDraftError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *DraftHandler) respondView(c *fiber.Ctx, draft *selection.Draft) error {
	view := draft.View()
	return c.JSON(fiber.Map{
		"view":     view,
		"total":    pricing.ComputeTotal(view.Draft),
		"complete": draft.IsComplete(),
	})
}

func mapDraftError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, selection.ErrDraftNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Draft not found"})
	case errors.Is(err, selection.ErrMonthAlreadyPaid):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "This month is already paid for the selected activity",
			"code":  "already_paid",
		})
	case errors.Is(err, selection.ErrSubmissionInFlight):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "A submission is already in progress"})
	case errors.Is(err, selection.ErrDraftSettled),
		errors.Is(err, selection.ErrDraftClosed):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "Draft is no longer editable"})
	case errors.Is(err, selection.ErrInvalidBillingMode),
		errors.Is(err, selection.ErrNoBillingMode),
		errors.Is(err, selection.ErrWrongBillingMode),
		errors.Is(err, selection.ErrUnknownAdherent),
		errors.Is(err, selection.ErrUnknownActivity),
		errors.Is(err, selection.ErrNoActivitySelected),
		errors.Is(err, selection.ErrNoSessionOnDate),
		errors.Is(err, selection.ErrUnknownSession):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}
