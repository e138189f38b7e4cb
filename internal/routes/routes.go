package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Majdabbassi/chellymobil-sub000/internal/checkout"
	"github.com/Majdabbassi/chellymobil-sub000/internal/clubapi"
	"github.com/Majdabbassi/chellymobil-sub000/internal/config"
	"github.com/Majdabbassi/chellymobil-sub000/internal/handlers"
	"github.com/Majdabbassi/chellymobil-sub000/internal/keystore"
	"github.com/Majdabbassi/chellymobil-sub000/internal/middleware"
	"github.com/Majdabbassi/chellymobil-sub000/internal/selection"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, keys *keystore.Store) {
	client := clubapi.NewClient(cfg.ClubAPIURL, cfg.ClubAPITimeout)
	manager := selection.NewManager(client)
	orchestrator := checkout.NewOrchestrator(client, keys, cfg.DefaultPhonePrefix)

	draftHandler := handlers.NewDraftHandler(manager)
	checkoutHandler := handlers.NewCheckoutHandler(manager, orchestrator)

	api := app.Group("/api")
	v1 := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	drafts := v1.Group("/payment-drafts")
	drafts.Post("", draftHandler.CreateDraft)
	drafts.Get("/:id", draftHandler.GetDraft)
	drafts.Put("/:id/billing-mode", draftHandler.SetBillingMode)
	drafts.Put("/:id/adherent", draftHandler.SelectAdherent)
	drafts.Put("/:id/activity", draftHandler.ToggleActivity)
	drafts.Put("/:id/session-date", draftHandler.PickDate)
	drafts.Put("/:id/month", draftHandler.ToggleMonth)
	drafts.Post("/:id/retry", draftHandler.RetryLoads)
	drafts.Delete("/:id", draftHandler.DiscardDraft)

	drafts.Post("/:id/checkout/cash", checkoutHandler.SubmitCash)
	drafts.Post("/:id/checkout/gateway", checkoutHandler.SubmitGateway)
}
