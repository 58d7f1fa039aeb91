package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/relayfin/payledger/app/controllers"
	"github.com/relayfin/payledger/internal/pkg/env"
	"github.com/relayfin/payledger/internal/pkg/jobqueue"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	manager := jobqueue.GetManager()
	webhookCtrl := controllers.NewWebhookController(
		manager.GetQueue(),
		manager.GetCollector(),
		env.GetEnv("WEBHOOK_SECRET", ""),
	)

	app.Post("/webhooks/payments", webhookCtrl.HandlePaymentWebhook)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
