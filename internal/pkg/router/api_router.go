package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/relayfin/payledger/app/controllers"
	"github.com/relayfin/payledger/app/repository"
	"github.com/relayfin/payledger/internal/pkg/jobqueue"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	manager := jobqueue.GetManager()
	ledgerCtrl := controllers.NewLedgerController(repository.GetGlobalFactory().GetLedgerEntryRepository())
	queueCtrl := controllers.NewQueueController(manager.GetQueue(), manager.GetCollector())

	v1 := api.Group("/v1")
	v1.Get("/ledger", ledgerCtrl.HandleListLedgerEntries)
	v1.Get("/queue/stats", queueCtrl.HandleQueueStats)
	v1.Get("/queue/dead-letters", queueCtrl.HandleDeadLetters)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
