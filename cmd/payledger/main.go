package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/relayfin/payledger/app/repository"
	"github.com/relayfin/payledger/internal/pkg/cache"
	"github.com/relayfin/payledger/internal/pkg/database"
	"github.com/relayfin/payledger/internal/pkg/env"
	"github.com/relayfin/payledger/internal/pkg/jobqueue"
	"github.com/relayfin/payledger/internal/pkg/router"
)

func main() {
	app := NewApplication()
	defer jobqueue.GetManager().Stop()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	// Workers must be running before the first webhook is accepted
	jobqueue.GetManager().Start()

	app := fiber.New(fiber.Config{
		AppName: "payledger",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
