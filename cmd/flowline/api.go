package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/flowline/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger   *slog.Logger
	runtime  *runtime
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, rt *runtime) *API {
	return &API{
		logger:   logger,
		runtime:  rt,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.runtime.manager, a.runtime.catalog, a.runtime.nodes, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowline API")
	})

	web.RegisterRoutes(app, handlers)

	return app
}

func (a *API) Listen(app *fiber.App, port int) error {
	return app.Listen(":" + strconv.Itoa(port))
}
