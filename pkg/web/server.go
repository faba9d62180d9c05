package web

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App builds the HTTP application. gatherer may be nil to leave /metrics
// out.
func App(handlers *APIHandlers, gatherer prometheus.Gatherer) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/health", handlers.HealthCheck)

	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	w := app.Group("/workflows")
	w.Get("/", handlers.ListWorkflows)
	w.Get("/:code", handlers.GetWorkflow)
	w.Get("/:code/graph", handlers.GetGraph)

	r := app.Group("/records/:model/:id")
	r.Get("/state", handlers.GetState)
	r.Get("/history", handlers.GetHistory)
	r.Get("/transitions", handlers.GetAvailableTransitions)
	r.Post("/transitions", handlers.ExecuteTransition)

	app.Get("/activities", handlers.ListActivities)

	app.Post("/rules/time-based/run", handlers.RunTimeBased)
	app.Post("/rules/:code/run", handlers.RunRule)

	return app
}

// Listen serves app on port until it is shut down.
func Listen(app *fiber.App, port int) error {
	return app.Listen(":" + strconv.Itoa(port))
}
