package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/creatorly/creatorpay/internal/pkg/env"
	"github.com/creatorly/creatorpay/internal/pkg/metrics"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	// Prometheus metrics and the fiber monitor share basic auth credentials.
	metricsAuth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "metrics"): env.GetEnv("METRICS_PASSWORD", "metrics"),
		},
	})
	app.Get("/metrics", metricsAuth, adaptor.HTTPHandler(metrics.Handler()))
	app.Get("/monitor", metricsAuth, monitor.New())
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
