package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/creatorly/creatorpay/internal/pkg/middleware"
)

// RegisterHandlers wires the v1 endpoints onto the given router group.
// Webhook ingestion authenticates via its HMAC signature; everything under
// /internal requires the shared operator secret.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)
	router.Post("/webhooks/gateway", s.PostGatewayWebhook)

	internal := router.Group("/internal", middleware.InternalAuthMiddleware())
	internal.Post("/payouts/run", s.PostPayoutRun)
	internal.Get("/payouts/batches/:id", s.GetBatch)
	internal.Post("/payouts/items/:id/retry", s.PostItemRetry)
	internal.Post("/payouts/items/:id/cancel", s.PostItemCancel)
	internal.Get("/accounts/:id/balance", s.GetAccountBalance)
	internal.Get("/accounts/:id/ledger", s.GetAccountLedger)
	internal.Get("/queue/stats", s.GetQueueStats)
	internal.Get("/queue/jobs/:id", s.GetQueueJob)
}
