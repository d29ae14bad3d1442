package apiv1

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm/clause"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/internal/pkg/database"
	"github.com/creatorly/creatorpay/internal/pkg/env"
	"github.com/creatorly/creatorpay/internal/pkg/gateway"
	"github.com/creatorly/creatorpay/internal/pkg/payout"
)

const webhookProvider = "gateway"

// PostGatewayWebhook ingests gateway transfer events. The raw body is
// HMAC-verified, stored once per (provider, event id), and applied to the
// matching payout item. Replays return 200 without reprocessing.
func (s *APIServer) PostGatewayWebhook(c *fiber.Ctx) error {
	secret := env.GetEnv("PAYOUT_WEBHOOK_SECRET", "")
	if secret == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "not_configured", "message": "webhook secret is not set"})
	}

	body := c.Body()
	if !gateway.VerifyWebhookSignature(body, c.Get("X-Gateway-Signature"), secret) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "invalid signature"})
	}

	var event payout.TransferEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	if event.EventID == "" || event.EventType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "event_id and event_type are required"})
	}

	db := database.GetDB()

	record := models.WebhookEvent{
		Provider:        webhookProvider,
		ProviderEventID: event.EventID,
		EventType:       event.EventType,
		PayloadJSON:     string(body),
		SignatureValid:  true,
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(&record)
	if res.Error != nil {
		log.Errorf("[API] Webhook store failed: %v", res.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "webhook store failed"})
	}
	if res.RowsAffected == 0 {
		var existing models.WebhookEvent
		if err := db.Where("provider = ? AND provider_event_id = ?", webhookProvider, event.EventID).
			First(&existing).Error; err != nil {
			log.Errorf("[API] Webhook dedup lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "webhook store failed"})
		}
		if existing.ProcessedAt != nil {
			// Duplicate delivery; the first one already did the work.
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "duplicate"})
		}
		// The first delivery failed mid-apply; this redelivery retries it.
		record = existing
	}

	applyErr := payout.ApplyTransferEvent(db, &event)

	if applyErr != nil && !errors.Is(applyErr, payout.ErrUnknownTransfer) {
		// Leave processed_at unset so the gateway's redelivery retries.
		if err := db.Model(&models.WebhookEvent{}).Where("id = ?", record.ID).
			Update("processing_error", applyErr.Error()).Error; err != nil {
			log.Errorf("[API] Webhook event update failed: %v", err)
		}
		log.Errorf("[API] Webhook apply failed: %v", applyErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "webhook processing failed"})
	}

	now := time.Now()
	updates := map[string]interface{}{"processed_at": now, "processing_error": ""}
	if applyErr != nil {
		updates["processing_error"] = applyErr.Error()
	}
	if err := db.Model(&models.WebhookEvent{}).Where("id = ?", record.ID).Updates(updates).Error; err != nil {
		log.Errorf("[API] Webhook event update failed: %v", err)
	}

	if applyErr != nil {
		// Accepted but unmatched; nothing to retry on the gateway side.
		log.Warnf("[API] Webhook %s matched no payout item", event.EventID)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "unmatched"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "processed"})
}
