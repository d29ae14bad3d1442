package payout

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/app/repository"
	"github.com/creatorly/creatorpay/internal/pkg/metrics"
	"github.com/creatorly/creatorpay/internal/pkg/metrics/counter"
)

// Webhook event types accepted from the gateway.
const (
	EventTransferSucceeded = "transfer.succeeded"
	EventTransferFailed    = "transfer.failed"
)

// TransferEvent is the decoded payload of a gateway transfer webhook.
type TransferEvent struct {
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	TransferID     string `json:"transfer_id"`
	IdempotencyKey string `json:"idempotency_key"`
	FailureReason  string `json:"failure_reason"`
}

// ErrUnknownTransfer is returned when no payout item matches the event.
var ErrUnknownTransfer = errors.New("no payout item matches transfer event")

// ApplyTransferEvent pushes a gateway-reported outcome onto the matching
// payout item. Webhooks can arrive before the worker's own call returns, out
// of order, and more than once; the guarded transitions and the ledger's
// idempotent debit make every ordering converge on the same final state.
func ApplyTransferEvent(db *gorm.DB, event *TransferEvent) error {
	item, err := findItemForEvent(db, event)
	if err != nil {
		return err
	}
	if item.Status.Terminal() {
		log.Debugf("[PayoutWebhook] Item %d already %s, event %s ignored", item.ID, item.Status, event.EventID)
		return nil
	}

	// A webhook may land while the item is still pending (the worker's call
	// timed out after the gateway accepted it, and the item was released).
	// Claim it so the guarded transitions apply.
	if item.Status == models.ItemStatusPending {
		if _, err := item.Claim(db); err != nil {
			return fmt.Errorf("claim failed: %w", err)
		}
	}

	switch event.EventType {
	case EventTransferSucceeded:
		if err := SettleSucceeded(db, item, event.TransferID); err != nil {
			return err
		}
		if cerr := counter.AddItemSucceeded(item.Amount); cerr != nil {
			log.Debugf("[PayoutWebhook] Success counter failed: %v", cerr)
		}
		metrics.CountItem(string(models.ItemStatusSucceeded))
		log.Infof("[PayoutWebhook] Item %d settled by webhook: transfer %s", item.ID, event.TransferID)
		return nil

	case EventTransferFailed:
		reason := event.FailureReason
		if reason == "" {
			reason = ReasonGatewayRejected
		}
		marked, err := item.MarkFailed(db, models.ItemStatusFailedTerminal, "webhook: "+reason)
		if err != nil {
			return fmt.Errorf("mark failed failed: %w", err)
		}
		if marked {
			if cerr := counter.AddItemFailed(); cerr != nil {
				log.Debugf("[PayoutWebhook] Failure counter failed: %v", cerr)
			}
			metrics.CountItem(string(models.ItemStatusFailedTerminal))
			log.Warnf("[PayoutWebhook] Item %d failed by webhook: %s", item.ID, reason)
		}
		return nil

	default:
		return fmt.Errorf("unsupported event type %q", event.EventType)
	}
}

// findItemForEvent locates the payout item an event refers to, preferring
// the idempotency key (set by us) over the gateway's transfer id.
func findItemForEvent(db *gorm.DB, event *TransferEvent) (*models.PayoutItem, error) {
	repo := repository.NewPayoutRepository(db)

	if event.IdempotencyKey != "" {
		item, err := repo.GetItemByIdempotencyKey(event.IdempotencyKey)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("item lookup by idempotency key failed: %w", err)
		}
	}

	if event.TransferID != "" {
		item, err := repo.GetItemByExternalTransferID(event.TransferID)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("item lookup by transfer id failed: %w", err)
		}
	}

	return nil, ErrUnknownTransfer
}
