package apiv1

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/app/repository"
	"github.com/creatorly/creatorpay/internal/pkg/balance"
	"github.com/creatorly/creatorpay/internal/pkg/database"
	"github.com/creatorly/creatorpay/internal/pkg/jobqueue"
	"github.com/creatorly/creatorpay/internal/pkg/payout"
)

// APIServer implements the payout API endpoints.
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// Pong is the ping response body.
type Pong struct {
	Ping string `json:"ping"`
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// payoutRunRequest is the trigger body. The date is optional; an empty body
// schedules today's batch.
type payoutRunRequest struct {
	ScheduledDate string `json:"scheduled_date"`
}

// PostPayoutRun triggers the batch for a scheduled date. Duplicate triggers
// for the same date return the existing batch with created=false.
func (s *APIServer) PostPayoutRun(c *fiber.Ctx) error {
	var req payoutRunRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
		}
	}

	scheduledDate := time.Now().UTC()
	if req.ScheduledDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ScheduledDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "scheduled_date must be YYYY-MM-DD"})
		}
		scheduledDate = parsed
	}

	settings := models.GetAppSettings()
	if settings == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "not_ready", "message": "settings not loaded"})
	}

	queue := jobqueue.GetManager().GetQueue()
	scheduler := payout.NewScheduler(database.GetDB(), queue, payout.SchedulerConfigFromSettings(settings))

	batch, created, err := scheduler.RunScheduledBatch(context.Background(), scheduledDate)
	if err != nil {
		if errors.Is(err, payout.ErrPayoutsDisabled) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "payouts_disabled", "message": "payouts are disabled"})
		}
		log.Errorf("[API] Payout run failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "payout run failed"})
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"batch_id":       batch.ID,
		"scheduled_date": batch.ScheduledDate.Format("2006-01-02"),
		"status":         batch.Status,
		"item_count":     batch.ItemCount,
		"total_amount":   batch.TotalAmount,
		"created":        created,
	})
}

// GetBatch returns a batch with its items.
func (s *APIServer) GetBatch(c *fiber.Ctx) error {
	batchID, err := c.ParamsInt("id")
	if err != nil || batchID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid batch id"})
	}

	repos := repository.GetGlobalRepositories()
	batch, err := repos.Payout.GetBatch(uint(batchID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "batch not found"})
		}
		log.Errorf("[API] Batch lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "batch lookup failed"})
	}

	items, err := repos.Payout.ListItemsByBatch(batch.ID)
	if err != nil {
		log.Errorf("[API] Batch item lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "batch lookup failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"batch": batch,
		"items": items,
	})
}

// GetAccountBalance returns the withdrawable balance for an account.
func (s *APIServer) GetAccountBalance(c *fiber.Ctx) error {
	accountID, err := c.ParamsInt("id")
	if err != nil || accountID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid account id"})
	}

	settings := models.GetAppSettings()
	if settings == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "not_ready", "message": "settings not loaded"})
	}

	calc := balance.NewCalculator(database.GetDB(), settings.GetHoldbackWindow())
	withdrawable, err := calc.Withdrawable(c.Context(), uint(accountID), time.Now())
	if err != nil {
		if errors.Is(err, balance.ErrAccountNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "account not found"})
		}
		log.Errorf("[API] Balance calculation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "balance calculation failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"account_id":   accountID,
		"withdrawable": withdrawable,
	})
}

// PostItemRetry requeues a failed item for another attempt.
func (s *APIServer) PostItemRetry(c *fiber.Ctx) error {
	itemID, err := c.ParamsInt("id")
	if err != nil || itemID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid item id"})
	}

	queue := jobqueue.GetManager().GetQueue()
	item, err := payout.RetryItem(database.GetDB(), queue, uint(itemID))
	if err != nil {
		switch {
		case errors.Is(err, payout.ErrItemNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "item not found"})
		case errors.Is(err, payout.ErrItemNotRetryable):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "item is not in a retryable state"})
		default:
			log.Errorf("[API] Item retry failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "item retry failed"})
		}
	}
	return c.Status(fiber.StatusOK).JSON(item)
}

// PostItemCancel cancels a pending item.
func (s *APIServer) PostItemCancel(c *fiber.Ctx) error {
	itemID, err := c.ParamsInt("id")
	if err != nil || itemID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid item id"})
	}

	queue := jobqueue.GetManager().GetQueue()
	item, err := payout.CancelItem(database.GetDB(), queue, uint(itemID))
	if err != nil {
		switch {
		case errors.Is(err, payout.ErrItemNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "item not found"})
		case errors.Is(err, payout.ErrItemNotCancelable):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "item is not in a cancelable state"})
		default:
			log.Errorf("[API] Item cancel failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "item cancel failed"})
		}
	}
	return c.Status(fiber.StatusOK).JSON(item)
}

// GetAccountLedger returns a page of an account's ledger entries, newest
// first. Operators use it to trace a balance back to its entries.
func (s *APIServer) GetAccountLedger(c *fiber.Ctx) error {
	accountID, err := c.ParamsInt("id")
	if err != nil || accountID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid account id"})
	}

	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)
	if offset < 0 || limit <= 0 || limit > 500 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid offset or limit"})
	}

	repos := repository.GetGlobalRepositories()
	exists, err := repos.Account.Exists(uint(accountID))
	if err != nil {
		log.Errorf("[API] Account lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "ledger lookup failed"})
	}
	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "account not found"})
	}

	entries, err := repos.Ledger.ListByAccount(uint(accountID), offset, limit)
	if err != nil {
		log.Errorf("[API] Ledger lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "ledger lookup failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"account_id": accountID,
		"offset":     offset,
		"limit":      limit,
		"entries":    entries,
	})
}

// GetQueueJob returns a single queue job by id. Completed jobs are removed
// from Redis, so they come back 404.
func (s *APIServer) GetQueueJob(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid job id"})
	}

	job, err := jobqueue.GetManager().GetQueue().GetJob(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "job not found"})
		}
		log.Errorf("[API] Job lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "job lookup failed"})
	}
	return c.Status(fiber.StatusOK).JSON(job)
}

// GetQueueStats exposes queue depths and job status counters to operators.
// Depths come from the queue repository; status counters from the queue's
// stats hash.
func (s *APIServer) GetQueueStats(c *fiber.Ctx) error {
	repos := repository.GetGlobalRepositories()

	pending, err := repos.Queue.GetListLength(jobqueue.JobQueueKey)
	if err != nil {
		log.Errorf("[API] Queue size lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "queue stats unavailable"})
	}
	processing, err := repos.Queue.GetListLength(jobqueue.JobProcessingKey)
	if err != nil {
		log.Errorf("[API] Processing size lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "queue stats unavailable"})
	}
	stats, err := jobqueue.GetManager().GetQueue().GetJobStats(c.Context())
	if err != nil {
		log.Errorf("[API] Job stats lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "queue stats unavailable"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"pending":    pending,
		"processing": processing,
		"job_stats":  stats,
	})
}
