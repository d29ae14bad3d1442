package jobqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/internal/pkg/database"
	"github.com/creatorly/creatorpay/internal/pkg/gateway"
	"github.com/creatorly/creatorpay/internal/pkg/payout"
)

var (
	payoutWorkerMu sync.Mutex
	payoutWorker   *payout.Worker
	gatewayClient  gateway.Client
)

// SetGatewayClient installs the gateway client used by chunk processing.
// Called once at startup; tests install fakes here.
func SetGatewayClient(client gateway.Client) {
	payoutWorkerMu.Lock()
	defer payoutWorkerMu.Unlock()
	gatewayClient = client
	payoutWorker = nil
}

// getPayoutWorker returns the process-wide payout worker. A single instance
// is shared by all queue workers so the transfer semaphore bounds in-flight
// gateway calls globally. The reports enqueuer receives the export job when
// a chunk closes its batch.
func getPayoutWorker(reports payout.ReportEnqueuer) (*payout.Worker, error) {
	payoutWorkerMu.Lock()
	defer payoutWorkerMu.Unlock()

	if payoutWorker != nil {
		return payoutWorker, nil
	}
	if gatewayClient == nil {
		gatewayClient = gateway.NewClientFromEnv()
	}
	settings := models.GetAppSettings()
	if settings == nil {
		return nil, fmt.Errorf("application settings not loaded")
	}
	payoutWorker = payout.NewWorker(database.GetDB(), gatewayClient, reports, payout.WorkerConfigFromSettings(settings))
	return payoutWorker, nil
}

// processPayoutChunkJob handles a payout chunk job
func (q *Queue) processPayoutChunkJob(ctx context.Context, job *Job) error {
	payload, err := PayoutChunkJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid payout chunk payload: %w", err)
	}

	worker, err := getPayoutWorker(q)
	if err != nil {
		return err
	}
	return worker.ProcessChunk(ctx, payload.BatchID, payload.ItemIDs)
}
