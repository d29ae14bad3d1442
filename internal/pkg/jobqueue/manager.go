package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/app/repository"
	"github.com/creatorly/creatorpay/internal/pkg/database"
	"github.com/creatorly/creatorpay/internal/pkg/gateway"
	"github.com/creatorly/creatorpay/internal/pkg/metrics/counter"
	"github.com/creatorly/creatorpay/internal/pkg/payout"
)

// Manager manages the global job queue and the payout background tasks:
// retry sweeps, reconciliation, batch finalization and counter flushing.
type Manager struct {
	queue              *Queue
	retryTicker        *time.Ticker
	reconcileTicker    *time.Ticker
	finalizeTicker     *time.Ticker
	counterFlushTicker *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := 5
		if settings := getAppSettings(); settings != nil {
			workerCount = settings.GetWorkerCount()
		}

		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	retryInterval := 60 * time.Minute
	reconcileInterval := 5 * time.Minute
	if settings := getAppSettings(); settings != nil {
		retryInterval = settings.GetRetryInterval()
		reconcileInterval = settings.GetReconcileInterval()
	}

	m.retryTicker = time.NewTicker(retryInterval)
	m.wg.Add(1)
	go m.retryWorker()

	m.reconcileTicker = time.NewTicker(reconcileInterval)
	m.wg.Add(1)
	go m.reconcileWorker()

	// Finalization runs on the reconcile cadence; it closes batches whose
	// last item was settled by a webhook or the reconciler.
	m.finalizeTicker = time.NewTicker(reconcileInterval)
	m.wg.Add(1)
	go m.finalizeWorker()

	// Counter flush worker (Redis -> DB) every 5 seconds
	m.counterFlushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.counterFlushWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.retryTicker != nil {
		m.retryTicker.Stop()
	}
	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}
	if m.finalizeTicker != nil {
		m.finalizeTicker.Stop()
	}
	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}

	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// retryWorker runs periodically to re-enqueue retryable payout items
func (m *Manager) retryWorker() {
	defer m.wg.Done()
	log.Info("[JobQueue Manager] Started retry worker")

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Retry worker stopping")
			return
		case <-m.retryTicker.C:
			if err := m.RunRetrySweepOnce(); err != nil {
				log.Errorf("[JobQueue Manager] Retry sweep error: %v", err)
			}
		}
	}
}

// reconcileWorker runs periodically to resolve stuck processing items
func (m *Manager) reconcileWorker() {
	defer m.wg.Done()
	log.Info("[JobQueue Manager] Started reconcile worker")

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Reconcile worker stopping")
			return
		case <-m.reconcileTicker.C:
			if err := m.RunReconcileOnce(); err != nil {
				log.Errorf("[JobQueue Manager] Reconcile error: %v", err)
			}
		}
	}
}

// finalizeWorker periodically recomputes open batch aggregates
func (m *Manager) finalizeWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Finalize worker stopping")
			return
		case <-m.finalizeTicker.C:
			if err := payout.FinalizeOpenBatches(database.GetDB(), m.queue); err != nil {
				log.Errorf("[JobQueue Manager] Finalize error: %v", err)
			}
		}
	}
}

// counterFlushWorker periodically flushes pending counters from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			if err := counter.FlushAll(); err != nil {
				log.Errorf("[JobQueue Manager] Counter flush error: %v", err)
			}
		}
	}
}

// RunRetrySweepOnce exposes a manual trigger for a single retry sweep (operator use).
func (m *Manager) RunRetrySweepOnce() error {
	settings := getAppSettings()
	if settings == nil {
		return fmt.Errorf("application settings not loaded")
	}
	repos := repository.GetGlobalRepositories()
	scheduler := payout.NewRetryScheduler(repos.Payout, m.queue, payout.RetryConfigFromSettings(settings))
	return scheduler.Run(context.Background())
}

// RunReconcileOnce exposes a manual trigger for a single reconcile sweep (operator use).
func (m *Manager) RunReconcileOnce() error {
	settings := getAppSettings()
	if settings == nil {
		return fmt.Errorf("application settings not loaded")
	}
	repos := repository.GetGlobalRepositories()
	gw := getReconcileGateway()
	reconciler := payout.NewReconciler(database.GetDB(), repos.Payout, gw, payout.ReconcileConfigFromSettings(settings))
	return reconciler.Run(context.Background())
}

// getReconcileGateway reuses the chunk processor's gateway client.
func getReconcileGateway() gateway.Client {
	payoutWorkerMu.Lock()
	defer payoutWorkerMu.Unlock()
	if gatewayClient == nil {
		gatewayClient = gateway.NewClientFromEnv()
	}
	return gatewayClient
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// getAppSettings safely returns the current app settings
func getAppSettings() *models.AppSettings {
	return models.GetAppSettings()
}
