package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/creatorly/creatorpay/internal/pkg/database"
	"github.com/creatorly/creatorpay/internal/pkg/report"
)

// processReportExportJob handles a settlement report export job
func (q *Queue) processReportExportJob(ctx context.Context, job *Job) error {
	payload, err := ReportExportJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid report export payload: %w", err)
	}

	cfg, err := report.LoadConfig()
	if err != nil {
		return fmt.Errorf("report config: %w", err)
	}
	if !cfg.IsEnabled() {
		log.Infof("[JobQueue] Report export disabled, skipping batch %d", payload.BatchID)
		return nil
	}

	exporter, err := report.NewExporter(database.GetDB(), cfg)
	if err != nil {
		return err
	}
	return exporter.ExportBatch(ctx, payload.BatchID)
}
