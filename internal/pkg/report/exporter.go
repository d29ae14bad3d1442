package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/creatorly/creatorpay/app/models"
)

// Exporter renders a batch settlement report as CSV and uploads it to S3.
type Exporter struct {
	db       *gorm.DB
	s3Client *s3.Client
	config   *Config
}

// NewExporter creates an exporter with an S3 client built from the config.
func NewExporter(db *gorm.DB, cfg *Config) (*Exporter, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("report export is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	return &Exporter{db: db, s3Client: s3Client, config: cfg}, nil
}

// ExportBatch renders and uploads the settlement report for a batch.
// Re-running overwrites the same object key, so duplicate job deliveries
// converge on one report.
func (e *Exporter) ExportBatch(ctx context.Context, batchID uint) error {
	var batch models.PayoutBatch
	if err := e.db.First(&batch, batchID).Error; err != nil {
		return fmt.Errorf("batch load failed: %w", err)
	}

	var items []models.PayoutItem
	if err := e.db.Where("batch_id = ?", batchID).Order("id ASC").Find(&items).Error; err != nil {
		return fmt.Errorf("item load failed: %w", err)
	}

	body, err := renderCSV(&batch, items)
	if err != nil {
		return err
	}

	objectKey := e.config.GetObjectKey(batch.ID, batch.ScheduledDate)
	_, err = e.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.config.BucketName),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("text/csv"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload report: %w", err)
	}

	log.Infof("[Report] Exported batch %d settlement report: s3://%s/%s (%d items)",
		batch.ID, e.config.BucketName, objectKey, len(items))
	return nil
}

// renderCSV writes one row per item with amounts in major units.
func renderCSV(batch *models.PayoutBatch, items []models.PayoutItem) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"batch_id", "scheduled_date", "item_id", "account_id", "amount", "status", "external_transfer_id", "attempts", "error"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("csv write failed: %w", err)
	}

	date := batch.ScheduledDate.Format("2006-01-02")
	for _, item := range items {
		amount := decimal.New(item.Amount, -2).StringFixed(2)
		row := []string{
			strconv.FormatUint(uint64(batch.ID), 10),
			date,
			strconv.FormatUint(uint64(item.ID), 10),
			strconv.FormatUint(uint64(item.AccountID), 10),
			amount,
			string(item.Status),
			item.ExternalTransferID,
			strconv.Itoa(item.AttemptCount),
			item.ErrorMessage,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("csv write failed: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush failed: %w", err)
	}
	return buf.Bytes(), nil
}
