package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/creatorly/creatorpay/internal/pkg/env"
)

// Config holds settlement report export configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads report export configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("REPORT_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("REPORT_S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("REPORT_S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("REPORT_S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("REPORT_S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("REPORT_EXPORT_ENABLED", "false") == "true",
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("REPORT_S3_ACCESS_KEY_ID is required when report export is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("REPORT_S3_SECRET_ACCESS_KEY is required when report export is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("REPORT_S3_BUCKET_NAME is required when report export is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if report export is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// GetObjectKey generates the S3 object key for a batch settlement report.
// Format: payouts/YYYY/MM/batch-<id>-<date>.csv
func (c *Config) GetObjectKey(batchID uint, scheduledDate time.Time) string {
	return fmt.Sprintf("payouts/%04d/%02d/batch-%d-%s.csv",
		scheduledDate.Year(), int(scheduledDate.Month()), batchID, scheduledDate.Format("2006-01-02"))
}
