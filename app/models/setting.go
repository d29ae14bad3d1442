package models

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Setting represents a system setting row.
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, boolean, integer, decimal
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppSettings is the runtime payout configuration loaded from the settings
// table. All durations are expressed in their smallest sensible unit so
// operators can tune them without a deploy.
type AppSettings struct {
	PayoutsEnabled           bool   `json:"payouts_enabled"`
	MinimumPayout            string `json:"minimum_payout" validate:"required"` // decimal major units, e.g. "50.00"
	HoldbackDays             int    `json:"holdback_days" validate:"min=0,max=90"`
	ChunkSize                int    `json:"chunk_size" validate:"min=1,max=500"`
	WorkerCount              int    `json:"worker_count" validate:"min=1,max=50"`
	TransferConcurrency      int    `json:"transfer_concurrency" validate:"min=1,max=50"`
	MaxAttempts              int    `json:"max_attempts" validate:"min=1,max=20"`
	RetryBaseDelayMinutes    int    `json:"retry_base_delay_minutes" validate:"min=1"`
	RetryMaxDelayMinutes     int    `json:"retry_max_delay_minutes" validate:"min=1"`
	StuckThresholdMinutes    int    `json:"stuck_threshold_minutes" validate:"min=1"`
	RetryIntervalMinutes     int    `json:"retry_interval_minutes" validate:"min=1"`
	ReconcileIntervalMinutes int    `json:"reconcile_interval_minutes" validate:"min=1"`
}

// Global settings instance
var (
	appSettings *AppSettings
	settingsMu  sync.RWMutex
)

func defaultAppSettings() *AppSettings {
	return &AppSettings{
		PayoutsEnabled:           true,
		MinimumPayout:            "50.00",
		HoldbackDays:             7,
		ChunkSize:                25,
		WorkerCount:              5,
		TransferConcurrency:      5,
		MaxAttempts:              5,
		RetryBaseDelayMinutes:    60,
		RetryMaxDelayMinutes:     1440,
		StuckThresholdMinutes:    30,
		RetryIntervalMinutes:     60,
		ReconcileIntervalMinutes: 5,
	}
}

// GetAppSettings returns the current application settings.
func GetAppSettings() *AppSettings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return appSettings
}

// SetAppSettingsForTest installs settings directly, bypassing the database.
func SetAppSettingsForTest(s *AppSettings) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	appSettings = s
}

// LoadSettings loads settings from the database into memory.
func LoadSettings(db *gorm.DB) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	appSettings = defaultAppSettings()

	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	for _, setting := range settings {
		switch setting.Key {
		case "payouts_enabled":
			appSettings.PayoutsEnabled = setting.Value == "true"
		case "minimum_payout":
			appSettings.MinimumPayout = setting.Value
		case "holdback_days":
			applyInt(setting.Value, &appSettings.HoldbackDays)
		case "chunk_size":
			applyInt(setting.Value, &appSettings.ChunkSize)
		case "worker_count":
			applyInt(setting.Value, &appSettings.WorkerCount)
		case "transfer_concurrency":
			applyInt(setting.Value, &appSettings.TransferConcurrency)
		case "max_attempts":
			applyInt(setting.Value, &appSettings.MaxAttempts)
		case "retry_base_delay_minutes":
			applyInt(setting.Value, &appSettings.RetryBaseDelayMinutes)
		case "retry_max_delay_minutes":
			applyInt(setting.Value, &appSettings.RetryMaxDelayMinutes)
		case "stuck_threshold_minutes":
			applyInt(setting.Value, &appSettings.StuckThresholdMinutes)
		case "retry_interval_minutes":
			applyInt(setting.Value, &appSettings.RetryIntervalMinutes)
		case "reconcile_interval_minutes":
			applyInt(setting.Value, &appSettings.ReconcileIntervalMinutes)
		}
	}

	return appSettings.Validate()
}

// SaveSettings validates and persists settings to the database.
func SaveSettings(db *gorm.DB, settings *AppSettings) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	if err := settings.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	settingsMap := map[string]string{
		"payouts_enabled":            fmt.Sprintf("%t", settings.PayoutsEnabled),
		"minimum_payout":             settings.MinimumPayout,
		"holdback_days":              strconv.Itoa(settings.HoldbackDays),
		"chunk_size":                 strconv.Itoa(settings.ChunkSize),
		"worker_count":               strconv.Itoa(settings.WorkerCount),
		"transfer_concurrency":       strconv.Itoa(settings.TransferConcurrency),
		"max_attempts":               strconv.Itoa(settings.MaxAttempts),
		"retry_base_delay_minutes":   strconv.Itoa(settings.RetryBaseDelayMinutes),
		"retry_max_delay_minutes":    strconv.Itoa(settings.RetryMaxDelayMinutes),
		"stuck_threshold_minutes":    strconv.Itoa(settings.StuckThresholdMinutes),
		"retry_interval_minutes":     strconv.Itoa(settings.RetryIntervalMinutes),
		"reconcile_interval_minutes": strconv.Itoa(settings.ReconcileIntervalMinutes),
	}

	for key, value := range settingsMap {
		var setting Setting
		result := db.Where("setting_key = ?", key).First(&setting)

		if result.Error != nil {
			if result.Error == gorm.ErrRecordNotFound {
				setting = Setting{Key: key, Value: value, Type: settingType(key)}
				if err := db.Create(&setting).Error; err != nil {
					return fmt.Errorf("failed to create setting %s: %w", key, err)
				}
			} else {
				return fmt.Errorf("failed to query setting %s: %w", key, result.Error)
			}
		} else {
			setting.Value = value
			if err := db.Save(&setting).Error; err != nil {
				return fmt.Errorf("failed to update setting %s: %w", key, err)
			}
		}
	}

	appSettings = settings
	return nil
}

// Validate checks the settings against their constraints, including that
// the minimum payout parses as a non-negative decimal amount.
func (s *AppSettings) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return err
	}
	min, err := decimal.NewFromString(s.MinimumPayout)
	if err != nil {
		return fmt.Errorf("minimum_payout %q is not a decimal amount: %w", s.MinimumPayout, err)
	}
	if min.IsNegative() {
		return fmt.Errorf("minimum_payout must not be negative")
	}
	return nil
}

// GetMinimumPayoutMinorUnits converts the configured decimal minimum
// (major units) to integer minor units.
func (s *AppSettings) GetMinimumPayoutMinorUnits() int64 {
	min, err := decimal.NewFromString(s.MinimumPayout)
	if err != nil {
		return 0
	}
	return min.Shift(2).IntPart()
}

// GetHoldbackWindow returns the chargeback holdback window as a duration.
func (s *AppSettings) GetHoldbackWindow() time.Duration {
	return time.Duration(s.HoldbackDays) * 24 * time.Hour
}

// GetWorkerCount returns the queue worker count.
func (s *AppSettings) GetWorkerCount() int { return s.WorkerCount }

// GetChunkSize returns the payout chunk size.
func (s *AppSettings) GetChunkSize() int { return s.ChunkSize }

// GetTransferConcurrency returns the global in-flight gateway call bound.
func (s *AppSettings) GetTransferConcurrency() int { return s.TransferConcurrency }

// GetMaxAttempts returns the per-item transfer attempt budget.
func (s *AppSettings) GetMaxAttempts() int { return s.MaxAttempts }

// GetRetryBaseDelay returns the backoff base delay.
func (s *AppSettings) GetRetryBaseDelay() time.Duration {
	return time.Duration(s.RetryBaseDelayMinutes) * time.Minute
}

// GetRetryMaxDelay returns the backoff cap.
func (s *AppSettings) GetRetryMaxDelay() time.Duration {
	return time.Duration(s.RetryMaxDelayMinutes) * time.Minute
}

// GetStuckThreshold returns how long an item may sit in processing before
// reconciliation treats it as stuck.
func (s *AppSettings) GetStuckThreshold() time.Duration {
	return time.Duration(s.StuckThresholdMinutes) * time.Minute
}

// GetRetryInterval returns how often the retry scheduler runs.
func (s *AppSettings) GetRetryInterval() time.Duration {
	return time.Duration(s.RetryIntervalMinutes) * time.Minute
}

// GetReconcileInterval returns how often the reconciliation job runs.
func (s *AppSettings) GetReconcileInterval() time.Duration {
	return time.Duration(s.ReconcileIntervalMinutes) * time.Minute
}

func applyInt(value string, dst *int) {
	if v, err := strconv.Atoi(value); err == nil {
		*dst = v
	}
}

func settingType(key string) string {
	switch key {
	case "payouts_enabled":
		return "boolean"
	case "minimum_payout":
		return "decimal"
	default:
		return "integer"
	}
}
