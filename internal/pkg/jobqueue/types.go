package jobqueue

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// JobType defines the type of job
type JobType string

const (
	JobTypePayoutChunk  JobType = "payout_chunk"
	JobTypeReportExport JobType = "report_export"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job. Delivery is at-least-once: a job may run
// more than once after crashes or sweeper recovery, so every processor must
// be idempotent.
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

var payloadValidator = validator.New()

// PayoutChunkJobPayload identifies one chunk of payout items to process.
type PayoutChunkJobPayload struct {
	BatchID uint   `json:"batch_id" validate:"required"`
	ItemIDs []uint `json:"item_ids" validate:"required,min=1,dive,required"`
}

// ToMap converts the payload to a map for storage
func (p PayoutChunkJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"batch_id": p.BatchID,
		"item_ids": p.ItemIDs,
	}
}

// Validate checks the payload before it crosses the queue boundary.
func (p PayoutChunkJobPayload) Validate() error {
	return payloadValidator.Struct(p)
}

// PayoutChunkJobPayloadFromMap creates a payload from a map
func PayoutChunkJobPayloadFromMap(data map[string]interface{}) (*PayoutChunkJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload PayoutChunkJobPayload
	if err := json.Unmarshal(jsonData, &payload); err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ReportExportJobPayload identifies a batch whose settlement report should
// be exported.
type ReportExportJobPayload struct {
	BatchID uint `json:"batch_id" validate:"required"`
}

// ToMap converts the payload to a map for storage
func (p ReportExportJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"batch_id": p.BatchID,
	}
}

// Validate checks the payload before it crosses the queue boundary.
func (p ReportExportJobPayload) Validate() error {
	return payloadValidator.Struct(p)
}

// ReportExportJobPayloadFromMap creates a payload from a map
func ReportExportJobPayloadFromMap(data map[string]interface{}) (*ReportExportJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ReportExportJobPayload
	if err := json.Unmarshal(jsonData, &payload); err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
