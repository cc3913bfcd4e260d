package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueAudit isolates audit persistence from other background work.
	QueueAudit = "audit"
	// TaskRecord persists one audit entry.
	TaskRecord = "audit:record"
	// TaskCleanup applies the retention policy.
	TaskCleanup = "audit:cleanup"

	recordMaxRetry = 5
)

// NewRecordTask wraps entry in an asynq task.
func NewRecordTask(entry Entry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("audit: encode task: %w", err)
	}
	return asynq.NewTask(TaskRecord, data), nil
}

// RecordTaskOptions are the enqueue options for a record task. The entry id
// doubles as task id so a retried enqueue does not duplicate work.
func RecordTaskOptions(entry Entry) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(QueueAudit),
		asynq.MaxRetry(recordMaxRetry),
		asynq.TaskID(entry.ID.String()),
	}
}

// CleanupPayload carries the retention window for TaskCleanup.
type CleanupPayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewCleanupTask builds the scheduled retention task.
func NewCleanupTask(retentionDays int) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCleanup, data, asynq.Queue(QueueAudit)), nil
}

// Cleaner removes logs past retention.
type Cleaner interface {
	CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error)
}

// Job processes audit tasks on the worker.
type Job struct {
	store   Store
	cleaner Cleaner
	logger  *slog.Logger
}

// NewJob constructs the audit worker job.
func NewJob(store Store, cleaner Cleaner, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{store: store, cleaner: cleaner, logger: logger}
}

// HandleRecord persists an entry. Insert is idempotent on the entry id, so retries are safe.
func (j *Job) HandleRecord(ctx context.Context, t *asynq.Task) error {
	var entry Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		j.logger.Error("audit record payload", slog.Any("error", err))
		return fmt.Errorf("audit: decode record: %v: %w", err, asynq.SkipRetry)
	}
	if err := j.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("audit: persist %s: %w", entry.ID, err)
	}
	return nil
}

// HandleCleanup runs the retention policy.
func (j *Job) HandleCleanup(ctx context.Context, t *asynq.Task) error {
	var payload CleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("audit: decode cleanup: %v: %w", err, asynq.SkipRetry)
	}
	deleted, err := j.cleaner.CleanupOldLogs(ctx, payload.RetentionDays)
	if err != nil {
		return err
	}
	j.logger.Info("audit cleanup", slog.Int("retention_days", payload.RetentionDays), slog.Int64("deleted", deleted))
	return nil
}
