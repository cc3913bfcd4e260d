package jobs

import (
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/audit"
)

const (
	// QueueDefault receives tasks that do not pick a queue.
	QueueDefault = "default"
	// AuditCleanupSpec runs the retention policy daily at 03:00 UTC.
	AuditCleanupSpec = "0 3 * * *"
)

// AuditHandlers binds the audit worker job to its task types.
func AuditHandlers(job *audit.Job) []TaskHandler {
	return []TaskHandler{
		{Type: audit.TaskRecord, Handler: job.HandleRecord},
		{Type: audit.TaskCleanup, Handler: job.HandleCleanup},
	}
}

// AuditCleanupCron schedules the retention task with retentionDays.
func AuditCleanupCron(retentionDays int) (CronRegistration, error) {
	task, err := audit.NewCleanupTask(retentionDays)
	if err != nil {
		return CronRegistration{}, err
	}
	return CronRegistration{
		Spec:    AuditCleanupSpec,
		Task:    task,
		Options: []asynq.Option{asynq.MaxRetry(3), asynq.Unique(time.Hour)},
	}, nil
}
