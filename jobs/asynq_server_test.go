package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/audit"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
)

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func serveHealth(t *testing.T, inspector QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(inspector, nil).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rr
}

func TestHealthReportsAuditQueue(t *testing.T) {
	rr := serveHealth(t, stubInspector{info: &asynq.QueueInfo{
		Queue: audit.QueueAudit, Pending: 4, Retry: 1, Latency: 1500 * time.Millisecond,
	}})
	require.Equal(t, http.StatusOK, rr.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "audit", body.Queue)
	require.Equal(t, 4, body.Pending)
	require.Equal(t, 1, body.Retry)
	require.Equal(t, int64(1500), body.LatencyMS)
}

func TestHealthTreatsMissingQueueAsEmpty(t *testing.T) {
	rr := serveHealth(t, stubInspector{err: asynq.ErrQueueNotFound})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serveHealth(t, stubInspector{err: errors.New("redis down")})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = serveHealth(t, nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

type memoryStore struct {
	entries []audit.Entry
}

func (m *memoryStore) Insert(ctx context.Context, entry audit.Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

type countingCleaner struct {
	days int
}

func (c *countingCleaner) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	c.days = retentionDays
	return 7, nil
}

func TestAuditHandlersProcessTasks(t *testing.T) {
	store := &memoryStore{}
	cleaner := &countingCleaner{}
	handlers := AuditHandlers(audit.NewJob(store, cleaner, nil))
	require.Len(t, handlers, 2)

	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	byType := make(map[string]asynq.HandlerFunc)
	for _, h := range handlers {
		byType[h.Type] = Instrument(metrics, h)
	}

	entry := audit.Event("purchase", 12, audit.ActionCreate, nil, map[string]string{"number": "PUR-00001"})
	entry.ID = uuid.New()
	entry.TenantID = 1
	task, err := audit.NewRecordTask(entry)
	require.NoError(t, err)
	require.NoError(t, byType[audit.TaskRecord](context.Background(), task))
	require.Len(t, store.entries, 1)
	require.Equal(t, entry.ID, store.entries[0].ID)

	cron, err := AuditCleanupCron(365)
	require.NoError(t, err)
	require.Equal(t, "0 3 * * *", cron.Spec)
	require.Equal(t, audit.TaskCleanup, cron.Task.Type())
	require.NoError(t, byType[audit.TaskCleanup](context.Background(), cron.Task))
	require.Equal(t, 365, cleaner.days)

	bad := asynq.NewTask(audit.TaskRecord, []byte("{"))
	err = byType[audit.TaskRecord](context.Background(), bad)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewWorkerRegistersCron(t *testing.T) {
	cron, err := AuditCleanupCron(30)
	require.NoError(t, err)
	w, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []CronRegistration{cron},
	})
	require.NoError(t, err)
	require.NotNil(t, w.scheduler)

	var nilWorker *Worker
	require.Error(t, nilWorker.Run(context.Background()))
}
