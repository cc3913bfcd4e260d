package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

type countingCounter struct{ n int }

func (c *countingCounter) Inc() { c.n++ }

func TestLogFillsContextAndDelivers(t *testing.T) {
	repo := &memoryAuditRepo{}
	fixed := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	rec := NewRecorder(NewStoreSink(repo), slog.Default(), WithClock(func() time.Time { return fixed }))

	ctx := shared.ContextWithActor(context.Background(), shared.Actor{TenantID: 4, UserID: 9, IP: "10.0.0.1", UserAgent: "curl/8"})
	rec.Log(ctx, Event("purchase", 12, ActionCreate, nil, map[string]string{"number": "PUR-00001"}))

	require.Len(t, repo.entries, 1)
	got := repo.entries[0]
	require.NotEqual(t, uuid.Nil, got.ID)
	require.EqualValues(t, 4, got.TenantID)
	require.EqualValues(t, 9, got.UserID)
	require.Equal(t, "10.0.0.1", got.IPAddress)
	require.Equal(t, "curl/8", got.UserAgent)
	require.Equal(t, "12", got.EntityID)
	require.Equal(t, fixed, got.Timestamp)
	require.JSONEq(t, `{"number":"PUR-00001"}`, string(got.NewValue))
	require.Nil(t, got.OldValue)
}

func TestLogWithFailingSinkReturnsNormally(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	counter := &countingCounter{}
	sink := SinkFunc(func(ctx context.Context, e Entry) error { return errors.New("redis down") })
	rec := NewRecorder(sink, logger, WithDropCounter(counter))

	require.NotPanics(t, func() {
		rec.Log(context.Background(), Event("order", 1, ActionUpdate, nil, nil))
	})
	require.Equal(t, 1, counter.n)
	require.Contains(t, buf.String(), "audit entry dropped")
	require.Contains(t, buf.String(), "redis down")
}

func TestLogSurvivesPanickingSink(t *testing.T) {
	counter := &countingCounter{}
	sink := SinkFunc(func(ctx context.Context, e Entry) error { panic("boom") })
	rec := NewRecorder(sink, slog.Default(), WithDropCounter(counter))
	require.NotPanics(t, func() {
		rec.Log(context.Background(), Event("order", 1, ActionDelete, nil, nil))
	})
	require.Equal(t, 1, counter.n)
}

func TestLogIgnoresRequestCancellation(t *testing.T) {
	var sawErr error
	sink := SinkFunc(func(ctx context.Context, e Entry) error {
		sawErr = ctx.Err()
		return nil
	})
	rec := NewRecorder(sink, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Log(ctx, Event("grn", 3, ActionCreate, nil, nil))
	require.NoError(t, sawErr)
}

func TestLogRejectsUnknownAction(t *testing.T) {
	repo := &memoryAuditRepo{}
	counter := &countingCounter{}
	rec := NewRecorder(NewStoreSink(repo), slog.Default(), WithDropCounter(counter))
	rec.Log(context.Background(), Entry{EntityType: "x", EntityID: "1", Action: "explode"})
	require.Empty(t, repo.entries)
	require.Equal(t, 1, counter.n)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	require.NotPanics(t, func() { rec.Log(context.Background(), Entry{}) })
}
