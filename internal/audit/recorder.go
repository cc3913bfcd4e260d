package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const defaultEnqueueTimeout = 2 * time.Second

// Sink receives prepared entries.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, entry Entry) error

// Write implements Sink.
func (f SinkFunc) Write(ctx context.Context, entry Entry) error {
	return f(ctx, entry)
}

// Counter is satisfied by prometheus.Counter.
type Counter interface {
	Inc()
}

// Recorder is the fire-and-forget front door for audit logging.
// Log never fails the caller; lost entries are logged and counted.
type Recorder struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration
	dropped Counter
	now     func() time.Time
	newID   func() uuid.UUID
}

// Option customises a Recorder.
type Option func(*Recorder)

// WithTimeout bounds how long Log waits on the sink.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithDropCounter counts entries that could not be delivered.
func WithDropCounter(c Counter) Option {
	return func(r *Recorder) { r.dropped = c }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder constructs a Recorder writing to sink.
func NewRecorder(sink Sink, logger *slog.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		sink:    sink,
		logger:  logger,
		timeout: defaultEnqueueTimeout,
		now:     time.Now,
		newID:   uuid.New,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Log records entry. Missing tenant, user, ip and user agent are taken from ctx.
func (r *Recorder) Log(ctx context.Context, entry Entry) {
	if r == nil || r.sink == nil {
		return
	}
	entry = r.prepare(ctx, entry)
	if entry.EntityType == "" || !entry.Action.Valid() {
		r.drop(entry, fmt.Errorf("audit: invalid entry (entity_type=%q action=%q)", entry.EntityType, entry.Action))
		return
	}

	// Detach from request cancellation; the entry must outlive a client disconnect.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.write(writeCtx, entry); err != nil {
		r.drop(entry, err)
	}
}

func (r *Recorder) write(ctx context.Context, entry Entry) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("audit: sink panic: %v", rec)
		}
	}()
	return r.sink.Write(ctx, entry)
}

func (r *Recorder) prepare(ctx context.Context, entry Entry) Entry {
	if entry.ID == uuid.Nil {
		entry.ID = r.newID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now().UTC()
	}
	if actor, ok := shared.ActorFromContext(ctx); ok {
		if entry.TenantID == 0 {
			entry.TenantID = actor.TenantID
		}
		if entry.UserID == 0 {
			entry.UserID = actor.UserID
		}
		if entry.IPAddress == "" {
			entry.IPAddress = actor.IP
		}
		if entry.UserAgent == "" {
			entry.UserAgent = actor.UserAgent
		}
	}
	return entry
}

func (r *Recorder) drop(entry Entry, err error) {
	if r.dropped != nil {
		r.dropped.Inc()
	}
	level := slog.LevelWarn
	if errors.Is(err, context.DeadlineExceeded) {
		level = slog.LevelError
	}
	r.logger.Log(context.Background(), level, "audit entry dropped",
		slog.String("id", entry.ID.String()),
		slog.String("entity_type", entry.EntityType),
		slog.String("entity_id", entry.EntityID),
		slog.String("action", string(entry.Action)),
		slog.Any("error", err),
	)
}
