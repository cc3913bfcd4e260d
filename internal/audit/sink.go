package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSink hands entries to the worker through the audit queue.
type QueueSink struct {
	client Enqueuer
}

// NewQueueSink constructs a QueueSink.
func NewQueueSink(client Enqueuer) *QueueSink {
	return &QueueSink{client: client}
}

// Write implements Sink.
func (s *QueueSink) Write(ctx context.Context, entry Entry) error {
	task, err := NewRecordTask(entry)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task, RecordTaskOptions(entry)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit: enqueue: %w", err)
	}
	return nil
}

// Store persists entries.
type Store interface {
	Insert(ctx context.Context, entry Entry) error
}

// StoreSink writes entries straight to the store.
type StoreSink struct {
	store Store
}

// NewStoreSink constructs a StoreSink.
func NewStoreSink(store Store) *StoreSink {
	return &StoreSink{store: store}
}

// Write implements Sink.
func (s *StoreSink) Write(ctx context.Context, entry Entry) error {
	return s.store.Insert(ctx, entry)
}
