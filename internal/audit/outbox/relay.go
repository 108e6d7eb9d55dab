// Package outbox relays committed audit entries from the outbox table to Kafka.
//
// Delivery is at least once: a batch is published before it is marked, so a crash
// between the two republishes it. Consumers deduplicate on the entry ID carried in
// the record header.
package outbox

import (
	"context"
	"log/slog"
	"time"

	auditmetrics "projectdesk/internal/audit/metrics"
	"projectdesk/internal/audit/models"
	"projectdesk/internal/platform/kafka"
	"projectdesk/internal/platform/txscope"
)

const (
	DefaultInterval  = time.Second
	DefaultBatchSize = 100

	lockKey = "audit-outbox"
)

type Store interface {
	PendingOutbox(ctx context.Context, limit int) ([]models.OutboxMessage, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}

type Publisher interface {
	Publish(ctx context.Context, msgs []kafka.Message) error
}

type Relay struct {
	store     Store
	publisher Publisher
	tx        txscope.Scope
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *auditmetrics.Metrics
	now       func() time.Time
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *auditmetrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func New(store Store, publisher Publisher, tx txscope.Scope, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		tx:        tx,
		interval:  DefaultInterval,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the outbox every interval until ctx is cancelled. A failed batch is
// logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				n, err := r.DrainOnce(ctx)
				if err != nil {
					if r.logger != nil {
						r.logger.ErrorContext(ctx, "audit outbox relay failed", "error", err)
					}
					break
				}
				if n < r.batchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// DrainOnce publishes and marks one batch, returning how many messages it moved.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	start := time.Now()
	published := 0
	err := r.tx.RunInTx(ctx, lockKey, func(ctx context.Context) error {
		pending, err := r.store.PendingOutbox(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		msgs := make([]kafka.Message, 0, len(pending))
		ids := make([]string, 0, len(pending))
		for _, m := range pending {
			msgs = append(msgs, kafka.Message{
				Key:   m.Key,
				Value: m.Payload,
				Headers: map[string]string{
					"event_type": m.EventType,
					"entry_id":   m.EntryID,
				},
			})
			ids = append(ids, m.ID)
		}

		if err := r.publisher.Publish(ctx, msgs); err != nil {
			if r.metrics != nil {
				r.metrics.IncPublishFailures()
			}
			return err
		}
		if err := r.store.MarkPublished(ctx, ids, r.now()); err != nil {
			return err
		}
		published = len(pending)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if r.metrics != nil && published > 0 {
		r.metrics.AddPublished(published)
		r.metrics.ObserveRelayBatch(time.Since(start).Seconds())
	}
	if r.logger != nil && published > 0 {
		r.logger.DebugContext(ctx, "audit outbox batch published", "count", published)
	}
	return published, nil
}
