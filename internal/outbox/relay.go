// Package outbox publishes the sale events recorded in the outbox_events
// table. Events are claimed in a short transaction, published after commit
// and then marked processed, so a crash between publish and mark can only
// cause a duplicate, never a loss.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/safar/go-pos-store/internal/database"
	"github.com/safar/go-pos-store/internal/models"
	"github.com/safar/go-pos-store/internal/store"
	"go.uber.org/zap"
)

// NotifyChannel is the Postgres channel the outbox insert trigger notifies.
const NotifyChannel = "outbox_pending"

// ErrPublishFailed is returned by ProcessBatch when at least one claimed
// event could not be published.
var ErrPublishFailed = errors.New("outbox publish failed")

type Publisher interface {
	Publish(ctx context.Context, event models.OutboxEvent) error
}

type Options struct {
	PollInterval time.Duration
	BatchSize    int
	StaleAfter   time.Duration
	// RetryBackoff is the delay before a failed event is claimable again. It
	// doubles with every failed attempt up to MaxRetryBackoff.
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	// ListenDSN enables LISTEN/NOTIFY wake-ups in addition to polling.
	ListenDSN string
}

type Relay struct {
	db        *sql.DB
	publisher Publisher
	opts      Options
	logger    *zap.Logger
}

func NewRelay(db *sql.DB, publisher Publisher, opts Options, logger *zap.Logger) *Relay {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Minute
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.MaxRetryBackoff < opts.RetryBackoff {
		opts.MaxRetryBackoff = max(5*time.Minute, opts.RetryBackoff)
	}

	return &Relay{
		db:        db,
		publisher: publisher,
		opts:      opts,
		logger:    logger.Named("outbox"),
	}
}

// Run drains the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	var notify <-chan *pq.Notification
	if r.opts.ListenDSN != "" {
		listener := pq.NewListener(r.opts.ListenDSN, time.Second, time.Minute, r.onListenerEvent)
		if err := listener.Listen(NotifyChannel); err != nil {
			r.logger.Warn("listen for outbox notifications, falling back to polling", zap.Error(err))
			listener.Close()
		} else {
			defer listener.Close()
			notify = listener.Notify
		}
	}

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started",
		zap.Duration("poll_interval", r.opts.PollInterval),
		zap.Int("batch_size", r.opts.BatchSize),
	)

	for {
		r.requeueStale(ctx)
		r.drain(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
		case <-notify:
		}
	}
}

func (r *Relay) onListenerEvent(event pq.ListenerEventType, err error) {
	if err != nil {
		r.logger.Warn("outbox listener", zap.Int("event", int(event)), zap.Error(err))
	}
}

func (r *Relay) requeueStale(ctx context.Context) {
	n, err := store.RequeueStaleEvents(ctx, r.db, int(r.opts.StaleAfter.Seconds()))
	if err != nil {
		r.logger.Warn("requeue stale events", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("requeued stale events", zap.Int64("count", n))
	}
}

// drain publishes full batches until the backlog is empty or a batch has a
// failed publish; the rest waits for the next tick or notification.
func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		published, err := r.ProcessBatch(ctx)
		if err != nil {
			r.logger.Warn("outbox batch failed", zap.Int("published", published), zap.Error(err))
			return
		}
		if published < r.opts.BatchSize {
			return
		}
	}
}

// ProcessBatch claims up to BatchSize pending events and publishes them. It
// returns the number of events published. Events whose publish fails go back
// to pending with a growing delay, and the batch reports ErrPublishFailed.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	var events []models.OutboxEvent
	err := database.WithTransaction(ctx, r.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		events, err = store.ClaimPendingEvents(ctx, tx, r.opts.BatchSize)
		return err
	})
	if err != nil {
		return 0, err
	}

	published, failed := 0, 0
	for _, event := range events {
		log := r.logger.With(
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			zap.Int64("sale_id", event.SaleID),
		)

		if err := r.publisher.Publish(ctx, event); err != nil {
			failed++
			retryAfter := r.retryAfter(event.Attempts)
			log.Warn("publish event",
				zap.Int("attempt", event.Attempts+1),
				zap.Duration("retry_after", retryAfter),
				zap.Error(err),
			)
			if err := store.ReleaseEvent(context.WithoutCancel(ctx), r.db, event.ID, retryAfter); err != nil {
				log.Error("release event", zap.Error(err))
			}
			continue
		}
		published++

		if err := store.MarkEventProcessed(context.WithoutCancel(ctx), r.db, event.ID); err != nil {
			log.Error("mark event processed", zap.Error(err))
			continue
		}
		log.Debug("event published")
	}

	if failed > 0 {
		return published, fmt.Errorf("%w: %d of %d events", ErrPublishFailed, failed, len(events))
	}
	return published, nil
}

func (r *Relay) retryAfter(attempts int) time.Duration {
	backoff := r.opts.RetryBackoff
	for i := 0; i < attempts && backoff < r.opts.MaxRetryBackoff; i++ {
		backoff *= 2
	}
	return min(backoff, r.opts.MaxRetryBackoff)
}
