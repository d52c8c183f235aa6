package events

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/metrics"
	"go.uber.org/zap"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OutboxStore is the slice of *database.Queries the relay needs.
type OutboxStore interface {
	ListUnpublishedOutboxEvents(ctx context.Context, limit int32) ([]database.OutboxEvent, error)
	MarkOutboxEventsPublished(ctx context.Context, ids []int64) error
}

// NewOutboxStore builds an OutboxStore bound to a pool or transaction.
type NewOutboxStore func(db database.DBTX) OutboxStore

type RelayOptions struct {
	Interval  time.Duration
	BatchSize int32
	Metrics   *metrics.Metrics
}

// Relay drains the outbox into a Publisher. Rows are marked published only
// after the sink accepted them, so a crash in between causes a redelivery,
// never a loss.
type Relay struct {
	pool     TxBeginner
	newStore NewOutboxStore
	pub      Publisher
	log      *zap.SugaredLogger
	interval time.Duration
	batch    int32
	metrics  *metrics.Metrics
	kick     chan struct{}
}

func NewRelay(pool TxBeginner, newStore NewOutboxStore, pub Publisher, log *zap.SugaredLogger, opts RelayOptions) *Relay {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Relay{
		pool:     pool,
		newStore: newStore,
		pub:      pub,
		log:      log,
		interval: opts.Interval,
		batch:    opts.BatchSize,
		metrics:  opts.Metrics,
		kick:     make(chan struct{}, 1),
	}
}

// Notify wakes the relay after a commit. It never blocks.
func (r *Relay) Notify() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run drains on every Notify and on every tick until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Infow("outbox relay started", "interval", r.interval, "batch_size", r.batch)
	for {
		select {
		case <-ctx.Done():
			r.log.Infow("outbox relay stopped")
			return nil
		case <-ticker.C:
		case <-r.kick:
		}
		r.drainAll(ctx)
	}
}

func (r *Relay) drainAll(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.Drain(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.metrics.RelayError()
				r.log.Warnw("outbox drain failed", "error", err, "published", n)
			}
			return
		}
		if n < int(r.batch) {
			return
		}
	}
}

// Drain publishes one batch and returns how many rows it marked.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := r.newStore(tx)

	rows, err := store.ListUnpublishedOutboxEvents(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("list outbox: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(rows))
	var pubErr error
	for _, row := range rows {
		if err := r.pub.Publish(ctx, FromOutbox(row)); err != nil {
			pubErr = fmt.Errorf("publish outbox event %d: %w", row.ID, err)
			break
		}
		published = append(published, row.ID)
	}

	if len(published) > 0 {
		if err := store.MarkOutboxEventsPublished(ctx, published); err != nil {
			return 0, fmt.Errorf("mark outbox published: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, fmt.Errorf("commit tx: %w", err)
		}
		r.metrics.Relayed(len(published))
	}
	return len(published), pubErr
}
