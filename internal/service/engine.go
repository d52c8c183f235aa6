package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/dispatch"
	"github.com/kiwari-pos/fulfillment/internal/ledger"
	"github.com/kiwari-pos/fulfillment/internal/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 10 * time.Millisecond
	maxBackoff         = 250 * time.Millisecond
)

// errStale means a CAS update matched no row: another writer bumped the
// version between our read and our write.
var errStale = errors.New("row version changed")

// Unique constraints that two racing units can both pass in their snapshot.
// The loser re-runs and sees the winner's row.
var raceConstraints = map[string]bool{
	"orders_branch_id_order_number_key":          true,
	"available_meals_branch_id_menu_item_id_key": true,
	"deliveries_order_id_key":                    true,
}

// Options tunes the Engine. Zero values fall back to defaults.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	// PointsRate is loyalty points earned per currency unit of order total.
	PointsRate decimal.Decimal
	TaxRate    decimal.Decimal
	Policy     dispatch.Policy
	Logger     *zap.SugaredLogger
	Metrics    *metrics.Metrics
	// Notify runs after every commit that wrote outbox rows.
	Notify func()
	Now    func() time.Time
}

// Engine runs every fulfillment command as one retried unit of work.
type Engine struct {
	pool     TxBeginner
	newStore NewStore
	opts     Options
	log      *zap.SugaredLogger
}

// NewEngine creates a new Engine.
func NewEngine(pool TxBeginner, newStore NewStore, opts Options) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.Policy == nil {
		opts.Policy = dispatch.LeastLoaded{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{pool: pool, newStore: newStore, opts: opts, log: log}
}

// unit is the state of one transaction attempt.
type unit struct {
	Store
	now     time.Time
	emitted []emitted
}

type emitted struct {
	entity string
	state  string
}

// emit writes an outbox row for a change made in this unit.
func (u *unit) emit(ctx context.Context, branchID uuid.UUID, entityType string, entityID uuid.UUID, state string, version int64, payload any) error {
	raw := []byte("{}")
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", entityType, err)
		}
		raw = b
	}
	if _, err := u.CreateOutboxEvent(ctx, database.CreateOutboxEventParams{
		BranchID:   branchID,
		EntityType: entityType,
		EntityID:   entityID,
		NewState:   state,
		Version:    version,
		Payload:    raw,
	}); err != nil {
		return fmt.Errorf("create outbox event: %w", err)
	}
	u.emitted = append(u.emitted, emitted{entity: entityType, state: state})
	return nil
}

func (u *unit) timestamp() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: u.now, Valid: true}
}

// runTx runs fn in a fresh transaction, re-running the whole unit when it
// lost a race. Business errors return on the first attempt.
func runTx[T any](ctx context.Context, e *Engine, command string, fn func(ctx context.Context, u *unit) (T, error)) (res T, err error) {
	start := time.Now()
	defer func() {
		e.opts.Metrics.Command(command, resultLabel(err), time.Since(start))
	}()

	var zero T
	for attempt := 1; ; attempt++ {
		var u *unit
		res, u, err = attemptTx(ctx, e, fn)
		if err == nil {
			e.committed(u)
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, contextError(command, ctxErr)
		}
		if !retryable(err) {
			return zero, err
		}
		if attempt >= e.opts.MaxAttempts {
			e.log.Warnw("giving up after repeated conflicts", "command", command, "attempts", attempt, "error", err)
			return zero, fmt.Errorf("%s: %w", command, ErrConflict)
		}
		e.opts.Metrics.Retry(command)
		e.log.Debugw("retrying unit", "command", command, "attempt", attempt, "error", err)
		if err := e.sleep(ctx, attempt); err != nil {
			return zero, contextError(command, err)
		}
	}
}

func attemptTx[T any](ctx context.Context, e *Engine, fn func(ctx context.Context, u *unit) (T, error)) (T, *unit, error) {
	var zero T

	// --- Begin transaction ---
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return zero, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	u := &unit{Store: e.newStore(tx), now: e.opts.Now()}
	res, err := fn(ctx, u)
	if err != nil {
		return zero, nil, err
	}

	// --- Commit ---
	if err := tx.Commit(ctx); err != nil {
		return zero, nil, fmt.Errorf("commit tx: %w", err)
	}
	return res, u, nil
}

func (e *Engine) committed(u *unit) {
	for _, ev := range u.emitted {
		e.opts.Metrics.Transition(ev.entity, ev.state)
	}
	if len(u.emitted) > 0 && e.opts.Notify != nil {
		e.opts.Notify()
	}
}

func (e *Engine) sleep(ctx context.Context, attempt int) error {
	d := e.opts.Backoff << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	d = d/2 + rand.N(d)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryable reports whether err came from losing a race rather than from
// the request itself.
func retryable(err error) bool {
	if errors.Is(err, errStale) || errors.Is(err, ledger.ErrStale) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		case "23505":
			return raceConstraints[pgErr.ConstraintName]
		}
	}
	return false
}

func contextError(command string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", command, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", command, err)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return Kind(err)
}

func optionalUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}

func optionalText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
