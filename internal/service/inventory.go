package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/ledger"
	"github.com/shopspring/decimal"
)

// moveStock appends one movement per inventory item in ascending id order,
// so two units touching the same items always lock them in the same order.
func (e *Engine) moveStock(ctx context.Context, u *unit, branchID uuid.UUID, changes map[uuid.UUID]decimal.Decimal, ref string, refID, actor uuid.UUID) ([]database.StockMovement, error) {
	ids := make([]uuid.UUID, 0, len(changes))
	for id, change := range changes {
		if !change.IsZero() {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

	movements := make([]database.StockMovement, 0, len(ids))
	for _, id := range ids {
		res, err := ledger.AppendStock(ctx, u, ledger.StockEntry{
			InventoryItemID: id,
			BranchID:        branchID,
			Change:          changes[id],
			ReferenceType:   ref,
			ReferenceID:     refID,
			CreatedBy:       actor,
		})
		if err != nil {
			return nil, err
		}
		if err := emitStock(ctx, u, res); err != nil {
			return nil, err
		}
		movements = append(movements, res.Movement)
	}
	return movements, nil
}

func emitStock(ctx context.Context, u *unit, res ledger.StockResult) error {
	item := res.Item
	return u.emit(ctx, item.BranchID, enum.EntityInventoryItem, item.ID, StockLevel(item), int64(item.Version), map[string]any{
		"quantity":       database.NumericToDecimal(item.Quantity).String(),
		"change":         database.NumericToDecimal(res.Movement.QuantityChange).String(),
		"reference_type": res.Movement.ReferenceType,
		"movement_id":    res.Movement.ID,
	})
}

func negated(m map[uuid.UUID]decimal.Decimal) map[uuid.UUID]decimal.Decimal {
	out := make(map[uuid.UUID]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = v.Neg()
	}
	return out
}

// StockLevel classifies an item against its minimum level.
func StockLevel(item database.InventoryItem) string {
	qty := database.NumericToDecimal(item.Quantity)
	switch {
	case !qty.IsPositive():
		return enum.StockLevelOut
	case qty.LessThanOrEqual(database.NumericToDecimal(item.MinStockLevel)):
		return enum.StockLevelLow
	default:
		return enum.StockLevelOK
	}
}

// AdjustStockRequest is a manual stock correction.
type AdjustStockRequest struct {
	BranchID        uuid.UUID
	InventoryItemID uuid.UUID
	Delta           decimal.Decimal
	Reason          string
	Actor           uuid.UUID
}

// AdjustStock appends an adjustment movement. Reason is mandatory.
func (e *Engine) AdjustStock(ctx context.Context, req AdjustStockRequest) (*ledger.StockResult, error) {
	if req.Delta.IsZero() {
		return nil, ErrZeroDelta
	}
	if !database.QuantityFits(req.Delta) {
		return nil, ErrQuantityPrecision
	}
	if req.Reason == "" {
		return nil, ErrReasonRequired
	}

	return runTx(ctx, e, "adjust_stock", func(ctx context.Context, u *unit) (*ledger.StockResult, error) {
		res, err := ledger.AppendStock(ctx, u, ledger.StockEntry{
			InventoryItemID: req.InventoryItemID,
			BranchID:        req.BranchID,
			Change:          req.Delta,
			ReferenceType:   enum.StockRefAdjustment,
			Reason:          req.Reason,
			CreatedBy:       req.Actor,
		})
		if err != nil {
			return nil, err
		}
		if err := emitStock(ctx, u, res); err != nil {
			return nil, err
		}
		return &res, nil
	})
}

// VerifyStock folds the item's movements and compares them to the cached
// quantity. The item row is share-locked while reading so no append can
// land between the two reads.
func (e *Engine) VerifyStock(ctx context.Context, branchID, itemID uuid.UUID) (*ledger.StockAudit, error) {
	return runTx(ctx, e, "verify_stock", func(ctx context.Context, u *unit) (*ledger.StockAudit, error) {
		item, err := u.LockInventoryItem(ctx, itemID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrInventoryNotFound
			}
			return nil, fmt.Errorf("lock inventory item: %w", err)
		}
		if item.BranchID != branchID {
			return nil, ErrInventoryNotFound
		}
		mvs, err := u.ListStockMovementsByItem(ctx, item.ID)
		if err != nil {
			return nil, fmt.Errorf("list stock movements: %w", err)
		}
		audit := ledger.AuditStock(item, mvs)
		if !audit.Consistent {
			e.log.Errorw("stock ledger drift", "inventory_item_id", item.ID,
				"cached", audit.Cached.String(), "folded", audit.Folded.String(), "broken_links", audit.BrokenLinks)
		}
		return &audit, nil
	})
}

// VerifyPoints does the same for a customer's loyalty balance.
func (e *Engine) VerifyPoints(ctx context.Context, branchID, customerID uuid.UUID) (*ledger.PointsAudit, error) {
	return runTx(ctx, e, "verify_points", func(ctx context.Context, u *unit) (*ledger.PointsAudit, error) {
		c, err := u.LockCustomer(ctx, customerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrCustomerMissing
			}
			return nil, fmt.Errorf("lock customer: %w", err)
		}
		if c.BranchID != branchID {
			return nil, ErrCustomerMissing
		}
		txs, err := u.ListLoyaltyTransactionsByCustomer(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("list loyalty transactions: %w", err)
		}
		audit := ledger.AuditPoints(c, txs)
		if !audit.Consistent {
			e.log.Errorw("loyalty ledger drift", "customer_id", c.ID,
				"cached", audit.Cached, "folded", audit.Folded)
		}
		return &audit, nil
	})
}
