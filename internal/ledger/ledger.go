// Package ledger appends to the two append-only ledgers (stock movements and
// loyalty transactions) and keeps the cached running totals on
// inventory_items.quantity and customers.loyalty_points_balance in step with
// them. Appends must run inside the caller's transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
	ErrZeroChange         = errors.New("ledger change must be non-zero")
	ErrReasonRequired     = errors.New("adjustments require a reason")
	ErrUnknownItem        = errors.New("inventory item not found")
	ErrUnknownCustomer    = errors.New("customer not found")
	ErrBranchMismatch     = errors.New("entity belongs to another branch")
	// ErrStale means the cached total moved under us; the whole unit must be retried.
	ErrStale = errors.New("ledger total changed concurrently")
)

// Store is the slice of *database.Queries the ledger writes through.
type Store interface {
	GetInventoryItem(ctx context.Context, id uuid.UUID) (database.InventoryItem, error)
	UpdateInventoryQuantity(ctx context.Context, arg database.UpdateInventoryQuantityParams) (database.InventoryItem, error)
	CreateStockMovement(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)
	UpdateCustomerPoints(ctx context.Context, arg database.UpdateCustomerPointsParams) (database.Customer, error)
	CreateLoyaltyTransaction(ctx context.Context, arg database.CreateLoyaltyTransactionParams) (database.LoyaltyTransaction, error)
}

// StockEntry is one signed change to an inventory item.
type StockEntry struct {
	InventoryItemID uuid.UUID
	BranchID        uuid.UUID
	Change          decimal.Decimal
	ReferenceType   string
	ReferenceID     uuid.UUID // uuid.Nil for none
	Reason          string
	CreatedBy       uuid.UUID // uuid.Nil for system writes
}

// StockResult is the item after the append and the row that was written.
type StockResult struct {
	Item     database.InventoryItem
	Movement database.StockMovement
}

// AppendStock writes one immutable stock movement and moves the cached
// quantity by the same amount. A result below zero fails with
// ErrInsufficientStock and writes nothing.
func AppendStock(ctx context.Context, s Store, e StockEntry) (StockResult, error) {
	// Rows must satisfy after = before + change at the stored scale.
	e.Change = e.Change.Round(database.QuantityPlaces)
	if e.Change.IsZero() {
		return StockResult{}, ErrZeroChange
	}
	if e.ReferenceType == enum.StockRefAdjustment && e.Reason == "" {
		return StockResult{}, ErrReasonRequired
	}

	item, err := s.GetInventoryItem(ctx, e.InventoryItemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockResult{}, fmt.Errorf("%w: %s", ErrUnknownItem, e.InventoryItemID)
		}
		return StockResult{}, fmt.Errorf("get inventory item: %w", err)
	}
	if item.BranchID != e.BranchID {
		return StockResult{}, fmt.Errorf("inventory item %s: %w", item.ID, ErrBranchMismatch)
	}

	before := database.NumericToDecimal(item.Quantity)
	after := before.Add(e.Change)
	if after.IsNegative() {
		return StockResult{}, fmt.Errorf("%w: %s has %s %s, needs %s",
			ErrInsufficientStock, item.Name, before.String(), item.Unit, e.Change.Neg().String())
	}

	updated, err := s.UpdateInventoryQuantity(ctx, database.UpdateInventoryQuantityParams{
		ID:       item.ID,
		Version:  item.Version,
		Quantity: database.QuantityToNumeric(after),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockResult{}, fmt.Errorf("inventory item %s: %w", item.ID, ErrStale)
		}
		return StockResult{}, fmt.Errorf("update inventory quantity: %w", err)
	}

	mv, err := s.CreateStockMovement(ctx, database.CreateStockMovementParams{
		InventoryItemID: item.ID,
		BranchID:        item.BranchID,
		QuantityChange:  database.QuantityToNumeric(e.Change),
		QuantityBefore:  database.QuantityToNumeric(before),
		QuantityAfter:   database.QuantityToNumeric(after),
		ReferenceType:   e.ReferenceType,
		ReferenceID:     optionalUUID(e.ReferenceID),
		Reason:          optionalText(e.Reason),
		CreatedBy:       optionalUUID(e.CreatedBy),
	})
	if err != nil {
		return StockResult{}, fmt.Errorf("create stock movement: %w", err)
	}

	return StockResult{Item: updated, Movement: mv}, nil
}

// PointsEntry is one signed change to a customer's loyalty balance.
type PointsEntry struct {
	CustomerID    uuid.UUID
	OrderID       uuid.UUID // uuid.Nil for none
	Points        int64
	ReferenceType string
	Reason        string
}

// PointsResult is the customer after the append and the row that was written.
type PointsResult struct {
	Customer    database.Customer
	Transaction database.LoyaltyTransaction
}

// AppendPoints writes one loyalty transaction. Balances never go negative.
func AppendPoints(ctx context.Context, s Store, e PointsEntry) (PointsResult, error) {
	if e.Points == 0 {
		return PointsResult{}, ErrZeroChange
	}
	if e.ReferenceType == enum.PointsRefAdjustment && e.Reason == "" {
		return PointsResult{}, ErrReasonRequired
	}

	c, err := s.GetCustomer(ctx, e.CustomerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PointsResult{}, fmt.Errorf("%w: %s", ErrUnknownCustomer, e.CustomerID)
		}
		return PointsResult{}, fmt.Errorf("get customer: %w", err)
	}

	after := c.LoyaltyPointsBalance + e.Points
	if after < 0 {
		return PointsResult{}, fmt.Errorf("%w: balance %d, change %d", ErrInsufficientPoints, c.LoyaltyPointsBalance, e.Points)
	}

	updated, err := s.UpdateCustomerPoints(ctx, database.UpdateCustomerPointsParams{
		ID:                   c.ID,
		Version:              c.Version,
		LoyaltyPointsBalance: after,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PointsResult{}, fmt.Errorf("customer %s: %w", c.ID, ErrStale)
		}
		return PointsResult{}, fmt.Errorf("update customer points: %w", err)
	}

	tx, err := s.CreateLoyaltyTransaction(ctx, database.CreateLoyaltyTransactionParams{
		CustomerID:    c.ID,
		OrderID:       optionalUUID(e.OrderID),
		Points:        e.Points,
		BalanceAfter:  after,
		ReferenceType: e.ReferenceType,
		Reason:        optionalText(e.Reason),
	})
	if err != nil {
		return PointsResult{}, fmt.Errorf("create loyalty transaction: %w", err)
	}

	return PointsResult{Customer: updated, Transaction: tx}, nil
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
