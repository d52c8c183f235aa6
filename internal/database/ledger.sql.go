package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const inventoryItemColumns = `id, branch_id, name, unit, quantity, min_stock_level, cost_per_unit, version, created_at, updated_at`

func scanInventoryItem(row scanner) (InventoryItem, error) {
	var i InventoryItem
	err := row.Scan(&i.ID, &i.BranchID, &i.Name, &i.Unit, &i.Quantity, &i.MinStockLevel, &i.CostPerUnit,
		&i.Version, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const stockMovementColumns = `id, inventory_item_id, branch_id, quantity_change, quantity_before, quantity_after,
    reference_type, reference_id, reason, created_by, created_at`

func scanStockMovement(row scanner) (StockMovement, error) {
	var i StockMovement
	err := row.Scan(&i.ID, &i.InventoryItemID, &i.BranchID, &i.QuantityChange, &i.QuantityBefore, &i.QuantityAfter,
		&i.ReferenceType, &i.ReferenceID, &i.Reason, &i.CreatedBy, &i.CreatedAt)
	return i, err
}

const getInventoryItem = `-- name: GetInventoryItem :one
SELECT ` + inventoryItemColumns + `
FROM inventory_items
WHERE id = $1`

func (q *Queries) GetInventoryItem(ctx context.Context, id uuid.UUID) (InventoryItem, error) {
	return scanInventoryItem(q.db.QueryRow(ctx, getInventoryItem, id))
}

const lockInventoryItem = `-- name: LockInventoryItem :one
SELECT ` + inventoryItemColumns + `
FROM inventory_items
WHERE id = $1
FOR SHARE`

// LockInventoryItem holds writers off the row until the transaction ends, so
// a fold read in the same transaction sees exactly the committed ledger.
func (q *Queries) LockInventoryItem(ctx context.Context, id uuid.UUID) (InventoryItem, error) {
	return scanInventoryItem(q.db.QueryRow(ctx, lockInventoryItem, id))
}

const createInventoryItem = `-- name: CreateInventoryItem :one
INSERT INTO inventory_items (branch_id, name, unit, min_stock_level, cost_per_unit)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + inventoryItemColumns

type CreateInventoryItemParams struct {
	BranchID      uuid.UUID      `json:"branch_id"`
	Name          string         `json:"name"`
	Unit          string         `json:"unit"`
	MinStockLevel pgtype.Numeric `json:"min_stock_level"`
	CostPerUnit   pgtype.Numeric `json:"cost_per_unit"`
}

// CreateInventoryItem always starts at zero; stock arrives through the ledger.
func (q *Queries) CreateInventoryItem(ctx context.Context, arg CreateInventoryItemParams) (InventoryItem, error) {
	row := q.db.QueryRow(ctx, createInventoryItem, arg.BranchID, arg.Name, arg.Unit, arg.MinStockLevel, arg.CostPerUnit)
	return scanInventoryItem(row)
}

const updateInventoryQuantity = `-- name: UpdateInventoryQuantity :one
UPDATE inventory_items
SET quantity = $3, version = version + 1, updated_at = now()
WHERE id = $1 AND version = $2
RETURNING ` + inventoryItemColumns

type UpdateInventoryQuantityParams struct {
	ID       uuid.UUID      `json:"id"`
	Version  int32          `json:"version"`
	Quantity pgtype.Numeric `json:"quantity"`
}

func (q *Queries) UpdateInventoryQuantity(ctx context.Context, arg UpdateInventoryQuantityParams) (InventoryItem, error) {
	return scanInventoryItem(q.db.QueryRow(ctx, updateInventoryQuantity, arg.ID, arg.Version, arg.Quantity))
}

const createStockMovement = `-- name: CreateStockMovement :one
INSERT INTO stock_movements (
    inventory_item_id, branch_id, quantity_change, quantity_before, quantity_after,
    reference_type, reference_id, reason, created_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + stockMovementColumns

type CreateStockMovementParams struct {
	InventoryItemID uuid.UUID      `json:"inventory_item_id"`
	BranchID        uuid.UUID      `json:"branch_id"`
	QuantityChange  pgtype.Numeric `json:"quantity_change"`
	QuantityBefore  pgtype.Numeric `json:"quantity_before"`
	QuantityAfter   pgtype.Numeric `json:"quantity_after"`
	ReferenceType   string         `json:"reference_type"`
	ReferenceID     pgtype.UUID    `json:"reference_id"`
	Reason          pgtype.Text    `json:"reason"`
	CreatedBy       pgtype.UUID    `json:"created_by"`
}

func (q *Queries) CreateStockMovement(ctx context.Context, arg CreateStockMovementParams) (StockMovement, error) {
	row := q.db.QueryRow(ctx, createStockMovement,
		arg.InventoryItemID, arg.BranchID, arg.QuantityChange, arg.QuantityBefore, arg.QuantityAfter,
		arg.ReferenceType, arg.ReferenceID, arg.Reason, arg.CreatedBy,
	)
	return scanStockMovement(row)
}

const listStockMovementsByItem = `-- name: ListStockMovementsByItem :many
SELECT ` + stockMovementColumns + `
FROM stock_movements
WHERE inventory_item_id = $1
ORDER BY created_at, id`

func (q *Queries) ListStockMovementsByItem(ctx context.Context, inventoryItemID uuid.UUID) ([]StockMovement, error) {
	rows, err := q.db.Query(ctx, listStockMovementsByItem, inventoryItemID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanStockMovement)
}

const listStockMovementsByReference = `-- name: ListStockMovementsByReference :many
SELECT ` + stockMovementColumns + `
FROM stock_movements
WHERE reference_id = $1 AND reference_type = $2
ORDER BY inventory_item_id`

type ListStockMovementsByReferenceParams struct {
	ReferenceID   pgtype.UUID `json:"reference_id"`
	ReferenceType string      `json:"reference_type"`
}

func (q *Queries) ListStockMovementsByReference(ctx context.Context, arg ListStockMovementsByReferenceParams) ([]StockMovement, error) {
	rows, err := q.db.Query(ctx, listStockMovementsByReference, arg.ReferenceID, arg.ReferenceType)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanStockMovement)
}

const customerColumns = `id, branch_id, name, phone, loyalty_points_balance, version, created_at, updated_at`

func scanCustomer(row scanner) (Customer, error) {
	var i Customer
	err := row.Scan(&i.ID, &i.BranchID, &i.Name, &i.Phone, &i.LoyaltyPointsBalance, &i.Version, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getCustomer = `-- name: GetCustomer :one
SELECT ` + customerColumns + `
FROM customers
WHERE id = $1`

func (q *Queries) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, getCustomer, id))
}

const lockCustomer = `-- name: LockCustomer :one
SELECT ` + customerColumns + `
FROM customers
WHERE id = $1
FOR SHARE`

func (q *Queries) LockCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, lockCustomer, id))
}

const updateCustomerPoints = `-- name: UpdateCustomerPoints :one
UPDATE customers
SET loyalty_points_balance = $3, version = version + 1, updated_at = now()
WHERE id = $1 AND version = $2
RETURNING ` + customerColumns

type UpdateCustomerPointsParams struct {
	ID                   uuid.UUID `json:"id"`
	Version              int32     `json:"version"`
	LoyaltyPointsBalance int64     `json:"loyalty_points_balance"`
}

func (q *Queries) UpdateCustomerPoints(ctx context.Context, arg UpdateCustomerPointsParams) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, updateCustomerPoints, arg.ID, arg.Version, arg.LoyaltyPointsBalance))
}

const loyaltyTransactionColumns = `id, customer_id, order_id, points, balance_after, reference_type, reason, created_at`

func scanLoyaltyTransaction(row scanner) (LoyaltyTransaction, error) {
	var i LoyaltyTransaction
	err := row.Scan(&i.ID, &i.CustomerID, &i.OrderID, &i.Points, &i.BalanceAfter, &i.ReferenceType, &i.Reason, &i.CreatedAt)
	return i, err
}

const createLoyaltyTransaction = `-- name: CreateLoyaltyTransaction :one
INSERT INTO loyalty_transactions (customer_id, order_id, points, balance_after, reference_type, reason)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + loyaltyTransactionColumns

type CreateLoyaltyTransactionParams struct {
	CustomerID    uuid.UUID   `json:"customer_id"`
	OrderID       pgtype.UUID `json:"order_id"`
	Points        int64       `json:"points"`
	BalanceAfter  int64       `json:"balance_after"`
	ReferenceType string      `json:"reference_type"`
	Reason        pgtype.Text `json:"reason"`
}

func (q *Queries) CreateLoyaltyTransaction(ctx context.Context, arg CreateLoyaltyTransactionParams) (LoyaltyTransaction, error) {
	row := q.db.QueryRow(ctx, createLoyaltyTransaction,
		arg.CustomerID, arg.OrderID, arg.Points, arg.BalanceAfter, arg.ReferenceType, arg.Reason)
	return scanLoyaltyTransaction(row)
}

const listLoyaltyTransactionsByCustomer = `-- name: ListLoyaltyTransactionsByCustomer :many
SELECT ` + loyaltyTransactionColumns + `
FROM loyalty_transactions
WHERE customer_id = $1
ORDER BY created_at, id`

func (q *Queries) ListLoyaltyTransactionsByCustomer(ctx context.Context, customerID uuid.UUID) ([]LoyaltyTransaction, error) {
	rows, err := q.db.Query(ctx, listLoyaltyTransactionsByCustomer, customerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanLoyaltyTransaction)
}

const listLoyaltyTransactionsByOrder = `-- name: ListLoyaltyTransactionsByOrder :many
SELECT ` + loyaltyTransactionColumns + `
FROM loyalty_transactions
WHERE order_id = $1
ORDER BY created_at, id`

func (q *Queries) ListLoyaltyTransactionsByOrder(ctx context.Context, orderID pgtype.UUID) ([]LoyaltyTransaction, error) {
	rows, err := q.db.Query(ctx, listLoyaltyTransactionsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanLoyaltyTransaction)
}
