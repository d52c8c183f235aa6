package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, branch_id, order_number, order_type, status, customer_id, table_number, notes,
    subtotal, tax_amount, discount_amount, tip_amount, delivery_fee, total_amount,
    delivery_address, delivery_phone, delivery_assignment, stock_deducted, created_by,
    version, created_at, updated_at`

func scanOrder(row scanner) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID, &i.BranchID, &i.OrderNumber, &i.OrderType, &i.Status, &i.CustomerID, &i.TableNumber, &i.Notes,
		&i.Subtotal, &i.TaxAmount, &i.DiscountAmount, &i.TipAmount, &i.DeliveryFee, &i.TotalAmount,
		&i.DeliveryAddress, &i.DeliveryPhone, &i.DeliveryAssignment, &i.StockDeducted, &i.CreatedBy,
		&i.Version, &i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}

const orderItemColumns = `id, order_id, menu_item_id, variant_id, item_name, variant_name, unit_price, quantity,
    modifiers, removed_ingredients, selected_extras, line_total, station, status, notes,
    version, created_at, updated_at`

func scanOrderItem(row scanner) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(
		&i.ID, &i.OrderID, &i.MenuItemID, &i.VariantID, &i.ItemName, &i.VariantName, &i.UnitPrice, &i.Quantity,
		&i.Modifiers, &i.RemovedIngredients, &i.SelectedExtras, &i.LineTotal, &i.Station, &i.Status, &i.Notes,
		&i.Version, &i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}

const nextOrderNumber = `-- name: NextOrderNumber :one
INSERT INTO order_sequences (branch_id, last_number) VALUES ($1, 1)
ON CONFLICT (branch_id) DO UPDATE SET last_number = order_sequences.last_number + 1
RETURNING last_number`

// NextOrderNumber hands out the branch's next order number. The upsert row
// lock serializes concurrent placements in the same branch.
func (q *Queries) NextOrderNumber(ctx context.Context, branchID uuid.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, nextOrderNumber, branchID)
	var lastNumber int64
	err := row.Scan(&lastNumber)
	return lastNumber, err
}

const getMenuItem = `-- name: GetMenuItem :one
SELECT id, branch_id, name, price, station, is_available, created_at
FROM menu_items
WHERE id = $1 AND branch_id = $2`

type GetMenuItemParams struct {
	ID       uuid.UUID `json:"id"`
	BranchID uuid.UUID `json:"branch_id"`
}

func (q *Queries) GetMenuItem(ctx context.Context, arg GetMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, getMenuItem, arg.ID, arg.BranchID)
	var i MenuItem
	err := row.Scan(&i.ID, &i.BranchID, &i.Name, &i.Price, &i.Station, &i.IsAvailable, &i.CreatedAt)
	return i, err
}

const getVariant = `-- name: GetVariant :one
SELECT id, menu_item_id, name, price_adjustment
FROM menu_item_variants
WHERE id = $1`

func (q *Queries) GetVariant(ctx context.Context, id uuid.UUID) (MenuItemVariant, error) {
	row := q.db.QueryRow(ctx, getVariant, id)
	var i MenuItemVariant
	err := row.Scan(&i.ID, &i.MenuItemID, &i.Name, &i.PriceAdjustment)
	return i, err
}

const listRecipeIngredients = `-- name: ListRecipeIngredients :many
SELECT menu_item_id, inventory_item_id, quantity
FROM recipe_ingredients
WHERE menu_item_id = $1
ORDER BY inventory_item_id`

func (q *Queries) ListRecipeIngredients(ctx context.Context, menuItemID uuid.UUID) ([]RecipeIngredient, error) {
	rows, err := q.db.Query(ctx, listRecipeIngredients, menuItemID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row scanner) (RecipeIngredient, error) {
		var i RecipeIngredient
		err := row.Scan(&i.MenuItemID, &i.InventoryItemID, &i.Quantity)
		return i, err
	})
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
    branch_id, order_number, order_type, customer_id, table_number, notes,
    subtotal, tax_amount, discount_amount, tip_amount, delivery_fee, total_amount,
    delivery_address, delivery_phone, delivery_assignment, created_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	BranchID           uuid.UUID      `json:"branch_id"`
	OrderNumber        int64          `json:"order_number"`
	OrderType          string         `json:"order_type"`
	CustomerID         pgtype.UUID    `json:"customer_id"`
	TableNumber        pgtype.Text    `json:"table_number"`
	Notes              pgtype.Text    `json:"notes"`
	Subtotal           pgtype.Numeric `json:"subtotal"`
	TaxAmount          pgtype.Numeric `json:"tax_amount"`
	DiscountAmount     pgtype.Numeric `json:"discount_amount"`
	TipAmount          pgtype.Numeric `json:"tip_amount"`
	DeliveryFee        pgtype.Numeric `json:"delivery_fee"`
	TotalAmount        pgtype.Numeric `json:"total_amount"`
	DeliveryAddress    pgtype.Text    `json:"delivery_address"`
	DeliveryPhone      pgtype.Text    `json:"delivery_phone"`
	DeliveryAssignment pgtype.Text    `json:"delivery_assignment"`
	CreatedBy          uuid.UUID      `json:"created_by"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.BranchID, arg.OrderNumber, arg.OrderType, arg.CustomerID, arg.TableNumber, arg.Notes,
		arg.Subtotal, arg.TaxAmount, arg.DiscountAmount, arg.TipAmount, arg.DeliveryFee, arg.TotalAmount,
		arg.DeliveryAddress, arg.DeliveryPhone, arg.DeliveryAssignment, arg.CreatedBy,
	)
	return scanOrder(row)
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (
    order_id, menu_item_id, variant_id, item_name, variant_name, unit_price, quantity,
    modifiers, removed_ingredients, selected_extras, line_total, station, notes
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + orderItemColumns

type CreateOrderItemParams struct {
	OrderID            uuid.UUID      `json:"order_id"`
	MenuItemID         uuid.UUID      `json:"menu_item_id"`
	VariantID          pgtype.UUID    `json:"variant_id"`
	ItemName           string         `json:"item_name"`
	VariantName        pgtype.Text    `json:"variant_name"`
	UnitPrice          pgtype.Numeric `json:"unit_price"`
	Quantity           int32          `json:"quantity"`
	Modifiers          []byte         `json:"modifiers"`
	RemovedIngredients []byte         `json:"removed_ingredients"`
	SelectedExtras     []byte         `json:"selected_extras"`
	LineTotal          pgtype.Numeric `json:"line_total"`
	Station            string         `json:"station"`
	Notes              pgtype.Text    `json:"notes"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.MenuItemID, arg.VariantID, arg.ItemName, arg.VariantName, arg.UnitPrice, arg.Quantity,
		arg.Modifiers, arg.RemovedIngredients, arg.SelectedExtras, arg.LineTotal, arg.Station, arg.Notes,
	)
	return scanOrderItem(row)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1 AND branch_id = $2`

type GetOrderParams struct {
	ID       uuid.UUID `json:"id"`
	BranchID uuid.UUID `json:"branch_id"`
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, arg.ID, arg.BranchID))
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + `
FROM orders
WHERE branch_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND ($3::text IS NULL OR order_type = $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5`

type ListOrdersParams struct {
	BranchID  uuid.UUID   `json:"branch_id"`
	Status    pgtype.Text `json:"status"`
	OrderType pgtype.Text `json:"order_type"`
	Limit     int32       `json:"limit"`
	Offset    int32       `json:"offset"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.BranchID, arg.Status, arg.OrderType, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOrder)
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders
SET status = $3, stock_deducted = $4, version = version + 1, updated_at = now()
WHERE id = $1 AND version = $2
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID            uuid.UUID `json:"id"`
	Version       int32     `json:"version"`
	Status        string    `json:"status"`
	StockDeducted bool      `json:"stock_deducted"`
}

// UpdateOrderStatus is a compare-and-swap on version; pgx.ErrNoRows means
// another writer got there first.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Version, arg.Status, arg.StockDeducted)
	return scanOrder(row)
}

const createOrderStatusHistory = `-- name: CreateOrderStatusHistory :one
INSERT INTO order_status_history (order_id, from_status, to_status, actor, note)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, from_status, to_status, actor, note, created_at`

type CreateOrderStatusHistoryParams struct {
	OrderID    uuid.UUID   `json:"order_id"`
	FromStatus pgtype.Text `json:"from_status"`
	ToStatus   string      `json:"to_status"`
	Actor      uuid.UUID   `json:"actor"`
	Note       pgtype.Text `json:"note"`
}

func scanOrderStatusHistory(row scanner) (OrderStatusHistory, error) {
	var i OrderStatusHistory
	err := row.Scan(&i.ID, &i.OrderID, &i.FromStatus, &i.ToStatus, &i.Actor, &i.Note, &i.CreatedAt)
	return i, err
}

func (q *Queries) CreateOrderStatusHistory(ctx context.Context, arg CreateOrderStatusHistoryParams) (OrderStatusHistory, error) {
	row := q.db.QueryRow(ctx, createOrderStatusHistory, arg.OrderID, arg.FromStatus, arg.ToStatus, arg.Actor, arg.Note)
	return scanOrderStatusHistory(row)
}

const listOrderStatusHistory = `-- name: ListOrderStatusHistory :many
SELECT id, order_id, from_status, to_status, actor, note, created_at
FROM order_status_history
WHERE order_id = $1
ORDER BY created_at, id`

func (q *Queries) ListOrderStatusHistory(ctx context.Context, orderID uuid.UUID) ([]OrderStatusHistory, error) {
	rows, err := q.db.Query(ctx, listOrderStatusHistory, orderID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOrderStatusHistory)
}

const listOrderItemsByOrder = `-- name: ListOrderItemsByOrder :many
SELECT ` + orderItemColumns + `
FROM order_items
WHERE order_id = $1
ORDER BY created_at, id`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOrderItem)
}

const getOrderItem = `-- name: GetOrderItem :one
SELECT ` + orderItemColumns + `
FROM order_items
WHERE id = $1 AND order_id = $2`

type GetOrderItemParams struct {
	ID      uuid.UUID `json:"id"`
	OrderID uuid.UUID `json:"order_id"`
}

func (q *Queries) GetOrderItem(ctx context.Context, arg GetOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, getOrderItem, arg.ID, arg.OrderID))
}

const updateOrderItemStatus = `-- name: UpdateOrderItemStatus :one
UPDATE order_items
SET status = $3, version = version + 1, updated_at = now()
WHERE id = $1 AND version = $2
RETURNING ` + orderItemColumns

type UpdateOrderItemStatusParams struct {
	ID      uuid.UUID `json:"id"`
	Version int32     `json:"version"`
	Status  string    `json:"status"`
}

func (q *Queries) UpdateOrderItemStatus(ctx context.Context, arg UpdateOrderItemStatusParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, updateOrderItemStatus, arg.ID, arg.Version, arg.Status))
}

const cancelOpenOrderItems = `-- name: CancelOpenOrderItems :many
UPDATE order_items
SET status = 'cancelled', version = version + 1, updated_at = now()
WHERE order_id = $1 AND status NOT IN ('served', 'cancelled')
RETURNING ` + orderItemColumns

// CancelOpenOrderItems runs under the parent order's version check, which
// serializes it against other order-level writers.
func (q *Queries) CancelOpenOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, cancelOpenOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOrderItem)
}
