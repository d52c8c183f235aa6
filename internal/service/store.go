package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/ledger"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods the order workflow needs.
type OrderStore interface {
	NextOrderNumber(ctx context.Context, branchID uuid.UUID) (int64, error)
	GetMenuItem(ctx context.Context, arg database.GetMenuItemParams) (database.MenuItem, error)
	GetVariant(ctx context.Context, id uuid.UUID) (database.MenuItemVariant, error)
	ListRecipeIngredients(ctx context.Context, menuItemID uuid.UUID) ([]database.RecipeIngredient, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	CreateOrderStatusHistory(ctx context.Context, arg database.CreateOrderStatusHistoryParams) (database.OrderStatusHistory, error)
	GetOrderItem(ctx context.Context, arg database.GetOrderItemParams) (database.OrderItem, error)
	UpdateOrderItemStatus(ctx context.Context, arg database.UpdateOrderItemStatusParams) (database.OrderItem, error)
	CancelOpenOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListStockMovementsByReference(ctx context.Context, arg database.ListStockMovementsByReferenceParams) ([]database.StockMovement, error)
	ListLoyaltyTransactionsByOrder(ctx context.Context, orderID pgtype.UUID) ([]database.LoyaltyTransaction, error)
}

// LedgerStore adds the audit reads to the ledger's write surface.
type LedgerStore interface {
	ledger.Store
	LockInventoryItem(ctx context.Context, id uuid.UUID) (database.InventoryItem, error)
	ListStockMovementsByItem(ctx context.Context, inventoryItemID uuid.UUID) ([]database.StockMovement, error)
	LockCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)
	ListLoyaltyTransactionsByCustomer(ctx context.Context, customerID uuid.UUID) ([]database.LoyaltyTransaction, error)
}

// KitchenStore defines the DB methods the meal assignment workflow needs.
type KitchenStore interface {
	CreateMealAssignment(ctx context.Context, arg database.CreateMealAssignmentParams) (database.MealAssignment, error)
	GetMealAssignment(ctx context.Context, arg database.GetMealAssignmentParams) (database.MealAssignment, error)
	UpdateMealAssignment(ctx context.Context, arg database.UpdateMealAssignmentParams) (database.MealAssignment, error)
	DeleteMealAssignment(ctx context.Context, arg database.DeleteMealAssignmentParams) (int64, error)
	GetAvailableMeal(ctx context.Context, arg database.GetAvailableMealParams) (database.AvailableMeal, error)
	GetAvailableMealByMenuItem(ctx context.Context, arg database.GetAvailableMealByMenuItemParams) (database.AvailableMeal, error)
	CreateAvailableMeal(ctx context.Context, arg database.CreateAvailableMealParams) (database.AvailableMeal, error)
	UpdateAvailableMealQuantity(ctx context.Context, arg database.UpdateAvailableMealQuantityParams) (database.AvailableMeal, error)
}

// DispatchStore defines the DB methods delivery dispatch needs.
type DispatchStore interface {
	CreateDelivery(ctx context.Context, arg database.CreateDeliveryParams) (database.Delivery, error)
	GetDelivery(ctx context.Context, arg database.GetDeliveryParams) (database.Delivery, error)
	GetDeliveryByOrder(ctx context.Context, orderID uuid.UUID) (database.Delivery, error)
	UpdateDelivery(ctx context.Context, arg database.UpdateDeliveryParams) (database.Delivery, error)
	GetRider(ctx context.Context, id uuid.UUID) (database.Rider, error)
	ListAvailableRiders(ctx context.Context, branchID uuid.UUID) ([]database.Rider, error)
	UpdateRiderLoad(ctx context.Context, arg database.UpdateRiderLoadParams) (database.Rider, error)
	CreateRiderLocation(ctx context.Context, arg database.CreateRiderLocationParams) (database.RiderLocation, error)
}

// OutboxWriter records events in the same transaction as the change.
type OutboxWriter interface {
	CreateOutboxEvent(ctx context.Context, arg database.CreateOutboxEventParams) (database.OutboxEvent, error)
}

// Store is everything the Engine touches inside one unit of work.
// Satisfied by *database.Queries (and its WithTx variant).
type Store interface {
	OrderStore
	LedgerStore
	KitchenStore
	DispatchStore
	OutboxWriter
}

// NewStore creates a Store from a DBTX (pool or tx).
type NewStore func(db database.DBTX) Store
