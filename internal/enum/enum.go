package enum

// ── State machines (CHECK constrained in DB, edges in internal/lifecycle) ──

const (
	OrderStatusPending        = "pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusPreparing      = "preparing"
	OrderStatusReady          = "ready"
	OrderStatusServed         = "served"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "delivered"
	OrderStatusCompleted      = "completed"
	OrderStatusCancelled      = "cancelled"
	OrderStatusRefunded       = "refunded"
	OrderStatusFailed         = "failed"
)

const (
	OrderItemStatusPending   = "pending"
	OrderItemStatusPreparing = "preparing"
	OrderItemStatusReady     = "ready"
	OrderItemStatusServed    = "served"
	OrderItemStatusCancelled = "cancelled"
)

const (
	AssignmentStatusPending    = "pending"
	AssignmentStatusAccepted   = "accepted"
	AssignmentStatusRejected   = "rejected"
	AssignmentStatusInProgress = "in_progress"
	AssignmentStatusCompleted  = "completed"
)

const (
	DeliveryStatusPendingAssignment = "pending_assignment"
	DeliveryStatusAssigned          = "assigned"
	DeliveryStatusPickedUp          = "picked_up"
	DeliveryStatusInTransit         = "in_transit"
	DeliveryStatusDelivered         = "delivered"
	DeliveryStatusFailed            = "failed"
	DeliveryStatusReturned          = "returned"
	DeliveryStatusCancelled         = "cancelled"
)

// ── Borderline (CHECK constrained in DB) ──

const (
	OrderTypeDineIn   = "dine_in"
	OrderTypeTakeaway = "takeaway"
	OrderTypeDelivery = "delivery"
	OrderTypeOnline   = "online"
)

const (
	AssignmentTypeManual = "manual"
	AssignmentTypeAuto   = "auto"
)

const (
	RiderResponsePending  = "pending"
	RiderResponseAccepted = "accepted"
	RiderResponseRejected = "rejected"
)

const (
	StationKitchen = "kitchen"
	StationBar     = "bar"
	StationShisha  = "shisha"
)

// Stock movement reference types.
const (
	StockRefOrder             = "order"
	StockRefOrderCancellation = "order_cancellation"
	StockRefMealAssignment    = "meal_assignment"
	StockRefAdjustment        = "adjustment"
)

// Loyalty transaction reference types.
const (
	PointsRefOrderCompleted = "order_completed"
	PointsRefOrderRefunded  = "order_refunded"
	PointsRefAdjustment     = "adjustment"
)

// ── Event fan-out labels (no DB constraint) ──

const (
	EntityOrder          = "order"
	EntityOrderItem      = "order_item"
	EntityMealAssignment = "meal_assignment"
	EntityAvailableMeal  = "available_meal"
	EntityDelivery       = "delivery"
	EntityRider          = "rider"
	EntityRiderLocation  = "rider_location"
	EntityInventoryItem  = "inventory_item"
	EntityCustomer       = "customer"
)

// EntityTypes lists every entity type an event can carry.
var EntityTypes = []string{
	EntityOrder, EntityOrderItem, EntityMealAssignment, EntityAvailableMeal,
	EntityDelivery, EntityRider, EntityRiderLocation, EntityInventoryItem, EntityCustomer,
}

// Inventory item states published on stock events.
const (
	StockLevelOK  = "in_stock"
	StockLevelLow = "low_stock"
	StockLevelOut = "out_of_stock"
)

const (
	UserRoleOwner   = "owner"
	UserRoleManager = "manager"
	UserRoleCashier = "cashier"
	UserRoleKitchen = "kitchen"
	UserRoleRider   = "rider"
)
