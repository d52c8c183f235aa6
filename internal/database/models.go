package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Branch struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type MenuItem struct {
	ID          uuid.UUID      `json:"id"`
	BranchID    uuid.UUID      `json:"branch_id"`
	Name        string         `json:"name"`
	Price       pgtype.Numeric `json:"price"`
	Station     string         `json:"station"`
	IsAvailable bool           `json:"is_available"`
	CreatedAt   time.Time      `json:"created_at"`
}

type MenuItemVariant struct {
	ID              uuid.UUID      `json:"id"`
	MenuItemID      uuid.UUID      `json:"menu_item_id"`
	Name            string         `json:"name"`
	PriceAdjustment pgtype.Numeric `json:"price_adjustment"`
}

type RecipeIngredient struct {
	MenuItemID      uuid.UUID      `json:"menu_item_id"`
	InventoryItemID uuid.UUID      `json:"inventory_item_id"`
	Quantity        pgtype.Numeric `json:"quantity"`
}

type Customer struct {
	ID                   uuid.UUID   `json:"id"`
	BranchID             uuid.UUID   `json:"branch_id"`
	Name                 string      `json:"name"`
	Phone                pgtype.Text `json:"phone"`
	LoyaltyPointsBalance int64       `json:"loyalty_points_balance"`
	Version              int32       `json:"version"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

type Order struct {
	ID                 uuid.UUID      `json:"id"`
	BranchID           uuid.UUID      `json:"branch_id"`
	OrderNumber        int64          `json:"order_number"`
	OrderType          string         `json:"order_type"`
	Status             string         `json:"status"`
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
	StockDeducted      bool           `json:"stock_deducted"`
	CreatedBy          uuid.UUID      `json:"created_by"`
	Version            int32          `json:"version"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

type OrderItem struct {
	ID                 uuid.UUID      `json:"id"`
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
	Status             string         `json:"status"`
	Notes              pgtype.Text    `json:"notes"`
	Version            int32          `json:"version"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

type OrderStatusHistory struct {
	ID         uuid.UUID   `json:"id"`
	OrderID    uuid.UUID   `json:"order_id"`
	FromStatus pgtype.Text `json:"from_status"`
	ToStatus   string      `json:"to_status"`
	Actor      uuid.UUID   `json:"actor"`
	Note       pgtype.Text `json:"note"`
	CreatedAt  time.Time   `json:"created_at"`
}

type InventoryItem struct {
	ID            uuid.UUID      `json:"id"`
	BranchID      uuid.UUID      `json:"branch_id"`
	Name          string         `json:"name"`
	Unit          string         `json:"unit"`
	Quantity      pgtype.Numeric `json:"quantity"`
	MinStockLevel pgtype.Numeric `json:"min_stock_level"`
	CostPerUnit   pgtype.Numeric `json:"cost_per_unit"`
	Version       int32          `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type StockMovement struct {
	ID              uuid.UUID      `json:"id"`
	InventoryItemID uuid.UUID      `json:"inventory_item_id"`
	BranchID        uuid.UUID      `json:"branch_id"`
	QuantityChange  pgtype.Numeric `json:"quantity_change"`
	QuantityBefore  pgtype.Numeric `json:"quantity_before"`
	QuantityAfter   pgtype.Numeric `json:"quantity_after"`
	ReferenceType   string         `json:"reference_type"`
	ReferenceID     pgtype.UUID    `json:"reference_id"`
	Reason          pgtype.Text    `json:"reason"`
	CreatedBy       pgtype.UUID    `json:"created_by"`
	CreatedAt       time.Time      `json:"created_at"`
}

type LoyaltyTransaction struct {
	ID            uuid.UUID   `json:"id"`
	CustomerID    uuid.UUID   `json:"customer_id"`
	OrderID       pgtype.UUID `json:"order_id"`
	Points        int64       `json:"points"`
	BalanceAfter  int64       `json:"balance_after"`
	ReferenceType string      `json:"reference_type"`
	Reason        pgtype.Text `json:"reason"`
	CreatedAt     time.Time   `json:"created_at"`
}

type MealAssignment struct {
	ID                  uuid.UUID          `json:"id"`
	BranchID            uuid.UUID          `json:"branch_id"`
	MenuItemID          uuid.UUID          `json:"menu_item_id"`
	Quantity            int32              `json:"quantity"`
	QuantityCompleted   int32              `json:"quantity_completed"`
	AssignedTo          uuid.UUID          `json:"assigned_to"`
	AssignedBy          uuid.UUID          `json:"assigned_by"`
	Status              string             `json:"status"`
	RejectionReason     pgtype.Text        `json:"rejection_reason"`
	ExcludedIngredients []uuid.UUID        `json:"excluded_ingredients"`
	Notes               pgtype.Text        `json:"notes"`
	AcceptedAt          pgtype.Timestamptz `json:"accepted_at"`
	StartedAt           pgtype.Timestamptz `json:"started_at"`
	CompletedAt         pgtype.Timestamptz `json:"completed_at"`
	Version             int32              `json:"version"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

type AvailableMeal struct {
	ID                uuid.UUID `json:"id"`
	BranchID          uuid.UUID `json:"branch_id"`
	MenuItemID        uuid.UUID `json:"menu_item_id"`
	QuantityAvailable int32     `json:"quantity_available"`
	Version           int32     `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Rider struct {
	ID                      uuid.UUID   `json:"id"`
	BranchID                uuid.UUID   `json:"branch_id"`
	Name                    string      `json:"name"`
	Phone                   pgtype.Text `json:"phone"`
	IsAvailable             bool        `json:"is_available"`
	IsOnDelivery            bool        `json:"is_on_delivery"`
	ActiveDeliveriesCount   int32       `json:"active_deliveries_count"`
	MaxConcurrentDeliveries int32       `json:"max_concurrent_deliveries"`
	Version                 int32       `json:"version"`
	CreatedAt               time.Time   `json:"created_at"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

type RiderLocation struct {
	ID         int64       `json:"id"`
	RiderID    uuid.UUID   `json:"rider_id"`
	DeliveryID pgtype.UUID `json:"delivery_id"`
	Latitude   float64     `json:"latitude"`
	Longitude  float64     `json:"longitude"`
	RecordedAt time.Time   `json:"recorded_at"`
}

type Delivery struct {
	ID             uuid.UUID          `json:"id"`
	OrderID        uuid.UUID          `json:"order_id"`
	BranchID       uuid.UUID          `json:"branch_id"`
	Status         string             `json:"status"`
	RiderID        pgtype.UUID        `json:"rider_id"`
	RiderResponse  pgtype.Text        `json:"rider_response"`
	AssignmentType string             `json:"assignment_type"`
	Address        string             `json:"address"`
	Phone          pgtype.Text        `json:"phone"`
	Fee            pgtype.Numeric     `json:"fee"`
	FailureReason  pgtype.Text        `json:"failure_reason"`
	AssignedAt     pgtype.Timestamptz `json:"assigned_at"`
	PickedUpAt     pgtype.Timestamptz `json:"picked_up_at"`
	InTransitAt    pgtype.Timestamptz `json:"in_transit_at"`
	DeliveredAt    pgtype.Timestamptz `json:"delivered_at"`
	FailedAt       pgtype.Timestamptz `json:"failed_at"`
	ReturnedAt     pgtype.Timestamptz `json:"returned_at"`
	CancelledAt    pgtype.Timestamptz `json:"cancelled_at"`
	Version        int32              `json:"version"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type OutboxEvent struct {
	ID          int64              `json:"id"`
	BranchID    uuid.UUID          `json:"branch_id"`
	EntityType  string             `json:"entity_type"`
	EntityID    uuid.UUID          `json:"entity_id"`
	NewState    string             `json:"new_state"`
	Version     int64              `json:"version"`
	Payload     []byte             `json:"payload"`
	CreatedAt   time.Time          `json:"created_at"`
	PublishedAt pgtype.Timestamptz `json:"published_at"`
}
