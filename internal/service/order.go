package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/ledger"
	"github.com/kiwari-pos/fulfillment/internal/lifecycle"
	"github.com/shopspring/decimal"
)

// Modifier is a free-form customisation snapshotted on the order item.
type Modifier struct {
	Name   string `json:"name"`
	Option string `json:"option,omitempty"`
}

// RemovedIngredient is a recipe ingredient the customer left out. Its cost
// contribution comes off the unit price and it is not deducted from stock.
type RemovedIngredient struct {
	InventoryItemID  uuid.UUID       `json:"inventory_item_id"`
	Name             string          `json:"name,omitempty"`
	CostContribution decimal.Decimal `json:"cost_contribution"`
}

// SelectedExtra is a paid add-on. Extras that name an inventory item consume
// Quantity of it per unit ordered (1 when Quantity is zero).
type SelectedExtra struct {
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	InventoryItemID *uuid.UUID      `json:"inventory_item_id,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
}

// PlaceOrderRequest is the validated input for placing an order.
type PlaceOrderRequest struct {
	BranchID       uuid.UUID
	CreatedBy      uuid.UUID
	OrderType      string
	CustomerID     uuid.UUID // uuid.Nil for walk-ins
	TableNumber    string
	Notes          string
	DiscountAmount decimal.Decimal
	TipAmount      decimal.Decimal
	Delivery       *DeliveryDetails
	Items          []PlaceOrderItem
}

// DeliveryDetails is required for delivery orders.
type DeliveryDetails struct {
	Address    string
	Phone      string
	Fee        decimal.Decimal
	AutoAssign bool
}

// PlaceOrderItem is a single line in the order.
type PlaceOrderItem struct {
	MenuItemID         uuid.UUID
	VariantID          uuid.UUID // uuid.Nil for none
	Quantity           int32
	Notes              string
	Modifiers          []Modifier
	RemovedIngredients []RemovedIngredient
	SelectedExtras     []SelectedExtra
}

// OrderResult is an order with its items.
type OrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// PlaceOrder validates and prices the order and writes it as pending.
// No stock moves until the order is confirmed or goes straight to preparing.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error) {
	// --- Validate ---
	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}

	return runTx(ctx, e, "place_order", func(ctx context.Context, u *unit) (*OrderResult, error) {
		return e.placeOrderTx(ctx, u, req)
	})
}

func validatePlaceOrder(req PlaceOrderRequest) error {
	switch req.OrderType {
	case enum.OrderTypeDineIn, enum.OrderTypeTakeaway, enum.OrderTypeDelivery, enum.OrderTypeOnline:
	default:
		return ErrInvalidOrderType
	}
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	if req.DiscountAmount.IsNegative() || req.TipAmount.IsNegative() {
		return ErrInvalidAmount
	}
	if req.OrderType == enum.OrderTypeDelivery {
		if req.Delivery == nil || req.Delivery.Address == "" || req.Delivery.Phone == "" {
			return ErrDeliveryDetails
		}
		if req.Delivery.Fee.IsNegative() {
			return ErrInvalidAmount
		}
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		if item.MenuItemID == uuid.Nil {
			return fmt.Errorf("item[%d]: %w", i, ErrMenuItemNotFound)
		}
		for j, r := range item.RemovedIngredients {
			if r.CostContribution.IsNegative() {
				return fmt.Errorf("item[%d].removed_ingredients[%d]: %w", i, j, ErrInvalidAmount)
			}
		}
		for j, x := range item.SelectedExtras {
			if x.Price.IsNegative() || x.Quantity.IsNegative() {
				return fmt.Errorf("item[%d].selected_extras[%d]: %w", i, j, ErrInvalidAmount)
			}
			if !database.QuantityFits(x.Quantity) {
				return fmt.Errorf("item[%d].selected_extras[%d]: %w", i, j, ErrQuantityPrecision)
			}
		}
	}
	return nil
}

func (e *Engine) placeOrderTx(ctx context.Context, u *unit, req PlaceOrderRequest) (*OrderResult, error) {
	// --- Customer ---
	customerID := pgtype.UUID{}
	if req.CustomerID != uuid.Nil {
		c, err := u.GetCustomer(ctx, req.CustomerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrCustomerNotFound
			}
			return nil, fmt.Errorf("get customer: %w", err)
		}
		if c.BranchID != req.BranchID {
			return nil, ErrCustomerNotFound
		}
		customerID = pgtype.UUID{Bytes: c.ID, Valid: true}
	}

	// --- Process items: validate + price ---
	subtotal := decimal.Zero
	params := make([]database.CreateOrderItemParams, 0, len(req.Items))
	for i, item := range req.Items {
		p, err := e.priceItem(ctx, u, req.BranchID, item)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}
		subtotal = subtotal.Add(database.NumericToDecimal(p.LineTotal))
		params = append(params, p)
	}

	// --- Totals ---
	if req.DiscountAmount.GreaterThan(subtotal) {
		return nil, ErrDiscountTooLarge
	}
	fee := decimal.Zero
	address, phone, assignment := pgtype.Text{}, pgtype.Text{}, pgtype.Text{}
	if req.OrderType == enum.OrderTypeDelivery {
		fee = req.Delivery.Fee
		address = optionalText(req.Delivery.Address)
		phone = optionalText(req.Delivery.Phone)
		assignment = optionalText(enum.AssignmentTypeManual)
		if req.Delivery.AutoAssign {
			assignment = optionalText(enum.AssignmentTypeAuto)
		}
	}
	taxable := subtotal.Sub(req.DiscountAmount)
	tax := taxable.Mul(e.opts.TaxRate).Round(2)
	total := taxable.Add(tax).Add(req.TipAmount).Add(fee)

	// --- Generate order number ---
	number, err := u.NextOrderNumber(ctx, req.BranchID)
	if err != nil {
		return nil, fmt.Errorf("next order number: %w", err)
	}

	// --- Insert order ---
	order, err := u.CreateOrder(ctx, database.CreateOrderParams{
		BranchID:           req.BranchID,
		OrderNumber:        number,
		OrderType:          req.OrderType,
		CustomerID:         customerID,
		TableNumber:        optionalText(req.TableNumber),
		Notes:              optionalText(req.Notes),
		Subtotal:           database.MoneyToNumeric(subtotal),
		TaxAmount:          database.MoneyToNumeric(tax),
		DiscountAmount:     database.MoneyToNumeric(req.DiscountAmount),
		TipAmount:          database.MoneyToNumeric(req.TipAmount),
		DeliveryFee:        database.MoneyToNumeric(fee),
		TotalAmount:        database.MoneyToNumeric(total),
		DeliveryAddress:    address,
		DeliveryPhone:      phone,
		DeliveryAssignment: assignment,
		CreatedBy:          req.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// --- Insert items ---
	items := make([]database.OrderItem, 0, len(params))
	for _, p := range params {
		p.OrderID = order.ID
		item, err := u.CreateOrderItem(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	if _, err := u.CreateOrderStatusHistory(ctx, database.CreateOrderStatusHistoryParams{
		OrderID:  order.ID,
		ToStatus: order.Status,
		Actor:    req.CreatedBy,
	}); err != nil {
		return nil, fmt.Errorf("create order status history: %w", err)
	}
	if err := u.emit(ctx, order.BranchID, enum.EntityOrder, order.ID, order.Status, int64(order.Version), orderPayload(order)); err != nil {
		return nil, err
	}

	return &OrderResult{Order: order, Items: items}, nil
}

// priceItem resolves the menu item and variant and snapshots the line.
func (e *Engine) priceItem(ctx context.Context, u *unit, branchID uuid.UUID, item PlaceOrderItem) (database.CreateOrderItemParams, error) {
	mi, err := u.GetMenuItem(ctx, database.GetMenuItemParams{ID: item.MenuItemID, BranchID: branchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.CreateOrderItemParams{}, ErrMenuItemNotFound
		}
		return database.CreateOrderItemParams{}, fmt.Errorf("get menu item: %w", err)
	}
	if !mi.IsAvailable {
		return database.CreateOrderItemParams{}, ErrMenuItemUnavailable
	}

	unitPrice := database.NumericToDecimal(mi.Price)
	variantID, variantName := pgtype.UUID{}, pgtype.Text{}
	if item.VariantID != uuid.Nil {
		v, err := u.GetVariant(ctx, item.VariantID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return database.CreateOrderItemParams{}, ErrVariantNotFound
			}
			return database.CreateOrderItemParams{}, fmt.Errorf("get variant: %w", err)
		}
		if v.MenuItemID != mi.ID {
			return database.CreateOrderItemParams{}, ErrVariantMismatch
		}
		variantID = pgtype.UUID{Bytes: v.ID, Valid: true}
		variantName = optionalText(v.Name)
		unitPrice = unitPrice.Add(database.NumericToDecimal(v.PriceAdjustment))
	}

	if len(item.RemovedIngredients) > 0 {
		recipe, err := u.ListRecipeIngredients(ctx, mi.ID)
		if err != nil {
			return database.CreateOrderItemParams{}, fmt.Errorf("list recipe: %w", err)
		}
		inRecipe := make(map[uuid.UUID]bool, len(recipe))
		for _, r := range recipe {
			inRecipe[r.InventoryItemID] = true
		}
		for _, r := range item.RemovedIngredients {
			if !inRecipe[r.InventoryItemID] {
				return database.CreateOrderItemParams{}, fmt.Errorf("%w: %s", ErrNotInRecipe, r.InventoryItemID)
			}
		}
	}

	modifiers, err := marshalList(item.Modifiers)
	if err != nil {
		return database.CreateOrderItemParams{}, err
	}
	removed, err := marshalList(item.RemovedIngredients)
	if err != nil {
		return database.CreateOrderItemParams{}, err
	}
	extras, err := marshalList(item.SelectedExtras)
	if err != nil {
		return database.CreateOrderItemParams{}, err
	}

	return database.CreateOrderItemParams{
		MenuItemID:         mi.ID,
		VariantID:          variantID,
		ItemName:           mi.Name,
		VariantName:        variantName,
		UnitPrice:          database.MoneyToNumeric(unitPrice),
		Quantity:           item.Quantity,
		Modifiers:          modifiers,
		RemovedIngredients: removed,
		SelectedExtras:     extras,
		LineTotal:          database.MoneyToNumeric(lineTotal(unitPrice, item.Quantity, item.RemovedIngredients, item.SelectedExtras)),
		Station:            mi.Station,
		Notes:              optionalText(item.Notes),
	}, nil
}

// lineTotal = (unit_price - removed cost + extras) * quantity, never negative.
func lineTotal(unitPrice decimal.Decimal, qty int32, removed []RemovedIngredient, extras []SelectedExtra) decimal.Decimal {
	each := unitPrice
	for _, r := range removed {
		each = each.Sub(r.CostContribution)
	}
	for _, x := range extras {
		each = each.Add(x.Price)
	}
	if each.IsNegative() {
		each = decimal.Zero
	}
	return each.Mul(decimal.NewFromInt32(qty))
}

func marshalList[T any](list []T) ([]byte, error) {
	if list == nil {
		list = []T{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("marshal item snapshot: %w", err)
	}
	return b, nil
}

// UpdateOrderStatusRequest moves an order along its lifecycle.
type UpdateOrderStatusRequest struct {
	BranchID uuid.UUID
	OrderID  uuid.UUID
	Status   string
	Actor    uuid.UUID
	Note     string
}

// OrderTransition is the outcome of a status change. Changed is false when
// the order was already in the requested state and nothing was written.
type OrderTransition struct {
	Order     database.Order
	Changed   bool
	Movements []database.StockMovement
	Delivery  *database.Delivery
	Points    *database.LoyaltyTransaction

	autoAssign bool
}

// UpdateOrderStatus applies one edge of the order state machine and every
// side effect of it in a single unit.
func (e *Engine) UpdateOrderStatus(ctx context.Context, req UpdateOrderStatusRequest) (*OrderTransition, error) {
	if !lifecycle.Order.Known(req.Status) {
		return nil, fmt.Errorf("%w %q", ErrUnknownStatus, req.Status)
	}

	res, err := runTx(ctx, e, "update_order_status", func(ctx context.Context, u *unit) (*OrderTransition, error) {
		return e.updateOrderStatusTx(ctx, u, req)
	})
	if err != nil {
		return nil, err
	}

	if res.autoAssign && res.Delivery != nil {
		d, err := e.AssignDelivery(ctx, AssignDeliveryRequest{
			BranchID:   res.Order.BranchID,
			DeliveryID: res.Delivery.ID,
			Auto:       true,
			Actor:      req.Actor,
		})
		if err != nil {
			e.log.Warnw("auto-assign failed, delivery left pending",
				"order_id", res.Order.ID, "delivery_id", res.Delivery.ID, "error", err)
		} else {
			res.Delivery = &d.Delivery
		}
	}
	return res, nil
}

func (e *Engine) updateOrderStatusTx(ctx context.Context, u *unit, req UpdateOrderStatusRequest) (*OrderTransition, error) {
	order, err := u.GetOrder(ctx, database.GetOrderParams{ID: req.OrderID, BranchID: req.BranchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	from, to := order.Status, req.Status
	if from == to {
		return &OrderTransition{Order: order}, nil
	}
	if err := lifecycle.Order.Check(from, to); err != nil {
		return nil, err
	}
	if to == enum.OrderStatusOutForDelivery && order.OrderType != enum.OrderTypeDelivery {
		return nil, fmt.Errorf("%w: %s orders do not go out for delivery", ErrInvalidTransition, order.OrderType)
	}

	commitPoint := !order.StockDeducted && (to == enum.OrderStatusConfirmed || to == enum.OrderStatusPreparing)

	// --- CAS the order first so concurrent writers serialize on it ---
	updated, err := u.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:            order.ID,
		Version:       order.Version,
		Status:        to,
		StockDeducted: order.StockDeducted || commitPoint,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", order.ID, errStale)
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if _, err := u.CreateOrderStatusHistory(ctx, database.CreateOrderStatusHistoryParams{
		OrderID:    order.ID,
		FromStatus: optionalText(from),
		ToStatus:   to,
		Actor:      req.Actor,
		Note:       optionalText(req.Note),
	}); err != nil {
		return nil, fmt.Errorf("create order status history: %w", err)
	}

	res := &OrderTransition{Order: updated, Changed: true}

	// --- Stock commit point ---
	if commitPoint {
		items, err := u.ListOrderItemsByOrder(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("list order items: %w", err)
		}
		need, err := e.orderConsumption(ctx, u, items)
		if err != nil {
			return nil, err
		}
		res.Movements, err = e.moveStock(ctx, u, order.BranchID, negated(need), enum.StockRefOrder, order.ID, req.Actor)
		if err != nil {
			return nil, err
		}
		if order.OrderType == enum.OrderTypeDelivery {
			d, created, err := e.openDelivery(ctx, u, updated)
			if err != nil {
				return nil, err
			}
			res.Delivery = &d
			res.autoAssign = created && updated.DeliveryAssignment.String == enum.AssignmentTypeAuto
		}
	}

	switch to {
	case enum.OrderStatusCancelled:
		if err := e.cancelOrderItems(ctx, u, order); err != nil {
			return nil, err
		}
		// Only a confirmed order gives its stock back; once the kitchen has
		// started the ingredients are gone.
		if from == enum.OrderStatusConfirmed && order.StockDeducted {
			res.Movements, err = e.restoreOrderStock(ctx, u, order, req.Actor)
			if err != nil {
				return nil, err
			}
		}
		res.Delivery, err = e.cancelOrderDelivery(ctx, u, order)
		if err != nil {
			return nil, err
		}
	case enum.OrderStatusCompleted:
		res.Points, err = e.creditPoints(ctx, u, updated)
		if err != nil {
			return nil, err
		}
	case enum.OrderStatusRefunded:
		res.Points, err = e.reversePoints(ctx, u, updated)
		if err != nil {
			return nil, err
		}
	}

	if err := u.emit(ctx, updated.BranchID, enum.EntityOrder, updated.ID, updated.Status, int64(updated.Version), orderPayload(updated)); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) cancelOrderItems(ctx context.Context, u *unit, order database.Order) error {
	cancelled, err := u.CancelOpenOrderItems(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("cancel order items: %w", err)
	}
	for _, it := range cancelled {
		if err := u.emit(ctx, order.BranchID, enum.EntityOrderItem, it.ID, it.Status, int64(it.Version), itemPayload(it)); err != nil {
			return err
		}
	}
	return nil
}

// orderConsumption totals the ingredients the order's live items use.
func (e *Engine) orderConsumption(ctx context.Context, u *unit, items []database.OrderItem) (map[uuid.UUID]decimal.Decimal, error) {
	recipes := make(map[uuid.UUID][]database.RecipeIngredient)
	for _, it := range items {
		if _, ok := recipes[it.MenuItemID]; ok {
			continue
		}
		recipe, err := u.ListRecipeIngredients(ctx, it.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("list recipe: %w", err)
		}
		recipes[it.MenuItemID] = recipe
	}
	return requiredStock(items, recipes)
}

// requiredStock aggregates recipe × quantity per inventory item, leaving out
// removed ingredients and adding extras that name an inventory item.
func requiredStock(items []database.OrderItem, recipes map[uuid.UUID][]database.RecipeIngredient) (map[uuid.UUID]decimal.Decimal, error) {
	need := make(map[uuid.UUID]decimal.Decimal)
	for _, it := range items {
		if it.Status == enum.OrderItemStatusCancelled {
			continue
		}
		var removed []RemovedIngredient
		if len(it.RemovedIngredients) > 0 {
			if err := json.Unmarshal(it.RemovedIngredients, &removed); err != nil {
				return nil, fmt.Errorf("order item %s: removed ingredients: %w", it.ID, err)
			}
		}
		var extras []SelectedExtra
		if len(it.SelectedExtras) > 0 {
			if err := json.Unmarshal(it.SelectedExtras, &extras); err != nil {
				return nil, fmt.Errorf("order item %s: selected extras: %w", it.ID, err)
			}
		}
		skip := make(map[uuid.UUID]bool, len(removed))
		for _, r := range removed {
			skip[r.InventoryItemID] = true
		}

		qty := decimal.NewFromInt32(it.Quantity)
		for _, r := range recipes[it.MenuItemID] {
			if skip[r.InventoryItemID] {
				continue
			}
			need[r.InventoryItemID] = need[r.InventoryItemID].Add(database.NumericToDecimal(r.Quantity).Mul(qty))
		}
		for _, x := range extras {
			if x.InventoryItemID == nil {
				continue
			}
			amount := x.Quantity
			if amount.IsZero() {
				amount = decimal.NewFromInt(1)
			}
			need[*x.InventoryItemID] = need[*x.InventoryItemID].Add(amount.Mul(qty))
		}
	}
	return need, nil
}

// restoreOrderStock reverses every movement the order wrote.
func (e *Engine) restoreOrderStock(ctx context.Context, u *unit, order database.Order, actor uuid.UUID) ([]database.StockMovement, error) {
	mvs, err := u.ListStockMovementsByReference(ctx, database.ListStockMovementsByReferenceParams{
		ReferenceID:   optionalUUID(order.ID),
		ReferenceType: enum.StockRefOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("list order movements: %w", err)
	}
	consumed := make(map[uuid.UUID]decimal.Decimal)
	for _, mv := range mvs {
		consumed[mv.InventoryItemID] = consumed[mv.InventoryItemID].Sub(database.NumericToDecimal(mv.QuantityChange))
	}
	return e.moveStock(ctx, u, order.BranchID, consumed, enum.StockRefOrderCancellation, order.ID, actor)
}

// openDelivery creates the order's delivery row unless it already exists.
func (e *Engine) openDelivery(ctx context.Context, u *unit, order database.Order) (database.Delivery, bool, error) {
	d, err := u.GetDeliveryByOrder(ctx, order.ID)
	if err == nil {
		return d, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return database.Delivery{}, false, fmt.Errorf("get delivery by order: %w", err)
	}

	assignment := order.DeliveryAssignment.String
	if assignment == "" {
		assignment = enum.AssignmentTypeManual
	}
	d, err = u.CreateDelivery(ctx, database.CreateDeliveryParams{
		OrderID:        order.ID,
		BranchID:       order.BranchID,
		AssignmentType: assignment,
		Address:        order.DeliveryAddress.String,
		Phone:          order.DeliveryPhone,
		Fee:            order.DeliveryFee,
	})
	if err != nil {
		return database.Delivery{}, false, fmt.Errorf("create delivery: %w", err)
	}
	if err := u.emit(ctx, d.BranchID, enum.EntityDelivery, d.ID, d.Status, int64(d.Version), deliveryPayload(d)); err != nil {
		return database.Delivery{}, false, err
	}
	return d, true, nil
}

// cancelOrderDelivery cancels the order's delivery if it is still open.
func (e *Engine) cancelOrderDelivery(ctx context.Context, u *unit, order database.Order) (*database.Delivery, error) {
	if order.OrderType != enum.OrderTypeDelivery {
		return nil, nil
	}
	d, err := u.GetDeliveryByOrder(ctx, order.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get delivery by order: %w", err)
	}
	if lifecycle.Delivery.Terminal(d.Status) {
		return nil, nil
	}
	out, err := e.moveDelivery(ctx, u, d, enum.DeliveryStatusCancelled, "order cancelled")
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// creditPoints awards floor(total × rate) points to the order's customer.
func (e *Engine) creditPoints(ctx context.Context, u *unit, order database.Order) (*database.LoyaltyTransaction, error) {
	if !order.CustomerID.Valid {
		return nil, nil
	}
	points := database.NumericToDecimal(order.TotalAmount).Mul(e.opts.PointsRate).Floor().IntPart()
	if points <= 0 {
		return nil, nil
	}
	return e.appendPoints(ctx, u, order, points, enum.PointsRefOrderCompleted, "")
}

// reversePoints takes back what the order earned, capped at the current
// balance so it never goes negative.
func (e *Engine) reversePoints(ctx context.Context, u *unit, order database.Order) (*database.LoyaltyTransaction, error) {
	if !order.CustomerID.Valid {
		return nil, nil
	}
	txs, err := u.ListLoyaltyTransactionsByOrder(ctx, optionalUUID(order.ID))
	if err != nil {
		return nil, fmt.Errorf("list order loyalty transactions: %w", err)
	}
	var earned int64
	for _, t := range txs {
		earned += t.Points
	}
	if earned <= 0 {
		return nil, nil
	}
	c, err := u.GetCustomer(ctx, uuid.UUID(order.CustomerID.Bytes))
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	take := min(earned, c.LoyaltyPointsBalance)
	if take <= 0 {
		return nil, nil
	}
	return e.appendPoints(ctx, u, order, -take, enum.PointsRefOrderRefunded, fmt.Sprintf("refund of order %d", order.OrderNumber))
}

func (e *Engine) appendPoints(ctx context.Context, u *unit, order database.Order, points int64, ref, reason string) (*database.LoyaltyTransaction, error) {
	res, err := ledger.AppendPoints(ctx, u, ledger.PointsEntry{
		CustomerID:    uuid.UUID(order.CustomerID.Bytes),
		OrderID:       order.ID,
		Points:        points,
		ReferenceType: ref,
		Reason:        reason,
	})
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", order.ID, err)
	}
	c := res.Customer
	if err := u.emit(ctx, c.BranchID, enum.EntityCustomer, c.ID, ref, int64(c.Version), map[string]any{
		"points":         res.Transaction.Points,
		"balance":        c.LoyaltyPointsBalance,
		"order_id":       order.ID,
		"transaction_id": res.Transaction.ID,
	}); err != nil {
		return nil, err
	}
	return &res.Transaction, nil
}

// UpdateOrderItemStatusRequest moves one line along the station workflow.
type UpdateOrderItemStatusRequest struct {
	BranchID uuid.UUID
	OrderID  uuid.UUID
	ItemID   uuid.UUID
	Status   string
	Actor    uuid.UUID
}

// ItemTransition is the outcome of an item status change.
type ItemTransition struct {
	Item    database.OrderItem
	Changed bool
}

// UpdateOrderItemStatus is allowed only while the parent order is live in
// the kitchen or on the floor.
func (e *Engine) UpdateOrderItemStatus(ctx context.Context, req UpdateOrderItemStatusRequest) (*ItemTransition, error) {
	if !lifecycle.OrderItem.Known(req.Status) {
		return nil, fmt.Errorf("%w %q", ErrUnknownStatus, req.Status)
	}

	return runTx(ctx, e, "update_order_item_status", func(ctx context.Context, u *unit) (*ItemTransition, error) {
		order, err := u.GetOrder(ctx, database.GetOrderParams{ID: req.OrderID, BranchID: req.BranchID})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrOrderNotFound
			}
			return nil, fmt.Errorf("get order: %w", err)
		}
		item, err := u.GetOrderItem(ctx, database.GetOrderItemParams{ID: req.ItemID, OrderID: order.ID})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrOrderItemNotFound
			}
			return nil, fmt.Errorf("get order item: %w", err)
		}

		if item.Status == req.Status {
			return &ItemTransition{Item: item}, nil
		}
		if !lifecycle.OrderItemEditable[order.Status] {
			return nil, fmt.Errorf("%w: order is %s", ErrInvalidState, order.Status)
		}
		if err := lifecycle.OrderItem.Check(item.Status, req.Status); err != nil {
			return nil, err
		}

		updated, err := u.UpdateOrderItemStatus(ctx, database.UpdateOrderItemStatusParams{
			ID:      item.ID,
			Version: item.Version,
			Status:  req.Status,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("order item %s: %w", item.ID, errStale)
			}
			return nil, fmt.Errorf("update order item status: %w", err)
		}
		if err := u.emit(ctx, order.BranchID, enum.EntityOrderItem, updated.ID, updated.Status, int64(updated.Version), itemPayload(updated)); err != nil {
			return nil, err
		}
		return &ItemTransition{Item: updated, Changed: true}, nil
	})
}

// --- Event payloads ---

func orderPayload(o database.Order) map[string]any {
	return map[string]any{
		"order_number":   o.OrderNumber,
		"order_type":     o.OrderType,
		"total_amount":   database.NumericToDecimal(o.TotalAmount).StringFixed(2),
		"stock_deducted": o.StockDeducted,
	}
}

func itemPayload(it database.OrderItem) map[string]any {
	return map[string]any{
		"order_id": it.OrderID,
		"station":  it.Station,
		"name":     it.ItemName,
		"quantity": it.Quantity,
	}
}
