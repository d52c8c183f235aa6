package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderServicer defines the engine commands needed by order handlers.
// Satisfied by *service.Engine; narrow interface for testability.
type OrderServicer interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (*service.OrderResult, error)
	UpdateOrderStatus(ctx context.Context, req service.UpdateOrderStatusRequest) (*service.OrderTransition, error)
	UpdateOrderItemStatus(ctx context.Context, req service.UpdateOrderItemStatusRequest) (*service.ItemTransition, error)
}

// OrderStore defines the read queries behind order polling.
// Satisfied by *database.Queries.
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListOrderStatusHistory(ctx context.Context, orderID uuid.UUID) ([]database.OrderStatusHistory, error)
	GetDeliveryByOrder(ctx context.Context, orderID uuid.UUID) (database.Delivery, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderStore
	log   *zap.SugaredLogger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderStore, log *zap.SugaredLogger) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, log: log}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside a branch-scoped subrouter: /branches/{bid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/history", h.History)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Patch("/{id}/items/{itemID}/status", h.UpdateItemStatus)
}

// --- Request / Response types ---

type createOrderRequest struct {
	OrderType      string                   `json:"order_type"`
	CustomerID     uuid.UUID                `json:"customer_id"`
	TableNumber    string                   `json:"table_number"`
	Notes          string                   `json:"notes"`
	DiscountAmount decimal.Decimal          `json:"discount_amount"`
	TipAmount      decimal.Decimal          `json:"tip_amount"`
	Delivery       *deliveryDetailsRequest  `json:"delivery"`
	Items          []createOrderItemRequest `json:"items"`
}

type deliveryDetailsRequest struct {
	Address    string          `json:"address"`
	Phone      string          `json:"phone"`
	Fee        decimal.Decimal `json:"fee"`
	AutoAssign bool            `json:"auto_assign"`
}

type createOrderItemRequest struct {
	MenuItemID         uuid.UUID                   `json:"menu_item_id"`
	VariantID          uuid.UUID                   `json:"variant_id"`
	Quantity           int32                       `json:"quantity"`
	Notes              string                      `json:"notes"`
	Modifiers          []service.Modifier          `json:"modifiers"`
	RemovedIngredients []service.RemovedIngredient `json:"removed_ingredients"`
	SelectedExtras     []service.SelectedExtra     `json:"selected_extras"`
}

type orderResponse struct {
	ID                 uuid.UUID           `json:"id"`
	BranchID           uuid.UUID           `json:"branch_id"`
	OrderNumber        int64               `json:"order_number"`
	OrderType          string              `json:"order_type"`
	Status             string              `json:"status"`
	CustomerID         *uuid.UUID          `json:"customer_id"`
	TableNumber        *string             `json:"table_number"`
	Notes              *string             `json:"notes"`
	Subtotal           string              `json:"subtotal"`
	TaxAmount          string              `json:"tax_amount"`
	DiscountAmount     string              `json:"discount_amount"`
	TipAmount          string              `json:"tip_amount"`
	DeliveryFee        string              `json:"delivery_fee"`
	TotalAmount        string              `json:"total_amount"`
	DeliveryAddress    *string             `json:"delivery_address"`
	DeliveryPhone      *string             `json:"delivery_phone"`
	DeliveryAssignment *string             `json:"delivery_assignment"`
	StockDeducted      bool                `json:"stock_deducted"`
	CreatedBy          uuid.UUID           `json:"created_by"`
	Version            int32               `json:"version"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	Items              []orderItemResponse `json:"items,omitempty"`
	Delivery           *database.Delivery  `json:"delivery,omitempty"`
}

type orderItemResponse struct {
	ID                 uuid.UUID       `json:"id"`
	MenuItemID         uuid.UUID       `json:"menu_item_id"`
	VariantID          *uuid.UUID      `json:"variant_id"`
	ItemName           string          `json:"item_name"`
	VariantName        *string         `json:"variant_name"`
	UnitPrice          string          `json:"unit_price"`
	Quantity           int32           `json:"quantity"`
	Modifiers          json.RawMessage `json:"modifiers"`
	RemovedIngredients json.RawMessage `json:"removed_ingredients"`
	SelectedExtras     json.RawMessage `json:"selected_extras"`
	LineTotal          string          `json:"line_total"`
	Station            string          `json:"station"`
	Status             string          `json:"status"`
	Notes              *string         `json:"notes"`
	Version            int32           `json:"version"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type transitionResponse struct {
	Order     orderResponse                `json:"order"`
	Changed   bool                         `json:"changed"`
	Movements []database.StockMovement     `json:"movements,omitempty"`
	Delivery  *database.Delivery           `json:"delivery,omitempty"`
	Points    *database.LoyaltyTransaction `json:"points,omitempty"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// --- Handlers ---

// Create handles POST /branches/{bid}/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	items := make([]service.PlaceOrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = service.PlaceOrderItem{
			MenuItemID:         it.MenuItemID,
			VariantID:          it.VariantID,
			Quantity:           it.Quantity,
			Notes:              it.Notes,
			Modifiers:          it.Modifiers,
			RemovedIngredients: it.RemovedIngredients,
			SelectedExtras:     it.SelectedExtras,
		}
	}
	svcReq := service.PlaceOrderRequest{
		BranchID:       bid,
		CreatedBy:      actorID(r),
		OrderType:      req.OrderType,
		CustomerID:     req.CustomerID,
		TableNumber:    req.TableNumber,
		Notes:          req.Notes,
		DiscountAmount: req.DiscountAmount,
		TipAmount:      req.TipAmount,
		Items:          items,
	}
	if req.Delivery != nil {
		svcReq.Delivery = &service.DeliveryDetails{
			Address:    req.Delivery.Address,
			Phone:      req.Delivery.Phone,
			Fee:        req.Delivery.Fee,
			AutoAssign: req.Delivery.AutoAssign,
		}
	}

	result, err := h.svc.PlaceOrder(r.Context(), svcReq)
	if err != nil {
		writeError(w, h.log, "place order", err)
		return
	}

	resp := toOrderResponse(result.Order)
	resp.Items = toOrderItemResponses(result.Items)
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /branches/{bid}/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 20, 100)
	if limit == 0 {
		limit = 20
	}
	offset := queryInt(r, "offset", 0, 0)

	params := database.ListOrdersParams{
		BranchID: bid,
		Limit:    int32(limit),
		Offset:   int32(offset),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := r.URL.Query().Get("type"); s != "" {
		params.OrderType = pgtype.Text{String: s, Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		h.log.Errorw("list orders failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, orderListResponse{Orders: resp, Limit: limit, Offset: offset})
}

// Get handles GET /branches/{bid}/orders/{id}. Clients poll this as the
// fallback when they cannot hold a websocket.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	orderID, ok := urlUUID(w, r, "id", "order")
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: orderID, BranchID: bid})
	if err != nil {
		writeStoreError(w, h.log, "order", err)
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		writeStoreError(w, h.log, "order items", err)
		return
	}

	resp := toOrderResponse(order)
	resp.Items = toOrderItemResponses(items)

	delivery, err := h.store.GetDeliveryByOrder(r.Context(), orderID)
	switch {
	case err == nil:
		resp.Delivery = &delivery
	case !errors.Is(err, pgx.ErrNoRows):
		writeStoreError(w, h.log, "delivery", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// History handles GET /branches/{bid}/orders/{id}/history.
func (h *OrderHandler) History(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	orderID, ok := urlUUID(w, r, "id", "order")
	if !ok {
		return
	}

	if _, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: orderID, BranchID: bid}); err != nil {
		writeStoreError(w, h.log, "order", err)
		return
	}

	history, err := h.store.ListOrderStatusHistory(r.Context(), orderID)
	if err != nil {
		writeStoreError(w, h.log, "order history", err)
		return
	}
	if history == nil {
		history = []database.OrderStatusHistory{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

// UpdateStatus handles PATCH /branches/{bid}/orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	orderID, ok := urlUUID(w, r, "id", "order")
	if !ok {
		return
	}

	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Status == "" {
		badRequest(w, "status is required")
		return
	}

	res, err := h.svc.UpdateOrderStatus(r.Context(), service.UpdateOrderStatusRequest{
		BranchID: bid,
		OrderID:  orderID,
		Status:   req.Status,
		Actor:    actorID(r),
		Note:     req.Note,
	})
	if err != nil {
		writeError(w, h.log, "update order status", err)
		return
	}

	writeJSON(w, http.StatusOK, transitionResponse{
		Order:     toOrderResponse(res.Order),
		Changed:   res.Changed,
		Movements: res.Movements,
		Delivery:  res.Delivery,
		Points:    res.Points,
	})
}

// UpdateItemStatus handles PATCH /branches/{bid}/orders/{id}/items/{itemID}/status.
func (h *OrderHandler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	orderID, ok := urlUUID(w, r, "id", "order")
	if !ok {
		return
	}
	itemID, ok := urlUUID(w, r, "itemID", "item")
	if !ok {
		return
	}

	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Status == "" {
		badRequest(w, "status is required")
		return
	}

	res, err := h.svc.UpdateOrderItemStatus(r.Context(), service.UpdateOrderItemStatusRequest{
		BranchID: bid,
		OrderID:  orderID,
		ItemID:   itemID,
		Status:   req.Status,
		Actor:    actorID(r),
	})
	if err != nil {
		writeError(w, h.log, "update order item status", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"item":    toOrderItemResponse(res.Item),
		"changed": res.Changed,
	})
}

// --- Conversion helpers ---

func toOrderResponse(o database.Order) orderResponse {
	return orderResponse{
		ID:                 o.ID,
		BranchID:           o.BranchID,
		OrderNumber:        o.OrderNumber,
		OrderType:          o.OrderType,
		Status:             o.Status,
		CustomerID:         uuidPtr(o.CustomerID),
		TableNumber:        textPtr(o.TableNumber),
		Notes:              textPtr(o.Notes),
		Subtotal:           money(o.Subtotal),
		TaxAmount:          money(o.TaxAmount),
		DiscountAmount:     money(o.DiscountAmount),
		TipAmount:          money(o.TipAmount),
		DeliveryFee:        money(o.DeliveryFee),
		TotalAmount:        money(o.TotalAmount),
		DeliveryAddress:    textPtr(o.DeliveryAddress),
		DeliveryPhone:      textPtr(o.DeliveryPhone),
		DeliveryAssignment: textPtr(o.DeliveryAssignment),
		StockDeducted:      o.StockDeducted,
		CreatedBy:          o.CreatedBy,
		Version:            o.Version,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

func toOrderItemResponses(items []database.OrderItem) []orderItemResponse {
	out := make([]orderItemResponse, len(items))
	for i, it := range items {
		out[i] = toOrderItemResponse(it)
	}
	return out
}

func toOrderItemResponse(it database.OrderItem) orderItemResponse {
	return orderItemResponse{
		ID:                 it.ID,
		MenuItemID:         it.MenuItemID,
		VariantID:          uuidPtr(it.VariantID),
		ItemName:           it.ItemName,
		VariantName:        textPtr(it.VariantName),
		UnitPrice:          money(it.UnitPrice),
		Quantity:           it.Quantity,
		Modifiers:          rawList(it.Modifiers),
		RemovedIngredients: rawList(it.RemovedIngredients),
		SelectedExtras:     rawList(it.SelectedExtras),
		LineTotal:          money(it.LineTotal),
		Station:            it.Station,
		Status:             it.Status,
		Notes:              textPtr(it.Notes),
		Version:            it.Version,
	}
}

func money(n pgtype.Numeric) string {
	return database.NumericToDecimal(n).StringFixed(2)
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func uuidPtr(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}

// rawList passes stored JSON arrays through untouched.
func rawList(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("[]")
	}
	return json.RawMessage(b)
}
