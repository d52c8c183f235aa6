package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/fulfillment/internal/auth"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/handler"
	"github.com/kiwari-pos/fulfillment/internal/ledger"
	"github.com/kiwari-pos/fulfillment/internal/middleware"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"go.uber.org/zap"
)

// --- Mock engine ---

// mockEngine implements every *Servicer interface; unset funcs panic so a
// test notices when a handler calls something unexpected.
type mockEngine struct {
	placeOrderFn            func(ctx context.Context, req service.PlaceOrderRequest) (*service.OrderResult, error)
	updateOrderStatusFn     func(ctx context.Context, req service.UpdateOrderStatusRequest) (*service.OrderTransition, error)
	updateOrderItemStatusFn func(ctx context.Context, req service.UpdateOrderItemStatusRequest) (*service.ItemTransition, error)
	createAssignmentFn      func(ctx context.Context, req service.CreateMealAssignmentRequest) (*service.AssignmentResult, error)
	respondAssignmentFn     func(ctx context.Context, req service.RespondToAssignmentRequest) (*service.AssignmentResult, error)
	startAssignmentFn       func(ctx context.Context, branchID, id uuid.UUID) (*service.AssignmentResult, error)
	completeAssignmentFn    func(ctx context.Context, req service.CompleteAssignmentRequest) (*service.CompleteResult, error)
	updateAssignmentFn      func(ctx context.Context, req service.UpdateMealAssignmentRequest) (*service.AssignmentResult, error)
	deleteAssignmentFn      func(ctx context.Context, branchID, id uuid.UUID) error
	decrementMealFn         func(ctx context.Context, req service.DecrementAvailableMealRequest) (*database.AvailableMeal, error)
	assignDeliveryFn        func(ctx context.Context, req service.AssignDeliveryRequest) (*service.DeliveryResult, error)
	updateDeliveryStatusFn  func(ctx context.Context, req service.UpdateDeliveryStatusRequest) (*service.DeliveryResult, error)
	respondDeliveryFn       func(ctx context.Context, req service.RespondToDeliveryRequest) (*service.DeliveryResult, error)
	recordLocationFn        func(ctx context.Context, req service.RiderLocationRequest) (*database.RiderLocation, error)
	adjustStockFn           func(ctx context.Context, req service.AdjustStockRequest) (*ledger.StockResult, error)
	verifyStockFn           func(ctx context.Context, branchID, itemID uuid.UUID) (*ledger.StockAudit, error)
	verifyPointsFn          func(ctx context.Context, branchID, customerID uuid.UUID) (*ledger.PointsAudit, error)
}

func (m *mockEngine) PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (*service.OrderResult, error) {
	return m.placeOrderFn(ctx, req)
}

func (m *mockEngine) UpdateOrderStatus(ctx context.Context, req service.UpdateOrderStatusRequest) (*service.OrderTransition, error) {
	return m.updateOrderStatusFn(ctx, req)
}

func (m *mockEngine) UpdateOrderItemStatus(ctx context.Context, req service.UpdateOrderItemStatusRequest) (*service.ItemTransition, error) {
	return m.updateOrderItemStatusFn(ctx, req)
}

func (m *mockEngine) CreateMealAssignment(ctx context.Context, req service.CreateMealAssignmentRequest) (*service.AssignmentResult, error) {
	return m.createAssignmentFn(ctx, req)
}

func (m *mockEngine) RespondToAssignment(ctx context.Context, req service.RespondToAssignmentRequest) (*service.AssignmentResult, error) {
	return m.respondAssignmentFn(ctx, req)
}

func (m *mockEngine) StartAssignment(ctx context.Context, branchID, id uuid.UUID) (*service.AssignmentResult, error) {
	return m.startAssignmentFn(ctx, branchID, id)
}

func (m *mockEngine) CompleteAssignment(ctx context.Context, req service.CompleteAssignmentRequest) (*service.CompleteResult, error) {
	return m.completeAssignmentFn(ctx, req)
}

func (m *mockEngine) UpdateMealAssignment(ctx context.Context, req service.UpdateMealAssignmentRequest) (*service.AssignmentResult, error) {
	return m.updateAssignmentFn(ctx, req)
}

func (m *mockEngine) DeleteMealAssignment(ctx context.Context, branchID, id uuid.UUID) error {
	return m.deleteAssignmentFn(ctx, branchID, id)
}

func (m *mockEngine) DecrementAvailableMeal(ctx context.Context, req service.DecrementAvailableMealRequest) (*database.AvailableMeal, error) {
	return m.decrementMealFn(ctx, req)
}

func (m *mockEngine) AssignDelivery(ctx context.Context, req service.AssignDeliveryRequest) (*service.DeliveryResult, error) {
	return m.assignDeliveryFn(ctx, req)
}

func (m *mockEngine) UpdateDeliveryStatus(ctx context.Context, req service.UpdateDeliveryStatusRequest) (*service.DeliveryResult, error) {
	return m.updateDeliveryStatusFn(ctx, req)
}

func (m *mockEngine) RespondToDelivery(ctx context.Context, req service.RespondToDeliveryRequest) (*service.DeliveryResult, error) {
	return m.respondDeliveryFn(ctx, req)
}

func (m *mockEngine) RecordRiderLocation(ctx context.Context, req service.RiderLocationRequest) (*database.RiderLocation, error) {
	return m.recordLocationFn(ctx, req)
}

func (m *mockEngine) AdjustStock(ctx context.Context, req service.AdjustStockRequest) (*ledger.StockResult, error) {
	return m.adjustStockFn(ctx, req)
}

func (m *mockEngine) VerifyStock(ctx context.Context, branchID, itemID uuid.UUID) (*ledger.StockAudit, error) {
	return m.verifyStockFn(ctx, branchID, itemID)
}

func (m *mockEngine) VerifyPoints(ctx context.Context, branchID, customerID uuid.UUID) (*ledger.PointsAudit, error) {
	return m.verifyPointsFn(ctx, branchID, customerID)
}

// --- Mock store ---

// mockStore implements every read-side store interface. Unset lookups
// report pgx.ErrNoRows; unset lists return empty.
type mockStore struct {
	getOrderFn            func(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	listOrdersFn          func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	listOrderItemsFn      func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	listHistoryFn         func(ctx context.Context, orderID uuid.UUID) ([]database.OrderStatusHistory, error)
	getDeliveryByOrderFn  func(ctx context.Context, orderID uuid.UUID) (database.Delivery, error)
	getAssignmentFn       func(ctx context.Context, arg database.GetMealAssignmentParams) (database.MealAssignment, error)
	listAssignmentsFn     func(ctx context.Context, arg database.ListMealAssignmentsParams) ([]database.MealAssignment, error)
	listMealsFn           func(ctx context.Context, branchID uuid.UUID) ([]database.AvailableMeal, error)
	getDeliveryFn         func(ctx context.Context, arg database.GetDeliveryParams) (database.Delivery, error)
	listDeliveriesFn      func(ctx context.Context, arg database.ListDeliveriesParams) ([]database.Delivery, error)
	getInventoryItemFn    func(ctx context.Context, id uuid.UUID) (database.InventoryItem, error)
	listMovementsFn       func(ctx context.Context, id uuid.UUID) ([]database.StockMovement, error)
	listOutboxEventsAfter func(ctx context.Context, arg database.ListOutboxEventsAfterParams) ([]database.OutboxEvent, error)
	getCustomerFn         func(ctx context.Context, id uuid.UUID) (database.Customer, error)
	listLoyaltyFn         func(ctx context.Context, customerID uuid.UUID) ([]database.LoyaltyTransaction, error)
}

func (m *mockStore) GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, arg)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx, arg)
	}
	return nil, nil
}

func (m *mockStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	if m.listOrderItemsFn != nil {
		return m.listOrderItemsFn(ctx, orderID)
	}
	return nil, nil
}

func (m *mockStore) ListOrderStatusHistory(ctx context.Context, orderID uuid.UUID) ([]database.OrderStatusHistory, error) {
	if m.listHistoryFn != nil {
		return m.listHistoryFn(ctx, orderID)
	}
	return nil, nil
}

func (m *mockStore) GetDeliveryByOrder(ctx context.Context, orderID uuid.UUID) (database.Delivery, error) {
	if m.getDeliveryByOrderFn != nil {
		return m.getDeliveryByOrderFn(ctx, orderID)
	}
	return database.Delivery{}, pgx.ErrNoRows
}

func (m *mockStore) GetMealAssignment(ctx context.Context, arg database.GetMealAssignmentParams) (database.MealAssignment, error) {
	if m.getAssignmentFn != nil {
		return m.getAssignmentFn(ctx, arg)
	}
	return database.MealAssignment{}, pgx.ErrNoRows
}

func (m *mockStore) ListMealAssignments(ctx context.Context, arg database.ListMealAssignmentsParams) ([]database.MealAssignment, error) {
	if m.listAssignmentsFn != nil {
		return m.listAssignmentsFn(ctx, arg)
	}
	return nil, nil
}

func (m *mockStore) ListAvailableMeals(ctx context.Context, branchID uuid.UUID) ([]database.AvailableMeal, error) {
	if m.listMealsFn != nil {
		return m.listMealsFn(ctx, branchID)
	}
	return nil, nil
}

func (m *mockStore) GetDelivery(ctx context.Context, arg database.GetDeliveryParams) (database.Delivery, error) {
	if m.getDeliveryFn != nil {
		return m.getDeliveryFn(ctx, arg)
	}
	return database.Delivery{}, pgx.ErrNoRows
}

func (m *mockStore) ListDeliveries(ctx context.Context, arg database.ListDeliveriesParams) ([]database.Delivery, error) {
	if m.listDeliveriesFn != nil {
		return m.listDeliveriesFn(ctx, arg)
	}
	return nil, nil
}

func (m *mockStore) GetInventoryItem(ctx context.Context, id uuid.UUID) (database.InventoryItem, error) {
	if m.getInventoryItemFn != nil {
		return m.getInventoryItemFn(ctx, id)
	}
	return database.InventoryItem{}, pgx.ErrNoRows
}

func (m *mockStore) ListStockMovementsByItem(ctx context.Context, id uuid.UUID) ([]database.StockMovement, error) {
	if m.listMovementsFn != nil {
		return m.listMovementsFn(ctx, id)
	}
	return nil, nil
}

func (m *mockStore) ListOutboxEventsAfter(ctx context.Context, arg database.ListOutboxEventsAfterParams) ([]database.OutboxEvent, error) {
	if m.listOutboxEventsAfter != nil {
		return m.listOutboxEventsAfter(ctx, arg)
	}
	return nil, nil
}

func (m *mockStore) GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error) {
	if m.getCustomerFn != nil {
		return m.getCustomerFn(ctx, id)
	}
	return database.Customer{}, pgx.ErrNoRows
}

func (m *mockStore) ListLoyaltyTransactionsByCustomer(ctx context.Context, customerID uuid.UUID) ([]database.LoyaltyTransaction, error) {
	if m.listLoyaltyFn != nil {
		return m.listLoyaltyFn(ctx, customerID)
	}
	return nil, nil
}

// --- Test helpers ---

const testJWTSecret = "test-secret-for-handlers"

// setupRouter mounts every handler the way the real router does, minus
// rate limiting and CORS.
func setupRouter(svc *mockEngine, store *mockStore) *chi.Mux {
	log := zap.NewNop().Sugar()
	orders := handler.NewOrderHandler(svc, store, log)
	kitchen := handler.NewKitchenHandler(svc, store, log)
	deliveries := handler.NewDeliveryHandler(svc, store, log)
	inventory := handler.NewInventoryHandler(svc, store, log)
	customers := handler.NewCustomerHandler(svc, store, log)
	evts := handler.NewEventHandler(store, log)

	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/branches/{bid}", func(r chi.Router) {
		r.Use(middleware.RequireBranch)
		r.Route("/orders", orders.RegisterRoutes)
		r.Route("/meal-assignments", kitchen.RegisterAssignmentRoutes)
		r.Route("/available-meals", kitchen.RegisterMealRoutes)
		r.Route("/deliveries", deliveries.RegisterRoutes)
		r.Route("/riders", deliveries.RegisterRiderRoutes)
		r.Route("/inventory", inventory.RegisterRoutes)
		r.Route("/customers", customers.RegisterRoutes)
		r.Route("/events", evts.RegisterRoutes)
	})
	return r
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	token, err := auth.GenerateToken(testJWTSecret, claims.UserID, claims.BranchID, claims.Role, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func testClaims(branchID uuid.UUID) *auth.Claims {
	return &auth.Claims{
		UserID:   uuid.New(),
		BranchID: branchID,
		Role:     enum.UserRoleCashier,
	}
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, want, rr.Body.String())
	}
}

func assertErrorKind(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	resp := decodeResponse(t, rr)
	if resp["error"] != want {
		t.Errorf("error kind: got %v, want %q (message %v)", resp["error"], want, resp["message"])
	}
}
