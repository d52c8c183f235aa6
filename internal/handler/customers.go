package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/ledger"
	"go.uber.org/zap"
)

// PointsAuditor folds a customer's loyalty ledger.
type PointsAuditor interface {
	VerifyPoints(ctx context.Context, branchID, customerID uuid.UUID) (*ledger.PointsAudit, error)
}

// CustomerStore defines the database methods needed by customer handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type CustomerStore interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)
	ListLoyaltyTransactionsByCustomer(ctx context.Context, customerID uuid.UUID) ([]database.LoyaltyTransaction, error)
}

// CustomerHandler serves the loyalty side of a customer: balance, ledger and audit.
type CustomerHandler struct {
	svc   PointsAuditor
	store CustomerStore
	log   *zap.SugaredLogger
}

func NewCustomerHandler(svc PointsAuditor, store CustomerStore, log *zap.SugaredLogger) *CustomerHandler {
	return &CustomerHandler{svc: svc, store: store, log: log}
}

// RegisterRoutes mounts /branches/{bid}/customers.
func (h *CustomerHandler) RegisterRoutes(r chi.Router) {
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Get("/points", h.Points)
		r.Get("/points/audit", h.PointsAudit)
	})
}

type customerResponse struct {
	ID            uuid.UUID `json:"id"`
	BranchID      uuid.UUID `json:"branch_id"`
	Name          string    `json:"name"`
	Phone         *string   `json:"phone"`
	PointsBalance int64     `json:"points_balance"`
	Version       int32     `json:"version"`
}

func toCustomerResponse(c database.Customer) customerResponse {
	return customerResponse{
		ID:            c.ID,
		BranchID:      c.BranchID,
		Name:          c.Name,
		Phone:         textPtr(c.Phone),
		PointsBalance: c.LoyaltyPointsBalance,
		Version:       c.Version,
	}
}

// load fetches the customer and hides customers of other branches.
func (h *CustomerHandler) load(w http.ResponseWriter, r *http.Request) (database.Customer, bool) {
	bid, ok := branchID(w, r)
	if !ok {
		return database.Customer{}, false
	}
	id, ok := urlUUID(w, r, "id", "customer")
	if !ok {
		return database.Customer{}, false
	}

	c, err := h.store.GetCustomer(r.Context(), id)
	if err != nil {
		writeStoreError(w, h.log, "customer", err)
		return database.Customer{}, false
	}
	if c.BranchID != bid {
		notFound(w, "customer not found")
		return database.Customer{}, false
	}
	return c, true
}

// Get handles GET /branches/{bid}/customers/{id}.
func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

// Points handles GET /branches/{bid}/customers/{id}/points.
func (h *CustomerHandler) Points(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}

	txs, err := h.store.ListLoyaltyTransactionsByCustomer(r.Context(), c.ID)
	if err != nil {
		writeStoreError(w, h.log, "loyalty transactions", err)
		return
	}
	if txs == nil {
		txs = []database.LoyaltyTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"customer":     toCustomerResponse(c),
		"transactions": txs,
	})
}

// PointsAudit handles GET /branches/{bid}/customers/{id}/points/audit.
func (h *CustomerHandler) PointsAudit(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "customer")
	if !ok {
		return
	}

	audit, err := h.svc.VerifyPoints(r.Context(), bid, id)
	if err != nil {
		writeError(w, h.log, "verify points", err)
		return
	}
	if !audit.Consistent {
		h.log.Warnw("points ledger drift", "customer_id", id, "cached", audit.Cached, "folded", audit.Folded)
	}
	writeJSON(w, http.StatusOK, audit)
}
