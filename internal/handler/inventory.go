package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/ledger"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerServicer covers stock adjustments and the stock ledger audit.
type LedgerServicer interface {
	AdjustStock(ctx context.Context, req service.AdjustStockRequest) (*ledger.StockResult, error)
	VerifyStock(ctx context.Context, branchID, itemID uuid.UUID) (*ledger.StockAudit, error)
}

type InventoryStore interface {
	GetInventoryItem(ctx context.Context, id uuid.UUID) (database.InventoryItem, error)
	ListStockMovementsByItem(ctx context.Context, inventoryItemID uuid.UUID) ([]database.StockMovement, error)
}

type InventoryHandler struct {
	svc   LedgerServicer
	store InventoryStore
	log   *zap.SugaredLogger
}

func NewInventoryHandler(svc LedgerServicer, store InventoryStore, log *zap.SugaredLogger) *InventoryHandler {
	return &InventoryHandler{svc: svc, store: store, log: log}
}

// RegisterRoutes mounts /branches/{bid}/inventory.
func (h *InventoryHandler) RegisterRoutes(r chi.Router) {
	r.Post("/{id}/adjust", h.Adjust)
	r.Get("/{id}/movements", h.Movements)
	r.Get("/{id}/audit", h.Audit)
}

type adjustStockRequest struct {
	Delta  decimal.Decimal `json:"delta"`
	Reason string          `json:"reason"`
}

type adjustStockResponse struct {
	Item     database.InventoryItem `json:"item"`
	Level    string                 `json:"level"`
	Movement database.StockMovement `json:"movement"`
}

// Adjust handles POST /branches/{bid}/inventory/{id}/adjust.
func (h *InventoryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "inventory item")
	if !ok {
		return
	}
	var req adjustStockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.AdjustStock(r.Context(), service.AdjustStockRequest{
		BranchID:        bid,
		InventoryItemID: id,
		Delta:           req.Delta,
		Reason:          req.Reason,
		Actor:           actorID(r),
	})
	if err != nil {
		writeError(w, h.log, "adjust stock", err)
		return
	}
	writeJSON(w, http.StatusOK, adjustStockResponse{
		Item:     res.Item,
		Level:    service.StockLevel(res.Item),
		Movement: res.Movement,
	})
}

// Movements handles GET /branches/{bid}/inventory/{id}/movements.
func (h *InventoryHandler) Movements(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "inventory item")
	if !ok {
		return
	}

	item, err := h.store.GetInventoryItem(r.Context(), id)
	if err != nil {
		writeStoreError(w, h.log, "inventory item", err)
		return
	}
	if item.BranchID != bid {
		notFound(w, "inventory item not found")
		return
	}

	movements, err := h.store.ListStockMovementsByItem(r.Context(), id)
	if err != nil {
		writeStoreError(w, h.log, "stock movements", err)
		return
	}
	if movements == nil {
		movements = []database.StockMovement{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"item":      item,
		"level":     service.StockLevel(item),
		"movements": movements,
	})
}

// Audit handles GET /branches/{bid}/inventory/{id}/audit.
func (h *InventoryHandler) Audit(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "inventory item")
	if !ok {
		return
	}

	audit, err := h.svc.VerifyStock(r.Context(), bid, id)
	if err != nil {
		writeError(w, h.log, "verify stock", err)
		return
	}
	if !audit.Consistent {
		h.log.Warnw("stock ledger drift", "inventory_item_id", id, "cached", audit.Cached, "folded", audit.Folded)
	}
	writeJSON(w, http.StatusOK, audit)
}
