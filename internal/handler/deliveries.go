package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"go.uber.org/zap"
)

// DeliveryServicer is the dispatch side of *service.Engine.
type DeliveryServicer interface {
	AssignDelivery(ctx context.Context, req service.AssignDeliveryRequest) (*service.DeliveryResult, error)
	UpdateDeliveryStatus(ctx context.Context, req service.UpdateDeliveryStatusRequest) (*service.DeliveryResult, error)
	RespondToDelivery(ctx context.Context, req service.RespondToDeliveryRequest) (*service.DeliveryResult, error)
	RecordRiderLocation(ctx context.Context, req service.RiderLocationRequest) (*database.RiderLocation, error)
}

type DeliveryStore interface {
	GetDelivery(ctx context.Context, arg database.GetDeliveryParams) (database.Delivery, error)
	ListDeliveries(ctx context.Context, arg database.ListDeliveriesParams) ([]database.Delivery, error)
}

type DeliveryHandler struct {
	svc   DeliveryServicer
	store DeliveryStore
	log   *zap.SugaredLogger
}

func NewDeliveryHandler(svc DeliveryServicer, store DeliveryStore, log *zap.SugaredLogger) *DeliveryHandler {
	return &DeliveryHandler{svc: svc, store: store, log: log}
}

// RegisterRoutes mounts /branches/{bid}/deliveries.
func (h *DeliveryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/assign", h.Assign)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/respond", h.Respond)
}

// RegisterRiderRoutes mounts /branches/{bid}/riders.
func (h *DeliveryHandler) RegisterRiderRoutes(r chi.Router) {
	r.Post("/{rid}/location", h.RecordLocation)
}

type assignDeliveryRequest struct {
	RiderID uuid.UUID `json:"rider_id"`
	Auto    bool      `json:"auto"`
}

type deliveryStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type deliveryRespondRequest struct {
	RiderID uuid.UUID `json:"rider_id"`
	Accept  bool      `json:"accept"`
}

type riderLocationRequest struct {
	DeliveryID uuid.UUID `json:"delivery_id"`
	Latitude   *float64  `json:"latitude"`
	Longitude  *float64  `json:"longitude"`
}

type deliveryResponse struct {
	Delivery database.Delivery `json:"delivery"`
	Changed  bool              `json:"changed"`
}

// List handles GET /branches/{bid}/deliveries?status=&rider_id=.
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	riderID, ok := queryUUID(w, r, "rider_id")
	if !ok {
		return
	}

	params := database.ListDeliveriesParams{
		BranchID: bid,
		Limit:    int32(queryInt(r, "limit", 100, 500)),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if riderID != uuid.Nil {
		params.RiderID = pgtype.UUID{Bytes: riderID, Valid: true}
	}

	list, err := h.store.ListDeliveries(r.Context(), params)
	if err != nil {
		writeStoreError(w, h.log, "deliveries", err)
		return
	}
	if list == nil {
		list = []database.Delivery{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deliveries": list})
}

// Get handles GET /branches/{bid}/deliveries/{id}.
func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "delivery")
	if !ok {
		return
	}

	d, err := h.store.GetDelivery(r.Context(), database.GetDeliveryParams{ID: id, BranchID: bid})
	if err != nil {
		writeStoreError(w, h.log, "delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Assign handles POST /branches/{bid}/deliveries/{id}/assign. The body names
// a rider or asks for automatic selection, never both.
func (h *DeliveryHandler) Assign(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "delivery")
	if !ok {
		return
	}
	var req assignDeliveryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.AssignDelivery(r.Context(), service.AssignDeliveryRequest{
		BranchID:   bid,
		DeliveryID: id,
		RiderID:    req.RiderID,
		Auto:       req.Auto,
		Actor:      actorID(r),
	})
	if err != nil {
		writeError(w, h.log, "assign delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, deliveryResponse{Delivery: res.Delivery, Changed: res.Changed})
}

// UpdateStatus handles PATCH /branches/{bid}/deliveries/{id}/status.
func (h *DeliveryHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "delivery")
	if !ok {
		return
	}
	var req deliveryStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Status == "" {
		badRequest(w, "status is required")
		return
	}

	res, err := h.svc.UpdateDeliveryStatus(r.Context(), service.UpdateDeliveryStatusRequest{
		BranchID:   bid,
		DeliveryID: id,
		Status:     req.Status,
		Reason:     req.Reason,
		Actor:      actorID(r),
	})
	if err != nil {
		writeError(w, h.log, "update delivery status", err)
		return
	}
	writeJSON(w, http.StatusOK, deliveryResponse{Delivery: res.Delivery, Changed: res.Changed})
}

// Respond handles POST /branches/{bid}/deliveries/{id}/respond.
func (h *DeliveryHandler) Respond(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "delivery")
	if !ok {
		return
	}
	var req deliveryRespondRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RiderID == uuid.Nil {
		badRequest(w, "rider_id is required")
		return
	}

	res, err := h.svc.RespondToDelivery(r.Context(), service.RespondToDeliveryRequest{
		BranchID:   bid,
		DeliveryID: id,
		RiderID:    req.RiderID,
		Accept:     req.Accept,
	})
	if err != nil {
		writeError(w, h.log, "respond to delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, deliveryResponse{Delivery: res.Delivery, Changed: res.Changed})
}

// RecordLocation handles POST /branches/{bid}/riders/{rid}/location.
func (h *DeliveryHandler) RecordLocation(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	riderID, ok := urlUUID(w, r, "rid", "rider")
	if !ok {
		return
	}
	var req riderLocationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		badRequest(w, "latitude and longitude are required")
		return
	}

	loc, err := h.svc.RecordRiderLocation(r.Context(), service.RiderLocationRequest{
		BranchID:   bid,
		RiderID:    riderID,
		DeliveryID: req.DeliveryID,
		Latitude:   *req.Latitude,
		Longitude:  *req.Longitude,
	})
	if err != nil {
		writeError(w, h.log, "record rider location", err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}
