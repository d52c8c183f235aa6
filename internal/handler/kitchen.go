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

// KitchenServicer is the slice of *service.Engine the kitchen screens use.
type KitchenServicer interface {
	CreateMealAssignment(ctx context.Context, req service.CreateMealAssignmentRequest) (*service.AssignmentResult, error)
	RespondToAssignment(ctx context.Context, req service.RespondToAssignmentRequest) (*service.AssignmentResult, error)
	StartAssignment(ctx context.Context, branchID, assignmentID uuid.UUID) (*service.AssignmentResult, error)
	CompleteAssignment(ctx context.Context, req service.CompleteAssignmentRequest) (*service.CompleteResult, error)
	UpdateMealAssignment(ctx context.Context, req service.UpdateMealAssignmentRequest) (*service.AssignmentResult, error)
	DeleteMealAssignment(ctx context.Context, branchID, assignmentID uuid.UUID) error
	DecrementAvailableMeal(ctx context.Context, req service.DecrementAvailableMealRequest) (*database.AvailableMeal, error)
}

type KitchenStore interface {
	GetMealAssignment(ctx context.Context, arg database.GetMealAssignmentParams) (database.MealAssignment, error)
	ListMealAssignments(ctx context.Context, arg database.ListMealAssignmentsParams) ([]database.MealAssignment, error)
	ListAvailableMeals(ctx context.Context, branchID uuid.UUID) ([]database.AvailableMeal, error)
}

type KitchenHandler struct {
	svc   KitchenServicer
	store KitchenStore
	log   *zap.SugaredLogger
}

func NewKitchenHandler(svc KitchenServicer, store KitchenStore, log *zap.SugaredLogger) *KitchenHandler {
	return &KitchenHandler{svc: svc, store: store, log: log}
}

// RegisterAssignmentRoutes mounts /branches/{bid}/meal-assignments.
func (h *KitchenHandler) RegisterAssignmentRoutes(r chi.Router) {
	r.Post("/", h.CreateAssignment)
	r.Get("/", h.ListAssignments)
	r.Get("/{id}", h.GetAssignment)
	r.Patch("/{id}", h.UpdateAssignment)
	r.Delete("/{id}", h.DeleteAssignment)
	r.Post("/{id}/respond", h.RespondAssignment)
	r.Post("/{id}/start", h.StartAssignment)
	r.Post("/{id}/complete", h.CompleteAssignment)
}

// RegisterMealRoutes mounts /branches/{bid}/available-meals.
func (h *KitchenHandler) RegisterMealRoutes(r chi.Router) {
	r.Get("/", h.ListMeals)
	r.Post("/{id}/decrement", h.DecrementMeal)
}

type createAssignmentRequest struct {
	MenuItemID          uuid.UUID   `json:"menu_item_id"`
	Quantity            int32       `json:"quantity"`
	AssignedTo          uuid.UUID   `json:"assigned_to"`
	ExcludedIngredients []uuid.UUID `json:"excluded_ingredients"`
	Notes               string      `json:"notes"`
}

type updateAssignmentRequest struct {
	AssignedTo *uuid.UUID `json:"assigned_to"`
	Quantity   *int32     `json:"quantity"`
	Notes      *string    `json:"notes"`
}

type respondRequest struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason"`
}

type completeAssignmentRequest struct {
	QuantityCompleted int32 `json:"quantity_completed"`
}

type decrementMealRequest struct {
	Quantity int32  `json:"quantity"`
	Reason   string `json:"reason"`
}

type completeResponse struct {
	Assignment database.MealAssignment  `json:"assignment"`
	Meal       database.AvailableMeal   `json:"meal"`
	Movements  []database.StockMovement `json:"movements"`
}

type assignmentResponse struct {
	Assignment database.MealAssignment `json:"assignment"`
	Changed    bool                    `json:"changed"`
}

// CreateAssignment handles POST /branches/{bid}/meal-assignments.
func (h *KitchenHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	var req createAssignmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.CreateMealAssignment(r.Context(), service.CreateMealAssignmentRequest{
		BranchID:            bid,
		MenuItemID:          req.MenuItemID,
		Quantity:            req.Quantity,
		AssignedTo:          req.AssignedTo,
		AssignedBy:          actorID(r),
		ExcludedIngredients: req.ExcludedIngredients,
		Notes:               req.Notes,
	})
	if err != nil {
		writeError(w, h.log, "create meal assignment", err)
		return
	}
	writeJSON(w, http.StatusCreated, res.Assignment)
}

// ListAssignments handles GET /branches/{bid}/meal-assignments?status=&assigned_to=.
func (h *KitchenHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	assignee, ok := queryUUID(w, r, "assigned_to")
	if !ok {
		return
	}

	params := database.ListMealAssignmentsParams{
		BranchID: bid,
		Limit:    int32(queryInt(r, "limit", 100, 500)),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if assignee != uuid.Nil {
		params.AssignedTo = pgtype.UUID{Bytes: assignee, Valid: true}
	}

	list, err := h.store.ListMealAssignments(r.Context(), params)
	if err != nil {
		writeStoreError(w, h.log, "meal assignments", err)
		return
	}
	if list == nil {
		list = []database.MealAssignment{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"assignments": list})
}

// GetAssignment handles GET /branches/{bid}/meal-assignments/{id}.
func (h *KitchenHandler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "assignment")
	if !ok {
		return
	}

	a, err := h.store.GetMealAssignment(r.Context(), database.GetMealAssignmentParams{ID: id, BranchID: bid})
	if err != nil {
		writeStoreError(w, h.log, "meal assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// UpdateAssignment handles PATCH /branches/{bid}/meal-assignments/{id}.
func (h *KitchenHandler) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "assignment")
	if !ok {
		return
	}
	var req updateAssignmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.UpdateMealAssignment(r.Context(), service.UpdateMealAssignmentRequest{
		BranchID:     bid,
		AssignmentID: id,
		AssignedTo:   req.AssignedTo,
		Quantity:     req.Quantity,
		Notes:        req.Notes,
	})
	if err != nil {
		writeError(w, h.log, "update meal assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, assignmentResponse{Assignment: res.Assignment, Changed: res.Changed})
}

// DeleteAssignment handles DELETE /branches/{bid}/meal-assignments/{id}.
func (h *KitchenHandler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "assignment")
	if !ok {
		return
	}

	if err := h.svc.DeleteMealAssignment(r.Context(), bid, id); err != nil {
		writeError(w, h.log, "delete meal assignment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RespondAssignment handles POST /branches/{bid}/meal-assignments/{id}/respond.
func (h *KitchenHandler) RespondAssignment(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "assignment")
	if !ok {
		return
	}
	var req respondRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.RespondToAssignment(r.Context(), service.RespondToAssignmentRequest{
		BranchID:     bid,
		AssignmentID: id,
		Accept:       req.Accept,
		Reason:       req.Reason,
		Actor:        actorID(r),
	})
	if err != nil {
		writeError(w, h.log, "respond to meal assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, assignmentResponse{Assignment: res.Assignment, Changed: res.Changed})
}

// StartAssignment handles POST /branches/{bid}/meal-assignments/{id}/start.
func (h *KitchenHandler) StartAssignment(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "assignment")
	if !ok {
		return
	}

	res, err := h.svc.StartAssignment(r.Context(), bid, id)
	if err != nil {
		writeError(w, h.log, "start meal assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, assignmentResponse{Assignment: res.Assignment, Changed: res.Changed})
}

// CompleteAssignment handles POST /branches/{bid}/meal-assignments/{id}/complete.
func (h *KitchenHandler) CompleteAssignment(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "assignment")
	if !ok {
		return
	}
	var req completeAssignmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.CompleteAssignment(r.Context(), service.CompleteAssignmentRequest{
		BranchID:          bid,
		AssignmentID:      id,
		QuantityCompleted: req.QuantityCompleted,
		Actor:             actorID(r),
	})
	if err != nil {
		writeError(w, h.log, "complete meal assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, completeResponse{
		Assignment: res.Assignment,
		Meal:       res.Meal,
		Movements:  res.Movements,
	})
}

// ListMeals handles GET /branches/{bid}/available-meals.
func (h *KitchenHandler) ListMeals(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}

	meals, err := h.store.ListAvailableMeals(r.Context(), bid)
	if err != nil {
		writeStoreError(w, h.log, "available meals", err)
		return
	}
	if meals == nil {
		meals = []database.AvailableMeal{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"meals": meals})
}

// DecrementMeal handles POST /branches/{bid}/available-meals/{id}/decrement.
func (h *KitchenHandler) DecrementMeal(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "meal")
	if !ok {
		return
	}
	var req decrementMealRequest
	if !decodeBody(w, r, &req) {
		return
	}

	meal, err := h.svc.DecrementAvailableMeal(r.Context(), service.DecrementAvailableMealRequest{
		BranchID: bid,
		MealID:   id,
		Quantity: req.Quantity,
		Reason:   req.Reason,
		Actor:    actorID(r),
	})
	if err != nil {
		writeError(w, h.log, "decrement available meal", err)
		return
	}
	writeJSON(w, http.StatusOK, meal)
}
