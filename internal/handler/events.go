package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/events"
	"go.uber.org/zap"
)

type EventStore interface {
	ListOutboxEventsAfter(ctx context.Context, arg database.ListOutboxEventsAfterParams) ([]database.OutboxEvent, error)
}

// EventHandler serves the polling fallback for clients that cannot hold a
// websocket. It reads the outbox directly, so it also sees events the relay
// has not yet pushed.
type EventHandler struct {
	store EventStore
	log   *zap.SugaredLogger
}

func NewEventHandler(store EventStore, log *zap.SugaredLogger) *EventHandler {
	return &EventHandler{store: store, log: log}
}

// RegisterRoutes mounts /branches/{bid}/events.
func (h *EventHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
}

type eventListResponse struct {
	Events []events.Event `json:"events"`
	// Cursor to pass as ?after= on the next poll.
	Next int64 `json:"next"`
}

// List handles GET /branches/{bid}/events?after=&types=&limit=.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	bid, ok := branchID(w, r)
	if !ok {
		return
	}

	var after int64
	if s := r.URL.Query().Get("after"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			badRequest(w, "after must be a non-negative event id")
			return
		}
		after = v
	}

	types, err := events.ParseEntityTypes(r.URL.Query().Get("types"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	limit := queryInt(r, "limit", 100, 500)
	if limit == 0 {
		limit = 100
	}

	rows, err := h.store.ListOutboxEventsAfter(r.Context(), database.ListOutboxEventsAfterParams{
		BranchID:    bid,
		AfterID:     after,
		EntityTypes: types,
		Limit:       int32(limit),
	})
	if err != nil {
		writeStoreError(w, h.log, "events", err)
		return
	}

	resp := eventListResponse{Events: make([]events.Event, len(rows)), Next: after}
	for i, row := range rows {
		resp.Events[i] = events.FromOutbox(row)
		resp.Next = row.ID
	}
	writeJSON(w, http.StatusOK, resp)
}
