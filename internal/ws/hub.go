package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/events"
	"github.com/kiwari-pos/fulfillment/internal/metrics"
	"go.uber.org/zap"
)

// branchEvent is an event already encoded for the wire.
type branchEvent struct {
	BranchID   uuid.UUID
	EntityType string
	Message    []byte
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients by branch ID
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *branchEvent

	// Redelivered events are dropped here, before any client sees them.
	tracker *events.Tracker

	metrics *metrics.Metrics
	log     *zap.SugaredLogger

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub(log *zap.SugaredLogger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *branchEvent, 256),
		tracker:    events.NewTracker(events.DefaultTrackerSize),
		metrics:    m,
		log:        log,
	}
}

// Run owns the rooms until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for branchID, clients := range h.rooms {
				for client := range clients {
					h.drop(branchID, client)
				}
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.branchID] == nil {
				h.rooms[client.branchID] = make(map[*Client]bool)
			}
			h.rooms[client.branchID][client] = true
			h.mu.Unlock()
			h.metrics.ClientConnected()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, exists := h.rooms[client.branchID][client]; exists {
				h.drop(client.branchID, client)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.rooms[event.BranchID] {
				if !client.wants(event.EntityType) {
					continue
				}
				select {
				case client.send <- event.Message:
				default:
					// Slow consumer: cut it loose, it can resync by polling.
					h.log.Warnw("dropping slow websocket client", "branch_id", event.BranchID)
					h.drop(event.BranchID, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(branchID uuid.UUID, client *Client) {
	delete(h.rooms[branchID], client)
	close(client.send)
	if len(h.rooms[branchID]) == 0 {
		delete(h.rooms, branchID)
	}
	h.metrics.ClientDisconnected()
}

// Publish implements events.Publisher. Each entity version reaches each
// subscriber at most once, in the order the hub first saw it.
// A publish that fails is not remembered, so the relay's retry gets through.
func (h *Hub) Publish(ctx context.Context, e events.Event) error {
	message, err := json.Marshal(e)
	if err != nil {
		return err
	}
	prev, _ := h.tracker.Last(e.Key())
	if !h.tracker.Apply(e) {
		return nil
	}
	select {
	case h.broadcast <- &branchEvent{BranchID: e.BranchID, EntityType: e.EntityType, Message: message}:
		return nil
	case <-ctx.Done():
		h.tracker.Revert(e, prev)
		return ctx.Err()
	}
}

// ClientCount returns how many subscribers the branch has.
func (h *Hub) ClientCount(branchID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[branchID])
}
