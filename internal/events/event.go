// Package events moves committed state changes from the transactional outbox
// to subscribers. Delivery is at least once; consumers deduplicate with a
// Tracker keyed by entity and version.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/enum"
)

// Event is one committed transition of one entity.
type Event struct {
	ID         int64           `json:"id"`
	BranchID   uuid.UUID       `json:"branch_id"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	NewState   string          `json:"new_state"`
	Version    int64           `json:"version"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Key identifies the entity an event belongs to.
func (e Event) Key() string {
	return e.EntityType + ":" + e.EntityID.String()
}

// MessageID is unique per entity version and stable across redeliveries.
func (e Event) MessageID() string {
	return fmt.Sprintf("%s:%d", e.Key(), e.Version)
}

// FromOutbox converts a stored outbox row.
func FromOutbox(o database.OutboxEvent) Event {
	e := Event{
		ID:         o.ID,
		BranchID:   o.BranchID,
		EntityType: o.EntityType,
		EntityID:   o.EntityID,
		NewState:   o.NewState,
		Version:    o.Version,
		OccurredAt: o.CreatedAt,
	}
	if len(o.Payload) > 0 {
		e.Payload = json.RawMessage(o.Payload)
	}
	return e
}

// Publisher delivers an event to one sink.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// Fanout publishes to every sink and reports all failures together.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ParseEntityTypes splits a comma separated filter such as "order,delivery".
// An empty filter yields nil, which matches every type.
func ParseEntityTypes(raw string) ([]string, error) {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !slices.Contains(enum.EntityTypes, t) {
			return nil, fmt.Errorf("unknown entity type %q", t)
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, nil
}
