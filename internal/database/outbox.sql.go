package database

import (
	"context"

	"github.com/google/uuid"
)

const outboxColumns = `id, branch_id, entity_type, entity_id, new_state, version, payload, created_at, published_at`

func scanOutboxEvent(row scanner) (OutboxEvent, error) {
	var i OutboxEvent
	err := row.Scan(&i.ID, &i.BranchID, &i.EntityType, &i.EntityID, &i.NewState, &i.Version, &i.Payload,
		&i.CreatedAt, &i.PublishedAt)
	return i, err
}

const createOutboxEvent = `-- name: CreateOutboxEvent :one
INSERT INTO event_outbox (branch_id, entity_type, entity_id, new_state, version, payload)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + outboxColumns

type CreateOutboxEventParams struct {
	BranchID   uuid.UUID `json:"branch_id"`
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	NewState   string    `json:"new_state"`
	Version    int64     `json:"version"`
	Payload    []byte    `json:"payload"`
}

func (q *Queries) CreateOutboxEvent(ctx context.Context, arg CreateOutboxEventParams) (OutboxEvent, error) {
	row := q.db.QueryRow(ctx, createOutboxEvent, arg.BranchID, arg.EntityType, arg.EntityID, arg.NewState, arg.Version, arg.Payload)
	return scanOutboxEvent(row)
}

const listUnpublishedOutboxEvents = `-- name: ListUnpublishedOutboxEvents :many
SELECT ` + outboxColumns + `
FROM event_outbox
WHERE published_at IS NULL
ORDER BY id
LIMIT $1
FOR UPDATE SKIP LOCKED`

// ListUnpublishedOutboxEvents locks the batch it returns so parallel relays
// never publish the same rows in the same round.
func (q *Queries) ListUnpublishedOutboxEvents(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := q.db.Query(ctx, listUnpublishedOutboxEvents, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOutboxEvent)
}

const markOutboxEventsPublished = `-- name: MarkOutboxEventsPublished :exec
UPDATE event_outbox SET published_at = now() WHERE id = ANY($1::bigint[])`

func (q *Queries) MarkOutboxEventsPublished(ctx context.Context, ids []int64) error {
	_, err := q.db.Exec(ctx, markOutboxEventsPublished, ids)
	return err
}

const listOutboxEventsAfter = `-- name: ListOutboxEventsAfter :many
SELECT ` + outboxColumns + `
FROM event_outbox
WHERE branch_id = $1
  AND id > $2
  AND (cardinality($3::text[]) = 0 OR entity_type = ANY($3::text[]))
ORDER BY id
LIMIT $4`

type ListOutboxEventsAfterParams struct {
	BranchID    uuid.UUID `json:"branch_id"`
	AfterID     int64     `json:"after_id"`
	EntityTypes []string  `json:"entity_types"`
	Limit       int32     `json:"limit"`
}

func (q *Queries) ListOutboxEventsAfter(ctx context.Context, arg ListOutboxEventsAfterParams) ([]OutboxEvent, error) {
	types := arg.EntityTypes
	if types == nil {
		types = []string{}
	}
	rows, err := q.db.Query(ctx, listOutboxEventsAfter, arg.BranchID, arg.AfterID, types, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOutboxEvent)
}
