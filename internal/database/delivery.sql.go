package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const deliveryColumns = `id, order_id, branch_id, status, rider_id, rider_response, assignment_type, address, phone,
    fee, failure_reason, assigned_at, picked_up_at, in_transit_at, delivered_at, failed_at, returned_at,
    cancelled_at, version, created_at, updated_at`

func scanDelivery(row scanner) (Delivery, error) {
	var i Delivery
	err := row.Scan(
		&i.ID, &i.OrderID, &i.BranchID, &i.Status, &i.RiderID, &i.RiderResponse, &i.AssignmentType, &i.Address, &i.Phone,
		&i.Fee, &i.FailureReason, &i.AssignedAt, &i.PickedUpAt, &i.InTransitAt, &i.DeliveredAt, &i.FailedAt, &i.ReturnedAt,
		&i.CancelledAt, &i.Version, &i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}

const createDelivery = `-- name: CreateDelivery :one
INSERT INTO deliveries (order_id, branch_id, assignment_type, address, phone, fee)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + deliveryColumns

type CreateDeliveryParams struct {
	OrderID        uuid.UUID      `json:"order_id"`
	BranchID       uuid.UUID      `json:"branch_id"`
	AssignmentType string         `json:"assignment_type"`
	Address        string         `json:"address"`
	Phone          pgtype.Text    `json:"phone"`
	Fee            pgtype.Numeric `json:"fee"`
}

func (q *Queries) CreateDelivery(ctx context.Context, arg CreateDeliveryParams) (Delivery, error) {
	row := q.db.QueryRow(ctx, createDelivery, arg.OrderID, arg.BranchID, arg.AssignmentType, arg.Address, arg.Phone, arg.Fee)
	return scanDelivery(row)
}

const getDelivery = `-- name: GetDelivery :one
SELECT ` + deliveryColumns + `
FROM deliveries
WHERE id = $1 AND branch_id = $2`

type GetDeliveryParams struct {
	ID       uuid.UUID `json:"id"`
	BranchID uuid.UUID `json:"branch_id"`
}

func (q *Queries) GetDelivery(ctx context.Context, arg GetDeliveryParams) (Delivery, error) {
	return scanDelivery(q.db.QueryRow(ctx, getDelivery, arg.ID, arg.BranchID))
}

const getDeliveryByOrder = `-- name: GetDeliveryByOrder :one
SELECT ` + deliveryColumns + `
FROM deliveries
WHERE order_id = $1`

func (q *Queries) GetDeliveryByOrder(ctx context.Context, orderID uuid.UUID) (Delivery, error) {
	return scanDelivery(q.db.QueryRow(ctx, getDeliveryByOrder, orderID))
}

const listDeliveries = `-- name: ListDeliveries :many
SELECT ` + deliveryColumns + `
FROM deliveries
WHERE branch_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND ($3::uuid IS NULL OR rider_id = $3)
ORDER BY created_at DESC
LIMIT $4`

type ListDeliveriesParams struct {
	BranchID uuid.UUID   `json:"branch_id"`
	Status   pgtype.Text `json:"status"`
	RiderID  pgtype.UUID `json:"rider_id"`
	Limit    int32       `json:"limit"`
}

func (q *Queries) ListDeliveries(ctx context.Context, arg ListDeliveriesParams) ([]Delivery, error) {
	rows, err := q.db.Query(ctx, listDeliveries, arg.BranchID, arg.Status, arg.RiderID, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanDelivery)
}

const updateDelivery = `-- name: UpdateDelivery :one
UPDATE deliveries
SET status = $3,
    rider_id = $4,
    rider_response = $5,
    assignment_type = $6,
    failure_reason = $7,
    assigned_at = $8,
    picked_up_at = $9,
    in_transit_at = $10,
    delivered_at = $11,
    failed_at = $12,
    returned_at = $13,
    cancelled_at = $14,
    version = version + 1,
    updated_at = now()
WHERE id = $1 AND version = $2
RETURNING ` + deliveryColumns

type UpdateDeliveryParams struct {
	ID             uuid.UUID          `json:"id"`
	Version        int32              `json:"version"`
	Status         string             `json:"status"`
	RiderID        pgtype.UUID        `json:"rider_id"`
	RiderResponse  pgtype.Text        `json:"rider_response"`
	AssignmentType string             `json:"assignment_type"`
	FailureReason  pgtype.Text        `json:"failure_reason"`
	AssignedAt     pgtype.Timestamptz `json:"assigned_at"`
	PickedUpAt     pgtype.Timestamptz `json:"picked_up_at"`
	InTransitAt    pgtype.Timestamptz `json:"in_transit_at"`
	DeliveredAt    pgtype.Timestamptz `json:"delivered_at"`
	FailedAt       pgtype.Timestamptz `json:"failed_at"`
	ReturnedAt     pgtype.Timestamptz `json:"returned_at"`
	CancelledAt    pgtype.Timestamptz `json:"cancelled_at"`
}

func (q *Queries) UpdateDelivery(ctx context.Context, arg UpdateDeliveryParams) (Delivery, error) {
	row := q.db.QueryRow(ctx, updateDelivery,
		arg.ID, arg.Version, arg.Status, arg.RiderID, arg.RiderResponse, arg.AssignmentType, arg.FailureReason,
		arg.AssignedAt, arg.PickedUpAt, arg.InTransitAt, arg.DeliveredAt, arg.FailedAt, arg.ReturnedAt, arg.CancelledAt,
	)
	return scanDelivery(row)
}

const riderColumns = `id, branch_id, name, phone, is_available, is_on_delivery, active_deliveries_count,
    max_concurrent_deliveries, version, created_at, updated_at`

func scanRider(row scanner) (Rider, error) {
	var i Rider
	err := row.Scan(&i.ID, &i.BranchID, &i.Name, &i.Phone, &i.IsAvailable, &i.IsOnDelivery, &i.ActiveDeliveriesCount,
		&i.MaxConcurrentDeliveries, &i.Version, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getRider = `-- name: GetRider :one
SELECT ` + riderColumns + `
FROM riders
WHERE id = $1`

func (q *Queries) GetRider(ctx context.Context, id uuid.UUID) (Rider, error) {
	return scanRider(q.db.QueryRow(ctx, getRider, id))
}

const listAvailableRiders = `-- name: ListAvailableRiders :many
SELECT ` + riderColumns + `
FROM riders
WHERE branch_id = $1
  AND is_available
  AND active_deliveries_count < max_concurrent_deliveries
ORDER BY active_deliveries_count, created_at, id`

func (q *Queries) ListAvailableRiders(ctx context.Context, branchID uuid.UUID) ([]Rider, error) {
	rows, err := q.db.Query(ctx, listAvailableRiders, branchID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRider)
}

const updateRiderLoad = `-- name: UpdateRiderLoad :one
UPDATE riders
SET active_deliveries_count = $3, is_on_delivery = $4, version = version + 1, updated_at = now()
WHERE id = $1 AND version = $2
RETURNING ` + riderColumns

type UpdateRiderLoadParams struct {
	ID                    uuid.UUID `json:"id"`
	Version               int32     `json:"version"`
	ActiveDeliveriesCount int32     `json:"active_deliveries_count"`
	IsOnDelivery          bool      `json:"is_on_delivery"`
}

func (q *Queries) UpdateRiderLoad(ctx context.Context, arg UpdateRiderLoadParams) (Rider, error) {
	row := q.db.QueryRow(ctx, updateRiderLoad, arg.ID, arg.Version, arg.ActiveDeliveriesCount, arg.IsOnDelivery)
	return scanRider(row)
}

const createRiderLocation = `-- name: CreateRiderLocation :one
INSERT INTO rider_locations (rider_id, delivery_id, latitude, longitude)
VALUES ($1, $2, $3, $4)
RETURNING id, rider_id, delivery_id, latitude, longitude, recorded_at`

type CreateRiderLocationParams struct {
	RiderID    uuid.UUID   `json:"rider_id"`
	DeliveryID pgtype.UUID `json:"delivery_id"`
	Latitude   float64     `json:"latitude"`
	Longitude  float64     `json:"longitude"`
}

func (q *Queries) CreateRiderLocation(ctx context.Context, arg CreateRiderLocationParams) (RiderLocation, error) {
	row := q.db.QueryRow(ctx, createRiderLocation, arg.RiderID, arg.DeliveryID, arg.Latitude, arg.Longitude)
	var i RiderLocation
	err := row.Scan(&i.ID, &i.RiderID, &i.DeliveryID, &i.Latitude, &i.Longitude, &i.RecordedAt)
	return i, err
}
