package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/dispatch"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/lifecycle"
)

// AssignDeliveryRequest names a rider or asks the policy to pick one.
type AssignDeliveryRequest struct {
	BranchID   uuid.UUID
	DeliveryID uuid.UUID
	RiderID    uuid.UUID
	Auto       bool
	Actor      uuid.UUID
}

// DeliveryResult is a delivery after a command. Changed is false when the
// command was a repeat and nothing was written.
type DeliveryResult struct {
	Delivery database.Delivery
	Changed  bool
}

// AssignDelivery attaches a rider to a delivery waiting for one, or moves an
// assigned delivery to a different rider.
func (e *Engine) AssignDelivery(ctx context.Context, req AssignDeliveryRequest) (*DeliveryResult, error) {
	if req.Auto == (req.RiderID != uuid.Nil) {
		return nil, ErrRiderChoice
	}

	return runTx(ctx, e, "assign_delivery", func(ctx context.Context, u *unit) (*DeliveryResult, error) {
		d, err := getDelivery(ctx, u, req.BranchID, req.DeliveryID)
		if err != nil {
			return nil, err
		}
		if req.Auto && d.Status == enum.DeliveryStatusAssigned {
			return &DeliveryResult{Delivery: d}, nil
		}

		// --- Pick the rider ---
		var rider database.Rider
		if req.Auto {
			candidates, err := u.ListAvailableRiders(ctx, d.BranchID)
			if err != nil {
				return nil, fmt.Errorf("list available riders: %w", err)
			}
			rider, err = e.opts.Policy.Select(candidates)
			if err != nil {
				if errors.Is(err, dispatch.ErrNoRider) {
					return nil, fmt.Errorf("%w: no rider with spare capacity", ErrRiderUnavailable)
				}
				return nil, fmt.Errorf("select rider: %w", err)
			}
		} else {
			rider, err = u.GetRider(ctx, req.RiderID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, ErrRiderNotFound
				}
				return nil, fmt.Errorf("get rider: %w", err)
			}
			if rider.BranchID != d.BranchID {
				return nil, fmt.Errorf("%w: rider belongs to another branch", ErrRiderUnavailable)
			}
		}

		switch d.Status {
		case enum.DeliveryStatusPendingAssignment:
		case enum.DeliveryStatusAssigned:
			if d.RiderID.Valid && uuid.UUID(d.RiderID.Bytes) == rider.ID {
				return &DeliveryResult{Delivery: d}, nil
			}
		default:
			return nil, fmt.Errorf("%w: cannot assign a %s delivery", ErrInvalidTransition, d.Status)
		}
		if !dispatch.CanTake(rider) {
			return nil, fmt.Errorf("%w: %s has %d of %d deliveries", ErrRiderUnavailable,
				rider.Name, rider.ActiveDeliveriesCount, rider.MaxConcurrentDeliveries)
		}

		// --- Reassignment passes back through pending_assignment ---
		if d.Status == enum.DeliveryStatusAssigned {
			d, err = e.moveDelivery(ctx, u, d, enum.DeliveryStatusPendingAssignment, "reassigned")
			if err != nil {
				return nil, err
			}
		}

		if _, err := adjustRiderLoad(ctx, u, rider, 1); err != nil {
			return nil, err
		}

		assignment := enum.AssignmentTypeManual
		if req.Auto {
			assignment = enum.AssignmentTypeAuto
		}
		p := deliveryUpdate(d)
		p.Status = enum.DeliveryStatusAssigned
		p.RiderID = pgtype.UUID{Bytes: rider.ID, Valid: true}
		p.RiderResponse = optionalText(enum.RiderResponsePending)
		p.AssignmentType = assignment
		p.AssignedAt = u.timestamp()
		updated, err := saveDelivery(ctx, u, p, "")
		if err != nil {
			return nil, err
		}
		return &DeliveryResult{Delivery: updated, Changed: true}, nil
	})
}

// UpdateDeliveryStatusRequest moves a delivery along its lifecycle.
type UpdateDeliveryStatusRequest struct {
	BranchID   uuid.UUID
	DeliveryID uuid.UUID
	Status     string
	Reason     string
	Actor      uuid.UUID
}

// UpdateDeliveryStatus applies one edge of the delivery state machine. It
// never touches the order; the order moves by its own command.
func (e *Engine) UpdateDeliveryStatus(ctx context.Context, req UpdateDeliveryStatusRequest) (*DeliveryResult, error) {
	if !lifecycle.Delivery.Known(req.Status) {
		return nil, fmt.Errorf("%w %q", ErrUnknownStatus, req.Status)
	}

	return runTx(ctx, e, "update_delivery_status", func(ctx context.Context, u *unit) (*DeliveryResult, error) {
		d, err := getDelivery(ctx, u, req.BranchID, req.DeliveryID)
		if err != nil {
			return nil, err
		}
		if d.Status == req.Status {
			return &DeliveryResult{Delivery: d}, nil
		}
		if req.Status == enum.DeliveryStatusAssigned {
			return nil, ErrRiderRequired
		}
		updated, err := e.moveDelivery(ctx, u, d, req.Status, req.Reason)
		if err != nil {
			return nil, err
		}
		return &DeliveryResult{Delivery: updated, Changed: true}, nil
	})
}

// RespondToDeliveryRequest is the assigned rider's answer.
type RespondToDeliveryRequest struct {
	BranchID   uuid.UUID
	DeliveryID uuid.UUID
	RiderID    uuid.UUID
	Accept     bool
}

// RespondToDelivery records the rider's response. A rejection sends the
// delivery back to pending_assignment and frees the rider.
func (e *Engine) RespondToDelivery(ctx context.Context, req RespondToDeliveryRequest) (*DeliveryResult, error) {
	return runTx(ctx, e, "respond_delivery", func(ctx context.Context, u *unit) (*DeliveryResult, error) {
		d, err := getDelivery(ctx, u, req.BranchID, req.DeliveryID)
		if err != nil {
			return nil, err
		}
		if !d.RiderID.Valid || uuid.UUID(d.RiderID.Bytes) != req.RiderID {
			return nil, fmt.Errorf("%w: delivery is not assigned to this rider", ErrInvalidState)
		}
		if req.Accept && d.RiderResponse.String == enum.RiderResponseAccepted {
			return &DeliveryResult{Delivery: d}, nil
		}
		if d.Status != enum.DeliveryStatusAssigned {
			return nil, fmt.Errorf("%w: delivery is %s", ErrInvalidState, d.Status)
		}

		if req.Accept {
			p := deliveryUpdate(d)
			p.RiderResponse = optionalText(enum.RiderResponseAccepted)
			updated, err := saveDelivery(ctx, u, p, "")
			if err != nil {
				return nil, err
			}
			return &DeliveryResult{Delivery: updated, Changed: true}, nil
		}

		updated, err := e.moveDelivery(ctx, u, d, enum.DeliveryStatusPendingAssignment, "rider rejected",
			func(p *database.UpdateDeliveryParams) {
				p.RiderResponse = optionalText(enum.RiderResponseRejected)
			})
		if err != nil {
			return nil, err
		}
		return &DeliveryResult{Delivery: updated, Changed: true}, nil
	})
}

// RiderLocationRequest is one GPS fix from a rider.
type RiderLocationRequest struct {
	BranchID   uuid.UUID
	RiderID    uuid.UUID
	DeliveryID uuid.UUID // uuid.Nil when not on a delivery
	Latitude   float64
	Longitude  float64
}

// RecordRiderLocation appends a location row. It never touches delivery or
// rider rows, so it cannot contend with dispatch.
func (e *Engine) RecordRiderLocation(ctx context.Context, req RiderLocationRequest) (*database.RiderLocation, error) {
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		return nil, ErrInvalidCoordinates
	}

	return runTx(ctx, e, "record_rider_location", func(ctx context.Context, u *unit) (*database.RiderLocation, error) {
		rider, err := u.GetRider(ctx, req.RiderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrRiderNotFound
			}
			return nil, fmt.Errorf("get rider: %w", err)
		}
		if rider.BranchID != req.BranchID {
			return nil, ErrRiderNotFound
		}
		loc, err := u.CreateRiderLocation(ctx, database.CreateRiderLocationParams{
			RiderID:    rider.ID,
			DeliveryID: optionalUUID(req.DeliveryID),
			Latitude:   req.Latitude,
			Longitude:  req.Longitude,
		})
		if err != nil {
			return nil, fmt.Errorf("create rider location: %w", err)
		}
		// Location ids grow monotonically, so they double as the version.
		if err := u.emit(ctx, rider.BranchID, enum.EntityRiderLocation, rider.ID, "reported", loc.ID, map[string]any{
			"latitude":    loc.Latitude,
			"longitude":   loc.Longitude,
			"delivery_id": loc.DeliveryID,
		}); err != nil {
			return nil, err
		}
		return &loc, nil
	})
}

// moveDelivery applies one lifecycle edge, stamping the phase time and
// freeing the rider when the delivery leaves the rider's hands.
func (e *Engine) moveDelivery(ctx context.Context, u *unit, d database.Delivery, to, reason string, edits ...func(*database.UpdateDeliveryParams)) (database.Delivery, error) {
	if err := lifecycle.Delivery.Check(d.Status, to); err != nil {
		return database.Delivery{}, err
	}

	p := deliveryUpdate(d)
	p.Status = to
	now := u.timestamp()
	switch to {
	case enum.DeliveryStatusPendingAssignment:
		p.RiderID = pgtype.UUID{}
		p.RiderResponse = pgtype.Text{}
		p.AssignedAt = pgtype.Timestamptz{}
	case enum.DeliveryStatusPickedUp:
		p.PickedUpAt = now
	case enum.DeliveryStatusInTransit:
		p.InTransitAt = now
	case enum.DeliveryStatusDelivered:
		p.DeliveredAt = now
	case enum.DeliveryStatusFailed:
		p.FailedAt = now
		p.FailureReason = optionalText(reason)
	case enum.DeliveryStatusReturned:
		p.ReturnedAt = now
	case enum.DeliveryStatusCancelled:
		p.CancelledAt = now
	}
	for _, edit := range edits {
		edit(&p)
	}

	if lifecycle.RiderHolds(d.Status) && !lifecycle.RiderHolds(to) && d.RiderID.Valid {
		rider, err := u.GetRider(ctx, uuid.UUID(d.RiderID.Bytes))
		if err != nil {
			return database.Delivery{}, fmt.Errorf("get rider: %w", err)
		}
		if _, err := adjustRiderLoad(ctx, u, rider, -1); err != nil {
			return database.Delivery{}, err
		}
	}

	return saveDelivery(ctx, u, p, reason)
}

// adjustRiderLoad moves the rider's active count by delta and keeps
// is_on_delivery in step with it.
func adjustRiderLoad(ctx context.Context, u *unit, r database.Rider, delta int32) (database.Rider, error) {
	count := max(r.ActiveDeliveriesCount+delta, 0)
	updated, err := u.UpdateRiderLoad(ctx, database.UpdateRiderLoadParams{
		ID:                    r.ID,
		Version:               r.Version,
		ActiveDeliveriesCount: count,
		IsOnDelivery:          count > 0,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Rider{}, fmt.Errorf("rider %s: %w", r.ID, errStale)
		}
		return database.Rider{}, fmt.Errorf("update rider load: %w", err)
	}
	state := "idle"
	if updated.IsOnDelivery {
		state = "on_delivery"
	}
	if err := u.emit(ctx, updated.BranchID, enum.EntityRider, updated.ID, state, int64(updated.Version), map[string]any{
		"active_deliveries_count":   updated.ActiveDeliveriesCount,
		"max_concurrent_deliveries": updated.MaxConcurrentDeliveries,
	}); err != nil {
		return database.Rider{}, err
	}
	return updated, nil
}

func getDelivery(ctx context.Context, u *unit, branchID, id uuid.UUID) (database.Delivery, error) {
	d, err := u.GetDelivery(ctx, database.GetDeliveryParams{ID: id, BranchID: branchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Delivery{}, ErrDeliveryNotFound
		}
		return database.Delivery{}, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}

func deliveryUpdate(d database.Delivery) database.UpdateDeliveryParams {
	return database.UpdateDeliveryParams{
		ID:             d.ID,
		Version:        d.Version,
		Status:         d.Status,
		RiderID:        d.RiderID,
		RiderResponse:  d.RiderResponse,
		AssignmentType: d.AssignmentType,
		FailureReason:  d.FailureReason,
		AssignedAt:     d.AssignedAt,
		PickedUpAt:     d.PickedUpAt,
		InTransitAt:    d.InTransitAt,
		DeliveredAt:    d.DeliveredAt,
		FailedAt:       d.FailedAt,
		ReturnedAt:     d.ReturnedAt,
		CancelledAt:    d.CancelledAt,
	}
}

func saveDelivery(ctx context.Context, u *unit, p database.UpdateDeliveryParams, reason string) (database.Delivery, error) {
	d, err := u.UpdateDelivery(ctx, p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Delivery{}, fmt.Errorf("delivery %s: %w", p.ID, errStale)
		}
		return database.Delivery{}, fmt.Errorf("update delivery: %w", err)
	}
	payload := deliveryPayload(d)
	if reason != "" {
		payload["reason"] = reason
	}
	if err := u.emit(ctx, d.BranchID, enum.EntityDelivery, d.ID, d.Status, int64(d.Version), payload); err != nil {
		return database.Delivery{}, err
	}
	return d, nil
}

func deliveryPayload(d database.Delivery) map[string]any {
	p := map[string]any{
		"order_id":        d.OrderID,
		"assignment_type": d.AssignmentType,
	}
	if d.RiderID.Valid {
		p["rider_id"] = uuid.UUID(d.RiderID.Bytes)
	}
	if d.RiderResponse.Valid {
		p["rider_response"] = d.RiderResponse.String
	}
	return p
}
