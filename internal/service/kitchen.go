package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/shopspring/decimal"
)

// CreateMealAssignmentRequest asks a cook to prepare a batch of a menu item.
type CreateMealAssignmentRequest struct {
	BranchID            uuid.UUID
	MenuItemID          uuid.UUID
	Quantity            int32
	AssignedTo          uuid.UUID
	AssignedBy          uuid.UUID
	ExcludedIngredients []uuid.UUID
	Notes               string
}

// AssignmentResult is an assignment after a command. Changed is false when
// the command was a repeat and nothing was written.
type AssignmentResult struct {
	Assignment database.MealAssignment
	Changed    bool
}

// CreateMealAssignment writes a pending assignment.
func (e *Engine) CreateMealAssignment(ctx context.Context, req CreateMealAssignmentRequest) (*AssignmentResult, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if req.AssignedTo == uuid.Nil {
		return nil, ErrAssigneeRequired
	}

	return runTx(ctx, e, "create_meal_assignment", func(ctx context.Context, u *unit) (*AssignmentResult, error) {
		mi, err := u.GetMenuItem(ctx, database.GetMenuItemParams{ID: req.MenuItemID, BranchID: req.BranchID})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrMenuItemNotFound
			}
			return nil, fmt.Errorf("get menu item: %w", err)
		}
		if len(req.ExcludedIngredients) > 0 {
			recipe, err := u.ListRecipeIngredients(ctx, mi.ID)
			if err != nil {
				return nil, fmt.Errorf("list recipe: %w", err)
			}
			inRecipe := make(map[uuid.UUID]bool, len(recipe))
			for _, r := range recipe {
				inRecipe[r.InventoryItemID] = true
			}
			for _, id := range req.ExcludedIngredients {
				if !inRecipe[id] {
					return nil, fmt.Errorf("%w: %s", ErrNotInRecipe, id)
				}
			}
		}

		excluded := req.ExcludedIngredients
		if excluded == nil {
			excluded = []uuid.UUID{}
		}
		a, err := u.CreateMealAssignment(ctx, database.CreateMealAssignmentParams{
			BranchID:            req.BranchID,
			MenuItemID:          mi.ID,
			Quantity:            req.Quantity,
			AssignedTo:          req.AssignedTo,
			AssignedBy:          req.AssignedBy,
			ExcludedIngredients: excluded,
			Notes:               optionalText(req.Notes),
		})
		if err != nil {
			return nil, fmt.Errorf("create meal assignment: %w", err)
		}
		if err := emitAssignment(ctx, u, a); err != nil {
			return nil, err
		}
		return &AssignmentResult{Assignment: a, Changed: true}, nil
	})
}

// RespondToAssignmentRequest is the cook's answer to a pending assignment.
type RespondToAssignmentRequest struct {
	BranchID     uuid.UUID
	AssignmentID uuid.UUID
	Accept       bool
	Reason       string
	Actor        uuid.UUID
}

// RespondToAssignment accepts or rejects a pending assignment. Rejecting
// needs a reason. Repeating the same answer is a no-op.
func (e *Engine) RespondToAssignment(ctx context.Context, req RespondToAssignmentRequest) (*AssignmentResult, error) {
	if !req.Accept && req.Reason == "" {
		return nil, ErrReasonRequired
	}
	target := enum.AssignmentStatusRejected
	if req.Accept {
		target = enum.AssignmentStatusAccepted
	}

	return runTx(ctx, e, "respond_meal_assignment", func(ctx context.Context, u *unit) (*AssignmentResult, error) {
		a, err := getAssignment(ctx, u, req.BranchID, req.AssignmentID)
		if err != nil {
			return nil, err
		}
		if a.Status == target {
			return &AssignmentResult{Assignment: a}, nil
		}
		if a.Status != enum.AssignmentStatusPending {
			return nil, fmt.Errorf("%w: assignment is %s", ErrInvalidState, a.Status)
		}

		p := assignmentUpdate(a)
		p.Status = target
		if req.Accept {
			p.AcceptedAt = u.timestamp()
		} else {
			p.RejectionReason = optionalText(req.Reason)
		}
		return saveAssignment(ctx, u, p)
	})
}

// StartAssignment moves an accepted assignment into progress.
func (e *Engine) StartAssignment(ctx context.Context, branchID, assignmentID uuid.UUID) (*AssignmentResult, error) {
	return runTx(ctx, e, "start_meal_assignment", func(ctx context.Context, u *unit) (*AssignmentResult, error) {
		a, err := getAssignment(ctx, u, branchID, assignmentID)
		if err != nil {
			return nil, err
		}
		if a.Status == enum.AssignmentStatusInProgress {
			return &AssignmentResult{Assignment: a}, nil
		}
		if a.Status != enum.AssignmentStatusAccepted {
			return nil, fmt.Errorf("%w: assignment is %s", ErrInvalidState, a.Status)
		}

		p := assignmentUpdate(a)
		p.Status = enum.AssignmentStatusInProgress
		p.StartedAt = u.timestamp()
		return saveAssignment(ctx, u, p)
	})
}

// CompleteAssignmentRequest reports how many portions were produced.
type CompleteAssignmentRequest struct {
	BranchID          uuid.UUID
	AssignmentID      uuid.UUID
	QuantityCompleted int32
	Actor             uuid.UUID
}

// CompleteResult carries everything a completion wrote.
type CompleteResult struct {
	Assignment database.MealAssignment
	Meal       database.AvailableMeal
	Movements  []database.StockMovement
}

// CompleteAssignment finishes an in-progress assignment: the produced
// portions become available and the ingredients leave stock, all or nothing.
// Completing twice is an InvalidState error, never a second increment.
func (e *Engine) CompleteAssignment(ctx context.Context, req CompleteAssignmentRequest) (*CompleteResult, error) {
	if req.QuantityCompleted <= 0 {
		return nil, ErrInvalidQuantity
	}

	return runTx(ctx, e, "complete_meal_assignment", func(ctx context.Context, u *unit) (*CompleteResult, error) {
		a, err := getAssignment(ctx, u, req.BranchID, req.AssignmentID)
		if err != nil {
			return nil, err
		}
		if a.Status != enum.AssignmentStatusInProgress {
			return nil, fmt.Errorf("%w: assignment is %s", ErrInvalidState, a.Status)
		}
		if req.QuantityCompleted > a.Quantity {
			return nil, ErrQuantityExceeded
		}

		// --- Assignment first: its version guards against a double complete ---
		p := assignmentUpdate(a)
		p.Status = enum.AssignmentStatusCompleted
		p.QuantityCompleted = req.QuantityCompleted
		p.CompletedAt = u.timestamp()
		done, err := saveAssignment(ctx, u, p)
		if err != nil {
			return nil, err
		}

		// --- Available meals ---
		meal, err := addAvailableMeal(ctx, u, a.BranchID, a.MenuItemID, req.QuantityCompleted)
		if err != nil {
			return nil, err
		}

		// --- Stock ---
		recipe, err := u.ListRecipeIngredients(ctx, a.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("list recipe: %w", err)
		}
		excluded := make(map[uuid.UUID]bool, len(a.ExcludedIngredients))
		for _, id := range a.ExcludedIngredients {
			excluded[id] = true
		}
		portions := decimal.NewFromInt32(req.QuantityCompleted)
		use := make(map[uuid.UUID]decimal.Decimal, len(recipe))
		for _, r := range recipe {
			if excluded[r.InventoryItemID] {
				continue
			}
			use[r.InventoryItemID] = use[r.InventoryItemID].Sub(database.NumericToDecimal(r.Quantity).Mul(portions))
		}
		mvs, err := e.moveStock(ctx, u, a.BranchID, use, enum.StockRefMealAssignment, a.ID, req.Actor)
		if err != nil {
			return nil, err
		}

		return &CompleteResult{Assignment: done.Assignment, Meal: meal, Movements: mvs}, nil
	})
}

// UpdateMealAssignmentRequest changes who cooks, how many, or the notes.
// Nil fields are left alone.
type UpdateMealAssignmentRequest struct {
	BranchID     uuid.UUID
	AssignmentID uuid.UUID
	AssignedTo   *uuid.UUID
	Quantity     *int32
	Notes        *string
}

// UpdateMealAssignment edits an assignment that is still open.
func (e *Engine) UpdateMealAssignment(ctx context.Context, req UpdateMealAssignmentRequest) (*AssignmentResult, error) {
	if req.AssignedTo == nil && req.Quantity == nil && req.Notes == nil {
		return nil, ErrNothingToUpdate
	}
	if req.Quantity != nil && *req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if req.AssignedTo != nil && *req.AssignedTo == uuid.Nil {
		return nil, ErrAssigneeRequired
	}

	return runTx(ctx, e, "update_meal_assignment", func(ctx context.Context, u *unit) (*AssignmentResult, error) {
		a, err := getAssignment(ctx, u, req.BranchID, req.AssignmentID)
		if err != nil {
			return nil, err
		}
		switch a.Status {
		case enum.AssignmentStatusCompleted, enum.AssignmentStatusRejected:
			return nil, fmt.Errorf("%w: assignment is %s", ErrInvalidState, a.Status)
		}

		p := assignmentUpdate(a)
		if req.AssignedTo != nil {
			p.AssignedTo = *req.AssignedTo
		}
		if req.Quantity != nil {
			p.Quantity = *req.Quantity
		}
		if req.Notes != nil {
			p.Notes = optionalText(*req.Notes)
		}
		return saveAssignment(ctx, u, p)
	})
}

// DeleteMealAssignment removes an assignment nobody has answered yet.
func (e *Engine) DeleteMealAssignment(ctx context.Context, branchID, assignmentID uuid.UUID) error {
	_, err := runTx(ctx, e, "delete_meal_assignment", func(ctx context.Context, u *unit) (struct{}, error) {
		a, err := getAssignment(ctx, u, branchID, assignmentID)
		if err != nil {
			return struct{}{}, err
		}
		if a.Status != enum.AssignmentStatusPending {
			return struct{}{}, fmt.Errorf("%w: only pending assignments can be deleted, this one is %s", ErrInvalidState, a.Status)
		}
		n, err := u.DeleteMealAssignment(ctx, database.DeleteMealAssignmentParams{ID: a.ID, Version: a.Version})
		if err != nil {
			return struct{}{}, fmt.Errorf("delete meal assignment: %w", err)
		}
		if n == 0 {
			return struct{}{}, fmt.Errorf("meal assignment %s: %w", a.ID, errStale)
		}
		return struct{}{}, u.emit(ctx, a.BranchID, enum.EntityMealAssignment, a.ID, "deleted", int64(a.Version)+1, nil)
	})
	return err
}

// DecrementAvailableMealRequest takes portions off the shelf.
type DecrementAvailableMealRequest struct {
	BranchID uuid.UUID
	MealID   uuid.UUID
	Quantity int32
	Reason   string
	Actor    uuid.UUID
}

// DecrementAvailableMeal fails with InsufficientStock rather than go below zero.
func (e *Engine) DecrementAvailableMeal(ctx context.Context, req DecrementAvailableMealRequest) (*database.AvailableMeal, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	return runTx(ctx, e, "decrement_available_meal", func(ctx context.Context, u *unit) (*database.AvailableMeal, error) {
		meal, err := u.GetAvailableMeal(ctx, database.GetAvailableMealParams{ID: req.MealID, BranchID: req.BranchID})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrMealNotFound
			}
			return nil, fmt.Errorf("get available meal: %w", err)
		}
		if req.Quantity > meal.QuantityAvailable {
			return nil, fmt.Errorf("%w: %d portions available, %d requested", ErrInsufficientStock, meal.QuantityAvailable, req.Quantity)
		}

		updated, err := u.UpdateAvailableMealQuantity(ctx, database.UpdateAvailableMealQuantityParams{
			ID:                meal.ID,
			Version:           meal.Version,
			QuantityAvailable: meal.QuantityAvailable - req.Quantity,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("available meal %s: %w", meal.ID, errStale)
			}
			return nil, fmt.Errorf("update available meal: %w", err)
		}
		if err := emitMeal(ctx, u, updated, -req.Quantity, req.Reason); err != nil {
			return nil, err
		}
		return &updated, nil
	})
}

// addAvailableMeal upserts the branch's shelf row for the menu item. Two
// first completions racing on the insert end in a unique violation; the
// loser re-runs and takes the update path.
func addAvailableMeal(ctx context.Context, u *unit, branchID, menuItemID uuid.UUID, n int32) (database.AvailableMeal, error) {
	meal, err := u.GetAvailableMealByMenuItem(ctx, database.GetAvailableMealByMenuItemParams{
		BranchID:   branchID,
		MenuItemID: menuItemID,
	})
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		meal, err = u.CreateAvailableMeal(ctx, database.CreateAvailableMealParams{
			BranchID:          branchID,
			MenuItemID:        menuItemID,
			QuantityAvailable: n,
		})
		if err != nil {
			return database.AvailableMeal{}, fmt.Errorf("create available meal: %w", err)
		}
	case err != nil:
		return database.AvailableMeal{}, fmt.Errorf("get available meal: %w", err)
	default:
		meal, err = u.UpdateAvailableMealQuantity(ctx, database.UpdateAvailableMealQuantityParams{
			ID:                meal.ID,
			Version:           meal.Version,
			QuantityAvailable: meal.QuantityAvailable + n,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return database.AvailableMeal{}, fmt.Errorf("available meal: %w", errStale)
			}
			return database.AvailableMeal{}, fmt.Errorf("update available meal: %w", err)
		}
	}
	if err := emitMeal(ctx, u, meal, n, ""); err != nil {
		return database.AvailableMeal{}, err
	}
	return meal, nil
}

func getAssignment(ctx context.Context, u *unit, branchID, id uuid.UUID) (database.MealAssignment, error) {
	a, err := u.GetMealAssignment(ctx, database.GetMealAssignmentParams{ID: id, BranchID: branchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.MealAssignment{}, ErrAssignmentNotFound
		}
		return database.MealAssignment{}, fmt.Errorf("get meal assignment: %w", err)
	}
	return a, nil
}

// assignmentUpdate copies the current row into update params.
func assignmentUpdate(a database.MealAssignment) database.UpdateMealAssignmentParams {
	return database.UpdateMealAssignmentParams{
		ID:                a.ID,
		Version:           a.Version,
		Status:            a.Status,
		Quantity:          a.Quantity,
		QuantityCompleted: a.QuantityCompleted,
		AssignedTo:        a.AssignedTo,
		RejectionReason:   a.RejectionReason,
		Notes:             a.Notes,
		AcceptedAt:        a.AcceptedAt,
		StartedAt:         a.StartedAt,
		CompletedAt:       a.CompletedAt,
	}
}

func saveAssignment(ctx context.Context, u *unit, p database.UpdateMealAssignmentParams) (*AssignmentResult, error) {
	a, err := u.UpdateMealAssignment(ctx, p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("meal assignment %s: %w", p.ID, errStale)
		}
		return nil, fmt.Errorf("update meal assignment: %w", err)
	}
	if err := emitAssignment(ctx, u, a); err != nil {
		return nil, err
	}
	return &AssignmentResult{Assignment: a, Changed: true}, nil
}

func emitAssignment(ctx context.Context, u *unit, a database.MealAssignment) error {
	return u.emit(ctx, a.BranchID, enum.EntityMealAssignment, a.ID, a.Status, int64(a.Version), map[string]any{
		"menu_item_id":       a.MenuItemID,
		"assigned_to":        a.AssignedTo,
		"quantity":           a.Quantity,
		"quantity_completed": a.QuantityCompleted,
	})
}

func emitMeal(ctx context.Context, u *unit, m database.AvailableMeal, change int32, reason string) error {
	state := "available"
	if m.QuantityAvailable == 0 {
		state = "sold_out"
	}
	payload := map[string]any{
		"menu_item_id":       m.MenuItemID,
		"quantity_available": m.QuantityAvailable,
		"change":             change,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	return u.emit(ctx, m.BranchID, enum.EntityAvailableMeal, m.ID, state, int64(m.Version), payload)
}
