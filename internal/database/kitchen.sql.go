package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const mealAssignmentColumns = `id, branch_id, menu_item_id, quantity, quantity_completed, assigned_to, assigned_by,
    status, rejection_reason, excluded_ingredients, notes, accepted_at, started_at, completed_at,
    version, created_at, updated_at`

func scanMealAssignment(row scanner) (MealAssignment, error) {
	var i MealAssignment
	err := row.Scan(
		&i.ID, &i.BranchID, &i.MenuItemID, &i.Quantity, &i.QuantityCompleted, &i.AssignedTo, &i.AssignedBy,
		&i.Status, &i.RejectionReason, &i.ExcludedIngredients, &i.Notes, &i.AcceptedAt, &i.StartedAt, &i.CompletedAt,
		&i.Version, &i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}

const createMealAssignment = `-- name: CreateMealAssignment :one
INSERT INTO meal_assignments (branch_id, menu_item_id, quantity, assigned_to, assigned_by, excluded_ingredients, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + mealAssignmentColumns

type CreateMealAssignmentParams struct {
	BranchID            uuid.UUID   `json:"branch_id"`
	MenuItemID          uuid.UUID   `json:"menu_item_id"`
	Quantity            int32       `json:"quantity"`
	AssignedTo          uuid.UUID   `json:"assigned_to"`
	AssignedBy          uuid.UUID   `json:"assigned_by"`
	ExcludedIngredients []uuid.UUID `json:"excluded_ingredients"`
	Notes               pgtype.Text `json:"notes"`
}

func (q *Queries) CreateMealAssignment(ctx context.Context, arg CreateMealAssignmentParams) (MealAssignment, error) {
	row := q.db.QueryRow(ctx, createMealAssignment,
		arg.BranchID, arg.MenuItemID, arg.Quantity, arg.AssignedTo, arg.AssignedBy, arg.ExcludedIngredients, arg.Notes)
	return scanMealAssignment(row)
}

const getMealAssignment = `-- name: GetMealAssignment :one
SELECT ` + mealAssignmentColumns + `
FROM meal_assignments
WHERE id = $1 AND branch_id = $2`

type GetMealAssignmentParams struct {
	ID       uuid.UUID `json:"id"`
	BranchID uuid.UUID `json:"branch_id"`
}

func (q *Queries) GetMealAssignment(ctx context.Context, arg GetMealAssignmentParams) (MealAssignment, error) {
	return scanMealAssignment(q.db.QueryRow(ctx, getMealAssignment, arg.ID, arg.BranchID))
}

const listMealAssignments = `-- name: ListMealAssignments :many
SELECT ` + mealAssignmentColumns + `
FROM meal_assignments
WHERE branch_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND ($3::uuid IS NULL OR assigned_to = $3)
ORDER BY created_at DESC
LIMIT $4`

type ListMealAssignmentsParams struct {
	BranchID   uuid.UUID   `json:"branch_id"`
	Status     pgtype.Text `json:"status"`
	AssignedTo pgtype.UUID `json:"assigned_to"`
	Limit      int32       `json:"limit"`
}

func (q *Queries) ListMealAssignments(ctx context.Context, arg ListMealAssignmentsParams) ([]MealAssignment, error) {
	rows, err := q.db.Query(ctx, listMealAssignments, arg.BranchID, arg.Status, arg.AssignedTo, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanMealAssignment)
}

const updateMealAssignment = `-- name: UpdateMealAssignment :one
UPDATE meal_assignments
SET status = $3,
    quantity = $4,
    quantity_completed = $5,
    assigned_to = $6,
    rejection_reason = $7,
    notes = $8,
    accepted_at = $9,
    started_at = $10,
    completed_at = $11,
    version = version + 1,
    updated_at = now()
WHERE id = $1 AND version = $2
RETURNING ` + mealAssignmentColumns

type UpdateMealAssignmentParams struct {
	ID                uuid.UUID          `json:"id"`
	Version           int32              `json:"version"`
	Status            string             `json:"status"`
	Quantity          int32              `json:"quantity"`
	QuantityCompleted int32              `json:"quantity_completed"`
	AssignedTo        uuid.UUID          `json:"assigned_to"`
	RejectionReason   pgtype.Text        `json:"rejection_reason"`
	Notes             pgtype.Text        `json:"notes"`
	AcceptedAt        pgtype.Timestamptz `json:"accepted_at"`
	StartedAt         pgtype.Timestamptz `json:"started_at"`
	CompletedAt       pgtype.Timestamptz `json:"completed_at"`
}

func (q *Queries) UpdateMealAssignment(ctx context.Context, arg UpdateMealAssignmentParams) (MealAssignment, error) {
	row := q.db.QueryRow(ctx, updateMealAssignment,
		arg.ID, arg.Version, arg.Status, arg.Quantity, arg.QuantityCompleted, arg.AssignedTo,
		arg.RejectionReason, arg.Notes, arg.AcceptedAt, arg.StartedAt, arg.CompletedAt,
	)
	return scanMealAssignment(row)
}

const deleteMealAssignment = `-- name: DeleteMealAssignment :execrows
DELETE FROM meal_assignments
WHERE id = $1 AND version = $2 AND status = 'pending'`

type DeleteMealAssignmentParams struct {
	ID      uuid.UUID `json:"id"`
	Version int32     `json:"version"`
}

func (q *Queries) DeleteMealAssignment(ctx context.Context, arg DeleteMealAssignmentParams) (int64, error) {
	result, err := q.db.Exec(ctx, deleteMealAssignment, arg.ID, arg.Version)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const availableMealColumns = `id, branch_id, menu_item_id, quantity_available, version, created_at, updated_at`

func scanAvailableMeal(row scanner) (AvailableMeal, error) {
	var i AvailableMeal
	err := row.Scan(&i.ID, &i.BranchID, &i.MenuItemID, &i.QuantityAvailable, &i.Version, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getAvailableMeal = `-- name: GetAvailableMeal :one
SELECT ` + availableMealColumns + `
FROM available_meals
WHERE id = $1 AND branch_id = $2`

type GetAvailableMealParams struct {
	ID       uuid.UUID `json:"id"`
	BranchID uuid.UUID `json:"branch_id"`
}

func (q *Queries) GetAvailableMeal(ctx context.Context, arg GetAvailableMealParams) (AvailableMeal, error) {
	return scanAvailableMeal(q.db.QueryRow(ctx, getAvailableMeal, arg.ID, arg.BranchID))
}

const getAvailableMealByMenuItem = `-- name: GetAvailableMealByMenuItem :one
SELECT ` + availableMealColumns + `
FROM available_meals
WHERE branch_id = $1 AND menu_item_id = $2`

type GetAvailableMealByMenuItemParams struct {
	BranchID   uuid.UUID `json:"branch_id"`
	MenuItemID uuid.UUID `json:"menu_item_id"`
}

func (q *Queries) GetAvailableMealByMenuItem(ctx context.Context, arg GetAvailableMealByMenuItemParams) (AvailableMeal, error) {
	return scanAvailableMeal(q.db.QueryRow(ctx, getAvailableMealByMenuItem, arg.BranchID, arg.MenuItemID))
}

const createAvailableMeal = `-- name: CreateAvailableMeal :one
INSERT INTO available_meals (branch_id, menu_item_id, quantity_available)
VALUES ($1, $2, $3)
RETURNING ` + availableMealColumns

type CreateAvailableMealParams struct {
	BranchID          uuid.UUID `json:"branch_id"`
	MenuItemID        uuid.UUID `json:"menu_item_id"`
	QuantityAvailable int32     `json:"quantity_available"`
}

// CreateAvailableMeal fails with a unique violation on
// available_meals_branch_id_menu_item_id_key when a concurrent writer created
// the row first; callers retry and take the update path.
func (q *Queries) CreateAvailableMeal(ctx context.Context, arg CreateAvailableMealParams) (AvailableMeal, error) {
	return scanAvailableMeal(q.db.QueryRow(ctx, createAvailableMeal, arg.BranchID, arg.MenuItemID, arg.QuantityAvailable))
}

const updateAvailableMealQuantity = `-- name: UpdateAvailableMealQuantity :one
UPDATE available_meals
SET quantity_available = $3, version = version + 1, updated_at = now()
WHERE id = $1 AND version = $2
RETURNING ` + availableMealColumns

type UpdateAvailableMealQuantityParams struct {
	ID                uuid.UUID `json:"id"`
	Version           int32     `json:"version"`
	QuantityAvailable int32     `json:"quantity_available"`
}

func (q *Queries) UpdateAvailableMealQuantity(ctx context.Context, arg UpdateAvailableMealQuantityParams) (AvailableMeal, error) {
	return scanAvailableMeal(q.db.QueryRow(ctx, updateAvailableMealQuantity, arg.ID, arg.Version, arg.QuantityAvailable))
}

const listAvailableMeals = `-- name: ListAvailableMeals :many
SELECT ` + availableMealColumns + `
FROM available_meals
WHERE branch_id = $1
ORDER BY menu_item_id`

func (q *Queries) ListAvailableMeals(ctx context.Context, branchID uuid.UUID) ([]AvailableMeal, error) {
	rows, err := q.db.Query(ctx, listAvailableMeals, branchID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAvailableMeal)
}
