package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Catalog and roster inserts. The engine never writes these tables outside
// of cmd/seed and the integration tests.

const createBranch = `-- name: CreateBranch :one
INSERT INTO branches (name) VALUES ($1)
RETURNING id, name, created_at`

func (q *Queries) CreateBranch(ctx context.Context, name string) (Branch, error) {
	row := q.db.QueryRow(ctx, createBranch, name)
	var i Branch
	err := row.Scan(&i.ID, &i.Name, &i.CreatedAt)
	return i, err
}

const createMenuItem = `-- name: CreateMenuItem :one
INSERT INTO menu_items (branch_id, name, price, station)
VALUES ($1, $2, $3, $4)
RETURNING id, branch_id, name, price, station, is_available, created_at`

type CreateMenuItemParams struct {
	BranchID uuid.UUID      `json:"branch_id"`
	Name     string         `json:"name"`
	Price    pgtype.Numeric `json:"price"`
	Station  string         `json:"station"`
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, createMenuItem, arg.BranchID, arg.Name, arg.Price, arg.Station)
	var i MenuItem
	err := row.Scan(&i.ID, &i.BranchID, &i.Name, &i.Price, &i.Station, &i.IsAvailable, &i.CreatedAt)
	return i, err
}

const createRecipeIngredient = `-- name: CreateRecipeIngredient :one
INSERT INTO recipe_ingredients (menu_item_id, inventory_item_id, quantity)
VALUES ($1, $2, $3)
RETURNING menu_item_id, inventory_item_id, quantity`

type CreateRecipeIngredientParams struct {
	MenuItemID      uuid.UUID      `json:"menu_item_id"`
	InventoryItemID uuid.UUID      `json:"inventory_item_id"`
	Quantity        pgtype.Numeric `json:"quantity"`
}

func (q *Queries) CreateRecipeIngredient(ctx context.Context, arg CreateRecipeIngredientParams) (RecipeIngredient, error) {
	row := q.db.QueryRow(ctx, createRecipeIngredient, arg.MenuItemID, arg.InventoryItemID, arg.Quantity)
	var i RecipeIngredient
	err := row.Scan(&i.MenuItemID, &i.InventoryItemID, &i.Quantity)
	return i, err
}

const createRider = `-- name: CreateRider :one
INSERT INTO riders (branch_id, name, phone, max_concurrent_deliveries)
VALUES ($1, $2, $3, $4)
RETURNING ` + riderColumns

type CreateRiderParams struct {
	BranchID                uuid.UUID   `json:"branch_id"`
	Name                    string      `json:"name"`
	Phone                   pgtype.Text `json:"phone"`
	MaxConcurrentDeliveries int32       `json:"max_concurrent_deliveries"`
}

func (q *Queries) CreateRider(ctx context.Context, arg CreateRiderParams) (Rider, error) {
	row := q.db.QueryRow(ctx, createRider, arg.BranchID, arg.Name, arg.Phone, arg.MaxConcurrentDeliveries)
	return scanRider(row)
}

const createCustomer = `-- name: CreateCustomer :one
INSERT INTO customers (branch_id, name, phone)
VALUES ($1, $2, $3)
RETURNING ` + customerColumns

type CreateCustomerParams struct {
	BranchID uuid.UUID   `json:"branch_id"`
	Name     string      `json:"name"`
	Phone    pgtype.Text `json:"phone"`
}

func (q *Queries) CreateCustomer(ctx context.Context, arg CreateCustomerParams) (Customer, error) {
	row := q.db.QueryRow(ctx, createCustomer, arg.BranchID, arg.Name, arg.Phone)
	return scanCustomer(row)
}
