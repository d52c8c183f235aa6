package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/fulfillment/internal/auth"
	"github.com/kiwari-pos/fulfillment/internal/config"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/logger"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ingredient struct {
	name, unit string
	min, cost  string
	opening    string
	perPortion string
	id         uuid.UUID
}

type dish struct {
	name, price, station string
	recipe               []string // ingredient names
}

func main() {
	branchName := flag.String("branch", "Kiwari Nasi Bakar", "Branch name")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed dev token")
	flag.Parse()

	cfg := config.Load()
	log, err := logger.New(true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("unable to connect to database", "error", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalw("unable to ping database", "error", err)
	}

	branchID, err := seedCatalog(ctx, pool, *branchName, log)
	if err != nil {
		log.Fatalw("failed to seed catalog", "error", err)
	}

	owner := uuid.New()
	token, err := auth.GenerateToken(cfg.JWTSecret, owner, branchID, enum.UserRoleOwner, *tokenTTL)
	if err != nil {
		log.Fatalw("failed to sign dev token", "error", err)
	}

	log.Infow("seed completed", "branch_id", branchID, "owner_id", owner)
	fmt.Println(token)
}

// seedCatalog writes reference rows in one transaction, then books the
// opening stock through the engine so every unit has a ledger entry.
func seedCatalog(ctx context.Context, pool *pgxpool.Pool, branchName string, log *zap.SugaredLogger) (uuid.UUID, error) {
	ingredients := []*ingredient{
		{name: "Rice", unit: "kg", min: "5", cost: "14000", opening: "25", perPortion: "0.2"},
		{name: "Egg", unit: "pcs", min: "30", cost: "2500", opening: "120", perPortion: "1"},
		{name: "Chicken", unit: "kg", min: "3", cost: "38000", opening: "10", perPortion: "0.15"},
		{name: "Tea", unit: "kg", min: "0.5", cost: "60000", opening: "2", perPortion: "0.01"},
	}
	dishes := []dish{
		{name: "Nasi Bakar Ayam", price: "28000", station: enum.StationKitchen, recipe: []string{"Rice", "Chicken"}},
		{name: "Nasi Goreng Telur", price: "22000", station: enum.StationKitchen, recipe: []string{"Rice", "Egg"}},
		{name: "Es Teh Manis", price: "6000", station: enum.StationBar, recipe: []string{"Tea"}},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	q := database.New(tx)

	branch, err := q.CreateBranch(ctx, branchName)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create branch: %w", err)
	}

	for i, name := range []string{"Budi", "Sari"} {
		rider, err := q.CreateRider(ctx, database.CreateRiderParams{
			BranchID:                branch.ID,
			Name:                    name,
			Phone:                   pgtype.Text{String: fmt.Sprintf("08120000000%d", i+1), Valid: true},
			MaxConcurrentDeliveries: 2,
		})
		if err != nil {
			return uuid.Nil, fmt.Errorf("create rider %s: %w", name, err)
		}
		log.Infow("created rider", "name", name, "id", rider.ID)
	}

	customer, err := q.CreateCustomer(ctx, database.CreateCustomerParams{
		BranchID: branch.ID,
		Name:     "Pelanggan Setia",
		Phone:    pgtype.Text{String: "081299998888", Valid: true},
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("create customer: %w", err)
	}
	log.Infow("created customer", "id", customer.ID)

	byName := make(map[string]*ingredient, len(ingredients))
	for _, ing := range ingredients {
		item, err := q.CreateInventoryItem(ctx, database.CreateInventoryItemParams{
			BranchID:      branch.ID,
			Name:          ing.name,
			Unit:          ing.unit,
			MinStockLevel: database.QuantityToNumeric(decimal.RequireFromString(ing.min)),
			CostPerUnit:   database.MoneyToNumeric(decimal.RequireFromString(ing.cost)),
		})
		if err != nil {
			return uuid.Nil, fmt.Errorf("create inventory item %s: %w", ing.name, err)
		}
		ing.id = item.ID
		byName[ing.name] = ing
	}

	for _, d := range dishes {
		item, err := q.CreateMenuItem(ctx, database.CreateMenuItemParams{
			BranchID: branch.ID,
			Name:     d.name,
			Price:    database.MoneyToNumeric(decimal.RequireFromString(d.price)),
			Station:  d.station,
		})
		if err != nil {
			return uuid.Nil, fmt.Errorf("create menu item %s: %w", d.name, err)
		}
		for _, name := range d.recipe {
			ing := byName[name]
			if _, err := q.CreateRecipeIngredient(ctx, database.CreateRecipeIngredientParams{
				MenuItemID:      item.ID,
				InventoryItemID: ing.id,
				Quantity:        database.QuantityToNumeric(decimal.RequireFromString(ing.perPortion)),
			}); err != nil {
				return uuid.Nil, fmt.Errorf("create recipe %s/%s: %w", d.name, name, err)
			}
		}
		log.Infow("created menu item", "name", d.name, "id", item.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}

	engine := service.NewEngine(pool, func(db database.DBTX) service.Store {
		return database.New(db)
	}, service.Options{Logger: log})

	for _, ing := range ingredients {
		res, err := engine.AdjustStock(ctx, service.AdjustStockRequest{
			BranchID:        branch.ID,
			InventoryItemID: ing.id,
			Delta:           decimal.RequireFromString(ing.opening),
			Reason:          "opening stock",
		})
		if err != nil {
			return uuid.Nil, fmt.Errorf("opening stock %s: %w", ing.name, err)
		}
		log.Infow("opening stock", "item", ing.name, "quantity", database.NumericToDecimal(res.Item.Quantity), "level", service.StockLevel(res.Item))
	}

	return branch.ID, nil
}
