package router

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiwari-pos/fulfillment/internal/config"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/handler"
	"github.com/kiwari-pos/fulfillment/internal/metrics"
	mw "github.com/kiwari-pos/fulfillment/internal/middleware"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"github.com/kiwari-pos/fulfillment/internal/ws"
	"go.uber.org/zap"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication, branch scoping, rate limiting and role checks.
func New(cfg *config.Config, queries *database.Queries, engine *service.Engine, hub *ws.Hub, m *metrics.Metrics, log *zap.SugaredLogger) (chi.Router, error) {
	limit, err := mw.RateLimit(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	// WebSocket route (handles auth internally via query param or header)
	r.Get("/ws/branches/{bid}/events", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	orders := handler.NewOrderHandler(engine, queries, log)
	kitchen := handler.NewKitchenHandler(engine, queries, log)
	deliveries := handler.NewDeliveryHandler(engine, queries, log)
	inventory := handler.NewInventoryHandler(engine, queries, log)
	customers := handler.NewCustomerHandler(engine, queries, log)
	evts := handler.NewEventHandler(queries, log)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(limit)

		r.Route("/branches/{bid}", func(r chi.Router) {
			r.Use(mw.RequireBranch)

			r.Route("/orders", orders.RegisterRoutes)
			r.Route("/meal-assignments", kitchen.RegisterAssignmentRoutes)
			r.Route("/available-meals", kitchen.RegisterMealRoutes)
			r.Route("/deliveries", deliveries.RegisterRoutes)
			r.Route("/riders", deliveries.RegisterRiderRoutes)
			r.Route("/events", evts.RegisterRoutes)

			// Stock corrections and ledger audits are back-office only.
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager))
				r.Route("/inventory", inventory.RegisterRoutes)
				r.Route("/customers", customers.RegisterRoutes)
			})
		})
	})

	log.Infow("router initialized", "cors_origins", cfg.CORSOrigins, "rate_limit", cfg.RateLimit)
	return r, nil
}
