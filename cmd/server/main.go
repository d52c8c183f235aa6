package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/fulfillment/internal/config"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/dispatch"
	"github.com/kiwari-pos/fulfillment/internal/events"
	"github.com/kiwari-pos/fulfillment/internal/logger"
	"github.com/kiwari-pos/fulfillment/internal/metrics"
	"github.com/kiwari-pos/fulfillment/internal/router"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"github.com/kiwari-pos/fulfillment/internal/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Development())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatalw("server stopped", "error", err)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	// storage
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Info("connected to PostgreSQL")

	queries := database.New(pool)
	m := metrics.New()
	hub := ws.NewHub(log, m)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })

	// Without Redis the relay feeds the local hub directly. With Redis every
	// instance's relay publishes there and every hub listens through a bridge.
	sinks := events.Fanout{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		log.Info("connected to Redis")

		sinks = append(sinks, events.NewRedisPublisher(rdb))
		bridge := events.NewRedisBridge(rdb, hub, log)
		g.Go(func() error { return bridge.Run(ctx) })
	} else {
		sinks = append(sinks, hub)
	}

	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		defer amqpPub.Close()
		log.Infow("connected to RabbitMQ", "exchange", cfg.AMQPExchange)
		sinks = append(sinks, amqpPub)
	}

	relay := events.NewRelay(pool, func(db database.DBTX) events.OutboxStore {
		return database.New(db)
	}, sinks, log, events.RelayOptions{
		Interval:  cfg.OutboxPollInterval,
		BatchSize: int32(cfg.OutboxBatchSize),
		Metrics:   m,
	})
	g.Go(func() error { return relay.Run(ctx) })

	engine := service.NewEngine(pool, func(db database.DBTX) service.Store {
		return database.New(db)
	}, service.Options{
		MaxAttempts: cfg.TxMaxAttempts,
		PointsRate:  cfg.LoyaltyPointsRate,
		TaxRate:     cfg.TaxRate,
		Policy:      dispatch.LeastLoaded{},
		Logger:      log,
		Metrics:     m,
		Notify:      relay.Notify,
	})

	r, err := router.New(cfg, queries, engine, hub, m, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Infow("starting server", "port", cfg.Port, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
