package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking-core/internal/clock"
	"github.com/iliyamo/seat-booking-core/internal/config"
	"github.com/iliyamo/seat-booking-core/internal/database"
	"github.com/iliyamo/seat-booking-core/internal/handler"
	"github.com/iliyamo/seat-booking-core/internal/logger"
	"github.com/iliyamo/seat-booking-core/internal/middleware"
	"github.com/iliyamo/seat-booking-core/internal/notifier"
	"github.com/iliyamo/seat-booking-core/internal/queue"
	"github.com/iliyamo/seat-booking-core/internal/repository"
	"github.com/iliyamo/seat-booking-core/internal/router"
	"github.com/iliyamo/seat-booking-core/internal/service"
	"github.com/iliyamo/seat-booking-core/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	clk := clock.Real()

	store, catalog, ping, closeStore, err := openStore(ctx, cfg, clk, zl)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := notifier.NewHub(notifier.Config{
		Buffer:    cfg.Booking.NotifyBuffer,
		KeepAlive: cfg.Booking.NotifyKeepAlive,
	}, clk, zl)
	go hub.Run(ctx)

	// Redis is optional: without it this instance serves its own viewers
	// only and runs without rate limiting or the layout cache.
	var (
		events    service.EventPublisher = hub
		rateLimit echo.MiddlewareFunc
		cache     echo.MiddlewareFunc
	)
	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		zl.Warn("redis unavailable, running single-instance", zap.Error(err))
	} else {
		defer func() { _ = rdb.Close() }()
		relay := notifier.NewRedisRelay(rdb, hub, zl)
		go runRelay(ctx, relay, zl)
		events = relay
		rateLimit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, zl)
		cache = middleware.NewRedisCache(config.LoadCacheConfig(), rdb, zl)
	}

	audit := queue.NewPublisher(cfg.RabbitURL, zl)
	svc := service.NewBookingService(store, catalog, events, audit, clk, service.Config{
		SessionTTL:   cfg.Booking.SessionTTL,
		MaxSeats:     cfg.Booking.MaxSeats,
		AuditTimeout: cfg.Booking.AuditTimeout,
	}, zl)
	defer svc.WaitAudits()

	sw := sweeper.New(store, events, clk, sweeper.Config{
		Interval:  cfg.Booking.SweepInterval,
		BatchSize: cfg.Booking.SweepBatchSize,
	}, zl)
	if err := sw.Start(ctx); err != nil {
		return err
	}
	defer sw.Stop()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover(), middleware.RequestID(), middleware.Logger(zl))
	router.Register(e, router.Deps{
		Booking:   handler.NewBookingHandler(svc, zl),
		SeatFeed:  handler.NewSeatEventsHandler(hub, svc, zl),
		Health:    handler.NewHealthHandler(ping, sw, hub.Rooms),
		JWTSecret: cfg.JWTSecret,
		RateLimit: rateLimit,
		Cache:     cache,
	})
	// Request contexts end with ctx so open event streams return on
	// shutdown.
	e.Server.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// openStore returns the store, its catalog, a health probe (nil for the
// memory store) and a close function.
func openStore(ctx context.Context, cfg config.Config, clk clock.Clock, zl *zap.Logger) (
	repository.Store, repository.Catalog, func(context.Context) error, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		zl.Warn("using in-memory store; bookings are lost on exit")
		catalog := repository.NewMemoryCatalog(
			repository.GridLayout(1, 10, 12, "STANDARD", 1200),
			repository.GridLayout(2, 6, 10, "VIP", 2500),
		)
		return repository.NewMemoryStore(clk), catalog, nil, func() {}, nil
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	closeDB := func() { _ = db.Close() }
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			closeDB()
			return nil, nil, nil, nil, err
		}
		zl.Info("booking schema ready")
	}
	return repository.NewMySQLStore(db, clk), repository.NewCatalogRepo(db), pinger(db), closeDB, nil
}

func pinger(db *sql.DB) func(context.Context) error { return db.PingContext }

func runRelay(ctx context.Context, relay *notifier.RedisRelay, zl *zap.Logger) {
	for {
		err := relay.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		zl.Warn("seat relay stopped, retrying", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}
