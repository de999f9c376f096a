// Command audit-consumer appends confirmed and cancelled bookings from
// RabbitMQ to <AUDIT_LOG_DIR>/booking.log.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking-core/internal/config"
	"github.com/iliyamo/seat-booking-core/internal/logger"
	"github.com/iliyamo/seat-booking-core/internal/queue"
)

func main() {
	cfg := config.LoadAudit()
	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl.Info("audit consumer starting", zap.String("dir", cfg.LogDir))
	if err := queue.NewConsumer(cfg.RabbitURL, cfg.LogDir, zl).Run(ctx); err != nil {
		zl.Error("audit consumer stopped", zap.Error(err))
		os.Exit(1)
	}
}
