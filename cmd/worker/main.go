package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/isfo/attestation-service/internal/app"
	"github.com/isfo/attestation-service/internal/config"
	"github.com/isfo/attestation-service/internal/logger"
)

// attest-worker delivers queued status notifications. Run it when the API
// servers have ATTEST_NOTIFY_INLINE_WORKER=false.
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Notify.Backend != "redis" {
		log.Fatalf("worker requires ATTEST_NOTIFY_BACKEND=redis, got %q", cfg.Notify.Backend)
	}

	zapLogger, err := logger.New(cfg.App.Environment, cfg.App.ServiceName+"-worker")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck // best effort

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := app.OpenInfra(ctx, cfg)
	if err != nil {
		zapLogger.Fatal("open infrastructure", logger.ZapError(err))
	}
	defer infra.Close() //nolint:errcheck

	if err := app.NewNotifier(cfg, infra, zapLogger).Run(ctx); err != nil {
		zapLogger.Error("dispatcher stopped", logger.ZapError(err))
	}
}
