package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/isfo/attestation-service/internal/config"
	"github.com/isfo/attestation-service/internal/database"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()
	drv, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer drv.Close()

	if err := database.RunMigrations(ctx, drv); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("migrations completed")
}
