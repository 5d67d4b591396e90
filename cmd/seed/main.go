package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/audit"
	"github.com/isfo/attestation-service/internal/config"
	"github.com/isfo/attestation-service/internal/database"
	"github.com/isfo/attestation-service/internal/importer"
	"github.com/isfo/attestation-service/internal/logger"
	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/password"
	"github.com/isfo/attestation-service/internal/services/students"
	"github.com/isfo/attestation-service/internal/store"
)

// attest-seed creates the first administrator and optionally loads a roster
// file. Safe to run repeatedly: the admin is upserted and known students are
// skipped.
//
//	SEED_ADMIN_EMAIL     administrator email (required)
//	SEED_ADMIN_PASSWORD  administrator password
//	SEED_ADMIN_NAME      display name
//	SEED_ROSTER_FILE     .xlsx, .csv or .json roster to import
//	SEED_ROSTER_LAYOUT   standard (default) or legacy
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zapLogger, err := logger.New(cfg.App.Environment, cfg.App.ServiceName+"-seed")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	ctx := context.Background()
	drv, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		zapLogger.Fatal("database connection", zap.Error(err))
	}
	defer drv.Close()

	if err := database.RunMigrations(ctx, drv); err != nil {
		zapLogger.Fatal("migrations", zap.Error(err))
	}
	zapLogger.Info("migrations completed")

	st := store.New(drv)
	hasher := password.NewHasher(cfg.Security)

	email := strings.ToLower(strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL")))
	if email == "" {
		zapLogger.Fatal("SEED_ADMIN_EMAIL is required")
	}
	adminPassword := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPassword == "" {
		zapLogger.Warn("no SEED_ADMIN_PASSWORD, the admin can only sign in with Google")
	}
	if err := seedAdmin(ctx, st.Staff, hasher, email, os.Getenv("SEED_ADMIN_NAME"), adminPassword); err != nil {
		zapLogger.Fatal("seed admin", zap.Error(err))
	}
	zapLogger.Info("admin seeded", zap.String("email", email))

	if path := os.Getenv("SEED_ROSTER_FILE"); path != "" {
		svc := students.New(students.Dependencies{
			Repository:        st.Students,
			Hasher:            hasher,
			Auditor:           audit.New(st.AuditLogs, zapLogger),
			Logger:            zapLogger,
			EmailDomain:       cfg.Import.EmailDomain,
			PasswordMinLength: cfg.Security.PasswordMinLength,
		})
		layout := importer.Layout(os.Getenv("SEED_ROSTER_LAYOUT"))
		if layout == "" {
			layout = importer.LayoutStandard
		}
		if err := seedRoster(ctx, svc, path, layout, zapLogger); err != nil {
			zapLogger.Fatal("seed roster", zap.Error(err))
		}
	}

	zapLogger.Info("seeding completed")
}

func seedAdmin(ctx context.Context, staff *store.Staff, hasher *password.Hasher, email, name, pw string) error {
	now := time.Now().UTC()
	u := &model.StaffUser{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: strings.TrimSpace(name),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if pw != "" {
		hash, err := hasher.Hash(pw)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
	}
	return staff.Upsert(ctx, u)
}

func seedRoster(ctx context.Context, svc *students.Service, path string, layout importer.Layout, logger *zap.Logger) error {
	format, err := importer.FormatFromName(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	res, err := svc.Import(ctx, f, importer.Options{Format: format, Layout: layout}, audit.Actor{UserAgent: "attest-seed"})
	if err != nil {
		return err
	}
	logger.Info("roster imported",
		zap.String("file", path),
		zap.Int("added", res.Added),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", len(res.Errors)),
	)
	return nil
}
