package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nerrad567/academia-core/internal/api"
	"github.com/nerrad567/academia-core/internal/audit"
	"github.com/nerrad567/academia-core/internal/auth"
	"github.com/nerrad567/academia-core/internal/course"
	"github.com/nerrad567/academia-core/internal/infrastructure/config"
	"github.com/nerrad567/academia-core/internal/infrastructure/logging"
	"github.com/nerrad567/academia-core/internal/storage"
)

// healthCheckTimeout bounds the startup dependency check.
const healthCheckTimeout = 5 * time.Second

// uploadsURLPath is where the API serves the disk syllabus store.
const uploadsURLPath = "/uploads"

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  `Run migrations, then serve the HTTP/WebSocket API until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *configPath)
		},
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, configFlag string) error {
	// Use default logger until config is loaded
	logging.Default().Info("starting academia-core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, log, db, err := bootstrap(ctx, configFlag)
	if err != nil {
		return err
	}
	defer closeDB(log, db)

	applied, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	tokens, err := auth.NewTokenService(cfg.TokenConfig())
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	users := auth.NewUserRepository(db.DB)
	resolver := auth.NewResolver(users, auth.NewHasher(cfg.Security.Password.BcryptCost), tokens)
	log.Info("token service ready",
		"access_secret", logging.Fingerprint(cfg.Security.JWT.AccessSecret),
		"refresh_secret", logging.Fingerprint(cfg.Security.JWT.RefreshSecret),
		"access_ttl", tokens.Config().AccessTTL,
	)

	store, uploadsDir, err := openStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening syllabus store: %w", err)
	}
	log.Info("syllabus store ready", "driver", cfg.Storage.Driver)

	courses := course.NewService(course.NewSQLiteRepository(db.DB), store, nil)
	courses.SetLogger(log.With("component", "course"))

	srv, err := api.New(api.Deps{
		Config:     cfg.API,
		Internal:   cfg.Internal,
		WS:         cfg.WebSocket,
		RateLimit:  cfg.Security.RateLimit,
		Logger:     log,
		Tokens:     tokens,
		Resolver:   resolver,
		Users:      users,
		Courses:    courses,
		AuditRepo:  audit.NewSQLiteRepository(db.DB),
		DB:         db,
		UploadsDir: uploadsDir,
		Registry:   prometheus.NewRegistry(),
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := healthCheck(healthCtx, db.HealthCheck, srv.HealthCheck); err != nil {
		return err
	}

	log.Info("academia-core started successfully")

	<-ctx.Done()
	log.Info("shutdown signal received, stopping...")
	return nil
}

// healthCheck runs each check in turn and returns the first failure.
func healthCheck(ctx context.Context, checks ...func(context.Context) error) error {
	var errs []error
	for _, check := range checks {
		if err := check(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("health check: %w", errors.Join(errs...))
	}
	return nil
}

// openStore builds the configured syllabus store. For the disk driver it
// also returns the directory the API should serve under /uploads.
func openStore(cfg config.StorageConfig) (storage.Store, string, error) {
	switch cfg.Driver {
	case "", "disk":
		store, err := storage.NewDiskStore(cfg.Disk.Dir, uploadsURLPath, course.MaxSyllabusSize)
		if err != nil {
			return nil, "", err
		}
		return store, store.Dir(), nil
	case "s3":
		s3cfg := storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicURL:       cfg.S3.PublicURL,
			UsePathStyle:    cfg.S3.UsePathStyle,
		}
		return storage.NewS3Store(storage.NewS3Client(s3cfg), s3cfg, course.MaxSyllabusSize), "", nil
	default:
		return nil, "", fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
