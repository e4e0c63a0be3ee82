// academia-core - authentication and course enrolment service
//
// This is the main entry point for the academia-core application. It
// serves the public HTTP/WebSocket API, an optional internal RPC listener,
// and carries maintenance commands for the schema and seed data.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/academia-core/migrations"

	"github.com/nerrad567/academia-core/internal/infrastructure/config"
	"github.com/nerrad567/academia-core/internal/infrastructure/database"
	"github.com/nerrad567/academia-core/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called explicitly above
	}
}

// newRootCmd builds the command tree. Running the root command with no
// subcommand starts the server.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "academia",
		Short: "Authentication and course enrolment service",
		Long: `academia-core serves the academic platform API: account registration
and login, token-authenticated course management and enrolment, a WebSocket
event feed and a loopback-only internal RPC listener.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config file (default $ACADEMIA_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(
		serveCmd(&configPath),
		migrateCmd(&configPath),
		seedCmd(&configPath),
		versionCmd(),
	)
	return root
}

// getConfigPath returns the config file path from the flag, the
// ACADEMIA_CONFIG environment variable, or the default. A missing default
// file is not an error: configuration then comes from the environment.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("ACADEMIA_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// bootstrap loads configuration, builds the configured logger and opens
// the database. The caller closes the database.
func bootstrap(ctx context.Context, configFlag string) (*config.Config, *logging.Logger, *database.DB, error) {
	configPath := getConfigPath(configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	return cfg, log, db, nil
}

// closeDB closes db, logging any error.
func closeDB(log *logging.Logger, db *database.DB) {
	log.Info("closing database")
	if err := db.Close(); err != nil {
		log.Error("error closing database", "error", err)
	}
}
