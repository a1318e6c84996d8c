package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/smartcut/internal/config"
	"github.com/jmylchreest/smartcut/internal/database"
	"github.com/jmylchreest/smartcut/internal/httpapi"
	"github.com/jmylchreest/smartcut/internal/startup"
	"github.com/jmylchreest/smartcut/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the smartcut control server",
	Long: `Start the smartcut HTTP control server and API.

The server provides:
- REST API for submitting, listing, and canceling Smart Cut jobs
- A progress event stream per job
- Health check endpoint
- OpenAPI documentation`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8088, "Port to listen on")
	serveCmd.Flags().String("database-dsn", "smartcut.db", "Job-history database DSN")
	serveCmd.Flags().String("output-dir", "./output", "Default output directory for cut jobs")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database-dsn"))
	mustBindPFlag("workspace.output_dir", serveCmd.Flags().Lookup("output-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	orphansRemoved, err := startup.CleanupSystemTempDirs(logger)
	if err != nil {
		logger.Warn("failed to clean orphaned temp directories", slog.String("error", err.Error()))
	} else if orphansRemoved > 0 {
		logger.Info("cleaned orphaned temp directories on startup", slog.Int("removed_count", orphansRemoved))
	}

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	cutJobRepo := database.NewCutJobRepository(db)
	sessionCfg := config.NewSessionConfig(&cfg)

	registry := httpapi.NewRegistry(cutJobRepo, logger)
	jobHandler := httpapi.NewJobHandler(registry, sessionCfg, logger)

	server := httpapi.NewServer(cfg.Server, logger, version.Version)

	healthHandler := httpapi.NewHealthHandler(version.Version, db)
	healthHandler.Register(server.API())

	jobHandler.Register(server.API())
	jobHandler.RegisterSSE(server.Router())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Workspace.TempDir != "" {
		sweeper, err := startup.NewWorkspaceSweeper(logger, cfg.Workspace.TempDir, cfg.Workspace.CleanupInterval, cfg.Workspace.CleanupMaxAge)
		if err != nil {
			return fmt.Errorf("initializing workspace sweeper: %w", err)
		}
		sweeper.Start(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting smartcut server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}
