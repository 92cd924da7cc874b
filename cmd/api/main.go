package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ideajar/internal/app/bootstrap"
	"ideajar/internal/platform/config"

	"github.com/spf13/cobra"
)

const programName = "ideajar-api"

var globalFlags = struct {
	debug    bool
	port     string
	dbDriver string
	dsn      string
}{}

// API process entrypoint.
// Data flow:
// 1) Load config, then apply flag overrides.
// 2) Build app wiring (ports + adapters + use cases).
// 3) Start HTTP server, or run migrations with the migrate subcommand.
func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Serve the Idea Jar voting API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := bootstrap.BuildAPI(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					slog.Error("api shutdown close failed", "error", err.Error())
				}
			}()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx)
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&globalFlags.port, "port", "", "HTTP port (overrides IDEAJAR_HTTP_PORT)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.dbDriver, "db-driver", "", "postgres or sqlite (overrides IDEAJAR_DB_DRIVER)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.dsn, "dsn", "", "database DSN (overrides IDEAJAR_DATABASE_DSN)")
	rootCmd.AddCommand(migrateCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("ideajar api stopped with error", "component", programName, "error", err.Error())
		os.Exit(1)
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return bootstrap.Migrate(cfg)
		},
	}
}

func loadConfig() (config.Config, error) {
	level := slog.LevelInfo
	if globalFlags.debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if globalFlags.port != "" {
		cfg.HTTPPort = globalFlags.port
	}
	if globalFlags.dbDriver != "" {
		cfg.DBDriver = globalFlags.dbDriver
	}
	if globalFlags.dsn != "" {
		cfg.DatabaseDSN = globalFlags.dsn
	}
	return cfg, nil
}
