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

const programName = "ideajar-worker"

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Start consumers/schedulers (outbox relay, deadline sweeper, winner hand-off).
func main() {
	var debug bool
	var dsn string
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Run the Idea Jar voting workers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dsn != "" {
				cfg.DatabaseDSN = dsn
			}
			app, err := bootstrap.BuildWorker(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					slog.Error("worker shutdown close failed", "error", err.Error())
				}
			}()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx)
		},
	}
	rootCmd.Flags().BoolVarP(&debug, "debug", "D", false, "enable debug logging")
	rootCmd.Flags().StringVar(&dsn, "dsn", "", "database DSN (overrides IDEAJAR_DATABASE_DSN)")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("ideajar worker stopped with error", "component", programName, "error", err.Error())
		os.Exit(1)
	}
}
