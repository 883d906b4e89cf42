package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"todo-backend/internal/app"
	"todo-backend/internal/conf"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flagconf string

	cmd := &cobra.Command{
		Use:           "todo-server",
		Short:         "To-do list API with OpenID Connect login",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flagconf)
		},
	}
	cmd.Flags().StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: --conf config.yaml")
	return cmd
}

func run(ctx context.Context, path string) error {
	// load config
	cfg, err := conf.Load(path)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to init application", "error", err)
		return err
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		logger.Error("server stopped with error", "error", err)
		return err
	}
	logger.Info("shutting down...")
	return nil
}

func newLogger(cfg conf.Log) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		fmt.Fprintf(os.Stderr, "unknown log level %q, using info\n", cfg.Level)
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
