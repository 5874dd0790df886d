package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/outreach/internal/api"
	"github.com/foxzi/outreach/internal/config"
	"github.com/foxzi/outreach/internal/db"
	"github.com/foxzi/outreach/internal/engine"
	"github.com/foxzi/outreach/internal/metrics"
	"github.com/foxzi/outreach/internal/repository"
	"github.com/foxzi/outreach/internal/secrets"
	"github.com/foxzi/outreach/internal/tracking"
	"github.com/foxzi/outreach/internal/transport"
	"github.com/foxzi/outreach/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the outreach server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return err
	}

	box, err := secrets.NewBox(cfg.Secrets.Key)
	if err != nil {
		return err
	}

	trackStore, err := tracking.NewStore(cfg.Tracking.Path)
	if err != nil {
		return err
	}
	defer trackStore.Close()

	m := metrics.New()

	campaigns := repository.NewCampaignRepository(database.DB)
	recipients := repository.NewRecipientRepository(database.DB)
	templates := repository.NewTemplateRepository(database.DB)
	resumes := repository.NewResumeRepository(database.DB)
	settings := repository.NewSettingsRepository(database.DB)
	history := repository.NewHistoryRepository(database.DB)

	deliverer := transport.NewSMTPDeliverer(30*time.Second, logger)
	dispatcher := engine.NewDispatcher(recipients, history, deliverer, m, logger, cfg.Server.BaseURL)

	driver := engine.NewDriver(campaigns, recipients, templates, resumes, settings, dispatcher, box, engine.DriverConfig{
		TimeBudgetSeconds:  cfg.Worker.TimeBudgetSeconds,
		MaxCampaignsPerRun: cfg.Worker.MaxCampaignsPerRun,
		MaxBatchPerRun:     cfg.Worker.MaxBatchPerRun,
	}, logger)

	immediate := cfg.Worker.Mode == "immediate"
	coordinator := engine.NewCoordinator(campaigns, recipients, templates, resumes, settings, history, driver, box, immediate, logger)

	w := worker.New(driver, cfg.Worker.CronSpec, m, logger)
	server := api.NewServer(coordinator, templates, resumes, recipients, trackStore, w, m, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down...")
		cancel()
	}()

	if !immediate {
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
