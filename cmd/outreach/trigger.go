package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/outreach/internal/config"
	"github.com/foxzi/outreach/internal/db"
	"github.com/foxzi/outreach/internal/engine"
	"github.com/foxzi/outreach/internal/metrics"
	"github.com/foxzi/outreach/internal/repository"
	"github.com/foxzi/outreach/internal/secrets"
	"github.com/foxzi/outreach/internal/transport"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Run one processing round and exit",
	Long:  `Advance every active campaign by one batch, the same way a scheduled tick would.`,
	RunE:  runTrigger,
}

func runTrigger(cmd *cobra.Command, args []string) error {
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

	campaigns := repository.NewCampaignRepository(database.DB)
	recipients := repository.NewRecipientRepository(database.DB)
	templates := repository.NewTemplateRepository(database.DB)
	resumes := repository.NewResumeRepository(database.DB)
	settings := repository.NewSettingsRepository(database.DB)
	history := repository.NewHistoryRepository(database.DB)

	deliverer := transport.NewSMTPDeliverer(30*time.Second, logger)
	dispatcher := engine.NewDispatcher(recipients, history, deliverer, metrics.New(), logger, cfg.Server.BaseURL)

	driver := engine.NewDriver(campaigns, recipients, templates, resumes, settings, dispatcher, box, engine.DriverConfig{
		TimeBudgetSeconds:  cfg.Worker.TimeBudgetSeconds,
		MaxCampaignsPerRun: cfg.Worker.MaxCampaignsPerRun,
		MaxBatchPerRun:     cfg.Worker.MaxBatchPerRun,
	}, logger)

	attempted, err := driver.ProcessDue(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Processing round finished, %d deliveries attempted\n", attempted)
	return nil
}
