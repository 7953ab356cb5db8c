package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"propertyops/internal/config"
	"propertyops/internal/logging"
	"propertyops/internal/notify"
	"propertyops/internal/repository"
	"propertyops/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info")
		bootLogger.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.LogLevel)

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db")
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	ownerRepo := repository.NewOwnerRepository(db)
	propertyRepo := repository.NewPropertyRepository(db)
	contactRepo := repository.NewContactRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	runRepo := repository.NewRunRepository(db)

	ruleSvc := service.NewRuleService(ruleRepo, logger)
	taskSvc := service.NewTaskService(taskRepo, contactRepo)
	generationSvc := service.NewGenerationService(db, ruleRepo, propertyRepo, runRepo, taskSvc, cfg.RuleTimeout, logger)
	reportSvc := service.NewReportService(ownerRepo, propertyRepo, taskRepo, notify.LogNotifier{Log: logger}, logger)

	if rules, err := ruleSvc.List(ctx, repository.RuleFilter{ActiveOnly: true}); err == nil {
		logger.Info().Int("active_rules", len(rules)).Msg("rule store ready")
	}

	scheduler := service.NewSchedulerService(time.Local, logger)

	generationJob := func(jobCtx context.Context) error {
		_, err := generationSvc.RunDueGenerations(jobCtx, time.Now())
		return err
	}
	const jobTimeout = 10 * time.Minute
	if cfg.GenerationAt != "" {
		_, err = scheduler.ScheduleDaily("generation", cfg.GenerationAt, jobTimeout, generationJob)
	} else {
		_, err = scheduler.ScheduleInterval("generation", cfg.GenerationInterval, jobTimeout, generationJob)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("schedule generation")
	}

	if _, err := scheduler.ScheduleInterval("reports", cfg.ReportCheckInterval, jobTimeout, func(jobCtx context.Context) error {
		_, err := reportSvc.DispatchDueReports(jobCtx, time.Now())
		return err
	}); err != nil {
		logger.Fatal().Err(err).Msg("schedule reports")
	}

	scheduler.Start()
	defer scheduler.Stop()

	logger.Info().Msg("property back office scheduler started")
	<-ctx.Done()
	logger.Info().Msg("shutdown complete")
}
