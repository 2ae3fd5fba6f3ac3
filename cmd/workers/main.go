package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"opshub/opshub-backend/internal/config"
	"opshub/opshub-backend/internal/invoices"
	"opshub/opshub-backend/internal/projects"
	"opshub/opshub-backend/internal/timesheets"
	"opshub/opshub-backend/internal/workflows"
)

func main() {
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		panic(err)
	}

	var logger *zap.Logger
	if cfg.Logging.Level == "debug" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	dbURL := cfg.Database.GetDatabaseURL()
	sqlxDB, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer sqlxDB.Close()

	gormDB, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	invoicesRepo := invoices.NewPostgresRepository(sqlxDB)
	if err := invoicesRepo.Migrate(context.Background()); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	invoicesService := invoices.NewService(
		invoicesRepo,
		invoices.NewTimesheetLabor(timesheets.NewRepository(gormDB)),
		invoices.NewWorkflowExpenses(workflows.NewRepository(gormDB)),
		invoices.NewProjectBilling(projects.NewRepository(gormDB)),
		logger,
	)

	reminders := NewReminderWorker(sqlxDB, logger, cfg.Workers.StaleAfter)
	invoicer := NewInvoiceWorker(sqlxDB, invoicesService, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Workers.ReminderSchedule, func() {
		reminders.Run(ctx)
	}); err != nil {
		logger.Fatal("Invalid reminder schedule", zap.Error(err))
	}
	if _, err := scheduler.AddFunc(cfg.Workers.InvoiceSchedule, func() {
		invoicer.Run(ctx)
	}); err != nil {
		logger.Fatal("Invalid invoice schedule", zap.Error(err))
	}

	scheduler.Start()
	logger.Info("Workers started",
		zap.String("reminder_schedule", cfg.Workers.ReminderSchedule),
		zap.String("invoice_schedule", cfg.Workers.InvoiceSchedule))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down workers...")

	cancel()
	<-scheduler.Stop().Done()
	logger.Info("Workers exiting")
}
