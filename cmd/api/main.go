package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"opshub/opshub-backend/internal/auth"
	"opshub/opshub-backend/internal/config"
	"opshub/opshub-backend/internal/invoices"
	"opshub/opshub-backend/internal/notifications"
	"opshub/opshub-backend/internal/notifications/websocket"
	"opshub/opshub-backend/internal/projects"
	"opshub/opshub-backend/internal/tasks"
	"opshub/opshub-backend/internal/timesheets"
	"opshub/opshub-backend/internal/users"
	"opshub/opshub-backend/internal/workflows"
	"opshub/opshub-backend/pkg/pdf"
)

// nameDirectory resolves ids to display names for exports and rendered
// invoices.
type nameDirectory struct {
	projects projects.Repository
	users    users.Repository
}

func (d *nameDirectory) ProjectNames(ctx context.Context, tenantID uuid.UUID) (map[string]string, error) {
	items, err := d.projects.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(items))
	for _, project := range items {
		names[project.ID.String()] = project.Name
	}
	return names, nil
}

func (d *nameDirectory) UserNames(ctx context.Context, tenantID uuid.UUID) (map[string]string, error) {
	items, err := d.users.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(items))
	for _, user := range items {
		names[user.ID.String()] = user.DisplayName
	}
	return names, nil
}

func (d *nameDirectory) ClientName(projectID uuid.UUID) (string, string) {
	project, err := d.projects.GetByID(context.Background(), projectID)
	if err != nil {
		return "", ""
	}
	return project.ClientName, project.Name
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		panic(err)
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.Logging.Level == "debug" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	// Connect to database
	dbURL := cfg.Database.GetDatabaseURL()
	gormDB, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		logger.Fatal("Failed to access database pool", zap.Error(err))
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	defer sqlDB.Close()

	// Invoices use raw SQL over the same database.
	sqlxDB, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer sqlxDB.Close()

	if err := gormDB.AutoMigrate(
		&users.Tenant{}, &users.User{}, &users.RoleGrant{},
		&projects.Project{}, &projects.ProjectMember{}, &projects.ProjectActivity{},
		&workflows.Workflow{}, &workflows.WorkflowStatusHistory{},
		&tasks.Task{},
		&timesheets.Entry{},
		&notifications.Notification{},
	); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Repositories
	invoicesRepo := invoices.NewPostgresRepository(sqlxDB)
	if err := invoicesRepo.Migrate(context.Background()); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	usersRepo := users.NewRepository(gormDB)
	projectsRepo := projects.NewRepository(gormDB)
	workflowsRepo := workflows.NewRepository(gormDB)
	tasksRepo := tasks.NewRepository(gormDB)
	timesheetsRepo := timesheets.NewRepository(gormDB)

	// Notifications
	wsManager := websocket.NewManager(logger)
	notifyService := notifications.NewService(gormDB, wsManager, logger)
	defer notifyService.Close()

	// Services
	usersService := users.NewService(usersRepo)
	authService := auth.NewService(usersService, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	projectsService := projects.NewService(projectsRepo, logger)
	workflowsService := workflows.NewService(workflowsRepo, notifyService, logger)
	tasksService := tasks.NewService(tasksRepo, projectsRepo)
	timesheetsService := timesheets.NewService(timesheetsRepo, projectsRepo)
	invoicesService := invoices.NewService(
		invoicesRepo,
		invoices.NewTimesheetLabor(timesheetsRepo),
		invoices.NewWorkflowExpenses(workflowsRepo),
		invoices.NewProjectBilling(projectsRepo),
		logger,
	)

	directory := &nameDirectory{projects: projectsRepo, users: usersRepo}

	// Handlers
	authHandler := auth.NewHandler(authService)
	usersHandler := users.NewHandler(usersService)
	projectsHandler := projects.NewHandler(projectsService)
	workflowsHandler := workflows.NewHandler(workflowsService)
	tasksHandler := tasks.NewHandler(tasksService)
	timesheetsHandler := timesheets.NewHandler(timesheetsService, directory)
	invoicesHandler := invoices.NewHandler(
		invoicesService,
		pdf.NewInvoiceRenderer(pdf.DefaultInvoiceOptions()),
		cfg.Billing.IssuerName,
		directory,
	)
	notifyHandler := notifications.NewHandler(notifyService, wsManager)

	// Setup Router
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	api := router.Group("/api/v1")
	api.Use(authService.Middleware())
	{
		usersHandler.RegisterRoutes(api)
		projectsHandler.RegisterRoutes(api)
		workflowsHandler.RegisterRoutes(api)
		tasksHandler.RegisterRoutes(api)
		timesheetsHandler.RegisterRoutes(api)
		invoicesHandler.RegisterRoutes(api)
		notifyHandler.RegisterRoutes(api)
	}
	auth.RegisterRoutes(router, api, authHandler)

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.Int("port", cfg.Server.Port))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
