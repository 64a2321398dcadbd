package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"patient-registration/config"
	deliveryHttp "patient-registration/internal/delivery/http"
	"patient-registration/internal/delivery/http/handler"
	"patient-registration/internal/delivery/http/middleware"
	"patient-registration/internal/infrastructure/database"
	"patient-registration/internal/infrastructure/mail"
	"patient-registration/internal/infrastructure/queue"
	"patient-registration/internal/infrastructure/storage"
	"patient-registration/internal/metrics"
	"patient-registration/internal/repository"
	"patient-registration/internal/rules"
	"patient-registration/internal/service"
	"patient-registration/internal/usecase"
	"patient-registration/web"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const shutdownTimeout = 10 * time.Second

// App holds all dependencies for the application
type App struct {
	Config            *config.Config
	Log               *logrus.Logger
	DB                *gorm.DB
	RedisClient       *redis.Client
	NotificationQueue *service.NotificationQueue
	Server            *http.Server
}

// New creates a new App instance with all dependencies initialized
func New() (*App, error) {
	app := &App{}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	// Setup logger
	log, err := setupLogger(cfg.App)
	if err != nil {
		return nil, err
	}
	app.Log = log
	log.Info("Configuration loaded successfully")

	// Apply schema migrations before serving
	if err := database.RunMigrations(cfg.DB); err != nil {
		return nil, err
	}

	// Initialize database
	gormLevel := logger.Warn
	if !cfg.IsProduction() {
		gormLevel = logger.Info
	}
	db, err := database.NewPostgresConnection(cfg.DB, gormLevel)
	if err != nil {
		return nil, err
	}
	app.DB = db

	// Initialize Redis
	redisClient, err := queue.NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.RedisClient = redisClient

	// Initialize all layers
	if err := app.initialize(); err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

// setupLogger configures the logrus logger
func setupLogger(cfg config.AppConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(level)

	return logrus.StandardLogger(), nil
}

// initialize wires the layers and creates the HTTP server
func (app *App) initialize() error {
	cfg := app.Config
	log := app.Log

	m := metrics.New()

	engine, err := rules.NewEngine()
	if err != nil {
		return fmt.Errorf("failed to build rule engine: %w", err)
	}

	documents, err := storage.NewLocalStorage(cfg.Storage.Root, cfg.Storage.PublicPrefix, cfg.Storage.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("failed to initialize document storage: %w", err)
	}

	// Notification queue, drained by the worker started in Run
	app.NotificationQueue = service.NewNotificationQueue(app.RedisClient, log, mail.NewSMTPSender(cfg.Mail), m, service.NotificationQueueConfig{
		QueueKey:    cfg.Notification.QueueKey,
		MaxAttempts: cfg.Notification.MaxAttempts,
		PollTimeout: cfg.Notification.PollTimeout,
	})

	// Initialize repositories
	patientRepo := repository.NewPatientRepository(app.DB)

	// Initialize usecases
	patientUsecase := usecase.NewPatientUsecase(log, engine, patientRepo, documents, app.NotificationQueue, m)

	// Initialize handlers
	patientHandler := handler.NewPatientHandler(patientUsecase, cfg.Storage.MaxUploadBytes)
	rulesHandler := handler.NewRulesHandler()

	// Initialize middleware
	requestMiddleware := middleware.NewRequestMiddleware(log, m)
	corsMiddleware := middleware.NewCORSMiddleware(cfg.CORS.AllowedOrigins)

	// Initialize router
	router := deliveryHttp.NewRouter(
		patientHandler,
		rulesHandler,
		requestMiddleware,
		corsMiddleware,
		m.Handler(),
		documents.Fs(),
		cfg.Storage.PublicPrefix,
		web.Static(),
	)

	app.Server = &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.App.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// Run serves HTTP and drains the notification queue until SIGINT/SIGTERM,
// then shuts both down and closes connections.
func (app *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Log.Infof("Server starting on port %s", app.Config.App.Port)
		app.Log.Infof("Environment: %s", app.Config.App.Env)
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		app.Log.Info("Notification worker started")
		return app.NotificationQueue.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		app.Log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := app.Server.Shutdown(shutdownCtx); err != nil {
			app.Log.Errorf("Server forced to shutdown: %v", err)
			return err
		}
		return nil
	})

	err := g.Wait()
	app.Close()
	app.Log.Info("Server shutdown complete")
	return err
}

// Close closes all connections (database, redis, etc.)
func (app *App) Close() {
	// Close database connection
	if app.DB != nil {
		sqlDB, err := app.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}

	// Close Redis connection
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
