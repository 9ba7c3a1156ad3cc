package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
	swagger "github.com/gofiber/swagger"
	"github.com/google/uuid"
	"github.com/localnerve/reestrsi/data"
	"github.com/localnerve/reestrsi/internal/auth"
	"github.com/localnerve/reestrsi/internal/config"
	"github.com/localnerve/reestrsi/internal/database"
	"github.com/localnerve/reestrsi/internal/files"
	"github.com/localnerve/reestrsi/internal/forms"
	"github.com/localnerve/reestrsi/internal/handlers"
	"github.com/localnerve/reestrsi/internal/logging"
	"github.com/localnerve/reestrsi/internal/middleware"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/localnerve/reestrsi/internal/services"
	"github.com/localnerve/reestrsi/internal/utils"
	"go.uber.org/zap"

	_ "github.com/localnerve/reestrsi/docs/api" // Swagger docs
)

// @title Reestrsi API
// @version 1.0.0
// @description Measurement instrument registry with metrological service tracking
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/reestrsi
// @contact.email info@localnerve.com

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name session_id

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	// Connect to database
	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	// Run auto-migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	registry, err := models.NewRegistry()
	if err != nil {
		log.Fatal("failed to build model registry", zap.Error(err))
	}
	formRegistry, err := forms.NewDefaultRegistry()
	if err != nil {
		log.Fatal("failed to build form registry", zap.Error(err))
	}
	repo := repository.New(db, registry, log)
	store := files.NewStore(cfg.UploadFolder, cfg.AllowedExtensions, log)
	if err := os.MkdirAll(cfg.UploadFolder, 0o755); err != nil {
		log.Fatal("failed to create upload folder", zap.Error(err))
	}

	if cfg.SeedData {
		seeded, err := database.Seed(context.Background(), repo, data.Seed)
		if err != nil {
			log.Fatal("failed to seed reference tables", zap.Error(err))
		}
		log.Info("reference tables seeded", zap.Any("rows", seeded))
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      cfg.SiteName,
		ErrorHandler: handlers.ErrorHandler(log),
		UnescapePath: true,
		BodyLimit:    16 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(compress.New())
	app.Use(middleware.VersionMiddleware(config.Version()))

	// Prometheus metrics
	prometheus := fiberprometheus.New("reestrsi")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	sessions := session.New(session.Config{
		Expiration:     24 * time.Hour,
		KeyLookup:      "cookie:session_id",
		CookieHTTPOnly: true,
		CookieSameSite: fiber.CookieSameSiteLaxMode,
		KeyGenerator:   uuid.NewString,
	})

	h := &handlers.Handler{
		Config:    cfg,
		DB:        db,
		Repo:      repo,
		Files:     store,
		Forms:     formRegistry,
		Auth:      auth.NewService(repo, log),
		Lifecycle: services.NewLifecycle(repo, store, log),
		Sessions:  sessions,
		URLs:      utils.NewRouter(),
		Log:       log,
	}
	if err := h.Routes(app); err != nil {
		log.Fatal("failed to register routes", zap.Error(err))
	}

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return utils.NotFoundResponse(c, "[404] Resource Not Found")
	})

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Info("gracefully shutting down")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	// Start server
	log.Info("starting server", zap.String("port", cfg.Port), zap.String("db", cfg.DBType))
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}

	log.Info("server stopped")
}
