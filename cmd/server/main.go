package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"luna/internal/config"
	"luna/internal/database"
	"luna/internal/handlers"
	"luna/internal/logging"
	"luna/internal/presentation"
	"luna/internal/services"
	"luna/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Luna Session Ledger Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, MaxVersions: %d)", cfg.Port, cfg.MaxVersions)

	if cfg.MongoURI == "" {
		log.Fatal("❌ MONGODB_URI environment variable is required")
	}

	db, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer db.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Initialize(ctx); err != nil {
		cancel()
		log.Fatalf("❌ Failed to initialize database indexes: %v", err)
	}
	cancel()

	// Wire the ledger core
	st := store.NewMongo(db, cfg.UseTransactions)
	services.InitMetrics()
	ledger := services.NewVersionLedger(st, cfg.MaxVersions)
	sessionService := services.NewSessionService(st, ledger, cfg.SessionCacheTTL)
	log.Println("✅ Session ledger initialized")

	// Presentation generation (optional: requires a Chromium binary)
	var presentationService *presentation.Service
	if _, statErr := os.Stat(cfg.ChromiumPath); statErr == nil {
		converter := presentation.NewChromiumConverter(cfg.ChromiumPath)
		presentationService, err = presentation.NewService(converter, cfg.PresentationDir)
		if err != nil {
			log.Printf("⚠️ Failed to initialize presentation service: %v", err)
		} else {
			log.Println("✅ Presentation service initialized")
		}
	} else {
		log.Printf("⚠️ Chromium not found at %s - presentation generation disabled", cfg.ChromiumPath)
	}

	sessionHandler := handlers.NewSessionHandler(sessionService)
	versionHandler := handlers.NewVersionHandler(sessionService)
	presentationHandler := handlers.NewPresentationHandler(presentationService, sessionService)

	app := fiber.New(fiber.Config{
		AppName:      "luna",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
	}))
	app.Use(handlers.Identity())

	prometheus := fiberprometheus.New("luna")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := db.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Post("/sessions", sessionHandler.Create)
	api.Get("/sessions", sessionHandler.List)
	api.Get("/sessions/:id", sessionHandler.Get)
	api.Put("/sessions/:id", sessionHandler.Update)
	api.Delete("/sessions/:id", sessionHandler.Delete)
	api.Post("/sessions/:id/archive", sessionHandler.Archive)
	api.Post("/sessions/:id/messages", sessionHandler.AddMessage)
	api.Post("/sessions/:id/presentations", sessionHandler.AddPresentation)

	api.Get("/sessions/:id/versions", versionHandler.History)
	api.Get("/sessions/:id/versions/:versionId", versionHandler.Get)
	api.Post("/sessions/:id/revert", versionHandler.Revert)
	api.Post("/sessions/:id/branch", versionHandler.Branch)
	api.Get("/sessions/:id/diff", versionHandler.Diff)

	api.Post("/sessions/:id/generate", presentationHandler.Generate)
	api.Get("/presentations/:id/download", presentationHandler.Download)

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️ Forced shutdown: %v", err)
		}
	}()

	log.Printf("🌐 Listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
}
