package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"form-engine/internal/admin"
	"form-engine/internal/auth"
	"form-engine/internal/config"
	"form-engine/internal/engine"
	"form-engine/internal/instrument"
	"form-engine/internal/logging"
	"form-engine/internal/metadata"
	"form-engine/internal/rules"
	"form-engine/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config and set up logging
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if err := logging.Init(cfg.Log); err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}
	logrus.WithFields(logrus.Fields{"port": cfg.Server.Port, "driver": cfg.Database.Driver, "db": cfg.Database.Name}).
		Info("Config loaded")

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// 3. Bootstrap system tables and the admin account
	if err := db.Bootstrap(ctx, cfg.Admin); err != nil {
		logrus.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	logrus.Info("System tables ready")

	// 4. Component models and validation rules
	models := metadata.NewDefaultRegistry()
	ruleRegistry := rules.NewRegistry(nil)

	// 5. Instrumentation
	var events instrument.Recorder
	if cfg.Instrumentation.Enabled {
		buf := instrument.NewEventBuffer(db.DB, db.Dialect, cfg.Instrumentation.BufferSize, cfg.Instrumentation.FlushIntervalMs)
		defer buf.Stop()
		events = buf
		go instrument.RunCleanup(ctx, db.DB, db.Dialect, cfg.Instrumentation.RetentionDays)
	}

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.Middleware(cfg.Instrumentation, events))

	// 7. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 8. Auth routes (no auth required)
	auth.RegisterAuthRoutes(app, auth.NewAuthHandler(db, cfg.JWTSecret))

	authMW := auth.AuthMiddleware(cfg.JWTSecret)

	// 9. Definition management
	admin.RegisterAdminRoutes(app, admin.NewHandler(db, models, ruleRegistry), authMW)

	// 10. Trace events (admin only)
	instrument.RegisterEventRoutes(app.Group("/api"), instrument.NewEventHandler(db.DB, db.Dialect), authMW, auth.RequireAdmin())

	// 11. Runtime form API
	engine.RegisterFormRoutes(app, engine.NewHandler(db, models, ruleRegistry, nil, cfg.Engine), authMW)

	// 12. Start server
	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down")
		if err := app.Shutdown(); err != nil {
			logrus.WithError(err).Warn("shutdown")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logrus.Infof("Starting server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logrus.Fatal(err)
	}
}
