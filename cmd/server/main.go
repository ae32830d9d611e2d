package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"idle-economy/internal/auth"
	"idle-economy/internal/catalog"
	"idle-economy/internal/config"
	"idle-economy/internal/database"
	"idle-economy/internal/handlers"
	"idle-economy/internal/jobs"
	"idle-economy/internal/repository"
	"idle-economy/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	// Seed the catalog before serving so every template a request can name exists.
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	store := catalog.NewStore(db, cfg.Market.DefaultCommission)
	seeded, err := store.Seed(context.Background(), cat)
	if err != nil {
		return err
	}
	logger.Info("catalog seeded",
		"upgrades", seeded.Upgrades,
		"events", seeded.Events,
		"commissions", seeded.Commissions)

	repo := repository.NewRepository(db)
	upgradeService := services.NewUpgradeService(repo, store, logger)
	eventService := services.NewEventService(repo, store, logger)
	marketService := services.NewMarketService(repo, store, logger)

	scheduler, err := jobs.NewScheduler(logger)
	if err != nil {
		return err
	}
	if err := scheduler.Every("evaluate-events", cfg.Jobs.EvaluateEvery,
		jobs.NewEvaluateJob(repo, eventService, cfg.Jobs.ActiveWindow, logger)); err != nil {
		return err
	}
	if err := scheduler.Every("expire-offers", cfg.Jobs.ExpireOffersEvery,
		jobs.NewOfferExpiryJob(marketService)); err != nil {
		return err
	}
	scheduler.Start()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api")
	api.Use(auth.Middleware(issuer))
	handlers.RegisterRoutes(api,
		handlers.NewUpgradeHandler(upgradeService),
		handlers.NewEventHandler(eventService),
		handlers.NewMarketHandler(marketService),
	)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-quit:
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := scheduler.Shutdown(); err != nil {
		logger.Error("scheduler shutdown", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}
