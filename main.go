package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meridian-trader/config"
	"meridian-trader/controllers"
	"meridian-trader/database"
	"meridian-trader/interfaces"
	"meridian-trader/models"
	"meridian-trader/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	storage, err := database.NewLocalStorage(cfg.DBPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open ledger database")
	}
	defer storage.Close()

	paper := services.NewAlpacaGateway(cfg.AlpacaAPIKey, cfg.AlpacaSecretKey, cfg.PaperBaseURL, models.ModePaper)
	live := services.NewAlpacaGateway(cfg.AlpacaAPIKey, cfg.AlpacaSecretKey, cfg.LiveBaseURL, models.ModeLive)

	// The configured mode is the reconciliation source of truth; a
	// transition migrates positions to the other venue.
	var source, dest interfaces.BrokerGateway = paper, live
	if cfg.TradingMode == models.ModeLive {
		source, dest = live, paper
	}

	journal := services.NewCycleJournal(cfg.JournalDir)
	reconciler := services.NewReconciler(source, storage)
	accountant := services.NewPortfolioAccountant(source, storage, cfg.TradingMode)
	coordinator := services.NewTransitionCoordinator(source, dest, storage)
	syncService := services.NewSyncService(reconciler, accountant, coordinator, journal, cfg.SyncInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go syncService.Run(ctx)

	router := gin.Default()
	registerRoutes(router, storage, coordinator, syncService, journal)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port": cfg.Port,
			"mode": cfg.TradingMode,
		}).Info("Server started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
}

func registerRoutes(
	router *gin.Engine,
	storage *database.LocalStorage,
	coordinator *services.TransitionCoordinator,
	syncService *services.SyncService,
	journal *services.CycleJournal,
) {
	positionController := controllers.NewPositionController(storage)
	portfolioController := controllers.NewPortfolioController(storage)
	transitionController := controllers.NewTransitionController(coordinator, journal)
	syncController := controllers.NewSyncController(syncService, journal)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/positions", positionController.HandleListPositions)
		api.GET("/positions/:id", positionController.HandleGetPosition)

		api.GET("/portfolio/snapshot", portfolioController.HandleGetSnapshot)
		api.GET("/portfolio/history", portfolioController.HandleGetHistory)

		api.POST("/transition/start", transitionController.HandleStartTransition)
		api.POST("/transition/:id/cancel", transitionController.HandleCancelTransition)
		api.GET("/transition/status", transitionController.HandleGetStatus)

		api.POST("/sync", syncController.HandleTriggerSync)
		api.GET("/journal", syncController.HandleListJournalDates)
		api.GET("/journal/:date", syncController.HandleGetJournal)
	}
}
