package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teplovod/go-heatnet-alerts/internal/alerts"
	"github.com/teplovod/go-heatnet-alerts/internal/api"
	"github.com/teplovod/go-heatnet-alerts/internal/broadcast"
	"github.com/teplovod/go-heatnet-alerts/internal/config"
	"github.com/teplovod/go-heatnet-alerts/internal/forecast"
	"github.com/teplovod/go-heatnet-alerts/internal/geo"
	"github.com/teplovod/go-heatnet-alerts/internal/ingestion"
	"github.com/teplovod/go-heatnet-alerts/internal/logging"
	"github.com/teplovod/go-heatnet-alerts/internal/observability"
	"github.com/teplovod/go-heatnet-alerts/internal/repository"
	"github.com/teplovod/go-heatnet-alerts/internal/settings"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	network, err := geo.LoadCollection(cfg.Geo.Path)
	if err != nil {
		slog.Warn("heating network geometry unavailable, map endpoints will serve an empty collection", "path", cfg.Geo.Path, "error", err)
		network = geo.FeatureCollection{Type: "FeatureCollection", Features: []geo.Feature{}}
	} else {
		slog.Info("heating network geometry loaded", "features", len(network.Features))
	}

	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Broadcaster feeds the SSE stream with newly raised alerts.
	broadcaster := broadcast.NewBroadcaster()

	store := alerts.NewStore()
	params := settings.NewStore()

	forecastClient := forecast.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
	cache := forecast.NewCache(forecastClient, clockwork.NewRealClock(), metrics)

	alertClient := ingestion.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
	mgr := ingestion.NewManager(cfg, alertClient, store, db, broadcaster, metrics)
	mgr.Start(ctx)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimit))

	handler := api.NewHandler(store, db, cache, network, params, broadcaster, metrics)
	handler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	broadcaster.Close() // Close all streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
