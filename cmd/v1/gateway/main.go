package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/config"
	"github.com/huddlekit/huddle-server/internal/v1/gateway"
	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/tracing"
)

func main() {
	ctx := context.Background()

	// Load .env for local development. Try multiple paths to handle
	// different ways of running the binary.
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			envLoaded = true
			break
		}
	}

	development := os.Getenv("DEVELOPMENT_MODE") == "true"
	if err := logging.Initialize("gateway", development); err != nil {
		os.Exit(1)
	}
	if !envLoaded {
		logging.Warn(ctx, "no .env file found, relying on environment variables")
	}

	cfg, err := config.ValidateGatewayEnv()
	if err != nil {
		logging.Error(ctx, "environment validation failed", zap.Error(err))
		os.Exit(1)
	}

	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := tracing.Init(ctx, "gateway")
	if err != nil {
		logging.Error(ctx, "failed to initialize tracing", zap.Error(err))
		os.Exit(1)
	}

	gw, err := gateway.New(*cfg)
	if err != nil {
		logging.Error(ctx, "failed to build gateway", zap.Error(err))
		os.Exit(1)
	}

	router := gw.Router()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "gateway listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "gateway server failed", zap.Error(err))
			_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "gateway forced to shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logging.Error(ctx, "failed to shut down tracing", zap.Error(err))
	}

	logging.Info(ctx, "gateway exited")
}
