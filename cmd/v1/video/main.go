package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/auth"
	"github.com/huddlekit/huddle-server/internal/v1/config"
	"github.com/huddlekit/huddle-server/internal/v1/health"
	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/middleware"
	"github.com/huddlekit/huddle-server/internal/v1/ratelimit"
	"github.com/huddlekit/huddle-server/internal/v1/store/badgerstore"
	"github.com/huddlekit/huddle-server/internal/v1/tracing"
	"github.com/huddlekit/huddle-server/internal/v1/transport"
	"github.com/huddlekit/huddle-server/internal/v1/types"
	"github.com/huddlekit/huddle-server/internal/v1/video"
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
	if err := logging.Initialize("video", development); err != nil {
		os.Exit(1)
	}
	if !envLoaded {
		logging.Warn(ctx, "no .env file found, relying on environment variables")
	}

	cfg, err := config.ValidateVideoEnv()
	if err != nil {
		logging.Error(ctx, "environment validation failed", zap.Error(err))
		os.Exit(1)
	}

	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := tracing.Init(ctx, "video")
	if err != nil {
		logging.Error(ctx, "failed to initialize tracing", zap.Error(err))
		os.Exit(1)
	}

	// Token verification. The video engine admits credential-less sessions
	// as guests, so the validator only gates sessions that do present a token.
	var verifier types.TokenVerifier
	if cfg.SkipAuth {
		logging.Warn(ctx, "authentication DISABLED - do not use in production")
		verifier = &auth.MockValidator{}
	} else {
		validator, err := auth.NewValidator(ctx, cfg.Auth0Domain, cfg.Auth0Audience)
		if err != nil {
			logging.Error(ctx, "failed to create auth validator", zap.Error(err))
			os.Exit(1)
		}
		logging.Info(ctx, "token validator initialized", zap.String("domain", cfg.Auth0Domain))
		verifier = validator
	}
	authenticator := auth.NewSessionAuthenticator(verifier, true)

	// Durable store.
	storeCfg := badgerstore.DefaultConfig(cfg.StorePath)
	if cfg.StoreInMemory {
		storeCfg = badgerstore.InMemoryConfig()
	}
	st, err := badgerstore.Open(storeCfg)
	if err != nil {
		logging.Error(ctx, "failed to open store", zap.Error(err))
		os.Exit(1)
	}

	limiter, err := ratelimit.New(ratelimit.Rates{
		ConnectPerIP:   cfg.RateLimitWsIp,
		ConnectPerUser: cfg.RateLimitWsUser,
		APIPublic:      cfg.RateLimitApiPublic,
	}, nil)
	if err != nil {
		logging.Error(ctx, "failed to build rate limiter", zap.Error(err))
		os.Exit(1)
	}

	service := video.NewService(st)
	hub := video.NewHub(service, cfg.SignalDedupe)
	if cfg.SignalDedupe {
		logging.Info(ctx, "duplicate signal suppression enabled")
	}

	origins := auth.ParseAllowedOrigins(cfg.AllowedOrigins, []string{"http://localhost:3000"})
	wsServer := transport.NewServer(hub, authenticator, limiter, origins)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(otelgin.Middleware("video"))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = origins
	corsCfg.AddAllowHeaders("Authorization")
	router.Use(cors.New(corsCfg))

	// The gateway strips /api/video before forwarding.
	router.GET("/ws", wsServer.ServeWS)
	video.RegisterRoutes(router, service, limiter)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := health.NewHandler("video").AddDependency("store", st)
	healthHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "video engine listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "video server failed", zap.Error(err))
			_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down video engine")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	hub.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "video server forced to shutdown", zap.Error(err))
	}
	if err := st.Close(); err != nil {
		logging.Error(ctx, "failed to close store", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logging.Error(ctx, "failed to shut down tracing", zap.Error(err))
	}

	logging.Info(ctx, "video engine exited")
}
