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
	"github.com/huddlekit/huddle-server/internal/v1/cache"
	"github.com/huddlekit/huddle-server/internal/v1/chat"
	"github.com/huddlekit/huddle-server/internal/v1/config"
	"github.com/huddlekit/huddle-server/internal/v1/health"
	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/middleware"
	"github.com/huddlekit/huddle-server/internal/v1/ratelimit"
	"github.com/huddlekit/huddle-server/internal/v1/store/badgerstore"
	"github.com/huddlekit/huddle-server/internal/v1/tracing"
	"github.com/huddlekit/huddle-server/internal/v1/transport"
	"github.com/huddlekit/huddle-server/internal/v1/types"
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
	if err := logging.Initialize("chat", development); err != nil {
		os.Exit(1)
	}
	if !envLoaded {
		logging.Warn(ctx, "no .env file found, relying on environment variables")
	}

	cfg, err := config.ValidateChatEnv()
	if err != nil {
		logging.Error(ctx, "environment validation failed", zap.Error(err))
		os.Exit(1)
	}

	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := tracing.Init(ctx, "chat")
	if err != nil {
		logging.Error(ctx, "failed to initialize tracing", zap.Error(err))
		os.Exit(1)
	}

	// Token verification. Chat sessions are never anonymous, so outside of
	// explicit SKIP_AUTH development runs a real JWKS validator is required.
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
	authenticator := auth.NewSessionAuthenticator(verifier, false)

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

	// Room cache is optional; a connection failure degrades to
	// single-instance mode rather than refusing to boot.
	var roomCache *cache.Cache
	if cfg.RedisEnabled {
		roomCache, err = cache.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Error(ctx, "failed to connect to Redis, running without cache", zap.Error(err))
			roomCache = nil
		}
	}

	limiter, err := ratelimit.New(ratelimit.Rates{
		ConnectPerIP:   cfg.RateLimitWsIp,
		ConnectPerUser: cfg.RateLimitWsUser,
		APIPublic:      cfg.RateLimitApiPublic,
	}, roomCache.Client())
	if err != nil {
		logging.Error(ctx, "failed to build rate limiter", zap.Error(err))
		os.Exit(1)
	}

	service := chat.NewService(st, roomCache)
	hub := chat.NewHub(service)

	origins := auth.ParseAllowedOrigins(cfg.AllowedOrigins, []string{"http://localhost:3000"})
	wsServer := transport.NewServer(hub, authenticator, limiter, origins)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(otelgin.Middleware("chat"))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = origins
	corsCfg.AddAllowHeaders("Authorization")
	router.Use(cors.New(corsCfg))

	// The gateway strips /api/chat before forwarding, and maps bare /ws and
	// /socket.io upgrades here.
	router.GET("/ws", wsServer.ServeWS)
	router.GET("/socket.io/*rest", wsServer.ServeWS)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := health.NewHandler("chat").AddDependency("store", st)
	if roomCache != nil {
		healthHandler.AddDependency("cache", roomCache)
	}
	healthHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "chat engine listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "chat server failed", zap.Error(err))
			_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down chat engine")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	hub.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "chat server forced to shutdown", zap.Error(err))
	}
	if roomCache != nil {
		if err := roomCache.Close(); err != nil {
			logging.Error(ctx, "failed to close cache", zap.Error(err))
		}
	}
	if err := st.Close(); err != nil {
		logging.Error(ctx, "failed to close store", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logging.Error(ctx, "failed to shut down tracing", zap.Error(err))
	}

	logging.Info(ctx, "chat engine exited")
}
