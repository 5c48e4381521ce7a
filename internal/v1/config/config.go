package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/logging"
)

// Default bind ports for each process. GATEWAY_PORT etc. override them,
// with PORT accepted as a generic fallback for single-service containers.
const (
	DefaultGatewayPort = "8080"
	DefaultAuthPort    = "3001"
	DefaultChatPort    = "3002"
	DefaultVideoPort   = "3003"
)

// GatewayConfig holds validated environment configuration for the edge gateway.
type GatewayConfig struct {
	Port            string
	AuthServiceURL  string
	ChatServiceURL  string
	VideoServiceURL string

	AllowedOrigins  string
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool
}

// EngineConfig holds the environment configuration shared by the chat and
// video realtime engines.
type EngineConfig struct {
	Port string

	// Durable store
	StorePath     string
	StoreInMemory bool

	// Redis (room cache, limiter backend)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Token verification
	Auth0Domain   string
	Auth0Audience string
	SkipAuth      bool

	AllowedOrigins  string
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool

	// Rate Limits
	RateLimitWsIp      string
	RateLimitWsUser    string
	RateLimitApiPublic string
}

// ChatConfig is the chat engine's validated environment.
type ChatConfig struct {
	EngineConfig
}

// VideoConfig is the video engine's validated environment.
type VideoConfig struct {
	EngineConfig

	SignalDedupe bool
}

// ValidateGatewayEnv validates the gateway's environment variables.
// Returns an error listing every invalid variable if validation fails.
func ValidateGatewayEnv() (*GatewayConfig, error) {
	cfg := &GatewayConfig{}
	var errors []string

	cfg.Port = resolvePort("GATEWAY_PORT", DefaultGatewayPort, &errors)

	// Upstream targets (format: scheme://host:port)
	cfg.AuthServiceURL = resolveServiceURL("AUTH_SERVICE_URL", "AUTH_SERVICE_PORT", DefaultAuthPort, &errors)
	cfg.ChatServiceURL = resolveServiceURL("CHAT_SERVICE_URL", "CHAT_SERVICE_PORT", DefaultChatPort, &errors)
	cfg.VideoServiceURL = resolveServiceURL("VIDEO_SERVICE_URL", "VIDEO_SERVICE_PORT", DefaultVideoPort, &errors)

	cfg.AllowedOrigins = os.Getenv("CORS_ORIGIN")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logging.Info(context.Background(), "environment configuration validated",
		zap.String("port", cfg.Port),
		zap.String("auth_service_url", cfg.AuthServiceURL),
		zap.String("chat_service_url", cfg.ChatServiceURL),
		zap.String("video_service_url", cfg.VideoServiceURL),
		zap.String("go_env", cfg.GoEnv),
		zap.String("log_level", cfg.LogLevel),
	)

	return cfg, nil
}

// ValidateChatEnv validates the chat engine's environment variables.
func ValidateChatEnv() (*ChatConfig, error) {
	cfg := &ChatConfig{}
	var errors []string

	cfg.EngineConfig = resolveEngineEnv("CHAT_SERVICE_PORT", DefaultChatPort, "data/chat", &errors)

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedEngineConfig("chat", &cfg.EngineConfig)

	return cfg, nil
}

// ValidateVideoEnv validates the video engine's environment variables.
func ValidateVideoEnv() (*VideoConfig, error) {
	cfg := &VideoConfig{}
	var errors []string

	cfg.EngineConfig = resolveEngineEnv("VIDEO_SERVICE_PORT", DefaultVideoPort, "data/video", &errors)
	cfg.SignalDedupe = os.Getenv("VIDEO_SIGNAL_DEDUPE") == "true"

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedEngineConfig("video", &cfg.EngineConfig)

	return cfg, nil
}

func resolveEngineEnv(portKey, defaultPort, defaultStorePath string, errors *[]string) EngineConfig {
	cfg := EngineConfig{}

	cfg.Port = resolvePort(portKey, defaultPort, errors)

	cfg.StoreInMemory = os.Getenv("STORE_IN_MEMORY") == "true"
	cfg.StorePath = getEnvOrDefault("STORE_PATH", defaultStorePath)
	if !cfg.StoreInMemory && cfg.StorePath == "" {
		*errors = append(*errors, "STORE_PATH is required unless STORE_IN_MEMORY=true")
	}

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			// Default to localhost:6379 if not specified
			cfg.RedisAddr = "localhost:6379"
			logging.Warn(context.Background(), "REDIS_ADDR not set, using default", zap.String("addr", cfg.RedisAddr))
		} else if !isValidHostPort(cfg.RedisAddr) {
			*errors = append(*errors, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.Auth0Domain = os.Getenv("AUTH0_DOMAIN")
	cfg.Auth0Audience = os.Getenv("AUTH0_AUDIENCE")
	cfg.SkipAuth = os.Getenv("SKIP_AUTH") == "true"
	if !cfg.SkipAuth {
		if cfg.Auth0Domain == "" {
			*errors = append(*errors, "AUTH0_DOMAIN is required unless SKIP_AUTH=true")
		}
		if cfg.Auth0Audience == "" {
			*errors = append(*errors, "AUTH0_AUDIENCE is required unless SKIP_AUTH=true")
		}
	}

	cfg.AllowedOrigins = os.Getenv("CORS_ORIGIN")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"

	// Rate Limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitWsIp = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitWsUser = getEnvOrDefault("RATE_LIMIT_WS_USER", "10-M")
	cfg.RateLimitApiPublic = getEnvOrDefault("RATE_LIMIT_API_PUBLIC", "100-M")

	return cfg
}

// resolvePort reads the service-specific port key, falling back to the
// generic PORT variable and then the built-in default.
func resolvePort(key, defaultPort string, errors *[]string) string {
	port := os.Getenv(key)
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		*errors = append(*errors, fmt.Sprintf("%s must be a valid port number between 1 and 65535 (got '%s')", key, port))
	}
	return port
}

// resolveServiceURL reads an upstream URL override, defaulting to
// http://localhost:<port> using the matching port variable.
func resolveServiceURL(urlKey, portKey, defaultPort string, errors *[]string) string {
	raw := os.Getenv(urlKey)
	if raw == "" {
		port := os.Getenv(portKey)
		if port == "" {
			port = defaultPort
		}
		return "http://localhost:" + port
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		*errors = append(*errors, fmt.Sprintf("%s must be an absolute http(s) URL (got '%s')", urlKey, raw))
	}
	return strings.TrimRight(raw, "/")
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	// Validate port is a number
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	// Validate host is not empty
	if parts[0] == "" {
		return false
	}

	return true
}

func logValidatedEngineConfig(service string, cfg *EngineConfig) {
	logging.Info(context.Background(), "environment configuration validated",
		zap.String("engine", service),
		zap.String("port", cfg.Port),
		zap.String("store_path", cfg.StorePath),
		zap.Bool("store_in_memory", cfg.StoreInMemory),
		zap.Bool("redis_enabled", cfg.RedisEnabled),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("redis_password", redactSecret(cfg.RedisPassword)),
		zap.String("auth0_domain", cfg.Auth0Domain),
		zap.Bool("skip_auth", cfg.SkipAuth),
		zap.String("go_env", cfg.GoEnv),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("development_mode", cfg.DevelopmentMode),
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
