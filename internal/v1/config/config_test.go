package config

import (
	"os"
	"strings"
	"testing"
)

var testEnvVars = []string{
	"PORT",
	"GATEWAY_PORT",
	"AUTH_SERVICE_PORT",
	"CHAT_SERVICE_PORT",
	"VIDEO_SERVICE_PORT",
	"AUTH_SERVICE_URL",
	"CHAT_SERVICE_URL",
	"VIDEO_SERVICE_URL",
	"CORS_ORIGIN",
	"GO_ENV",
	"LOG_LEVEL",
	"STORE_PATH",
	"STORE_IN_MEMORY",
	"REDIS_ENABLED",
	"REDIS_ADDR",
	"REDIS_PASSWORD",
	"AUTH0_DOMAIN",
	"AUTH0_AUDIENCE",
	"SKIP_AUTH",
	"DEVELOPMENT_MODE",
	"VIDEO_SIGNAL_DEDUPE",
	"RATE_LIMIT_WS_IP",
	"RATE_LIMIT_WS_USER",
	"RATE_LIMIT_API_PUBLIC",
}

// setupTestEnv clears all recognized environment variables and returns a
// cleanup function restoring the original values.
func setupTestEnv(t *testing.T) func() {
	t.Helper()

	origVars := map[string]string{}
	for _, key := range testEnvVars {
		origVars[key] = os.Getenv(key)
		os.Unsetenv(key)
	}

	return func() {
		for key, val := range origVars {
			if val != "" {
				os.Setenv(key, val)
			} else {
				os.Unsetenv(key)
			}
		}
	}
}

func TestValidateGatewayEnv_Defaults(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	cfg, err := ValidateGatewayEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Port != DefaultGatewayPort {
		t.Errorf("Expected port to default to '%s', got '%s'", DefaultGatewayPort, cfg.Port)
	}
	if cfg.AuthServiceURL != "http://localhost:3001" {
		t.Errorf("Expected auth upstream default, got '%s'", cfg.AuthServiceURL)
	}
	if cfg.ChatServiceURL != "http://localhost:3002" {
		t.Errorf("Expected chat upstream default, got '%s'", cfg.ChatServiceURL)
	}
	if cfg.VideoServiceURL != "http://localhost:3003" {
		t.Errorf("Expected video upstream default, got '%s'", cfg.VideoServiceURL)
	}
	if cfg.GoEnv != "production" {
		t.Errorf("Expected GO_ENV to default to 'production', got '%s'", cfg.GoEnv)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected LOG_LEVEL to default to 'info', got '%s'", cfg.LogLevel)
	}
}

func TestValidateGatewayEnv_PortFallback(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	// Generic PORT is accepted when GATEWAY_PORT is absent.
	os.Setenv("PORT", "9999")

	cfg, err := ValidateGatewayEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("Expected PORT fallback '9999', got '%s'", cfg.Port)
	}

	// Service-specific key wins over PORT.
	os.Setenv("GATEWAY_PORT", "8088")
	cfg, err = ValidateGatewayEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Port != "8088" {
		t.Errorf("Expected GATEWAY_PORT '8088' to win, got '%s'", cfg.Port)
	}
}

func TestValidateGatewayEnv_InvalidPort(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("GATEWAY_PORT", "99999")

	_, err := ValidateGatewayEnv()
	if err == nil {
		t.Fatal("Expected error for invalid GATEWAY_PORT, got nil")
	}
	if !strings.Contains(err.Error(), "GATEWAY_PORT must be a valid port number") {
		t.Errorf("Expected error message about invalid port, got: %v", err)
	}
}

func TestValidateGatewayEnv_InvalidUpstream(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("CHAT_SERVICE_URL", "not-a-url")

	_, err := ValidateGatewayEnv()
	if err == nil {
		t.Fatal("Expected error for invalid CHAT_SERVICE_URL, got nil")
	}
	if !strings.Contains(err.Error(), "CHAT_SERVICE_URL must be an absolute http(s) URL") {
		t.Errorf("Expected error message about upstream URL, got: %v", err)
	}
}

func TestValidateGatewayEnv_UpstreamFromPortVar(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("VIDEO_SERVICE_PORT", "4545")

	cfg, err := ValidateGatewayEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.VideoServiceURL != "http://localhost:4545" {
		t.Errorf("Expected upstream derived from VIDEO_SERVICE_PORT, got '%s'", cfg.VideoServiceURL)
	}
}

func TestValidateChatEnv_ValidConfiguration(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("CHAT_SERVICE_PORT", "3002")
	os.Setenv("AUTH0_DOMAIN", "tenant.auth0.com")
	os.Setenv("AUTH0_AUDIENCE", "https://api.example.com")
	os.Setenv("REDIS_ENABLED", "false")

	cfg, err := ValidateChatEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Port != "3002" {
		t.Errorf("Expected port '3002', got '%s'", cfg.Port)
	}
	if cfg.StorePath != "data/chat" {
		t.Errorf("Expected default store path 'data/chat', got '%s'", cfg.StorePath)
	}
	if cfg.RedisEnabled {
		t.Error("Expected redis to be disabled")
	}
	if cfg.RateLimitWsIp != "100-M" {
		t.Errorf("Expected default ws ip rate '100-M', got '%s'", cfg.RateLimitWsIp)
	}
}

func TestValidateChatEnv_RequiresVerifierUnlessSkipped(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	_, err := ValidateChatEnv()
	if err == nil {
		t.Fatal("Expected error for missing AUTH0_DOMAIN, got nil")
	}
	if !strings.Contains(err.Error(), "AUTH0_DOMAIN is required") {
		t.Errorf("Expected error message about AUTH0_DOMAIN, got: %v", err)
	}
	if !strings.Contains(err.Error(), "AUTH0_AUDIENCE is required") {
		t.Errorf("Expected error message about AUTH0_AUDIENCE, got: %v", err)
	}

	os.Setenv("SKIP_AUTH", "true")
	if _, err := ValidateChatEnv(); err != nil {
		t.Fatalf("Expected no error with SKIP_AUTH=true, got: %v", err)
	}
}

func TestValidateChatEnv_RedisDefaultAddr(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("SKIP_AUTH", "true")
	os.Setenv("REDIS_ENABLED", "true")
	// Don't set REDIS_ADDR

	cfg, err := ValidateChatEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("Expected REDIS_ADDR to default to 'localhost:6379', got '%s'", cfg.RedisAddr)
	}
}

func TestValidateChatEnv_InvalidRedisAddr(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("SKIP_AUTH", "true")
	os.Setenv("REDIS_ENABLED", "true")
	os.Setenv("REDIS_ADDR", "invalid-format")

	_, err := ValidateChatEnv()
	if err == nil {
		t.Fatal("Expected error for invalid REDIS_ADDR, got nil")
	}
	if !strings.Contains(err.Error(), "REDIS_ADDR must be in format 'host:port'") {
		t.Errorf("Expected error message about REDIS_ADDR format, got: %v", err)
	}
}

func TestValidateVideoEnv_SignalDedupe(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("SKIP_AUTH", "true")

	cfg, err := ValidateVideoEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.SignalDedupe {
		t.Error("Expected signal dedupe to default off")
	}
	if cfg.Port != DefaultVideoPort {
		t.Errorf("Expected default video port, got '%s'", cfg.Port)
	}

	os.Setenv("VIDEO_SIGNAL_DEDUPE", "true")
	cfg, err = ValidateVideoEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !cfg.SignalDedupe {
		t.Error("Expected signal dedupe enabled")
	}
}

func TestRedactSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{"Long secret", "this-is-a-very-long-secret-key", "this-is-***"},
		{"Short secret", "short", "***"},
		{"Exactly 8 chars", "12345678", "***"},
		{"9 chars", "123456789", "12345678***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := redactSecret(tt.secret)
			if result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestIsValidHostPort(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		expected bool
	}{
		{"Valid localhost", "localhost:8080", true},
		{"Valid IP", "127.0.0.1:3000", true},
		{"Valid hostname", "example.com:443", true},
		{"Missing port", "localhost", false},
		{"Missing host", ":8080", false},
		{"Invalid port", "localhost:99999", false},
		{"Non-numeric port", "localhost:abc", false},
		{"Multiple colons", "localhost:8080:9090", false},
		{"Empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isValidHostPort(tt.addr)
			if result != tt.expected {
				t.Errorf("isValidHostPort('%s') = %v, expected %v", tt.addr, result, tt.expected)
			}
		})
	}
}
