// Package gateway is the platform's edge: the single externally reachable
// listener. It serves health and API documentation locally, forwards
// identity traffic to the auth service, and bridges duplex upgrades through
// to the chat and video engines with per-backend failure isolation.
//
// The gateway holds no session or room state and enforces no auth; every
// engine guards its own door.
package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/huddlekit/huddle-server/internal/v1/config"
	"github.com/huddlekit/huddle-server/internal/v1/middleware"
)

// Gateway routes external traffic to the three upstream services.
type Gateway struct {
	cfg   config.GatewayConfig
	auth  *backend
	chat  *backend
	video *backend
	docs  *docSet
}

// New builds the gateway: one connector per backend and the validated API
// documents. Fails fast on unparseable backend URLs or invalid documents.
func New(cfg config.GatewayConfig) (*Gateway, error) {
	authBackend, err := newBackend("auth", cfg.AuthServiceURL, prefixRewrite("/api/auth", "/auth"))
	if err != nil {
		return nil, err
	}
	chatBackend, err := newBackend("chat", cfg.ChatServiceURL, prefixRewrite("/api/chat", ""))
	if err != nil {
		return nil, err
	}
	videoBackend, err := newBackend("video", cfg.VideoServiceURL, prefixRewrite("/api/video", ""))
	if err != nil {
		return nil, err
	}
	docs, err := loadDocs()
	if err != nil {
		return nil, err
	}

	return &Gateway{
		cfg:   cfg,
		auth:  authBackend,
		chat:  chatBackend,
		video: videoBackend,
		docs:  docs,
	}, nil
}

// Router assembles the edge routing table.
func (g *Gateway) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CorrelationID())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = allowedOrigins(g.cfg.AllowedOrigins)
	corsCfg.AddAllowHeaders("Authorization")
	r.Use(cors.New(corsCfg))

	r.GET("/health", g.handleHealth)
	g.docs.register(r)

	// Identity is plain request/response; chat and video are upgrade-aware.
	r.Any("/api/auth/*rest", g.auth.handle)
	r.Any("/api/chat/*rest", upgradeAware(g.chat))
	r.Any("/api/video/*rest", upgradeAware(g.video))

	// A duplex path with no service prefix belongs to chat.
	r.GET("/ws", upgradeAware(g.chat))
	r.Any("/socket.io/*rest", upgradeAware(g.chat))

	return r
}

// handleHealth reports the gateway's own liveness and the configured
// backend targets. Side-effect free: it does not probe the backends.
func (g *Gateway) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "gateway",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"backends": gin.H{
			"auth":  g.auth.target.String(),
			"chat":  g.chat.target.String(),
			"video": g.video.target.String(),
		},
	})
}

// upgradeAware sends websocket handshakes down the bridge and everything
// else through the reverse proxy.
func upgradeAware(b *backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isUpgrade(c.Request) {
			b.bridge(c)
			return
		}
		b.handle(c)
	}
}

// allowedOrigins parses the comma-separated CORS_ORIGIN value, falling back
// to the local development frontend when unset.
func allowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{"http://localhost:3000"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
