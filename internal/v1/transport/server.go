package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/auth"
	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/ratelimit"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// Server upgrades handshakes into Sessions for one engine.
type Server struct {
	router         Router
	authenticator  *auth.SessionAuthenticator
	limiter        *ratelimit.Limiter
	allowedOrigins []string
}

// NewServer builds the handshake path. limiter may be nil (no throttling,
// used by tests).
func NewServer(router Router, authenticator *auth.SessionAuthenticator, limiter *ratelimit.Limiter, allowedOrigins []string) *Server {
	return &Server{
		router:         router,
		authenticator:  authenticator,
		limiter:        limiter,
		allowedOrigins: allowedOrigins,
	}
}

// ServeWS is the gin handler for the engine's WebSocket endpoint. Admission
// runs before the upgrade so rejections are plain HTTP responses.
func (srv *Server) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()

	if srv.limiter != nil && !srv.limiter.CheckConnect(c) {
		return
	}

	// The session id exists before authentication: anonymous descriptors
	// are derived from it.
	sessionID := types.SessionID(uuid.NewString())

	user, wireErr := srv.authenticator.AuthenticateHandshake(ctx, c.Request, sessionID)
	if wireErr != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": wireErr})
		return
	}

	if srv.limiter != nil {
		if wireErr := srv.limiter.CheckConnectUser(ctx, user.ID); wireErr != nil {
			c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "error": wireErr})
			return
		}
	}

	if err := validateOrigin(c.Request, srv.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": types.NewError(types.CodeUnauthorized, "origin not allowed")})
		return
	}

	conn, err := srv.upgrade(c)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	logging.Info(ctx, "session connected",
		zap.String("sessionId", string(sessionID)),
		zap.String("userId", string(user.ID)),
		zap.Bool("anonymous", user.Anonymous()))

	session := NewSession(sessionID, conn, srv.router, user)

	// Connect before the pumps start so whatever the engine queues here
	// (presence, initial listings) reaches the client first.
	srv.router.HandleConnect(session)
	session.Run()
}

func (srv *Server) upgrade(c *gin.Context) (wsConnection, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, srv.allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{
			New: func() any {
				return make([]byte, 4096)
			},
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to upgrade connection", zap.Error(err))
		return nil, err
	}
	return conn, nil
}

// validateOrigin checks the Origin header against the allow-list. Requests
// without an Origin header pass: non-browser clients send none.
func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin URL: %w", err)
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}
