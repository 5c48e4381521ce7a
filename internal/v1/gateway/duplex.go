package gateway

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/metrics"
)

const duplexDialTimeout = 10 * time.Second

// isUpgrade reports whether the request asks for a websocket upgrade.
func isUpgrade(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, v := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(v), "upgrade") {
			return true
		}
	}
	return false
}

// bridge takes over the client socket and splices it to the backend: dial,
// replay the upgrade handshake with the rewritten path, then run two byte
// pumps until either side closes. Past the handshake the gateway never
// inspects a frame.
func (b *backend) bridge(c *gin.Context) {
	ctx := c.Request.Context()

	backendConn, err := b.dialDuplex()
	if err != nil {
		logging.Warn(ctx, "duplex backend unavailable",
			zap.String("backend", b.name), zap.Error(err))
		metrics.GatewayBackendErrors.WithLabelValues(b.name).Inc()
		writeUnavailable(c.Writer, b.name)
		c.Abort()
		return
	}
	defer backendConn.Close()

	hijacker, ok := c.Writer.(http.Hijacker)
	if !ok {
		logging.Error(ctx, "response writer does not support hijacking", zap.String("backend", b.name))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	clientConn, clientBuf, err := hijacker.Hijack()
	if err != nil {
		logging.Error(ctx, "failed to hijack client connection", zap.Error(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	defer clientConn.Close()
	c.Abort()

	// Replay the client's handshake against the backend. Clone keeps the
	// original upgrade headers; only the target and path change.
	outReq := c.Request.Clone(context.Background())
	outReq.URL.Scheme = "http"
	outReq.URL.Host = b.target.Host
	outReq.URL.Path = b.rewrite(c.Request.URL.Path)
	outReq.Host = b.target.Host
	outReq.RequestURI = ""
	if err := outReq.Write(backendConn); err != nil {
		logging.Warn(ctx, "failed to forward upgrade handshake",
			zap.String("backend", b.name), zap.Error(err))
		return
	}

	// Bytes the client sent ahead of the handshake response are sitting in
	// the server's read buffer; flush them before switching to raw copies.
	if n := clientBuf.Reader.Buffered(); n > 0 {
		head, err := clientBuf.Reader.Peek(n)
		if err != nil {
			return
		}
		if _, err := backendConn.Write(head); err != nil {
			return
		}
		if _, err := clientBuf.Reader.Discard(n); err != nil {
			return
		}
	}

	metrics.GatewayDuplexActive.Inc()
	defer metrics.GatewayDuplexActive.Dec()
	logging.Debug(ctx, "duplex session bridged", zap.String("backend", b.name))

	// Either side closing ends its pump; the deferred closes tear down the
	// other half of the pair.
	done := make(chan struct{}, 2)
	go splice(backendConn, clientConn, done)
	go splice(clientConn, backendConn, done)
	<-done
}

// dialDuplex opens the raw backend connection through the breaker, so a
// flapping backend rejects upgrades as fast as it rejects requests.
func (b *backend) dialDuplex() (net.Conn, error) {
	conn, err := b.cb.Execute(func() (any, error) {
		return net.DialTimeout("tcp", hostPort(b.target), duplexDialTimeout)
	})
	if err != nil {
		return nil, err
	}
	return conn.(net.Conn), nil
}

func splice(dst, src net.Conn, done chan<- struct{}) {
	_, _ = io.Copy(dst, src)
	done <- struct{}{}
}

// hostPort returns the dialable address, defaulting the port by scheme.
func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
