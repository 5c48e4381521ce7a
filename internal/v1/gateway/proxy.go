package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/metrics"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// backend is one upstream service behind the gateway: a reverse proxy for
// request/response traffic and a raw bridge for duplex upgrades, both
// guarded by the same circuit breaker. Breakers isolate failures per
// backend; a dead video engine never darkens chat.
type backend struct {
	name    string
	target  *url.URL
	rewrite func(string) string
	proxy   *httputil.ReverseProxy
	cb      *gobreaker.CircuitBreaker
}

func newBackend(name, rawURL string, rewrite func(string) string) (*backend, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid %s backend url %q: %w", name, rawURL, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid %s backend url %q: scheme and host are required", name, rawURL)
	}

	b := &backend{
		name:    name,
		target:  target,
		rewrite: rewrite,
	}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     10 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateHalfOpen:
				stateVal = 1
			case gobreaker.StateOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	})
	b.proxy = &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.URL.Path = rewrite(req.URL.Path)
			req.Host = target.Host
		},
		Transport: breakerTransport{b},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logging.Warn(r.Context(), "backend unavailable",
				zap.String("backend", b.name), zap.Error(err))
			metrics.GatewayBackendErrors.WithLabelValues(b.name).Inc()
			writeUnavailable(w, b.name)
		},
	}
	return b, nil
}

// handle proxies one request/response exchange.
func (b *backend) handle(c *gin.Context) {
	b.proxy.ServeHTTP(c.Writer, c.Request)
	metrics.GatewayRequests.WithLabelValues(b.name, statusClass(c.Writer.Status())).Inc()
}

// breakerTransport funnels the proxy's round trips through the backend's
// breaker. Only transport-level failures count against it; an upstream 5xx
// is a delivered response, not a dead backend.
type breakerTransport struct {
	b *backend
}

func (t breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.b.cb.Execute(func() (any, error) {
		return http.DefaultTransport.RoundTrip(req)
	})
	if err != nil {
		return nil, err
	}
	return resp.(*http.Response), nil
}

// prefixRewrite strips prefix from the path and prepends replacement. Paths
// without the prefix pass through with only the replacement applied.
func prefixRewrite(prefix, replacement string) func(string) string {
	return func(path string) string {
		rest := strings.TrimPrefix(path, prefix)
		if rest == "" {
			rest = "/"
		}
		out := replacement + rest
		if !strings.HasPrefix(out, "/") {
			out = "/" + out
		}
		return out
	}
}

// writeUnavailable emits the structured 503 naming the dead backend.
func writeUnavailable(w http.ResponseWriter, backendName string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   string(types.CodeServiceUnavailable),
		"backend": backendName,
	})
}

func statusClass(status int) string {
	if status < 100 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
