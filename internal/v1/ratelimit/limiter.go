// Package ratelimit throttles connection handshakes and the public REST
// surface. Limits are keyed per IP before authentication and per user after,
// backed by Redis when available so counters hold across replicas, and by
// local memory otherwise. Store failures fail open: an unreachable Redis
// must not take the service down with it.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/metrics"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// Rates carries the formatted limits ("100-M" style) for one engine.
type Rates struct {
	ConnectPerIP   string
	ConnectPerUser string
	APIPublic      string
}

// Limiter enforces the engine's rate limits.
type Limiter struct {
	connectIP   *limiter.Limiter
	connectUser *limiter.Limiter
	apiPublic   *limiter.Limiter
	store       limiter.Store
}

// New builds a Limiter from formatted rates. A nil redisClient selects the
// in-memory store.
func New(rates Rates, redisClient *redis.Client) (*Limiter, error) {
	ipRate, err := limiter.NewRateFromFormatted(rates.ConnectPerIP)
	if err != nil {
		return nil, fmt.Errorf("invalid connect-per-IP rate: %w", err)
	}
	userRate, err := limiter.NewRateFromFormatted(rates.ConnectPerUser)
	if err != nil {
		return nil, fmt.Errorf("invalid connect-per-user rate: %w", err)
	}
	publicRate, err := limiter.NewRateFromFormatted(rates.APIPublic)
	if err != nil {
		return nil, fmt.Errorf("invalid public API rate: %w", err)
	}

	var st limiter.Store
	if redisClient != nil {
		st, err = sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "huddle:limiter:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
		}
		logging.Info(context.Background(), "rate limiter using Redis store")
	} else {
		st = memory.NewStore()
		logging.Info(context.Background(), "rate limiter using memory store")
	}

	return &Limiter{
		connectIP:   limiter.New(st, ipRate),
		connectUser: limiter.New(st, userRate),
		apiPublic:   limiter.New(st, publicRate),
		store:       st,
	}, nil
}

// CheckConnect applies the per-IP handshake limit. It runs before the
// upgrade, so on rejection it writes the 429 itself and returns false.
func (l *Limiter) CheckConnect(c *gin.Context) bool {
	ctx := c.Request.Context()
	ip := c.ClientIP()

	lctx, err := l.connectIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed on connect check", zap.Error(err))
		return true
	}

	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ws_connect", "ip").Inc()
		c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"error":   types.NewError(types.CodeRateLimited, "too many connection attempts from this address"),
		})
		return false
	}

	metrics.RateLimitRequests.WithLabelValues("ws_connect").Inc()
	return true
}

// CheckConnectUser applies the per-user handshake limit after the token has
// been verified. Returns a wire error when the limit is reached.
func (l *Limiter) CheckConnectUser(ctx context.Context, userID types.UserID) *types.Error {
	lctx, err := l.connectUser.Get(ctx, string(userID))
	if err != nil {
		logging.Error(ctx, "rate limiter store failed on user check", zap.Error(err))
		return nil
	}

	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ws_connect", "user").Inc()
		return types.NewError(types.CodeRateLimited, "too many connection attempts for this user")
	}
	return nil
}

// PublicAPIMiddleware throttles the unauthenticated REST surface per IP.
func (l *Limiter) PublicAPIMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		lctx, err := l.apiPublic.Get(ctx, c.ClientIP())
		if err != nil {
			logging.Error(ctx, "rate limiter store failed on API check", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), "ip").Inc()
			c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   types.NewError(types.CodeRateLimited, "too many requests"),
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}
