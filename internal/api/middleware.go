package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/audiocove/audiocove-monitoring/internal/storage"
	"github.com/audiocove/audiocove-monitoring/pkg/config"
	"github.com/audiocove/audiocove-monitoring/pkg/logging"
)

const (
	// rateLimitRequests is the per-client budget within rateLimitWindow.
	rateLimitRequests = 100
	rateLimitWindow   = 60 * time.Second
)

// logSkipPaths are probed or scraped continuously; logging them would
// drown out real traffic.
var logSkipPaths = map[string]struct{}{
	"/health/live": {},
	"/metrics":     {},
}

// RequestIDMiddleware tags every request with an id, honoring one the
// caller already set, and threads it into the request context so log
// lines from downstream code carry it.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Header("X-Request-ID", id)
		c.Set("request_id", id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// LoggingMiddleware writes one structured line per request.
func LoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if _, skip := logSkipPaths[path]; skip {
			return
		}
		logger.LogRequest(
			c.Request.Context(),
			c.Request.Method,
			path,
			c.Request.UserAgent(),
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(start),
		)
	}
}

// ErrorHandlingMiddleware recovers panics into 500 responses.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return gin.Recovery()
}

// SecurityHeadersMiddleware adds the standard hardening headers.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// JWTClaims are the claims carried by tokens accepted on mutating
// routes. The subject identifies the operator for the request log.
type JWTClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates the Bearer token on mutating routes. Tokens
// must be HMAC-signed with the configured secret.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			UnauthorizedResponse(c, "Authorization header is required")
			c.Abort()
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			UnauthorizedResponse(c, "Authorization header must be in format 'Bearer <token>'")
			c.Abort()
			return
		}

		token, err := jwt.ParseWithClaims(tokenParts[1], &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.Auth.JWTSecret), nil
		})
		if err != nil {
			UnauthorizedResponse(c, "Invalid or expired token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(*JWTClaims)
		if !ok || !token.Valid {
			UnauthorizedResponse(c, "Invalid token claims")
			c.Abort()
			return
		}

		if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(time.Now()) {
			UnauthorizedResponse(c, "Token has expired")
			c.Abort()
			return
		}

		c.Set("subject", claims.Subject)
		c.Next()
	}
}

// CurrentSubject returns the authenticated token subject, when present.
func CurrentSubject(c *gin.Context) (string, bool) {
	subject, exists := c.Get("subject")
	if !exists {
		return "", false
	}
	s, ok := subject.(string)
	return s, ok && s != ""
}

// RateLimitMiddleware enforces a fixed-window per-client request budget
// backed by Redis. A nil client disables limiting and Redis outages
// fail open.
func RateLimitMiddleware(client *storage.RedisClient, logger *logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return func(c *gin.Context) {
		if client == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("rate_limit:%s", c.ClientIP())

		count, err := client.Client().Get(ctx, key).Int()
		if err != nil && err != redis.Nil {
			logger.Warn("Rate limiter unavailable, allowing request", "error", err.Error())
			c.Next()
			return
		}

		if count >= rateLimitRequests {
			c.Header("Retry-After", strconv.Itoa(int(rateLimitWindow/time.Second)))
			TooManyRequestsResponse(c, "Rate limit exceeded")
			c.Abort()
			return
		}

		pipe := client.Client().Pipeline()
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, rateLimitWindow)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("Rate limit counter update failed", "error", err.Error())
		}

		c.Next()
	}
}
