package http

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"secureapi/internal/domain"
	"secureapi/internal/ratelimit"
	"secureapi/internal/service"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	userKey         = "user"
)

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader}
	cfg.ExposeHeaders = []string{requestIDHeader, "Retry-After"}

	cfg.AllowAllOrigins = len(origins) == 0
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			break
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// requestLogger tags each request with an id, logs it once finished and
// records the request metrics.
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)

		h.metrics.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		h.metrics.duration.WithLabelValues(route).Observe(latency.Seconds())

		h.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency":    latency.String(),
			"client_ip":  c.ClientIP(),
		}).Info("request handled")
	}
}

// loginRateLimit admits at most the limiter's ceiling of login attempts per
// client address and window. Limiter failures reject the request.
func (h *Handler) loginRateLimit() gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(h.retryAfter.Seconds()))
	return func(c *gin.Context) {
		allowed, err := h.limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			h.respondError(c, fmt.Errorf("%w: %w", service.ErrStoreUnavailable, err))
			return
		}
		if !allowed {
			h.metrics.rateLimited.Inc()
			c.Header("Retry-After", retryAfter)
			h.respondError(c, ratelimit.ErrTooManyAttempts)
			return
		}
		c.Next()
	}
}

// requireAuth resolves the bearer token into the current user.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			h.respondError(c, errUnauthorized)
			return
		}

		user, err := h.auth.Resolve(c.Request.Context(), token)
		if err != nil {
			h.respondError(c, err)
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func (h *Handler) requireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.auth.RequireRole(currentUser(c), role); err != nil {
			h.respondError(c, err)
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func currentUser(c *gin.Context) *domain.User {
	value, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := value.(*domain.User)
	return user
}
