package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/infrastructure/logger"
)

// ActorConfig configures the Actor middleware
type ActorConfig struct {
	// SkipPaths do not need a tenant, e.g. health checks
	SkipPaths []string
	// RequireUser rejects requests without X-User-ID
	RequireUser bool
}

// DefaultActorConfig returns the default actor configuration
func DefaultActorConfig() ActorConfig {
	return ActorConfig{
		SkipPaths: []string{"/health", "/ready"},
	}
}

// Actor reads the tenant from X-Tenant-ID and the acting user from X-User-ID,
// stores both in the gin and request contexts, and rejects malformed ids.
func Actor(cfg ActorConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if path == skip || strings.HasPrefix(path, skip+"/") {
				c.Next()
				return
			}
		}

		tenantID, err := uuid.Parse(c.GetHeader(TenantIDHeader))
		if err != nil || tenantID == uuid.Nil {
			abortUnauthorized(c, "A valid X-Tenant-ID header is required")
			return
		}
		ctx := logger.WithTenantID(c.Request.Context(), tenantID.String())
		c.Set(TenantIDKey, tenantID)

		if raw := c.GetHeader(UserIDHeader); raw != "" {
			userID, err := uuid.Parse(raw)
			if err != nil {
				abortUnauthorized(c, "Invalid X-User-ID header")
				return
			}
			c.Set(UserIDKey, userID)
			ctx = logger.WithUserID(ctx, userID.String())
		} else if cfg.RequireUser {
			abortUnauthorized(c, "X-User-ID header is required")
			return
		}

		if requestID := GetRequestID(c); requestID != "" {
			ctx = logger.WithRequestID(ctx, requestID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetTenantID returns the tenant set by Actor
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(TenantIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetUserID returns the acting user set by Actor
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":       "ERR_UNAUTHORIZED",
			"message":    message,
			"request_id": GetRequestID(c),
		},
	})
}
