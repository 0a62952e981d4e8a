package httpserver

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shopfront/internal/domain"
	usersvc "shopfront/internal/service/user"
)

const principalKey = "principal"

type authenticator interface {
	Authenticate(accessToken string) (usersvc.Principal, error)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if p, ok := principalFrom(c); ok {
			fields = append(fields, zap.String("user_id", p.UserID))
		}

		switch {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	}
}

// requireAuth verifies the bearer access token and stores the principal on
// the gin context.
func requireAuth(auth authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abortWithError(c, domain.Unauthorized("missing bearer token"))
			return
		}
		p, err := auth.Authenticate(token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principalFrom(c)
		if !ok || !p.IsAdmin() {
			abortWithError(c, domain.Forbidden("admin only"))
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) (usersvc.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return usersvc.Principal{}, false
	}
	p, ok := v.(usersvc.Principal)
	return p, ok
}

func bearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
