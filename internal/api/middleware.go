package api

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/victornm/pubquiz/internal/errors"
)

const (
	headerRequestID = "X-Request-ID"

	ctxKeyRequestID   = "request_id"
	ctxKeyAdminExpiry = "admin_expiry"
)

// RequestLogger tags every request with an ID and logs its outcome.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(headerRequestID, id)

		c.Next()

		status := c.Writer.Status()
		lvl := slog.LevelInfo
		if status >= 500 {
			lvl = slog.LevelError
		}

		slog.Log(c.Request.Context(), lvl, "api: request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		)
	}
}

// RequireAdmin accepts an admin token from the admin cookie or a Bearer authorization header.
func (a *API) RequireAdmin(c *gin.Context) {
	token, _ := c.Cookie(adminCookie)
	if h := c.GetHeader("Authorization"); token == "" && strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}

	if token == "" {
		fail(c, errors.Newf(errors.ReasonUnauthenticated, "admin login required"))
		return
	}

	exp, err := a.auth.Verify(token)
	if err != nil {
		fail(c, err)
		return
	}

	c.Set(ctxKeyAdminExpiry, exp)
	c.Next()
}
