package handler

import (
	"net/http"

	"helpdesk/backend/internal/dashboard"

	"github.com/gin-gonic/gin"
)

const staffIDKey = "staff_id"

// authenticate reads the bearer token from the Authorization header, or from
// the "token" query parameter since browsers cannot set headers on websockets.
func (h *Handler) authenticate(c *gin.Context) (*dashboard.Claims, error) {
	raw := c.GetHeader("Authorization")
	if raw == "" {
		raw = c.Query("token")
	}
	return dashboard.ParseToken(h.secret, raw)
}

// RequireToken rejects requests without a valid dashboard token.
func (h *Handler) RequireToken(c *gin.Context) {
	claims, err := h.authenticate(c)
	if err != nil {
		h.log.Debug("rejected dashboard request", "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}
	c.Set(staffIDKey, claims.StaffID)
	c.Next()
}
