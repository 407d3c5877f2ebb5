package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the dashboard is token protected, so any origin may connect
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades an authenticated request and streams dashboard events to it.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	claims, err := h.authenticate(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.log.Warn("websocket upgrade failed", "staff_id", claims.StaffID, "error", err)
		return
	}

	if client := h.Hub.Serve(conn, claims.StaffID); client != nil {
		h.log.Info("dashboard connected", "staff_id", claims.StaffID, "client_id", client.ID)
	}
}
