package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/linechat/linechat-server/internal/relay"
)

// APIHandlers serves the read-only status endpoints.
type APIHandlers struct {
	registry *relay.Registry
	log      *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(registry *relay.Registry, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{registry: registry, log: logger}
}

// OnlineResponse lists the currently connected display names.
type OnlineResponse struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// Health handles GET /health.
func (h *APIHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Online handles GET /api/online.
func (h *APIHandlers) Online(c *gin.Context) {
	users := h.registry.OnlineUsers()
	c.JSON(http.StatusOK, OnlineResponse{Count: len(users), Users: users})
}
