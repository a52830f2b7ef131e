package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/linechat/linechat-server/internal/config"
	"github.com/linechat/linechat-server/internal/relay"
)

// NewServer builds the HTTP server hosting the WebSocket bridge and the
// small status API.
func NewServer(registry *relay.Registry, cfg config.Config, logger *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	api := NewAPIHandlers(registry, logger)
	router.GET("/health", api.Health)
	router.GET("/api/online", api.Online)

	bridge := NewBridge(cfg.DialAddr, logger)
	router.GET("/ws", bridge.Handle)

	return &http.Server{
		Addr:              cfg.BridgeAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
