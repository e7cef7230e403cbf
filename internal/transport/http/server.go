package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/parley/internal/auth"
	"github.com/vovakirdan/parley/internal/config"
	"github.com/vovakirdan/parley/internal/core"
	"github.com/vovakirdan/parley/internal/metrics"
)

// NewServer builds an HTTP server with the websocket endpoint and the REST surface.
// The websocket route stays off the gin router: gin refuses to hijack a
// connection once the 101 status is written.
func NewServer(hub *core.Hub, authService *auth.Service, m *metrics.Metrics, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger, m))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	apiHandlers := NewAPIHandlers(authService, hub, logger)
	roomHandlers := NewRoomHandlers(hub, logger)
	messageHandlers := NewMessageHandlers(hub, logger)

	api := router.Group("/api")
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("")
	authed.Use(AuthMiddleware(authService, logger))
	{
		authed.GET("/me", apiHandlers.Me)
		authed.PUT("/me/theme", apiHandlers.UpdateTheme)
		authed.POST("/logout", apiHandlers.Logout)
		authed.POST("/admin/identities", apiHandlers.CreateIdentity)

		authed.GET("/online", roomHandlers.Online)
		authed.GET("/rooms/private", roomHandlers.PrivateRooms)
		authed.GET("/rooms/:room/history", roomHandlers.History)

		authed.PUT("/messages/:id", messageHandlers.EditMessage)
		authed.DELETE("/messages/:id", messageHandlers.DeleteMessage)
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", WSLogger(NewWSHandler(hub, authService, m, cfg, logger), logger, m))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
