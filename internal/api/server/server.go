package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Timi0217/mixtapelive-sub000/internal/api/handlers"
	"github.com/Timi0217/mixtapelive-sub000/internal/api/middleware"
	"github.com/Timi0217/mixtapelive-sub000/internal/broadcast"
	"github.com/Timi0217/mixtapelive-sub000/internal/chat"
	"github.com/Timi0217/mixtapelive-sub000/internal/config"
	"github.com/Timi0217/mixtapelive-sub000/internal/gateway"
)

type Server struct {
	cfg    *config.Config
	router *gin.Engine
}

func New(cfg *config.Config, hub *gateway.Hub, svc *broadcast.Service, pipe *chat.Pipeline) *Server {
	if cfg.Server.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode) // Set to Release for production
	}

	s := &Server{
		cfg:    cfg,
		router: gin.Default(),
	}

	s.setupMiddleware()
	s.setupRoutes(hub, svc, pipe)

	return s
}

func (s *Server) setupMiddleware() {
	// CORS Configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}

	// IMPORTANT: "Authorization" must be allowed so the frontend can send the JWT
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}

	s.router.Use(cors.New(corsConfig))
}

func (s *Server) setupRoutes(hub *gateway.Hub, svc *broadcast.Service, pipe *chat.Pipeline) {
	// 1. Initialize Modular Handlers
	broadcastHandler := handlers.NewBroadcastHandler(svc)
	chatHandler := handlers.NewChatHandler(pipe)
	realtimeHandler := handlers.NewRealtimeHandler(hub, svc, pipe)

	// Health Check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "mixtape-live"})
	})

	// API Group
	v1 := s.router.Group("/api/v1")
	{
		// Everything is scoped to an authenticated user, including the
		// WebSocket upgrade (which carries its JWT in ?token=).
		protected := v1.Group("/")
		protected.Use(middleware.RequireAuth([]byte(s.cfg.Auth.JWTSecret)))
		{
			// --- BROADCAST LIFECYCLE (curator) ---
			protected.POST("/broadcasts", broadcastHandler.StartBroadcast)
			protected.POST("/broadcasts/:id/stop", broadcastHandler.StopBroadcast)
			protected.POST("/broadcasts/:id/heartbeat", broadcastHandler.Heartbeat)

			// --- DISCOVERY (listeners) ---
			protected.GET("/broadcasts", broadcastHandler.GetLiveBroadcasts)
			protected.GET("/broadcasts/:id", broadcastHandler.GetBroadcast)

			// --- CHAT (pull path; the push path is the WebSocket) ---
			protected.GET("/broadcasts/:id/messages", chatHandler.GetMessages)
			protected.DELETE("/messages/:messageId", chatHandler.DeleteMessage)

			// --- REALTIME ---
			protected.GET("/ws", realtimeHandler.Connect)
		}
	}
}

// Start runs the server on the configured port
func (s *Server) Start(addr string) error {
	return s.router.Run(addr)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
