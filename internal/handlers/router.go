package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/classroom-signaling/config"
	"github.com/mossy-p/classroom-signaling/internal/hub"
	"github.com/mossy-p/classroom-signaling/internal/middleware"
	"github.com/mossy-p/classroom-signaling/internal/signaling"
)

// NewRouter wires the HTTP surface around the hub and coordinator.
func NewRouter(cfg *config.Config, h *hub.Hub, coord *signaling.Coordinator) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if gin.Mode() == gin.DebugMode {
		router.Use(gin.Logger())
	}
	router.Use(gin.Recovery())

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": h.Len()})
	})

	// WebSocket signaling endpoint
	router.GET("/socket", HandleSignaling(h, coord))

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/auth/token", IssueAdminToken(cfg.JWTSecret, cfg.AdminKey))

		apiGroup.GET("/rooms", ListRooms(coord))
		apiGroup.GET("/rooms/:roomId", GetRoom(coord))

		// Force-close a room (requires admin JWT). Only mounted when an
		// admin key is configured.
		if cfg.AdminKey != "" {
			apiGroup.DELETE("/rooms/:roomId", middleware.JWTAuth(cfg.JWTSecret), DeleteRoom(coord))
		}
	}

	return router
}
