package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/classroom-signaling/internal/middleware"
	"github.com/mossy-p/classroom-signaling/internal/models"
	"github.com/rs/zerolog/log"
)

const adminTokenTTL = time.Hour

// IssueAdminToken exchanges the configured admin key for a short-lived admin
// token. With no admin key configured the endpoint is disabled.
func IssueAdminToken(jwtSecret, adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Admin access disabled"})
			return
		}

		var req models.TokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(req.Key), []byte(adminKey)) != 1 {
			log.Warn().Str("module", "handlers").Str("remote", c.ClientIP()).Msg("admin key rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin key"})
			return
		}

		token, expiresAt, err := middleware.IssueToken(jwtSecret, adminTokenTTL)
		if err != nil {
			log.Error().Err(err).Str("module", "handlers").Msg("failed to issue admin token")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}

		c.JSON(http.StatusOK, models.TokenResponse{
			Token:     token,
			ExpiresAt: expiresAt.Unix(),
		})
	}
}
