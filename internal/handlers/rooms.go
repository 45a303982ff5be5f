package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/classroom-signaling/internal/models"
	"github.com/rs/zerolog/log"
)

// RoomService exposes room state to the HTTP API.
type RoomService interface {
	Rooms() []models.RoomSnapshot
	Room(roomID string) (models.RoomSnapshot, bool)
	CloseRoom(roomID string) bool
}

// ListRooms returns every open room
func ListRooms(rooms RoomService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list := rooms.Rooms()
		c.JSON(http.StatusOK, gin.H{"rooms": list, "count": len(list)})
	}
}

// GetRoom returns one room's membership
func GetRoom(rooms RoomService) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, ok := rooms.Room(c.Param("roomId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		c.JSON(http.StatusOK, room)
	}
}

// DeleteRoom closes a room the same way its teacher leaving would (requires
// an admin token)
func DeleteRoom(rooms RoomService) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")
		if !rooms.CloseRoom(roomID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}

		log.Info().Str("module", "handlers").Str("room", roomID).Str("subject", c.GetString("subject")).Msg("room deleted")
		c.JSON(http.StatusOK, gin.H{"message": "Room closed"})
	}
}
