package models

// Role is the part an endpoint plays in a room.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Session is attached to a connection when it joins a room and read back
// on disconnect.
type Session struct {
	RoomID string
	Role   Role
	Name   string
}

// RoomSnapshot is a point-in-time copy of a room's membership
type RoomSnapshot struct {
	ID           string   `json:"id"`
	TeacherID    string   `json:"teacherId,omitempty"`
	Students     []string `json:"students"`
	StudentCount int      `json:"studentCount"`
}

// TokenRequest is the request body for issuing an admin token
type TokenRequest struct {
	Key string `json:"key" binding:"required"`
}

// TokenResponse is the response for issuing an admin token
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}
