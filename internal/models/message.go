package models

import "encoding/json"

// Event names exchanged over the signaling socket.
const (
	EventConnected     = "connected"
	EventJoinRoom      = "join-room"
	EventError         = "error"
	EventStudentJoined = "student-joined"
	EventStudentLeft   = "student-left"
	EventOffer         = "offer"
	EventAnswer        = "answer"
	EventICE           = "ice"
	EventRoomClosed    = "room-closed"
)

// Envelope is a single frame on the signaling socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomPayload is sent by a client with the join-room event
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	Role   Role   `json:"role"`
	Name   string `json:"name"`
}

// ConnectedPayload tells a freshly connected client its own id.
type ConnectedPayload struct {
	ID string `json:"id"`
}

// StudentJoinedPayload is delivered to the teacher when a student enters the room
type StudentJoinedPayload struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
}

// StudentLeftPayload is delivered to the teacher when a student disconnects
type StudentLeftPayload struct {
	StudentID string `json:"studentId"`
}

// IsRelayEvent reports whether event is forwarded peer to peer.
func IsRelayEvent(event string) bool {
	switch event {
	case EventOffer, EventAnswer, EventICE:
		return true
	}
	return false
}
