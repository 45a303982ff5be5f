// Package signaling implements the room lifecycle and relay routing that sits
// between connected endpoints. It owns the room registry; transports feed it
// events and carry its outbound messages.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mossy-p/classroom-signaling/internal/models"
	"github.com/mossy-p/classroom-signaling/internal/rooms"
	"github.com/rs/zerolog/log"
)

var (
	// ErrTeacherPresent is returned by Join when the room already has a teacher.
	ErrTeacherPresent = rooms.ErrTeacherPresent
	// ErrInvalidJoin is returned for a join-room payload without a room id.
	ErrInvalidJoin = errors.New("join-room requires roomId")
	// ErrMissingTarget is returned for a relay payload without a "to" field.
	ErrMissingTarget = errors.New("relay payload requires a \"to\" field")
	// ErrUnknownEvent is returned by Dispatch for event names it does not handle.
	ErrUnknownEvent = errors.New("unknown event")
)

// teacherPresentMessage is the error text clients match on.
const teacherPresentMessage = "Teacher already present"

// Transport delivers events to connected endpoints. Sends are fire-and-forget:
// an unknown id or a full buffer drops the message.
type Transport interface {
	SendTo(id, event string, data any)
	BroadcastRoom(roomID, event string, data any)
	JoinRoom(id, roomID string)
	LeaveRoom(id, roomID string)
	SetSession(id string, s models.Session)
	Session(id string) (models.Session, bool)
}

// Presence receives membership changes. Implementations must not block.
type Presence interface {
	TeacherJoined(roomID, id string)
	StudentJoined(roomID, id string)
	StudentLeft(roomID, id string)
	RoomClosed(roomID string)
}

type nopPresence struct{}

func (nopPresence) TeacherJoined(string, string) {}
func (nopPresence) StudentJoined(string, string) {}
func (nopPresence) StudentLeft(string, string)   {}
func (nopPresence) RoomClosed(string)            {}

type Option func(*Coordinator)

// WithPresence mirrors membership changes into p.
func WithPresence(p Presence) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.presence = p
		}
	}
}

// Coordinator applies join, relay and disconnect events to the room registry.
// Every handler runs to completion under a single mutex.
type Coordinator struct {
	mu        sync.Mutex
	rooms     *rooms.Registry
	transport Transport
	presence  Presence
}

func NewCoordinator(t Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		rooms:     rooms.NewRegistry(),
		transport: t,
		presence:  nopPresence{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch routes an inbound frame from endpoint id to its handler.
func (c *Coordinator) Dispatch(id string, env models.Envelope) error {
	switch {
	case env.Event == models.EventJoinRoom:
		var p models.JoinRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return c.Join(id, p)
	case models.IsRelayEvent(env.Event):
		return c.Relay(id, env.Event, env.Data)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// Join attaches the session to the endpoint and places it in the room.
// A second teacher is rejected with an error event and left outside the room.
func (c *Coordinator) Join(id string, p models.JoinRoomPayload) error {
	if p.RoomID == "" {
		return ErrInvalidJoin
	}
	role := models.RoleStudent
	if p.Role == models.RoleTeacher {
		role = models.RoleTeacher
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	room, created := c.rooms.GetOrCreate(p.RoomID)
	if created {
		log.Info().Str("module", "signaling").Str("room", p.RoomID).Msg("room created")
	}
	if role == models.RoleStudent && room.TeacherID == id {
		// keep the teacher session so their disconnect still closes the room
		log.Warn().Str("module", "signaling").Str("room", p.RoomID).Str("sid", id).Msg("teacher tried to join own room as student")
		return nil
	}
	c.transport.SetSession(id, models.Session{RoomID: p.RoomID, Role: role, Name: p.Name})

	if role == models.RoleTeacher {
		if err := room.SetTeacher(id); err != nil {
			log.Warn().Str("module", "signaling").Str("room", p.RoomID).Str("sid", id).Msg("teacher rejected, room already has one")
			c.transport.SendTo(id, models.EventError, teacherPresentMessage)
			return err
		}
		c.transport.JoinRoom(id, p.RoomID)
		c.presence.TeacherJoined(p.RoomID, id)
		log.Info().Str("module", "signaling").Str("room", p.RoomID).Str("sid", id).Str("name", p.Name).Msg("teacher joined")
		return nil
	}

	room.AddStudent(id)
	c.transport.JoinRoom(id, p.RoomID)
	c.presence.StudentJoined(p.RoomID, id)
	log.Info().Str("module", "signaling").Str("room", p.RoomID).Str("sid", id).Str("name", p.Name).Msg("student joined")

	if room.HasTeacher() {
		c.transport.SendTo(room.TeacherID, models.EventStudentJoined, models.StudentJoinedPayload{
			StudentID: id,
			Name:      p.Name,
		})
	}
	return nil
}

// Relay forwards payload to the endpoint named in its "to" field, stamping
// "from" with the sender. Every other field passes through untouched.
func (c *Coordinator) Relay(from, event string, payload json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("decode %s: %w", event, err)
	}
	var to string
	if raw, ok := fields["to"]; !ok || json.Unmarshal(raw, &to) != nil || to == "" {
		return ErrMissingTarget
	}

	stamp, err := json.Marshal(from)
	if err != nil {
		return fmt.Errorf("encode sender: %w", err)
	}
	fields["from"] = stamp

	c.mu.Lock()
	defer c.mu.Unlock()

	log.Debug().Str("module", "signaling").Str("event", event).Str("from", from).Str("to", to).Msg("relay")
	c.transport.SendTo(to, event, fields)
	return nil
}

// Disconnect cleans up after an endpoint that has gone away. A departing
// teacher closes the room; a departing student only leaves it.
func (c *Coordinator) Disconnect(id string) {
	session, ok := c.transport.Session(id)
	if !ok || session.RoomID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms.Get(session.RoomID)
	if !ok {
		return
	}

	if session.Role == models.RoleTeacher {
		if room.TeacherID != id {
			// rejected teacher or a teacher of an earlier room with this id
			return
		}
		c.teardown(room)
		log.Info().Str("module", "signaling").Str("room", room.ID).Str("sid", id).Msg("teacher left, room closed")
		return
	}

	if !room.RemoveStudent(id) {
		return
	}
	c.presence.StudentLeft(room.ID, id)
	log.Info().Str("module", "signaling").Str("room", room.ID).Str("sid", id).Msg("student left")
	if room.HasTeacher() {
		c.transport.SendTo(room.TeacherID, models.EventStudentLeft, models.StudentLeftPayload{StudentID: id})
	}
}

// CloseRoom tears the room down as if its teacher had left. It reports
// whether the room existed.
func (c *Coordinator) CloseRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms.Get(roomID)
	if !ok {
		return false
	}
	c.teardown(room)
	log.Info().Str("module", "signaling").Str("room", roomID).Msg("room closed by admin")
	return true
}

func (c *Coordinator) teardown(room *rooms.Room) {
	c.transport.BroadcastRoom(room.ID, models.EventRoomClosed, nil)
	for _, sid := range room.StudentIDs() {
		c.transport.LeaveRoom(sid, room.ID)
	}
	if room.HasTeacher() {
		c.transport.LeaveRoom(room.TeacherID, room.ID)
	}
	c.rooms.Remove(room.ID)
	c.presence.RoomClosed(room.ID)
}

func (c *Coordinator) Room(roomID string) (models.RoomSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms.Get(roomID)
	if !ok {
		return models.RoomSnapshot{}, false
	}
	return room.Snapshot(), true
}

func (c *Coordinator) Rooms() []models.RoomSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms.Snapshots()
}
