// Package hub is the websocket transport for the signaling coordinator. It
// assigns every connection an id, tracks room association and delivers
// named events to one connection or to a whole room.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/classroom-signaling/internal/models"
	"github.com/rs/zerolog/log"
)

// Dispatcher consumes inbound frames and the final disconnect of a client.
type Dispatcher interface {
	Dispatch(id string, env models.Envelope) error
	Disconnect(id string)
}

// Options controls per-connection limits and keepalive.
type Options struct {
	// ReadLimit is the maximum inbound frame size in bytes.
	ReadLimit int64
	// WriteWait is the time allowed to write a frame.
	WriteWait time.Duration
	// PongWait is the time allowed to read the next pong.
	PongWait time.Duration
	// PingPeriod must be less than PongWait.
	PingPeriod time.Duration
	// SendBuffer is the number of outbound frames queued per client.
	SendBuffer int
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:  64 * 1024,
		WriteWait:  10 * time.Second,
		PongWait:   60 * time.Second,
		PingPeriod: 54 * time.Second,
		SendBuffer: 256,
	}
}

// Hub tracks live clients and their room association.
type Hub struct {
	opts Options

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
}

func New(opts Options) *Hub {
	def := DefaultOptions()
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = def.ReadLimit
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = def.PongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = (opts.PongWait * 9) / 10
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	return &Hub{
		opts:    opts,
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

// Serve registers conn under a fresh id, greets it and starts its pumps.
// d receives every frame the client sends and, exactly once, its disconnect.
func (h *Hub) Serve(conn *websocket.Conn, d Dispatcher) *Client {
	client := &Client{
		ID:    uuid.New().String(),
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, h.opts.SendBuffer),
		rooms: make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	log.Info().Str("module", "hub").Str("sid", client.ID).Str("remote", conn.RemoteAddr().String()).Msg("client connected")

	h.SendTo(client.ID, models.EventConnected, models.ConnectedPayload{ID: client.ID})

	go client.writePump()
	go client.readPump(d)
	return client
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	c.mu.Lock()
	for roomID := range c.rooms {
		h.leaveLocked(c, roomID)
	}
	c.mu.Unlock()
	h.mu.Unlock()

	c.close()
	log.Info().Str("module", "hub").Str("sid", c.ID).Msg("client disconnected")
}

func (h *Hub) client(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// SendTo queues event for the client with the given id. Unknown ids are
// ignored.
func (h *Hub) SendTo(id, event string, data any) {
	c, ok := h.client(id)
	if !ok {
		log.Debug().Str("module", "hub").Str("sid", id).Str("event", event).Msg("send target not connected")
		return
	}
	frame, err := encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Str("event", event).Msg("failed to marshal message")
		return
	}
	c.trySend(frame)
}

// BroadcastRoom queues event for every client associated with roomID.
func (h *Hub) BroadcastRoom(roomID, event string, data any) {
	frame, err := encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Str("event", event).Msg("failed to marshal message")
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.trySend(frame)
	}
}

// JoinRoom associates the client with roomID for broadcasts.
func (h *Hub) JoinRoom(id, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[id] = c
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

// LeaveRoom removes the client's association with roomID.
func (h *Hub) LeaveRoom(id, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return
	}
	c.mu.Lock()
	h.leaveLocked(c, roomID)
	c.mu.Unlock()
}

// leaveLocked requires h.mu and c.mu.
func (h *Hub) leaveLocked(c *Client, roomID string) {
	delete(c.rooms, roomID)
	if members, ok := h.rooms[roomID]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// RoomMembers returns the ids associated with roomID.
func (h *Hub) RoomMembers(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms[roomID]))
	for id := range h.rooms[roomID] {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) SetSession(id string, s models.Session) {
	if c, ok := h.client(id); ok {
		c.setSession(s)
	}
}

func (h *Hub) Session(id string) (models.Session, bool) {
	c, ok := h.client(id)
	if !ok {
		return models.Session{}, false
	}
	return c.Session()
}

// Len returns the number of live clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encode(event string, data any) ([]byte, error) {
	env := struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: event, Data: data}
	return json.Marshal(env)
}
