package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mossy-p/classroom-signaling/internal/models"
	"github.com/rs/zerolog/log"
)

// Client represents a WebSocket client connection
type Client struct {
	ID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	session *models.Session
	rooms   map[string]struct{}
	closed  bool
}

// Session returns the data attached when the client joined a room.
func (c *Client) Session() (models.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return models.Session{}, false
	}
	return *c.session, true
}

func (c *Client) setSession(s models.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &s
}

func (c *Client) trySend(frame []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Warn().Str("module", "hub").Str("sid", c.ID).Msg("send buffer full, dropping message")
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) readPump(d Dispatcher) {
	defer func() {
		d.Disconnect(c.ID)
		c.hub.unregister(c)
		c.conn.Close()
	}()

	opts := c.hub.opts
	c.conn.SetReadLimit(opts.ReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "hub").Str("sid", c.ID).Msg("websocket error")
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Warn().Err(err).Str("module", "hub").Str("sid", c.ID).Msg("failed to parse message")
			continue
		}
		if err := d.Dispatch(c.ID, env); err != nil {
			log.Warn().Err(err).Str("module", "hub").Str("sid", c.ID).Str("event", env.Event).Msg("message rejected")
		}
	}
}

func (c *Client) writePump() {
	opts := c.hub.opts
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().Err(err).Str("module", "hub").Str("sid", c.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
