package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mossy-p/classroom-signaling/internal/models"
)

type recordingDispatcher struct {
	hub *Hub

	mu          sync.Mutex
	frames      []models.Envelope
	disconnects map[string]int
	sessions    map[string]models.Session
}

func (d *recordingDispatcher) Dispatch(id string, env models.Envelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, env)
	return nil
}

func (d *recordingDispatcher) Disconnect(id string) {
	s, _ := d.hub.Session(id)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnects[id]++
	d.sessions[id] = s
}

func (d *recordingDispatcher) disconnectCount(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnects[id]
}

func newTestHub(t *testing.T) (*Hub, *recordingDispatcher, string) {
	t.Helper()
	h := New(Options{PingPeriod: time.Second, PongWait: 2 * time.Second})
	d := &recordingDispatcher{
		hub:         h,
		disconnects: make(map[string]int),
		sessions:    make(map[string]models.Session),
	}
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Serve(conn, d)
	}))
	t.Cleanup(ts.Close)
	return h, d, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialHub(t *testing.T, url string) (*websocket.Conn, string) {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	event, data := readEnvelope(t, c)
	if event != models.EventConnected {
		t.Fatalf("first event = %q, want connected", event)
	}
	var p models.ConnectedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("decode connected: %v", err)
	}
	return c, p.ID
}

func readEnvelope(t *testing.T, c *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env models.Envelope
	if err := c.ReadJSON(&env); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return env.Event, env.Data
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_SendToAndUnknownTarget(t *testing.T) {
	h, _, url := newTestHub(t)
	c, id := dialHub(t, url)

	h.SendTo("nobody", "offer", map[string]string{"sdp": "x"})
	h.SendTo(id, "offer", map[string]string{"sdp": "x"})

	event, data := readEnvelope(t, c)
	if event != "offer" || string(data) != `{"sdp":"x"}` {
		t.Fatalf("got %s %s", event, data)
	}
}

func TestHub_BroadcastFollowsRoomAssociation(t *testing.T) {
	h, _, url := newTestHub(t)
	a, aID := dialHub(t, url)
	b, bID := dialHub(t, url)

	h.JoinRoom(aID, "r1")
	h.JoinRoom(bID, "r1")
	h.LeaveRoom(bID, "r1")
	if got := h.RoomMembers("r1"); len(got) != 1 || got[0] != aID {
		t.Fatalf("members = %v, want [%s]", got, aID)
	}

	h.BroadcastRoom("r1", models.EventRoomClosed, nil)
	h.SendTo(bID, "marker", nil)

	if event, data := readEnvelope(t, a); event != models.EventRoomClosed || len(data) != 0 {
		t.Errorf("a got %s %s", event, data)
	}
	// b left the room, so the first thing it sees is the marker
	if event, _ := readEnvelope(t, b); event != "marker" {
		t.Errorf("b got %q, want marker", event)
	}
}

func TestHub_DisconnectOnceWithSession(t *testing.T) {
	h, d, url := newTestHub(t)
	c, id := dialHub(t, url)

	h.SetSession(id, models.Session{RoomID: "r1", Role: models.RoleStudent, Name: "Bob"})
	h.JoinRoom(id, "r1")
	if err := c.WriteJSON(models.Envelope{Event: "join-room", Data: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitUntil(t, "frame dispatched", func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.frames) == 1
	})

	_ = c.Close()
	waitUntil(t, "client unregistered", func() bool { return h.Len() == 0 })

	if n := d.disconnectCount(id); n != 1 {
		t.Fatalf("disconnects = %d, want 1", n)
	}
	d.mu.Lock()
	s := d.sessions[id]
	d.mu.Unlock()
	if s.RoomID != "r1" || s.Name != "Bob" {
		t.Errorf("session not readable during disconnect: %+v", s)
	}
	if _, ok := h.Session(id); ok {
		t.Error("session still reachable after disconnect")
	}
	if len(h.RoomMembers("r1")) != 0 {
		t.Error("room association survived disconnect")
	}
	// sends to a gone client are silently dropped
	h.SendTo(id, "offer", nil)
}

func TestNew_NormalizesOptions(t *testing.T) {
	h := New(Options{PongWait: 10 * time.Second, PingPeriod: 20 * time.Second})
	if h.opts.PingPeriod != 9*time.Second {
		t.Errorf("ping period = %v, want 9s", h.opts.PingPeriod)
	}
	if h.opts.SendBuffer != DefaultOptions().SendBuffer || h.opts.ReadLimit != DefaultOptions().ReadLimit {
		t.Errorf("defaults not applied: %+v", h.opts)
	}
}
