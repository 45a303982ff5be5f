package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const roomsKey = "signaling:rooms"

func teacherKey(roomID string) string  { return "room:" + roomID + ":teacher" }
func studentsKey(roomID string) string { return "room:" + roomID + ":students" }

type opKind int

const (
	opTeacherJoined opKind = iota
	opStudentJoined
	opStudentLeft
	opRoomClosed
)

type op struct {
	kind   opKind
	roomID string
	id     string
}

// Presence mirrors room membership into Redis for outside observers. Updates
// are queued and applied by Run so callers never wait on the network.
// Nothing is read back; keys expire after the configured TTL.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
	ops    chan op
}

func NewPresence(client *redis.Client, ttl time.Duration, buffer int) *Presence {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Presence{
		client: client,
		ttl:    ttl,
		ops:    make(chan op, buffer),
	}
}

func (p *Presence) TeacherJoined(roomID, id string) {
	p.enqueue(op{kind: opTeacherJoined, roomID: roomID, id: id})
}

func (p *Presence) StudentJoined(roomID, id string) {
	p.enqueue(op{kind: opStudentJoined, roomID: roomID, id: id})
}

func (p *Presence) StudentLeft(roomID, id string) {
	p.enqueue(op{kind: opStudentLeft, roomID: roomID, id: id})
}

func (p *Presence) RoomClosed(roomID string) {
	p.enqueue(op{kind: opRoomClosed, roomID: roomID})
}

func (p *Presence) enqueue(o op) {
	select {
	case p.ops <- o:
	default:
		log.Warn().Str("module", "redis").Str("room", o.roomID).Msg("presence queue full, dropping update")
	}
}

// Run applies queued updates until ctx is done.
func (p *Presence) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-p.ops:
			if err := p.apply(ctx, o); err != nil {
				log.Error().Err(err).Str("module", "redis").Str("room", o.roomID).Msg("presence update failed")
			}
		}
	}
}

func (p *Presence) apply(ctx context.Context, o op) error {
	pipe := p.client.TxPipeline()
	switch o.kind {
	case opTeacherJoined:
		p.addRoom(ctx, pipe, o.roomID)
		pipe.Set(ctx, teacherKey(o.roomID), o.id, p.ttl)
	case opStudentJoined:
		p.addRoom(ctx, pipe, o.roomID)
		pipe.SAdd(ctx, studentsKey(o.roomID), o.id)
		if p.ttl > 0 {
			pipe.Expire(ctx, studentsKey(o.roomID), p.ttl)
		}
	case opStudentLeft:
		pipe.SRem(ctx, studentsKey(o.roomID), o.id)
	case opRoomClosed:
		pipe.SRem(ctx, roomsKey, o.roomID)
		pipe.Del(ctx, teacherKey(o.roomID), studentsKey(o.roomID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("apply presence update: %w", err)
	}
	return nil
}

// addRoom lists roomID in the rooms index and refreshes the index TTL so
// rooms left open by a crashed process eventually disappear.
func (p *Presence) addRoom(ctx context.Context, pipe redis.Pipeliner, roomID string) {
	pipe.SAdd(ctx, roomsKey, roomID)
	if p.ttl > 0 {
		pipe.Expire(ctx, roomsKey, p.ttl)
	}
}

// Students returns the mirrored student ids for roomID.
func (p *Presence) Students(ctx context.Context, roomID string) ([]string, error) {
	return p.client.SMembers(ctx, studentsKey(roomID)).Result()
}

// Teacher returns the mirrored teacher id for roomID, or "" if none.
func (p *Presence) Teacher(ctx context.Context, roomID string) (string, error) {
	id, err := p.client.Get(ctx, teacherKey(roomID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return id, err
}
