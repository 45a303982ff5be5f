// Package rooms holds the in-memory room registry. It performs no locking;
// the signaling coordinator serializes every access.
package rooms

import (
	"errors"
	"sort"

	"github.com/mossy-p/classroom-signaling/internal/models"
)

// ErrTeacherPresent is returned when a room already has a teacher.
var ErrTeacherPresent = errors.New("teacher already present")

// Room is the membership of one named room.
type Room struct {
	ID        string
	TeacherID string
	students  map[string]struct{}
}

func newRoom(id string) *Room {
	return &Room{
		ID:       id,
		students: make(map[string]struct{}),
	}
}

func (r *Room) HasTeacher() bool {
	return r.TeacherID != ""
}

// SetTeacher records id as the room's teacher. The existing teacher is never
// replaced.
func (r *Room) SetTeacher(id string) error {
	if r.HasTeacher() {
		return ErrTeacherPresent
	}
	r.TeacherID = id
	delete(r.students, id)
	return nil
}

// AddStudent adds id to the student set. It reports false when id is the
// room's teacher.
func (r *Room) AddStudent(id string) bool {
	if id == r.TeacherID {
		return false
	}
	r.students[id] = struct{}{}
	return true
}

// RemoveStudent reports whether id was a student of the room.
func (r *Room) RemoveStudent(id string) bool {
	if _, ok := r.students[id]; !ok {
		return false
	}
	delete(r.students, id)
	return true
}

func (r *Room) HasStudent(id string) bool {
	_, ok := r.students[id]
	return ok
}

// StudentIDs returns the students in a stable order.
func (r *Room) StudentIDs() []string {
	ids := make([]string, 0, len(r.students))
	for id := range r.students {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Room) Snapshot() models.RoomSnapshot {
	students := r.StudentIDs()
	return models.RoomSnapshot{
		ID:           r.ID,
		TeacherID:    r.TeacherID,
		Students:     students,
		StudentCount: len(students),
	}
}

// Registry maps room ids to rooms.
type Registry struct {
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// GetOrCreate returns the room for id, inserting an empty one if needed.
// The bool is true when the room was created by this call.
func (reg *Registry) GetOrCreate(id string) (*Room, bool) {
	if room, ok := reg.rooms[id]; ok {
		return room, false
	}
	room := newRoom(id)
	reg.rooms[id] = room
	return room, true
}

func (reg *Registry) Get(id string) (*Room, bool) {
	room, ok := reg.rooms[id]
	return room, ok
}

// Remove deletes the room. Removing an unknown id is a no-op.
func (reg *Registry) Remove(id string) {
	delete(reg.rooms, id)
}

func (reg *Registry) Len() int {
	return len(reg.rooms)
}

// Snapshots returns every room ordered by id.
func (reg *Registry) Snapshots() []models.RoomSnapshot {
	out := make([]models.RoomSnapshot, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		out = append(out, room.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
