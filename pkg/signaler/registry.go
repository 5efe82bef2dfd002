package signaler

import (
	"sort"
	"sync"
	"time"

	"github.com/huddlelab/huddle/pkg/api"
)

// Registry is the authoritative map of room -> active participants.
//
// All membership mutations go through it and are serialized per room,
// so concurrent joins and leaves in different rooms never contend.
// It is self-healing: leaving an unknown room or an unknown connection
// is a no-op, not an error, since cleanup races with abrupt disconnects
// are expected.
type Registry struct {
	maxPeers int

	mu    sync.Mutex
	rooms map[string]*room
	index map[string]string // connection id -> room id
}

type room struct {
	id      string
	created time.Time

	mu      sync.Mutex
	gone    bool // set when the room was removed from the registry
	members map[string]time.Time
}

func NewRegistry(maxPeers int) *Registry {
	return &Registry{
		maxPeers: maxPeers,
		rooms:    make(map[string]*room, 10),
		index:    make(map[string]string, 10),
	}
}

// Join registers the connection in the room and returns the membership
// excluding the new arrival. Repeated joins with the same id are
// idempotent. A join into another room implicitly leaves the old one,
// a connection belongs to at most one room at a time.
func (r *Registry) Join(roomID string, id string) ([]string, error) {
	if prev := r.RoomOf(id); prev != "" && prev != roomID {
		r.Leave(prev, id)
	}
	for {
		rm := r.getOrCreate(roomID)
		rm.mu.Lock()
		if rm.gone {
			rm.mu.Unlock()
			continue
		}
		if _, ok := rm.members[id]; ok {
			peers := rm.othersLocked(id)
			rm.mu.Unlock()
			return peers, nil
		}
		if r.maxPeers > 0 && len(rm.members) >= r.maxPeers {
			rm.mu.Unlock()
			return nil, api.ErrRoomFull
		}
		rm.members[id] = time.Now()
		peers := rm.othersLocked(id)
		rm.mu.Unlock()

		r.mu.Lock()
		r.index[id] = roomID
		r.mu.Unlock()
		return peers, nil
	}
}

// Leave removes the connection from the room and returns the remaining
// membership. Tolerant of unknown rooms and already-absent connections.
// An emptied room is dropped from the registry.
func (r *Registry) Leave(roomID string, id string) []string {
	r.mu.Lock()
	rm := r.rooms[roomID]
	if r.index[id] == roomID {
		delete(r.index, id)
	}
	r.mu.Unlock()
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.members, id)
	rest := rm.othersLocked(id)
	if len(rm.members) == 0 && !rm.gone {
		rm.gone = true
		r.mu.Lock()
		delete(r.rooms, roomID)
		r.mu.Unlock()
	}
	return rest
}

// MembersOf returns a point-in-time snapshot of the room membership.
// An unknown room reads as empty.
func (r *Registry) MembersOf(roomID string) []string {
	r.mu.Lock()
	rm := r.rooms[roomID]
	r.mu.Unlock()
	if rm == nil {
		return []string{}
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.othersLocked("")
}

// RoomOf returns the room the connection currently belongs to, if any.
func (r *Registry) RoomOf(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index[id]
}

// IsMember reports whether the connection is a live member of the room.
func (r *Registry) IsMember(roomID string, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index[id] == roomID && roomID != ""
}

// Rooms returns a snapshot of room sizes keyed by room id.
func (r *Registry) Rooms() map[string]int {
	r.mu.Lock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.Unlock()

	sizes := make(map[string]int, len(rooms))
	for _, rm := range rooms {
		rm.mu.Lock()
		if !rm.gone {
			sizes[rm.id] = len(rm.members)
		}
		rm.mu.Unlock()
	}
	return sizes
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) getOrCreate(roomID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[roomID]
	if rm == nil {
		rm = &room{id: roomID, created: time.Now(), members: make(map[string]time.Time, 2)}
		r.rooms[roomID] = rm
	}
	return rm
}

func (rm *room) othersLocked(exclude string) []string {
	others := make([]string, 0, len(rm.members))
	for id := range rm.members {
		if id != exclude {
			others = append(others, id)
		}
	}
	sort.Strings(others)
	return others
}
