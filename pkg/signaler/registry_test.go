package signaler

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/huddlelab/huddle/pkg/api"
)

func TestJoinLeaveRoundTrip(t *testing.T) {
	r := NewRegistry(0)
	if _, err := r.Join("r1", "a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	before := r.MembersOf("r1")

	if _, err := r.Join("r1", "b"); err != nil {
		t.Fatalf("join: %v", err)
	}
	r.Leave("r1", "b")

	after := r.MembersOf("r1")
	if !reflect.DeepEqual(before, after) {
		t.Errorf("membership changed after join+leave: %v != %v", before, after)
	}
}

func TestLeaveAbsentIsNoop(t *testing.T) {
	r := NewRegistry(0)
	if rest := r.Leave("nope", "ghost"); len(rest) != 0 {
		t.Errorf("leave of unknown room returned members: %v", rest)
	}
	r.Join("r1", "a")
	r.Leave("r1", "ghost")
	if got := r.MembersOf("r1"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("leave of absent connection mutated the room: %v", got)
	}
}

func TestJoinIdempotent(t *testing.T) {
	r := NewRegistry(0)
	r.Join("r1", "a")
	peers, err := r.Join("r1", "a")
	if err != nil {
		t.Fatalf("repeated join: %v", err)
	}
	if len(peers) != 0 {
		t.Errorf("repeated join sees itself as a peer: %v", peers)
	}
	if got := r.MembersOf("r1"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("duplicate registration: %v", got)
	}
}

func TestJoinReturnsOthersOnly(t *testing.T) {
	r := NewRegistry(0)
	r.Join("r1", "a")
	peers, _ := r.Join("r1", "b")
	if !reflect.DeepEqual(peers, []string{"a"}) {
		t.Errorf("expected existing peers [a], got %v", peers)
	}
}

func TestRoomCapacity(t *testing.T) {
	r := NewRegistry(2)
	r.Join("r1", "a")
	r.Join("r1", "b")
	if _, err := r.Join("r1", "c"); err != api.ErrRoomFull {
		t.Errorf("expected ErrRoomFull, got %v", err)
	}
	// idempotent re-join of a member is not a capacity violation
	if _, err := r.Join("r1", "a"); err != nil {
		t.Errorf("re-join of a member refused: %v", err)
	}
	r.Leave("r1", "a")
	if _, err := r.Join("r1", "c"); err != nil {
		t.Errorf("join after a slot freed up refused: %v", err)
	}
}

func TestSingleRoomPerConnection(t *testing.T) {
	r := NewRegistry(0)
	r.Join("r1", "a")
	r.Join("r2", "a")
	if r.IsMember("r1", "a") {
		t.Error("connection still a member of the old room")
	}
	if !r.IsMember("r2", "a") {
		t.Error("connection not a member of the new room")
	}
}

func TestStaleLeaveKeepsCurrentRoom(t *testing.T) {
	r := NewRegistry(0)
	r.Join("r1", "a")
	r.Join("r2", "a")
	// a late leave for the old room must not unregister the new one
	r.Leave("r1", "a")
	if !r.IsMember("r2", "a") {
		t.Error("stale leave dropped the current membership")
	}
	if got := r.RoomOf("a"); got != "r2" {
		t.Errorf("room of a: %q", got)
	}
}

func TestEmptyRoomIsDropped(t *testing.T) {
	r := NewRegistry(0)
	r.Join("r1", "a")
	r.Join("r2", "b")
	if got := r.Rooms(); !reflect.DeepEqual(got, map[string]int{"r1": 1, "r2": 1}) {
		t.Errorf("rooms snapshot: %v", got)
	}
	r.Leave("r2", "b")
	r.Leave("r1", "a")
	if n := r.RoomCount(); n != 0 {
		t.Errorf("empty room kept: %d rooms", n)
	}
	// the room id is reusable afterwards
	if _, err := r.Join("r1", "b"); err != nil {
		t.Fatalf("rejoin of a dropped room: %v", err)
	}
	if got := r.MembersOf("r1"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("stale members resurfaced: %v", got)
	}
}

func TestConcurrentRooms(t *testing.T) {
	r := NewRegistry(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room := fmt.Sprintf("r%d", i%4)
			for j := 0; j < 100; j++ {
				id := fmt.Sprintf("c%d-%d", i, j)
				if _, err := r.Join(room, id); err != nil {
					t.Errorf("join: %v", err)
					return
				}
				r.Leave(room, id)
			}
		}(i)
	}
	wg.Wait()
	if n := r.RoomCount(); n != 0 {
		t.Errorf("rooms left behind: %d", n)
	}
}
