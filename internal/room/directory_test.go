package room

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func TestDirectory_JoinCreatesRoomLazily(t *testing.T) {
	d := NewDirectory()

	if got := d.Members("abc"); got != nil {
		t.Fatalf("expected no roster for absent room, got %v", got)
	}

	roster := d.Join("abc", "alice")
	if !reflect.DeepEqual(roster, []string{"alice"}) {
		t.Fatalf("unexpected roster after first join: %v", roster)
	}
	if d.Len() != 1 {
		t.Fatalf("expected 1 room, got %d", d.Len())
	}
}

func TestDirectory_JoinIsIdempotentPerIdentity(t *testing.T) {
	d := NewDirectory()

	d.Join("abc", "alice")
	d.Join("abc", "bob")
	roster := d.Join("abc", "alice")

	if !reflect.DeepEqual(roster, []string{"alice", "bob"}) {
		t.Fatalf("re-join duplicated identity or broke order: %v", roster)
	}
}

func TestDirectory_RosterPreservesJoinOrder(t *testing.T) {
	d := NewDirectory()

	d.Join("abc", "carol")
	d.Join("abc", "alice")
	d.Join("abc", "bob")

	if got := d.Members("abc"); !reflect.DeepEqual(got, []string{"carol", "alice", "bob"}) {
		t.Fatalf("unexpected roster order: %v", got)
	}

	d.Leave("abc", "alice")
	if got := d.Members("abc"); !reflect.DeepEqual(got, []string{"carol", "bob"}) {
		t.Fatalf("unexpected roster after leave: %v", got)
	}
}

func TestDirectory_LastLeaveDeletesRoom(t *testing.T) {
	d := NewDirectory()

	d.Join("abc", "alice")
	if got := d.Leave("abc", "alice"); got != nil {
		t.Fatalf("expected nil roster after room emptied, got %v", got)
	}
	if d.Len() != 0 {
		t.Fatalf("expected empty directory, got %d rooms", d.Len())
	}

	// A later join must behave as a fresh room.
	if roster := d.Join("abc", "bob"); !reflect.DeepEqual(roster, []string{"bob"}) {
		t.Fatalf("expected fresh room after GC, got %v", roster)
	}
}

func TestDirectory_LeaveAbsentRoomOrMemberIsNoOp(t *testing.T) {
	d := NewDirectory()

	if got := d.Leave("missing", "alice"); got != nil {
		t.Fatalf("leave on absent room returned %v", got)
	}

	d.Join("abc", "alice")
	if got := d.Leave("abc", "stranger"); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Fatalf("leave of absent member mutated roster: %v", got)
	}
}

// A room ID is present iff its member set is non-empty, for any interleaving
// of joins and leaves.
func TestDirectory_PresenceInvariant(t *testing.T) {
	d := NewDirectory()

	ops := []struct {
		join   bool
		room   string
		user   string
		expect int // expected room count after the op
	}{
		{true, "r1", "a", 1},
		{true, "r1", "b", 1},
		{true, "r2", "a", 2},
		{false, "r1", "a", 2},
		{false, "r2", "a", 1},
		{false, "r1", "b", 0},
		{false, "r1", "b", 0},
	}
	for i, op := range ops {
		if op.join {
			d.Join(op.room, op.user)
		} else {
			d.Leave(op.room, op.user)
		}
		if d.Len() != op.expect {
			t.Fatalf("op %d: expected %d rooms, got %d", i, op.expect, d.Len())
		}
	}
}

func TestDirectory_ConcurrentJoinsConverge(t *testing.T) {
	d := NewDirectory()
	const n = 32

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.Join("abc", fmt.Sprintf("user-%02d", i))
		}(i)
	}
	wg.Wait()

	roster := d.Members("abc")
	if len(roster) != n {
		t.Fatalf("expected %d members, got %d", n, len(roster))
	}
	seen := make(map[string]struct{}, len(roster))
	for _, id := range roster {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate identity %q in roster", id)
		}
		seen[id] = struct{}{}
	}
}
