// Package room tracks which member identities are present in which room.
//
// The directory is pure bookkeeping: it stores identities, not deliverable
// addresses. Fan-out to live connections is the signaling hub's concern.
package room

import "sync"

// Directory is the authoritative mapping from room ID to the ordered set of
// member identities currently present.
//
// Rooms are created lazily on first join and deleted the instant their member
// set becomes empty. All operations are total: joining an existing member or
// leaving an absent room/member is a no-op, never an error. This makes
// disconnect races (double-leave, leave after cleanup) harmless by
// construction.
type Directory struct {
	mu    sync.Mutex
	rooms map[string]*memberSet
}

// memberSet keeps both a set (for idempotent joins) and the join order, so the
// roster reported to clients is stable across broadcasts.
type memberSet struct {
	present map[string]struct{}
	order   []string
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]*memberSet)}
}

// Join inserts userID into roomID's member set, creating the room if absent,
// and returns the updated roster in join order. Re-joining with an identity
// already present is a no-op against the set.
func (d *Directory) Join(roomID, userID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ms := d.rooms[roomID]
	if ms == nil {
		ms = &memberSet{present: make(map[string]struct{})}
		d.rooms[roomID] = ms
	}
	if _, ok := ms.present[userID]; !ok {
		ms.present[userID] = struct{}{}
		ms.order = append(ms.order, userID)
	}
	return ms.roster()
}

// Leave removes userID from roomID's member set and returns the remaining
// roster. When the last member leaves, the room entry is deleted entirely and
// Leave returns nil. Leaving a room or identity that is not present is a no-op.
func (d *Directory) Leave(roomID, userID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ms := d.rooms[roomID]
	if ms == nil {
		return nil
	}
	if _, ok := ms.present[userID]; ok {
		delete(ms.present, userID)
		for i, id := range ms.order {
			if id == userID {
				ms.order = append(ms.order[:i], ms.order[i+1:]...)
				break
			}
		}
	}
	if len(ms.present) == 0 {
		delete(d.rooms, roomID)
		return nil
	}
	return ms.roster()
}

// Members returns the current roster of roomID in join order, or nil when the
// room does not exist.
func (d *Directory) Members(roomID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ms := d.rooms[roomID]
	if ms == nil {
		return nil
	}
	return ms.roster()
}

// Len returns the number of live rooms.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

func (ms *memberSet) roster() []string {
	out := make([]string, len(ms.order))
	copy(out, ms.order)
	return out
}
