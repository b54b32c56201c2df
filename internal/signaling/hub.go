package signaling

import "sync"

// hub is the transport-side room grouping: it maps room IDs to the live
// sessions subscribed to them and provides the two broadcast primitives the
// relay needs ("everyone in the room" and "everyone except the sender").
//
// The hub tracks sessions, while room.Directory tracks identities; the two are
// deliberately separate so multiple connections may present the same identity
// without the transport caring.
type hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*session]struct{}
}

func newHub() *hub {
	return &hub{rooms: make(map[string]map[*session]struct{})}
}

func (h *hub) join(roomID string, sess *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.rooms[roomID]
	if set == nil {
		set = make(map[*session]struct{})
		h.rooms[roomID] = set
	}
	set[sess] = struct{}{}
}

func (h *hub) leave(roomID string, sess *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.rooms[roomID]
	if set == nil {
		return
	}
	delete(set, sess)
	if len(set) == 0 {
		delete(h.rooms, roomID)
	}
}

// broadcast queues data on every session in roomID, excluding except when
// non-nil. Sends never block: a receiver whose write queue is full simply
// misses the frame, consistent with the relay's best-effort delivery.
//
// Broadcasts for a given sender happen on that sender's read goroutine, so
// receivers observe a single sender's events in the order the relay read them.
func (h *hub) broadcast(roomID string, except *session, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sess := range h.rooms[roomID] {
		if sess == except {
			continue
		}
		if sess.queue(data) {
			delivered++
		}
	}
	return delivered
}
