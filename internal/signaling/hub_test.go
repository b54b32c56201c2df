package signaling

import (
	"log/slog"
	"testing"
)

func newQueueOnlySession(queueLen int) *session {
	return &session{
		log:  slog.Default(),
		out:  make(chan []byte, queueLen),
		done: make(chan struct{}),
	}
}

func TestHub_BroadcastExcludesSender(t *testing.T) {
	h := newHub()
	sender := newQueueOnlySession(4)
	peer1 := newQueueOnlySession(4)
	peer2 := newQueueOnlySession(4)
	h.join("abc", sender)
	h.join("abc", peer1)
	h.join("abc", peer2)

	if got := h.broadcast("abc", sender, []byte("x")); got != 2 {
		t.Fatalf("delivered = %d, want 2", got)
	}
	if len(sender.out) != 0 {
		t.Fatalf("sender received its own frame")
	}
	if len(peer1.out) != 1 || len(peer2.out) != 1 {
		t.Fatalf("peers did not receive the frame")
	}

	if got := h.broadcast("abc", nil, []byte("y")); got != 3 {
		t.Fatalf("inclusive broadcast delivered %d, want 3", got)
	}
}

func TestHub_BroadcastToUnknownRoomIsNoOp(t *testing.T) {
	h := newHub()
	if got := h.broadcast("nowhere", nil, []byte("x")); got != 0 {
		t.Fatalf("delivered = %d, want 0", got)
	}
}

func TestHub_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	h := newHub()
	slow := newQueueOnlySession(1)
	h.join("abc", slow)

	if got := h.broadcast("abc", nil, []byte("first")); got != 1 {
		t.Fatalf("first frame not delivered")
	}
	// Queue is now full; this must return immediately with zero deliveries.
	if got := h.broadcast("abc", nil, []byte("second")); got != 0 {
		t.Fatalf("delivered = %d, want 0 on full queue", got)
	}
}

func TestHub_LeaveForgetsEmptyRooms(t *testing.T) {
	h := newHub()
	sess := newQueueOnlySession(1)
	h.join("abc", sess)
	h.leave("abc", sess)

	if _, ok := h.rooms["abc"]; ok {
		t.Fatalf("room entry survived its last session")
	}
	// Leaving again, or leaving an unknown room, must not panic.
	h.leave("abc", sess)
	h.leave("nowhere", sess)
}
