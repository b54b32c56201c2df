package bus

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func newQueueOnlyBus(queueLen int) *RedisBus {
	return &RedisBus{
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		instanceID: "instance-a",
		pubCh:      make(chan Message, queueLen),
	}
}

func TestPublish_TagsFramesWithOrigin(t *testing.T) {
	b := newQueueOnlyBus(4)
	b.Publish("abc", []byte(`{"type":"offer"}`))

	m := <-b.pubCh
	if m.Origin != "instance-a" || m.RoomID != "abc" {
		t.Fatalf("unexpected message: %+v", m)
	}
	if string(m.Data) != `{"type":"offer"}` {
		t.Fatalf("frame altered: %s", m.Data)
	}
}

func TestPublish_DropsWhenQueueFull(t *testing.T) {
	b := newQueueOnlyBus(1)
	b.Publish("abc", []byte("first"))
	// Queue is full; this must return immediately instead of blocking.
	b.Publish("abc", []byte("second"))

	if got := len(b.pubCh); got != 1 {
		t.Fatalf("queued = %d, want 1", got)
	}
	if m := <-b.pubCh; string(m.Data) != "first" {
		t.Fatalf("kept frame = %s, want first", m.Data)
	}
}

func TestMessage_WireShape(t *testing.T) {
	raw, err := json.Marshal(Message{Origin: "x", RoomID: "abc", Data: json.RawMessage(`{"a":1}`)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"origin":"x","roomId":"abc","data":{"a":1}}`
	if string(raw) != want {
		t.Fatalf("wire shape = %s, want %s", raw, want)
	}

	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(m.Data) != `{"a":1}` {
		t.Fatalf("payload not preserved verbatim: %s", m.Data)
	}
}

func TestChannelNaming(t *testing.T) {
	if got := channel("abc"); got != "signal:abc" {
		t.Fatalf("channel = %q", got)
	}
	if got := channel("*"); got != "signal:*" {
		t.Fatalf("pattern = %q", got)
	}
}
