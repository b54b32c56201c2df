// Package bus provides optional cross-instance fan-out of relayed frames over
// Redis pub/sub, so clients of the same room may land on different relay
// instances behind a load balancer.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tandemcall/signal-relay/internal/metrics"
)

// Message is the wire shape published on the room channels. Origin identifies
// the publishing instance so subscribers can ignore their own traffic.
type Message struct {
	Origin string          `json:"origin"`
	RoomID string          `json:"roomId"`
	Data   json.RawMessage `json:"data"`
}

// RedisBus publishes relayed frames to signal:<roomID> channels and
// re-broadcasts frames published by sibling instances. Delivery is
// best-effort in both directions; a full queue or an unreachable broker
// drops frames rather than stalling the relay.
type RedisBus struct {
	rdb        *redis.Client
	log        *slog.Logger
	metrics    *metrics.Metrics
	instanceID string

	pubCh chan Message
}

// NewRedis connects to Redis and verifies connectivity.
func NewRedis(ctx context.Context, addr string, db int, log *slog.Logger, m *metrics.Metrics) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBus{
		rdb:        rdb,
		log:        log,
		metrics:    m,
		instanceID: uuid.NewString(),
		pubCh:      make(chan Message, 256),
	}, nil
}

// InstanceID returns this instance's origin tag.
func (b *RedisBus) InstanceID() string { return b.instanceID }

// Publish queues one frame for broadcast to sibling instances. It never
// blocks; frames are dropped when the publish queue is full.
func (b *RedisBus) Publish(roomID string, data []byte) {
	select {
	case b.pubCh <- Message{Origin: b.instanceID, RoomID: roomID, Data: data}:
	default:
		b.log.Debug("bus publish queue full, dropping frame", "room_id", roomID)
	}
}

// Run drives the publisher queue and the subscription until ctx is cancelled.
// handler is invoked for every frame that originated on another instance.
func (b *RedisBus) Run(ctx context.Context, handler func(roomID string, data []byte)) {
	pubsub := b.rdb.PSubscribe(ctx, channel("*"))
	defer pubsub.Close()
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case m := <-b.pubCh:
			raw, err := json.Marshal(m)
			if err != nil {
				continue
			}
			if err := b.rdb.Publish(ctx, channel(m.RoomID), raw).Err(); err != nil {
				b.log.Warn("bus publish failed", "room_id", m.RoomID, "err", err)
				continue
			}
			b.metrics.BusPublished()

		case msg, ok := <-ch:
			if !ok {
				return
			}
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil || m.RoomID == "" {
				continue
			}
			if m.Origin == b.instanceID {
				continue
			}
			b.metrics.BusReceived()
			handler(m.RoomID, m.Data)
		}
	}
}

// Close shuts down the Redis connection.
func (b *RedisBus) Close() {
	_ = b.rdb.Close()
}

func channel(roomID string) string { return "signal:" + roomID }
