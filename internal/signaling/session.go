package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tandemcall/signal-relay/internal/metrics"
	"github.com/tandemcall/signal-relay/internal/ratelimit"
)

const (
	wsWriteWait = 1 * time.Second

	// sendQueueLen bounds the per-connection outbound queue. A slow reader
	// drops frames rather than stalling the whole room.
	sendQueueLen = 64
)

// session is the per-connection state record: the transport handle, the
// connection ID assigned at accept time, and once joined the room and identity
// used to route every subsequent event. Room and identity are looked up here
// at dispatch time for each frame, so a rejoin can never stack duplicate
// handlers.
type session struct {
	srv  *Server
	conn *websocket.Conn
	log  *slog.Logger

	id string

	// Set by the join-room transition, read only on the reader goroutine.
	roomID string
	userID string

	out     chan []byte
	done    chan struct{}
	closeMu sync.Once

	limiter *ratelimit.Bucket
}

func newSession(srv *Server, conn *websocket.Conn, id string) *session {
	return &session{
		srv:  srv,
		conn: conn,
		log:  srv.log.With("conn_id", id),
		id:   id,
		out:  make(chan []byte, sendQueueLen),
		done: make(chan struct{}),
		limiter: ratelimit.NewBucket(ratelimit.RealClock{},
			int64(srv.maxMessagesPerSecond), int64(srv.maxMessagesPerSecond)),
	}
}

func (sess *session) joined() bool { return sess.roomID != "" }

// run owns the read side of the connection. It returns when the peer
// disconnects or the session is closed, after which the lifecycle cleanup in
// Server.disconnect has happened exactly once.
func (sess *session) run() {
	defer sess.srv.disconnect(sess)

	sess.conn.SetReadLimit(sess.srv.maxMessageBytes)
	_ = sess.conn.SetReadDeadline(time.Now().Add(sess.srv.idleTimeout))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(sess.srv.idleTimeout))
	})

	go sess.writeLoop()

	for {
		msgType, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = sess.conn.SetReadDeadline(time.Now().Add(sess.srv.idleTimeout))

		if !sess.limiter.Allow() {
			sess.srv.metrics.EventDropped(metrics.DropReasonRateLimited)
			sess.log.Warn("signaling rate limit exceeded")
			sess.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			sess.srv.metrics.EventDropped(metrics.DropReasonMalformed)
			continue
		}

		env, err := parseEnvelope(data)
		if err != nil {
			// Malformed frames are dropped without touching the connection or
			// any other member.
			sess.srv.metrics.EventDropped(metrics.DropReasonMalformed)
			sess.log.Debug("dropping malformed frame", "err", err)
			continue
		}

		sess.dispatch(env, data)
	}
}

// dispatch routes one validated inbound frame. data is the frame exactly as
// received; relayed events are fanned out verbatim.
func (sess *session) dispatch(env envelope, data []byte) {
	switch env.Type {
	case eventJoinRoom:
		sess.srv.join(sess, env.RoomID, env.UserID)
	case eventOffer, eventAnswer, eventICECandidate, eventTranscript:
		sess.srv.relay(sess, env, data)
	}
}

// queue enqueues an outbound frame without blocking. It reports whether the
// frame was accepted.
func (sess *session) queue(data []byte) bool {
	select {
	case <-sess.done:
		return false
	case sess.out <- data:
		return true
	default:
		sess.log.Debug("send queue full, dropping frame")
		return false
	}
}

func (sess *session) writeLoop() {
	ticker := time.NewTicker(sess.srv.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-sess.out:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				sess.close()
				return
			}
		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sess.close()
				return
			}
		case <-sess.done:
			return
		}
	}
}

func (sess *session) closeWith(code int, reason string) {
	_ = sess.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
	sess.close()
}

// close tears down the transport. Safe to call from any goroutine, any number
// of times; the read loop then exits and triggers lifecycle cleanup.
func (sess *session) close() {
	sess.closeMu.Do(func() {
		close(sess.done)
		_ = sess.conn.Close()
	})
}
