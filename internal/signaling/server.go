package signaling

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tandemcall/signal-relay/internal/metrics"
	"github.com/tandemcall/signal-relay/internal/room"
)

// Bus fans relayed frames out to sibling relay instances. Publish must not
// block on broker availability; delivery is best-effort like everything else
// in this relay.
type Bus interface {
	Publish(roomID string, data []byte)
}

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	Directory *room.Directory
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// Bus is optional; nil disables cross-instance fan-out.
	Bus Bus

	// AllowedOrigins restricts WS upgrades by browser origin. Empty accepts
	// any origin.
	AllowedOrigins []string

	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	IdleTimeout          time.Duration
	PingInterval         time.Duration

	// MaxRoomMembers caps room size; 0 means unlimited.
	MaxRoomMembers int
}

// Server implements the relay's WebSocket signaling surface.
//
// Endpoints:
//   - GET /ws : the signaling channel; clients join a room and exchange
//     offer/answer/ice-candidate/transcript events with its other members.
type Server struct {
	directory *room.Directory
	metrics   *metrics.Metrics
	log       *slog.Logger
	bus       Bus
	hub       *hub

	allowedOrigins []string
	upgrader       websocket.Upgrader

	maxMessageBytes      int64
	maxMessagesPerSecond int
	idleTimeout          time.Duration
	pingInterval         time.Duration
	maxRoomMembers       int

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool

	// roomMu serializes membership mutation with the roster and notice
	// broadcasts it triggers. Without it two concurrent joins could deliver
	// their rosters in the wrong order and leave members holding a stale
	// roster with no later frame to correct it. The critical section is
	// short; hub sends never block.
	roomMu sync.Mutex
}

func NewServer(cfg Config) *Server {
	s := &Server{
		directory: cfg.Directory,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		bus:       cfg.Bus,
		hub:       newHub(),

		allowedOrigins: cfg.AllowedOrigins,

		maxMessageBytes:      cfg.MaxMessageBytes,
		maxMessagesPerSecond: cfg.MaxMessagesPerSecond,
		idleTimeout:          cfg.IdleTimeout,
		pingInterval:         cfg.PingInterval,
		maxRoomMembers:       cfg.MaxRoomMembers,

		sessions: make(map[*session]struct{}),
	}

	if s.directory == nil {
		s.directory = room.NewDirectory()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.maxMessageBytes <= 0 {
		s.maxMessageBytes = 64 * 1024
	}
	if s.maxMessagesPerSecond <= 0 {
		s.maxMessagesPerSecond = 50
	}
	if s.idleTimeout <= 0 {
		s.idleTimeout = 60 * time.Second
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 20 * time.Second
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// checkOrigin accepts any origin unless an allowlist is configured. The relay
// is an open rendezvous point; access control is out of scope.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sess := newSession(s, conn, uuid.NewString())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sess.closeWith(websocket.CloseGoingAway, "server shutting down")
		return
	}
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	s.metrics.ConnOpened()
	sess.log.Debug("connection accepted", "remote_addr", r.RemoteAddr)

	sess.run()
}

// join handles the join-room transition: register the session under the
// transport room grouping, record the identity in the directory, then send
// the full roster to the whole room and an incremental user-connected notice
// to everyone else. The newcomer learns the roster; existing members only get
// the delta.
func (s *Server) join(sess *session, roomID, userID string) {
	if sess.joined() {
		// One room per connection; later joins are dropped rather than
		// silently migrating the connection.
		s.metrics.EventDropped(metrics.DropReasonAlreadyJoined)
		sess.log.Debug("join-room on already-joined connection dropped",
			"room_id", sess.roomID)
		return
	}

	s.roomMu.Lock()
	defer s.roomMu.Unlock()

	if s.maxRoomMembers > 0 {
		members := s.directory.Members(roomID)
		already := false
		for _, id := range members {
			if id == userID {
				already = true
				break
			}
		}
		if !already && len(members) >= s.maxRoomMembers {
			s.metrics.EventDropped(metrics.DropReasonRoomFull)
			sess.queue(errorFrame("room_full", "room is full"))
			return
		}
	}

	sess.roomID = roomID
	sess.userID = userID

	s.hub.join(roomID, sess)
	roster := s.directory.Join(roomID, userID)
	s.metrics.SetRooms(s.directory.Len())

	sess.log.Info("user joined room", "room_id", roomID, "user_id", userID,
		"members", len(roster))

	s.hub.broadcast(roomID, nil, rosterFrame(roomID, roster))
	notice := userConnectedFrame(userID)
	s.hub.broadcast(roomID, sess, notice)
	s.publish(roomID, notice)
}

// relay fans one validated offer/answer/ice-candidate/transcript frame out to
// the other members of the sender's room, byte-for-byte as received.
func (s *Server) relay(sess *session, env envelope, data []byte) {
	if !sess.joined() || env.RoomID != sess.roomID {
		// Not joined, or tagged with a stale room ID: no recipients, not an
		// error.
		s.metrics.EventDropped(metrics.DropReasonNotJoined)
		return
	}

	s.hub.broadcast(env.RoomID, sess, data)
	s.metrics.EventRelayed(string(env.Type))
	s.publish(env.RoomID, data)
}

// disconnect runs the lifecycle cleanup for a finished session. It is
// idempotent against races: the directory treats a double leave as a no-op,
// and a room already emptied produces no further notifications.
func (s *Server) disconnect(sess *session) {
	sess.close()

	s.mu.Lock()
	_, tracked := s.sessions[sess]
	delete(s.sessions, sess)
	s.mu.Unlock()
	if !tracked {
		return
	}

	s.metrics.ConnClosed()

	if !sess.joined() {
		// Disconnect before join touches neither the directory nor any room.
		sess.log.Debug("connection closed before joining a room")
		return
	}

	s.roomMu.Lock()
	defer s.roomMu.Unlock()

	s.hub.leave(sess.roomID, sess)
	roster := s.directory.Leave(sess.roomID, sess.userID)
	s.metrics.SetRooms(s.directory.Len())

	sess.log.Info("user left room", "room_id", sess.roomID, "user_id", sess.userID,
		"members", len(roster))

	if roster == nil {
		// Room is gone; nobody is left to notify.
		return
	}

	notice := userDisconnectedFrame(sess.userID)
	s.hub.broadcast(sess.roomID, nil, notice)
	s.hub.broadcast(sess.roomID, nil, rosterFrame(sess.roomID, roster))
	s.publish(sess.roomID, notice)
}

// HandleRemoteFrame delivers a frame relayed by a sibling instance to the
// local members of roomID. The bus has already filtered out frames this
// instance published itself.
func (s *Server) HandleRemoteFrame(roomID string, data []byte) {
	s.hub.broadcast(roomID, nil, data)
}

func (s *Server) publish(roomID string, data []byte) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(roomID, data)
}

// Close tears down all live sessions. New upgrades are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}
