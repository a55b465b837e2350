package control

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rayz-device/config"
	"rayz-device/game"
)

// ErrTableFull marks a connection table at capacity; excess connections are
// rejected, never queued.
var ErrTableFull = errors.New("control: connection table full")

// Bootstrap is the network-bootstrap collaborator. Connections are only
// accepted once it signals readiness.
type Bootstrap interface {
	Ready() bool
	Address() string
}

// slot is one entry of the fixed-capacity connection table. Slots are
// reused, never grown.
type slot struct {
	handle         string
	client         *wsClient
	active         bool
	lastActivityMs uint32
}

// Server is the control-plane endpoint for companion UI clients.
type Server struct {
	state    *game.State
	boot     Bootstrap
	now      func() uint32
	upgrader websocket.Upgrader

	mu    sync.Mutex
	slots [config.MAX_WS_CLIENTS]slot
}

// NewServer wires the control plane to the game state. now supplies
// milliseconds since boot.
func NewServer(state *game.State, boot Bootstrap, now func() uint32) *Server {
	return &Server{
		state: state,
		boot:  boot,
		now:   now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades an HTTP request into a tracked UI connection.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	if s.boot != nil && !s.boot.Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("control: upgrade failed: %v", err)
		return
	}

	// Reclaim capacity from clients that vanished without a clean close.
	s.CleanupStale(s.now())

	handle := uuid.NewString()
	client := newWSClient(conn, handle)
	if err := s.AddConnection(handle, client); err != nil {
		log.Printf("control: rejecting %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(s)

	// Greet the new client with a full status frame.
	s.Send(handle, BuildStatus(s.state.Snapshot(), s.now(), false))
}

// AddConnection occupies the first free slot. Any existing slot already
// holding this handle is evicted first, defending against duplicate
// handshake delivery. A full table rejects the connection.
func (s *Server) AddConnection(handle string, client *wsClient) error {
	s.mu.Lock()
	var evicted *wsClient
	for i := range s.slots {
		if s.slots[i].active && s.slots[i].handle == handle {
			evicted = s.slots[i].client
			s.slots[i] = slot{}
		}
	}
	free := -1
	for i := range s.slots {
		if !s.slots[i].active {
			free = i
			break
		}
	}
	if free < 0 {
		s.mu.Unlock()
		return ErrTableFull
	}
	s.slots[free] = slot{
		handle:         handle,
		client:         client,
		active:         true,
		lastActivityMs: s.now(),
	}
	count := s.countLocked()
	s.mu.Unlock()

	if evicted != nil && evicted.conn != nil {
		log.Printf("control: evicted duplicate handle %s", handle)
		evicted.conn.Close()
	}
	log.Printf("control: client %s added to slot %d (total=%d)", handle, free, count)
	s.state.SetConnected(true)
	return nil
}

// RemoveConnection marks the slot inactive. The transport teardown and the
// connectivity notification fire after the lock is released.
func (s *Server) RemoveConnection(handle string) {
	s.mu.Lock()
	var removed *wsClient
	for i := range s.slots {
		if s.slots[i].active && s.slots[i].handle == handle {
			removed = s.slots[i].client
			s.slots[i] = slot{}
			break
		}
	}
	count := s.countLocked()
	s.mu.Unlock()

	if removed == nil {
		return
	}
	if removed.conn != nil {
		removed.conn.Close()
	}
	log.Printf("control: client %s removed (total=%d)", handle, count)
	if count == 0 {
		s.state.SetConnected(false)
	}
}

// CleanupStale evicts slots whose transport reports dead and slots idle
// beyond the activity timeout.
func (s *Server) CleanupStale(nowMs uint32) {
	var stale []string
	s.mu.Lock()
	for i := range s.slots {
		if !s.slots[i].active {
			continue
		}
		if s.slots[i].client != nil && s.slots[i].client.dead.Load() {
			stale = append(stale, s.slots[i].handle)
			continue
		}
		idle := nowMs - s.slots[i].lastActivityMs
		if idle > uint32(config.STALE_TIMEOUT.Milliseconds()) {
			log.Printf("control: client %s timed out (idle=%dms)", s.slots[i].handle, idle)
			stale = append(stale, s.slots[i].handle)
		}
	}
	s.mu.Unlock()

	for _, handle := range stale {
		s.RemoveConnection(handle)
	}
}

// Count reports the number of active connections.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked()
}

func (s *Server) countLocked() int {
	n := 0
	for i := range s.slots {
		if s.slots[i].active {
			n++
		}
	}
	return n
}

// IsConnected reports whether any UI client is attached.
func (s *Server) IsConnected() bool {
	return s.Count() > 0
}

func (s *Server) touchActivity(handle string) {
	now := s.now()
	s.mu.Lock()
	for i := range s.slots {
		if s.slots[i].active && s.slots[i].handle == handle {
			s.slots[i].lastActivityMs = now
			break
		}
	}
	s.mu.Unlock()
}

// Send queues a payload for asynchronous transmission to one client and
// returns immediately. A full queue is reported, never retried.
func (s *Server) Send(handle string, payload []byte) bool {
	s.mu.Lock()
	var target *wsClient
	for i := range s.slots {
		if s.slots[i].active && s.slots[i].handle == handle {
			target = s.slots[i].client
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return false
	}
	select {
	case target.send <- payload:
		return true
	default:
		log.Printf("control: client %s send buffer full, dropping frame", handle)
		return false
	}
}

// Broadcast snapshots the active clients under the lock, releases it, then
// sends to each individually.
func (s *Server) Broadcast(payload []byte) {
	s.mu.Lock()
	targets := make([]*wsClient, 0, config.MAX_WS_CLIENTS)
	for i := range s.slots {
		if s.slots[i].active {
			targets = append(targets, s.slots[i].client)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		select {
		case c.send <- payload:
		default:
			log.Printf("control: client %s send buffer full during broadcast", c.handle)
		}
	}
}

// BroadcastStatus pushes a fresh status snapshot to every client.
func (s *Server) BroadcastStatus(clamped bool) {
	s.Broadcast(BuildStatus(s.state.Snapshot(), s.now(), clamped))
}

// Run sweeps stale connections on a timer until the context is cancelled.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(config.CLEANUP_INTERVAL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.CleanupStale(s.now())
		case <-ctx.Done():
			return
		}
	}
}
