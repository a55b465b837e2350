package control

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rayz-device/config"
	"rayz-device/game"
)

type readyBoot struct{ ready bool }

func (b readyBoot) Ready() bool     { return b.ready }
func (b readyBoot) Address() string { return "192.168.4.1" }

// testClock is a manually advanced millisecond clock shared with the server.
type testClock struct{ ms atomic.Uint32 }

func (c *testClock) now() uint32      { return c.ms.Load() }
func (c *testClock) advance(d uint32) { c.ms.Add(d) }

func newTestServer() (*Server, *testClock) {
	clk := &testClock{}
	state := game.NewState(game.RoleTarget, nil)
	return NewServer(state, readyBoot{ready: true}, clk.now), clk
}

// tableClient makes a connectionless client for table-level tests.
func tableClient(handle string) *wsClient {
	return &wsClient{
		send:   make(chan []byte, config.CLIENT_SEND_BUFFER),
		handle: handle,
		done:   make(chan struct{}),
	}
}

func TestTableCapacity(t *testing.T) {
	s, _ := newTestServer()

	for i := 0; i < config.MAX_WS_CLIENTS; i++ {
		handle := fmt.Sprintf("client-%d", i)
		if err := s.AddConnection(handle, tableClient(handle)); err != nil {
			t.Fatalf("AddConnection(%d) error = %v", i, err)
		}
	}
	if got := s.Count(); got != config.MAX_WS_CLIENTS {
		t.Fatalf("Count() = %d, want %d", got, config.MAX_WS_CLIENTS)
	}

	if err := s.AddConnection("overflow", tableClient("overflow")); err != ErrTableFull {
		t.Fatalf("AddConnection at capacity error = %v, want ErrTableFull", err)
	}

	// Removing one frees exactly one slot.
	s.RemoveConnection("client-3")
	if got := s.Count(); got != config.MAX_WS_CLIENTS-1 {
		t.Fatalf("Count() after remove = %d", got)
	}
	if err := s.AddConnection("replacement", tableClient("replacement")); err != nil {
		t.Fatalf("AddConnection after remove error = %v", err)
	}
	if err := s.AddConnection("overflow", tableClient("overflow")); err != ErrTableFull {
		t.Fatalf("table should be full again, error = %v", err)
	}
}

func TestDuplicateHandleEvicted(t *testing.T) {
	s, _ := newTestServer()

	if err := s.AddConnection("dup", tableClient("dup")); err != nil {
		t.Fatal(err)
	}
	if err := s.AddConnection("dup", tableClient("dup")); err != nil {
		t.Fatalf("AddConnection with duplicate handle error = %v", err)
	}
	if got := s.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1 after duplicate eviction", got)
	}
}

func TestConnectivityTracksTable(t *testing.T) {
	s, _ := newTestServer()

	if s.state.Runtime().ServerConnected {
		t.Fatal("connected before any client")
	}
	s.AddConnection("a", tableClient("a"))
	s.AddConnection("b", tableClient("b"))
	if !s.state.Runtime().ServerConnected {
		t.Fatal("not connected with clients attached")
	}
	s.RemoveConnection("a")
	if !s.state.Runtime().ServerConnected {
		t.Error("disconnected while a client remains")
	}
	s.RemoveConnection("b")
	if s.state.Runtime().ServerConnected {
		t.Error("still connected after last client removed")
	}
}

func TestCleanupStale(t *testing.T) {
	s, clk := newTestServer()

	s.AddConnection("idle", tableClient("idle"))
	s.AddConnection("fresh", tableClient("fresh"))

	clk.advance(uint32(config.STALE_TIMEOUT.Milliseconds()) + 1)
	s.touchActivity("fresh")
	s.CleanupStale(clk.now())

	if got := s.Count(); got != 1 {
		t.Fatalf("Count() after cleanup = %d, want 1", got)
	}
	if !s.Send("fresh", []byte("x")) {
		t.Error("fresh client was evicted")
	}
	if s.Send("idle", []byte("x")) {
		t.Error("idle client survived cleanup")
	}
}

func TestCleanupDeadTransport(t *testing.T) {
	s, clk := newTestServer()

	c := tableClient("broken")
	s.AddConnection("broken", c)
	c.dead.Store(true)
	s.CleanupStale(clk.now())

	if got := s.Count(); got != 0 {
		t.Errorf("Count() = %d, dead transport not reclaimed", got)
	}
}

func TestSendToUnknownHandle(t *testing.T) {
	s, _ := newTestServer()
	if s.Send("nobody", []byte("x")) {
		t.Error("Send() to unknown handle reported success")
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	s, _ := newTestServer()
	a := tableClient("a")
	b := tableClient("b")
	s.AddConnection("a", a)
	s.AddConnection("b", b)

	s.Broadcast([]byte("payload"))
	for _, c := range []*wsClient{a, b} {
		select {
		case got := <-c.send:
			if string(got) != "payload" {
				t.Errorf("client %s got %q", c.handle, got)
			}
		default:
			t.Errorf("client %s received nothing", c.handle)
		}
	}
}

func httpHandler(s *Server) http.Handler {
	return http.HandlerFunc(s.HandleWS)
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
}

func TestHandleWSGreetsWithStatus(t *testing.T) {
	s, _ := newTestServer()
	ts := httptest.NewServer(httpHandler(s))
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	var status StatusMsg
	readJSON(t, conn, &status)
	if status.Op != OpStatus {
		t.Fatalf("greeting op = %d, want %d", status.Op, OpStatus)
	}
	if status.Config.MaxHearts == 0 {
		t.Error("greeting carries empty config")
	}
}

func TestHandleWSRejectsWhenNotReady(t *testing.T) {
	clk := &testClock{}
	state := game.NewState(game.RoleTarget, nil)
	s := NewServer(state, readyBoot{ready: false}, clk.now)
	ts := httptest.NewServer(httpHandler(s))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded while bootstrap not ready")
	}
	if resp == nil || resp.StatusCode != 503 {
		t.Errorf("response = %+v, want 503", resp)
	}
}

func TestConfigUpdateClampsAndBroadcasts(t *testing.T) {
	s, _ := newTestServer()
	ts := httptest.NewServer(httpHandler(s))
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	var greeting StatusMsg
	readJSON(t, conn, &greeting)

	update := map[string]any{"op": OpConfigUpdate, "max_hearts": 200, "team_play": true}
	if err := conn.WriteJSON(update); err != nil {
		t.Fatal(err)
	}

	var status StatusMsg
	readJSON(t, conn, &status)
	if status.Op != OpStatus {
		t.Fatalf("op = %d, want STATUS", status.Op)
	}
	if !status.Clamped {
		t.Error("out-of-range update did not report clamping")
	}
	if status.Config.MaxHearts != 99 {
		t.Errorf("max_hearts = %d, want clamped 99", status.Config.MaxHearts)
	}
	if !status.Config.TeamPlay {
		t.Error("team_play not applied")
	}
	// Fields the update never named keep their values.
	if status.Config.MaxAmmo != greeting.Config.MaxAmmo {
		t.Errorf("max_ammo changed from %d to %d", greeting.Config.MaxAmmo, status.Config.MaxAmmo)
	}
}

func TestHeartbeatAck(t *testing.T) {
	s, _ := newTestServer()
	ts := httptest.NewServer(httpHandler(s))
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	var greeting StatusMsg
	readJSON(t, conn, &greeting)

	if err := conn.WriteJSON(map[string]any{"op": OpHeartbeat}); err != nil {
		t.Fatal(err)
	}
	var ack struct {
		Op int `json:"op"`
	}
	readJSON(t, conn, &ack)
	if ack.Op != OpHeartbeatAck {
		t.Errorf("op = %d, want %d", ack.Op, OpHeartbeatAck)
	}
}

func TestGameCommandLifecycle(t *testing.T) {
	s, _ := newTestServer()
	ts := httptest.NewServer(httpHandler(s))
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	var greeting StatusMsg
	readJSON(t, conn, &greeting)
	if greeting.State.Phase != "idle" {
		t.Fatalf("initial phase = %q", greeting.State.Phase)
	}

	start := CmdStart
	if err := conn.WriteJSON(map[string]any{"op": OpGameCommand, "command": start}); err != nil {
		t.Fatal(err)
	}
	var status StatusMsg
	readJSON(t, conn, &status)
	if status.State.Phase != "playing" {
		t.Errorf("phase after start = %q, want playing", status.State.Phase)
	}

	if err := conn.WriteJSON(map[string]any{"op": OpGameCommand, "command": CmdStop}); err != nil {
		t.Fatal(err)
	}
	readJSON(t, conn, &status)
	if status.State.Phase != "idle" {
		t.Errorf("phase after stop = %q, want idle", status.State.Phase)
	}
}

func TestMalformedFrameIgnored(t *testing.T) {
	s, _ := newTestServer()
	ts := httptest.NewServer(httpHandler(s))
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	var greeting StatusMsg
	readJSON(t, conn, &greeting)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	// The connection survives; a follow-up request still answers.
	if err := conn.WriteJSON(map[string]any{"op": OpGetStatus}); err != nil {
		t.Fatal(err)
	}
	var status StatusMsg
	readJSON(t, conn, &status)
	if status.Op != OpStatus {
		t.Errorf("op = %d, want STATUS after malformed frame", status.Op)
	}
}
