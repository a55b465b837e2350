package peerlink

import (
	"sync"
	"testing"
	"time"

	"rayz-device/config"
	"rayz-device/wire"
)

// MockDriver implements RadioDriver for testing.
type MockDriver struct {
	mu      sync.Mutex
	txLog   []sentFrame
	rx      RxFunc
	channel uint8
	sendErr error
}

type sentFrame struct {
	addr    Addr
	payload []byte
}

func (d *MockDriver) SetChannel(channel uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channel = channel
	return nil
}

func (d *MockDriver) Send(addr Addr, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sendErr != nil {
		return d.sendErr
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	d.txLog = append(d.txLog, sentFrame{addr: addr, payload: cp})
	return nil
}

func (d *MockDriver) Attach(rx RxFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rx = rx
}

func (d *MockDriver) Close() error { return nil }

// Inject delivers a frame as if it arrived over the air.
func (d *MockDriver) Inject(src Addr, payload []byte) {
	d.mu.Lock()
	rx := d.rx
	d.mu.Unlock()
	if rx != nil {
		rx(src, payload)
	}
}

func (d *MockDriver) TxLog() []sentFrame {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]sentFrame, len(d.txLog))
	copy(out, d.txLog)
	return out
}

func newTestLink(t *testing.T) (*Link, *MockDriver) {
	t.Helper()
	drv := &MockDriver{}
	link, err := New(drv, config.DEFAULT_RADIO_CHAN)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return link, drv
}

func testAddr(last byte) Addr {
	return Addr{0xAA, 0xBB, 0xCC, 0x00, 0x00, last}
}

func TestAddPeerIdempotent(t *testing.T) {
	link, _ := newTestLink(t)

	addr := testAddr(1)
	if err := link.AddPeer(addr); err != nil {
		t.Fatalf("AddPeer() error = %v", err)
	}
	if err := link.AddPeer(addr); err != nil {
		t.Fatalf("AddPeer() duplicate error = %v", err)
	}
	if got := link.PeerCount(); got != 1 {
		t.Errorf("PeerCount() = %d, want 1", got)
	}
}

func TestAddPeerCapacity(t *testing.T) {
	link, _ := newTestLink(t)

	for i := 0; i < config.MAX_PEERS; i++ {
		if err := link.AddPeer(testAddr(byte(i))); err != nil {
			t.Fatalf("AddPeer(%d) error = %v", i, err)
		}
	}
	if err := link.AddPeer(testAddr(200)); err != ErrTableFull {
		t.Errorf("AddPeer() over capacity error = %v, want ErrTableFull", err)
	}
	link.ClearPeers()
	if got := link.PeerCount(); got != 0 {
		t.Errorf("PeerCount() after ClearPeers = %d, want 0", got)
	}
}

func TestLoadPeersFromList(t *testing.T) {
	tests := []struct {
		name    string
		list    string
		want    int
		wantErr bool
	}{
		{"comma separated", "aa:bb:cc:dd:ee:01,aa:bb:cc:dd:ee:02", 2, false},
		{"mixed separators", "aa:bb:cc:dd:ee:01; aa-bb-cc-dd-ee-02", 2, false},
		{"skips malformed", "garbage, aa:bb:cc:dd:ee:03, also:bad", 1, false},
		{"nothing valid", "garbage, more garbage", 0, true},
		{"empty", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, _ := newTestLink(t)
			err := link.LoadPeersFromList(tt.list)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadPeersFromList() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := link.PeerCount(); got != tt.want {
				t.Errorf("PeerCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReceiveRoundTrip(t *testing.T) {
	link, drv := newTestLink(t)

	msg := wire.PeerMessage{Type: wire.MsgShot, Version: wire.ProtocolVersion, PlayerID: 5, TeamID: 1}
	raw := msg.Marshal()
	src := testAddr(9)
	drv.Inject(src, raw[:])

	env, ok := link.Receive(100 * time.Millisecond)
	if !ok {
		t.Fatal("Receive() timed out")
	}
	if env.Msg != msg {
		t.Errorf("Receive() msg = %+v, want %+v", env.Msg, msg)
	}
	if env.Source != src {
		t.Errorf("Receive() source = %s, want %s", env.Source, src)
	}
	if s := link.Stats(); s.RxCount != 1 {
		t.Errorf("Stats().RxCount = %d, want 1", s.RxCount)
	}
}

func TestReceiveTimeout(t *testing.T) {
	link, _ := newTestLink(t)

	start := time.Now()
	if _, ok := link.Receive(20 * time.Millisecond); ok {
		t.Fatal("Receive() returned an envelope from an empty queue")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Receive() returned before the timeout elapsed")
	}
}

func TestQueueOverflowDropsNewest(t *testing.T) {
	link, drv := newTestLink(t)

	for i := 0; i <= config.PEER_QUEUE_DEPTH; i++ {
		msg := wire.PeerMessage{Type: wire.MsgHeartbeat, Version: wire.ProtocolVersion, Data: uint32(i)}
		raw := msg.Marshal()
		drv.Inject(testAddr(1), raw[:])
	}

	s := link.Stats()
	if s.RxDropped != 1 {
		t.Fatalf("Stats().RxDropped = %d, want 1", s.RxDropped)
	}
	// The queued frames are the oldest ones; the overflowing frame was
	// discarded.
	for i := 0; i < config.PEER_QUEUE_DEPTH; i++ {
		env, ok := link.Receive(0)
		if !ok {
			t.Fatalf("Receive() drained only %d frames", i)
		}
		if env.Msg.Data != uint32(i) {
			t.Errorf("frame %d Data = %d, want %d", i, env.Msg.Data, i)
		}
	}
	if _, ok := link.Receive(0); ok {
		t.Error("queue held more frames than its capacity")
	}
}

func TestMalformedFramesDropped(t *testing.T) {
	link, drv := newTestLink(t)

	drv.Inject(testAddr(1), []byte{1, 2, 3})
	bad := make([]byte, wire.MessageSize)
	bad[0] = 0x7F // out-of-range type
	drv.Inject(testAddr(1), bad)

	if _, ok := link.Receive(0); ok {
		t.Error("malformed frame reached the queue")
	}
	if s := link.Stats(); s.RxMalformed != 2 {
		t.Errorf("Stats().RxMalformed = %d, want 2", s.RxMalformed)
	}
}

func TestSendAndBroadcast(t *testing.T) {
	link, drv := newTestLink(t)

	msg := wire.PeerMessage{Type: wire.MsgShot, Version: wire.ProtocolVersion, PlayerID: 3}
	addr := testAddr(7)
	if !link.Send(addr, msg) {
		t.Fatal("Send() reported failure")
	}
	if !link.Broadcast(msg) {
		t.Fatal("Broadcast() reported failure")
	}

	frames := drv.TxLog()
	if len(frames) != 2 {
		t.Fatalf("driver saw %d frames, want 2", len(frames))
	}
	if frames[0].addr != addr {
		t.Errorf("first frame addr = %s, want %s", frames[0].addr, addr)
	}
	if !frames[1].addr.IsBroadcast() {
		t.Errorf("second frame addr = %s, want broadcast", frames[1].addr)
	}
	if s := link.Stats(); s.TxCount != 2 {
		t.Errorf("Stats().TxCount = %d, want 2", s.TxCount)
	}
}

func TestSendFailureReported(t *testing.T) {
	link, drv := newTestLink(t)
	drv.sendErr = ErrNoRoute

	if link.Send(testAddr(1), wire.PeerMessage{Type: wire.MsgShot, Version: wire.ProtocolVersion}) {
		t.Fatal("Send() reported success on a failing driver")
	}
	if s := link.Stats(); s.SendFailures != 1 {
		t.Errorf("Stats().SendFailures = %d, want 1", s.SendFailures)
	}
}

func TestParseAddr(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"aa:bb:cc:dd:ee:ff", "AA:BB:CC:DD:EE:FF", false},
		{"AA-BB-CC-DD-EE-FF", "AA:BB:CC:DD:EE:FF", false},
		{" 01:02:03:04:05:06 ", "01:02:03:04:05:06", false},
		{"aa:bb:cc:dd:ee", "", true},
		{"aa:bb:cc:dd:ee:ff:00", "", true},
		{"zz:bb:cc:dd:ee:ff", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAddr(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAddr(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got.String() != tt.want {
			t.Errorf("ParseAddr(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
