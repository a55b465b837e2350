// Package peerlink moves fixed-size peer messages between the radio's
// receive context and the application through a bounded queue, and keeps a
// capacity-bounded table of known peer addresses. Delivery is unconfirmed
// best effort: a missed frame is dropped and counted, never retried.
package peerlink

import (
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"rayz-device/config"
	"rayz-device/wire"
)

// ErrTableFull marks a peer table at capacity.
var ErrTableFull = errors.New("peerlink: peer table full")

// ErrNoPeers marks a peer list from which nothing could be loaded.
var ErrNoPeers = errors.New("peerlink: no peers loaded")

// MessageEnvelope pairs a received message with its source address. It lives
// only in the receive queue.
type MessageEnvelope struct {
	Msg    wire.PeerMessage
	Source Addr
}

// Stats aggregates link counters. Drops are only observable here; the
// sender is never told.
type Stats struct {
	RxCount      uint32
	TxCount      uint32
	RxDropped    uint32
	RxMalformed  uint32
	SendFailures uint32
}

// Link is the peer transport. Peers are mutated only from the owning
// application task; the receive path touches nothing but the queue and
// counters.
type Link struct {
	drv     RadioDriver
	channel uint8

	mu    sync.Mutex
	peers []Addr

	rx chan MessageEnvelope

	rxCount      atomic.Uint32
	txCount      atomic.Uint32
	rxDropped    atomic.Uint32
	rxMalformed  atomic.Uint32
	sendFailures atomic.Uint32
}

// New pins the driver to the given channel and attaches the receive path.
// The link never renegotiates the channel on its own.
func New(drv RadioDriver, channel uint8) (*Link, error) {
	if err := drv.SetChannel(channel); err != nil {
		return nil, err
	}
	l := &Link{
		drv:     drv,
		channel: channel,
		rx:      make(chan MessageEnvelope, config.PEER_QUEUE_DEPTH),
	}
	drv.Attach(l.deliver)
	return l, nil
}

// Channel reports the channel the link is pinned to.
func (l *Link) Channel() uint8 { return l.channel }

// deliver runs in the driver's receive context. It copies the frame into
// the bounded queue and returns immediately; when the queue is full the
// newest frame is the one dropped.
func (l *Link) deliver(src Addr, payload []byte) {
	msg, err := wire.UnmarshalPeerMessage(payload)
	if err != nil {
		l.rxMalformed.Add(1)
		return
	}
	select {
	case l.rx <- MessageEnvelope{Msg: msg, Source: src}:
		l.rxCount.Add(1)
	default:
		l.rxDropped.Add(1)
	}
}

// Receive dequeues the next envelope, waiting at most timeout.
func (l *Link) Receive(timeout time.Duration) (MessageEnvelope, bool) {
	if timeout <= 0 {
		select {
		case env := <-l.rx:
			return env, true
		default:
			return MessageEnvelope{}, false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case env := <-l.rx:
		return env, true
	case <-timer.C:
		return MessageEnvelope{}, false
	}
}

// AddPeer records a peer address. Adding a known address is a no-op
// success; a full table is an error the caller may ignore.
func (l *Link) AddPeer(addr Addr) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.peers {
		if p == addr {
			return nil
		}
	}
	if len(l.peers) >= config.MAX_PEERS {
		log.Printf("peerlink: peer table full, dropping %s", addr)
		return ErrTableFull
	}
	l.peers = append(l.peers, addr)
	log.Printf("peerlink: peer added %s (total=%d)", addr, len(l.peers))
	return nil
}

// ClearPeers empties the peer table.
func (l *Link) ClearPeers() {
	l.mu.Lock()
	l.peers = l.peers[:0]
	l.mu.Unlock()
}

// PeerCount reports the number of known peers.
func (l *Link) PeerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.peers)
}

// Peers returns a copy of the peer table.
func (l *Link) Peers() []Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Addr, len(l.peers))
	copy(out, l.peers)
	return out
}

// LoadPeersFromList parses a comma or semicolon separated address list,
// skipping malformed entries. It succeeds if at least one peer was loaded.
func (l *Link) LoadPeersFromList(list string) error {
	loaded := 0
	for _, tok := range strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ';'
	}) {
		addr, err := ParseAddr(tok)
		if err != nil {
			log.Printf("peerlink: skipping malformed peer entry %q", tok)
			continue
		}
		if err := l.AddPeer(addr); err == nil {
			loaded++
		}
	}
	log.Printf("peerlink: loaded %d peers from list", loaded)
	if loaded == 0 {
		return ErrNoPeers
	}
	return nil
}

// Send transmits one message to a single peer. Failure is reported, never
// retried.
func (l *Link) Send(addr Addr, msg wire.PeerMessage) bool {
	raw := msg.Marshal()
	if err := l.drv.Send(addr, raw[:]); err != nil {
		l.sendFailures.Add(1)
		log.Printf("peerlink: send to %s failed: %v", addr, err)
		return false
	}
	l.txCount.Add(1)
	return true
}

// Broadcast transmits one message to all peers in range.
func (l *Link) Broadcast(msg wire.PeerMessage) bool {
	return l.Send(BroadcastAddr, msg)
}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() Stats {
	return Stats{
		RxCount:      l.rxCount.Load(),
		TxCount:      l.txCount.Load(),
		RxDropped:    l.rxDropped.Load(),
		RxMalformed:  l.rxMalformed.Load(),
		SendFailures: l.sendFailures.Load(),
	}
}

// Close releases the underlying driver.
func (l *Link) Close() error {
	return l.drv.Close()
}
