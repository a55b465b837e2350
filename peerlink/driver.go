package peerlink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AddrLen is the length of a hardware address.
const AddrLen = 6

// Addr is a radio hardware address.
type Addr [AddrLen]byte

// BroadcastAddr targets every peer in range.
var BroadcastAddr = Addr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// ErrBadAddr marks an address string that could not be parsed.
var ErrBadAddr = errors.New("peerlink: bad address")

func (a Addr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsBroadcast reports whether the address is the broadcast address.
func (a Addr) IsBroadcast() bool {
	return a == BroadcastAddr
}

// ParseAddr parses "aa:bb:cc:dd:ee:ff" or "aa-bb-cc-dd-ee-ff".
func ParseAddr(s string) (Addr, error) {
	var a Addr
	s = strings.TrimSpace(s)
	sep := ":"
	if strings.Contains(s, "-") {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != AddrLen {
		return a, ErrBadAddr
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil || len(p) == 0 || len(p) > 2 {
			return a, ErrBadAddr
		}
		a[i] = byte(v)
	}
	return a, nil
}

// RxFunc receives a complete frame from the radio. It is invoked from the
// driver's receive context (the ISR analogue) and must not block.
type RxFunc func(src Addr, payload []byte)

// RadioDriver abstracts the radio transport underneath the peer link, so the
// link can run against a test double without real hardware.
type RadioDriver interface {
	// SetChannel pins the radio to a fixed channel.
	SetChannel(channel uint8) error
	// Send transmits one complete frame. Non-blocking best effort; delivery
	// is never confirmed.
	Send(addr Addr, payload []byte) error
	// Attach registers the receive callback. Must be called before frames
	// can be delivered.
	Attach(rx RxFunc)
	// Close releases the transport.
	Close() error
}
