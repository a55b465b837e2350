package peerlink

import (
	"errors"
	"log"
	"net"
	"sync"
)

// ErrNoRoute marks a send to a hardware address with no known endpoint.
var ErrNoRoute = errors.New("peerlink: no route for address")

// UDPDriver carries radio frames as UDP datagrams for host simulation and
// integration testing. Each datagram is one frame, prefixed with the
// sender's 6-byte hardware address so the receiver can attribute it.
type UDPDriver struct {
	local Addr
	conn  *net.UDPConn

	mu     sync.Mutex
	routes map[Addr]*net.UDPAddr
	rx     RxFunc
	closed bool
}

// NewUDPDriver binds a UDP socket and starts the read loop. The channel is
// accepted for interface parity; UDP has no channels.
func NewUDPDriver(local Addr, listenAddr string) (*UDPDriver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	d := &UDPDriver{
		local:  local,
		conn:   conn,
		routes: make(map[Addr]*net.UDPAddr),
	}
	go d.readLoop()
	return d, nil
}

// AddRoute maps a peer hardware address to its UDP endpoint.
func (d *UDPDriver) AddRoute(addr Addr, endpoint string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.routes[addr] = udpAddr
	d.mu.Unlock()
	return nil
}

// SetChannel is a no-op for UDP; the interface requires it.
func (d *UDPDriver) SetChannel(channel uint8) error { return nil }

// Attach registers the receive callback.
func (d *UDPDriver) Attach(rx RxFunc) {
	d.mu.Lock()
	d.rx = rx
	d.mu.Unlock()
}

// Send transmits one frame. Broadcast fans out to every known route.
func (d *UDPDriver) Send(addr Addr, payload []byte) error {
	datagram := make([]byte, AddrLen+len(payload))
	copy(datagram, d.local[:])
	copy(datagram[AddrLen:], payload)

	d.mu.Lock()
	defer d.mu.Unlock()
	if addr.IsBroadcast() {
		var lastErr error
		for _, ep := range d.routes {
			if _, err := d.conn.WriteToUDP(datagram, ep); err != nil {
				lastErr = err
			}
		}
		return lastErr
	}
	ep, ok := d.routes[addr]
	if !ok {
		return ErrNoRoute
	}
	_, err := d.conn.WriteToUDP(datagram, ep)
	return err
}

// Close shuts the socket down and stops the read loop.
func (d *UDPDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.conn.Close()
}

func (d *UDPDriver) readLoop() {
	buf := make([]byte, 512)
	for {
		n, _, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			d.mu.Lock()
			closed := d.closed
			d.mu.Unlock()
			if !closed {
				log.Printf("peerlink: udp read error: %v", err)
			}
			return
		}
		if n < AddrLen {
			continue
		}
		var src Addr
		copy(src[:], buf[:AddrLen])
		frame := make([]byte, n-AddrLen)
		copy(frame, buf[AddrLen:n])

		d.mu.Lock()
		rx := d.rx
		d.mu.Unlock()
		if rx != nil {
			rx(src, frame)
		}
	}
}
