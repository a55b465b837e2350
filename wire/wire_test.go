package wire

import (
	"bytes"
	"testing"
)

func TestLaserRoundTrip(t *testing.T) {
	for p := 0; p <= 255; p++ {
		for d := 0; d <= 255; d++ {
			word := EncodeLaser(byte(p), byte(d))
			gotP, gotD, err := DecodeLaser(word)
			if err != nil {
				t.Fatalf("DecodeLaser(EncodeLaser(%d, %d)) error = %v", p, d, err)
			}
			if gotP != byte(p) || gotD != byte(d) {
				t.Fatalf("DecodeLaser(EncodeLaser(%d, %d)) = (%d, %d)", p, d, gotP, gotD)
			}
		}
	}
}

func TestLaserSingleBitCorruption(t *testing.T) {
	// Hash8 is bijective over a byte, so flipping any single bit of a valid
	// word must break at least one of the two id/hash pairings.
	words := []uint32{
		EncodeLaser(0, 0),
		EncodeLaser(1, 2),
		EncodeLaser(42, 99),
		EncodeLaser(255, 255),
	}
	for _, w := range words {
		for bit := 0; bit < 32; bit++ {
			flipped := w ^ (1 << bit)
			if _, _, err := DecodeLaser(flipped); err == nil {
				t.Errorf("DecodeLaser(%#08x with bit %d flipped) accepted corrupt word", w, bit)
			}
		}
	}
}

func TestPeerMessageRoundTrip(t *testing.T) {
	msg := PeerMessage{
		Type:        MsgShot,
		Version:     ProtocolVersion,
		PlayerID:    7,
		DeviceID:    12,
		TeamID:      1,
		ColorRGB:    0xFF8800,
		TimestampMs: 123456,
		Data:        EncodeLaser(7, 12),
	}
	raw := msg.Marshal()
	got, err := UnmarshalPeerMessage(raw[:])
	if err != nil {
		t.Fatalf("UnmarshalPeerMessage() error = %v", err)
	}
	if got != msg {
		t.Errorf("round trip = %+v, want %+v", got, msg)
	}
}

func TestPeerMessageLayout(t *testing.T) {
	msg := PeerMessage{
		Type:        MsgHitEvent,
		Version:     2,
		PlayerID:    0x11,
		DeviceID:    0x22,
		TeamID:      0x33,
		Reserved:    0x44,
		ColorRGB:    0x00CCBBAA,
		TimestampMs: 0x04030201,
		Data:        0x08070605,
	}
	raw := msg.Marshal()
	want := []byte{
		0x01, 0x02, 0x11, 0x22, 0x33, 0x44, // header bytes
		0xAA, 0xBB, 0xCC, 0x00, // color_rgb little-endian
		0x01, 0x02, 0x03, 0x04, // timestamp_ms little-endian
		0x05, 0x06, 0x07, 0x08, // data little-endian
	}
	if !bytes.Equal(raw[:], want) {
		t.Errorf("Marshal() = % x, want % x", raw[:], want)
	}
}

func TestUnmarshalPeerMessageRejects(t *testing.T) {
	valid := PeerMessage{Type: MsgHeartbeat, Version: ProtocolVersion}.Marshal()

	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"short", valid[:MessageSize-1]},
		{"long", append(append([]byte{}, valid[:]...), 0)},
		{"unknown type", func() []byte {
			raw := valid
			raw[0] = byte(msgTypeCount)
			return raw[:]
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalPeerMessage(tt.raw); err == nil {
				t.Errorf("UnmarshalPeerMessage(%s) accepted invalid frame", tt.name)
			}
		})
	}
}

func TestFoldIDStable(t *testing.T) {
	if FoldID("A1B2C3D4") != FoldID("A1B2C3D4") {
		t.Error("FoldID not deterministic")
	}
	if FoldID("") != 0 {
		t.Errorf("FoldID(\"\") = %d, want 0", FoldID(""))
	}
	if FoldID("weapon-1") == FoldID("weapon-2") {
		t.Error("FoldID collided on adjacent ids")
	}
}
