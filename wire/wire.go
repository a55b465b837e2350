// Package wire implements the two binary message formats exchanged between
// devices: the fixed-size packed peer message and the 32-bit hash-checked
// "laser" word. The hash is a corruption detector for a noisy link, not an
// authentication scheme.
package wire

import (
	"encoding/binary"
	"errors"

	"rayz-device/config"
)

// MsgType discriminates peer messages.
type MsgType uint8

const (
	MsgShot MsgType = iota
	MsgHitEvent
	MsgHeartbeat

	msgTypeCount
)

// ProtocolVersion is carried in every peer message.
const ProtocolVersion = 2

// MessageSize is the packed on-air size of a PeerMessage.
const MessageSize = config.PEER_FRAME_SIZE

var (
	// ErrCorruptMessage marks a hash mismatch on a laser word.
	ErrCorruptMessage = errors.New("wire: corrupt message")
	// ErrMalformedMessage marks a frame of the wrong length or with an
	// out-of-range message type.
	ErrMalformedMessage = errors.New("wire: malformed message")
)

// PeerMessage is the fixed-format payload exchanged directly between
// devices. Multi-byte fields are little-endian on the wire.
type PeerMessage struct {
	Type        MsgType
	Version     uint8
	PlayerID    uint8
	DeviceID    uint8
	TeamID      uint8
	Reserved    uint8
	ColorRGB    uint32
	TimestampMs uint32
	Data        uint32
}

// Marshal packs the message into its fixed wire layout.
func (m PeerMessage) Marshal() [MessageSize]byte {
	var out [MessageSize]byte
	out[0] = byte(m.Type)
	out[1] = m.Version
	out[2] = m.PlayerID
	out[3] = m.DeviceID
	out[4] = m.TeamID
	out[5] = m.Reserved
	binary.LittleEndian.PutUint32(out[6:10], m.ColorRGB)
	binary.LittleEndian.PutUint32(out[10:14], m.TimestampMs)
	binary.LittleEndian.PutUint32(out[14:18], m.Data)
	return out
}

// UnmarshalPeerMessage validates a raw frame and unpacks it. Anything of the
// wrong length is rejected before its content is inspected.
func UnmarshalPeerMessage(raw []byte) (PeerMessage, error) {
	if len(raw) != MessageSize {
		return PeerMessage{}, ErrMalformedMessage
	}
	if MsgType(raw[0]) >= msgTypeCount {
		return PeerMessage{}, ErrMalformedMessage
	}
	return PeerMessage{
		Type:        MsgType(raw[0]),
		Version:     raw[1],
		PlayerID:    raw[2],
		DeviceID:    raw[3],
		TeamID:      raw[4],
		Reserved:    raw[5],
		ColorRGB:    binary.LittleEndian.Uint32(raw[6:10]),
		TimestampMs: binary.LittleEndian.Uint32(raw[10:14]),
		Data:        binary.LittleEndian.Uint32(raw[14:18]),
	}, nil
}

// Hash8 mixes a byte with the configured seed and offset. Deterministic and
// bijective, so any single-bit corruption of the input changes the output.
func Hash8(b byte) byte {
	return (b ^ config.HASH_SEED) + config.HASH_OFFSET
}

// EncodeLaser packs a shooter's player and device IDs with their hashes into
// a 32-bit word for the low-bandwidth optical link. Always succeeds.
func EncodeLaser(playerID, deviceID byte) uint32 {
	return uint32(playerID)<<24 | uint32(deviceID)<<16 |
		uint32(Hash8(playerID))<<8 | uint32(Hash8(deviceID))
}

// DecodeLaser recomputes both hashes and extracts the IDs only when both
// match. On mismatch it returns ErrCorruptMessage and zero IDs.
func DecodeLaser(word uint32) (playerID, deviceID byte, err error) {
	p := byte(word >> 24)
	d := byte(word >> 16)
	if byte(word>>8) != Hash8(p) || byte(word) != Hash8(d) {
		return 0, 0, ErrCorruptMessage
	}
	return p, d, nil
}

// FoldID folds an arbitrary string ID into a single byte using the same
// mixing function as the laser word.
func FoldID(id string) byte {
	var h byte
	for i := 0; i < len(id); i++ {
		h = Hash8(h ^ id[i])
	}
	return h
}
