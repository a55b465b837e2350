package config

import (
	"os"
	"time"
)

// Compile-time constants. The device exposes no command-line surface,
// so these stand in for flags.
const (
	// Peer link
	MAX_PEERS          = 20 // Capacity of the peer address table
	PEER_QUEUE_DEPTH   = 16 // Bounded receive queue between radio and game loop
	DEFAULT_RADIO_CHAN = 6  // Radio channel the peer link is pinned to
	PEER_FRAME_SIZE    = 18 // Packed PeerMessage size on the wire, bytes

	// Hash mixing constants for the 8-bit corruption check.
	HASH_SEED   = 0x5A
	HASH_OFFSET = 0x3D

	// Control plane
	MAX_WS_CLIENTS     = 8                // Fixed connection table capacity
	CLIENT_SEND_BUFFER = 64               // Per-connection outbound queue
	STALE_TIMEOUT      = 20 * time.Second // Idle eviction threshold
	PING_INTERVAL      = 10 * time.Second
	PONG_WAIT          = 60 * time.Second
	WRITE_WAIT         = 10 * time.Second
	WS_MAX_FRAME_SIZE  = 1024

	// Game loop
	LOOP_INTERVAL    = 20 * time.Millisecond // Receive drain / timer poll cadence
	CLEANUP_INTERVAL = 5 * time.Second       // Stale connection sweep cadence

	// Heartbeat cadence towards the companion UI.
	HEARTBEAT_INTERVAL = 60 * time.Second
)

// Persistence namespace and keys for the device identity.
const (
	StoreNamespace = "game"
	KeyDeviceID    = "device_id"
	KeyPlayerID    = "player_id"
	KeyTeamID      = "team_id"
	KeyColor       = "color"
	KeyDeviceName  = "device_name"
	KeyRole        = "role"
	KeyTeammates   = "teammates"
	KeyEnemies     = "enemies"
)

// Runtime holds the few values that may be overridden from the environment.
type Runtime struct {
	ListenAddr   string
	StorePath    string
	Role         string
	RadioChannel uint8
	RadioAddr    string
	PeerList     string // comma-separated peer hardware addresses
	PeerRoutes   string // comma-separated addr=host:port simulation routes
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Load builds the runtime configuration from environment variables,
// falling back to defaults suitable for local simulation.
func Load() Runtime {
	return Runtime{
		ListenAddr:   getEnv("LISTEN_ADDR", ":8080"),
		StorePath:    getEnv("STORE_PATH", "rayz-store.json"),
		Role:         getEnv("DEVICE_ROLE", "target"),
		RadioChannel: DEFAULT_RADIO_CHAN,
		RadioAddr:    getEnv("RADIO_ADDR", ":47808"),
		PeerList:     getEnv("PEER_LIST", ""),
		PeerRoutes:   getEnv("PEER_ROUTES", ""),
		ReadTimeout:  parseDuration(getEnv("READ_TIMEOUT", "15s"), 15*time.Second),
		WriteTimeout: parseDuration(getEnv("WRITE_TIMEOUT", "15s"), 15*time.Second),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
