// Package game holds the authoritative, mutex-guarded record of device
// identity, tunable configuration, and runtime combat state. All mutation
// goes through validated operations; nothing here is fatal at runtime.
package game

// Role distinguishes weapon and target devices.
type Role uint8

const (
	RoleWeapon Role = iota
	RoleTarget
)

func (r Role) String() string {
	switch r {
	case RoleWeapon:
		return "weapon"
	case RoleTarget:
		return "target"
	}
	return "unknown"
}

// ParseRole maps the persisted role string back to a Role.
func ParseRole(s string) Role {
	if s == "target" {
		return RoleTarget
	}
	return RoleWeapon
}

// MaxDeviceNameLen bounds the display name.
const MaxDeviceNameLen = 31

// DeviceIdentity identifies this device to peers and the companion UI.
// Generated once if absent from persistence, mutable only through an
// explicit identity update.
type DeviceIdentity struct {
	DeviceID   uint8  `json:"device_id"`
	PlayerID   uint8  `json:"player_id"`
	TeamID     uint8  `json:"team_id"` // 0 = no team
	ColorRGB   uint32 `json:"color_rgb"`
	Role       Role   `json:"-"`
	DeviceName string `json:"device_name"`
	// Comma-separated player ids consulted when no team is assigned.
	Teammates string `json:"teammates,omitempty"`
	Enemies   string `json:"enemies,omitempty"`
}

// GameConfig is the set of numeric and boolean tunables. Every numeric
// field is kept within its declared valid range by ApplyConfig; there is no
// way to store an out-of-range value.
type GameConfig struct {
	MaxHearts         uint8  `json:"max_hearts"`
	RespawnCooldownMs uint32 `json:"respawn_cooldown_ms"`
	InvulnerabilityMs uint16 `json:"invulnerability_ms"`

	KillScore   uint8  `json:"kill_score"`
	HitScore    uint8  `json:"hit_score"`
	AssistScore uint8  `json:"assist_score"`
	ScoreToWin  uint16 `json:"score_to_win"`

	TimeLimitS uint16 `json:"time_limit_s"`

	MaxAmmo         uint16 `json:"max_ammo"`
	MagCapacity     uint8  `json:"mag_capacity"`
	ReloadTimeMs    uint16 `json:"reload_time_ms"`
	ShotRateLimitMs uint16 `json:"shot_rate_limit_ms"`

	TeamPlay            bool `json:"team_play"`
	FriendlyFireEnabled bool `json:"friendly_fire_enabled"`
	UnlimitedAmmo       bool `json:"unlimited_ammo"`
	UnlimitedRespawn    bool `json:"unlimited_respawn"`
}

// MatchPhase is the match-lifecycle axis, driven by UI game commands.
type MatchPhase uint8

const (
	PhaseIdle MatchPhase = iota
	PhasePlaying
	PhasePaused
	PhaseGameOver
)

func (p MatchPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseGameOver:
		return "game_over"
	}
	return "unknown"
}

// RuntimeState is reset at the start of each match and mutated continuously
// during play.
type RuntimeState struct {
	HeartsRemaining  uint8  `json:"hearts_remaining"`
	Respawning       bool   `json:"respawning"`
	RespawnEndTimeMs uint32 `json:"respawn_end_time_ms"`

	ShotsFired        uint32 `json:"shots_fired"`
	HitsLanded        uint32 `json:"hits_landed"`
	Kills             uint32 `json:"kills"`
	Deaths            uint32 `json:"deaths"`
	FriendlyFireCount uint32 `json:"friendly_fire_count"`

	AmmoRemaining uint16 `json:"ammo_remaining"`

	RxCount  uint32 `json:"rx_count"`
	TxCount  uint32 `json:"tx_count"`
	LastRxMs uint32 `json:"last_rx_ms"`

	ServerConnected bool   `json:"server_connected"`
	LastHeartbeatMs uint32 `json:"last_heartbeat_ms"`

	Phase        MatchPhase `json:"-"`
	MatchStartMs uint32     `json:"match_start_ms"`
}

// Snapshot is a consistent copy of the whole record, taken under the lock
// so it can be serialized without holding it.
type Snapshot struct {
	Identity DeviceIdentity
	Config   GameConfig
	Runtime  RuntimeState
}
