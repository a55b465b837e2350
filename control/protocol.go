// Package control is the concurrent server exposing device state and
// commands to companion UI clients over a structured-message protocol. It
// keeps a fixed-capacity connection table and never holds its lock during
// socket I/O.
package control

import (
	"encoding/json"

	"rayz-device/game"
)

// Protocol opcodes. Values match the deployed UI protocol.
const (
	// Client -> device
	OpGetStatus     = 1
	OpHeartbeat     = 2
	OpConfigUpdate  = 3
	OpGameCommand   = 4
	OpHitForward    = 5 // reserved
	OpKillConfirmed = 6
	OpRemoteSound   = 7 // reserved

	// Device -> client
	OpStatus       = 10
	OpHeartbeatAck = 11
	OpShotFired    = 12
	OpHitReport    = 13
	OpRespawn      = 14
	OpReloadEvent  = 15
	OpGameOver     = 16
)

// Game command values carried by OpGameCommand.
const (
	CmdStop    = 0
	CmdStart   = 1
	CmdReset   = 2
	CmdPause   = 3
	CmdUnpause = 4
)

// inboundMsg is the superset of fields a client frame may carry. Unknown
// fields are ignored; absent fields stay nil so partial config updates only
// touch what they name.
type inboundMsg struct {
	Op      int  `json:"op"`
	Command *int `json:"command,omitempty"`

	// Identity fields (OpConfigUpdate)
	DeviceID   *uint8  `json:"device_id,omitempty"`
	PlayerID   *uint8  `json:"player_id,omitempty"`
	TeamID     *uint8  `json:"team_id,omitempty"`
	ColorRGB   *uint32 `json:"color_rgb,omitempty"`
	DeviceName *string `json:"device_name,omitempty"`
	Teammates  *string `json:"teammates,omitempty"`
	Enemies    *string `json:"enemies,omitempty"`

	// Tunables (OpConfigUpdate)
	MaxHearts           *uint8  `json:"max_hearts,omitempty"`
	RespawnCooldownMs   *uint32 `json:"respawn_cooldown_ms,omitempty"`
	InvulnerabilityMs   *uint16 `json:"invulnerability_ms,omitempty"`
	KillScore           *uint8  `json:"kill_score,omitempty"`
	HitScore            *uint8  `json:"hit_score,omitempty"`
	AssistScore         *uint8  `json:"assist_score,omitempty"`
	ScoreToWin          *uint16 `json:"score_to_win,omitempty"`
	TimeLimitS          *uint16 `json:"time_limit_s,omitempty"`
	MaxAmmo             *uint16 `json:"max_ammo,omitempty"`
	MagCapacity         *uint8  `json:"mag_capacity,omitempty"`
	ReloadTimeMs        *uint16 `json:"reload_time_ms,omitempty"`
	ShotRateLimitMs     *uint16 `json:"shot_rate_limit_ms,omitempty"`
	TeamPlay            *bool   `json:"team_play,omitempty"`
	FriendlyFireEnabled *bool   `json:"friendly_fire_enabled,omitempty"`
	UnlimitedAmmo       *bool   `json:"unlimited_ammo,omitempty"`
	UnlimitedRespawn    *bool   `json:"unlimited_respawn,omitempty"`
}

// StatusConfig is the config section of a STATUS frame.
type StatusConfig struct {
	DeviceID   uint8  `json:"device_id"`
	PlayerID   uint8  `json:"player_id"`
	TeamID     uint8  `json:"team_id"`
	ColorRGB   uint32 `json:"color_rgb"`
	DeviceName string `json:"device_name"`
	Role       string `json:"role"`

	MaxHearts           uint8  `json:"max_hearts"`
	RespawnCooldownMs   uint32 `json:"respawn_cooldown_ms"`
	TimeLimitS          uint16 `json:"time_limit_s"`
	MaxAmmo             uint16 `json:"max_ammo"`
	MagCapacity         uint8  `json:"mag_capacity"`
	TeamPlay            bool   `json:"team_play"`
	FriendlyFireEnabled bool   `json:"friendly_fire_enabled"`
	UnlimitedAmmo       bool   `json:"unlimited_ammo"`
	UnlimitedRespawn    bool   `json:"unlimited_respawn"`
}

// StatusStats is the stats section of a STATUS frame.
type StatusStats struct {
	Shots         uint32 `json:"shots"`
	Hits          uint32 `json:"hits"`
	EnemyKills    uint32 `json:"enemy_kills"`
	FriendlyKills uint32 `json:"friendly_kills"`
	Deaths        uint32 `json:"deaths"`
	RxCount       uint32 `json:"rx_count"`
	TxCount       uint32 `json:"tx_count"`
}

// StatusState is the live-state section of a STATUS frame.
type StatusState struct {
	CurrentHearts   uint8  `json:"current_hearts"`
	CurrentAmmo     uint16 `json:"current_ammo"`
	IsRespawning    bool   `json:"is_respawning"`
	Phase           string `json:"phase"`
	ServerConnected bool   `json:"server_connected"`
}

// StatusMsg is the full device status broadcast to UI clients.
type StatusMsg struct {
	Op       int          `json:"op"`
	UptimeMs uint32       `json:"uptime_ms"`
	Clamped  bool         `json:"clamped,omitempty"`
	Config   StatusConfig `json:"config"`
	Stats    StatusStats  `json:"stats"`
	State    StatusState  `json:"state"`
}

// BuildStatus assembles a STATUS frame from a consistent state snapshot.
func BuildStatus(snap game.Snapshot, nowMs uint32, clamped bool) []byte {
	msg := StatusMsg{
		Op:       OpStatus,
		UptimeMs: nowMs,
		Clamped:  clamped,
		Config: StatusConfig{
			DeviceID:            snap.Identity.DeviceID,
			PlayerID:            snap.Identity.PlayerID,
			TeamID:              snap.Identity.TeamID,
			ColorRGB:            snap.Identity.ColorRGB,
			DeviceName:          snap.Identity.DeviceName,
			Role:                snap.Identity.Role.String(),
			MaxHearts:           snap.Config.MaxHearts,
			RespawnCooldownMs:   snap.Config.RespawnCooldownMs,
			TimeLimitS:          snap.Config.TimeLimitS,
			MaxAmmo:             snap.Config.MaxAmmo,
			MagCapacity:         snap.Config.MagCapacity,
			TeamPlay:            snap.Config.TeamPlay,
			FriendlyFireEnabled: snap.Config.FriendlyFireEnabled,
			UnlimitedAmmo:       snap.Config.UnlimitedAmmo,
			UnlimitedRespawn:    snap.Config.UnlimitedRespawn,
		},
		Stats: StatusStats{
			Shots:         snap.Runtime.ShotsFired,
			Hits:          snap.Runtime.HitsLanded,
			EnemyKills:    snap.Runtime.Kills,
			FriendlyKills: snap.Runtime.FriendlyFireCount,
			Deaths:        snap.Runtime.Deaths,
			RxCount:       snap.Runtime.RxCount,
			TxCount:       snap.Runtime.TxCount,
		},
		State: StatusState{
			CurrentHearts:   snap.Runtime.HeartsRemaining,
			CurrentAmmo:     snap.Runtime.AmmoRemaining,
			IsRespawning:    snap.Runtime.Respawning,
			Phase:           snap.Runtime.Phase.String(),
			ServerConnected: snap.Runtime.ServerConnected,
		},
	}
	out, _ := json.Marshal(msg)
	return out
}

// BuildHeartbeatAck acknowledges a UI heartbeat.
func BuildHeartbeatAck(nowMs uint32) []byte {
	out, _ := json.Marshal(struct {
		Op          int    `json:"op"`
		TimestampMs uint32 `json:"timestamp_ms"`
	}{OpHeartbeatAck, nowMs})
	return out
}

// BuildShotFired reports a shot to the UI.
func BuildShotFired(shots uint32, nowMs uint32) []byte {
	out, _ := json.Marshal(struct {
		Op          int    `json:"op"`
		Shots       uint32 `json:"shots"`
		TimestampMs uint32 `json:"timestamp_ms"`
	}{OpShotFired, shots, nowMs})
	return out
}

// BuildHitReport reports an incoming hit to the UI.
func BuildHitReport(shooterPlayer, shooterTeam uint8, friendly bool, nowMs uint32) []byte {
	out, _ := json.Marshal(struct {
		Op            int    `json:"op"`
		ShooterPlayer uint8  `json:"shooter_player"`
		ShooterTeam   uint8  `json:"shooter_team"`
		Friendly      bool   `json:"friendly"`
		TimestampMs   uint32 `json:"timestamp_ms"`
	}{OpHitReport, shooterPlayer, shooterTeam, friendly, nowMs})
	return out
}

// BuildRespawn announces a completed respawn.
func BuildRespawn(hearts uint8, nowMs uint32) []byte {
	out, _ := json.Marshal(struct {
		Op          int    `json:"op"`
		Hearts      uint8  `json:"hearts"`
		TimestampMs uint32 `json:"timestamp_ms"`
	}{OpRespawn, hearts, nowMs})
	return out
}

// BuildReloadEvent announces a completed reload.
func BuildReloadEvent(ammo uint16, nowMs uint32) []byte {
	out, _ := json.Marshal(struct {
		Op          int    `json:"op"`
		Ammo        uint16 `json:"ammo"`
		TimestampMs uint32 `json:"timestamp_ms"`
	}{OpReloadEvent, ammo, nowMs})
	return out
}

// BuildGameOver announces the end of the match.
func BuildGameOver(snap game.Snapshot, nowMs uint32) []byte {
	out, _ := json.Marshal(struct {
		Op          int    `json:"op"`
		Kills       uint32 `json:"kills"`
		Deaths      uint32 `json:"deaths"`
		Shots       uint32 `json:"shots"`
		Hits        uint32 `json:"hits"`
		TimestampMs uint32 `json:"timestamp_ms"`
	}{OpGameOver, snap.Runtime.Kills, snap.Runtime.Deaths, snap.Runtime.ShotsFired,
		snap.Runtime.HitsLanded, nowMs})
	return out
}
