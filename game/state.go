package game

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"rayz-device/config"
	"rayz-device/store"
	"rayz-device/wire"
)

// State is the authoritative game record. One mutex guards the whole
// record: the record is small and atomicity across related fields (death
// plus respawn arming) matters more than fine-grained parallelism.
type State struct {
	mu       sync.Mutex
	identity DeviceIdentity
	cfg      GameConfig
	rt       RuntimeState
	st       store.Store // nil in unit tests that skip persistence
}

// NewState loads the device identity from persistence or generates a fresh
// one, and installs the default config.
func NewState(role Role, st store.Store) *State {
	s := &State{
		cfg: DefaultConfig(),
		st:  st,
	}
	s.rt.HeartsRemaining = s.cfg.MaxHearts
	s.rt.AmmoRemaining = s.cfg.MaxAmmo

	if st == nil || !s.loadIdentity(role) {
		s.identity = generateIdentity(role)
		log.Printf("game: generated new identity device_id=%d player_id=%d",
			s.identity.DeviceID, s.identity.PlayerID)
		if st != nil {
			if err := s.saveIdentity(); err != nil {
				log.Printf("game: failed to persist identity: %v", err)
			}
		}
	}
	return s
}

func generateIdentity(role Role) DeviceIdentity {
	// Fold a fresh UUID down to the compact on-air id space.
	id := wire.FoldID(uuid.NewString())
	if id == 0 {
		id = 1
	}
	return DeviceIdentity{
		DeviceID:   id,
		PlayerID:   id,
		ColorRGB:   0xFF0000,
		Role:       role,
		DeviceName: fmt.Sprintf("%s %02X", role, id),
	}
}

func (s *State) loadIdentity(role Role) bool {
	ns := config.StoreNamespace
	dev, ok := s.st.ReadUint(ns, config.KeyDeviceID)
	if !ok {
		return false
	}
	s.identity.DeviceID = uint8(dev)
	s.identity.Role = role
	if v, ok := s.st.ReadUint(ns, config.KeyPlayerID); ok {
		s.identity.PlayerID = uint8(v)
	} else {
		s.identity.PlayerID = s.identity.DeviceID
	}
	if v, ok := s.st.ReadUint(ns, config.KeyTeamID); ok {
		s.identity.TeamID = uint8(v)
	}
	if v, ok := s.st.ReadUint(ns, config.KeyColor); ok {
		s.identity.ColorRGB = uint32(v)
	}
	if v, ok := s.st.ReadStr(ns, config.KeyDeviceName); ok {
		s.identity.DeviceName = v
	}
	if v, ok := s.st.ReadStr(ns, config.KeyTeammates); ok {
		s.identity.Teammates = v
	}
	if v, ok := s.st.ReadStr(ns, config.KeyEnemies); ok {
		s.identity.Enemies = v
	}
	log.Printf("game: identity loaded from store device_id=%d", s.identity.DeviceID)
	return true
}

func (s *State) saveIdentity() error {
	if s.st == nil {
		return nil
	}
	ns := config.StoreNamespace
	writes := []error{
		s.st.WriteUint(ns, config.KeyDeviceID, uint64(s.identity.DeviceID)),
		s.st.WriteUint(ns, config.KeyPlayerID, uint64(s.identity.PlayerID)),
		s.st.WriteUint(ns, config.KeyTeamID, uint64(s.identity.TeamID)),
		s.st.WriteUint(ns, config.KeyColor, uint64(s.identity.ColorRGB)),
		s.st.WriteStr(ns, config.KeyDeviceName, s.identity.DeviceName),
		s.st.WriteStr(ns, config.KeyRole, s.identity.Role.String()),
		s.st.WriteStr(ns, config.KeyTeammates, s.identity.Teammates),
		s.st.WriteStr(ns, config.KeyEnemies, s.identity.Enemies),
	}
	for _, err := range writes {
		if err != nil {
			return err
		}
	}
	return nil
}

// Identity returns a copy of the device identity.
func (s *State) Identity() DeviceIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetIdentity replaces the identity, preserving the role, and persists it.
// The display name is truncated to its maximum length.
func (s *State) SetIdentity(id DeviceIdentity) error {
	s.mu.Lock()
	id.Role = s.identity.Role
	if len(id.DeviceName) > MaxDeviceNameLen {
		id.DeviceName = id.DeviceName[:MaxDeviceNameLen]
	}
	s.identity = id
	err := s.saveIdentity()
	s.mu.Unlock()
	if err != nil {
		log.Printf("game: failed to persist identity: %v", err)
	}
	return err
}

// Config returns a copy of the stored tunables.
func (s *State) Config() GameConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// ApplyConfig clamps every numeric field into its valid range and stores
// the result. The returned flag tells the caller input was out of range so
// an operator can be warned; the clamp itself never fails.
func (s *State) ApplyConfig(in GameConfig) (GameConfig, bool) {
	stored, clamped := clampConfig(in)
	s.mu.Lock()
	s.cfg = stored
	if s.rt.HeartsRemaining > stored.MaxHearts {
		s.rt.HeartsRemaining = stored.MaxHearts
	}
	if s.rt.AmmoRemaining > stored.MaxAmmo {
		s.rt.AmmoRemaining = stored.MaxAmmo
	}
	s.mu.Unlock()
	if clamped {
		log.Printf("game: config update contained out-of-range values, clamped")
	}
	return stored, clamped
}

// Runtime returns a copy of the runtime state.
func (s *State) Runtime() RuntimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt
}

// Snapshot copies the whole record in one critical section.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Identity: s.identity, Config: s.cfg, Runtime: s.rt}
}

// RecordShot counts a fired shot and spends ammo unless it is unlimited.
func (s *State) RecordShot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rt.ShotsFired++
	if !s.cfg.UnlimitedAmmo && s.rt.AmmoRemaining > 0 {
		s.rt.AmmoRemaining--
	}
}

// RecordHit counts a hit landed on an enemy.
func (s *State) RecordHit() {
	s.mu.Lock()
	s.rt.HitsLanded++
	s.mu.Unlock()
}

// RecordKill counts a confirmed kill.
func (s *State) RecordKill() {
	s.mu.Lock()
	s.rt.Kills++
	total := s.rt.Kills
	s.mu.Unlock()
	log.Printf("game: kill recorded, total=%d", total)
}

// RecordFriendlyFire counts a hit from a teammate.
func (s *State) RecordFriendlyFire() {
	s.mu.Lock()
	s.rt.FriendlyFireCount++
	s.mu.Unlock()
}

// RecordDeath counts a death, removes a heart and arms the respawn timer in
// one critical section.
func (s *State) RecordDeath(nowMs uint32) {
	s.mu.Lock()
	s.rt.Deaths++
	if s.rt.HeartsRemaining > 0 {
		s.rt.HeartsRemaining--
	}
	s.rt.Respawning = true
	s.rt.RespawnEndTimeMs = nowMs + s.cfg.RespawnCooldownMs
	end := s.rt.RespawnEndTimeMs
	s.mu.Unlock()
	log.Printf("game: death recorded, respawn at %dms", end)
}

// IsRespawning reports whether the respawn cooldown is running.
func (s *State) IsRespawning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt.Respawning
}

// CheckRespawn polls the respawn deadline. Before the deadline it mutates
// nothing; at or after it, it clears the cooldown, heals to max hearts and
// returns true exactly once per respawn cycle.
func (s *State) CheckRespawn(nowMs uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rt.Respawning || nowMs < s.rt.RespawnEndTimeMs {
		return false
	}
	s.rt.Respawning = false
	s.rt.HeartsRemaining = s.cfg.MaxHearts
	return true
}

// RefillAmmo restores the full ammo reserve, as after a completed reload.
func (s *State) RefillAmmo() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rt.AmmoRemaining = s.cfg.MaxAmmo
	return s.rt.AmmoRemaining
}

// NoteRx counts an accepted peer frame.
func (s *State) NoteRx(nowMs uint32) {
	s.mu.Lock()
	s.rt.RxCount++
	s.rt.LastRxMs = nowMs
	s.mu.Unlock()
}

// NoteTx counts a transmitted peer frame.
func (s *State) NoteTx() {
	s.mu.Lock()
	s.rt.TxCount++
	s.mu.Unlock()
}

// idInList reports whether id appears in a comma-separated list.
func idInList(list, id string) bool {
	if list == "" || id == "" {
		return false
	}
	for _, tok := range strings.Split(list, ",") {
		if strings.TrimSpace(tok) == id {
			return true
		}
	}
	return false
}

// IsTeammate reports whether the given player id belongs to a teammate.
// A player is always their own teammate.
func (s *State) IsTeammate(playerID uint8) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isTeammateLocked(playerID)
}

func (s *State) isTeammateLocked(playerID uint8) bool {
	if playerID == s.identity.PlayerID {
		return true
	}
	return idInList(s.identity.Teammates, strconv.Itoa(int(playerID)))
}

// IsEnemy reports whether the given player id belongs to an enemy. With no
// teammate list, an empty enemy list means everyone is an enemy.
func (s *State) IsEnemy(playerID uint8) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if playerID == s.identity.PlayerID {
		return false
	}
	if s.identity.Teammates == "" {
		if s.identity.Enemies == "" {
			return true
		}
		return idInList(s.identity.Enemies, strconv.Itoa(int(playerID)))
	}
	return !s.isTeammateLocked(playerID)
}

// IsFriendly decides whether a hit from the given shooter counts as
// friendly fire against this device. Team assignment wins when both sides
// have one; otherwise the explicit teammate/enemy lists decide.
func (s *State) IsFriendly(shooterTeam, shooterPlayer uint8) bool {
	s.mu.Lock()
	teamPlay := s.cfg.TeamPlay
	ownTeam := s.identity.TeamID
	s.mu.Unlock()
	if teamPlay && shooterTeam != 0 && ownTeam != 0 {
		return shooterTeam == ownTeam
	}
	return !s.IsEnemy(shooterPlayer)
}

// FriendlyFireEnabled reports whether friendly hits are counted in stats.
func (s *State) FriendlyFireEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.FriendlyFireEnabled
}

// SetConnected records the control-plane connectivity axis. Set directly by
// the transport layer, never time-driven.
func (s *State) SetConnected(connected bool) {
	s.mu.Lock()
	changed := s.rt.ServerConnected != connected
	s.rt.ServerConnected = connected
	s.mu.Unlock()
	if changed {
		log.Printf("game: server connection: %v", connected)
	}
}

// TouchHeartbeat records the time of the last UI heartbeat.
func (s *State) TouchHeartbeat(nowMs uint32) {
	s.mu.Lock()
	s.rt.LastHeartbeatMs = nowMs
	s.mu.Unlock()
}

// HeartbeatDue reports whether a heartbeat should be emitted.
func (s *State) HeartbeatDue(nowMs uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nowMs-s.rt.LastHeartbeatMs >= uint32(config.HEARTBEAT_INTERVAL.Milliseconds())
}

// Phase returns the current match phase.
func (s *State) Phase() MatchPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt.Phase
}

// StartMatch resets the runtime combat state and begins play.
func (s *State) StartMatch(nowMs uint32) {
	s.mu.Lock()
	s.resetRuntimeLocked()
	s.rt.Phase = PhasePlaying
	s.rt.MatchStartMs = nowMs
	s.mu.Unlock()
	log.Printf("game: match started")
}

// StopMatch returns the device to idle without touching stats.
func (s *State) StopMatch() {
	s.mu.Lock()
	s.rt.Phase = PhaseIdle
	s.mu.Unlock()
	log.Printf("game: match stopped")
}

// Pause suspends play; only a running match can pause.
func (s *State) Pause() {
	s.mu.Lock()
	if s.rt.Phase == PhasePlaying {
		s.rt.Phase = PhasePaused
	}
	s.mu.Unlock()
}

// Unpause resumes a paused match.
func (s *State) Unpause() {
	s.mu.Lock()
	if s.rt.Phase == PhasePaused {
		s.rt.Phase = PhasePlaying
	}
	s.mu.Unlock()
}

// ResetStats zeroes the combat counters and restores hearts and ammo.
func (s *State) ResetStats() {
	s.mu.Lock()
	s.resetRuntimeLocked()
	s.mu.Unlock()
	log.Printf("game: stats reset")
}

func (s *State) resetRuntimeLocked() {
	s.rt.ShotsFired = 0
	s.rt.HitsLanded = 0
	s.rt.Kills = 0
	s.rt.Deaths = 0
	s.rt.FriendlyFireCount = 0
	s.rt.HeartsRemaining = s.cfg.MaxHearts
	s.rt.AmmoRemaining = s.cfg.MaxAmmo
	s.rt.Respawning = false
	s.rt.RespawnEndTimeMs = 0
}

// CheckMatchOver polls the time limit. When a running match has outlived
// time_limit_s it flips to game over and returns true exactly once.
func (s *State) CheckMatchOver(nowMs uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rt.Phase != PhasePlaying || s.cfg.TimeLimitS == 0 {
		return false
	}
	if nowMs-s.rt.MatchStartMs < uint32(s.cfg.TimeLimitS)*1000 {
		return false
	}
	s.rt.Phase = PhaseGameOver
	return true
}
