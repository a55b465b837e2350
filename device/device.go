// Package device runs the combat loop. It drains the peer link, applies
// hits to the game state and pushes the resulting events to UI clients. All
// decisions live in the game package; this loop only moves data between the
// layers.
package device

import (
	"context"
	"log"
	"sync"
	"time"

	"rayz-device/config"
	"rayz-device/control"
	"rayz-device/game"
	"rayz-device/peerlink"
	"rayz-device/wire"
)

// Device wires the transports to the game state.
type Device struct {
	state *game.State
	link  *peerlink.Link
	ctrl  *control.Server
	now   func() uint32

	// Trigger state, shared between the loop and the simulated hardware
	// inputs on the HTTP side.
	mu          sync.Mutex
	lastShotMs  uint32
	reloading   bool
	reloadEndMs uint32
}

// New builds the combat loop. now supplies milliseconds since boot and is
// shared with the control plane so every timestamp lands on one axis.
func New(state *game.State, link *peerlink.Link, ctrl *control.Server, now func() uint32) *Device {
	return &Device{state: state, link: link, ctrl: ctrl, now: now}
}

// Run ticks the combat loop until the context is cancelled.
func (d *Device) Run(ctx context.Context) {
	ticker := time.NewTicker(config.LOOP_INTERVAL)
	defer ticker.Stop()
	log.Printf("device: combat loop running every %v", config.LOOP_INTERVAL)
	for {
		select {
		case <-ticker.C:
			d.Tick()
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs one iteration of the combat loop: drain the receive queue, then
// poll the timed state transitions.
func (d *Device) Tick() {
	for {
		env, ok := d.link.Receive(0)
		if !ok {
			break
		}
		d.handlePeerMessage(env)
	}

	now := d.now()
	if d.state.CheckRespawn(now) {
		hearts := d.state.Runtime().HeartsRemaining
		log.Printf("device: respawn complete, hearts=%d", hearts)
		d.ctrl.Broadcast(control.BuildRespawn(hearts, now))
		d.ctrl.BroadcastStatus(false)
	}
	if d.state.CheckMatchOver(now) {
		log.Printf("device: match time limit reached")
		d.ctrl.Broadcast(control.BuildGameOver(d.state.Snapshot(), now))
		d.ctrl.BroadcastStatus(false)
	}
	if d.finishReload(now) {
		ammo := d.state.RefillAmmo()
		log.Printf("device: reload complete, ammo=%d", ammo)
		d.ctrl.Broadcast(control.BuildReloadEvent(ammo, now))
		d.ctrl.BroadcastStatus(false)
	}
	if d.state.HeartbeatDue(now) {
		d.state.TouchHeartbeat(now)
		d.broadcastHeartbeat(now)
	}
}

func (d *Device) handlePeerMessage(env peerlink.MessageEnvelope) {
	now := d.now()
	d.state.NoteRx(now)

	switch env.Msg.Type {
	case wire.MsgShot:
		d.handleShot(env.Msg, now)
	case wire.MsgHitEvent:
		// A peer announcing it was hit. When the shooter id inside the
		// payload is ours, our shot landed.
		shooter := uint8(env.Msg.Data & 0xFF)
		if shooter == d.state.Identity().PlayerID {
			d.state.RecordHit()
			d.ctrl.BroadcastStatus(false)
		}
	case wire.MsgHeartbeat:
		d.link.AddPeer(env.Source)
	}
}

// handleShot validates the embedded laser word and applies the hit.
func (d *Device) handleShot(msg wire.PeerMessage, nowMs uint32) {
	player, device, err := wire.DecodeLaser(msg.Data)
	if err != nil {
		log.Printf("device: dropping shot with corrupt laser word from player %d", msg.PlayerID)
		return
	}
	// The hash-checked laser word is authoritative; a header that disagrees
	// with it means corruption the per-field hashes cannot see.
	if player != msg.PlayerID || device != msg.DeviceID {
		log.Printf("device: dropping shot, header/laser mismatch (%d/%d vs %d/%d)",
			msg.PlayerID, msg.DeviceID, player, device)
		return
	}

	if d.state.Phase() != game.PhasePlaying || d.state.IsRespawning() {
		return
	}
	if player == d.state.Identity().PlayerID {
		return
	}

	friendly := d.state.IsFriendly(msg.TeamID, player)
	if friendly {
		if !d.state.FriendlyFireEnabled() {
			d.ctrl.Broadcast(control.BuildHitReport(player, msg.TeamID, true, nowMs))
			return
		}
		d.state.RecordFriendlyFire()
	}

	d.state.RecordDeath(nowMs)
	d.announceHit(player, nowMs)
	d.ctrl.Broadcast(control.BuildHitReport(player, msg.TeamID, friendly, nowMs))
	d.ctrl.BroadcastStatus(false)
}

// announceHit tells peers who hit us so the shooter can score it.
func (d *Device) announceHit(shooterPlayer uint8, nowMs uint32) {
	id := d.state.Identity()
	out := wire.PeerMessage{
		Type:        wire.MsgHitEvent,
		Version:     wire.ProtocolVersion,
		PlayerID:    id.PlayerID,
		DeviceID:    id.DeviceID,
		TeamID:      id.TeamID,
		ColorRGB:    id.ColorRGB,
		TimestampMs: nowMs,
		Data:        uint32(shooterPlayer),
	}
	if d.link.Broadcast(out) {
		d.state.NoteTx()
	}
}

// Fire emits one shot if the match and the rate limit allow it. It returns
// true when a shot actually left the device.
func (d *Device) Fire() bool {
	now := d.now()
	if d.state.Phase() != game.PhasePlaying || d.state.IsRespawning() {
		return false
	}
	cfg := d.state.Config()
	if !cfg.UnlimitedAmmo && d.state.Runtime().AmmoRemaining == 0 {
		return false
	}
	if !d.armTrigger(now, uint32(cfg.ShotRateLimitMs)) {
		return false
	}

	id := d.state.Identity()
	d.state.RecordShot()
	out := wire.PeerMessage{
		Type:        wire.MsgShot,
		Version:     wire.ProtocolVersion,
		PlayerID:    id.PlayerID,
		DeviceID:    id.DeviceID,
		TeamID:      id.TeamID,
		ColorRGB:    id.ColorRGB,
		TimestampMs: now,
		Data:        wire.EncodeLaser(id.PlayerID, id.DeviceID),
	}
	if d.link.Broadcast(out) {
		d.state.NoteTx()
	}
	d.ctrl.Broadcast(control.BuildShotFired(d.state.Runtime().ShotsFired, now))
	return true
}

// Reload starts the reload cycle. Ammo is restored when the cycle completes
// on a later tick, never immediately.
func (d *Device) Reload() bool {
	if d.state.Phase() != game.PhasePlaying || d.state.IsRespawning() {
		return false
	}
	cfg := d.state.Config()
	if cfg.UnlimitedAmmo {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reloading {
		return false
	}
	d.reloading = true
	d.reloadEndMs = d.now() + uint32(cfg.ReloadTimeMs)
	log.Printf("device: reload started, %dms", cfg.ReloadTimeMs)
	return true
}

// armTrigger claims the trigger for one shot, enforcing the rate limit and
// the reload lockout.
func (d *Device) armTrigger(nowMs, rateLimitMs uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reloading {
		return false
	}
	if d.lastShotMs != 0 && nowMs-d.lastShotMs < rateLimitMs {
		return false
	}
	d.lastShotMs = nowMs
	return true
}

// finishReload clears a completed reload cycle.
func (d *Device) finishReload(nowMs uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.reloading || nowMs < d.reloadEndMs {
		return false
	}
	d.reloading = false
	return true
}

func (d *Device) broadcastHeartbeat(nowMs uint32) {
	id := d.state.Identity()
	out := wire.PeerMessage{
		Type:        wire.MsgHeartbeat,
		Version:     wire.ProtocolVersion,
		PlayerID:    id.PlayerID,
		DeviceID:    id.DeviceID,
		TeamID:      id.TeamID,
		ColorRGB:    id.ColorRGB,
		TimestampMs: nowMs,
	}
	if d.link.Broadcast(out) {
		d.state.NoteTx()
	}
}
