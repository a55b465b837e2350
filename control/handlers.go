package control

import (
	"encoding/json"
	"log"
)

// handleMessage dispatches one inbound client frame. Malformed frames and
// unknown opcodes are dropped without disturbing the connection.
func (s *Server) handleMessage(c *wsClient, raw []byte) {
	var msg inboundMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("control: client %s: malformed frame: %v", c.handle, err)
		return
	}

	switch msg.Op {
	case OpGetStatus:
		s.Send(c.handle, BuildStatus(s.state.Snapshot(), s.now(), false))

	case OpHeartbeat:
		s.state.TouchHeartbeat(s.now())
		s.Send(c.handle, BuildHeartbeatAck(s.now()))

	case OpConfigUpdate:
		s.applyConfigUpdate(c, msg)

	case OpGameCommand:
		s.applyGameCommand(c, msg)

	case OpKillConfirmed:
		s.state.RecordKill()
		s.BroadcastStatus(false)

	default:
		log.Printf("control: client %s: unknown op %d", c.handle, msg.Op)
	}
}

// applyConfigUpdate merges the named fields over the current identity and
// config, persists, and broadcasts the resulting status. Fields the frame
// does not carry keep their stored values.
func (s *Server) applyConfigUpdate(c *wsClient, msg inboundMsg) {
	id := s.state.Identity()
	if msg.DeviceID != nil {
		id.DeviceID = *msg.DeviceID
	}
	if msg.PlayerID != nil {
		id.PlayerID = *msg.PlayerID
	}
	if msg.TeamID != nil {
		id.TeamID = *msg.TeamID
	}
	if msg.ColorRGB != nil {
		id.ColorRGB = *msg.ColorRGB
	}
	if msg.DeviceName != nil {
		id.DeviceName = *msg.DeviceName
	}
	if msg.Teammates != nil {
		id.Teammates = *msg.Teammates
	}
	if msg.Enemies != nil {
		id.Enemies = *msg.Enemies
	}
	if err := s.state.SetIdentity(id); err != nil {
		log.Printf("control: persisting identity failed: %v", err)
	}

	cfg := s.state.Config()
	if msg.MaxHearts != nil {
		cfg.MaxHearts = *msg.MaxHearts
	}
	if msg.RespawnCooldownMs != nil {
		cfg.RespawnCooldownMs = *msg.RespawnCooldownMs
	}
	if msg.InvulnerabilityMs != nil {
		cfg.InvulnerabilityMs = *msg.InvulnerabilityMs
	}
	if msg.KillScore != nil {
		cfg.KillScore = *msg.KillScore
	}
	if msg.HitScore != nil {
		cfg.HitScore = *msg.HitScore
	}
	if msg.AssistScore != nil {
		cfg.AssistScore = *msg.AssistScore
	}
	if msg.ScoreToWin != nil {
		cfg.ScoreToWin = *msg.ScoreToWin
	}
	if msg.TimeLimitS != nil {
		cfg.TimeLimitS = *msg.TimeLimitS
	}
	if msg.MaxAmmo != nil {
		cfg.MaxAmmo = *msg.MaxAmmo
	}
	if msg.MagCapacity != nil {
		cfg.MagCapacity = *msg.MagCapacity
	}
	if msg.ReloadTimeMs != nil {
		cfg.ReloadTimeMs = *msg.ReloadTimeMs
	}
	if msg.ShotRateLimitMs != nil {
		cfg.ShotRateLimitMs = *msg.ShotRateLimitMs
	}
	if msg.TeamPlay != nil {
		cfg.TeamPlay = *msg.TeamPlay
	}
	if msg.FriendlyFireEnabled != nil {
		cfg.FriendlyFireEnabled = *msg.FriendlyFireEnabled
	}
	if msg.UnlimitedAmmo != nil {
		cfg.UnlimitedAmmo = *msg.UnlimitedAmmo
	}
	if msg.UnlimitedRespawn != nil {
		cfg.UnlimitedRespawn = *msg.UnlimitedRespawn
	}
	_, clamped := s.state.ApplyConfig(cfg)
	if clamped {
		log.Printf("control: client %s: config update clamped into range", c.handle)
	}
	s.BroadcastStatus(clamped)
}

func (s *Server) applyGameCommand(c *wsClient, msg inboundMsg) {
	if msg.Command == nil {
		log.Printf("control: client %s: game command without command field", c.handle)
		return
	}
	switch *msg.Command {
	case CmdStop:
		s.state.StopMatch()
	case CmdStart:
		s.state.StartMatch(s.now())
	case CmdReset:
		s.state.ResetStats()
	case CmdPause:
		s.state.Pause()
	case CmdUnpause:
		s.state.Unpause()
	default:
		log.Printf("control: client %s: unknown game command %d", c.handle, *msg.Command)
		return
	}
	s.BroadcastStatus(false)
}
