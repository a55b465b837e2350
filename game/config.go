package game

// Valid ranges for the numeric tunables. Out-of-range input is clamped to
// the nearest bound, never rejected.
const (
	MinHearts      = 1
	MaxHeartsLimit = 99
	MaxTimeLimitS  = 7200
	MaxRespawnMs   = 30000
	MaxInvulnMs    = 30000
	MaxReloadMs    = 30000
	MinShotRateMs  = 50
	MaxShotRateMs  = 2000
)

// DefaultConfig returns the tunables a device boots with before any
// CONFIG_UPDATE arrives.
func DefaultConfig() GameConfig {
	return GameConfig{
		MaxHearts:         3,
		RespawnCooldownMs: 5000,
		InvulnerabilityMs: 2000,
		KillScore:         10,
		HitScore:          1,
		AssistScore:       5,
		ScoreToWin:        0, // 0 = no score limit
		TimeLimitS:        0, // 0 = no time limit
		MaxAmmo:           120,
		MagCapacity:       12,
		ReloadTimeMs:      1500,
		ShotRateLimitMs:   250,
	}
}

func clampU8(v uint8, lo, hi uint8) (uint8, bool) {
	if v < lo {
		return lo, true
	}
	if v > hi {
		return hi, true
	}
	return v, false
}

func clampU16(v uint16, lo, hi uint16) (uint16, bool) {
	if v < lo {
		return lo, true
	}
	if v > hi {
		return hi, true
	}
	return v, false
}

func clampU32(v uint32, lo, hi uint32) (uint32, bool) {
	if v < lo {
		return lo, true
	}
	if v > hi {
		return hi, true
	}
	return v, false
}

// clampConfig coerces every numeric field into its valid range and reports
// whether anything was out of range. Total, never fails.
func clampConfig(in GameConfig) (GameConfig, bool) {
	out := in
	clamped := false

	apply8 := func(v uint8, lo, hi uint8) uint8 {
		c, was := clampU8(v, lo, hi)
		clamped = clamped || was
		return c
	}
	apply16 := func(v uint16, lo, hi uint16) uint16 {
		c, was := clampU16(v, lo, hi)
		clamped = clamped || was
		return c
	}
	apply32 := func(v uint32, lo, hi uint32) uint32 {
		c, was := clampU32(v, lo, hi)
		clamped = clamped || was
		return c
	}

	out.MaxHearts = apply8(in.MaxHearts, MinHearts, MaxHeartsLimit)
	out.TimeLimitS = apply16(in.TimeLimitS, 0, MaxTimeLimitS)
	out.RespawnCooldownMs = apply32(in.RespawnCooldownMs, 0, MaxRespawnMs)
	out.InvulnerabilityMs = apply16(in.InvulnerabilityMs, 0, MaxInvulnMs)
	out.ReloadTimeMs = apply16(in.ReloadTimeMs, 0, MaxReloadMs)
	out.ShotRateLimitMs = apply16(in.ShotRateLimitMs, MinShotRateMs, MaxShotRateMs)
	// ScoreToWin, MaxAmmo and MagCapacity span their full integer types;
	// the clamp is a no-op kept for uniformity.
	out.ScoreToWin = apply16(in.ScoreToWin, 0, 65535)
	out.MaxAmmo = apply16(in.MaxAmmo, 0, 65535)
	out.MagCapacity = apply8(in.MagCapacity, 0, 255)

	return out, clamped
}
