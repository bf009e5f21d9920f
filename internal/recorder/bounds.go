package recorder

import (
	"math"

	"github.com/verte-zerg/keyprofile/internal/model"
)

// Plausible interval ranges in milliseconds, both ends exclusive.
const (
	DefaultMaxGapMs  = 2000
	DefaultMaxHoldMs = 1000
)

// PauseGapMs is the press-press gap above which a pause is counted. Pauses
// are counted before filtering, since the default bound drops such gaps.
const PauseGapMs = 2000

// DefaultBounds returns the outlier filter used when none is configured.
// Hold times (pr) are capped lower than gaps between keys.
func DefaultBounds() map[model.Channel]model.Bounds {
	return map[model.Channel]model.Bounds{
		model.PressPress:     {MinMs: 0, MaxMs: DefaultMaxGapMs},
		model.ReleaseRelease: {MinMs: 0, MaxMs: DefaultMaxGapMs},
		model.PressRelease:   {MinMs: 0, MaxMs: DefaultMaxHoldMs},
		model.ReleasePress:   {MinMs: 0, MaxMs: DefaultMaxGapMs},
	}
}

// DefaultConfig returns the recorder defaults.
func DefaultConfig() model.RecorderConfig {
	return model.RecorderConfig{
		ScaleFactor: DefaultScaleFactor,
		Bounds:      DefaultBounds(),
	}
}

func normalizeConfig(cfg model.RecorderConfig) model.RecorderConfig {
	if !(cfg.ScaleFactor > 0) || math.IsInf(cfg.ScaleFactor, 0) {
		cfg.ScaleFactor = DefaultScaleFactor
	}
	bounds := DefaultBounds()
	for ch, b := range cfg.Bounds {
		if !(b.MaxMs > b.MinMs) || math.IsNaN(b.MinMs) {
			continue
		}
		bounds[ch] = b
	}
	cfg.Bounds = bounds
	return cfg
}
