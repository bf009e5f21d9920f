package recorder

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/keyprofile/internal/model"
)

func unscaled() model.RecorderConfig {
	cfg := DefaultConfig()
	cfg.ScaleFactor = 1
	return cfg
}

func TestSessionDerivesFourChannels(t *testing.T) {
	s := New(unscaled())
	s.Start()
	s.OnKeyDown("a", 0)
	s.OnKeyUp("a", 80)
	s.OnKeyDown("b", 150)
	s.OnKeyUp("b", 240)
	res := s.Stop()

	assert.Equal(t, []float64{150}, res.Series[model.PressPress])
	assert.Equal(t, []float64{160}, res.Series[model.ReleaseRelease])
	assert.Equal(t, []float64{80, 90}, res.Series[model.PressRelease])
	assert.Equal(t, []float64{70}, res.Series[model.ReleasePress])
	assert.Equal(t, 2, res.PressEvents)
	assert.Equal(t, 2, res.ReleaseEvents)
	assert.InDelta(t, 85.0, res.Summary[model.PressRelease].MeanMs, 1e-9)
	assert.Equal(t, 2, res.Summary[model.PressRelease].Count)
}

func TestSessionLifecycle(t *testing.T) {
	s := New(unscaled())
	assert.Equal(t, StateIdle, s.State())

	s.OnKeyDown("a", 0)
	s.OnKeyDown("b", 100)
	res := s.Stop()
	assert.Empty(t, res.Series[model.PressPress], "events before Start are ignored")

	s.Start()
	assert.Equal(t, StateRecording, s.State())
	s.OnKeyDown("a", 0)
	s.OnKeyDown("b", 100)
	res = s.Stop()
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, []float64{100}, res.Series[model.PressPress])

	s.OnKeyDown("c", 200)
	again := s.Stop()
	assert.Equal(t, res.Series, again.Series, "stopped session is frozen")

	s.Start()
	assert.Empty(t, s.Stop().Series[model.PressPress], "Start resets state")
}

func TestKeyUpWithoutKeyDownSkipsOnlyPressRelease(t *testing.T) {
	s := New(unscaled())
	s.Start()
	s.OnKeyUp("x", 10)
	s.OnKeyUp("y", 60)
	res := s.Stop()

	assert.Empty(t, res.Series[model.PressRelease])
	assert.Equal(t, []float64{50}, res.Series[model.ReleaseRelease])
}

func TestOutlierFilterUsesBounds(t *testing.T) {
	s := New(unscaled())
	s.Start()
	s.OnKeyDown("a", 0)
	s.OnKeyDown("b", 0)    // zero gap rejected
	s.OnKeyDown("c", 2500) // longer than default max gap
	s.OnKeyDown("d", 2600)
	s.OnKeyUp("d", 4000) // hold longer than default max hold
	res := s.Stop()

	assert.Equal(t, []float64{100}, res.Series[model.PressPress])
	assert.Empty(t, res.Series[model.PressRelease])

	cfg := unscaled()
	cfg.Bounds = map[model.Channel]model.Bounds{
		model.PressPress: {MinMs: 50, MaxMs: 5000},
	}
	s = New(cfg)
	s.Start()
	s.OnKeyDown("a", 0)
	s.OnKeyDown("b", 40)
	s.OnKeyDown("c", 2540)
	assert.Equal(t, []float64{2500}, s.Stop().Series[model.PressPress])
}

func TestPausesCountedBeforeFiltering(t *testing.T) {
	s := New(unscaled())
	s.Start()
	s.OnKeyDown("a", 0)
	s.OnKeyDown("b", 2500)
	s.OnKeyDown("c", 2600)
	s.OnKeyDown("d", 5000)
	s.OnKeyDown("e", 7000) // exactly the threshold is not a pause
	res := s.Stop()

	assert.Equal(t, 2, res.Pauses)
	assert.Equal(t, []float64{100}, res.Series[model.PressPress])

	s.Start()
	assert.Zero(t, s.Stop().Pauses)
}

func TestOutlierFilterDropsNonFiniteIntervals(t *testing.T) {
	s := New(unscaled())
	s.Start()
	s.OnKeyDown("a", math.NaN())
	s.OnKeyDown("b", 100)
	s.OnKeyDown("c", 220)
	s.OnKeyUp("c", math.Inf(1))
	res := s.Stop()

	assert.Equal(t, []float64{120}, res.Series[model.PressPress])
	assert.Empty(t, res.Series[model.PressRelease])
	assert.InDelta(t, 120, res.Summary[model.PressPress].MeanMs, 1e-9)
}

func TestNonFiniteConfigFallsBackToDefaults(t *testing.T) {
	cfg := model.RecorderConfig{
		ScaleFactor: math.NaN(),
		Bounds: map[model.Channel]model.Bounds{
			model.PressPress: {MinMs: math.NaN(), MaxMs: 10},
		},
	}
	s := New(cfg)
	s.Start()
	s.OnKeyDown("a", 0)
	s.OnKeyDown("b", 500)
	assert.Equal(t, []float64{500 * DefaultScaleFactor}, s.Stop().Series[model.PressPress])
}

func TestScaleFactorRoundsSamples(t *testing.T) {
	s := New(model.RecorderConfig{})
	s.Start()
	s.OnKeyDown("a", 0)
	s.OnKeyDown("b", 123.4567)
	res := s.Stop()

	require.Len(t, res.Series[model.PressPress], 1)
	assert.Equal(t, 123457.0, res.Series[model.PressPress][0])
	assert.InDelta(t, 123.457, res.Summary[model.PressPress].MeanMs, 1e-9)
}

func TestReplay(t *testing.T) {
	events := []model.Event{
		{Key: "h", Type: model.KeyDown, TimestampMs: 0},
		{Key: "h", Type: model.KeyUp, TimestampMs: 90},
		{Key: "i", Type: model.KeyDown, TimestampMs: 200},
		{Key: "i", Type: "bogus", TimestampMs: 250},
		{Key: "i", Type: model.KeyUp, TimestampMs: 280},
	}
	res := Replay(unscaled(), events, "hi")
	assert.Equal(t, "hi", res.Text)
	assert.Equal(t, []float64{200}, res.Series[model.PressPress])
	assert.Equal(t, []float64{90, 80}, res.Series[model.PressRelease])
	assert.Equal(t, []float64{110}, res.Series[model.ReleasePress])
	assert.Equal(t, []float64{190}, res.Series[model.ReleaseRelease])
}

func TestReplayAtSpansEvents(t *testing.T) {
	start := time.Unix(1700000000, 0)
	events := []model.Event{
		{Key: "a", Type: model.KeyDown, TimestampMs: 1000},
		{Key: "a", Type: model.KeyUp, TimestampMs: 2250},
	}
	res := ReplayAt(unscaled(), events, "a", start)
	assert.True(t, start.Equal(res.StartedAt))
	assert.Equal(t, int64(1250), res.DurationMs())

	res = Replay(unscaled(), events, "a")
	assert.Equal(t, int64(1250), res.DurationMs())
	assert.False(t, res.EndedAt.After(time.Now()))
}

func TestResultDuration(t *testing.T) {
	start := time.Unix(100, 0)
	res := Result{StartedAt: start, EndedAt: start.Add(1500 * time.Millisecond)}
	assert.Equal(t, int64(1500), res.DurationMs())
	assert.Equal(t, int64(0), Result{}.DurationMs())
}
