package stats

import (
	"math"
	"testing"

	"github.com/verte-zerg/keyprofile/internal/model"
)

func TestComputeMetrics(t *testing.T) {
	series := model.Series{
		model.PressPress:   {200000, 220000, 210000, 2500000, 180000},
		model.PressRelease: {90000, 95000},
	}
	m := ComputeMetrics(series, 1000, 12)

	if got := m.Averages[model.PressPress]; math.Abs(got-662) > 1e-9 {
		t.Fatalf("expected pp average 662, got %.3f", got)
	}
	if m.SpeedCategory != SpeedModerate {
		t.Fatalf("expected moderate speed, got %s", m.SpeedCategory)
	}
	if m.Pauses != 1 {
		t.Fatalf("expected 1 pause, got %d", m.Pauses)
	}
	if m.Bursts != 2 {
		t.Fatalf("expected 2 bursts, got %d", m.Bursts)
	}
	if m.Regular {
		t.Fatalf("expected irregular rhythm")
	}
	wantCPS := 12 / 3.31
	if math.Abs(m.CharsPerSecond-wantCPS) > 1e-9 {
		t.Fatalf("expected cps %.4f, got %.4f", wantCPS, m.CharsPerSecond)
	}
}

func TestComputeMetricsEmpty(t *testing.T) {
	m := ComputeMetrics(model.Series{}, 0, 0)
	if m.CharsPerSecond != 0 {
		t.Fatalf("expected zero cps, got %f", m.CharsPerSecond)
	}
	if m.SpeedCategory != SpeedFast {
		t.Fatalf("expected fast category for no data, got %s", m.SpeedCategory)
	}
	if m.OverallConsistency != 1 {
		t.Fatalf("expected overall consistency 1, got %f", m.OverallConsistency)
	}
}

func TestConsistency(t *testing.T) {
	if got := Consistency([]float64{100, 100, 100}); got != 1 {
		t.Fatalf("expected 1 for constant gaps, got %f", got)
	}
	if got := Consistency([]float64{0, 0, 0, 100}); got != 0 {
		t.Fatalf("expected clamp to 0, got %f", got)
	}
	got := Consistency([]float64{90, 110})
	if math.Abs(got-0.9) > 1e-9 {
		t.Fatalf("expected 0.9, got %f", got)
	}
}

func TestSpeedCategory(t *testing.T) {
	cases := map[float64]string{
		150:  SpeedFast,
		500:  SpeedModerate,
		1999: SpeedModerate,
		2000: SpeedSlow,
	}
	for gap, want := range cases {
		if got := SpeedCategory(gap); got != want {
			t.Fatalf("gap %.0f: expected %s, got %s", gap, want, got)
		}
	}
}
