package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/verte-zerg/keyprofile/internal/features"
	"github.com/verte-zerg/keyprofile/internal/model"
)

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{2, 4, 6, 8}, 2)
	want := []float64{2, 3, 5, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: expected %.1f, got %.1f", i, want[i], got[i])
		}
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 9}); got != " @" {
		t.Fatalf("unexpected sparkline %q", got)
	}
	if got := Sparkline([]float64{3, 3, 3}); got != "+++" {
		t.Fatalf("unexpected flat sparkline %q", got)
	}
}

func TestRenderSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderSummary(&buf, nil); err != nil {
		t.Fatalf("render summary: %v", err)
	}
	if !strings.Contains(buf.String(), "No sessions") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestRenderPartitionTable(t *testing.T) {
	part := features.ChannelPartition{
		Channel: model.PressPress,
		Kind:    "dynamic",
		Bins:    []model.Bin{{Start: 98000, End: 120000, Count: 3}, {Start: 120000, End: 600000, Count: 1}},
		Samples: 4,
	}
	var buf bytes.Buffer
	if err := RenderPartitionTable(&buf, part, 1000); err != nil {
		t.Fatalf("render table: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Channel pp (dynamic, 4 samples)", "ppTime_[98000,120000]", "98.0", "600.0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderCurves(t *testing.T) {
	sessions := []model.SessionAggregate{
		{Summaries: map[model.Channel]model.ChannelSummary{model.PressPress: {MeanMs: 200}, model.PressRelease: {MeanMs: 90}}},
		{Summaries: map[model.Channel]model.ChannelSummary{model.PressPress: {MeanMs: 180}, model.PressRelease: {MeanMs: 85}}},
	}
	var buf bytes.Buffer
	if err := RenderCurvesWithSize(&buf, sessions, 2, 60, 4, false); err != nil {
		t.Fatalf("render curves: %v", err)
	}
	if !strings.Contains(buf.String(), "Timing Trends") {
		t.Fatalf("expected trends title")
	}
}
