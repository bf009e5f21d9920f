package stats

import (
	"testing"
	"unicode/utf8"
)

func TestPlotWidthFor(t *testing.T) {
	axisWidth := axisLabelWidth + utf8.RuneCountInString(axisSeparator)
	total := 80
	expected := total - axisWidth
	if got := PlotWidthFor(total); got != expected {
		t.Fatalf("expected width %d, got %d", expected, got)
	}
	if got := PlotWidthFor(0); got != minPlotWidth {
		t.Fatalf("expected min width %d, got %d", minPlotWidth, got)
	}
	if got := PlotWidthFor(12); got != minPlotWidth {
		t.Fatalf("expected clamp to %d, got %d", minPlotWidth, got)
	}
}

func TestCompactNumber(t *testing.T) {
	cases := map[float64]string{
		2.5:     "2.5",
		420:     "420",
		98000:   "98.0k",
		2500000: "2.5M",
	}
	for in, want := range cases {
		if got := compactNumber(in); got != want {
			t.Fatalf("compactNumber(%v): expected %q, got %q", in, want, got)
		}
	}
}
