package stats

import (
	"math"

	"github.com/verte-zerg/keyprofile/internal/model"
)

// Speed thresholds on the mean press-press gap, in milliseconds.
const (
	SlowGapMs        = 2000
	ModerateGapMs    = 500
	regularVariation = 100
)

// Speed categories.
const (
	SpeedSlow     = "slow"
	SpeedModerate = "moderate"
	SpeedFast     = "fast"
)

// Metrics describes the rhythm of one session. Times are in milliseconds.
type Metrics struct {
	CharsPerSecond     float64                   `json:"cps"`
	SpeedCategory      string                    `json:"speed_category"`
	Averages           map[model.Channel]float64 `json:"averages"`
	Consistency        float64                   `json:"consistency"`
	Regular            bool                      `json:"regular"`
	Bursts             int                       `json:"bursts"`
	Pauses             int                       `json:"pauses"`
	OverallConsistency float64                   `json:"overall_consistency"`
}

// ComputeMetrics derives rhythm metrics from scaled series.
func ComputeMetrics(series model.Series, scale float64, textLength int) Metrics {
	if scale <= 0 {
		scale = 1
	}
	ms := make(map[model.Channel][]float64, len(model.Channels))
	for _, ch := range model.Channels {
		values := make([]float64, len(series[ch]))
		for i, v := range series[ch] {
			values[i] = v / scale
		}
		ms[ch] = values
	}
	pp := ms[model.PressPress]

	m := Metrics{Averages: make(map[model.Channel]float64, len(model.Channels))}
	for _, ch := range model.Channels {
		m.Averages[ch] = Mean(ms[ch])
	}
	total := sum(pp)
	if total > 0 {
		m.CharsPerSecond = float64(textLength) / (total / 1000)
	}
	m.SpeedCategory = SpeedCategory(m.Averages[model.PressPress])
	m.Consistency = Consistency(pp)
	m.Regular = isRegular(pp)
	m.Bursts = countBursts(pp)
	m.Pauses = countPauses(pp)

	var overall float64
	for _, ch := range model.Channels {
		overall += Consistency(ms[ch])
	}
	m.OverallConsistency = overall / float64(len(model.Channels))
	return m
}

// SpeedCategory classifies a mean press-press gap.
func SpeedCategory(meanGapMs float64) string {
	switch {
	case meanGapMs >= SlowGapMs:
		return SpeedSlow
	case meanGapMs >= ModerateGapMs:
		return SpeedModerate
	default:
		return SpeedFast
	}
}

// Consistency maps the coefficient of variation onto 0..1, where 1 is
// perfectly even. Fewer than two values count as fully consistent.
func Consistency(values []float64) float64 {
	if len(values) < 2 {
		return 1
	}
	mean := Mean(values)
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Max(0, 1-math.Sqrt(variance)/mean)
}

// Mean returns the arithmetic mean, or 0 for no values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func isRegular(gaps []float64) bool {
	if len(gaps) < 2 {
		return false
	}
	diffs := make([]float64, 0, len(gaps)-1)
	for i := 1; i < len(gaps); i++ {
		diffs = append(diffs, math.Abs(gaps[i]-gaps[i-1]))
	}
	return Mean(diffs) < regularVariation
}

// countBursts counts runs of gaps shorter than the moderate threshold.
// The first gap opens no burst.
func countBursts(gaps []float64) int {
	bursts := 0
	inBurst := false
	for i := 1; i < len(gaps); i++ {
		if gaps[i] < ModerateGapMs {
			if !inBurst {
				bursts++
				inBurst = true
			}
			continue
		}
		inBurst = false
	}
	return bursts
}

func countPauses(gaps []float64) int {
	pauses := 0
	for _, g := range gaps {
		if g > SlowGapMs {
			pauses++
		}
	}
	return pauses
}
