// Package binner builds fixed-size bin partitions around the densest part
// of an interval series.
package binner

import (
	"math"

	"github.com/verte-zerg/keyprofile/internal/model"
)

// Defaults for partition construction.
const (
	DefaultTempBins     = 50
	DefaultWindow       = 10
	DefaultCoarse       = 3
	DefaultFine         = 10
	DefaultTotal        = 16
	DefaultDefaultWidth = 100000
)

// Kind tells which construction produced a partition.
type Kind int

// Partition kinds.
const (
	KindDynamic Kind = iota
	KindDefault
	KindDegenerate
)

func (k Kind) String() string {
	switch k {
	case KindDynamic:
		return "dynamic"
	case KindDefault:
		return "default"
	case KindDegenerate:
		return "degenerate"
	default:
		return "unknown"
	}
}

// Config controls partition construction.
type Config struct {
	TempBins     int
	Window       int
	Coarse       int
	Fine         int
	Total        int
	DefaultWidth int64
}

// DefaultConfig returns the parameters the downstream classifier expects.
func DefaultConfig() Config {
	return Config{
		TempBins:     DefaultTempBins,
		Window:       DefaultWindow,
		Coarse:       DefaultCoarse,
		Fine:         DefaultFine,
		Total:        DefaultTotal,
		DefaultWidth: DefaultDefaultWidth,
	}
}

// Normalized fills zero or invalid fields with defaults.
func (c Config) Normalized() Config {
	d := DefaultConfig()
	if c.TempBins <= 0 {
		c.TempBins = d.TempBins
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.Window > c.TempBins {
		c.Window = c.TempBins
	}
	if c.Coarse <= 0 {
		c.Coarse = d.Coarse
	}
	if c.Fine <= 0 {
		c.Fine = d.Fine
	}
	if c.Total <= 0 {
		c.Total = d.Total
	}
	if c.DefaultWidth <= 0 {
		c.DefaultWidth = d.DefaultWidth
	}
	return c
}

// Window is the run of temporary bins with the highest sample count.
type Window struct {
	Start      int
	Count      int
	DenseStart float64
	DenseEnd   float64
}

// Partition is the result of Build. Bins always has cfg.Total entries with
// zero counts; boundaries are integers, contiguous and strictly increasing.
type Partition struct {
	Kind       Kind
	Bins       []model.Bin
	Window     Window
	TempCounts []int
}

type span struct {
	start float64
	end   float64
}

// MaxSample bounds sample magnitude. Integers up to 2^53 are exact in
// float64, so boundaries derived from them fit int64 without wrapping.
const MaxSample = 1 << 53

// Build computes the partition for one series. Non-finite samples are
// ignored and larger magnitudes are clamped to MaxSample.
func Build(values []float64, cfg Config) Partition {
	cfg = cfg.Normalized()
	values = finiteClamped(values)
	if len(values) == 0 {
		return Partition{Kind: KindDefault, Bins: DefaultBins(cfg)}
	}
	lo, hi := minMax(values)
	if !(hi > lo) {
		return Partition{Kind: KindDegenerate, Bins: degenerateBins(lo, cfg.Total)}
	}

	temp := tempHistogram(values, lo, hi, cfg.TempBins)
	win := densestWindow(temp, cfg.Window)
	width := (hi - lo) / float64(cfg.TempBins)
	win.DenseStart = lo + float64(win.Start)*width
	if win.Start == 0 {
		win.DenseStart = lo
	}
	win.DenseEnd = lo + float64(win.Start+cfg.Window)*width
	if win.Start+cfg.Window == cfg.TempBins {
		win.DenseEnd = hi
	}

	spans := make([]span, 0, cfg.Total+cfg.Coarse)
	if win.DenseStart > lo {
		spans = appendEven(spans, lo, win.DenseStart, cfg.Coarse)
	}
	spans = appendEven(spans, win.DenseStart, win.DenseEnd, cfg.Fine)
	if hi > win.DenseEnd {
		spans = appendEven(spans, win.DenseEnd, hi, cfg.Coarse)
	}
	spans = fitCount(spans, cfg.Total)

	return Partition{
		Kind:       KindDynamic,
		Bins:       roundSpans(spans),
		Window:     win,
		TempCounts: temp,
	}
}

// DefaultBins returns the fixed partition used for empty series.
func DefaultBins(cfg Config) []model.Bin {
	cfg = cfg.Normalized()
	bins := make([]model.Bin, cfg.Total)
	for i := range bins {
		bins[i] = model.Bin{
			Start: int64(i) * cfg.DefaultWidth,
			End:   int64(i+1) * cfg.DefaultWidth,
		}
	}
	return bins
}

// degenerateBins spreads unit-width bins around a single value.
func degenerateBins(v float64, total int) []model.Bin {
	base := int64(math.Floor(v)) - int64(total/2)
	bins := make([]model.Bin, total)
	for i := range bins {
		bins[i] = model.Bin{Start: base + int64(i), End: base + int64(i) + 1}
	}
	return bins
}

func finiteClamped(values []float64) []float64 {
	clean := true
	for _, v := range values {
		if !isUsable(v) {
			clean = false
			break
		}
	}
	if clean {
		return values
	}
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, math.Max(-MaxSample, math.Min(MaxSample, v)))
	}
	return out
}

func isUsable(v float64) bool {
	return !math.IsNaN(v) && math.Abs(v) <= MaxSample
}

func minMax(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func tempHistogram(values []float64, lo, hi float64, n int) []int {
	counts := make([]int, n)
	width := (hi - lo) / float64(n)
	for _, v := range values {
		idx := int(math.Floor((v - lo) / width))
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		counts[idx]++
	}
	return counts
}

// densestWindow returns the first window with the maximum total.
func densestWindow(counts []int, size int) Window {
	best := Window{Count: -1}
	sum := 0
	for i, c := range counts {
		sum += c
		if i >= size {
			sum -= counts[i-size]
		}
		if i < size-1 {
			continue
		}
		if sum > best.Count {
			best.Count = sum
			best.Start = i - size + 1
		}
	}
	return best
}

func appendEven(spans []span, start, end float64, n int) []span {
	step := (end - start) / float64(n)
	for i := 0; i < n; i++ {
		s := span{start: start + float64(i)*step, end: start + float64(i+1)*step}
		if i == n-1 {
			s.end = end
		}
		spans = append(spans, s)
	}
	return spans
}

// fitCount bisects the last span or merges the middle span into a
// neighbour until exactly total spans remain.
func fitCount(spans []span, total int) []span {
	for len(spans) < total {
		last := spans[len(spans)-1]
		mid := last.start + (last.end-last.start)/2
		spans[len(spans)-1] = span{start: last.start, end: mid}
		spans = append(spans, span{start: mid, end: last.end})
	}
	for len(spans) > total {
		i := len(spans) / 2
		if i == len(spans)-1 {
			i--
		}
		spans[i] = span{start: spans[i].start, end: spans[i+1].end}
		spans = append(spans[:i+1], spans[i+2:]...)
	}
	return spans
}

// roundSpans converts contiguous float spans into integer bins, nudging
// edges so every bin is at least one unit wide.
func roundSpans(spans []span) []model.Bin {
	edges := make([]int64, len(spans)+1)
	edges[0] = int64(math.Round(spans[0].start))
	for i, s := range spans {
		e := int64(math.Round(s.end))
		if e <= edges[i] {
			e = edges[i] + 1
		}
		edges[i+1] = e
	}
	bins := make([]model.Bin, len(spans))
	for i := range bins {
		bins[i] = model.Bin{Start: edges[i], End: edges[i+1]}
	}
	return bins
}
