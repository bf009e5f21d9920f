// Package stats contains rhythm calculations and text reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/verte-zerg/keyprofile/internal/features"
	"github.com/verte-zerg/keyprofile/internal/model"
)

const sparkChars = " .:-=+*#%@"

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var total float64
	for i := 0; i < len(values); i++ {
		total += values[i]
		if i >= window {
			total -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = total / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := seriesMinMaxSingle(values)
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderSummary prints a summary of stored sessions.
func RenderSummary(w io.Writer, sessions []model.SessionAggregate) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	var totalPP, totalPR float64
	var keys int
	fastest := math.Inf(1)
	for _, s := range sessions {
		pp := s.Summaries[model.PressPress].MeanMs
		totalPP += pp
		totalPR += s.Summaries[model.PressRelease].MeanMs
		keys += s.PressEvents
		if pp > 0 && pp < fastest {
			fastest = pp
		}
	}
	if math.IsInf(fastest, 1) {
		fastest = 0
	}
	count := float64(len(sessions))
	lines := []string{
		"Summary",
		fmt.Sprintf("Sessions: %d", len(sessions)),
		fmt.Sprintf("Key presses: %d", keys),
		fmt.Sprintf("Avg press-press: %.1f ms", totalPP/count),
		fmt.Sprintf("Fastest press-press: %.1f ms", fastest),
		fmt.Sprintf("Avg hold: %.1f ms", totalPR/count),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderMetrics prints the rhythm metrics of a single session.
func RenderMetrics(w io.Writer, m Metrics) error {
	headers := []string{"Metric", "Value"}
	rows := [][]string{
		{"Speed", fmt.Sprintf("%.2f cps (%s)", m.CharsPerSecond, m.SpeedCategory)},
		{"Consistency", fmt.Sprintf("%.2f", m.Consistency)},
		{"Overall consistency", fmt.Sprintf("%.2f", m.OverallConsistency)},
		{"Regular rhythm", fmt.Sprintf("%t", m.Regular)},
		{"Bursts", fmt.Sprintf("%d", m.Bursts)},
		{"Pauses", fmt.Sprintf("%d", m.Pauses)},
	}
	for _, ch := range model.Channels {
		rows = append(rows, []string{
			fmt.Sprintf("Avg %s", ch),
			fmt.Sprintf("%.1f ms", m.Averages[ch]),
		})
	}
	for _, line := range formatTable(headers, rows, map[int]bool{1: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderPartitionTable prints the bins of one channel with their counts.
func RenderPartitionTable(w io.Writer, p features.ChannelPartition, scale float64) error {
	if scale <= 0 {
		scale = 1
	}
	title := fmt.Sprintf("Channel %s (%s, %d samples)", p.Channel, p.Kind, p.Samples)
	if p.Fallbacks > 0 {
		title += fmt.Sprintf(", %d nearest-bin", p.Fallbacks)
	}
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	maxCount := 0
	for _, b := range p.Bins {
		if b.Count > maxCount {
			maxCount = b.Count
		}
	}
	headers := []string{"#", "Key", "From (ms)", "To (ms)", "Count", ""}
	rows := make([][]string, 0, len(p.Bins))
	for i, b := range p.Bins {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i),
			features.Label(p.Channel, b),
			fmt.Sprintf("%.1f", float64(b.Start)/scale),
			fmt.Sprintf("%.1f", float64(b.End)/scale),
			fmt.Sprintf("%d", b.Count),
			bar(b.Count, maxCount, 20),
		})
	}
	rightAlign := map[int]bool{0: true, 2: true, 3: true, 4: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderHistograms plots the bin counts of every partition.
func RenderHistograms(w io.Writer, parts []features.ChannelPartition, totalWidth, height int, useColor bool) error {
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	for _, p := range parts {
		counts := make([]float64, len(p.Bins))
		for i, b := range p.Bins {
			counts[i] = float64(b.Count)
		}
		title := fmt.Sprintf("%s histogram %s", p.Channel, Sparkline(counts))
		if err := PlotSeriesWithColor(w, title, []Series{{Name: string(p.Channel), Values: counts}}, width, height, useColor); err != nil {
			return err
		}
	}
	return nil
}

// RenderCurves prints trends of mean press-press and hold times.
func RenderCurves(w io.Writer, sessions []model.SessionAggregate, window int) error {
	return RenderCurvesWithSize(w, sessions, window, 0, defaultPlotHeight, false)
}

// RenderCurvesWithSize prints trend curves sized to a given total width.
func RenderCurvesWithSize(w io.Writer, sessions []model.SessionAggregate, window, totalWidth, height int, useColor bool) error {
	if len(sessions) == 0 {
		return nil
	}
	pp := make([]float64, len(sessions))
	pr := make([]float64, len(sessions))
	for i, s := range sessions {
		pp[i] = s.Summaries[model.PressPress].MeanMs
		pr[i] = s.Summaries[model.PressRelease].MeanMs
	}
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	return PlotSeriesWithColor(w, "Timing Trends", []Series{
		{Name: "Press-press (ms)", Values: MovingAverage(pp, window)},
		{Name: "Hold (ms)", Values: MovingAverage(pr, window)},
	}, width, height, useColor)
}

func bar(count, maxCount, width int) string {
	if maxCount <= 0 || count <= 0 {
		return ""
	}
	n := int(math.Round(float64(count) / float64(maxCount) * float64(width)))
	if n < 1 {
		n = 1
	}
	return strings.Repeat("#", n)
}
