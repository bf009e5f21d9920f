// Package features converts interval series into the flat histogram
// mapping consumed by the keystroke classifier.
package features

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/verte-zerg/keyprofile/internal/binner"
	"github.com/verte-zerg/keyprofile/internal/model"
)

// EndMarker is the key suffix of the per-channel terminal entry.
const EndMarker = "END"

// Entry is one key of the feature mapping.
type Entry struct {
	Key   string
	Count int
}

// ChannelPartition carries the bins used for one channel.
type ChannelPartition struct {
	Channel   model.Channel `json:"channel"`
	Kind      string        `json:"kind"`
	Bins      []model.Bin   `json:"bins"`
	Samples   int           `json:"samples"`
	Fallbacks int           `json:"fallbacks"`
}

// Document is the ordered feature mapping plus its boundary metadata.
type Document struct {
	Entries    []Entry
	Partitions []ChannelPartition
}

// Assign returns the index of the bin holding sample. Bins are inclusive at
// both ends and the first match wins, so a sample on a shared boundary
// lands in the lower bin. When no bin matches, the nearest bin by boundary
// distance is returned with matched set to false.
func Assign(sample float64, bins []model.Bin) (idx int, matched bool) {
	for i, b := range bins {
		if float64(b.Start) <= sample && sample <= float64(b.End) {
			return i, true
		}
	}
	best := -1
	bestDist := 0.0
	for i, b := range bins {
		d := distance(sample, b)
		if best == -1 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, false
}

func distance(sample float64, b model.Bin) float64 {
	if sample < float64(b.Start) {
		return float64(b.Start) - sample
	}
	return sample - float64(b.End)
}

// Histogram counts samples into bins and reports how many needed the
// nearest-bin fallback. The returned bins are copies.
func Histogram(samples []float64, bins []model.Bin) ([]model.Bin, int) {
	out := make([]model.Bin, len(bins))
	copy(out, bins)
	for i := range out {
		out[i].Count = 0
	}
	if len(out) == 0 {
		return out, 0
	}
	fallbacks := 0
	for _, s := range samples {
		idx, ok := Assign(s, out)
		if !ok {
			fallbacks++
		}
		out[idx].Count++
	}
	return out, fallbacks
}

// Label formats the key for a bin of a channel.
func Label(ch model.Channel, b model.Bin) string {
	return fmt.Sprintf("%sTime_[%d,%d]", ch, b.Start, b.End)
}

// EndLabel formats the terminal key of a channel.
func EndLabel(ch model.Channel) string {
	return fmt.Sprintf("%sTime_%s", ch, EndMarker)
}

// Transform bins every channel and builds the feature document.
func Transform(series model.Series, cfg binner.Config) Document {
	doc := Document{
		Entries:    make([]Entry, 0, len(model.Channels)*(cfg.Normalized().Total+1)),
		Partitions: make([]ChannelPartition, 0, len(model.Channels)),
	}
	for _, ch := range model.Channels {
		samples := series[ch]
		p := binner.Build(samples, cfg)
		bins, fallbacks := Histogram(samples, p.Bins)
		if fallbacks > 0 {
			slog.Warn("samples outside partition assigned to nearest bin",
				"channel", string(ch),
				"count", fallbacks,
			)
		}
		for _, b := range bins {
			doc.Entries = append(doc.Entries, Entry{Key: Label(ch, b), Count: b.Count})
		}
		doc.Entries = append(doc.Entries, Entry{Key: EndLabel(ch), Count: 0})
		doc.Partitions = append(doc.Partitions, ChannelPartition{
			Channel:   ch,
			Kind:      p.Kind.String(),
			Bins:      bins,
			Samples:   len(samples),
			Fallbacks: fallbacks,
		})
	}
	return doc
}

// FromPartitions rebuilds a document from already counted partitions.
func FromPartitions(parts []ChannelPartition) Document {
	doc := Document{Partitions: parts}
	for _, p := range parts {
		for _, b := range p.Bins {
			doc.Entries = append(doc.Entries, Entry{Key: Label(p.Channel, b), Count: b.Count})
		}
		doc.Entries = append(doc.Entries, Entry{Key: EndLabel(p.Channel), Count: 0})
	}
	return doc
}

// Partition returns the partition of a channel, if present.
func (d Document) Partition(ch model.Channel) (ChannelPartition, bool) {
	for _, p := range d.Partitions {
		if p.Channel == ch {
			return p, true
		}
	}
	return ChannelPartition{}, false
}

// Vector returns the bin counts in entry order, without terminal markers.
func (d Document) Vector() []int {
	out := make([]int, 0, len(d.Entries))
	for _, p := range d.Partitions {
		for _, b := range p.Bins {
			out = append(out, b.Count)
		}
	}
	return out
}

// Map returns the entries as an unordered map.
func (d Document) Map() map[string]int {
	out := make(map[string]int, len(d.Entries))
	for _, e := range d.Entries {
		out[e.Key] = e.Count
	}
	return out
}

// MarshalJSON writes the entries as a flat object in insertion order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range d.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", e.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
