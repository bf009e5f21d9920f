// Package model defines shared data structures.
package model

import "time"

// Channel identifies one of the four keystroke interval series.
type Channel string

// Interval channels.
const (
	PressPress     Channel = "pp"
	ReleaseRelease Channel = "rr"
	PressRelease   Channel = "pr"
	ReleasePress   Channel = "rp"
)

// Channels lists the interval channels in canonical order.
var Channels = []Channel{PressPress, ReleaseRelease, PressRelease, ReleasePress}

// ParseChannel returns the channel for a short name.
func ParseChannel(s string) (Channel, bool) {
	for _, ch := range Channels {
		if string(ch) == s {
			return ch, true
		}
	}
	return "", false
}

// EventType is the kind of key event.
type EventType string

// Key event types.
const (
	KeyDown EventType = "down"
	KeyUp   EventType = "up"
)

// Event is a single key event at a timestamp in milliseconds.
type Event struct {
	Key         string    `json:"key"`
	Type        EventType `json:"type"`
	TimestampMs float64   `json:"t"`
}

// Series maps each channel to its interval samples (ms times the scale factor).
type Series map[Channel][]float64

// Bin is one interval of a partition with its sample count.
type Bin struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
	Count int   `json:"count"`
}

// ChannelSummary holds per-channel descriptive statistics.
type ChannelSummary struct {
	Count  int     `json:"count"`
	MeanMs float64 `json:"mean_ms"`
}

// Bounds is an exclusive plausible range for an interval in milliseconds.
type Bounds struct {
	MinMs float64
	MaxMs float64
}

// RecorderConfig defines recording settings.
type RecorderConfig struct {
	ScaleFactor float64
	Bounds      map[Channel]Bounds
}

// PracticeConfig defines prompt generation settings for terminal sessions.
type PracticeConfig struct {
	Words        int
	CapsPct      float64
	PunctPct     float64
	PunctSet     string
	WordListPath string
	Keys         string
	MaxWordLen   int
	Save         bool
}

// StatsConfig defines filters and options for stats output.
type StatsConfig struct {
	Source      string
	Since       *time.Time
	Last        int
	CurveWindow int
}

// ChannelRecord is the stored form of one channel of a session.
type ChannelRecord struct {
	Channel Channel
	Kind    string
	Summary ChannelSummary
	Samples []float64
	Bins    []Bin
}

// Session sources.
const (
	SourceTerminal = "terminal"
	SourceAPI      = "api"
	SourceFile     = "file"
)

// SessionRecord captures a completed recording session.
type SessionRecord struct {
	ID            int64
	Ref           string
	StartedAt     time.Time
	EndedAt       time.Time
	Source        string
	Text          string
	ScaleFactor   float64
	PressEvents   int
	ReleaseEvents int
	Pauses        int
	FeaturesJSON  []byte
	Channels      []ChannelRecord
}

// SessionAggregate summarizes a session for reporting.
type SessionAggregate struct {
	SessionID   int64
	Ref         string
	EndedAt     time.Time
	Source      string
	TextLength  int
	ScaleFactor float64
	DurationMs  int64
	PressEvents int
	Summaries   map[Channel]ChannelSummary
}
