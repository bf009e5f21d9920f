// Package recorder turns key press and release events into interval series.
package recorder

import (
	"math"
	"time"

	"github.com/verte-zerg/keyprofile/internal/model"
)

// DefaultScaleFactor multiplies millisecond intervals before they are stored.
const DefaultScaleFactor = 1000

// State is the lifecycle state of a Session.
type State int

// Session states.
const (
	StateIdle State = iota
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Result is the frozen output of a recording session.
type Result struct {
	Series        model.Series
	Summary       map[model.Channel]model.ChannelSummary
	PressEvents   int
	ReleaseEvents int
	// Pauses counts raw press-press gaps longer than PauseGapMs.
	Pauses        int
	Text          string
	StartedAt     time.Time
	EndedAt       time.Time
}

// DurationMs returns the wall-clock length of the session.
func (r Result) DurationMs() int64 {
	if r.StartedAt.IsZero() || r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt).Milliseconds()
}

// Session records one typing session. It is owned by a single caller and
// is not safe for concurrent use.
type Session struct {
	cfg   model.RecorderConfig
	now   func() time.Time
	state State

	series   model.Series
	downAt   map[string]float64
	lastDown *float64
	lastUp   *float64

	presses   int
	releases  int
	pauses    int
	text      string
	startedAt time.Time
	endedAt   time.Time
}

// New returns an idle session. Missing config values fall back to defaults.
func New(cfg model.RecorderConfig) *Session {
	return &Session{
		cfg:    normalizeConfig(cfg),
		now:    time.Now,
		series: emptySeries(),
		downAt: map[string]float64{},
	}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Start resets the session and begins recording.
func (s *Session) Start() {
	s.series = emptySeries()
	s.downAt = map[string]float64{}
	s.lastDown = nil
	s.lastUp = nil
	s.presses = 0
	s.releases = 0
	s.pauses = 0
	s.text = ""
	s.startedAt = s.now()
	s.endedAt = time.Time{}
	s.state = StateRecording
}

// Stop freezes the session and returns its series and summary.
func (s *Session) Stop() Result {
	if s.state == StateRecording {
		s.endedAt = s.now()
		s.state = StateStopped
	}
	return s.result()
}

// SetText stores the text typed during the session.
func (s *Session) SetText(text string) {
	if s.state != StateRecording {
		return
	}
	s.text = text
}

// OnKeyDown records a key press at t milliseconds.
func (s *Session) OnKeyDown(key string, t float64) {
	if s.state != StateRecording {
		return
	}
	s.presses++
	if s.lastDown != nil {
		if t-*s.lastDown > PauseGapMs {
			s.pauses++
		}
		s.appendInterval(model.PressPress, t-*s.lastDown)
	}
	if s.lastUp != nil {
		s.appendInterval(model.ReleasePress, t-*s.lastUp)
	}
	down := t
	s.lastDown = &down
	s.downAt[key] = t
}

// OnKeyUp records a key release at t milliseconds.
func (s *Session) OnKeyUp(key string, t float64) {
	if s.state != StateRecording {
		return
	}
	s.releases++
	if down, ok := s.downAt[key]; ok {
		s.appendInterval(model.PressRelease, t-down)
		delete(s.downAt, key)
	}
	if s.lastUp != nil {
		s.appendInterval(model.ReleaseRelease, t-*s.lastUp)
	}
	up := t
	s.lastUp = &up
}

// Handle dispatches an event by type. Unknown types are ignored.
func (s *Session) Handle(ev model.Event) {
	switch ev.Type {
	case model.KeyDown:
		s.OnKeyDown(ev.Key, ev.TimestampMs)
	case model.KeyUp:
		s.OnKeyUp(ev.Key, ev.TimestampMs)
	}
}

// Replay records a complete event stream and returns the frozen result.
// The session is taken to end now and to span the event timestamps.
func Replay(cfg model.RecorderConfig, events []model.Event, text string) Result {
	return ReplayAt(cfg, events, text, time.Now().Add(-eventSpan(events)))
}

// ReplayAt is Replay for a stream that started at start.
func ReplayAt(cfg model.RecorderConfig, events []model.Event, text string, start time.Time) Result {
	s := New(cfg)
	s.now = func() time.Time { return start }
	s.Start()
	for _, ev := range events {
		s.Handle(ev)
	}
	s.SetText(text)
	end := start.Add(eventSpan(events))
	s.now = func() time.Time { return end }
	return s.Stop()
}

func eventSpan(events []model.Event) time.Duration {
	if len(events) < 2 {
		return 0
	}
	ms := events[len(events)-1].TimestampMs - events[0].TimestampMs
	if !(ms > 0) || math.IsInf(ms, 0) {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func (s *Session) appendInterval(ch model.Channel, deltaMs float64) {
	b, ok := s.cfg.Bounds[ch]
	if !ok {
		b = DefaultBounds()[ch]
	}
	// Written positively so NaN deltas are dropped too.
	if !(deltaMs > b.MinMs && deltaMs < b.MaxMs) {
		return
	}
	s.series[ch] = append(s.series[ch], math.Round(deltaMs*s.cfg.ScaleFactor))
}

func (s *Session) result() Result {
	series := make(model.Series, len(model.Channels))
	summary := make(map[model.Channel]model.ChannelSummary, len(model.Channels))
	for _, ch := range model.Channels {
		values := make([]float64, len(s.series[ch]))
		copy(values, s.series[ch])
		series[ch] = values
		summary[ch] = model.ChannelSummary{
			Count:  len(values),
			MeanMs: mean(values) / s.cfg.ScaleFactor,
		}
	}
	return Result{
		Series:        series,
		Summary:       summary,
		PressEvents:   s.presses,
		ReleaseEvents: s.releases,
		Pauses:        s.pauses,
		Text:          s.text,
		StartedAt:     s.startedAt,
		EndedAt:       s.endedAt,
	}
}

func emptySeries() model.Series {
	series := make(model.Series, len(model.Channels))
	for _, ch := range model.Channels {
		series[ch] = []float64{}
	}
	return series
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
