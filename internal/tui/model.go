// Package tui provides the Bubble Tea recording interface.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/keyprofile/internal/binner"
	"github.com/verte-zerg/keyprofile/internal/generator"
	"github.com/verte-zerg/keyprofile/internal/model"
	"github.com/verte-zerg/keyprofile/internal/profile"
	"github.com/verte-zerg/keyprofile/internal/recorder"
)

// SessionStore is the persistence the recording screen needs.
type SessionStore interface {
	InsertSession(ctx context.Context, rec model.SessionRecord) (int64, error)
	ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.SessionAggregate, error)
}

// Options configures a recording Model.
type Options struct {
	Practice model.PracticeConfig
	Recorder model.RecorderConfig
	Binner   binner.Config
	Store    SessionStore
	Words    []string
	Gen      *generator.Generator
	// OnProfile is called with every finished session.
	OnProfile func(profile.Profile)
}

// Model implements the Bubble Tea recording UI. Each key press is fed into a
// recorder session; terminals do not report releases, so only pp samples
// are collected here.
type Model struct {
	opts Options
	rec  *recorder.Session
	now  func() time.Time

	width  int
	height int

	targetRunes []rune
	inputRunes  []rune
	// gaps[i] is the press gap in ms that produced inputRunes[i].
	gaps      []float64
	lastPress time.Time

	started   bool
	startedAt time.Time

	lastCPS    float64
	lastMeanPP float64
	hasLast    bool

	allChars      int
	allDurationMs int64
	allPPSum      float64
	allPPCount    int
}

var footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))

// NewModel constructs a recording TUI model.
func NewModel(opts Options) *Model {
	if opts.Gen == nil {
		opts.Gen = generator.New()
	}
	m := &Model{
		opts: opts,
		rec:  recorder.New(opts.Recorder),
		now:  time.Now,
	}
	m.resetSession()
	m.loadFooterStats()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyBackspace, tea.KeyDelete:
			m.handleBackspace()
			return m, nil
		case tea.KeySpace:
			m.handleRunes([]rune{' '})
			return m, nil
		case tea.KeyRunes:
			m.handleRunes(msg.Runes)
			return m, nil
		default:
			return m, nil
		}
	default:
		return m, nil
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if len(m.targetRunes) == 0 {
		return ""
	}
	cursorIndex := -1
	if len(m.inputRunes) < len(m.targetRunes) {
		cursorIndex = len(m.inputRunes)
	}
	cells := promptCells(m.targetRunes, m.inputRunes, m.gaps, cursorIndex)
	if m.width == 0 || m.height == 0 {
		return layout(cells, 0)
	}
	contentWidth := int(float64(m.width) * 0.70)
	if contentWidth < 1 {
		contentWidth = 1
	}
	content := lipgloss.NewStyle().Width(contentWidth).Render(layout(cells, contentWidth))
	footer := m.renderFooter()
	if footer == "" || m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

// pressKey feeds one key press into the recorder, starting the session on
// the first press. It returns the gap in ms since the previous press.
func (m *Model) pressKey(key string) float64 {
	now := m.now()
	if !m.started {
		m.started = true
		m.startedAt = now
		m.lastPress = now
		m.rec.Start()
	}
	gap := float64(now.Sub(m.lastPress).Microseconds()) / 1000
	m.lastPress = now
	m.rec.OnKeyDown(key, float64(now.Sub(m.startedAt).Microseconds())/1000)
	return gap
}

func (m *Model) handleBackspace() {
	if len(m.inputRunes) == 0 {
		return
	}
	m.pressKey("backspace")
	m.inputRunes = m.inputRunes[:len(m.inputRunes)-1]
	m.gaps = m.gaps[:len(m.inputRunes)]
}

func (m *Model) handleRunes(runes []rune) {
	for _, r := range runes {
		if len(m.inputRunes) >= len(m.targetRunes) {
			return
		}
		m.gaps = append(m.gaps, m.pressKey(string(r)))
		m.inputRunes = append(m.inputRunes, r)
		if len(m.inputRunes) == len(m.targetRunes) {
			m.finishSession()
			m.resetSession()
		}
	}
}

func (m *Model) loadFooterStats() {
	if m.opts.Store == nil {
		return
	}
	sessions, err := m.opts.Store.ListSessions(context.Background(), model.StatsConfig{Source: model.SourceTerminal})
	if err != nil {
		slog.Error("failed to load session stats", "err", err)
		return
	}
	if len(sessions) == 0 {
		return
	}
	last := sessions[len(sessions)-1]
	m.lastCPS = charsPerSecond(last.TextLength, last.DurationMs)
	m.lastMeanPP = last.Summaries[model.PressPress].MeanMs
	m.hasLast = true
	for _, s := range sessions {
		pp := s.Summaries[model.PressPress]
		m.addAllTime(s.TextLength, s.DurationMs, pp)
	}
}

func (m *Model) addAllTime(chars int, durationMs int64, pp model.ChannelSummary) {
	m.allChars += chars
	m.allDurationMs += durationMs
	m.allPPSum += pp.MeanMs * float64(pp.Count)
	m.allPPCount += pp.Count
}

func (m *Model) allTime() (cps, meanPP float64) {
	if m.allPPCount > 0 {
		meanPP = m.allPPSum / float64(m.allPPCount)
	}
	return charsPerSecond(m.allChars, m.allDurationMs), meanPP
}

func charsPerSecond(chars int, durationMs int64) float64 {
	if durationMs <= 0 {
		return 0
	}
	return float64(chars) / (float64(durationMs) / 1000)
}

func (m *Model) renderFooter() string {
	if len(m.targetRunes) == 0 {
		return ""
	}
	progress := int(float64(len(m.inputRunes)) / float64(len(m.targetRunes)) * 100)
	segments := []string{fmt.Sprintf("Progress %d%%", progress)}
	if m.hasLast {
		segments = append(segments, fmt.Sprintf("Last %.1f cps · %.0f ms", m.lastCPS, m.lastMeanPP))
	}
	cps, meanPP := m.allTime()
	segments = append(segments, fmt.Sprintf("All-time %.1f cps · %.0f ms", cps, meanPP))
	return footerStyle.Render(strings.Join(segments, "  "))
}

func (m *Model) resetSession() {
	m.inputRunes = nil
	m.gaps = nil
	m.started = false
	m.startedAt = time.Time{}
	m.targetRunes = []rune(m.opts.Gen.Prompt(m.opts.Words, m.opts.Practice))
}

func (m *Model) finishSession() {
	if !m.started {
		return
	}
	m.rec.SetText(string(m.targetRunes))
	res := m.rec.Stop()
	res.StartedAt, res.EndedAt = m.startedAt, m.now()
	p := profile.Build(res, m.opts.Recorder.ScaleFactor, m.opts.Binner)

	durationMs := res.DurationMs()
	pp := res.Summary[model.PressPress]
	chars := len(m.targetRunes)
	m.lastCPS = charsPerSecond(chars, durationMs)
	m.lastMeanPP = pp.MeanMs
	m.hasLast = true
	m.addAllTime(chars, durationMs, pp)

	if m.opts.OnProfile != nil {
		m.opts.OnProfile(p)
	}
	if !m.opts.Practice.Save || m.opts.Store == nil {
		return
	}
	rec, err := p.Record(model.SourceTerminal)
	if err != nil {
		slog.Error("failed to encode session", "err", err)
		return
	}
	id, err := m.opts.Store.InsertSession(context.Background(), rec)
	if err != nil {
		slog.Error("failed to save session", "err", err)
		return
	}
	slog.Debug("session saved", "id", id, "presses", res.PressEvents)
}
