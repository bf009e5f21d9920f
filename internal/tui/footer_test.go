package tui

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/keyprofile/internal/generator"
	"github.com/verte-zerg/keyprofile/internal/model"
	"github.com/verte-zerg/keyprofile/internal/profile"
)

type fakeStore struct {
	saved    []model.SessionRecord
	sessions []model.SessionAggregate
}

func (f *fakeStore) InsertSession(_ context.Context, rec model.SessionRecord) (int64, error) {
	f.saved = append(f.saved, rec)
	return int64(len(f.saved)), nil
}

func (f *fakeStore) ListSessions(context.Context, model.StatsConfig) ([]model.SessionAggregate, error) {
	return f.sessions, nil
}

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		current := now
		now = now.Add(step)
		return current
	}
}

func TestRenderFooterFormats(t *testing.T) {
	m := &Model{
		targetRunes:   []rune("abcd"),
		inputRunes:    []rune("ab"),
		hasLast:       true,
		lastCPS:       6.4,
		lastMeanPP:    160,
		allChars:      50,
		allDurationMs: 10000,
		allPPSum:      180 * 10,
		allPPCount:    10,
	}
	out := m.renderFooter()
	if out == "" {
		t.Fatalf("expected footer output")
	}
	if !containsAll(out, []string{"Progress 50%", "Last 6.4 cps", "160 ms", "All-time 5.0 cps", "180 ms"}) {
		t.Fatalf("footer missing expected segments: %s", out)
	}
}

func TestLoadFooterStatsFromStore(t *testing.T) {
	st := &fakeStore{sessions: []model.SessionAggregate{
		{TextLength: 10, DurationMs: 2000, Summaries: map[model.Channel]model.ChannelSummary{
			model.PressPress: {Count: 9, MeanMs: 200},
		}},
		{TextLength: 20, DurationMs: 2000, Summaries: map[model.Channel]model.ChannelSummary{
			model.PressPress: {Count: 19, MeanMs: 100},
		}},
	}}
	m := NewModel(Options{
		Practice: model.PracticeConfig{Words: 2},
		Store:    st,
		Words:    []string{"ab"},
		Gen:      generator.NewSeeded(1),
	})
	if !m.hasLast || m.lastCPS != 10 || m.lastMeanPP != 100 {
		t.Fatalf("unexpected last stats: %+v", m)
	}
	cps, _ := m.allTime()
	if cps != 7.5 {
		t.Fatalf("expected all-time 7.5 cps, got %.2f", cps)
	}
}

func TestTypingPromptRecordsAndSaves(t *testing.T) {
	st := &fakeStore{}
	var finished []profile.Profile
	m := NewModel(Options{
		Practice:  model.PracticeConfig{Words: 1, Save: true},
		Store:     st,
		Words:     []string{"ab"},
		Gen:       generator.NewSeeded(1),
		OnProfile: func(p profile.Profile) { finished = append(finished, p) },
	})
	m.now = steppingClock(100 * time.Millisecond)
	if string(m.targetRunes) != "ab" {
		t.Fatalf("unexpected prompt %q", string(m.targetRunes))
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("b")})

	if len(st.saved) != 1 {
		t.Fatalf("expected one saved session, got %d", len(st.saved))
	}
	rec := st.saved[0]
	if rec.Source != model.SourceTerminal || rec.Text != "ab" || rec.PressEvents != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	pp := rec.Channels[0]
	if pp.Channel != model.PressPress || len(pp.Samples) != 1 || pp.Samples[0] != 100000 {
		t.Fatalf("unexpected pp channel: %+v", pp)
	}
	if len(finished) != 1 || len(finished[0].Document.Entries) != 68 {
		t.Fatalf("expected a 68-entry feature document")
	}
	if math.Abs(m.lastCPS-10) > 1e-9 || m.lastMeanPP != 100 {
		t.Fatalf("unexpected last stats: cps=%.2f pp=%.2f", m.lastCPS, m.lastMeanPP)
	}
	if len(m.inputRunes) != 0 || m.started {
		t.Fatalf("expected a fresh prompt after finishing")
	}
}

func TestTypingWithoutSaveSkipsStore(t *testing.T) {
	st := &fakeStore{}
	m := NewModel(Options{
		Practice: model.PracticeConfig{Words: 1},
		Store:    st,
		Words:    []string{"a"},
		Gen:      generator.NewSeeded(1),
	})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	if len(st.saved) != 0 {
		t.Fatalf("expected nothing saved")
	}
	if !m.hasLast {
		t.Fatalf("expected footer stats to update")
	}
}

func TestBackspaceCountsAsPress(t *testing.T) {
	m := NewModel(Options{
		Practice: model.PracticeConfig{Words: 1},
		Words:    []string{"abc"},
		Gen:      generator.NewSeeded(1),
	})
	m.now = steppingClock(50 * time.Millisecond)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	m.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	if len(m.inputRunes) != 0 {
		t.Fatalf("expected backspace to remove input")
	}
	res := m.rec.Stop()
	if res.PressEvents != 2 || len(res.Series[model.PressPress]) != 1 {
		t.Fatalf("expected two presses and one pp interval, got %+v", res)
	}
}

func containsAll(haystack string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func TestTypedRunesCarryPressGaps(t *testing.T) {
	m := NewModel(Options{
		Practice: model.PracticeConfig{Words: 1},
		Words:    []string{"abc"},
		Gen:      generator.NewSeeded(1),
	})
	m.now = steppingClock(700 * time.Millisecond)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("b")})
	if len(m.gaps) != 2 || m.gaps[0] != 0 || m.gaps[1] != 700 {
		t.Fatalf("expected gaps [0 700], got %v", m.gaps)
	}
	cells := promptCells(m.targetRunes, m.inputRunes, m.gaps, len(m.inputRunes))
	if cells[0].mark != markSteady || cells[1].mark != markHesitant {
		t.Fatalf("unexpected marks %v", marksOf(cells))
	}
	m.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	if len(m.gaps) != 1 || len(m.inputRunes) != 1 {
		t.Fatalf("expected backspace to drop the last gap, got %v", m.gaps)
	}
}
