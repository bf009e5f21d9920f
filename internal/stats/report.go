package stats

import (
	"context"

	"github.com/verte-zerg/keyprofile/internal/model"
	"github.com/verte-zerg/keyprofile/internal/store"
)

// Report contains precomputed data for stats rendering.
type Report struct {
	Sessions []model.SessionAggregate
	// Window holds the sessions covered by the trend curves.
	Window []model.SessionAggregate
	Totals Totals
}

// Totals aggregates channel summaries across sessions.
type Totals struct {
	Sessions    int
	PressEvents int
	DurationMs  int64
	Channels    map[model.Channel]model.ChannelSummary
}

// BuildReport loads and prepares data for stats rendering.
func BuildReport(ctx context.Context, st *store.Store, cfg model.StatsConfig) (Report, error) {
	sessions, err := st.ListSessions(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Sessions: sessions,
		Window:   lastSessions(sessions, cfg.CurveWindow),
		Totals:   totals(sessions),
	}, nil
}

// totals weights each session mean by its sample count.
func totals(sessions []model.SessionAggregate) Totals {
	t := Totals{Sessions: len(sessions), Channels: map[model.Channel]model.ChannelSummary{}}
	sums := map[model.Channel]float64{}
	for _, s := range sessions {
		t.PressEvents += s.PressEvents
		t.DurationMs += s.DurationMs
		for ch, sum := range s.Summaries {
			agg := t.Channels[ch]
			agg.Count += sum.Count
			t.Channels[ch] = agg
			sums[ch] += sum.MeanMs * float64(sum.Count)
		}
	}
	for ch, agg := range t.Channels {
		if agg.Count > 0 {
			agg.MeanMs = sums[ch] / float64(agg.Count)
		}
		t.Channels[ch] = agg
	}
	return t
}

func lastSessions(sessions []model.SessionAggregate, window int) []model.SessionAggregate {
	if window <= 0 || len(sessions) <= window {
		return sessions
	}
	return sessions[len(sessions)-window:]
}
