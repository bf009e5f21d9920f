// Package profile assembles a recorded session into its feature document,
// rhythm metrics and stored form.
package profile

import (
	"fmt"

	"github.com/verte-zerg/keyprofile/internal/binner"
	"github.com/verte-zerg/keyprofile/internal/features"
	"github.com/verte-zerg/keyprofile/internal/model"
	"github.com/verte-zerg/keyprofile/internal/recorder"
	"github.com/verte-zerg/keyprofile/internal/stats"
)

// Profile is a finished session with everything derived from it.
type Profile struct {
	Result      recorder.Result
	ScaleFactor float64
	Document    features.Document
	Metrics     stats.Metrics
}

// Build bins the recorded series and computes rhythm metrics.
func Build(res recorder.Result, scale float64, cfg binner.Config) Profile {
	if scale <= 0 {
		scale = recorder.DefaultScaleFactor
	}
	return Profile{
		Result:      res,
		ScaleFactor: scale,
		Document:    features.Transform(res.Series, cfg),
		Metrics:     metrics(res, scale),
	}
}

// metrics prefers the recorder's pause count, which sees the gaps the
// outlier filter removes from the series.
func metrics(res recorder.Result, scale float64) stats.Metrics {
	m := stats.ComputeMetrics(res.Series, scale, len([]rune(res.Text)))
	m.Pauses = max(m.Pauses, res.Pauses)
	return m
}

// Record converts the profile into its persisted form.
func (p Profile) Record(source string) (model.SessionRecord, error) {
	raw, err := p.Document.MarshalJSON()
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("failed to encode features: %w", err)
	}
	rec := model.SessionRecord{
		StartedAt:     p.Result.StartedAt,
		EndedAt:       p.Result.EndedAt,
		Source:        source,
		Text:          p.Result.Text,
		ScaleFactor:   p.ScaleFactor,
		PressEvents:   p.Result.PressEvents,
		ReleaseEvents: p.Result.ReleaseEvents,
		Pauses:        p.Result.Pauses,
		FeaturesJSON:  raw,
		Channels:      make([]model.ChannelRecord, 0, len(model.Channels)),
	}
	for _, ch := range model.Channels {
		part, _ := p.Document.Partition(ch)
		rec.Channels = append(rec.Channels, model.ChannelRecord{
			Channel: ch,
			Kind:    part.Kind,
			Summary: p.Result.Summary[ch],
			Samples: p.Result.Series[ch],
			Bins:    part.Bins,
		})
	}
	return rec, nil
}

// FromRecord restores the document and metrics of a stored session. Bins
// are taken as stored; fallbacks are recounted from the samples.
func FromRecord(rec model.SessionRecord) Profile {
	series := model.Series{}
	summary := map[model.Channel]model.ChannelSummary{}
	parts := make([]features.ChannelPartition, 0, len(model.Channels))
	byChannel := map[model.Channel]model.ChannelRecord{}
	for _, ch := range rec.Channels {
		byChannel[ch.Channel] = ch
	}
	for _, ch := range model.Channels {
		stored := byChannel[ch]
		series[ch] = stored.Samples
		summary[ch] = stored.Summary
		_, fallbacks := features.Histogram(stored.Samples, stored.Bins)
		parts = append(parts, features.ChannelPartition{
			Channel:   ch,
			Kind:      stored.Kind,
			Bins:      stored.Bins,
			Samples:   len(stored.Samples),
			Fallbacks: fallbacks,
		})
	}
	scale := rec.ScaleFactor
	if scale <= 0 {
		scale = recorder.DefaultScaleFactor
	}
	res := recorder.Result{
		Series:        series,
		Summary:       summary,
		PressEvents:   rec.PressEvents,
		ReleaseEvents: rec.ReleaseEvents,
		Pauses:        rec.Pauses,
		Text:          rec.Text,
		StartedAt:     rec.StartedAt,
		EndedAt:       rec.EndedAt,
	}
	return Profile{
		Result:      res,
		ScaleFactor: scale,
		Document:    features.FromPartitions(parts),
		Metrics:     metrics(res, scale),
	}
}
