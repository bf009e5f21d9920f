package binner

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/keyprofile/internal/model"
)

func requireWellFormed(t *testing.T, bins []model.Bin) {
	t.Helper()
	require.Len(t, bins, DefaultTotal)
	for i, b := range bins {
		require.Less(t, b.Start, b.End, "bin %d must have positive width", i)
		if i > 0 {
			require.Equal(t, bins[i-1].End, b.Start, "bin %d must start where bin %d ends", i, i-1)
		}
	}
}

func TestBuildEmptySeriesReturnsDefaultPartition(t *testing.T) {
	p := Build(nil, DefaultConfig())
	assert.Equal(t, KindDefault, p.Kind)
	requireWellFormed(t, p.Bins)
	for i, b := range p.Bins {
		assert.Equal(t, int64(i)*DefaultDefaultWidth, b.Start)
		assert.Equal(t, int64(i+1)*DefaultDefaultWidth, b.End)
	}
	assert.Equal(t, p.Bins, Build([]float64{}, Config{}).Bins)
}

func TestBuildTwoClusters(t *testing.T) {
	series := []float64{100, 105, 98, 600, 610, 595, 1200}
	p := Build(series, DefaultConfig())

	assert.Equal(t, KindDynamic, p.Kind)
	requireWellFormed(t, p.Bins)
	// Both clusters fill a 10-wide window with three samples; the first wins.
	assert.Equal(t, 0, p.Window.Start)
	assert.Equal(t, 3, p.Window.Count)
	assert.Equal(t, 98.0, p.Window.DenseStart)
	assert.Equal(t, int64(98), p.Bins[0].Start)
	assert.Equal(t, int64(1200), p.Bins[len(p.Bins)-1].End)
	// No lower coarse bins, so the cluster sits in the first fine bin.
	assert.Equal(t, int64(120), p.Bins[0].End)
}

func TestBuildSingleSampleIsDegenerate(t *testing.T) {
	p := Build([]float64{42}, DefaultConfig())
	assert.Equal(t, KindDegenerate, p.Kind)
	requireWellFormed(t, p.Bins)
	assert.Equal(t, int64(34), p.Bins[0].Start)
	assert.Equal(t, int64(50), p.Bins[15].End)

	same := Build([]float64{7.5, 7.5, 7.5}, DefaultConfig())
	assert.Equal(t, KindDegenerate, same.Kind)
	requireWellFormed(t, same.Bins)
}

func TestBuildIsDeterministic(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	series := make([]float64, 300)
	for i := range series {
		series[i] = float64(rnd.Intn(400000) + 20000)
	}
	first := Build(series, DefaultConfig())
	second := Build(series, DefaultConfig())
	assert.Equal(t, first, second)
}

func TestBuildAlwaysSixteenContiguousBins(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	cases := [][]float64{
		{0, 1},
		{-5, 5},
		{1, 2, 3},
		{0.1, 0.2, 0.3, 0.4},
		{1000, 1000, 1000, 1001},
	}
	for n := 2; n < 60; n += 7 {
		series := make([]float64, n)
		for i := range series {
			series[i] = rnd.NormFloat64()*40000 + 150000
		}
		cases = append(cases, series)
	}
	for _, series := range cases {
		p := Build(series, DefaultConfig())
		requireWellFormed(t, p.Bins)
	}
}

func TestSelectedWindowIsDensest(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	for trial := 0; trial < 20; trial++ {
		series := make([]float64, 200)
		for i := range series {
			if i%3 == 0 {
				series[i] = float64(rnd.Intn(1800000))
			} else {
				series[i] = math.Round(rnd.NormFloat64()*20000 + float64(100000+trial*30000))
			}
		}
		p := Build(series, DefaultConfig())
		require.Len(t, p.TempCounts, DefaultTempBins)
		for start := 0; start+DefaultWindow <= DefaultTempBins; start++ {
			sum := 0
			for _, c := range p.TempCounts[start : start+DefaultWindow] {
				sum += c
			}
			assert.GreaterOrEqual(t, p.Window.Count, sum)
			if sum == p.Window.Count {
				assert.LessOrEqual(t, p.Window.Start, start, "ties go to the first window")
			}
		}

		// The fine bins cover the dense window, so they hold its samples.
		firstFine := 0
		if p.Window.Start > 0 {
			firstFine = DefaultCoarse
		}
		lastFine := firstFine + DefaultFine
		if p.Window.Start+DefaultWindow == DefaultTempBins {
			lastFine = DefaultTotal
		}
		lo, hi := p.Bins[firstFine].Start, p.Bins[lastFine-1].End
		assert.Equal(t, int64(math.Round(p.Window.DenseStart)), lo)
		assert.Equal(t, int64(math.Round(p.Window.DenseEnd)), hi)
		inFine := 0
		for _, v := range series {
			if float64(lo) <= v && v <= float64(hi) {
				inFine++
			}
		}
		assert.GreaterOrEqual(t, inFine, p.Window.Count, "trial %d", trial)
	}
}

func TestBuildIgnoresNonFiniteSamples(t *testing.T) {
	p := Build([]float64{math.NaN(), 120000, 110000}, DefaultConfig())
	assert.Equal(t, KindDynamic, p.Kind)
	requireWellFormed(t, p.Bins)
	assert.Equal(t, int64(110000), p.Bins[0].Start)
	assert.Equal(t, int64(120000), p.Bins[15].End)

	p = Build([]float64{math.NaN(), math.Inf(1), math.Inf(-1)}, DefaultConfig())
	assert.Equal(t, KindDefault, p.Kind)
	assert.Equal(t, DefaultBins(DefaultConfig()), p.Bins)

	p = Build([]float64{math.NaN(), 500}, DefaultConfig())
	assert.Equal(t, KindDegenerate, p.Kind)
	requireWellFormed(t, p.Bins)
}

func TestBuildClampsHugeSamples(t *testing.T) {
	p := Build([]float64{1e19}, DefaultConfig())
	assert.Equal(t, KindDegenerate, p.Kind)
	requireWellFormed(t, p.Bins)
	assert.Equal(t, int64(MaxSample-8), p.Bins[0].Start)
	assert.Equal(t, int64(MaxSample+8), p.Bins[15].End)

	p = Build([]float64{-1e300, 1e300, 150000}, DefaultConfig())
	assert.Equal(t, KindDynamic, p.Kind)
	requireWellFormed(t, p.Bins)
	assert.Equal(t, int64(-MaxSample), p.Bins[0].Start)
	assert.Equal(t, int64(MaxSample), p.Bins[15].End)
}

func TestFitCountMergesWithoutGaps(t *testing.T) {
	spans := appendEven(nil, 0, 20, 20)
	spans = fitCount(spans, 16)
	require.Len(t, spans, 16)
	assert.Equal(t, 0.0, spans[0].start)
	assert.Equal(t, 20.0, spans[15].end)
	for i := 1; i < len(spans); i++ {
		assert.Equal(t, spans[i-1].end, spans[i].start)
	}
}

func TestFitCountBisectsLastSpan(t *testing.T) {
	spans := appendEven(nil, 0, 100, 10)
	spans = fitCount(spans, 12)
	require.Len(t, spans, 12)
	assert.Equal(t, span{start: 90, end: 95}, spans[9])
	assert.Equal(t, span{start: 95, end: 97.5}, spans[10])
	assert.Equal(t, span{start: 97.5, end: 100}, spans[11])
}

func TestCustomTotal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Total = 8
	p := Build([]float64{10, 20, 30, 40, 50, 900}, cfg)
	assert.Len(t, p.Bins, 8)
}
