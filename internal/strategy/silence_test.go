package strategy

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/trackslicer/internal/audio"
	"github.com/maauso/trackslicer/internal/session"
)

// distanceMeter reports the distance to the nearest silent point as volume.
// Times outside [lo, hi] are out of bounds.
type distanceMeter struct {
	silences []float64
	lo, hi   float64
	calls    int
}

func (m *distanceMeter) VolumeAt(t audio.Time) (float64, error) {
	m.calls++
	if t.Seconds < m.lo || t.Seconds > m.hi {
		return 0, audio.ErrOutOfBounds
	}
	d := math.Inf(1)
	for _, s := range m.silences {
		d = math.Min(d, math.Abs(t.Seconds-s))
	}
	return d, nil
}

// meterFunc adapts a function to audio.Meter.
type meterFunc func(t audio.Time) (float64, error)

func (f meterFunc) VolumeAt(t audio.Time) (float64, error) { return f(t) }

func at(secs ...float64) []audio.Time {
	out := make([]audio.Time, len(secs))
	for i, s := range secs {
		out[i] = audio.FromSeconds(s, stereo)
	}
	return out
}

func quietOptimizer(cfg OptimizerConfig) *Optimizer {
	return NewOptimizer(cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func TestOptimizerConfig(t *testing.T) {
	cfg := DefaultOptimizerConfig()
	assert.Equal(t, OptimizerConfig{MinOffset: -3, MaxOffset: 3, Trials: 10000}, cfg)
	assert.Equal(t, -3.0, cfg.Offset(0))
	assert.InDelta(t, 0.0, cfg.Offset(5000), 1e-12)
	assert.InDelta(t, 0.0006, cfg.Step(), 1e-12)
}

func TestNewOptimizer_Normalizes(t *testing.T) {
	assert.Equal(t, DefaultOptimizerConfig(), NewOptimizer(OptimizerConfig{}, nil).Config())

	swapped := NewOptimizer(OptimizerConfig{MinOffset: 2, MaxOffset: -2, Trials: 4}, nil).Config()
	assert.Equal(t, OptimizerConfig{MinOffset: -2, MaxOffset: 2, Trials: 4}, swapped)
}

func TestOptimizer_FindsNearestGridPoint(t *testing.T) {
	cfg := OptimizerConfig{MinOffset: -3, MaxOffset: 3, Trials: 1000}
	const want = 0.7731
	guesses := at(10, 50, 90)
	meter := &distanceMeter{silences: []float64{10 + want, 50 + want, 90 + want}, lo: 0, hi: 200}

	res, err := quietOptimizer(cfg).FindOffset(meter, guesses)
	require.NoError(t, err)

	assert.InDelta(t, want, res.Offset, cfg.Step())
	assert.InDelta(t, math.Abs(res.Offset-want), res.AverageVolume, 1e-9)
	assert.Equal(t, cfg.Trials*len(guesses), meter.calls)
}

func TestOptimizer_TiesKeepLowestOffset(t *testing.T) {
	cfg := OptimizerConfig{MinOffset: -1, MaxOffset: 1, Trials: 50}
	flat := meterFunc(func(audio.Time) (float64, error) { return 0.25, nil })

	res, err := quietOptimizer(cfg).FindOffset(flat, at(10, 20))
	require.NoError(t, err)

	assert.Equal(t, -1.0, res.Offset)
	assert.Equal(t, 0.25, res.AverageVolume)
}

func TestOptimizer_DiscardsPartialCandidates(t *testing.T) {
	// The first cut would sit in perfect silence for offsets in [-3, -2.5],
	// but those offsets push the second cut out of the recording. A partial
	// sum over the measurable cuts must not win.
	cfg := OptimizerConfig{MinOffset: -3, MaxOffset: 3, Trials: 600}
	meter := meterFunc(func(t audio.Time) (float64, error) {
		switch {
		case t.Seconds >= 95 && t.Seconds < 98:
			return 0, audio.ErrOutOfBounds
		case t.Seconds >= 2 && t.Seconds <= 2.5:
			return 0, nil
		default:
			return 1, nil
		}
	})

	res, err := quietOptimizer(cfg).FindOffset(meter, at(5, 100))
	require.NoError(t, err)

	assert.InDelta(t, -2.0, res.Offset, 0.011)
	assert.Equal(t, 1.0, res.AverageVolume)
}

func TestOptimizer_NoSilenceCandidate(t *testing.T) {
	cfg := OptimizerConfig{MinOffset: -3, MaxOffset: 3, Trials: 100}

	t.Run("every candidate out of bounds", func(t *testing.T) {
		meter := &distanceMeter{silences: []float64{0}, lo: 1000, hi: 2000}

		_, err := quietOptimizer(cfg).FindOffset(meter, at(10, 20))
		assert.ErrorIs(t, err, ErrNoSilenceCandidate)
	})

	t.Run("each candidate loses a different cut", func(t *testing.T) {
		// cut at 1 needs offset >= -0.5, cut at 10 needs offset < -0.5
		meter := meterFunc(func(t audio.Time) (float64, error) {
			if t.Seconds < 0.5 || (t.Seconds >= 9.5 && t.Seconds < 20) {
				return 0, audio.ErrOutOfBounds
			}
			return 0, nil
		})

		_, err := quietOptimizer(cfg).FindOffset(meter, at(1, 10))
		assert.ErrorIs(t, err, ErrNoSilenceCandidate)
	})
}

func TestOptimizer_PropagatesOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	meter := meterFunc(func(audio.Time) (float64, error) { return 0, boom })

	_, err := quietOptimizer(DefaultOptimizerConfig()).FindOffset(meter, at(10))
	assert.ErrorIs(t, err, boom)
}

func TestOptimizer_NoGuesses(t *testing.T) {
	res, err := quietOptimizer(DefaultOptimizerConfig()).FindOffset(meterFunc(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestOptimizer_OptimizeLogsResult(t *testing.T) {
	var buf bytes.Buffer
	opt := NewOptimizer(OptimizerConfig{MinOffset: -1, MaxOffset: 1, Trials: 20}, slog.New(slog.NewTextHandler(&buf, nil)))
	meter := &distanceMeter{silences: []float64{10.5}, lo: 0, hi: 100}

	cuts, res, err := opt.Optimize(meter, at(10))
	require.NoError(t, err)

	assert.InDelta(t, 0.5, res.Offset, 1e-9)
	assert.InDelta(t, 10.5, cuts[0].Seconds, 1e-9)
	assert.Contains(t, buf.String(), "found silence offset")
	assert.Contains(t, buf.String(), "average_volume")
}

func TestSilenceStrategy_EndToEnd(t *testing.T) {
	// Lengths place the cuts at 5, 185, 385 and 535; the real silences are
	// 1.2 seconds later.
	meter := &distanceMeter{silences: []float64{6.2, 186.2, 386.2, 536.2}, lo: 0, hi: 600}
	strategy := &SilenceStrategy{
		Optimizer: quietOptimizer(DefaultOptimizerConfig()),
		NewMeter:  func(audio.Source) audio.Meter { return meter },
	}

	guesses, err := LengthStrategy{}.Timestamps(specOnly(), threeSongs())
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 185, 385, 535}, seconds(guesses))

	cuts, err := strategy.Timestamps(specOnly(), threeSongs())
	require.NoError(t, err)

	want := []float64{6.2, 186.2, 386.2, 536.2}
	require.Len(t, cuts, len(want))
	for i, w := range want {
		assert.InDelta(t, w, cuts[i].Seconds, 1e-6, "cut %d", i)
		assert.Equal(t, stereo, cuts[i].Spec)
	}
}

func TestSilenceStrategy_NoCandidate(t *testing.T) {
	strategy := &SilenceStrategy{
		Optimizer: quietOptimizer(OptimizerConfig{MinOffset: -3, MaxOffset: 3, Trials: 60}),
		NewMeter: func(audio.Source) audio.Meter {
			return &distanceMeter{lo: 0, hi: 300} // recording ends before the last cuts
		},
	}

	_, err := strategy.Timestamps(specOnly(), threeSongs())
	assert.ErrorIs(t, err, ErrNoSilenceCandidate)
}

func TestSilenceStrategy_Chunked(t *testing.T) {
	// Drift grows along the recording: the first three cuts are 1.0 s late,
	// the last three 1.5 s.
	s := &session.Session{
		Songs: []session.Song{
			{Length: 100}, {Length: 100}, {Length: 100}, {Length: 100}, {Length: 100},
		},
		Timestamps: []session.Timestamp{{Micros: 10_000_000}},
	}
	meter := &distanceMeter{silences: []float64{11, 111, 211, 311.5, 411.5, 511.5}, lo: 0, hi: 600}
	strategy := &SilenceStrategy{
		Optimizer: quietOptimizer(OptimizerConfig{MinOffset: -3, MaxOffset: 3, Trials: 600}),
		ChunkSize: 3,
		NewMeter:  func(audio.Source) audio.Meter { return meter },
	}

	cuts, err := strategy.Timestamps(specOnly(), s)
	require.NoError(t, err)

	want := []float64{11, 111, 211, 311.5, 411.5, 511.5}
	require.Len(t, cuts, len(want))
	for i, w := range want {
		assert.InDelta(t, w, cuts[i].Seconds, 0.011, "cut %d", i)
	}
}

func TestSilenceStrategy_RealVolume(t *testing.T) {
	// 50 seconds of mono audio whose amplitude grows with the distance to
	// the true cut points, 0.8 s after the length-based guesses.
	spec := audio.Spec{Channels: 1, SampleRate: 1000}
	silences := []float64{5.8, 25.8, 40.8}
	samples := make([]int16, 50_000)
	for i := range samples {
		t := float64(i) / float64(spec.SampleRate)
		d := math.Inf(1)
		for _, s := range silences {
			d = math.Min(d, math.Abs(t-s))
		}
		samples[i] = int16(math.Min(math.MaxInt16, 30000*d))
	}
	src := audio.NewSampleBuffer(samples, spec)

	s := &session.Session{
		Songs:      []session.Song{{Length: 20}, {Length: 15}},
		Timestamps: []session.Timestamp{{Micros: 5_000_000}, {Micros: 25_000_000}, {Micros: 40_000_000}},
	}
	strategy := &SilenceStrategy{
		Optimizer:     quietOptimizer(OptimizerConfig{MinOffset: -3, MaxOffset: 3, Trials: 600}),
		WindowSamples: 20,
	}

	cuts, err := strategy.Timestamps(src, s)
	require.NoError(t, err)
	require.Len(t, cuts, 3)
	for i, want := range silences {
		assert.InDelta(t, want, cuts[i].Seconds, 0.011, "cut %d", i)
	}
}
