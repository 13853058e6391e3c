package strategy

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/trackslicer/internal/audio"
	"github.com/maauso/trackslicer/internal/session"
)

// ErrNoSilenceCandidate is returned when every candidate offset moves at least
// one cut outside the recording. The guesses cannot be corrected automatically;
// a manual offset is needed.
var ErrNoSilenceCandidate = errors.New("strategy: no offset keeps all cuts inside the recording, set an offset manually")

// OptimizerConfig is the search grid of the Optimizer.
type OptimizerConfig struct {
	MinOffset float64 `json:"min_offset"`
	MaxOffset float64 `json:"max_offset"`
	Trials    int     `json:"trials"`
}

// DefaultOptimizerConfig searches ±3 seconds in 10000 steps.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{MinOffset: -3, MaxOffset: 3, Trials: 10000}
}

// Offset returns the i-th candidate of the grid.
func (c OptimizerConfig) Offset(i int) float64 {
	return c.MinOffset + float64(i)/float64(c.Trials)*(c.MaxOffset-c.MinOffset)
}

// Step is the distance between two candidates.
func (c OptimizerConfig) Step() float64 {
	return (c.MaxOffset - c.MinOffset) / float64(c.Trials)
}

// Result is the outcome of an offset search.
type Result struct {
	Offset float64
	// AverageVolume is the volume per cut at the winning offset. Lower means
	// the cuts sit in quieter audio.
	AverageVolume float64
}

// Optimizer finds a single time shift that, applied to every guessed cut,
// minimizes the total volume at the cuts. Song lengths make the spacing of
// the guesses reliable even when their absolute position is not, so one
// shared offset is searched instead of correcting every cut on its own.
type Optimizer struct {
	cfg    OptimizerConfig
	logger *slog.Logger
}

// NewOptimizer creates an Optimizer. A config without trials falls back to
// DefaultOptimizerConfig.
func NewOptimizer(cfg OptimizerConfig, logger *slog.Logger) *Optimizer {
	if cfg.Trials <= 0 {
		cfg = DefaultOptimizerConfig()
	}
	if cfg.MaxOffset < cfg.MinOffset {
		cfg.MinOffset, cfg.MaxOffset = cfg.MaxOffset, cfg.MinOffset
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{cfg: cfg, logger: logger}
}

// Config returns the search grid.
func (o *Optimizer) Config() OptimizerConfig {
	return o.cfg
}

// FindOffset evaluates every candidate offset of the grid and returns the one
// with the strictly smallest total volume; ties keep the lowest offset.
//
// A candidate for which any single cut cannot be measured is discarded as a
// whole. If no candidate survives, ErrNoSilenceCandidate is returned.
func (o *Optimizer) FindOffset(meter audio.Meter, guesses []audio.Time) (Result, error) {
	if len(guesses) == 0 {
		return Result{}, nil
	}

	found := false
	var best Result
	var bestTotal float64

candidates:
	for i := 0; i < o.cfg.Trials; i++ {
		offset := o.cfg.Offset(i)
		total := 0.0
		for _, g := range guesses {
			v, err := meter.VolumeAt(g.Shift(offset))
			if err != nil {
				if errors.Is(err, audio.ErrOutOfBounds) {
					continue candidates
				}
				return Result{}, fmt.Errorf("measure volume at %s: %w", g.Shift(offset), err)
			}
			total += v
		}
		if !found || total < bestTotal {
			found = true
			bestTotal = total
			best = Result{Offset: offset, AverageVolume: total / float64(len(guesses))}
		}
	}

	if !found {
		return Result{}, ErrNoSilenceCandidate
	}
	return best, nil
}

// Optimize shifts every guess by the offset found by FindOffset.
func (o *Optimizer) Optimize(meter audio.Meter, guesses []audio.Time) ([]audio.Time, Result, error) {
	res, err := o.FindOffset(meter, guesses)
	if err != nil {
		return nil, Result{}, err
	}
	o.logger.Info("found silence offset",
		slog.Float64("offset", res.Offset),
		slog.Float64("average_volume", res.AverageVolume),
		slog.Int("cuts", len(guesses)),
	)
	return shiftAll(guesses, res.Offset), res, nil
}

// SilenceStrategy takes the boundaries of Base and moves them onto silence
// with an Optimizer.
type SilenceStrategy struct {
	// Base defaults to LengthStrategy.
	Base      Strategy
	Optimizer *Optimizer
	// WindowSamples is the volume window; zero uses audio.DefaultWindowSamples.
	WindowSamples uint32
	// ChunkSize > 0 searches a separate offset for every ChunkSize boundaries,
	// starting each chunk from the offset of the previous one. Long recordings
	// drift, so a single offset may not fit all of them.
	ChunkSize int
	// NewMeter overrides how volume is measured on the source.
	NewMeter func(src audio.Source) audio.Meter
}

// Timestamps implements Strategy.
func (s *SilenceStrategy) Timestamps(src audio.Source, sess *session.Session) ([]audio.Time, error) {
	guesses, err := baseOrLengths(s.Base).Timestamps(src, sess)
	if err != nil {
		return nil, err
	}

	opt := s.Optimizer
	if opt == nil {
		opt = NewOptimizer(DefaultOptimizerConfig(), nil)
	}
	meter := s.meter(src)

	if s.ChunkSize <= 0 || s.ChunkSize >= len(guesses) {
		cuts, _, err := opt.Optimize(meter, guesses)
		return cuts, err
	}

	cuts := make([]audio.Time, 0, len(guesses))
	carried := 0.0
	for start := 0; start < len(guesses); start += s.ChunkSize {
		end := min(start+s.ChunkSize, len(guesses))
		chunk := shiftAll(guesses[start:end], carried)
		shifted, res, err := opt.Optimize(meter, chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk starting at cut %d: %w", start, err)
		}
		cuts = append(cuts, shifted...)
		carried += res.Offset
	}
	return cuts, nil
}

func (s *SilenceStrategy) meter(src audio.Source) audio.Meter {
	if s.NewMeter != nil {
		return s.NewMeter(src)
	}
	return audio.NewVolumeEstimator(src, s.WindowSamples)
}
