// Package strategy produces the cut points of a recorded session. Each
// Strategy returns len(songs)+1 boundaries; boundary i starts song i and
// boundary i+1 ends it.
package strategy

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/trackslicer/internal/audio"
	"github.com/maauso/trackslicer/internal/session"
)

// ErrNoTimestamps is returned when a session has no timestamp to start from.
var ErrNoTimestamps = errors.New("strategy: session has no timestamps")

// ErrUnknownStrategy is returned by New for an unsupported Kind.
var ErrUnknownStrategy = errors.New("strategy: unknown strategy")

// Strategy produces cut-time candidates for a session.
type Strategy interface {
	// Timestamps returns the ordered boundaries of the songs of s.
	Timestamps(src audio.Source, s *session.Session) ([]audio.Time, error)
}

// Kind names a Strategy.
type Kind string

const (
	// KindEvents trusts the event-bus timestamps.
	KindEvents Kind = "events"
	// KindLengths accumulates song lengths from the first timestamp.
	KindLengths Kind = "lengths"
	// KindSilence aligns the accumulated lengths with silence.
	KindSilence Kind = "silence"
	// KindOffset shifts the accumulated lengths by a fixed offset.
	KindOffset Kind = "offset"
)

// Kinds lists every supported Kind.
var Kinds = []Kind{KindEvents, KindLengths, KindSilence, KindOffset}

// Options configures the strategies built by New.
type Options struct {
	Optimizer     OptimizerConfig
	WindowSamples uint32
	// ChunkSize > 0 optimizes the silence offset per chunk of boundaries.
	ChunkSize int
	// Offset is the manual shift used by KindOffset, in seconds.
	Offset float64
	Logger *slog.Logger
}

// New returns the Strategy of the given kind.
func New(kind Kind, opts Options) (Strategy, error) {
	switch kind {
	case KindEvents:
		return EventStrategy{}, nil
	case KindLengths:
		return LengthStrategy{}, nil
	case KindOffset:
		return OffsetStrategy{Offset: opts.Offset}, nil
	case KindSilence:
		return &SilenceStrategy{
			Optimizer:     NewOptimizer(opts.Optimizer, opts.Logger),
			WindowSamples: opts.WindowSamples,
			ChunkSize:     opts.ChunkSize,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, kind)
	}
}

// EventStrategy uses one boundary per recorded timestamp.
type EventStrategy struct{}

// Timestamps implements Strategy.
func (EventStrategy) Timestamps(src audio.Source, s *session.Session) ([]audio.Time, error) {
	if len(s.Timestamps) == 0 {
		return nil, ErrNoTimestamps
	}
	return s.Times(src.Spec()), nil
}

// LengthStrategy trusts only the first timestamp and derives every later
// boundary by adding the declared song lengths. It ignores event jitter but
// drifts when the declared lengths are off.
type LengthStrategy struct{}

// Timestamps implements Strategy.
func (LengthStrategy) Timestamps(src audio.Source, s *session.Session) ([]audio.Time, error) {
	if len(s.Timestamps) == 0 {
		return nil, ErrNoTimestamps
	}

	spec := src.Spec()
	cursor := s.Timestamps[0].Seconds()
	times := make([]audio.Time, 0, len(s.Songs)+1)
	times = append(times, audio.FromSeconds(cursor, spec))
	for _, song := range s.Songs {
		cursor += song.Length
		times = append(times, audio.FromSeconds(cursor, spec))
	}
	return times, nil
}

// OffsetStrategy shifts the boundaries of Base by a fixed number of seconds.
// It is the fallback when no silence offset can be found automatically.
type OffsetStrategy struct {
	// Base defaults to LengthStrategy.
	Base   Strategy
	Offset float64
}

// Timestamps implements Strategy.
func (o OffsetStrategy) Timestamps(src audio.Source, s *session.Session) ([]audio.Time, error) {
	guesses, err := baseOrLengths(o.Base).Timestamps(src, s)
	if err != nil {
		return nil, err
	}
	return shiftAll(guesses, o.Offset), nil
}

func baseOrLengths(base Strategy) Strategy {
	if base == nil {
		return LengthStrategy{}
	}
	return base
}

func shiftAll(times []audio.Time, seconds float64) []audio.Time {
	out := make([]audio.Time, len(times))
	for i, t := range times {
		out[i] = t.Shift(seconds)
	}
	return out
}
