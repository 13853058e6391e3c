// Package audio provides the sample-level view of a recorded session buffer:
// positions in the stream (Time), windowed sample extraction (Source) and
// volume estimation on top of it.
package audio

import (
	"fmt"
	"math"
)

// Spec describes the layout of an interleaved sample stream.
type Spec struct {
	Channels   uint16 `json:"channels" yaml:"channels"`
	SampleRate uint32 `json:"sample_rate" yaml:"sample_rate"`
}

// samplesPerSecond is the number of interleaved samples in one second of audio.
func (s Spec) samplesPerSecond() float64 {
	return float64(s.Channels) * float64(s.SampleRate)
}

func (s Spec) String() string {
	return fmt.Sprintf("%dch@%dHz", s.Channels, s.SampleRate)
}

// Time is a position in an audio stream, viewed both as seconds and as an
// interleaved sample index. Sample always equals floor(Seconds * channels * rate),
// clamped to the uint32 range.
type Time struct {
	Seconds float64 `json:"seconds"`
	Sample  uint32  `json:"sample"`
	Spec    Spec    `json:"spec"`
}

// FromSeconds returns the Time at seconds for a stream with the given spec.
func FromSeconds(seconds float64, spec Spec) Time {
	return Time{
		Seconds: seconds,
		Sample:  toIndex(seconds * spec.samplesPerSecond()),
		Spec:    spec,
	}
}

// FromSample returns the Time of the interleaved sample index for the given spec.
func FromSample(sample uint32, spec Spec) Time {
	return Time{
		Seconds: float64(sample) / spec.samplesPerSecond(),
		Sample:  sample,
		Spec:    spec,
	}
}

// FromSecondsLike returns the Time at seconds using the spec of template.
func FromSecondsLike(seconds float64, template Time) Time {
	return FromSeconds(seconds, template.Spec)
}

// Add returns t + other. Both must share the same spec.
func (t Time) Add(other Time) Time {
	t.mustMatch(other)
	return FromSecondsLike(t.Seconds+other.Seconds, t)
}

// Sub returns t - other. Both must share the same spec.
func (t Time) Sub(other Time) Time {
	t.mustMatch(other)
	return FromSecondsLike(t.Seconds-other.Seconds, t)
}

// Scale returns t multiplied by factor.
func (t Time) Scale(factor float64) Time {
	return FromSecondsLike(t.Seconds*factor, t)
}

// Shift returns t moved by the given number of seconds.
func (t Time) Shift(seconds float64) Time {
	return FromSecondsLike(t.Seconds+seconds, t)
}

// FrameIndex is the per-channel sample index of t, used for seeking.
func (t Time) FrameIndex() uint32 {
	if t.Spec.Channels == 0 {
		return 0
	}
	return t.Sample / uint32(t.Spec.Channels)
}

// Before reports whether t is earlier than other.
func (t Time) Before(other Time) bool {
	return t.Seconds < other.Seconds
}

// After reports whether t is later than other.
func (t Time) After(other Time) bool {
	return t.Seconds > other.Seconds
}

// Compare returns -1, 0 or +1 depending on whether t is before, equal to or after other.
func (t Time) Compare(other Time) int {
	switch {
	case t.Seconds < other.Seconds:
		return -1
	case t.Seconds > other.Seconds:
		return 1
	default:
		return 0
	}
}

func (t Time) String() string {
	return fmt.Sprintf("%.3fs", t.Seconds)
}

// mustMatch panics when the operands describe different streams. Mixing specs
// is a programming error and the result would be meaningless.
func (t Time) mustMatch(other Time) {
	if t.Spec != other.Spec {
		panic(fmt.Sprintf("audio: mismatched spec %s vs %s", t.Spec, other.Spec))
	}
}

// Interpolate returns the time at factor between start and end
// (0 yields start, 1 yields end).
func Interpolate(start, end Time, factor float64) Time {
	return start.Add(end.Sub(start).Scale(factor))
}

// InterpolationFactor is the inverse of Interpolate.
func InterpolationFactor(start, end, x Time) float64 {
	return (x.Seconds - start.Seconds) / (end.Seconds - start.Seconds)
}

// toIndex truncates v to a sample index. Negative values saturate at 0 and
// values beyond the uint32 range at math.MaxUint32.
func toIndex(v float64) uint32 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(math.Floor(v))
	}
}
