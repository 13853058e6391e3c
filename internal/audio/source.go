package audio

import (
	"errors"
	"fmt"
)

// ErrOutOfBounds is returned when a requested sample window is not fully
// present in the source: it starts before the stream, runs past its end or
// the read came up short. A Source never returns a truncated window.
var ErrOutOfBounds = errors.New("audio: sample window out of bounds")

// Source is a seekable reader over an interleaved 16-bit sample stream.
//
// Implementations are stateful and not safe for concurrent use; a Source is
// owned by one caller at a time.
type Source interface {
	// Extract returns exactly end.Sample-start.Sample interleaved samples
	// starting at start.FrameIndex(), or ErrOutOfBounds.
	Extract(start, end Time) ([]int16, error)

	// Spec returns the channel count and sample rate of the stream.
	Spec() Spec

	// Start returns the first position of the stream.
	Start() Time

	// End returns the position just past the last sample of the stream.
	End() Time
}

// windowLen validates a window request against src and returns the number of
// interleaved samples to read.
func windowLen(src Source, start, end Time) (int, error) {
	if start.Spec != src.Spec() || end.Spec != src.Spec() {
		panic(fmt.Sprintf("audio: window spec %s/%s does not match source %s", start.Spec, end.Spec, src.Spec()))
	}
	if start.Before(src.Start()) {
		return 0, fmt.Errorf("%w: start %s before stream start", ErrOutOfBounds, start)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("%w: end %s before start %s", ErrOutOfBounds, end, start)
	}
	return int(end.Sample) - int(start.Sample), nil
}

// SampleBuffer is an in-memory Source over already decoded samples.
type SampleBuffer struct {
	samples []int16
	spec    Spec
}

// Compile-time check that SampleBuffer implements Source.
var _ Source = (*SampleBuffer)(nil)

// NewSampleBuffer wraps interleaved samples with the given spec.
func NewSampleBuffer(samples []int16, spec Spec) *SampleBuffer {
	return &SampleBuffer{samples: samples, spec: spec}
}

// Extract implements Source.
func (b *SampleBuffer) Extract(start, end Time) ([]int16, error) {
	n, err := windowLen(b, start, end)
	if err != nil {
		return nil, err
	}
	offset := int(start.FrameIndex()) * int(b.spec.Channels)
	if offset+n > len(b.samples) {
		return nil, fmt.Errorf("%w: window %s-%s past stream end %s", ErrOutOfBounds, start, end, b.End())
	}
	out := make([]int16, n)
	copy(out, b.samples[offset:offset+n])
	return out, nil
}

// Spec implements Source.
func (b *SampleBuffer) Spec() Spec {
	return b.spec
}

// Start implements Source.
func (b *SampleBuffer) Start() Time {
	return FromSeconds(0, b.spec)
}

// End implements Source.
func (b *SampleBuffer) End() Time {
	return FromSample(uint32(len(b.samples)), b.spec)
}
