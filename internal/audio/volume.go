package audio

import (
	"fmt"
	"math"
)

// DefaultWindowSamples is the number of interleaved samples averaged by a
// VolumeEstimator when no window size is given.
const DefaultWindowSamples = 4000

// Meter reports the average signal magnitude around a point in time.
// Implementations return ErrOutOfBounds when the point is too close to, or
// beyond, the edges of the recording.
type Meter interface {
	VolumeAt(t Time) (float64, error)
}

// VolumeEstimator measures volume on a Source by averaging the absolute
// amplitude of a fixed-size window centered on the requested time.
type VolumeEstimator struct {
	src           Source
	windowSamples uint32
}

// Compile-time check that VolumeEstimator implements Meter.
var _ Meter = (*VolumeEstimator)(nil)

// NewVolumeEstimator creates a VolumeEstimator over src.
// If windowSamples is zero, DefaultWindowSamples is used.
func NewVolumeEstimator(src Source, windowSamples uint32) *VolumeEstimator {
	if windowSamples == 0 {
		windowSamples = DefaultWindowSamples
	}
	return &VolumeEstimator{src: src, windowSamples: windowSamples}
}

// VolumeAt returns the mean of |sample| / MaxInt16 over the window around t,
// a value in [0, 1]. ErrOutOfBounds from the source is returned unchanged.
func (v *VolumeEstimator) VolumeAt(t Time) (float64, error) {
	spec := v.src.Spec()
	half := FromSample(v.windowSamples/2, spec)
	if t.Before(half) {
		return 0, fmt.Errorf("%w: window at %s starts before stream start", ErrOutOfBounds, t)
	}
	// Window bounds are built from sample indices so every window holds
	// exactly windowSamples samples, aligned to a frame.
	first := t.Sub(half).FrameIndex() * uint32(spec.Channels)
	start := FromSample(first, spec)
	end := FromSample(first+v.windowSamples, spec)
	samples, err := v.src.Extract(start, end)
	if err != nil {
		return 0, err
	}
	if len(samples) == 0 {
		return 0, fmt.Errorf("%w: empty window at %s", ErrOutOfBounds, t)
	}

	const inv = 1.0 / math.MaxInt16
	var sum float64
	for _, s := range samples {
		sum += math.Min(math.Abs(float64(s))*inv, 1)
	}
	return sum / float64(len(samples)), nil
}
