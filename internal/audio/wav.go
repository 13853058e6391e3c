package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
)

// ErrUnsupportedFormat is returned when the buffer file is not 16-bit PCM WAV.
var ErrUnsupportedFormat = errors.New("audio: unsupported WAV format")

const (
	wavFormatPCM   = 1
	bytesPerSample = 2
)

// WavSource reads sample windows from a 16-bit PCM WAV file on disk.
// Headers are parsed with go-audio/wav; sample windows are read directly from
// the data chunk so that long recordings are never loaded into memory.
type WavSource struct {
	file       *os.File
	spec       Spec
	dataOffset int64
	numSamples uint32
	buf        []byte
}

// Compile-time check that WavSource implements Source.
var _ Source = (*WavSource)(nil)

// OpenWav opens the WAV file at path.
//
// A capture that was interrupted may leave a header whose data size is zero or
// larger than the file; in that case the size is derived from the file length.
func OpenWav(path string) (*WavSource, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the session layout
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}

	src, err := newWavSource(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return src, nil
}

func newWavSource(f *os.File) (*WavSource, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrUnsupportedFormat, f.Name())
	}
	if dec.WavAudioFormat != wavFormatPCM || dec.BitDepth != 8*bytesPerSample {
		return nil, fmt.Errorf("%w: format %d, %d bits", ErrUnsupportedFormat, dec.WavAudioFormat, dec.BitDepth)
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrUnsupportedFormat, dec.NumChans, dec.SampleRate)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("find PCM data: %w", err)
	}

	// FwdToPCM leaves the file positioned at the first byte of the data chunk.
	dataOffset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("locate PCM data: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat wav: %w", err)
	}

	dataSize := dec.PCMLen()
	if available := info.Size() - dataOffset; dataSize <= 0 || dataSize > available {
		dataSize = available
	}

	return &WavSource{
		file:       f,
		spec:       Spec{Channels: dec.NumChans, SampleRate: dec.SampleRate},
		dataOffset: dataOffset,
		numSamples: uint32(dataSize / bytesPerSample),
	}, nil
}

// Extract implements Source.
func (s *WavSource) Extract(start, end Time) ([]int16, error) {
	n, err := windowLen(s, start, end)
	if err != nil {
		return nil, err
	}

	first := int64(start.FrameIndex()) * int64(s.spec.Channels)
	if first+int64(n) > int64(s.numSamples) {
		return nil, fmt.Errorf("%w: window %s-%s past stream end %s", ErrOutOfBounds, start, end, s.End())
	}

	size := n * bytesPerSample
	if cap(s.buf) < size {
		s.buf = make([]byte, size)
	}
	buf := s.buf[:size]
	read, err := s.file.ReadAt(buf, s.dataOffset+first*bytesPerSample)
	if read < size {
		return nil, fmt.Errorf("%w: short read of %d/%d bytes: %v", ErrOutOfBounds, read, size, err)
	}

	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*bytesPerSample:]))
	}
	return samples, nil
}

// Spec implements Source.
func (s *WavSource) Spec() Spec {
	return s.spec
}

// Start implements Source.
func (s *WavSource) Start() Time {
	return FromSeconds(0, s.spec)
}

// End implements Source.
func (s *WavSource) End() Time {
	return FromSample(s.numSamples, s.spec)
}

// Path returns the path of the underlying file.
func (s *WavSource) Path() string {
	return s.file.Name()
}

// Close releases the underlying file.
func (s *WavSource) Close() error {
	return s.file.Close()
}
