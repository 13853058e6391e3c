package session

import (
	"errors"
	"log/slog"

	"github.com/maauso/trackslicer/internal/audio"
)

// ErrNoValidData is returned when fewer than two timestamps of a session have
// audio behind them, so not a single song can be cut.
var ErrNoValidData = errors.New("session: faulty recording, nothing to cut")

// TruncateToAvailable drops the tail of the session for which no audio was
// captured. It measures the volume at every timestamp in order and stops at the
// first one the meter cannot measure. With k measurable timestamps, the
// session keeps the (at most) k-1 songs bracketed by them and one more
// timestamp than songs.
//
// When k < 2 the session is left untouched and ErrNoValidData is returned.
// Must run before any cutting strategy.
func (s *Session) TruncateToAvailable(meter audio.Meter, spec audio.Spec, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	valid := 0
	for _, t := range s.Times(spec) {
		if _, err := meter.VolumeAt(t); err != nil {
			if !errors.Is(err, audio.ErrOutOfBounds) {
				return err
			}
			break
		}
		valid++
	}

	if valid < 2 {
		logger.Error("no usable audio in session",
			slog.Int("valid_timestamps", valid),
			slog.Int("timestamps", len(s.Timestamps)),
		)
		return ErrNoValidData
	}

	keep := min(valid-1, len(s.Songs))
	for _, song := range s.Songs[keep:] {
		logger.Warn("discarding invalid song",
			slog.String("song", song.String()),
		)
	}
	s.Songs = s.Songs[:keep]
	// Trailing status-change events past the last song bracket nothing.
	s.Timestamps = s.Timestamps[:keep+1]
	return nil
}
