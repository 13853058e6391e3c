// Package session models a recorded listening session: the songs that were
// played, the track-change timestamps observed during capture and the
// on-disk layout of a session directory.
package session

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/maauso/trackslicer/internal/audio"
)

const (
	unknownArtist = "Unknown Artist"
	unknownAlbum  = "Unknown Album"
	unknownTitle  = "Unknown Title"
)

// Song is the metadata of one played track as reported by the player.
// Empty strings and a zero TrackNumber mean the player did not report the field.
//
// Songs are compared by value; do not mutate a Song after it was read.
type Song struct {
	Title       string  `yaml:"title,omitempty" json:"title,omitempty"`
	Album       string  `yaml:"album,omitempty" json:"album,omitempty"`
	Artist      string  `yaml:"artist,omitempty" json:"artist,omitempty"`
	TrackNumber int     `yaml:"track_number,omitempty" json:"track_number,omitempty" validate:"gte=0"`
	Length      float64 `yaml:"length" json:"length" validate:"gte=0"`
}

func (s Song) String() string {
	return fmt.Sprintf("%s - %s - %s", orDefault(s.Artist, unknownArtist), orDefault(s.Album, unknownAlbum), orDefault(s.Title, unknownTitle))
}

// TargetFile returns where the cut of this song is written below musicDir:
// <artist>/<album>/<NN> <title>.<ext>.
func (s Song) TargetFile(musicDir, ext string) string {
	name := sanitize(orDefault(s.Title, unknownTitle))
	if s.TrackNumber > 0 {
		name = fmt.Sprintf("%02d %s", s.TrackNumber, name)
	}
	return filepath.Join(musicDir, s.LibraryDir(), name+"."+ext)
}

// LibraryDir is the artist/album directory of the song, relative to a music root.
func (s Song) LibraryDir() string {
	return filepath.Join(sanitize(orDefault(s.Artist, unknownArtist)), sanitize(orDefault(s.Album, unknownAlbum)))
}

// Timestamp is an instant observed on the player's event bus, relative to the
// start of the capture. It marks a track change or a status change.
type Timestamp struct {
	Micros int64 `yaml:"time_since_start_micros" json:"time_since_start_micros" validate:"gte=0"`
}

// Seconds returns the timestamp in seconds since the start of the capture.
func (t Timestamp) Seconds() float64 {
	return float64(t.Micros) / 1e6
}

// FromDuration builds a Timestamp from a duration since the start of capture.
func FromDuration(d time.Duration) Timestamp {
	return Timestamp{Micros: d.Microseconds()}
}

// Session is one recorded listening session.
//
// Before TruncateToAvailable runs, len(Timestamps) >= len(Songs). After it,
// the timestamps bracket the songs: len(Timestamps) == len(Songs)+1.
type Session struct {
	Songs      []Song      `yaml:"songs" json:"songs" validate:"dive"`
	Timestamps []Timestamp `yaml:"timestamps" json:"timestamps" validate:"dive"`
}

// Times converts the timestamps to positions in a stream with the given spec.
func (s *Session) Times(spec audio.Spec) []audio.Time {
	times := make([]audio.Time, len(s.Timestamps))
	for i, ts := range s.Timestamps {
		times[i] = audio.FromSeconds(ts.Seconds(), spec)
	}
	return times
}

// Clone returns a copy that shares no slices with s.
func (s *Session) Clone() *Session {
	return &Session{
		Songs:      append([]Song(nil), s.Songs...),
		Timestamps: append([]Timestamp(nil), s.Timestamps...),
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

var pathReplacer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "")

// sanitize makes a metadata field usable as a single path element.
func sanitize(v string) string {
	v = strings.TrimSpace(pathReplacer.Replace(v))
	switch v {
	case "", ".", "..":
		return "_"
	}
	return v
}
