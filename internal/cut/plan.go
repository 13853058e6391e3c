// Package cut turns the boundaries of a session into cut jobs and runs them
// as external transcoder processes with bounded concurrency.
package cut

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/maauso/trackslicer/internal/audio"
	"github.com/maauso/trackslicer/internal/session"
	"github.com/maauso/trackslicer/internal/strategy"
)

// DefaultExtension is the file extension of cut songs.
const DefaultExtension = "opus"

// ErrBoundaryCount is returned when a strategy does not return exactly one
// more boundary than there are songs.
var ErrBoundaryCount = errors.New("cut: boundary count does not match songs")

// Job is one song to cut out of the session buffer. It holds no live
// resources and can be copied freely.
type Job struct {
	// Index is the position of the job in its plan.
	Index      int          `json:"index"`
	SourcePath string       `json:"source_path"`
	OutputPath string       `json:"output_path"`
	Start      audio.Time   `json:"start"`
	End        audio.Time   `json:"end"`
	Song       session.Song `json:"song"`
}

// Duration is the length of the cut in seconds.
func (j Job) Duration() float64 {
	return j.End.Seconds - j.Start.Seconds
}

// Planner builds the jobs of a session.
type Planner struct {
	// SourcePath is the buffer file the jobs read from.
	SourcePath string
	// MusicDir is the root below which songs are written.
	MusicDir string
	// Extension defaults to DefaultExtension.
	Extension string
}

// PlannerFor returns the Planner for the standard layout of session p.
func PlannerFor(p session.Path, ext string) Planner {
	return Planner{SourcePath: p.BufferFile(), MusicDir: p.MusicDir(), Extension: ext}
}

// Plan runs strat once and pairs consecutive boundaries with the songs of s,
// in order. It performs no I/O besides resolving absolute paths.
//
// Output paths are unique within the plan: a song played twice gets a
// " (2)" suffix on its second cut.
func (p Planner) Plan(strat strategy.Strategy, src audio.Source, s *session.Session) ([]Job, error) {
	bounds, err := strat.Timestamps(src, s)
	if err != nil {
		return nil, fmt.Errorf("compute cut points: %w", err)
	}
	if len(bounds) != len(s.Songs)+1 {
		return nil, fmt.Errorf("%w: %d boundaries for %d songs", ErrBoundaryCount, len(bounds), len(s.Songs))
	}

	source, err := filepath.Abs(p.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	musicDir, err := filepath.Abs(p.MusicDir)
	if err != nil {
		return nil, fmt.Errorf("resolve music directory: %w", err)
	}
	ext := p.Extension
	if ext == "" {
		ext = DefaultExtension
	}

	jobs := make([]Job, len(s.Songs))
	taken := make(map[string]bool, len(s.Songs))
	for i, song := range s.Songs {
		jobs[i] = Job{
			Index:      i,
			SourcePath: source,
			OutputPath: uniquePath(song.TargetFile(musicDir, ext), taken),
			Start:      bounds[i],
			End:        bounds[i+1],
			Song:       song,
		}
	}
	return jobs, nil
}

// uniquePath returns path, or path with a " (n)" suffix before its extension
// if it is already taken, and marks the result taken.
func uniquePath(path string, taken map[string]bool) string {
	candidate := path
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 2; taken[candidate]; n++ {
		candidate = fmt.Sprintf("%s (%d)%s", base, n, ext)
	}
	taken[candidate] = true
	return candidate
}
