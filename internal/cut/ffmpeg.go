package cut

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Defaults for FFmpegLauncher.
const (
	DefaultCodec   = "libopus"
	DefaultBitrate = 192000
)

// FFmpegLauncher implements Launcher using the ffmpeg CLI.
type FFmpegLauncher struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	codec      string
	bitrate    int
}

// NewFFmpegLauncher creates a new FFmpegLauncher.
// Empty or zero arguments fall back to "ffmpeg", DefaultCodec and DefaultBitrate.
func NewFFmpegLauncher(ffmpegPath, codec string, bitrate int) *FFmpegLauncher {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if codec == "" {
		codec = DefaultCodec
	}
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}
	return &FFmpegLauncher{ffmpegPath: ffmpegPath, codec: codec, bitrate: bitrate}
}

// Args returns the ffmpeg arguments that cut job.
func (l *FFmpegLauncher) Args(job Job) []string {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(job.Start.Seconds), // Seek before opening the input
		"-t", formatSeconds(job.Duration()),
		"-i", job.SourcePath,
		"-c:a", l.codec,
		"-b:a", strconv.Itoa(l.bitrate),
	}

	song := job.Song
	tags := []struct{ key, value string }{
		{"title", song.Title},
		{"album", song.Album},
		{"artist", song.Artist},
		{"albumartist", song.Artist},
	}
	for _, tag := range tags {
		if tag.value != "" {
			args = append(args, "-metadata", tag.key+"="+tag.value)
		}
	}
	if song.TrackNumber > 0 {
		args = append(args, "-metadata", "track="+strconv.Itoa(song.TrackNumber))
	}

	return append(args, "-y", job.OutputPath)
}

// Launch creates the output directory and starts ffmpeg without waiting for
// it. Stderr is kept for the error of a failed process.
func (l *FFmpegLauncher) Launch(ctx context.Context, job Job) (Process, error) {
	dir := filepath.Dir(job.OutputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}

	args := l.Args(job)
	cmd := exec.CommandContext(ctx, l.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", l.ffmpegPath, err)
	}

	p := &execProcess{done: make(chan struct{})}
	go func() {
		if err := cmd.Wait(); err != nil {
			p.err = fmt.Errorf("%w: %s: %w", ErrProcessFailed, job.OutputPath, &FFmpegError{
				Args:   args,
				Stderr: stderr.String(),
				Err:    err,
			})
		}
		close(p.done)
	}()
	return p, nil
}

// FFmpegError represents a failed ffmpeg run, including its stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg: %v: %s", e.Err, strings.TrimSpace(e.Stderr))
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

type execProcess struct {
	done chan struct{}
	err  error
}

func (p *execProcess) Exited() (bool, error) {
	select {
	case <-p.done:
		return true, p.err
	default:
		return false, nil
	}
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', -1, 64)
}
