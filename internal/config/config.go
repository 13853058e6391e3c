// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/trackslicer/internal/batch"
	"github.com/maauso/trackslicer/internal/storage"
	"github.com/maauso/trackslicer/internal/strategy"
)

// Static errors for configuration validation.
var (
	// ErrSessionsDirRequired is returned when SESSIONS_DIR is not set.
	ErrSessionsDirRequired = errors.New("config: SESSIONS_DIR is required")
	// ErrInvalidConfig is returned when a value is out of range.
	ErrInvalidConfig = errors.New("config: invalid value")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`

	// Session settings
	SessionsDir string `env:"SESSIONS_DIR, required" json:"sessions_dir" validate:"required"`

	// Cut settings
	FFmpegPath        string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path" validate:"required"`
	MaxConcurrentCuts int           `env:"MAX_CONCURRENT_CUTS, default=10" json:"max_concurrent_cuts" validate:"min=1"`
	PollInterval      time.Duration `env:"POLL_INTERVAL, default=50ms" json:"poll_interval" validate:"gt=0"`
	Bitrate           int           `env:"BITRATE, default=192000" json:"bitrate" validate:"min=1"`
	Codec             string        `env:"CODEC, default=libopus" json:"codec" validate:"required"`
	TrackExtension    string        `env:"TRACK_EXTENSION, default=opus" json:"track_extension" validate:"required,alphanum"`

	// Silence search settings
	SilenceMinOffset    float64 `env:"SILENCE_MIN_OFFSET, default=-3" json:"silence_min_offset"`
	SilenceMaxOffset    float64 `env:"SILENCE_MAX_OFFSET, default=3" json:"silence_max_offset" validate:"gtefield=SilenceMinOffset"`
	SilenceTrials       int     `env:"SILENCE_TRIALS, default=10000" json:"silence_trials" validate:"min=1"`
	SilenceChunkSize    int     `env:"SILENCE_CHUNK_SIZE, default=0" json:"silence_chunk_size" validate:"min=0"`
	VolumeWindowSamples uint32  `env:"VOLUME_WINDOW_SAMPLES, default=4000" json:"volume_window_samples" validate:"min=1"`

	// Optional local library
	LibraryDir string `env:"LIBRARY_DIR" json:"library_dir,omitempty"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"omitempty,oneof=json text JSON TEXT"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"` // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// LibraryEnabled returns true if finished tracks are copied to a local library.
func (c *Config) LibraryEnabled() bool {
	return c.LibraryDir != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	return LoadWith(context.Background(), envconfig.OsLookuper())
}

// LoadWith reads configuration through lookuper. The CLI uses it to layer
// its flags over the environment.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "SESSIONS_DIR") {
			return nil, ErrSessionsDirRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks that all required configuration is present and in range.
func (c *Config) Validate() error {
	if c.SessionsDir == "" {
		return ErrSessionsDirRequired
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// OptimizerConfig returns the search grid of the silence optimizer.
func (c *Config) OptimizerConfig() strategy.OptimizerConfig {
	return strategy.OptimizerConfig{
		MinOffset: c.SilenceMinOffset,
		MaxOffset: c.SilenceMaxOffset,
		Trials:    c.SilenceTrials,
	}
}

// BatchOptions returns the options of the cut session service.
func (c *Config) BatchOptions() batch.Options {
	return batch.Options{
		Strategy: strategy.Options{
			Optimizer:     c.OptimizerConfig(),
			WindowSamples: c.VolumeWindowSamples,
			ChunkSize:     c.SilenceChunkSize,
		},
		MaxConcurrent: c.MaxConcurrentCuts,
		PollInterval:  c.PollInterval,
		Extension:     c.TrackExtension,
	}
}

// S3Config returns the settings of the S3 publisher.
func (c *Config) S3Config() storage.S3Config {
	return storage.S3Config{
		Bucket:          c.S3Bucket,
		Region:          c.S3Region,
		Prefix:          c.S3Prefix,
		Endpoint:        c.S3Endpoint,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
	}
}

// NewLogger creates a structured logger writing to stdout.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, SessionsDir: %s, FFmpegPath: %s, MaxConcurrentCuts: %d, PollInterval: %s, Codec: %s, Bitrate: %d, TrackExtension: %s, Silence: [%g, %g]/%d chunk=%d, LibraryDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.SessionsDir,
		c.FFmpegPath,
		c.MaxConcurrentCuts,
		c.PollInterval,
		c.Codec,
		c.Bitrate,
		c.TrackExtension,
		c.SilenceMinOffset,
		c.SilenceMaxOffset,
		c.SilenceTrials,
		c.SilenceChunkSize,
		c.LibraryDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
