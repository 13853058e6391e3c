// Package main provides the trackslicer command line tool, which cuts a
// recorded session into one file per song.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/trackslicer/internal/batch"
	"github.com/maauso/trackslicer/internal/bootstrap"
	"github.com/maauso/trackslicer/internal/config"
	"github.com/maauso/trackslicer/internal/strategy"
)

var version = "0.1.0"

// Globals are the flags shared by every command. Unset flags fall back to
// the environment variables of the server.
type Globals struct {
	SessionsDir string           `name:"sessions-dir" short:"d" type:"path" help:"Directory holding the recorded sessions (SESSIONS_DIR)."`
	FFmpeg      string           `name:"ffmpeg" help:"Path of the ffmpeg binary (FFMPEG_PATH)."`
	Jobs        int              `short:"j" help:"Maximum number of concurrent ffmpeg processes (MAX_CONCURRENT_CUTS)."`
	LogLevel    string           `name:"log-level" help:"debug, info, warn or error (LOG_LEVEL, default warn)."`
	Version     kong.VersionFlag `short:"v" help:"Show version information."`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Cut      CutCmd      `cmd:"" help:"Cut a session into one file per song."`
	Sessions SessionsCmd `cmd:"" help:"List the recorded sessions, newest first."`
}

// cliDefaults apply when neither a flag nor the environment sets a value.
var cliDefaults = map[string]string{
	"LOG_LEVEL": "warn",
}

// lookuper layers the flags over the environment over the CLI defaults.
func (g *Globals) lookuper() envconfig.Lookuper {
	flags := map[string]string{}
	if g.SessionsDir != "" {
		flags["SESSIONS_DIR"] = g.SessionsDir
	}
	if g.FFmpeg != "" {
		flags["FFMPEG_PATH"] = g.FFmpeg
	}
	if g.Jobs > 0 {
		flags["MAX_CONCURRENT_CUTS"] = strconv.Itoa(g.Jobs)
	}
	if g.LogLevel != "" {
		flags["LOG_LEVEL"] = g.LogLevel
	}
	return envconfig.MultiLookuper(
		envconfig.MapLookuper(flags),
		envconfig.OsLookuper(),
		envconfig.MapLookuper(cliDefaults),
	)
}

func (g *Globals) config(ctx context.Context) (*config.Config, error) {
	cfg, err := config.LoadWith(ctx, g.lookuper())
	if errors.Is(err, config.ErrSessionsDirRequired) {
		return nil, fmt.Errorf("%w (or pass --sessions-dir)", err)
	}
	return cfg, err
}

// CutCmd cuts one session.
type CutCmd struct {
	Session  string  `arg:"" optional:"" help:"Session to cut; the newest one when omitted."`
	Strategy string  `short:"s" help:"Cut point strategy: events, lengths, silence or offset. Defaults to silence, or offset with --offset."`
	Offset   float64 `short:"o" help:"Manual shift in seconds applied to the song lengths."`
}

// Run executes the cut command.
func (c *CutCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.config(ctx)
	if err != nil {
		return err
	}
	logger := cfg.NewLoggerTo(os.Stderr)

	progress := newProgress(os.Stdout)
	deps, err := bootstrap.NewDependencies(ctx, cfg, logger, batch.WithListener(progress))
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	name := c.Session
	if name == "" {
		paths, err := deps.Sessions.List()
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no sessions in %s", cfg.SessionsDir)
		}
		name = paths[0].Name()
	}

	in := batch.CutInput{Session: name, Strategy: strategy.Kind(c.Strategy)}
	if c.Offset != 0 || in.Strategy == strategy.KindOffset {
		offset := c.Offset
		in.Offset = &offset
	}

	result, err := deps.CutService.Cut(ctx, in)
	progress.Wait(err == nil)
	if result != nil {
		printSummary(os.Stdout, result)
	}
	if errors.Is(err, strategy.ErrNoSilenceCandidate) {
		return fmt.Errorf("%w (try --strategy offset --offset <seconds>)", err)
	}
	return err
}

// SessionsCmd lists sessions.
type SessionsCmd struct{}

// Run executes the sessions command.
func (s *SessionsCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.config(ctx)
	if err != nil {
		return err
	}
	deps, err := bootstrap.NewDependencies(ctx, cfg, cfg.NewLoggerTo(os.Stderr))
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	paths, err := deps.CutService.ListSessions()
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p.Name())
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("trackslicer"),
		kong.Description("Cut recorded listening sessions into tagged tracks"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	err := kctx.Run(&cli.Globals)
	stop()
	kctx.FatalIfErrorf(err)
}
