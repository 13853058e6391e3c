package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/trackslicer/internal/audio"
	"github.com/maauso/trackslicer/internal/cut"
	"github.com/maauso/trackslicer/internal/session"
	"github.com/maauso/trackslicer/internal/storage"
	"github.com/maauso/trackslicer/internal/strategy"
)

var (
	// ErrInvalidInput is returned when a cut request fails validation.
	ErrInvalidInput = errors.New("invalid cut request")
	// ErrSessionBusy is returned when a session already has a batch that has
	// not finished. Two batches would write the same track files.
	ErrSessionBusy = errors.New("session already has a running batch")
)

var validate = validator.New()

// CutInput contains the parameters of one session cut.
type CutInput struct {
	// Session is the name of the session directory.
	Session string `validate:"required"`
	// Strategy defaults to silence, or to offset when Offset is set.
	Strategy strategy.Kind `validate:"omitempty,oneof=events lengths silence offset"`
	// Offset is the manual shift in seconds for the offset strategy.
	Offset *float64 `validate:"omitempty,gte=-600,lte=600"`
}

// Options configures how sessions are cut.
type Options struct {
	Strategy      strategy.Options
	MaxConcurrent int
	PollInterval  time.Duration
	// Extension of the cut files; defaults to cut.DefaultExtension.
	Extension string
}

// Listener is notified about the progress of a batch. Calls for one batch
// are never concurrent.
type Listener interface {
	// Planned is called once the tracks of the batch are known.
	Planned(batchID string, tracks []Track)
	// TrackDone is called for every track whose file was written, once it
	// has been published.
	TrackDone(batchID string, track Track)
}

// CutSessionService orchestrates the cut of a recorded session: validity
// filtering, cut point strategy, planning, dispatching the transcoder
// processes and publishing finished tracks.
type CutSessionService struct {
	repo     Repository
	sessions *session.Manager
	launcher cut.Launcher
	logger   *slog.Logger
	opts     Options

	storage  storage.Storage
	listener Listener

	// background is the parent context of batches started with Start.
	background context.Context
	wg         sync.WaitGroup

	// creating serializes the busy check and save of CreateBatch.
	creating sync.Mutex
}

// ServiceOption configures a CutSessionService.
type ServiceOption func(*CutSessionService)

// WithStorage publishes every finished track to st.
func WithStorage(st storage.Storage) ServiceOption {
	return func(s *CutSessionService) {
		s.storage = st
	}
}

// WithListener registers a progress listener.
func WithListener(l Listener) ServiceOption {
	return func(s *CutSessionService) {
		s.listener = l
	}
}

// WithBackgroundContext sets the context batches started with Start run in.
// Cancelling it stops their transcoder processes.
func WithBackgroundContext(ctx context.Context) ServiceOption {
	return func(s *CutSessionService) {
		s.background = ctx
	}
}

// NewCutSessionService creates a new CutSessionService.
func NewCutSessionService(repo Repository, sessions *session.Manager, launcher cut.Launcher, logger *slog.Logger, opts Options, svcOpts ...ServiceOption) *CutSessionService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &CutSessionService{
		repo:       repo,
		sessions:   sessions,
		launcher:   launcher,
		logger:     logger,
		opts:       opts,
		background: context.Background(),
	}
	for _, opt := range svcOpts {
		opt(s)
	}
	return s
}

// ListSessions returns the recorded sessions, newest first.
func (s *CutSessionService) ListSessions() ([]session.Path, error) {
	return s.sessions.List()
}

// CreateBatch validates the request and persists a queued batch for it.
func (s *CutSessionService) CreateBatch(ctx context.Context, in CutInput) (*Batch, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := s.sessions.Get(in.Session); err != nil {
		return nil, err
	}

	kind := in.Strategy
	if kind == "" {
		kind = strategy.KindSilence
		if in.Offset != nil {
			kind = strategy.KindOffset
		}
	}

	b := New(in.Session, kind)
	if in.Offset != nil {
		b.Offset = *in.Offset
	}

	s.creating.Lock()
	defer s.creating.Unlock()

	if err := s.checkIdle(ctx, in.Session); err != nil {
		return nil, err
	}

	s.logger.Info("creating cut batch",
		slog.String("batch_id", b.ID),
		slog.String("session", b.Session),
		slog.String("strategy", string(kind)),
	)

	if err := s.repo.Save(ctx, b); err != nil {
		s.logger.Error("failed to save batch",
			slog.String("batch_id", b.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return b, nil
}

// checkIdle returns ErrSessionBusy if a batch of the session is not terminal.
func (s *CutSessionService) checkIdle(ctx context.Context, sessionName string) error {
	batches, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, other := range batches {
		if other.Session == sessionName && !other.IsTerminal() {
			return fmt.Errorf("%w: %s (%s)", ErrSessionBusy, sessionName, other.ID)
		}
	}
	return nil
}

// GetBatch retrieves a batch by ID.
func (s *CutSessionService) GetBatch(ctx context.Context, id string) (*Batch, error) {
	return s.repo.FindByID(ctx, id)
}

// ListBatches returns all batches, oldest first.
func (s *CutSessionService) ListBatches(ctx context.Context) ([]*Batch, error) {
	return s.repo.List(ctx)
}

// Cut creates a batch and runs it to the end.
func (s *CutSessionService) Cut(ctx context.Context, in CutInput) (*Batch, error) {
	b, err := s.CreateBatch(ctx, in)
	if err != nil {
		return nil, err
	}
	err = s.Run(ctx, b)
	return b.Clone(), err
}

// Start creates a batch and runs it in the background. The returned batch
// is a snapshot; poll GetBatch for progress.
func (s *CutSessionService) Start(ctx context.Context, in CutInput) (*Batch, error) {
	b, err := s.CreateBatch(ctx, in)
	if err != nil {
		return nil, err
	}
	snapshot := b.Clone()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Run(s.background, b)
	}()

	return snapshot, nil
}

// Wait blocks until every batch started with Start has returned.
func (s *CutSessionService) Wait() {
	s.wg.Wait()
}

// Run executes the workflow of a queued batch and persists every state change.
//
// The workflow:
//  1. Load the session and open its buffer
//  2. Drop the songs without captured audio
//  3. Compute the cut points with the batch strategy and plan the jobs
//  4. Dispatch the transcoder processes, publishing each finished track
//  5. Mark the batch COMPLETED, FAILED or CANCELLED
func (s *CutSessionService) Run(ctx context.Context, b *Batch) error {
	logger := s.logger.With(
		slog.String("batch_id", b.ID),
		slog.String("session", b.Session),
	)

	if err := b.Start(); err != nil {
		return err
	}
	s.save(ctx, b, logger)
	logger.Info("batch started", slog.String("strategy", string(b.Strategy)))

	jobs, err := s.plan(b, logger)
	if err != nil {
		return s.fail(ctx, b, err, logger)
	}
	s.save(ctx, b, logger)
	if s.listener != nil {
		s.listener.Planned(b.ID, b.Clone().Tracks)
	}

	// Finished tracks are published off the dispatch loop so that uploads
	// never delay polling or launching.
	finished := make(chan cut.Job, len(jobs))
	var publishing sync.WaitGroup
	publishing.Add(1)
	go func() {
		defer publishing.Done()
		for j := range finished {
			s.finishTrack(ctx, b, j, logger)
		}
	}()

	dispatcher := cut.NewDispatcher(s.launcher, logger,
		cut.WithMaxConcurrent(s.opts.MaxConcurrent),
		cut.WithPollInterval(s.opts.PollInterval),
		cut.WithOnFinished(func(j cut.Job) {
			finished <- j
		}),
	)

	_, err = dispatcher.Run(ctx, jobs)
	close(finished)
	publishing.Wait()

	if err != nil {
		var procErr *cut.ProcessError
		if errors.As(err, &procErr) {
			b.MarkFailed(procErr.Job.Index, procErr.Err.Error())
		}
		return s.fail(ctx, b, err, logger)
	}

	if err := b.Complete(); err != nil {
		return err
	}
	s.save(ctx, b, logger)
	logger.Info("batch completed", slog.Int("tracks", len(jobs)))
	return nil
}

// plan prepares the jobs of b and records them as its tracks.
func (s *CutSessionService) plan(b *Batch, logger *slog.Logger) ([]cut.Job, error) {
	p, err := s.sessions.Get(b.Session)
	if err != nil {
		return nil, err
	}
	sess, err := session.Load(p)
	if err != nil {
		return nil, err
	}

	src, err := audio.OpenWav(p.BufferFile())
	if err != nil {
		return nil, fmt.Errorf("open session buffer: %w", err)
	}
	defer func() { _ = src.Close() }()

	songs := len(sess.Songs)
	meter := audio.NewVolumeEstimator(src, s.opts.Strategy.WindowSamples)
	if err := sess.TruncateToAvailable(meter, src.Spec(), logger); err != nil {
		return nil, err
	}

	opts := s.opts.Strategy
	opts.Offset = b.Offset
	opts.Logger = logger
	strat, err := strategy.New(b.Strategy, opts)
	if err != nil {
		return nil, err
	}

	jobs, err := cut.PlannerFor(p, s.opts.Extension).Plan(strat, src, sess)
	if err != nil {
		return nil, err
	}

	b.SetPlan(jobs, songs-len(sess.Songs))
	logger.Info("batch planned",
		slog.Int("tracks", len(jobs)),
		slog.Int("discarded", songs-len(sess.Songs)),
	)
	return jobs, nil
}

// finishTrack publishes a finished track and marks it done.
func (s *CutSessionService) finishTrack(ctx context.Context, b *Batch, j cut.Job, logger *slog.Logger) {
	var location, publishErr string
	if s.storage != nil {
		key := storage.Key(j.Song.LibraryDir(), j.OutputPath)
		loc, err := storage.PublishFile(ctx, s.storage, key, j.OutputPath)
		if err != nil {
			logger.Error("failed to publish track",
				slog.String("song", j.Song.String()),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			publishErr = err.Error()
		} else {
			location = loc
		}
	}

	track, ok := b.MarkDone(j.Index, location, publishErr)
	if !ok {
		return
	}
	s.save(ctx, b, logger)
	if s.listener != nil {
		s.listener.TrackDone(b.ID, track)
	}
}

// fail records err on b: a cancelled context cancels the batch, anything
// else fails it. err is returned.
func (s *CutSessionService) fail(ctx context.Context, b *Batch, err error, logger *slog.Logger) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		logger.Warn("batch cancelled", slog.String("error", err.Error()))
		_ = b.Cancel()
	} else {
		logger.Error("batch failed", slog.String("error", err.Error()))
		_ = b.Fail(err.Error())
	}
	s.save(context.WithoutCancel(ctx), b, logger)
	return err
}

func (s *CutSessionService) save(ctx context.Context, b *Batch, logger *slog.Logger) {
	if err := s.repo.Save(ctx, b); err != nil {
		logger.Error("failed to save batch", slog.String("error", err.Error()))
	}
}
