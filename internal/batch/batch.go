// Package batch provides the Batch aggregate: one cut of one recorded
// session, tracked from queueing through planning and dispatch to the
// published tracks. It includes the state machine, repository port and the
// CutSessionService use case.
package batch

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/trackslicer/internal/batch/id"
	"github.com/maauso/trackslicer/internal/cut"
	"github.com/maauso/trackslicer/internal/session"
	"github.com/maauso/trackslicer/internal/strategy"
)

// Status represents the current state of a Batch.
type Status string

const (
	// StatusQueued indicates the batch was accepted but not started.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates the session is being planned or cut.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates every planned track was cut.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the batch was aborted by an error.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the batch was stopped by its caller.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TrackStatus represents the status of a single planned track.
type TrackStatus string

const (
	// TrackPending indicates the track is waiting for or inside its cut process.
	TrackPending TrackStatus = "PENDING"
	// TrackDone indicates the track file was written.
	TrackDone TrackStatus = "DONE"
	// TrackFailed indicates the cut process of the track failed.
	TrackFailed TrackStatus = "FAILED"
)

// Track is one planned song of a batch.
type Track struct {
	Index      int
	Song       session.Song
	Start      float64
	End        float64
	OutputPath string
	Status     TrackStatus
	// Location is where the track was published, if publishing is enabled.
	Location string
	// Error holds a cut or publish failure.
	Error       string
	CompletedAt time.Time
}

// Batch is the aggregate of one session cut.
type Batch struct {
	mu sync.RWMutex

	ID       string
	Session  string
	Strategy strategy.Kind
	// Offset is the manual shift of an offset strategy.
	Offset float64
	Status Status
	Tracks []Track
	// Discarded counts the songs dropped because no audio was captured for them.
	Discarded int
	// Progress is the percentage of planned tracks already cut (0-100).
	Progress    int
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New creates a queued Batch with a generated ID.
func New(sessionName string, kind strategy.Kind) *Batch {
	return NewWithID(id.Generate(), sessionName, kind)
}

// NewWithID creates a queued Batch with the specified ID.
func NewWithID(batchID, sessionName string, kind strategy.Kind) *Batch {
	now := time.Now()
	return &Batch{
		ID:        batchID,
		Session:   sessionName,
		Strategy:  kind,
		Status:    StatusQueued,
		Tracks:    make([]Track, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the batch status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (b *Batch) TransitionTo(status Status) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !canTransition(b.Status, status) {
		return ErrInvalidTransition
	}

	b.Status = status
	b.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		b.StartedAt = b.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		b.CompletedAt = b.UpdatedAt
	}

	return nil
}

// Start transitions the batch from QUEUED to RUNNING.
func (b *Batch) Start() error {
	return b.TransitionTo(StatusRunning)
}

// Complete transitions the batch to COMPLETED.
func (b *Batch) Complete() error {
	return b.TransitionTo(StatusCompleted)
}

// Fail transitions the batch to FAILED with an error message.
func (b *Batch) Fail(errMsg string) error {
	b.mu.Lock()
	b.Error = errMsg
	b.mu.Unlock()
	return b.TransitionTo(StatusFailed)
}

// Cancel transitions the batch to CANCELLED.
func (b *Batch) Cancel() error {
	return b.TransitionTo(StatusCancelled)
}

// GetStatus returns the current batch status (thread-safe).
func (b *Batch) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.Status
}

// IsTerminal returns true if the batch is in a terminal state.
func (b *Batch) IsTerminal() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(validTransitions[b.Status]) == 0
}

// SetPlan records the planned jobs as pending tracks and the number of songs
// the validity filter dropped. Tracks are indexed by their position in jobs.
func (b *Batch) SetPlan(jobs []cut.Job, discarded int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Tracks = make([]Track, len(jobs))
	for i, j := range jobs {
		b.Tracks[i] = Track{
			Index:      i,
			Song:       j.Song,
			Start:      j.Start.Seconds,
			End:        j.End.Seconds,
			OutputPath: j.OutputPath,
			Status:     TrackPending,
		}
	}
	b.Discarded = discarded
	b.Progress = 0
	b.UpdatedAt = time.Now()
}

// MarkDone marks the track at index as done and records where it was
// published. It returns the updated track, or false if index is out of range.
func (b *Batch) MarkDone(index int, location, publishErr string) (Track, bool) {
	return b.updateTrack(index, func(t *Track) {
		t.Status = TrackDone
		t.Location = location
		t.Error = publishErr
		t.CompletedAt = time.Now()
	})
}

// MarkFailed marks the track at index as failed.
func (b *Batch) MarkFailed(index int, errMsg string) (Track, bool) {
	return b.updateTrack(index, func(t *Track) {
		t.Status = TrackFailed
		t.Error = errMsg
		t.CompletedAt = time.Now()
	})
}

func (b *Batch) updateTrack(index int, update func(*Track)) (Track, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.Tracks) {
		return Track{}, false
	}
	update(&b.Tracks[index])
	b.Progress = b.progress()
	b.UpdatedAt = time.Now()
	return b.Tracks[index], true
}

// progress must be called with the lock held.
func (b *Batch) progress() int {
	if len(b.Tracks) == 0 {
		return 0
	}
	done := 0
	for _, t := range b.Tracks {
		if t.Status == TrackDone {
			done++
		}
	}
	return done * 100 / len(b.Tracks)
}

// Clone creates a deep copy of the batch for safe reads.
func (b *Batch) Clone() *Batch {
	b.mu.RLock()
	defer b.mu.RUnlock()

	tracks := make([]Track, len(b.Tracks))
	copy(tracks, b.Tracks)

	return &Batch{
		ID:          b.ID,
		Session:     b.Session,
		Strategy:    b.Strategy,
		Offset:      b.Offset,
		Status:      b.Status,
		Tracks:      tracks,
		Discarded:   b.Discarded,
		Progress:    b.Progress,
		Error:       b.Error,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
		StartedAt:   b.StartedAt,
		CompletedAt: b.CompletedAt,
	}
}
