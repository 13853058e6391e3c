package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/trackslicer/internal/audio"
	"github.com/maauso/trackslicer/internal/batch"
	"github.com/maauso/trackslicer/internal/cut"
	"github.com/maauso/trackslicer/internal/session"
	"github.com/maauso/trackslicer/internal/strategy"
)

// mockService implements BatchService for testing.
type mockService struct {
	mock.Mock
}

func (m *mockService) CreateBatch(ctx context.Context, in batch.CutInput) (*batch.Batch, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*batch.Batch), args.Error(1)
}

func (m *mockService) Start(ctx context.Context, in batch.CutInput) (*batch.Batch, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*batch.Batch), args.Error(1)
}

func (m *mockService) GetBatch(ctx context.Context, id string) (*batch.Batch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*batch.Batch), args.Error(1)
}

func (m *mockService) ListBatches(ctx context.Context) ([]*batch.Batch, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*batch.Batch), args.Error(1)
}

func (m *mockService) ListSessions() ([]session.Path, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]session.Path), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandlers(t *testing.T) (*Handlers, *mockService) {
	t.Helper()
	svc := &mockService{}
	return NewHandlers(svc, testLogger()), svc
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func cutRequest(name, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+name+"/cuts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.SetPathValue("name", name)
	return req
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestListSessions(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("ListSessions").Return([]session.Path{
		"/sessions/2024-05-02-20-00-00",
		"/sessions/2024-05-01-20-00-00",
	}, nil)

	rec := httptest.NewRecorder()
	h.ListSessions(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp SessionsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Sessions, 2)
	assert.Equal(t, "2024-05-02-20-00-00", resp.Sessions[0].Name)
	assert.Equal(t, "/sessions/2024-05-01-20-00-00", resp.Sessions[1].Path)
}

func TestListSessions_Error(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("ListSessions").Return(nil, errors.New("permission denied"))

	rec := httptest.NewRecorder()
	h.ListSessions(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "SESSION_LIST_FAILED", decodeError(t, rec).Code)
}

func TestCreateCut_Success(t *testing.T) {
	h, svc := newTestHandlers(t)
	offset := 1.5
	want := batch.CutInput{Session: "2024-05-01-20-00-00", Offset: &offset}
	svc.On("Start", mock.Anything, want).Return(batch.NewWithID("cut-1", want.Session, strategy.KindOffset), nil)

	rec := httptest.NewRecorder()
	h.CreateCut(rec, cutRequest("2024-05-01-20-00-00", `{"offset": 1.5}`))

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateCutResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "cut-1", resp.ID)
	assert.Equal(t, "QUEUED", resp.Status)
	svc.AssertExpectations(t)
}

func TestCreateCut_EmptyBody(t *testing.T) {
	h, svc := newTestHandlers(t)
	want := batch.CutInput{Session: "s1"}
	svc.On("Start", mock.Anything, want).Return(batch.NewWithID("cut-2", "s1", strategy.KindSilence), nil)

	rec := httptest.NewRecorder()
	h.CreateCut(rec, cutRequest("s1", ""))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	svc.AssertExpectations(t)
}

func TestCreateCut_InvalidJSON(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.CreateCut(rec, cutRequest("s1", "{invalid"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeError(t, rec).Code)
}

func TestCreateCut_ValidationError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown strategy", `{"strategy": "guess"}`},
		{"offset out of range", `{"offset": 1000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := newTestHandlers(t)

			rec := httptest.NewRecorder()
			h.CreateCut(rec, cutRequest("s1", tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
			svc.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateCut_ServiceErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"session not found", session.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"invalid input", batch.ErrInvalidInput, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"session busy", batch.ErrSessionBusy, http.StatusConflict, "SESSION_BUSY"},
		{"internal", errors.New("disk full"), http.StatusInternalServerError, "BATCH_CREATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := newTestHandlers(t)
			svc.On("Start", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := httptest.NewRecorder()
			h.CreateCut(rec, cutRequest("s1", `{"strategy": "events"}`))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, rec).Code)
		})
	}
}

func TestCreateCut_DryRun(t *testing.T) {
	svc := &mockService{}
	h := NewHandlers(svc, testLogger(), WithAsyncProcessing(false))
	svc.On("CreateBatch", mock.Anything, batch.CutInput{Session: "s1", Strategy: strategy.KindEvents}).
		Return(batch.NewWithID("cut-3", "s1", strategy.KindEvents), nil)

	rec := httptest.NewRecorder()
	h.CreateCut(rec, cutRequest("s1", `{"strategy": "events"}`))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	svc.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
	svc.AssertExpectations(t)
}

func TestGetBatch_Success(t *testing.T) {
	h, svc := newTestHandlers(t)

	spec := audio.Spec{Channels: 2, SampleRate: 44100}
	b := batch.NewWithID("cut-1", "s1", strategy.KindSilence)
	_ = b.Start()
	b.SetPlan([]cut.Job{{
		OutputPath: "/s1/cut/Band/Live/01 One.opus",
		Start:      audio.FromSeconds(1, spec),
		End:        audio.FromSeconds(181, spec),
		Song:       session.Song{Title: "One", Artist: "Band", Album: "Live", TrackNumber: 1},
	}}, 1)
	b.MarkDone(0, "/library/Band/Live/01 One.opus", "")
	_ = b.Complete()
	svc.On("GetBatch", mock.Anything, "cut-1").Return(b, nil)

	req := httptest.NewRequest(http.MethodGet, "/batches/cut-1", nil)
	req.SetPathValue("id", "cut-1")
	rec := httptest.NewRecorder()

	h.GetBatch(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "COMPLETED", resp.Status)
	assert.Equal(t, "silence", resp.Strategy)
	assert.Equal(t, 100, resp.Progress)
	assert.Equal(t, 1, resp.Discarded)
	require.NotNil(t, resp.CompletedAt)
	require.Len(t, resp.Tracks, 1)
	assert.Equal(t, "One", resp.Tracks[0].Title)
	assert.Equal(t, "DONE", resp.Tracks[0].Status)
	assert.Equal(t, 181.0, resp.Tracks[0].End)
	assert.Equal(t, "/library/Band/Live/01 One.opus", resp.Tracks[0].Location)
}

func TestGetBatch_NotFound(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("GetBatch", mock.Anything, "missing").Return(nil, batch.ErrBatchNotFound)

	req := httptest.NewRequest(http.MethodGet, "/batches/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()

	h.GetBatch(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "BATCH_NOT_FOUND", decodeError(t, rec).Code)
}

func TestGetBatch_MissingID(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.GetBatch(rec, httptest.NewRequest(http.MethodGet, "/batches/", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_BATCH_ID", decodeError(t, rec).Code)
}

func TestListBatches(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("ListBatches", mock.Anything).Return([]*batch.Batch{
		batch.NewWithID("cut-1", "s1", strategy.KindEvents),
		batch.NewWithID("cut-2", "s1", strategy.KindLengths),
	}, nil)

	rec := httptest.NewRecorder()
	h.ListBatches(rec, httptest.NewRequest(http.MethodGet, "/batches", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp BatchesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Batches, 2)
	assert.Equal(t, "lengths", resp.Batches[1].Strategy)
	assert.Nil(t, resp.Batches[0].CompletedAt)
}

func TestRouter_Integration(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, session.Save(session.Path(filepath.Join(root, "2024-05-01-20-00-00")), &session.Session{}))

	svc := batch.NewCutSessionService(batch.NewMemoryRepository(), session.NewManager(root),
		cut.NewFFmpegLauncher("", "", 0), testLogger(), batch.Options{PollInterval: time.Millisecond})
	h := NewHandlers(svc, testLogger(), WithAsyncProcessing(false))
	router := NewRouter(h, testLogger(), DefaultConfig())

	// Test health endpoint
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Test GET /sessions
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2024-05-01-20-00-00")

	// Test POST /sessions/{name}/cuts
	req := httptest.NewRequest(http.MethodPost, "/sessions/2024-05-01-20-00-00/cuts", bytes.NewReader([]byte(`{"strategy":"lengths"}`)))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var createResp CreateCutResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&createResp))

	// Test GET /batches/{id}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/batches/"+createResp.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var batchResp BatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&batchResp))
	assert.Equal(t, "QUEUED", batchResp.Status)
	assert.Equal(t, "lengths", batchResp.Strategy)

	// Unknown session
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/nope/cuts", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	h, _ := newTestHandlers(t)

	cfg := Config{AllowedOrigins: []string{"https://example.com"}}
	router := NewRouter(h, testLogger(), cfg)

	// Test with allowed origin
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Test OPTIONS preflight
	req = httptest.NewRequest(http.MethodOptions, "/sessions/s1/cuts", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	// Create a handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(testLogger())(panicHandler)

	rec := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}
