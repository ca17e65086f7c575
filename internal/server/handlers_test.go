package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/ipusegment/internal/audio"
	"github.com/maauso/ipusegment/internal/job"
	"github.com/maauso/ipusegment/internal/metrics"
	"github.com/maauso/ipusegment/internal/storage"
)

const testRate = 16000

type testEnv struct {
	handlers *Handlers
	service  *job.SegmentService
	store    *storage.LocalStorage
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func newTestEnv(t *testing.T, opts ...HandlerOption) testEnv {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewLocalStorage(filepath.Join(root, "tmp"), filepath.Join(root, "results"))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	m := metrics.New()
	svc := job.NewSegmentService(job.NewMemoryRepository(), store, logger, job.WithMetrics(m))

	// Disable async processing by default so tests control when jobs run
	opts = append([]HandlerOption{WithAsyncProcessing(false)}, opts...)
	return testEnv{
		handlers: NewHandlers(svc, store, logger, opts...),
		service:  svc,
		store:    store,
		metrics:  m,
		logger:   logger,
	}
}

// speechWAV returns a base64 WAV of three one-second tones separated by
// one second of silence.
func speechWAV(t *testing.T) string {
	t.Helper()
	var samples []int
	for i := range 5 {
		if i%2 == 1 {
			samples = append(samples, make([]int, testRate)...)
			continue
		}
		for k := range testRate {
			phase := (k * 500) % testRate
			samples = append(samples, int(8000*math.Sin(2*math.Pi*float64(phase)/testRate)))
		}
	}
	path := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, audio.WriteWAV(path, samples, testRate, 16))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(data)
}

func postJSON(t *testing.T, target string, body any) *http.Request {
	t.Helper()
	bodyJSON, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(bodyJSON))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	env.handlers.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec.Body)
	assert.Equal(t, "ok", resp.Status)
}

func TestSegment_Search(t *testing.T) {
	env := newTestEnv(t)
	req := postJSON(t, "/segment?frames=true", SegmentRequest{AudioBase64: speechWAV(t)})
	rec := httptest.NewRecorder()

	env.handlers.Segment(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[JobResponse](t, rec.Body)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "search", resp.Mode)
	assert.Equal(t, "COMPLETED", resp.Status)
	require.Len(t, resp.Tracks, 3)
	assert.Len(t, resp.Frames, 3)
	assert.InDelta(t, 0.0, resp.Tracks[0].Start, 0.001)
	assert.InDelta(t, 4.0, resp.Tracks[2].Start, 0.05)
	assert.InDelta(t, 5.0, resp.Duration, 0.001)
	assert.Positive(t, resp.Threshold)
	assert.NotNil(t, resp.CompletedAt)
	assert.Nil(t, resp.Fit)
	assert.Empty(t, tempFiles(t, env.store.TempDir()), "upload is removed after the run")
}

func TestSegment_ParamsOverride(t *testing.T) {
	env := newTestEnv(t)
	threshold := 100
	req := postJSON(t, "/segment", SegmentRequest{
		AudioBase64: speechWAV(t),
		Params:      &ParamsRequest{VolThreshold: &threshold},
	})
	rec := httptest.NewRecorder()

	env.handlers.Segment(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[JobResponse](t, rec.Body)
	assert.Equal(t, 100, resp.Threshold)
	require.NotNil(t, resp.Params)
	assert.Equal(t, 100, resp.Params.VolThreshold)
	assert.Equal(t, env.service.DefaultParams().MinSilDur, resp.Params.MinSilDur)
	assert.Empty(t, resp.Frames, "frames are only returned on request")
	assert.Len(t, resp.Tracks, 3)
}

func TestSegment_Fit(t *testing.T) {
	env := newTestEnv(t)
	req := postJSON(t, "/segment", SegmentRequest{
		AudioBase64: speechWAV(t),
		Mode:        "fit",
		Units:       "a b c",
		Publish:     true,
	})
	rec := httptest.NewRecorder()

	env.handlers.Segment(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[JobResponse](t, rec.Body)
	assert.Equal(t, "fit", resp.Mode)
	require.NotNil(t, resp.Fit)
	assert.True(t, resp.Fit.Converged)
	assert.Equal(t, 3, resp.Fit.Count)
	assert.FileExists(t, resp.ResultURL)
}

func TestSegment_InvalidAudio(t *testing.T) {
	env := newTestEnv(t)
	req := postJSON(t, "/segment", SegmentRequest{
		AudioBase64: base64.StdEncoding.EncodeToString([]byte("not a wav file")),
	})
	rec := httptest.NewRecorder()

	env.handlers.Segment(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[JobResponse](t, rec.Body)
	assert.Equal(t, "FAILED", resp.Status)
	assert.Contains(t, resp.Error, "decode audio")
}

func TestSegment_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/segment", strings.NewReader("{invalid json"))
	rec := httptest.NewRecorder()

	env.handlers.Segment(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec.Body)
	assert.Equal(t, "INVALID_JSON", resp.Code)
}

func TestSegment_ValidationErrors(t *testing.T) {
	audioB64 := base64.StdEncoding.EncodeToString([]byte("audio"))
	tooLong := 0.5

	tests := []struct {
		name string
		body SegmentRequest
	}{
		{"missing audio", SegmentRequest{}},
		{"audio not base64", SegmentRequest{AudioBase64: "%%%"}},
		{"unknown mode", SegmentRequest{AudioBase64: audioB64, Mode: "guess"}},
		{"fit without units", SegmentRequest{AudioBase64: audioB64, Mode: "fit"}},
		{"window too long", SegmentRequest{AudioBase64: audioB64, Params: &ParamsRequest{WinLen: &tooLong}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := httptest.NewRecorder()

			env.handlers.Segment(rec, postJSON(t, "/segment", tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[ErrorResponse](t, rec.Body)
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
			assert.Empty(t, tempFiles(t, env.store.TempDir()))
		})
	}
}

func TestSegment_FitWithoutSpeechUnits(t *testing.T) {
	env := newTestEnv(t)
	req := postJSON(t, "/segment", SegmentRequest{AudioBase64: speechWAV(t), Mode: "fit", Units: "# #"})
	rec := httptest.NewRecorder()

	env.handlers.Segment(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec.Body)
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	assert.Empty(t, tempFiles(t, env.store.TempDir()), "rejected upload is removed")
}

func TestCreateJob_Queued(t *testing.T) {
	env := newTestEnv(t)
	req := postJSON(t, "/jobs", SegmentRequest{AudioBase64: speechWAV(t)})
	rec := httptest.NewRecorder()

	env.handlers.CreateJob(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[CreateJobResponse](t, rec.Body)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "IN_QUEUE", resp.Status)
	assert.Len(t, tempFiles(t, env.store.TempDir()), 1, "upload is kept for the worker")
}

func TestCreateJob_ProcessedInBackground(t *testing.T) {
	env := newTestEnv(t, WithAsyncProcessing(true))
	router := NewRouter(env.handlers, env.logger, DefaultConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, postJSON(t, "/jobs", SegmentRequest{AudioBase64: speechWAV(t)}))
	require.Equal(t, http.StatusAccepted, rec.Code)
	created := decode[CreateJobResponse](t, rec.Body)

	var final JobResponse
	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+created.ID, nil))
		final = decode[JobResponse](t, rec.Body)
		return final.Status == "COMPLETED" || final.Status == "FAILED"
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "COMPLETED", final.Status)
	assert.Len(t, final.Tracks, 3)
}

func TestGetJob_NotFound(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/jobs/nonexistent", nil)
	req.SetPathValue("id", "nonexistent")
	rec := httptest.NewRecorder()

	env.handlers.GetJob(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode[ErrorResponse](t, rec.Body)
	assert.Equal(t, "JOB_NOT_FOUND", resp.Code)
}

func TestGetJob_MissingID(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	rec := httptest.NewRecorder()

	env.handlers.GetJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec.Body)
	assert.Equal(t, "MISSING_JOB_ID", resp.Code)
}

func TestListJobs(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.handlers, env.logger, DefaultConfig())
	for _, body := range []SegmentRequest{
		{AudioBase64: speechWAV(t)},
		{AudioBase64: speechWAV(t)},
		{AudioBase64: speechWAV(t), Mode: "fit", Units: "a b c"},
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, postJSON(t, "/jobs", body))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantCount int
	}{
		{"all", "", http.StatusOK, 3},
		{"by mode", "?mode=fit", http.StatusOK, 1},
		{"by status", "?status=IN_QUEUE", http.StatusOK, 3},
		{"no match", "?status=COMPLETED", http.StatusOK, 0},
		{"limited", "?limit=2", http.StatusOK, 2},
		{"bad limit", "?limit=0", http.StatusBadRequest, 0},
		{"bad mode", "?mode=guess", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs"+tt.query, nil))

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			resp := decode[ListJobsResponse](t, rec.Body)
			assert.Equal(t, tt.wantCount, resp.Count)
			assert.Len(t, resp.Jobs, tt.wantCount)
		})
	}
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.handlers, env.logger, DefaultConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, postJSON(t, "/jobs", SegmentRequest{AudioBase64: speechWAV(t)}))
	require.Equal(t, http.StatusAccepted, rec.Code)
	created := decode[CreateJobResponse](t, rec.Body)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/"+created.ID+"/cancel", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", decode[JobResponse](t, rec.Body).Status)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/"+created.ID+"/cancel", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/missing/cancel", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.handlers, env.logger, Config{Metrics: env.metrics})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `ipusegment_http_requests_total{endpoint="GET /health",method="GET",status_code="200"} 1`)
	assert.Contains(t, body, `ipusegment_http_errors_total{endpoint="GET /jobs/{id}",error_type="client_error",method="GET"} 1`)
}

func TestRouter_NoMetricsEndpointWithoutMetrics(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.handlers, env.logger, DefaultConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	env := newTestEnv(t)
	cfg := Config{AllowedOrigins: []string{"https://example.com"}}
	router := NewRouter(env.handlers, env.logger, cfg)

	// Test with allowed origin
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Test with a foreign origin
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://other.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// Test OPTIONS preflight
	req = httptest.NewRequest(http.MethodOptions, "/segment", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(logger)(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[ErrorResponse](t, rec.Body)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
}

func TestParamsRequest_Apply(t *testing.T) {
	env := newTestEnv(t)
	base := env.service.DefaultParams()

	var nilReq *ParamsRequest
	assert.Equal(t, base, nilReq.apply(base))

	sil, shift := 0.5, -0.01
	got := (&ParamsRequest{MinSilDur: &sil, ShiftEnd: &shift}).apply(base)
	assert.Equal(t, 0.5, got.MinSilDur)
	assert.Equal(t, -0.01, got.ShiftEnd)
	assert.Equal(t, base.WinLen, got.WinLen)
}
