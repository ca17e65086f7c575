package job

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maauso/ipusegment/internal/audio"
	"github.com/maauso/ipusegment/internal/ipus"
	"github.com/maauso/ipusegment/internal/metrics"
	"github.com/maauso/ipusegment/internal/storage"
)

var (
	// ErrInvalidMode is returned for an unknown segmentation mode.
	ErrInvalidMode = errors.New("invalid segmentation mode")
	// ErrUnitsRequired is returned when a fit job has no speech unit.
	ErrUnitsRequired = errors.New("fit mode requires at least one speech unit")
	// ErrInputRequired is returned when no audio input is given.
	ErrInputRequired = errors.New("audio input is required")
)

// Converter normalises audio into a mono WAV file.
type Converter interface {
	ToMonoWAV(ctx context.Context, input, output string, rate int) error
}

// Input describes a segmentation request.
type Input struct {
	Mode Mode
	// AudioPath is the temporary file holding the uploaded audio. The
	// service removes it once the job is finished.
	AudioPath string
	// Params overrides the service defaults when set.
	Params *ipus.Params
	// Units is the whitespace separated expected unit sequence for ModeFit.
	Units        string
	Publish      bool
	ExportTracks bool
}

// Option configures a SegmentService.
type Option func(*SegmentService)

// WithConverter enables input normalisation through conv before decoding.
func WithConverter(conv Converter) Option {
	return func(s *SegmentService) { s.converter = conv }
}

// WithMetrics records segmentation metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SegmentService) { s.metrics = m }
}

// WithSplitter sets the splitter used to export tracks.
func WithSplitter(sp audio.Splitter) Option {
	return func(s *SegmentService) { s.splitter = sp }
}

// WithDefaultParams sets the parameters used when a request has none.
func WithDefaultParams(p ipus.Params) Option {
	return func(s *SegmentService) { s.defaults = p.Normalize() }
}

// WithMaxConcurrentJobs limits the number of jobs segmented in parallel.
func WithMaxConcurrentJobs(n int) Option {
	return func(s *SegmentService) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

// SegmentService runs segmentation jobs. Concurrency is bounded by a
// semaphore; every job reads its own decoded channel.
type SegmentService struct {
	repo      Repository
	store     storage.Storage
	converter Converter
	splitter  audio.Splitter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	defaults  ipus.Params
	sem       chan struct{}
}

// NewSegmentService creates a new SegmentService.
func NewSegmentService(repo Repository, store storage.Storage, logger *slog.Logger, opts ...Option) *SegmentService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SegmentService{
		repo:     repo,
		store:    store,
		splitter: audio.NewWAVSplitter(),
		logger:   logger,
		defaults: ipus.DefaultParams(),
		sem:      make(chan struct{}, 2),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultParams returns the parameters applied to requests without any.
func (s *SegmentService) DefaultParams() ipus.Params { return s.defaults }

// CreateJob validates the input and persists a new IN_QUEUE job.
func (s *SegmentService) CreateJob(ctx context.Context, in Input) (*Job, error) {
	if !in.Mode.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, in.Mode)
	}
	if in.AudioPath == "" {
		return nil, ErrInputRequired
	}
	units := ipus.ParseUnits(in.Units)
	if in.Mode == ModeFit && units.NbIPUs() == 0 {
		return nil, ErrUnitsRequired
	}

	job := New(in.Mode)
	job.Params = s.defaults
	if in.Params != nil {
		job.Params = in.Params.Normalize()
	}
	job.Units = units
	job.InputPath = in.AudioPath
	job.Publish = in.Publish
	job.ExportTracks = in.ExportTracks

	s.logger.Info("creating segmentation job",
		slog.String("job_id", job.ID),
		slog.String("mode", string(job.Mode)),
		slog.Int("expected_ipus", units.NbIPUs()),
		slog.Bool("publish", job.Publish),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("save job: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordJobCreated(string(job.Mode))
	}
	return job, nil
}

// GetJob retrieves a job by ID.
func (s *SegmentService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns the jobs matching filter, newest first.
func (s *SegmentService) ListJobs(ctx context.Context, filter ListFilter) ([]*Job, error) {
	return s.repo.List(ctx, filter)
}

// CancelJob cancels a job that has not finished yet.
func (s *SegmentService) CancelJob(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := job.Cancel(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	s.logger.Info("job cancelled", slog.String("job_id", id))
	return job, nil
}

// Run creates a job and processes it synchronously. Failures of the
// segmentation itself are reported in the returned job, not as an error.
// A job that never got a worker slot is cancelled.
func (s *SegmentService) Run(ctx context.Context, in Input) (*Job, error) {
	job, err := s.CreateJob(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.ProcessExistingJob(ctx, job.ID); err != nil {
		detached := context.WithoutCancel(ctx)
		if current, ferr := s.repo.FindByID(detached, job.ID); ferr == nil && current.GetStatus() == StatusInQueue {
			_, _ = s.CancelJob(detached, job.ID)
			_ = s.store.CleanupTemp(detached, []string{job.InputPath})
		}
		return nil, err
	}
	return s.repo.FindByID(ctx, job.ID)
}

// ProcessExistingJob segments a previously created job. It waits for a
// free slot, then runs the job to COMPLETED or FAILED. The returned error
// covers only repository and scheduling failures.
func (s *SegmentService) ProcessExistingJob(ctx context.Context, jobID string) error {
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return fmt.Errorf("wait for worker slot: %w", ctx.Err())
	}

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Start(); err != nil {
		_ = s.store.CleanupTemp(context.WithoutCancel(ctx), []string{job.InputPath})
		return fmt.Errorf("start job %s: %w", jobID, err)
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordJobStarted()
	}

	logger := s.logger.With(slog.String("job_id", job.ID), slog.String("mode", string(job.Mode)))
	logger.Info("processing job")

	temps := []string{job.InputPath}
	defer func() {
		if err := s.store.CleanupTemp(context.WithoutCancel(ctx), temps); err != nil {
			logger.Warn("failed to clean temporary files", slog.String("error", err.Error()))
		}
	}()

	result, extra, err := s.execute(ctx, job, logger)
	temps = append(temps, extra...)
	if err != nil {
		logger.Error("job failed", slog.String("error", err.Error()))
		_ = job.Fail(err.Error())
	} else {
		job.SetResult(result)
		if err := job.Complete(); err != nil {
			return fmt.Errorf("complete job %s: %w", jobID, err)
		}
		logger.Info("job completed", slog.Int("tracks", len(result.Tracks)))
	}
	if s.metrics != nil {
		s.metrics.RecordJobFinished(string(job.Mode), string(job.GetStatus()))
	}
	return s.saveUnlessCancelled(ctx, job)
}

// saveUnlessCancelled stores the final state of job, keeping a cancellation
// recorded while it was running.
func (s *SegmentService) saveUnlessCancelled(ctx context.Context, job *Job) error {
	ctx = context.WithoutCancel(ctx)
	current, err := s.repo.FindByID(ctx, job.ID)
	if err == nil && current.GetStatus() == StatusCancelled {
		s.logger.Info("job was cancelled while running, discarding result", slog.String("job_id", job.ID))
		return nil
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// execute segments the job input and publishes the outputs. It returns the
// temporary files it created.
func (s *SegmentService) execute(ctx context.Context, job *Job, logger *slog.Logger) (*Result, []string, error) {
	var temps []string
	input := job.InputPath
	if s.converter != nil {
		converted := input + ".mono.wav"
		temps = append(temps, converted)
		if err := s.converter.ToMonoWAV(ctx, input, converted, 0); err != nil {
			return nil, temps, fmt.Errorf("convert input: %w", err)
		}
		input = converted
	}

	ch, meta, err := audio.OpenWAV(input)
	if err != nil {
		return nil, temps, fmt.Errorf("decode audio: %w", err)
	}

	started := time.Now()
	result, err := s.Segment(ch, meta, job.Mode, job.Params, job.Units, logger)
	if err != nil {
		return nil, temps, err
	}
	result.JobID = job.ID
	if s.metrics != nil {
		s.metrics.RecordSegmentation(string(job.Mode), time.Since(started).Seconds(), meta.Duration, len(result.Tracks), result.Threshold)
	}

	if job.ExportTracks {
		urls, dir, err := s.exportTracks(ctx, job.ID, ch, result.Frames)
		if dir != "" {
			defer func() { _ = os.RemoveAll(dir) }()
		}
		if err != nil {
			return nil, temps, fmt.Errorf("export tracks: %w", err)
		}
		job.SetOutput(job.ResultURL, urls)
	}
	if job.Publish {
		url, err := s.publishResult(ctx, job.ID, result)
		if err != nil {
			return nil, temps, fmt.Errorf("publish result: %w", err)
		}
		job.SetOutput(url, job.TrackURLs)
	}
	return result, temps, nil
}

// Segment runs the engine on a decoded channel. In ModeFit the fitter
// tunes params to match units; otherwise params are used as given.
func (s *SegmentService) Segment(ch *audio.PCMChannel, meta audio.Metadata, mode Mode, params ipus.Params, units ipus.Units, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = s.logger
	}
	result := &Result{Mode: mode, Audio: meta}

	switch mode {
	case ModeFit:
		fitter := ipus.NewFitter(ch, params, units, ipus.WithLogger(logger))
		fit, err := fitter.Fit()
		if err != nil {
			return nil, fmt.Errorf("fit: %w", err)
		}
		if !fit.Converged {
			logger.Warn("fit did not converge, using closest state",
				slog.Int("expected", fit.Expected),
				slog.Int("count", fit.Count),
				slog.Int("evaluations", fit.Evaluations),
			)
		}
		if s.metrics != nil {
			s.metrics.RecordFit(string(fit.Phase), fit.Converged, fit.Evaluations)
		}
		tracks, err := fitter.Tracks()
		if err != nil {
			return nil, fmt.Errorf("tracks: %w", err)
		}
		state := fitter.State()
		result.Params = params.Normalize()
		result.Params.VolThreshold = state.Threshold
		result.Params.MinSilDur = state.MinSilDur
		result.Params.MinIPUDur = state.MinIPUDur
		result.Threshold = state.Threshold
		result.Frames = tracks
		result.Fit = &fit

	default:
		searcher := ipus.NewSearcher(ch, params)
		tracks, err := searcher.Tracks()
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		result.Params = searcher.Params()
		result.Threshold = searcher.Threshold()
		result.Frames = tracks
	}

	result.Tracks = ipus.ToTimed(result.Frames, ch.FrameRate())
	return result, nil
}

func (s *SegmentService) publishResult(ctx context.Context, jobID string, r *Result) (string, error) {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return s.store.Publish(ctx, jobID+"/result.json", bytes.NewReader(body))
}

// exportTracks writes every track to a WAV file in a scratch directory and
// publishes the files. It returns the published locations and the scratch
// directory to remove.
func (s *SegmentService) exportTracks(ctx context.Context, jobID string, ch *audio.PCMChannel, tracks []ipus.Track) ([]string, string, error) {
	dir, err := os.MkdirTemp("", jobID+"_tracks_")
	if err != nil {
		return nil, "", fmt.Errorf("create scratch directory: %w", err)
	}
	if _, err := s.splitter.Split(ctx, ch, tracks, dir); err != nil {
		return nil, dir, err
	}
	chunks, err := audio.ListChunks(dir)
	if err != nil {
		return nil, dir, fmt.Errorf("list chunks: %w", err)
	}

	urls := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		url, err := s.publishFile(ctx, jobID+"/"+filepath.Base(chunk), chunk)
		if err != nil {
			return nil, dir, err
		}
		urls = append(urls, url)
	}
	return urls, dir, nil
}

func (s *SegmentService) publishFile(ctx context.Context, key, path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from ListChunks
	if err != nil {
		return "", fmt.Errorf("open chunk: %w", err)
	}
	defer func() { _ = f.Close() }()
	return s.store.Publish(ctx, key, f)
}
