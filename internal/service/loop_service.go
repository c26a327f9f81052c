package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter/v2"

	"github.com/jengzang/gpx-loop-cutter/internal/config"
	"github.com/jengzang/gpx-loop-cutter/internal/loops"
	"github.com/jengzang/gpx-loop-cutter/internal/metrics"
	"github.com/jengzang/gpx-loop-cutter/internal/models"
	"github.com/jengzang/gpx-loop-cutter/internal/repository"
)

var (
	// ErrInvalidParams is returned for detection parameters that fail validation
	ErrInvalidParams = errors.New("invalid detection parameters")
	// ErrRunExpired is returned for runs whose candidates left the cache
	ErrRunExpired = errors.New("loop run expired")
)

// DetectParams are per-request overrides; zero values use the configured ones
type DetectParams struct {
	ClosureThresholdM float64 `json:"closure_threshold_m"`
	MinLoopLengthM    float64 `json:"min_loop_length_m"`
	MaxLoopLengthM    float64 `json:"max_loop_length_m"`
	Policy            string  `json:"policy"`
}

// Run is a detection run held in memory until it expires. Track is the
// snapshot the candidates were computed against.
type Run struct {
	models.LoopRun
	Track     models.Track    `json:"-"`
	Detection loops.Detection `json:"detection"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// ExciseRequest selects candidates of a run to cut
type ExciseRequest struct {
	Ordinals []int
	Mode     loops.Mode
	Identity loops.Identity
	Name     string // stored track name; "<track> (cleaned)" when empty
}

// ExciseResult describes the stored excision result
type ExciseResult struct {
	Track         models.TrackSummary `json:"track"`
	RunID         string              `json:"run_id"`
	Mode          string              `json:"mode"`
	Identity      string              `json:"identity"`
	Cut           []int               `json:"cut"`
	PointsBefore  int                 `json:"points_before"`
	PointsAfter   int                 `json:"points_after"`
	PointsRemoved int                 `json:"points_removed"`
}

// LoopService runs detection over stored tracks and excises chosen candidates
type LoopService struct {
	tracks *TrackService
	runs   *repository.RunRepository
	cfg    config.LoopsConfig
	cache  *otter.Cache[string, *Run]
	now    func() time.Time
	logger *slog.Logger
}

// NewLoopService creates a new loop service
func NewLoopService(tracks *TrackService, runs *repository.RunRepository, cfg config.LoopsConfig, logger *slog.Logger) *LoopService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoopService{
		tracks: tracks,
		runs:   runs,
		cfg:    cfg,
		cache: otter.Must(&otter.Options[string, *Run]{
			MaximumSize:      cfg.CacheSize,
			ExpiryCalculator: otter.ExpiryWriting[string, *Run](cfg.CandidateTTL),
		}),
		now:    time.Now,
		logger: logger,
	}
}

func (s *LoopService) resolve(p DetectParams) (loops.Thresholds, loops.Policy, error) {
	th := s.cfg.Thresholds()
	if p.ClosureThresholdM != 0 {
		th.ClosureThresholdM = p.ClosureThresholdM
	}
	if p.MinLoopLengthM != 0 {
		th.MinLoopLengthM = p.MinLoopLengthM
	}
	if p.MaxLoopLengthM != 0 {
		th.MaxLoopLengthM = p.MaxLoopLengthM
	}
	name := s.cfg.Policy
	if p.Policy != "" {
		name = p.Policy
	}

	if err := config.ValidateThresholds(th, name); err != nil {
		return th, nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	policy, err := loops.PolicyByName(name)
	if err != nil {
		return th, nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return th, policy, nil
}

// Detect loads a track, finds its loop candidates and keeps them under a new
// run id. Only the run summary is persisted.
func (s *LoopService) Detect(ctx context.Context, trackID int64, params DetectParams) (*Run, error) {
	th, policy, err := s.resolve(params)
	if err != nil {
		return nil, err
	}

	track, err := s.tracks.Get(ctx, trackID)
	if err != nil {
		return nil, err
	}

	detection := loops.NewDetector(policy, s.cfg.Workers, s.logger).Detect(ctx, track, th)

	metrics.DetectionDuration.WithLabelValues(detection.Policy).Observe(detection.Duration.Seconds())
	metrics.CandidatesFound.WithLabelValues(detection.Policy).Add(float64(len(detection.Candidates)))
	metrics.SegmentFailures.Add(float64(len(detection.Failures)))

	now := s.now()
	run := &Run{
		LoopRun: models.LoopRun{
			ID:                uuid.NewString(),
			TrackID:           trackID,
			Policy:            detection.Policy,
			ClosureThresholdM: th.ClosureThresholdM,
			MinLoopLengthM:    th.MinLoopLengthM,
			MaxLoopLengthM:    th.MaxLoopLengthM,
			Candidates:        len(detection.Candidates),
			FailedSegments:    len(detection.Failures),
			DurationMs:        detection.Duration.Milliseconds(),
			CreatedAt:         now,
		},
		Track:     track,
		Detection: detection,
		ExpiresAt: now.Add(s.cfg.CandidateTTL),
	}

	if err := s.runs.Create(ctx, run.LoopRun); err != nil {
		return nil, fmt.Errorf("failed to record loop run: %w", err)
	}
	s.cache.Set(run.ID, run)

	s.logger.InfoContext(ctx, "loop run created",
		"run_id", run.ID,
		"track_id", trackID,
		"policy", run.Policy,
		"candidates", run.Candidates)

	return run, nil
}

// Run returns a cached run. Runs that are recorded but no longer cached
// report ErrRunExpired.
func (s *LoopService) Run(ctx context.Context, runID string) (*Run, error) {
	if run, ok := s.cache.GetIfPresent(runID); ok {
		metrics.CacheHits.WithLabelValues("loop_run").Inc()
		return run, nil
	}
	metrics.CacheMisses.WithLabelValues("loop_run").Inc()

	if _, err := s.runs.Get(ctx, runID); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrRunExpired, runID)
}

// Excise cuts the selected candidates of a run from the track snapshot the
// run was computed against and stores the result as a new track.
func (s *LoopService) Excise(ctx context.Context, runID string, req ExciseRequest) (*ExciseResult, error) {
	run, err := s.Run(ctx, runID)
	if err != nil {
		return nil, err
	}

	sel := loops.Selection{Ordinals: req.Ordinals, Mode: req.Mode}
	cut, err := sel.Resolve(len(run.Detection.Candidates))
	if err != nil {
		return nil, err
	}

	cleaned, err := loops.ExciseWith(run.Track, run.Detection.Candidates, sel, loops.ExciseOptions{Identity: req.Identity})
	if err != nil {
		return nil, err
	}
	cleaned.Name = req.Name
	if cleaned.Name == "" {
		cleaned.Name = run.Track.Name + " (cleaned)"
	}

	before, after := run.Track.PointCount(), cleaned.PointCount()
	summary, err := s.tracks.Store(ctx, cleaned, SourceExcise+":"+runID)
	if err != nil {
		return nil, err
	}
	metrics.PointsExcised.WithLabelValues(req.Mode.String()).Add(float64(before - after))

	s.logger.InfoContext(ctx, "loops excised",
		"run_id", runID,
		"mode", req.Mode.String(),
		"identity", req.Identity.String(),
		"cut", cut,
		"points_removed", before-after,
		"track_id", summary.ID)

	return &ExciseResult{
		Track:         summary,
		RunID:         runID,
		Mode:          req.Mode.String(),
		Identity:      req.Identity.String(),
		Cut:           cut,
		PointsBefore:  before,
		PointsAfter:   after,
		PointsRemoved: before - after,
	}, nil
}

// History lists the recorded runs of a track, newest first
func (s *LoopService) History(ctx context.Context, trackID int64, limit int) ([]models.LoopRun, error) {
	if _, err := s.tracks.Get(ctx, trackID); err != nil {
		return nil, err
	}
	runs, err := s.runs.ListByTrack(ctx, trackID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list loop runs: %w", err)
	}
	return runs, nil
}
