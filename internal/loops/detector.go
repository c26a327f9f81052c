package loops

import (
	"context"
	"log/slog"
	"time"

	"github.com/jengzang/gpx-loop-cutter/internal/models"
)

// SegmentFailure records a segment whose scan failed and contributed nothing
type SegmentFailure struct {
	SegmentIndex int   `json:"segment"`
	Err          error `json:"-"`
}

// Detection is the result of one detection run over a track
type Detection struct {
	Policy     string             `json:"policy"`
	Thresholds Thresholds         `json:"thresholds"`
	Candidates []models.Candidate `json:"candidates"`
	Failures   []SegmentFailure   `json:"failures,omitempty"`
	Duration   time.Duration      `json:"duration"`
}

// Detector fans segments out to scan tasks and reassembles the candidates
type Detector struct {
	Policy  Policy
	Workers int // pool size, GOMAXPROCS when <= 0
	Logger  *slog.Logger
}

// NewDetector creates a detector; nil policy and logger fall back to defaults
func NewDetector(policy Policy, workers int, logger *slog.Logger) *Detector {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{Policy: policy, Workers: workers, Logger: logger}
}

// Detect scans every segment of track in parallel. Candidates are ordered by
// segment index, then start index, regardless of which task finished first,
// and carry 1-based ordinals in that order. A segment whose scan fails is
// logged and skipped. A started batch is never cancelled.
func (d *Detector) Detect(ctx context.Context, track models.Track, th Thresholds) Detection {
	policy := d.Policy
	if policy == nil {
		policy = DefaultPolicy()
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	results := RunOrdered(d.Workers, track.Segments, func(_ int, seg models.Segment) ([]Loop, error) {
		return ScanSegment(seg.Points, th, policy)
	})

	detection := Detection{
		Policy:     policy.Name(),
		Thresholds: th,
		Candidates: []models.Candidate{},
	}

	for segIdx, res := range results {
		if res.Err != nil {
			logger.ErrorContext(ctx, "loop scan failed for segment",
				"segment", segIdx,
				"points", len(track.Segments[segIdx].Points),
				"error", res.Err)
			detection.Failures = append(detection.Failures, SegmentFailure{SegmentIndex: segIdx, Err: res.Err})
			continue
		}

		for _, loop := range res.Value {
			detection.Candidates = append(detection.Candidates, models.Candidate{
				Ordinal: len(detection.Candidates) + 1,
				Range: models.LoopRange{
					SegmentIndex: segIdx,
					Start:        loop.Start,
					End:          loop.End,
				},
				LengthM:         loop.LengthM,
				ClosingDistance: loop.GapM,
				Points:          loop.Points,
			})
		}
	}
	detection.Duration = time.Since(start)

	logger.InfoContext(ctx, "loop detection finished",
		"policy", detection.Policy,
		"segments", len(track.Segments),
		"candidates", len(detection.Candidates),
		"failed_segments", len(detection.Failures),
		"duration", detection.Duration)

	return detection
}
