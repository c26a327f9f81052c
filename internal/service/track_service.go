package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/jengzang/gpx-loop-cutter/internal/config"
	"github.com/jengzang/gpx-loop-cutter/internal/gpx"
	"github.com/jengzang/gpx-loop-cutter/internal/metrics"
	"github.com/jengzang/gpx-loop-cutter/internal/models"
	"github.com/jengzang/gpx-loop-cutter/internal/repository"
	"github.com/jengzang/gpx-loop-cutter/internal/trackops"
)

// ErrInvalidTrack is returned for uploads that cannot be used as a track
var ErrInvalidTrack = errors.New("invalid track")

// Track sources recorded with stored tracks
const (
	SourceUpload   = "upload"
	SourceMerge    = "merge"
	SourceSimplify = "simplify"
	SourceExcise   = "excise"
)

// TrackListResponse is one page of stored tracks
type TrackListResponse struct {
	Data       []models.TrackSummary `json:"data"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// TrackService handles business logic for stored tracks
type TrackService struct {
	trackRepo *repository.TrackRepository
	simplify  config.SimplifyConfig
	logger    *slog.Logger
}

// NewTrackService creates a new track service
func NewTrackService(trackRepo *repository.TrackRepository, simplify config.SimplifyConfig, logger *slog.Logger) *TrackService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackService{
		trackRepo: trackRepo,
		simplify:  simplify,
		logger:    logger,
	}
}

// Import decodes a GPX document and stores it. A non-empty name overrides
// the name found in the file.
func (s *TrackService) Import(ctx context.Context, name string, r io.Reader) (models.TrackSummary, error) {
	track, err := gpx.Decode(r)
	if err != nil {
		return models.TrackSummary{}, fmt.Errorf("%w: %w", ErrInvalidTrack, err)
	}
	if name = strings.TrimSpace(name); name != "" {
		track.Name = name
	}
	if track.Name == "" {
		track.Name = "Imported Track"
	}
	if track.PointCount() == 0 {
		return models.TrackSummary{}, fmt.Errorf("%w: track has no points", ErrInvalidTrack)
	}
	return s.Store(ctx, track, SourceUpload)
}

// Store saves a track built elsewhere and returns its summary
func (s *TrackService) Store(ctx context.Context, track models.Track, source string) (models.TrackSummary, error) {
	id, err := s.trackRepo.Create(ctx, track, source)
	if err != nil {
		return models.TrackSummary{}, fmt.Errorf("failed to store track: %w", err)
	}
	metrics.TracksImported.Inc()

	s.logger.InfoContext(ctx, "track stored",
		"track_id", id,
		"name", track.Name,
		"source", source,
		"segments", len(track.Segments),
		"points", track.PointCount())

	return summaryOf(id, track, source), nil
}

// Get retrieves a full track
func (s *TrackService) Get(ctx context.Context, id int64) (models.Track, error) {
	track, err := s.trackRepo.Get(ctx, id)
	if err != nil {
		return models.Track{}, fmt.Errorf("failed to get track: %w", err)
	}
	return track, nil
}

// List retrieves one page of track summaries
func (s *TrackService) List(ctx context.Context, page, pageSize int) (*TrackListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 500 {
		pageSize = 500
	}

	tracks, total, err := s.trackRepo.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}

	return &TrackListResponse{
		Data:       tracks,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

// Delete removes a track and its run history
func (s *TrackService) Delete(ctx context.Context, id int64) error {
	if err := s.trackRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	s.logger.InfoContext(ctx, "track deleted", "track_id", id)
	return nil
}

// Merge loads the given tracks, orders them by date and stores their
// concatenation as a new track.
func (s *TrackService) Merge(ctx context.Context, ids []int64, name string, descending bool) (models.TrackSummary, error) {
	if len(ids) == 0 {
		return models.TrackSummary{}, fmt.Errorf("%w: %v", ErrInvalidTrack, trackops.ErrNothingToMerge)
	}

	tracks := make([]models.Track, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if err != nil {
			return models.TrackSummary{}, err
		}
		tracks = append(tracks, t)
	}

	merged, err := trackops.Merge(trackops.SortByDate(tracks, descending), name)
	if err != nil {
		return models.TrackSummary{}, err
	}
	if gap, ok := trackops.MaxGap(merged); ok {
		s.logger.InfoContext(ctx, "merged track max gap",
			"distance_m", gap.DistanceM,
			"segment", gap.SegmentIndex,
			"index", gap.Index)
	}
	return s.Store(ctx, merged, SourceMerge)
}

// SimplifyResult is the stored simplified track and what simplification did
type SimplifyResult struct {
	Track models.TrackSummary `json:"track"`
	Stats trackops.Stats      `json:"stats"`
}

// Simplify thins a stored track and stores the result as a new track.
// minDistanceM <= 0 uses the configured distance.
func (s *TrackService) Simplify(ctx context.Context, id int64, minDistanceM float64, preserveKeyPoints *bool) (*SimplifyResult, error) {
	track, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if minDistanceM <= 0 {
		minDistanceM = s.simplify.MinDistanceM
	}
	preserve := s.simplify.PreserveKeyPoints
	if preserveKeyPoints != nil {
		preserve = *preserveKeyPoints
	}

	simplified, stats := trackops.Simplify(track, minDistanceM, preserve)
	simplified.ID = 0
	simplified.Name = track.Name + " (simplified)"
	s.logger.InfoContext(ctx, "track simplified", "track_id", id, "stats", stats.String())

	summary, err := s.Store(ctx, simplified, SourceSimplify)
	if err != nil {
		return nil, err
	}
	return &SimplifyResult{Track: summary, Stats: stats}, nil
}

func summaryOf(id int64, track models.Track, source string) models.TrackSummary {
	return models.TrackSummary{
		ID:         id,
		Name:       track.Name,
		RecordedAt: track.Time,
		Source:     source,
		Segments:   len(track.Segments),
		Points:     track.PointCount(),
	}
}
