package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jengzang/gpx-loop-cutter/internal/database"
	"github.com/jengzang/gpx-loop-cutter/internal/models"
)

// ErrTrackNotFound is returned when no track has the requested id
var ErrTrackNotFound = errors.New("track not found")

// TrackRepository handles database operations for stored tracks
type TrackRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTrackRepository creates a new track repository
func NewTrackRepository(db *sql.DB, logger *slog.Logger) *TrackRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackRepository{db: db, logger: logger}
}

// Create stores track with all its segments and points and returns its id.
// Empty segments are stored too so segment indices survive a round trip.
func (r *TrackRepository) Create(ctx context.Context, track models.Track, source string) (int64, error) {
	var id int64
	err := withWriteRetry(ctx, r.logger, "create_track", func() error {
		return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO tracks (name, recorded_at, source, created_at) VALUES (?, ?, ?, ?)`,
				track.Name, nullTime(track.Time), source, time.Now().UnixNano())
			if err != nil {
				return fmt.Errorf("failed to insert track: %w", err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("failed to read track id: %w", err)
			}
			return insertSegments(ctx, tx, id, track.Segments)
		})
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insertSegments(ctx context.Context, tx *sql.Tx, trackID int64, segments []models.Segment) error {
	segStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO track_segments (track_id, segment_idx, points) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare segment insert: %w", err)
	}
	defer segStmt.Close()

	ptStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO track_points (track_id, segment_idx, point_idx, lat, lon, ele, time) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare point insert: %w", err)
	}
	defer ptStmt.Close()

	for segIdx, seg := range segments {
		if _, err := segStmt.ExecContext(ctx, trackID, segIdx, len(seg.Points)); err != nil {
			return fmt.Errorf("failed to insert segment %d: %w", segIdx, err)
		}
		for ptIdx, p := range seg.Points {
			var ele sql.NullFloat64
			if p.HasElevation {
				ele = sql.NullFloat64{Float64: p.Elevation, Valid: true}
			}
			if _, err := ptStmt.ExecContext(ctx, trackID, segIdx, ptIdx, p.Lat, p.Lon, ele, nullTime(p.Time)); err != nil {
				return fmt.Errorf("failed to insert point %d/%d: %w", segIdx, ptIdx, err)
			}
		}
	}
	return nil
}

// Get loads a full track
func (r *TrackRepository) Get(ctx context.Context, id int64) (models.Track, error) {
	var (
		track      models.Track
		recordedAt sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, name, recorded_at FROM tracks WHERE id = ?`, id).
		Scan(&track.ID, &track.Name, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Track{}, fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}
	if err != nil {
		return models.Track{}, fmt.Errorf("failed to query track: %w", err)
	}
	track.Time = fromNullTime(recordedAt)

	segCount, err := r.segmentCount(ctx, id)
	if err != nil {
		return models.Track{}, err
	}
	track.Segments = make([]models.Segment, segCount)
	for i := range track.Segments {
		track.Segments[i].Points = []models.Point{}
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT segment_idx, lat, lon, ele, time FROM track_points WHERE track_id = ? ORDER BY segment_idx, point_idx`, id)
	if err != nil {
		return models.Track{}, fmt.Errorf("failed to query track points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			segIdx int
			p      models.Point
			ele    sql.NullFloat64
			ts     sql.NullInt64
		)
		if err := rows.Scan(&segIdx, &p.Lat, &p.Lon, &ele, &ts); err != nil {
			return models.Track{}, fmt.Errorf("failed to scan track point: %w", err)
		}
		if segIdx < 0 || segIdx >= len(track.Segments) {
			return models.Track{}, fmt.Errorf("track %d: point references missing segment %d", id, segIdx)
		}
		if ele.Valid {
			p.Elevation, p.HasElevation = ele.Float64, true
		}
		p.Time = fromNullTime(ts)
		track.Segments[segIdx].Points = append(track.Segments[segIdx].Points, p)
	}
	if err := rows.Err(); err != nil {
		return models.Track{}, fmt.Errorf("failed to read track points: %w", err)
	}

	return track, nil
}

func (r *TrackRepository) segmentCount(ctx context.Context, id int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM track_segments WHERE track_id = ?`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count segments: %w", err)
	}
	return n, nil
}

// List returns track summaries, newest first, with the total count
func (r *TrackRepository) List(ctx context.Context, limit, offset int) ([]models.TrackSummary, int64, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tracks: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.recorded_at, t.source, t.created_at,
			(SELECT COUNT(*) FROM track_segments s WHERE s.track_id = t.id),
			(SELECT COALESCE(SUM(s.points), 0) FROM track_segments s WHERE s.track_id = t.id)
		FROM tracks t
		ORDER BY t.id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	summaries := []models.TrackSummary{}
	for rows.Next() {
		var (
			s          models.TrackSummary
			recordedAt sql.NullInt64
			createdAt  int64
		)
		if err := rows.Scan(&s.ID, &s.Name, &recordedAt, &s.Source, &createdAt, &s.Segments, &s.Points); err != nil {
			return nil, 0, fmt.Errorf("failed to scan track: %w", err)
		}
		s.RecordedAt = fromNullTime(recordedAt)
		s.CreatedAt = time.Unix(0, createdAt).UTC()
		summaries = append(summaries, s)
	}

	return summaries, total, rows.Err()
}

// Delete removes a track; its points and runs go with it
func (r *TrackRepository) Delete(ctx context.Context, id int64) error {
	var affected int64
	err := withWriteRetry(ctx, r.logger, "delete_track", func() error {
		res, err := r.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete track: %w", err)
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}
	return nil
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullTime(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(0, v.Int64).UTC()
}
