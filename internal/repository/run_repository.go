package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jengzang/gpx-loop-cutter/internal/models"
)

// ErrRunNotFound is returned when no run summary has the requested id
var ErrRunNotFound = errors.New("loop run not found")

// RunRepository stores detection run summaries. Candidates are never stored.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `id, track_id, policy, closure_threshold_m, min_loop_length_m, max_loop_length_m,
	candidates, failed_segments, duration_ms, created_at`

// Create inserts a run summary
func (r *RunRepository) Create(ctx context.Context, run models.LoopRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	return withWriteRetry(ctx, r.logger, "create_run", func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO loop_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.TrackID, run.Policy, run.ClosureThresholdM, run.MinLoopLengthM, run.MaxLoopLengthM,
			run.Candidates, run.FailedSegments, run.DurationMs, run.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert loop run: %w", err)
		}
		return nil
	})
}

// Get returns one run summary
func (r *RunRepository) Get(ctx context.Context, id string) (models.LoopRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM loop_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LoopRun{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListByTrack returns the newest runs of a track first
func (r *RunRepository) ListByTrack(ctx context.Context, trackID int64, limit int) ([]models.LoopRun, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM loop_runs WHERE track_id = ? ORDER BY created_at DESC, id LIMIT ?`,
		trackID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query loop runs: %w", err)
	}
	defer rows.Close()

	runs := []models.LoopRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (models.LoopRun, error) {
	var (
		run       models.LoopRun
		createdAt int64
	)
	err := row.Scan(&run.ID, &run.TrackID, &run.Policy, &run.ClosureThresholdM, &run.MinLoopLengthM,
		&run.MaxLoopLengthM, &run.Candidates, &run.FailedSegments, &run.DurationMs, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.LoopRun{}, err
		}
		return models.LoopRun{}, fmt.Errorf("failed to scan loop run: %w", err)
	}
	run.CreatedAt = time.Unix(0, createdAt).UTC()
	return run, nil
}
