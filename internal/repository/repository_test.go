package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jengzang/gpx-loop-cutter/internal/database"
	"github.com/jengzang/gpx-loop-cutter/internal/models"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db, logger))
	return db
}

func sampleTrack() models.Track {
	ts := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	return models.Track{
		Name: "ridge walk",
		Time: ts,
		Segments: []models.Segment{
			{Points: []models.Point{
				{Lat: 46.1, Lon: 7.1, Elevation: 1500, HasElevation: true, Time: ts},
				{Lat: 46.2, Lon: 7.2, Time: ts.Add(time.Minute)},
			}},
			{Points: []models.Point{}},
			{Points: []models.Point{{Lat: 46.3, Lon: 7.3}}},
		},
	}
}

func TestTrackRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewTrackRepository(setupDB(t), nil)

	in := sampleTrack()
	id, err := repo.Create(ctx, in, "upload")
	require.NoError(t, err)
	require.NotZero(t, id)

	out, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, out.ID)
	require.Equal(t, in.Name, out.Name)
	require.True(t, in.Time.Equal(out.Time))
	require.Len(t, out.Segments, 3)
	require.Empty(t, out.Segments[1].Points)
	require.NotNil(t, out.Segments[1].Points)

	got := out.Segments[0].Points
	require.Equal(t, 1500.0, got[0].Elevation)
	require.True(t, got[0].HasElevation)
	require.False(t, got[1].HasElevation)
	require.True(t, got[1].Time.Equal(in.Segments[0].Points[1].Time))
	require.True(t, out.Segments[2].Points[0].Time.IsZero())
}

func TestTrackRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewTrackRepository(setupDB(t), nil)

	_, err := repo.Get(ctx, 999)
	require.ErrorIs(t, err, ErrTrackNotFound)

	err = repo.Delete(ctx, 999)
	require.ErrorIs(t, err, ErrTrackNotFound)
}

func TestTrackRepositoryListAndDelete(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	tracks := NewTrackRepository(db, nil)
	runs := NewRunRepository(db, nil)

	var ids []int64
	for i := 0; i < 3; i++ {
		tr := sampleTrack()
		tr.Name = fmt.Sprintf("track %d", i)
		id, err := tracks.Create(ctx, tr, "cli")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	list, total, err := tracks.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, list, 2)
	require.Equal(t, ids[2], list[0].ID, "newest first")
	require.Equal(t, 3, list[0].Segments)
	require.Equal(t, 3, list[0].Points)
	require.Equal(t, "cli", list[0].Source)

	require.NoError(t, runs.Create(ctx, models.LoopRun{ID: "run-1", TrackID: ids[0], Policy: "p"}))
	require.NoError(t, tracks.Delete(ctx, ids[0]))

	_, err = tracks.Get(ctx, ids[0])
	require.ErrorIs(t, err, ErrTrackNotFound)

	var points int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM track_points WHERE track_id = ?`, ids[0]).Scan(&points))
	require.Zero(t, points, "points cascade with the track")

	history, err := runs.ListByTrack(ctx, ids[0], 10)
	require.NoError(t, err)
	require.Empty(t, history, "runs cascade with the track")
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	trackID, err := NewTrackRepository(db, nil).Create(ctx, sampleTrack(), "")
	require.NoError(t, err)

	repo := NewRunRepository(db, nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, models.LoopRun{
			ID:                id,
			TrackID:           trackID,
			Policy:            "leftmost-earliest-closing",
			ClosureThresholdM: 25,
			MinLoopLengthM:    50,
			MaxLoopLengthM:    1000,
			Candidates:        i,
			DurationMs:        int64(10 * i),
			CreatedAt:         base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := repo.ListByTrack(ctx, trackID, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "c", runs[0].ID)
	require.Equal(t, "b", runs[1].ID)
	require.Equal(t, 2, runs[0].Candidates)

	run, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 25.0, run.ClosureThresholdM)
	require.True(t, base.Equal(run.CreatedAt))

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrRunNotFound)

	// duplicate ids are rejected and not retried as busy
	err = repo.Create(ctx, models.LoopRun{ID: "a", TrackID: trackID})
	require.Error(t, err)
	require.False(t, isBusy(err))
}

func TestIsBusy(t *testing.T) {
	require.False(t, isBusy(nil))
	require.False(t, isBusy(errors.New("database is locked")))
}
