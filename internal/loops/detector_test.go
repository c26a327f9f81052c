package loops

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jengzang/gpx-loop-cutter/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDetectOrdersCandidatesAcrossSegments(t *testing.T) {
	track := trackOf(
		newPath(46.0, 7.0).square(30).straight(east, 100, 5).square(30).segment(),
		newPath(46.1, 7.0).straight(east, 50, 9).segment(),
		newPath(46.2, 7.0).square(100).segment(),
	)

	d := NewDetector(nil, 3, quietLogger())
	det := d.Detect(context.Background(), track, testThresholds())

	require.Equal(t, PolicyLeftmostEarliest, det.Policy)
	require.Empty(t, det.Failures)
	require.Len(t, det.Candidates, 3)

	want := []models.LoopRange{
		{SegmentIndex: 0, Start: 0, End: 4},
		{SegmentIndex: 0, Start: 9, End: 13},
		{SegmentIndex: 2, Start: 0, End: 4},
	}
	for i, c := range det.Candidates {
		require.Equal(t, i+1, c.Ordinal)
		require.Equal(t, want[i], c.Range)
		require.Len(t, c.Points, c.Range.Len())
	}
}

func TestDetectNoLoops(t *testing.T) {
	track := trackOf(newPath(46.0, 7.0).straight(east, 50, 9).segment())

	det := NewDetector(nil, 0, quietLogger()).Detect(context.Background(), track, testThresholds())
	require.NotNil(t, det.Candidates)
	require.Empty(t, det.Candidates)
	require.Empty(t, det.Failures)
}

func TestDetectIsolatesFailedSegment(t *testing.T) {
	corrupt := newPath(46.1, 7.0).square(30).segment()
	corrupt.Points[1].Lon = math.Inf(1)

	track := trackOf(
		newPath(46.0, 7.0).square(30).segment(),
		corrupt,
		newPath(46.2, 7.0).square(30).segment(),
	)

	det := NewDetector(nil, 2, quietLogger()).Detect(context.Background(), track, testThresholds())

	require.Len(t, det.Failures, 1)
	require.Equal(t, 1, det.Failures[0].SegmentIndex)
	require.ErrorIs(t, det.Failures[0].Err, ErrCorruptSegment)

	require.Len(t, det.Candidates, 2)
	require.Equal(t, 0, det.Candidates[0].Range.SegmentIndex)
	require.Equal(t, 2, det.Candidates[1].Range.SegmentIndex)
	require.Equal(t, 2, det.Candidates[1].Ordinal)
}

func TestDetectIsDeterministic(t *testing.T) {
	th := testThresholds()
	for seed := int64(1); seed <= 4; seed++ {
		track := randomWalkTrack(seed, 6, 250)

		serial := NewDetector(nil, 1, quietLogger()).Detect(context.Background(), track, th)
		parallel := NewDetector(nil, 8, quietLogger()).Detect(context.Background(), track, th)
		again := NewDetector(nil, 8, quietLogger()).Detect(context.Background(), track, th)

		require.Equal(t, serial.Candidates, parallel.Candidates, "seed %d", seed)
		require.Equal(t, parallel.Candidates, again.Candidates, "seed %d", seed)

		// candidates from the pool match a plain per-segment scan
		var want []models.LoopRange
		for segIdx, seg := range track.Segments {
			loops, err := ScanSegment(seg.Points, th, nil)
			require.NoError(t, err)
			for _, l := range loops {
				want = append(want, models.LoopRange{SegmentIndex: segIdx, Start: l.Start, End: l.End})
			}
		}
		got := make([]models.LoopRange, 0, len(parallel.Candidates))
		for _, c := range parallel.Candidates {
			got = append(got, c.Range)
		}
		require.Equal(t, len(want), len(got))
		if len(want) > 0 {
			require.Equal(t, want, got)
		}
	}
}

func TestDetectUsesConfiguredPolicy(t *testing.T) {
	track := trackOf(newPath(46.0, 7.0).
		square(30).
		move(south, 30).
		move(west, 30).
		move(north, 30).
		revisit(0).
		segment())

	longest, err := PolicyByName(PolicyLongest)
	require.NoError(t, err)

	det := NewDetector(longest, 1, quietLogger()).Detect(context.Background(), track, testThresholds())
	require.Equal(t, PolicyLongest, det.Policy)
	require.Len(t, det.Candidates, 1)
	require.Equal(t, 8, det.Candidates[0].Range.End)
}

func TestRunOrderedRecoversPanics(t *testing.T) {
	boom := errors.New("boom")
	results := RunOrdered(2, []int{1, 2, 3, 4}, func(_ int, v int) (int, error) {
		switch v {
		case 2:
			panic("bad input")
		case 3:
			return 0, boom
		}
		return v * 10, nil
	})

	require.Len(t, results, 4)
	require.NoError(t, results[0].Err)
	require.Equal(t, 10, results[0].Value)
	require.ErrorIs(t, results[1].Err, ErrTaskPanic)
	require.ErrorIs(t, results[2].Err, boom)
	require.NoError(t, results[3].Err)
	require.Equal(t, 40, results[3].Value)
}

func TestRunOrderedEmpty(t *testing.T) {
	results := RunOrdered(4, []string(nil), func(int, string) (int, error) {
		t.Fatal("fn must not be called")
		return 0, nil
	})
	require.Empty(t, results)
}
