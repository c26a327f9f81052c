// Package trackops holds the whole-track preparation steps that run before
// loop detection: ordering recordings, merging them and thinning the result.
package trackops

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jengzang/gpx-loop-cutter/internal/models"
	"github.com/jengzang/gpx-loop-cutter/internal/spatial"
)

// DefaultMergedName is used when Merge is called without a name
const DefaultMergedName = "Merged Track"

// ErrNothingToMerge is returned by Merge for an empty input
var ErrNothingToMerge = errors.New("no tracks to merge")

// SortByDate returns tracks ordered by start time. A track without any
// timestamp sorts as if it started now. Ties keep their input order.
func SortByDate(tracks []models.Track, descending bool) []models.Track {
	now := time.Now()
	dateOf := func(t models.Track) time.Time {
		if ts, ok := t.StartTime(); ok {
			return ts
		}
		return now
	}

	out := slices.Clone(tracks)
	slices.SortStableFunc(out, func(a, b models.Track) int {
		c := dateOf(a).Compare(dateOf(b))
		if descending {
			return -c
		}
		return c
	})
	return out
}

// Merge concatenates the segments of tracks, in order, into one new track.
// Points are copied. The merged track takes its time from the first input.
func Merge(tracks []models.Track, name string) (models.Track, error) {
	if len(tracks) == 0 {
		return models.Track{}, ErrNothingToMerge
	}
	if name == "" {
		name = DefaultMergedName
	}

	merged := models.Track{Name: name}
	if ts, ok := tracks[0].StartTime(); ok {
		merged.Time = ts
	}
	for _, t := range tracks {
		merged.Segments = append(merged.Segments, t.Clone().Segments...)
	}
	return merged, nil
}

// Stats reports the effect of Simplify
type Stats struct {
	PointsBefore int `json:"points_before"`
	PointsAfter  int `json:"points_after"`
}

// Reduction returns the share of removed points in percent
func (s Stats) Reduction() float64 {
	if s.PointsBefore == 0 {
		return 0
	}
	return float64(s.PointsBefore-s.PointsAfter) / float64(s.PointsBefore) * 100
}

func (s Stats) String() string {
	return fmt.Sprintf("%d -> %d points (%.1f%% reduction)", s.PointsBefore, s.PointsAfter, s.Reduction())
}

// Simplify thins every segment by distance: the first point is kept and then
// each point at least minDistanceM away from the last kept one. With
// preserveKeyPoints the last and the highest point of a segment are kept as
// well. Segments left empty are dropped.
func Simplify(track models.Track, minDistanceM float64, preserveKeyPoints bool) (models.Track, Stats) {
	out := models.Track{ID: track.ID, Name: track.Name, Time: track.Time}
	stats := Stats{PointsBefore: track.PointCount()}

	for _, seg := range track.Segments {
		points := simplifySegment(seg.Points, minDistanceM, preserveKeyPoints)
		if len(points) == 0 {
			continue
		}
		out.Segments = append(out.Segments, models.Segment{Points: points})
	}

	stats.PointsAfter = out.PointCount()
	return out, stats
}

func simplifySegment(points []models.Point, minDistanceM float64, preserveKeyPoints bool) []models.Point {
	if len(points) == 0 {
		return nil
	}

	key := func(int) bool { return false }
	if preserveKeyPoints {
		last, highest := len(points)-1, highestPoint(points)
		key = func(i int) bool { return i == last || i == highest }
	}

	kept := []models.Point{points[0]}
	lastKept := points[0]
	for i := 1; i < len(points); i++ {
		p := points[i]
		if key(i) || spatial.Distance(lastKept, p) >= minDistanceM {
			kept = append(kept, p)
			lastKept = p
		}
	}
	return kept
}

// highestPoint returns the index of the first point with the greatest
// elevation; points without elevation count as 0 m.
func highestPoint(points []models.Point) int {
	best, bestEle := 0, elevationOf(points[0])
	for i, p := range points[1:] {
		if e := elevationOf(p); e > bestEle {
			best, bestEle = i+1, e
		}
	}
	return best
}

func elevationOf(p models.Point) float64 {
	if !p.HasElevation {
		return 0
	}
	return p.Elevation
}

// Gap is the largest jump between two consecutive points of a segment
type Gap struct {
	SegmentIndex int          `json:"segment"`
	Index        int          `json:"index"` // index of the second point
	DistanceM    float64      `json:"distance_m"`
	From         models.Point `json:"from"`
	To           models.Point `json:"to"`
}

// MaxGap finds the largest distance between consecutive points. ok is false
// when no segment has two points.
func MaxGap(track models.Track) (gap Gap, ok bool) {
	for segIdx, seg := range track.Segments {
		for i := 1; i < len(seg.Points); i++ {
			d := spatial.Distance(seg.Points[i-1], seg.Points[i])
			if !ok || d > gap.DistanceM {
				gap = Gap{SegmentIndex: segIdx, Index: i, DistanceM: d, From: seg.Points[i-1], To: seg.Points[i]}
				ok = true
			}
		}
	}
	return gap, ok
}

// Length returns the summed path length of all segments in meters. Jumps
// between segments are not counted.
func Length(track models.Track) float64 {
	total := 0.0
	for _, seg := range track.Segments {
		total += spatial.PathLength(seg.Points)
	}
	return total
}
