// Package loops finds and cuts loops and spurs: stretches of a track that
// return close to an earlier point after a bounded walk.
package loops

import (
	"errors"
	"fmt"
	"iter"

	"github.com/jengzang/gpx-loop-cutter/internal/models"
	"github.com/jengzang/gpx-loop-cutter/internal/spatial"
)

// ErrCorruptSegment is returned when a segment holds coordinates no scan can use
var ErrCorruptSegment = errors.New("corrupt segment")

// Thresholds bound what counts as a loop. All values are meters.
type Thresholds struct {
	ClosureThresholdM float64 `json:"closure_threshold_m"` // max start/end distance of a closed range
	MinLoopLengthM    float64 `json:"min_loop_length_m"`   // path length must be above this
	MaxLoopLengthM    float64 `json:"max_loop_length_m"`   // extension stops once the path is longer
}

// DefaultThresholds returns the thresholds used for hiking tracks
func DefaultThresholds() Thresholds {
	return Thresholds{
		ClosureThresholdM: 25.0,
		MinLoopLengthM:    50.0,
		MaxLoopLengthM:    1000.0,
	}
}

// Closure is a closed range found while extending from one start index
type Closure struct {
	Start   int     `json:"start"`
	End     int     `json:"end"`
	LengthM float64 `json:"length_m"`
	GapM    float64 `json:"gap_m"` // distance between the start and end point
}

// Loop is a closure accepted by the policy, with a copy of the points it spans
type Loop struct {
	Closure
	Points []models.Point
}

// ScanSegment runs the double-loop scan over one segment and returns the
// accepted loops in discovery order. It reads points only and keeps no state
// between calls, so segments can be scanned concurrently.
func ScanSegment(points []models.Point, th Thresholds, policy Policy) ([]Loop, error) {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if err := checkPoints(points); err != nil {
		return nil, err
	}

	n := len(points)
	if n < 2 {
		return nil, nil
	}

	var loops []Loop
	var accepted []models.LoopRange

	for i := 0; i < n-1; i++ {
		c, ok := policy.Select(closuresFrom(points, i, th), accepted)
		if !ok {
			continue
		}

		accepted = append(accepted, models.LoopRange{Start: c.Start, End: c.End})
		loops = append(loops, Loop{
			Closure: c,
			Points:  append([]models.Point(nil), points[c.Start:c.End+1]...),
		})
	}

	return loops, nil
}

// closuresFrom yields every closure starting at i in ascending end index.
// The running length is accumulated once per step, so a full scan is O(n²).
func closuresFrom(points []models.Point, i int, th Thresholds) iter.Seq[Closure] {
	return func(yield func(Closure) bool) {
		total := 0.0
		for j := i + 1; j < len(points); j++ {
			total += spatial.Distance(points[j-1], points[j])
			if total > th.MaxLoopLengthM {
				return
			}
			if total <= th.MinLoopLengthM {
				continue
			}

			gap := spatial.Distance(points[i], points[j])
			if gap >= th.ClosureThresholdM {
				continue
			}

			if !yield(Closure{Start: i, End: j, LengthM: total, GapM: gap}) {
				return
			}
		}
	}
}

func checkPoints(points []models.Point) error {
	for idx, p := range points {
		if !spatial.ValidCoordinate(p.Lat, p.Lon) {
			return fmt.Errorf("%w: point %d has coordinate (%v, %v)", ErrCorruptSegment, idx, p.Lat, p.Lon)
		}
	}
	return nil
}

func overlapsAny(accepted []models.LoopRange, start, end int) bool {
	for _, r := range accepted {
		if r.Overlaps(start, end) {
			return true
		}
	}
	return false
}
