package loops

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jengzang/gpx-loop-cutter/internal/models"
)

// ErrInvalidSelection is returned for ordinals outside [1, candidate count]
var ErrInvalidSelection = errors.New("invalid selection")

// Mode tells Excise how to read the selected ordinals
type Mode int

const (
	// RemoveSelected cuts exactly the selected candidates
	RemoveSelected Mode = iota
	// KeepOnlySelected cuts every candidate except the selected ones
	KeepOnlySelected
)

func (m Mode) String() string {
	switch m {
	case RemoveSelected:
		return "remove-selected"
	case KeepOnlySelected:
		return "keep-only-selected"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "remove"/"remove-selected" and "keep"/"keep-only-selected"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "remove", "remove-selected":
		return RemoveSelected, nil
	case "keep", "keep-only-selected":
		return KeepOnlySelected, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidSelection, s)
	}
}

// Selection is a caller's choice of candidates by 1-based ordinal
type Selection struct {
	Ordinals []int
	Mode     Mode
}

// Resolve validates the ordinals against count and returns the ordinals to
// cut, ascending and without duplicates. KeepOnlySelected is turned into its
// complement here, before any point is touched.
func (s Selection) Resolve(count int) ([]int, error) {
	chosen := make([]bool, count+1)
	for _, o := range s.Ordinals {
		if o < 1 || o > count {
			return nil, fmt.Errorf("%w: ordinal %d outside [1, %d]", ErrInvalidSelection, o, count)
		}
		chosen[o] = true
	}

	cut := make([]int, 0, count)
	for o := 1; o <= count; o++ {
		if chosen[o] == (s.Mode == RemoveSelected) {
			cut = append(cut, o)
		}
	}
	return cut, nil
}

// Identity decides which track points count as belonging to a cut candidate
type Identity int

const (
	// ByPosition matches points by (segment index, point index)
	ByPosition Identity = iota
	// ByCoordinates matches points by (lat, lon, elevation) anywhere in the
	// track. Unrelated points sharing a coordinate triple are cut too.
	ByCoordinates
)

func (id Identity) String() string {
	switch id {
	case ByPosition:
		return "position"
	case ByCoordinates:
		return "coordinates"
	default:
		return fmt.Sprintf("identity(%d)", int(id))
	}
}

// ParseIdentity accepts "position" (the default for "") and "coordinates"
func ParseIdentity(s string) (Identity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "position":
		return ByPosition, nil
	case "coordinates", "coords":
		return ByCoordinates, nil
	default:
		return 0, fmt.Errorf("%w: unknown identity %q", ErrInvalidSelection, s)
	}
}

// ExciseOptions tunes Excise
type ExciseOptions struct {
	Identity Identity
}

// Excise returns a new track without the points of the selected candidates.
// Segment and point order are kept, emptied segments stay in place and track
// is not modified.
func Excise(track models.Track, candidates []models.Candidate, sel Selection) (models.Track, error) {
	return ExciseWith(track, candidates, sel, ExciseOptions{})
}

// ExciseWith is Excise with explicit options
func ExciseWith(track models.Track, candidates []models.Candidate, sel Selection, opts ExciseOptions) (models.Track, error) {
	cut, err := sel.Resolve(len(candidates))
	if err != nil {
		return models.Track{}, err
	}

	var drop func(segIdx, ptIdx int, p models.Point) bool
	switch opts.Identity {
	case ByCoordinates:
		keys := make(map[coordKey]struct{})
		for _, o := range cut {
			for _, p := range candidates[o-1].Points {
				keys[keyOf(p)] = struct{}{}
			}
		}
		drop = func(_, _ int, p models.Point) bool {
			_, ok := keys[keyOf(p)]
			return ok
		}
	default:
		masks, err := positionMasks(track, candidates, cut)
		if err != nil {
			return models.Track{}, err
		}
		drop = func(segIdx, ptIdx int, _ models.Point) bool {
			mask := masks[segIdx]
			return mask != nil && mask[ptIdx]
		}
	}

	out := models.Track{
		Name:     track.Name,
		Time:     track.Time,
		Segments: make([]models.Segment, len(track.Segments)),
	}
	for segIdx, seg := range track.Segments {
		kept := make([]models.Point, 0, len(seg.Points))
		for ptIdx, p := range seg.Points {
			if !drop(segIdx, ptIdx, p) {
				kept = append(kept, p)
			}
		}
		out.Segments[segIdx] = models.Segment{Points: kept}
	}

	return out, nil
}

func positionMasks(track models.Track, candidates []models.Candidate, cut []int) ([][]bool, error) {
	masks := make([][]bool, len(track.Segments))
	for _, o := range cut {
		r := candidates[o-1].Range
		if r.SegmentIndex < 0 || r.SegmentIndex >= len(track.Segments) ||
			r.Start < 0 || r.Start > r.End || r.End >= len(track.Segments[r.SegmentIndex].Points) {
			return nil, fmt.Errorf("%w: candidate %d range %+v does not fit the track", ErrInvalidSelection, o, r)
		}

		if masks[r.SegmentIndex] == nil {
			masks[r.SegmentIndex] = make([]bool, len(track.Segments[r.SegmentIndex].Points))
		}
		for i := r.Start; i <= r.End; i++ {
			masks[r.SegmentIndex][i] = true
		}
	}
	return masks, nil
}

type coordKey struct {
	lat, lon, ele float64
	hasEle        bool
}

func keyOf(p models.Point) coordKey {
	return coordKey{lat: p.Lat, lon: p.Lon, ele: p.Elevation, hasEle: p.HasElevation}
}
