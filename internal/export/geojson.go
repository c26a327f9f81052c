package export

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jengzang/gpx-loop-cutter/internal/models"
)

// Feature kinds written into the "kind" property
const (
	KindTrack     = "track"
	KindCandidate = "candidate"
)

// TrackFeatureCollection renders a track and its loop candidates as GeoJSON:
// one MultiLineString for the track followed by one LineString per candidate,
// in ordinal order. Segments with fewer than two points are left out of the
// geometry but still counted in the "segments" property.
func TrackFeatureCollection(track models.Track, candidates []models.Candidate) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	var bound orb.Bound
	hasBound := false
	extend := func(ls orb.LineString) {
		if !hasBound {
			bound, hasBound = ls.Bound(), true
			return
		}
		bound = bound.Union(ls.Bound())
	}

	mls := make(orb.MultiLineString, 0, len(track.Segments))
	for _, seg := range track.Segments {
		if len(seg.Points) < 2 {
			continue
		}
		ls := LineString(seg.Points)
		mls = append(mls, ls)
		extend(ls)
	}

	tf := geojson.NewFeature(mls)
	if track.ID != 0 {
		tf.ID = track.ID
	}
	tf.Properties["kind"] = KindTrack
	tf.Properties["name"] = track.Name
	tf.Properties["segments"] = len(track.Segments)
	tf.Properties["points"] = track.PointCount()
	fc.Append(tf)

	for _, c := range candidates {
		ls := LineString(c.Points)
		if len(ls) > 0 {
			extend(ls)
		}

		f := geojson.NewFeature(ls)
		f.Properties["kind"] = KindCandidate
		f.Properties["ordinal"] = c.Ordinal
		f.Properties["segment"] = c.Range.SegmentIndex
		f.Properties["start"] = c.Range.Start
		f.Properties["end"] = c.Range.End
		f.Properties["length_m"] = c.LengthM
		f.Properties["gap_m"] = c.ClosingDistance
		fc.Append(f)
	}

	if hasBound {
		fc.BBox = geojson.NewBBox(bound)
	}
	return fc
}

// LineString converts track points to an orb line in lon/lat order
func LineString(points []models.Point) orb.LineString {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = orb.Point{p.Lon, p.Lat}
	}
	return ls
}
