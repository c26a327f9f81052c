package export

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/gpx-loop-cutter/internal/models"
)

func TestTrackFeatureCollection(t *testing.T) {
	track := models.Track{
		ID:   42,
		Name: "ride",
		Segments: []models.Segment{
			{Points: []models.Point{{Lat: 46, Lon: 7}, {Lat: 46.001, Lon: 7}, {Lat: 46.001, Lon: 7.001}, {Lat: 46, Lon: 7}}},
			{Points: []models.Point{{Lat: 47, Lon: 8}}},
		},
	}
	candidates := []models.Candidate{{
		Ordinal:         1,
		Range:           models.LoopRange{SegmentIndex: 0, Start: 0, End: 3},
		LengthM:         333.5,
		ClosingDistance: 0,
		Points:          track.Segments[0].Points,
	}}

	fc := TrackFeatureCollection(track, candidates)
	require.Len(t, fc.Features, 2)

	tf := fc.Features[0]
	require.Equal(t, KindTrack, tf.Properties["kind"])
	require.Equal(t, int64(42), tf.ID)
	require.Equal(t, 2, tf.Properties["segments"])
	mls, ok := tf.Geometry.(orb.MultiLineString)
	require.True(t, ok)
	require.Len(t, mls, 1, "single-point segments have no line")
	require.Equal(t, orb.Point{7, 46}, mls[0][0])

	cf := fc.Features[1]
	require.Equal(t, KindCandidate, cf.Properties["kind"])
	require.Equal(t, 1, cf.Properties["ordinal"])
	require.Equal(t, 3, cf.Properties["end"])
	require.Equal(t, 333.5, cf.Properties["length_m"])

	require.Equal(t, geojson.BBox{7, 46, 7.001, 46.001}, fc.BBox)
}

func TestTrackFeatureCollectionMarshals(t *testing.T) {
	fc := TrackFeatureCollection(models.Track{Name: "empty"}, nil)

	data, err := json.Marshal(fc)
	require.NoError(t, err)

	back, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, back.Features, 1)
	require.Equal(t, "empty", back.Features[0].Properties.MustString("name"))
	require.Nil(t, back.BBox)
}
