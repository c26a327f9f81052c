package loops

import (
	"math/rand"

	"github.com/jengzang/gpx-loop-cutter/internal/models"
	"github.com/jengzang/gpx-loop-cutter/internal/spatial"
)

const (
	north = 0.0
	east  = 90.0
	south = 180.0
	west  = 270.0
)

// path builds synthetic segments by walking bearings from a start fix
type path struct {
	points []models.Point
}

func newPath(lat, lon float64) *path {
	return &path{points: []models.Point{{Lat: lat, Lon: lon}}}
}

func (p *path) last() models.Point {
	return p.points[len(p.points)-1]
}

func (p *path) move(bearing, meters float64) *path {
	cur := p.last()
	lat, lon := spatial.DestinationPoint(cur.Lat, cur.Lon, bearing, meters)
	p.points = append(p.points, models.Point{Lat: lat, Lon: lon})
	return p
}

func (p *path) straight(bearing, step float64, steps int) *path {
	for i := 0; i < steps; i++ {
		p.move(bearing, step)
	}
	return p
}

// revisit appends an exact copy of the point at idx
func (p *path) revisit(idx int) *path {
	p.points = append(p.points, p.points[idx])
	return p
}

// square walks east, north and west by side and returns to the current point
func (p *path) square(side float64) *path {
	start := len(p.points) - 1
	return p.move(east, side).move(north, side).move(west, side).revisit(start)
}

func (p *path) segment() models.Segment {
	return models.Segment{Points: append([]models.Point(nil), p.points...)}
}

func trackOf(segments ...models.Segment) models.Track {
	return models.Track{Name: "test", Segments: segments}
}

// randomWalkTrack returns a deterministic wandering track that doubles back often
func randomWalkTrack(seed int64, segments, points int) models.Track {
	rng := rand.New(rand.NewSource(seed))
	track := models.Track{Name: "random"}
	for s := 0; s < segments; s++ {
		p := newPath(46.0+float64(s)*0.01, 7.0)
		bearing := rng.Float64() * 360
		for i := 1; i < points; i++ {
			bearing += rng.NormFloat64() * 60
			p.move(bearing, 5+rng.Float64()*20)
		}
		track.Segments = append(track.Segments, p.segment())
	}
	return track
}

func testThresholds() Thresholds {
	return Thresholds{ClosureThresholdM: 25, MinLoopLengthM: 50, MaxLoopLengthM: 1000}
}
