package spatial

import (
	"math"
	"testing"

	"github.com/jengzang/gpx-loop-cutter/internal/models"
)

func TestHaversineDistance(t *testing.T) {
	tests := []struct {
		name       string
		lat1, lon1 float64
		lat2, lon2 float64
		want       float64
		tolerance  float64
	}{
		{"identical", 46.0, 7.0, 46.0, 7.0, 0, 0},
		{"one millidegree diagonal", 46.0, 7.0, 46.001, 7.001, 136, 5},
		{"one degree latitude", 0, 0, 1, 0, 111195, 1},
		{"antipodes", 0, 0, 0, 180, math.Pi * EarthRadiusMeters, 1},
		{"poles", 90, 0, -90, 0, math.Pi * EarthRadiusMeters, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineDistance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.IsNaN(got) || math.IsInf(got, 0) {
				t.Fatalf("distance is not finite: %v", got)
			}
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("HaversineDistance = %.2f, want %.2f ± %.2f", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestDistanceIsSymmetric(t *testing.T) {
	a := models.Point{Lat: 46.01, Lon: 7.02, Elevation: 1200, HasElevation: true}
	b := models.Point{Lat: 45.99, Lon: 7.05}

	if d1, d2 := Distance(a, b), Distance(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Errorf("distance not symmetric: %v vs %v", d1, d2)
	}
}

func TestDistanceIgnoresElevation(t *testing.T) {
	a := models.Point{Lat: 46.0, Lon: 7.0, Elevation: 0, HasElevation: true}
	b := models.Point{Lat: 46.0, Lon: 7.0, Elevation: 3000, HasElevation: true}

	if d := Distance(a, b); d != 0 {
		t.Errorf("expected 0 for same lat/lon, got %v", d)
	}
}

func TestDestinationPointRoundTrip(t *testing.T) {
	for _, bearing := range []float64{0, 45, 90, 180, 270} {
		lat, lon := DestinationPoint(46.0, 7.0, bearing, 100)
		d := HaversineDistance(46.0, 7.0, lat, lon)
		if math.Abs(d-100) > 0.01 {
			t.Errorf("bearing %v: expected 100m, got %.4f", bearing, d)
		}
	}
}

func TestPathLength(t *testing.T) {
	if got := PathLength(nil); got != 0 {
		t.Errorf("empty path length = %v", got)
	}

	lat, lon := DestinationPoint(46.0, 7.0, 90, 50)
	points := []models.Point{{Lat: 46.0, Lon: 7.0}, {Lat: lat, Lon: lon}, {Lat: 46.0, Lon: 7.0}}
	if got := PathLength(points); math.Abs(got-100) > 0.01 {
		t.Errorf("PathLength = %.4f, want 100", got)
	}
}

func TestValidCoordinate(t *testing.T) {
	cases := []struct {
		lat, lon float64
		want     bool
	}{
		{46, 7, true},
		{-90, 180, true},
		{91, 0, false},
		{0, -181, false},
		{math.NaN(), 0, false},
		{0, math.Inf(1), false},
	}
	for _, c := range cases {
		if got := ValidCoordinate(c.lat, c.lon); got != c.want {
			t.Errorf("ValidCoordinate(%v, %v) = %v, want %v", c.lat, c.lon, got, c.want)
		}
	}
}

func BenchmarkHaversineDistance(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = HaversineDistance(46.0, 7.0, 46.001, 7.001)
	}
}
