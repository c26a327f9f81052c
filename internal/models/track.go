package models

import "time"

// Point represents a single GPS fix of a recorded track
type Point struct {
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	Elevation    float64   `json:"ele,omitempty"`
	HasElevation bool      `json:"-"`
	Time         time.Time `json:"time,omitempty"` // zero when the recorder did not stamp the fix
}

// Segment is an ordered run of points (trkseg)
type Segment struct {
	Points []Point `json:"points"`
}

// Track is one recorded journey made of segments
type Track struct {
	ID       int64     `json:"id,omitempty" db:"id"`
	Name     string    `json:"name" db:"name"`
	Time     time.Time `json:"time,omitempty" db:"recorded_at"`
	Segments []Segment `json:"segments"`
}

// PointCount returns the number of points across all segments
func (t Track) PointCount() int {
	n := 0
	for _, seg := range t.Segments {
		n += len(seg.Points)
	}
	return n
}

// StartTime returns the track time, falling back to the first stamped point
func (t Track) StartTime() (time.Time, bool) {
	if !t.Time.IsZero() {
		return t.Time, true
	}
	for _, seg := range t.Segments {
		for _, p := range seg.Points {
			if !p.Time.IsZero() {
				return p.Time, true
			}
		}
	}
	return time.Time{}, false
}

// Clone returns a deep copy that shares no slices with t
func (t Track) Clone() Track {
	out := t
	out.Segments = make([]Segment, len(t.Segments))
	for i, seg := range t.Segments {
		out.Segments[i] = Segment{Points: append([]Point(nil), seg.Points...)}
	}
	return out
}

// TrackSummary is the list view of a stored track
type TrackSummary struct {
	ID         int64     `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	RecordedAt time.Time `json:"recorded_at,omitempty" db:"recorded_at"`
	Source     string    `json:"source,omitempty" db:"source"`
	Segments   int       `json:"segments"`
	Points     int       `json:"points"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
