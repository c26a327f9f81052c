package models

import "time"

// LoopRange addresses an inclusive index range inside one segment
type LoopRange struct {
	SegmentIndex int `json:"segment"`
	Start        int `json:"start"`
	End          int `json:"end"`
}

// Overlaps reports whether both ranges share at least one point index
func (r LoopRange) Overlaps(start, end int) bool {
	return max(r.Start, start) <= min(r.End, end)
}

// Len returns the number of points covered by the range
func (r LoopRange) Len() int {
	return r.End - r.Start + 1
}

// Candidate is a detected loop or spur offered for removal
type Candidate struct {
	Ordinal         int       `json:"ordinal"` // 1-based, stable within one detection run
	Range           LoopRange `json:"range"`
	LengthM         float64   `json:"length_m"`
	ClosingDistance float64   `json:"gap_m"`
	Points          []Point   `json:"points,omitempty"`
}

// LoopRun is the persisted summary of one detection run; candidates are not stored
type LoopRun struct {
	ID                string    `json:"id" db:"id"`
	TrackID           int64     `json:"track_id" db:"track_id"`
	Policy            string    `json:"policy" db:"policy"`
	ClosureThresholdM float64   `json:"closure_threshold_m" db:"closure_threshold_m"`
	MinLoopLengthM    float64   `json:"min_loop_length_m" db:"min_loop_length_m"`
	MaxLoopLengthM    float64   `json:"max_loop_length_m" db:"max_loop_length_m"`
	Candidates        int       `json:"candidates" db:"candidates"`
	FailedSegments    int       `json:"failed_segments" db:"failed_segments"`
	DurationMs        int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}
