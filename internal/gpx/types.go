package gpx

import (
	"encoding/xml"
	"time"
)

const (
	// Namespace is the GPX 1.1 schema namespace written on encode
	Namespace = "http://www.topografix.com/GPX/1/1"
	// Creator is written into the creator attribute of encoded files
	Creator = "gpx-loop-cutter"
)

// document is the on-disk GPX structure. Only the parts the cutter needs are
// mapped: metadata time, tracks, segments and points with ele/time.
type document struct {
	XMLName xml.Name `xml:"gpx"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	XMLNS   string   `xml:"xmlns,attr,omitempty"`

	Metadata *metadata `xml:"metadata,omitempty"`
	Time     *time.Time `xml:"time,omitempty"` // GPX 1.0 keeps the file time at the root
	Tracks   []track    `xml:"trk"`
}

type metadata struct {
	Name string     `xml:"name,omitempty"`
	Desc string     `xml:"desc,omitempty"`
	Time *time.Time `xml:"time,omitempty"`
}

type track struct {
	Name     string    `xml:"name,omitempty"`
	Desc     string    `xml:"desc,omitempty"`
	Segments []segment `xml:"trkseg"`
}

type segment struct {
	Points []point `xml:"trkpt"`
}

type point struct {
	Lat  float64    `xml:"lat,attr"`
	Lon  float64    `xml:"lon,attr"`
	Ele  *float64   `xml:"ele,omitempty"`
	Time *time.Time `xml:"time,omitempty"`
}
