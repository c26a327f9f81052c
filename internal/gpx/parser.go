package gpx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/jengzang/gpx-loop-cutter/internal/models"
)

// ErrNoTracks is returned when a document holds no trk element
var ErrNoTracks = errors.New("gpx has no tracks")

// ParseFile reads and decodes a GPX file
func ParseFile(path string) (models.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Track{}, fmt.Errorf("failed to open file: %w", err)
	}

	t, err := Decode(bytes.NewReader(data))
	if err != nil {
		return models.Track{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return t, nil
}

// Decode parses GPX 1.0 or 1.1 from r. Every trkseg of every trk becomes a
// segment of the returned track, in document order. Files that are not valid
// UTF-8 and do not declare another charset are retried as Latin-1.
func Decode(r io.Reader) (models.Track, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.Track{}, fmt.Errorf("failed to read GPX: %w", err)
	}

	doc, err := decodeDocument(data, charsetReader)
	if err != nil && !utf8.Valid(data) {
		latin, convErr := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if convErr == nil {
			doc, err = decodeDocument(latin, passthroughCharset)
		}
	}
	if err != nil {
		return models.Track{}, fmt.Errorf("failed to parse GPX: %w", err)
	}
	if len(doc.Tracks) == 0 {
		return models.Track{}, ErrNoTracks
	}

	return toTrack(doc), nil
}

func decodeDocument(data []byte, cr func(string, io.Reader) (io.Reader, error)) (document, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = cr

	var doc document
	err := decoder.Decode(&doc)
	return doc, err
}

func passthroughCharset(_ string, input io.Reader) (io.Reader, error) {
	return input, nil
}

// charsetReader handles the single-byte encodings older exporters declare
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "iso-8859-1", "latin1", "latin-1", "l1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	case "utf-8", "utf8", "us-ascii", "ascii":
		return input, nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
}

func toTrack(doc document) models.Track {
	var out models.Track

	if doc.Metadata != nil {
		out.Name = doc.Metadata.Name
		if doc.Metadata.Time != nil {
			out.Time = doc.Metadata.Time.UTC()
		}
	}
	if out.Time.IsZero() && doc.Time != nil {
		out.Time = doc.Time.UTC()
	}

	for _, trk := range doc.Tracks {
		if out.Name == "" {
			out.Name = trk.Name
		}
		for _, seg := range trk.Segments {
			points := make([]models.Point, 0, len(seg.Points))
			for _, p := range seg.Points {
				points = append(points, toPoint(p))
			}
			out.Segments = append(out.Segments, models.Segment{Points: points})
		}
	}

	if out.Time.IsZero() {
		if t, ok := out.StartTime(); ok {
			out.Time = t
		}
	}
	return out
}

func toPoint(p point) models.Point {
	mp := models.Point{Lat: p.Lat, Lon: p.Lon}
	if p.Ele != nil {
		mp.Elevation = *p.Ele
		mp.HasElevation = true
	}
	if p.Time != nil {
		mp.Time = p.Time.UTC()
	}
	return mp
}

// WriteFile saves track as a GPX 1.1 file
func WriteFile(path string, t models.Track) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := Encode(file, t); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Encode writes track as a GPX 1.1 document with a single trk
func Encode(w io.Writer, t models.Track) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")

	if err := encoder.Encode(fromTrack(t)); err != nil {
		return fmt.Errorf("failed to encode GPX: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return nil
}

func fromTrack(t models.Track) document {
	doc := document{
		Version: "1.1",
		Creator: Creator,
		XMLNS:   Namespace,
		Metadata: &metadata{
			Name: t.Name,
		},
	}
	if !t.Time.IsZero() {
		ts := t.Time.UTC()
		doc.Metadata.Time = &ts
	}

	trk := track{Name: t.Name, Segments: make([]segment, 0, len(t.Segments))}
	for _, seg := range t.Segments {
		s := segment{Points: make([]point, 0, len(seg.Points))}
		for _, p := range seg.Points {
			gp := point{Lat: p.Lat, Lon: p.Lon}
			if p.HasElevation {
				ele := p.Elevation
				gp.Ele = &ele
			}
			if !p.Time.IsZero() {
				ts := p.Time.UTC()
				gp.Time = &ts
			}
			s.Points = append(s.Points, gp)
		}
		trk.Segments = append(trk.Segments, s)
	}
	doc.Tracks = []track{trk}

	return doc
}

// FindFiles recursively lists *.gpx files below dir, sorted by path
func FindFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".gpx") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	sort.Strings(files)
	return files, nil
}
