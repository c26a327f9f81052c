package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/jengzang/gpx-loop-cutter/internal/config"
	"github.com/jengzang/gpx-loop-cutter/internal/export"
	"github.com/jengzang/gpx-loop-cutter/internal/gpx"
	"github.com/jengzang/gpx-loop-cutter/internal/logging"
	"github.com/jengzang/gpx-loop-cutter/internal/loops"
	"github.com/jengzang/gpx-loop-cutter/internal/models"
	"github.com/jengzang/gpx-loop-cutter/internal/trackops"
)

// Output file names written into -out
const (
	MergedFile     = "merged_tracks.gpx"
	SimplifiedFile = "simplified_track.gpx"
	LoopsFile      = "loops.geojson"
	CleanedFile    = "cleaned_track.gpx"
)

type options struct {
	dir        string
	out        string
	remove     string
	keep       string
	identity   string
	policy     string
	closure    float64
	minLoop    float64
	maxLoop    float64
	simplifyM  float64
	noSimplify bool
	descending bool
}

func main() {
	var (
		opts       options
		configFile = flag.String("config", "", "Config file (default: ./config.yaml if present)")
	)
	flag.StringVar(&opts.dir, "dir", "", "Directory searched recursively for .gpx files")
	flag.StringVar(&opts.out, "out", "processed_tracks", "Output directory")
	flag.StringVar(&opts.remove, "remove", "", "Comma separated loop numbers to cut, e.g. 1,3")
	flag.StringVar(&opts.keep, "keep", "", "Comma separated loop numbers to keep; all others are cut")
	flag.StringVar(&opts.identity, "identity", "position", "Which points belong to a loop: position or coordinates")
	flag.StringVar(&opts.policy, "policy", "", "Selection policy (default from config): "+strings.Join(loops.PolicyNames(), ", "))
	flag.Float64Var(&opts.closure, "closure", 0, "Closure threshold in meters (default from config)")
	flag.Float64Var(&opts.minLoop, "min-loop", 0, "Minimum loop length in meters (default from config)")
	flag.Float64Var(&opts.maxLoop, "max-loop", 0, "Maximum loop length in meters (default from config)")
	flag.Float64Var(&opts.simplifyM, "simplify", 0, "Minimum distance between kept points in meters (default from config)")
	flag.BoolVar(&opts.noSimplify, "no-simplify", false, "Detect loops on the merged track as is")
	flag.BoolVar(&opts.descending, "newest-first", false, "Merge newest recording first")

	flag.Usage = func() {
		fmt.Printf("loopcut - find and cut loops and spurs out of GPX tracks\n\n")
		fmt.Printf("usage: loopcut -dir /path/to/tracks [-remove 1,3 | -keep 2]\n\n")
		fmt.Printf("examples:\n")
		fmt.Printf("  loopcut -dir ~/Downloads/track\n")
		fmt.Printf("  loopcut -dir ~/Downloads/track -remove 1,2\n")
		fmt.Printf("  loopcut -dir ~/Downloads/track -keep 3 -closure 15\n\n")
		fmt.Printf("options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if opts.dir == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, "text")

	if err := run(context.Background(), os.Stdout, cfg, opts, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, cfg *config.Config, opts options, logger *slog.Logger) error {
	th, policy, err := detectionSettings(cfg.Loops, opts)
	if err != nil {
		return err
	}
	sel, cutting, err := selection(opts)
	if err != nil {
		return err
	}
	identity, err := loops.ParseIdentity(opts.identity)
	if err != nil {
		return err
	}

	files, err := gpx.FindFiles(opts.dir)
	if err != nil {
		return err
	}
	var tracks []models.Track
	for _, f := range files {
		t, err := gpx.ParseFile(f)
		if err != nil {
			logger.Warn("skipping unreadable GPX file", "file", f, "error", err)
			continue
		}
		tracks = append(tracks, t)
	}
	if len(tracks) == 0 {
		return fmt.Errorf("no valid GPX files in %s", opts.dir)
	}
	fmt.Fprintf(w, "Loaded %d of %d GPX files from %s\n", len(tracks), len(files), opts.dir)

	merged, err := trackops.Merge(trackops.SortByDate(tracks, opts.descending), "")
	if err != nil {
		return err
	}
	if gap, ok := trackops.MaxGap(merged); ok {
		fmt.Fprintf(w, "Max distance between points: %.2f m (segment %d, point %d)\n",
			gap.DistanceM, gap.SegmentIndex, gap.Index)
	}

	if err := os.MkdirAll(opts.out, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := gpx.WriteFile(filepath.Join(opts.out, MergedFile), merged); err != nil {
		return err
	}

	working := merged
	if !opts.noSimplify {
		minDist := cfg.Simplify.MinDistanceM
		if opts.simplifyM > 0 {
			minDist = opts.simplifyM
		}
		simplified, stats := trackops.Simplify(merged, minDist, cfg.Simplify.PreserveKeyPoints)
		fmt.Fprintf(w, "Simplified: %s\n", stats)
		if err := gpx.WriteFile(filepath.Join(opts.out, SimplifiedFile), simplified); err != nil {
			return err
		}
		working = simplified
	}

	detection := loops.NewDetector(policy, cfg.Loops.Workers, logger).Detect(ctx, working, th)
	printCandidates(w, detection)

	fc := export.TrackFeatureCollection(working, detection.Candidates)
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	if err := os.WriteFile(filepath.Join(opts.out, LoopsFile), data, 0o644); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}

	if !cutting {
		return nil
	}

	cleaned, err := loops.ExciseWith(working, detection.Candidates, sel, loops.ExciseOptions{Identity: identity})
	if err != nil {
		return err
	}
	if err := gpx.WriteFile(filepath.Join(opts.out, CleanedFile), cleaned); err != nil {
		return err
	}
	fmt.Fprintf(w, "Cut %d points, %d left, written to %s\n",
		working.PointCount()-cleaned.PointCount(), cleaned.PointCount(), filepath.Join(opts.out, CleanedFile))
	return nil
}

func detectionSettings(cfg config.LoopsConfig, opts options) (loops.Thresholds, loops.Policy, error) {
	th := cfg.Thresholds()
	if opts.closure > 0 {
		th.ClosureThresholdM = opts.closure
	}
	if opts.minLoop > 0 {
		th.MinLoopLengthM = opts.minLoop
	}
	if opts.maxLoop > 0 {
		th.MaxLoopLengthM = opts.maxLoop
	}
	name := cfg.Policy
	if opts.policy != "" {
		name = opts.policy
	}
	if err := config.ValidateThresholds(th, name); err != nil {
		return th, nil, err
	}
	policy, err := loops.PolicyByName(name)
	return th, policy, err
}

// selection builds the excision selection from -remove or -keep; cutting is
// false when neither is set.
func selection(opts options) (sel loops.Selection, cutting bool, err error) {
	switch {
	case opts.remove != "" && opts.keep != "":
		return sel, false, errors.New("-remove and -keep are mutually exclusive")
	case opts.remove != "":
		sel.Mode = loops.RemoveSelected
		sel.Ordinals, err = parseOrdinals(opts.remove)
	case opts.keep != "":
		sel.Mode = loops.KeepOnlySelected
		sel.Ordinals, err = parseOrdinals(opts.keep)
	default:
		return sel, false, nil
	}
	return sel, err == nil, err
}

func parseOrdinals(s string) ([]int, error) {
	var out []int
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a loop number", loops.ErrInvalidSelection, field)
		}
		out = append(out, n)
	}
	return out, nil
}

func printCandidates(w io.Writer, d loops.Detection) {
	header := color.New(color.Bold)
	num := color.New(color.FgCyan, color.Bold)
	warn := color.New(color.FgYellow)

	header.Fprintf(w, "\nFound %d loop(s) with policy %s\n", len(d.Candidates), d.Policy)
	for _, c := range d.Candidates {
		num.Fprintf(w, "  %3d. ", c.Ordinal)
		fmt.Fprintf(w, "segment %d, points %d-%d, %.0f m, gap %.1f m\n",
			c.Range.SegmentIndex, c.Range.Start, c.Range.End, c.LengthM, c.ClosingDistance)
	}
	for _, f := range d.Failures {
		warn.Fprintf(w, "  segment %d skipped: %v\n", f.SegmentIndex, f.Err)
	}
}
