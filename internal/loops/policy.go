package loops

import (
	"fmt"
	"iter"
	"sort"

	"github.com/jengzang/gpx-loop-cutter/internal/models"
)

// Policy picks at most one closure per start index.
// closures arrive in ascending end index and stop at the length bound;
// returning early stops the scan for that start index.
type Policy interface {
	Name() string
	Select(closures iter.Seq[Closure], accepted []models.LoopRange) (Closure, bool)
}

// Policy names
const (
	PolicyLeftmostEarliest = "leftmost-earliest-closing"
	PolicyLongest          = "longest-closing"
)

// PolicyRegistry maps policy names to implementations
var PolicyRegistry = make(map[string]Policy)

// RegisterPolicy makes a policy available by name. Call it from init only.
func RegisterPolicy(p Policy) {
	PolicyRegistry[p.Name()] = p
}

// PolicyByName returns the registered policy; an empty name means the default
func PolicyByName(name string) (Policy, error) {
	if name == "" {
		return DefaultPolicy(), nil
	}
	p, ok := PolicyRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown loop policy %q", name)
	}
	return p, nil
}

// PolicyNames lists registered policies in name order
func PolicyNames() []string {
	names := make([]string, 0, len(PolicyRegistry))
	for name := range PolicyRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultPolicy returns the greedy leftmost-earliest-closing policy
func DefaultPolicy() Policy {
	return leftmostEarliest{}
}

// leftmostEarliest takes the first closure that does not touch an accepted
// range. Overlapping closures are skipped and the end index keeps growing.
type leftmostEarliest struct{}

func (leftmostEarliest) Name() string { return PolicyLeftmostEarliest }

func (leftmostEarliest) Select(closures iter.Seq[Closure], accepted []models.LoopRange) (Closure, bool) {
	for c := range closures {
		if overlapsAny(accepted, c.Start, c.End) {
			continue
		}
		return c, true
	}
	return Closure{}, false
}

// longestClosing takes the non-overlapping closure with the largest end index
// reachable within the length bound.
type longestClosing struct{}

func (longestClosing) Name() string { return PolicyLongest }

func (longestClosing) Select(closures iter.Seq[Closure], accepted []models.LoopRange) (Closure, bool) {
	var best Closure
	found := false
	for c := range closures {
		if overlapsAny(accepted, c.Start, c.End) {
			continue
		}
		best, found = c, true
	}
	return best, found
}

func init() {
	RegisterPolicy(leftmostEarliest{})
	RegisterPolicy(longestClosing{})
}
