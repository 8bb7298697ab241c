package queue

import (
	"fmt"
	"sort"

	"github.com/dusk-indust/adqueue/internal/request"
)

// Severity grades a conflict.
type Severity string

const (
	// SeverityCritical marks two or more LevelDesign requests on one level.
	SeverityCritical Severity = "critical"
	// SeverityInformational marks co-occurrences that always merge cleanly.
	SeverityInformational Severity = "informational"
)

// Conflict is an advisory finding over the active queue. It never blocks a
// build.
type Conflict struct {
	Severity   Severity         `json:"severity"`
	Category   request.Category `json:"category"`
	Level      *int             `json:"level,omitempty"`
	RequestIDs []string         `json:"request_ids"`
	Reason     string           `json:"reason"`
}

// Critical reports whether the conflict gates the pre-build advisory.
func (c Conflict) Critical() bool {
	return c.Severity == SeverityCritical
}

// DetectConflicts groups LevelDesign requests by level and flags every
// member of a group with more than one request. All other requests map to
// false.
func DetectConflicts(reqs []*request.ChangeRequest) map[string]bool {
	flags := make(map[string]bool, len(reqs))
	byLevel := make(map[int][]string)
	for _, r := range reqs {
		flags[r.ID] = false
		if r.Category != request.CategoryLevelDesign {
			continue
		}
		if lvl, ok := r.LevelValue(); ok {
			byLevel[lvl] = append(byLevel[lvl], r.ID)
		}
	}
	for _, ids := range byLevel {
		if len(ids) < 2 {
			continue
		}
		for _, id := range ids {
			flags[id] = true
		}
	}
	return flags
}

// Analyze lists every conflict in reqs: critical same-level groups first,
// ordered by level, then informational co-occurrences in category order.
func Analyze(reqs []*request.ChangeRequest) []Conflict {
	byLevel := make(map[int][]string)
	byCategory := make(map[request.Category][]string)
	for _, r := range reqs {
		byCategory[r.Category] = append(byCategory[r.Category], r.ID)
		if r.Category != request.CategoryLevelDesign {
			continue
		}
		if lvl, ok := r.LevelValue(); ok {
			byLevel[lvl] = append(byLevel[lvl], r.ID)
		}
	}

	var conflicts []Conflict

	levels := make([]int, 0, len(byLevel))
	for lvl, ids := range byLevel {
		if len(ids) > 1 {
			levels = append(levels, lvl)
		}
	}
	sort.Ints(levels)
	for _, lvl := range levels {
		conflicts = append(conflicts, Conflict{
			Severity:   SeverityCritical,
			Category:   request.CategoryLevelDesign,
			Level:      request.IntPtr(lvl),
			RequestIDs: byLevel[lvl],
			Reason:     fmt.Sprintf("%d level design requests target level %d", len(byLevel[lvl]), lvl),
		})
	}

	for _, c := range request.Categories() {
		ids := byCategory[c]
		if c == request.CategoryLevelDesign || len(ids) < 2 {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Severity:   SeverityInformational,
			Category:   c,
			RequestIDs: ids,
			Reason:     fmt.Sprintf("%d %s requests will be applied in queue order", len(ids), c),
		})
	}

	game := byCategory[request.CategoryGameDesign]
	level := byCategory[request.CategoryLevelDesign]
	if len(game) > 0 && len(level) > 0 {
		ids := append(append([]string{}, game...), level...)
		conflicts = append(conflicts, Conflict{
			Severity:   SeverityInformational,
			Category:   request.CategoryGameDesign,
			RequestIDs: ids,
			Reason:     "mechanics changes are applied before level layouts",
		})
	}

	return conflicts
}

// CriticalOnly filters conflicts down to the critical ones.
func CriticalOnly(conflicts []Conflict) []Conflict {
	var out []Conflict
	for _, c := range conflicts {
		if c.Critical() {
			out = append(out, c)
		}
	}
	return out
}
