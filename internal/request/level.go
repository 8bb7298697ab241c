package request

import (
	"regexp"
	"strconv"
)

// DefaultLevel is used when nothing identifies the target level.
const DefaultLevel = 1

// LevelSource records which step of the resolver produced a level.
type LevelSource string

const (
	LevelSourceNone     LevelSource = ""
	LevelSourceExplicit LevelSource = "explicit"
	LevelSourceMetadata LevelSource = "metadata"
	LevelSourceText     LevelSource = "text"
	// LevelSourceInferred marks the default applied when nothing resolved.
	// The UI must show it as inferred rather than chosen.
	LevelSourceInferred LevelSource = "inferred"
)

// Resolution is the outcome of ResolveLevel.
type Resolution struct {
	Level  int
	Source LevelSource

	// Ambiguous is set when the free text names more than one distinct
	// level. Level is zero and Source is LevelSourceNone in that case.
	Ambiguous bool

	// Candidates lists the distinct levels found in the text, in order of
	// appearance. Only populated when Ambiguous is set.
	Candidates []int
}

// Resolved reports whether one of the first three resolver steps matched.
func (r Resolution) Resolved() bool {
	return r.Source != LevelSourceNone && r.Source != LevelSourceInferred
}

// levelRefRe matches "level 3", "Level3", "lv 2", "LV12".
var levelRefRe = regexp.MustCompile(`(?i)\b(?:level|lv)\s*(\d+)\b`)

// ResolveLevel computes which level a request targets. Priority is explicit
// selection, then capture metadata, then a level reference in the free text.
// When nothing matches the result is unresolved (Source is
// LevelSourceNone); callers decide whether to apply DefaultLevel.
func ResolveLevel(explicit *int, meta *CaptureMetadata, text string) Resolution {
	if explicit != nil && *explicit >= 0 {
		return Resolution{Level: *explicit, Source: LevelSourceExplicit}
	}

	if meta != nil && meta.LevelNumber != nil && *meta.LevelNumber >= 0 {
		return Resolution{Level: *meta.LevelNumber, Source: LevelSourceMetadata}
	}

	if text != "" {
		levels := levelReferences(text)
		switch len(levels) {
		case 0:
		case 1:
			return Resolution{Level: levels[0], Source: LevelSourceText}
		default:
			return Resolution{Ambiguous: true, Candidates: levels}
		}
	}

	return Resolution{}
}

// ResolveOrDefault runs ResolveLevel and applies DefaultLevel, flagged as
// inferred, when nothing resolved. Ambiguous text is returned unchanged so
// the caller can reject it.
func ResolveOrDefault(explicit *int, meta *CaptureMetadata, text string) Resolution {
	r := ResolveLevel(explicit, meta, text)
	if r.Source == LevelSourceNone && !r.Ambiguous {
		return Resolution{Level: DefaultLevel, Source: LevelSourceInferred}
	}
	return r
}

// levelReferences returns the distinct level numbers referenced in text, in
// order of first appearance.
func levelReferences(text string) []int {
	var out []int
	seen := make(map[int]bool)
	for _, m := range levelRefRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
