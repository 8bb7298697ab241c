package orchestrator

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/dusk-indust/adqueue/internal/gameconfig"
	"github.com/dusk-indust/adqueue/internal/reasoning"
	"github.com/dusk-indust/adqueue/internal/request"
)

// MergePlan is the ordered set of requests one build sends to the merge
// service, plus the requests it settled locally.
type MergePlan struct {
	// Order lists every request id in merge order, including pre-skipped
	// ones.
	Order []string
	// Items are the requests to send, in merge order.
	Items []reasoning.MergeItem
	// Skipped holds outcomes decided without the service.
	Skipped map[string]request.Outcome
}

// MergeOrder returns the requests sorted by category merge order. Requests
// of the same category keep their creation order.
func MergeOrder(reqs []*request.ChangeRequest) []*request.ChangeRequest {
	out := slices.Clone(reqs)
	slices.SortStableFunc(out, func(a, b *request.ChangeRequest) int {
		if c := cmp.Compare(a.Policy().MergeOrder, b.Policy().MergeOrder); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// PlanMerge orders reqs and skips, up front, level requests whose level is
// missing from current.
func PlanMerge(current *gameconfig.Snapshot, reqs []*request.ChangeRequest) MergePlan {
	plan := MergePlan{Skipped: make(map[string]request.Outcome)}

	for _, r := range MergeOrder(reqs) {
		plan.Order = append(plan.Order, r.ID)

		if r.Policy().RequiresLevel {
			lvl, ok := r.LevelValue()
			if !ok {
				plan.Skipped[r.ID] = request.Skipped("no level selected")
				continue
			}
			if !current.HasLevel(lvl) {
				plan.Skipped[r.ID] = request.Skipped(fmt.Sprintf("level %d does not exist", lvl))
				continue
			}
		}

		plan.Items = append(plan.Items, reasoning.MergeItem{
			Ref:        r.ID,
			Category:   r.Category,
			Level:      r.Level,
			Rationale:  r.Rationale,
			Complexity: r.Complexity,
			Payload:    r.Payload,
		})
	}
	return plan
}
