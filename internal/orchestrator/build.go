package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dusk-indust/adqueue/internal/gameconfig"
	"github.com/dusk-indust/adqueue/internal/reasoning"
	"github.com/dusk-indust/adqueue/internal/request"
)

// BuildResult is the outcome of a successful merge.
type BuildResult struct {
	// Config is the complete new configuration.
	Config *gameconfig.Snapshot
	// Summary is the service's description of what changed.
	Summary string
	// Changes lists the differences between the old and new configuration.
	Changes []gameconfig.Change
	// Order is every request id in the order it was merged.
	Order []string
	// Outcomes has exactly one entry per request.
	Outcomes map[string]request.Outcome
}

// Counts returns how many requests were applied and skipped.
func (b *BuildResult) Counts() (applied, skipped int) {
	for _, o := range b.Outcomes {
		switch o.Kind {
		case request.OutcomeApplied:
			applied++
		case request.OutcomeSkipped:
			skipped++
		}
	}
	return applied, skipped
}

// Builder runs the merge call for a set of ready requests. It never touches
// the queue; callers commit or discard the result.
type Builder struct {
	merger  reasoning.Merger
	timeout time.Duration
	logger  *zap.Logger
}

// NewBuilder creates a Builder. A zero timeout means no deadline beyond the
// caller's context.
func NewBuilder(merger reasoning.Merger, timeout time.Duration, logger *zap.Logger) *Builder {
	return &Builder{merger: merger, timeout: timeout, logger: logger}
}

// MergeBuild asks the merge service for a new configuration built from
// current and ready. Any error means the build did not happen and wraps
// request.ErrMergeService.
func (b *Builder) MergeBuild(ctx context.Context, current *gameconfig.Snapshot, ready []*request.ChangeRequest) (*BuildResult, error) {
	if current == nil {
		return nil, fmt.Errorf("%w: no current configuration", request.ErrMergeService)
	}

	plan := PlanMerge(current, ready)
	res := &BuildResult{
		Order:    plan.Order,
		Outcomes: make(map[string]request.Outcome, len(plan.Order)),
	}
	for id, o := range plan.Skipped {
		res.Outcomes[id] = o
	}

	if len(plan.Items) == 0 {
		b.logger.Info("nothing to merge, every request skipped", zap.Int("skipped", len(plan.Skipped)))
		res.Config = current.Clone()
		res.Summary = "No changes applied"
		return res, nil
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	reply, err := b.merger.Merge(ctx, reasoning.MergeCall{Current: current, Requests: plan.Items})
	if err != nil {
		if errors.Is(err, request.ErrMergeService) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", request.ErrMergeService, err)
	}

	next, err := gameconfig.Decode(reply.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: returned configuration rejected: %w", request.ErrMergeService, err)
	}

	sent := make(map[string]bool, len(plan.Items))
	for _, item := range plan.Items {
		sent[item.Ref] = true
	}
	for _, s := range reply.Skipped {
		if !sent[s.Ref] {
			b.logger.Warn("merge service skipped an unknown request", zap.String("ref", s.Ref))
			continue
		}
		reason := s.Reason
		if reason == "" {
			reason = "not applied by the merge service"
		}
		res.Outcomes[s.Ref] = request.Skipped(reason)
	}
	for _, item := range plan.Items {
		if _, done := res.Outcomes[item.Ref]; !done {
			res.Outcomes[item.Ref] = request.Applied()
		}
	}

	changes, err := gameconfig.Diff(current, next)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", request.ErrMergeService, err)
	}

	res.Config = next
	res.Summary = reply.Summary
	res.Changes = changes
	return res, nil
}

// NewBuildID returns an id of the form build_YYYYMMDD_HHMMSS_xxxxxxxx.
func NewBuildID(t time.Time) string {
	return fmt.Sprintf("build_%s_%s", t.UTC().Format("20060102_150405"), uuid.NewString()[:8])
}
