package orchestrator

import (
	"context"
	"fmt"

	"github.com/dusk-indust/adqueue/internal/request"
)

// Completion applies the result of a finished step to the stored request.
// It runs under the queue lock and must not block.
type Completion func(*request.ChangeRequest) error

// StepExecutor runs one asynchronous processing step for a request and
// returns the mutation that records its result.
type StepExecutor interface {
	Execute(ctx context.Context, r *request.ChangeRequest) (Completion, error)
}

// Router maps processing steps to their registered executors and decides
// which step a request needs next.
type Router struct {
	executors map[Step]StepExecutor
}

// NewRouter creates a Router with an empty executor registry.
func NewRouter() *Router {
	return &Router{
		executors: make(map[Step]StepExecutor),
	}
}

// RegisterExecutor associates an executor with a processing step.
func (r *Router) RegisterExecutor(step Step, exec StepExecutor) {
	r.executors[step] = exec
}

// Route resolves the next step for req and delegates to its executor.
func (r *Router) Route(ctx context.Context, req *request.ChangeRequest) (Step, Completion, error) {
	step, err := StepFor(req)
	if err != nil {
		return step, nil, err
	}

	exec, ok := r.executors[step]
	if !ok {
		return step, nil, fmt.Errorf("router: no executor registered for step %s", step)
	}

	done, err := exec.Execute(ctx, req)
	if err != nil {
		return step, nil, err
	}
	return step, done, nil
}

// StepFor returns the step a request in its current state runs next.
// Processing requests that asked for variations, and whose category allows
// them, generate images first; everything else goes to analysis.
func StepFor(r *request.ChangeRequest) (Step, error) {
	switch r.State {
	case request.StateProcessing:
		if r.Inputs.WantsVariations() && r.Policy().AllowsVariations && len(r.Variations) == 0 {
			return StepVariations, nil
		}
		return StepAnalyze, nil
	case request.StateAnnotating:
		return StepAnalyze, nil
	default:
		return StepAnalyze, fmt.Errorf("%w: nothing to process for a %s request",
			request.ErrInvalidTransition, r.State)
	}
}
