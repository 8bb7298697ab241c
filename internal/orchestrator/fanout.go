package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/adqueue/internal/reasoning"
	"github.com/dusk-indust/adqueue/internal/request"
)

// MaxVariations bounds how many images one request may ask for.
const MaxVariations = 4

// FanOut generates image variations in parallel and collects them in
// request order. If any call fails, the derived context is canceled so that
// remaining in-flight calls are abandoned promptly.
type FanOut struct {
	imager     reasoning.Imager
	onProgress func(Event)
}

// NewFanOut creates a FanOut that generates images via imager.
// onProgress is called synchronously from each goroutine; it may be nil.
func NewFanOut(imager reasoning.Imager, onProgress func(Event)) *FanOut {
	return &FanOut{
		imager:     imager,
		onProgress: onProgress,
	}
}

// Run produces n variations of prompt, editing reference when it is
// non-empty. Results are returned only when every call succeeded.
func (f *FanOut) Run(ctx context.Context, requestID, prompt string, reference []byte, n int) ([][]byte, error) {
	if n < 1 || n > MaxVariations {
		return nil, fmt.Errorf("fanout: variation count %d outside 1..%d", n, MaxVariations)
	}

	results := make([][]byte, n)
	g, gctx := errgroup.WithContext(ctx)

	for i := range n {
		section := fmt.Sprintf("variation %d", i+1)
		f.emit(Event{Step: StepVariations, RequestID: requestID, Section: section, Status: ProgressPending})

		g.Go(func() error {
			f.emit(Event{Step: StepVariations, RequestID: requestID, Section: section, Status: ProgressWorking})

			img, err := f.imager.Generate(gctx, prompt, reference)
			if err != nil {
				f.emit(Event{
					Step:      StepVariations,
					RequestID: requestID,
					Section:   section,
					Status:    ProgressFailed,
					Message:   err.Error(),
				})
				return err // cancels the other calls
			}
			if len(img) == 0 {
				err := fmt.Errorf("%w: %s came back empty", request.ErrService, section)
				f.emit(Event{
					Step:      StepVariations,
					RequestID: requestID,
					Section:   section,
					Status:    ProgressFailed,
					Message:   err.Error(),
				})
				return err
			}

			results[i] = img
			f.emit(Event{Step: StepVariations, RequestID: requestID, Section: section, Status: ProgressComplete})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// emit sends a progress event if a callback is registered.
func (f *FanOut) emit(ev Event) {
	if f.onProgress != nil {
		f.onProgress(ev)
	}
}
