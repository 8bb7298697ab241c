package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/dusk-indust/adqueue/internal/gameconfig"
	"github.com/dusk-indust/adqueue/internal/reasoning"
	"github.com/dusk-indust/adqueue/internal/request"
)

// Compile-time interface checks.
var (
	_ StepExecutor = (*variationStep)(nil)
	_ StepExecutor = (*analyzeStep)(nil)
)

// variationStep generates candidate images and parks the request until the
// operator picks one.
type variationStep struct {
	fanout   *FanOut
	fallback int
}

func (s *variationStep) Execute(ctx context.Context, r *request.ChangeRequest) (Completion, error) {
	n := r.Inputs.Variations
	if n <= 0 {
		n = s.fallback
	}

	images, err := s.fanout.Run(ctx, r.ID, r.Inputs.VariationPrompt, r.Inputs.ReferenceImage, n)
	if err != nil {
		return nil, err
	}

	return func(cur *request.ChangeRequest) error {
		cur.Variations = images
		cur.Selected = 0
		cur.State = request.StateAwaitingSelection
		cur.LastError = ""
		return nil
	}, nil
}

// analyzeStep runs the reasoning call and marks the request ready.
type analyzeStep struct {
	reasoner reasoning.Reasoner
	config   func() *gameconfig.Snapshot
	logger   *zap.Logger
}

func (s *analyzeStep) Execute(ctx context.Context, r *request.ChangeRequest) (Completion, error) {
	res, err := s.reasoner.Analyze(ctx, s.call(r))
	if err != nil {
		return nil, err
	}

	return func(cur *request.ChangeRequest) error {
		cur.Rationale = res.Rationale
		cur.Complexity = res.Complexity
		cur.Payload = res.Payload
		cur.State = request.StateReady
		cur.LastError = ""
		return nil
	}, nil
}

// call assembles the reasoning input. After a variation pick the selected
// image is the reference and the selection drawing replaces the original
// annotations.
func (s *analyzeStep) call(r *request.ChangeRequest) reasoning.Call {
	call := reasoning.Call{
		Category:        r.Category,
		Level:           r.Level,
		Screenshot:      r.Inputs.Screenshot,
		Annotations:     r.Inputs.Annotations,
		Reference:       r.Reference(),
		ReferenceImages: r.Inputs.ReferenceImages,
		Text:            r.Inputs.Text,
		HasDrawing:      r.Inputs.HasDrawing,
		Metadata:        r.Inputs.Metadata,
	}
	if len(r.SelectionAnnotations) > 0 {
		call.Annotations = r.SelectionAnnotations
		call.HasDrawing = true
	}

	section := r.Policy().ConfigSection
	if section == request.SectionNone || s.config == nil {
		return call
	}
	raw, err := s.config().Section(string(section))
	if err != nil {
		s.logger.Warn("config section unavailable",
			zap.String("request_id", r.ID),
			zap.String("section", string(section)),
			zap.Error(err))
		return call
	}
	call.Section = raw
	return call
}
