package mcptools

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/adqueue/internal/orchestrator"
	"github.com/dusk-indust/adqueue/internal/queue"
	"github.com/dusk-indust/adqueue/internal/request"
)

// QueueService handles MCP tool calls against a Workbench.
type QueueService struct {
	wb *orchestrator.Workbench
}

// NewQueueService creates a QueueService for wb.
func NewQueueService(wb *orchestrator.Workbench) *QueueService {
	return &QueueService{wb: wb}
}

// SubmitDraft creates a draft and, unless DraftOnly is set, submits it.
// Processing continues in the background.
func (s *QueueService) SubmitDraft(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input SubmitDraftInput,
) (*mcp.CallToolResult, RequestOutput, error) {
	category, err := request.ParseCategory(input.Category)
	if err != nil {
		return nil, RequestOutput{}, err
	}
	in := orchestrator.DraftInput{
		Category: category,
		Inputs: request.Inputs{
			Text:            input.Text,
			LevelSelection:  input.Level,
			VariationPrompt: input.VariationPrompt,
			Variations:      input.Variations,
		},
	}
	images := []struct {
		field string
		src   string
		dst   *[]byte
	}{
		{"screenshotBase64", input.ScreenshotBase64, &in.Inputs.Screenshot},
		{"annotationsBase64", input.AnnotationsBase64, &in.Inputs.Annotations},
		{"referenceBase64", input.ReferenceBase64, &in.Inputs.ReferenceImage},
	}
	for _, img := range images {
		if img.src == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(img.src)
		if err != nil {
			return nil, RequestOutput{}, &request.ValidationError{Field: img.field, Reason: "is not valid base64"}
		}
		*img.dst = data
	}
	in.Inputs.HasDrawing = len(in.Inputs.Annotations) > 0

	var r *request.ChangeRequest
	if input.DraftOnly {
		r, err = s.wb.CreateDraft(in)
	} else {
		r, err = s.wb.Submit(in)
	}
	if err != nil {
		return nil, RequestOutput{}, err
	}
	return nil, RequestOutput{Request: requestView(r)}, nil
}

// ListQueue returns every active request and the current conflicts.
func (s *QueueService) ListQueue(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ListQueueInput,
) (*mcp.CallToolResult, ListQueueOutput, error) {
	reqs := s.wb.ListQueue()
	out := ListQueueOutput{
		Requests:  make([]RequestView, 0, len(reqs)),
		Conflicts: conflictViews(queue.Analyze(reqs)),
	}
	for _, r := range reqs {
		out.Requests = append(out.Requests, requestView(r))
	}
	return nil, out, nil
}

// DeleteRequest removes an active request.
func (s *QueueService) DeleteRequest(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input RequestIDInput,
) (*mcp.CallToolResult, DeleteRequestOutput, error) {
	if input.ID == "" {
		return nil, DeleteRequestOutput{}, fmt.Errorf("id is required")
	}
	if err := s.wb.DeleteRequest(input.ID); err != nil {
		return nil, DeleteRequestOutput{}, err
	}
	return nil, DeleteRequestOutput{Deleted: input.ID}, nil
}

// DuplicateRequest copies an active or archived request into a new draft.
func (s *QueueService) DuplicateRequest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RequestIDInput,
) (*mcp.CallToolResult, RequestOutput, error) {
	if input.ID == "" {
		return nil, RequestOutput{}, fmt.Errorf("id is required")
	}
	r, err := s.wb.Duplicate(ctx, input.ID)
	if err != nil {
		return nil, RequestOutput{}, err
	}
	return nil, RequestOutput{Request: requestView(r)}, nil
}

// SetQAStatus toggles the QA label of a built request.
func (s *QueueService) SetQAStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SetQAStatusInput,
) (*mcp.CallToolResult, RequestOutput, error) {
	status, err := request.ParseQAStatus(input.Status)
	if err != nil {
		return nil, RequestOutput{}, err
	}
	r, err := s.wb.SetQAStatus(ctx, input.ID, status)
	if err != nil {
		return nil, RequestOutput{}, err
	}
	return nil, RequestOutput{Request: requestView(r)}, nil
}

// BuildPreflight reports what a build would consume.
func (s *QueueService) BuildPreflight(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ BuildPreflightInput,
) (*mcp.CallToolResult, BuildPreflightOutput, error) {
	return nil, preflightOutput(s.wb.Preflight()), nil
}

// TriggerBuild merges every ready request. Critical conflicts must be
// confirmed first.
func (s *QueueService) TriggerBuild(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TriggerBuildInput,
) (*mcp.CallToolResult, TriggerBuildOutput, error) {
	if p := s.wb.Preflight(); p.NeedsConfirmation() && !input.Confirm {
		return nil, TriggerBuildOutput{}, fmt.Errorf(
			"%d critical conflicts in the queue; review build_preflight and call again with confirm", len(p.Conflicts))
	}
	rec, err := s.wb.TriggerBuild(ctx)
	if err != nil {
		return nil, TriggerBuildOutput{}, err
	}
	return nil, TriggerBuildOutput{Build: buildView(rec)}, nil
}

// ListBuilds returns archived builds, newest first.
func (s *QueueService) ListBuilds(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListBuildsInput,
) (*mcp.CallToolResult, ListBuildsOutput, error) {
	recs, err := s.wb.Builds(ctx)
	if err != nil {
		return nil, ListBuildsOutput{}, err
	}
	if input.Limit > 0 && len(recs) > input.Limit {
		recs = recs[:input.Limit]
	}
	out := ListBuildsOutput{Builds: make([]BuildView, 0, len(recs))}
	for _, rec := range recs {
		out.Builds = append(out.Builds, buildView(rec))
	}
	return nil, out, nil
}

func preflightOutput(p orchestrator.Preflight) BuildPreflightOutput {
	return BuildPreflightOutput{
		Ready:             p.Ready,
		Pending:           p.Pending,
		Building:          p.Building,
		NeedsConfirmation: p.NeedsConfirmation(),
		Conflicts:         conflictViews(p.Conflicts),
	}
}
