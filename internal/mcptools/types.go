package mcptools

import (
	"time"

	"github.com/dusk-indust/adqueue/internal/archive"
	"github.com/dusk-indust/adqueue/internal/queue"
	"github.com/dusk-indust/adqueue/internal/request"
)

// --- MCP Tool Input Types ---
// The MCP Go SDK generates each tool's JSON schema from these struct tags.
// Images travel as base64 strings.

// SubmitDraftInput is the input for the submit_draft tool.
type SubmitDraftInput struct {
	Category          string `json:"category" jsonschema:"one of game_design, level_design, graphics_ui, animation, legacy"`
	Text              string `json:"text,omitempty" jsonschema:"what should change"`
	Level             *int   `json:"level,omitempty" jsonschema:"level number for level_design requests; inferred from text when omitted"`
	ScreenshotBase64  string `json:"screenshotBase64,omitempty" jsonschema:"base64 PNG screenshot of the playable ad"`
	AnnotationsBase64 string `json:"annotationsBase64,omitempty" jsonschema:"base64 PNG drawing over the screenshot"`
	ReferenceBase64   string `json:"referenceBase64,omitempty" jsonschema:"base64 PNG reference image"`
	VariationPrompt   string `json:"variationPrompt,omitempty" jsonschema:"image prompt; asks for generated variations before reasoning (graphics_ui only)"`
	Variations        int    `json:"variations,omitempty" jsonschema:"number of variations to generate (1-4)"`
	DraftOnly         bool   `json:"draftOnly,omitempty" jsonschema:"create the draft without submitting it"`
}

// RequestOutput wraps one request.
type RequestOutput struct {
	Request RequestView `json:"request"`
}

// ListQueueInput is the input for the list_queue tool.
type ListQueueInput struct{}

// ListQueueOutput is the result of the list_queue tool.
type ListQueueOutput struct {
	Requests  []RequestView  `json:"requests"`
	Conflicts []ConflictView `json:"conflicts"`
}

// RequestIDInput names one request.
type RequestIDInput struct {
	ID string `json:"id" jsonschema:"request id"`
}

// DeleteRequestOutput is the result of the delete_request tool.
type DeleteRequestOutput struct {
	Deleted string `json:"deleted"`
}

// SetQAStatusInput is the input for the set_qa_status tool.
type SetQAStatusInput struct {
	ID     string `json:"id" jsonschema:"id of a built request"`
	Status string `json:"status" jsonschema:"resolved or not_resolved; repeating the current label clears it"`
}

// BuildPreflightInput is the input for the build_preflight tool.
type BuildPreflightInput struct{}

// BuildPreflightOutput is the result of the build_preflight tool.
type BuildPreflightOutput struct {
	Ready             int            `json:"ready"`
	Pending           int            `json:"pending"`
	Building          bool           `json:"building"`
	NeedsConfirmation bool           `json:"needsConfirmation"`
	Conflicts         []ConflictView `json:"conflicts"`
}

// TriggerBuildInput is the input for the trigger_build tool.
type TriggerBuildInput struct {
	Confirm bool `json:"confirm,omitempty" jsonschema:"required when build_preflight reports conflicts"`
}

// TriggerBuildOutput is the result of the trigger_build tool.
type TriggerBuildOutput struct {
	Build BuildView `json:"build"`
}

// ListBuildsInput is the input for the list_builds tool.
type ListBuildsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of builds, newest first (default: all)"`
}

// ListBuildsOutput is the result of the list_builds tool.
type ListBuildsOutput struct {
	Builds []BuildView `json:"builds"`
}

// --- Views ---

// RequestView is an image-free view of a change request.
type RequestView struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Level       *int   `json:"level,omitempty"`
	LevelSource string `json:"levelSource,omitempty"`
	State       string `json:"state"`
	Text        string `json:"text,omitempty"`
	Rationale   string `json:"rationale,omitempty"`
	Complexity  string `json:"complexity,omitempty"`
	LastError   string `json:"lastError,omitempty"`
	Variations  int    `json:"variations,omitempty"`
	Conflict    bool   `json:"conflict"`
	BuildID     string `json:"buildId,omitempty"`
	Outcome     string `json:"outcome,omitempty"`
	SkipReason  string `json:"skipReason,omitempty"`
	QA          string `json:"qa,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

// ConflictView is one advisory conflict.
type ConflictView struct {
	Severity   string   `json:"severity"`
	Category   string   `json:"category"`
	Level      *int     `json:"level,omitempty"`
	RequestIDs []string `json:"requestIds"`
	Reason     string   `json:"reason"`
}

// BuildView summarizes one archived build.
type BuildView struct {
	ID        string        `json:"id"`
	CreatedAt string        `json:"createdAt"`
	Summary   string        `json:"summary"`
	Applied   int           `json:"applied"`
	Skipped   int           `json:"skipped"`
	Requests  []RequestView `json:"requests"`
}

func requestView(r *request.ChangeRequest) RequestView {
	s := r.Summarize()
	v := RequestView{
		ID:          s.ID,
		Category:    string(s.Category),
		Level:       s.Level,
		LevelSource: string(s.LevelSource),
		State:       string(s.State),
		Text:        s.Text,
		Rationale:   s.Rationale,
		Complexity:  string(s.Complexity),
		LastError:   s.LastError,
		Variations:  s.Variations,
		Conflict:    s.Conflict,
		BuildID:     s.BuildID,
		QA:          string(s.QA),
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
	}
	if s.Outcome != nil {
		v.Outcome = string(s.Outcome.Kind)
		v.SkipReason = s.Outcome.Reason
	}
	return v
}

func conflictViews(cs []queue.Conflict) []ConflictView {
	out := make([]ConflictView, 0, len(cs))
	for _, c := range cs {
		ids := make([]string, len(c.RequestIDs))
		copy(ids, c.RequestIDs)
		out = append(out, ConflictView{
			Severity:   string(c.Severity),
			Category:   string(c.Category),
			Level:      c.Level,
			RequestIDs: ids,
			Reason:     c.Reason,
		})
	}
	return out
}

func buildView(rec *archive.BuildRecord) BuildView {
	applied, skipped := rec.Counts()
	v := BuildView{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		Summary:   rec.Summary,
		Applied:   applied,
		Skipped:   skipped,
		Requests:  make([]RequestView, 0, len(rec.Requests)),
	}
	for _, r := range rec.Requests {
		v.Requests = append(v.Requests, requestView(r))
	}
	return v
}
