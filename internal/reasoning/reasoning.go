// Package reasoning is the boundary to the external creative services: the
// vision reasoning call that turns operator inputs into a rationale and an
// optional layout, the build merge call, and image generation.
package reasoning

import (
	"context"
	"encoding/json"

	"github.com/dusk-indust/adqueue/internal/gameconfig"
	"github.com/dusk-indust/adqueue/internal/request"
)

// Call is the input of one reasoning call.
type Call struct {
	Category        request.Category
	Level           *int
	Screenshot      []byte
	Annotations     []byte
	Reference       []byte
	ReferenceImages [][]byte
	Text            string
	HasDrawing      bool
	Metadata        *request.CaptureMetadata

	// Section is the current configuration section the category edits,
	// shown to the service as context. Empty for categories without one.
	Section json.RawMessage
}

// Result is what a reasoning call produces for a request.
type Result struct {
	Rationale  string
	Complexity request.Complexity
	// Payload is a LayoutPayload, present only when the category policy
	// allows the structured layout tool.
	Payload json.RawMessage
}

// LayoutPayload is the structured payload stored on layout requests.
type LayoutPayload struct {
	Layout        gameconfig.Layout `json:"layout"`
	SolveSequence []string          `json:"solve_sequence,omitempty"`
}

// MergeItem is one ready request as presented to the merge call.
type MergeItem struct {
	Ref        string             `json:"ref"`
	Category   request.Category   `json:"category"`
	Level      *int               `json:"level,omitempty"`
	Rationale  string             `json:"rationale"`
	Complexity request.Complexity `json:"complexity,omitempty"`
	Payload    json.RawMessage    `json:"payload,omitempty"`
}

// MergeCall asks the service for a complete new configuration.
type MergeCall struct {
	Current  *gameconfig.Snapshot
	Requests []MergeItem
}

// Skip reports a request the service could not apply.
type Skip struct {
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

// MergeReply is the service response. Config is the complete new
// configuration, not yet validated.
type MergeReply struct {
	Config  json.RawMessage
	Summary string
	Skipped []Skip
}

// Reasoner analyzes a single change request.
type Reasoner interface {
	Analyze(ctx context.Context, call Call) (Result, error)
	SuggestPrompts(ctx context.Context, rough string, screenshot []byte) ([]string, error)
}

// Merger synthesizes a new configuration from the current one and the
// ordered ready requests.
type Merger interface {
	Merge(ctx context.Context, call MergeCall) (MergeReply, error)
}

// Imager produces one image for a prompt, optionally editing a reference.
type Imager interface {
	Generate(ctx context.Context, prompt string, reference []byte) ([]byte, error)
}

// SuggestionCount is the number of refined prompts SuggestPrompts returns.
const SuggestionCount = 3
