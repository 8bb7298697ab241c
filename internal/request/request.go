// Package request defines the change request entity, its category policy
// table and the level resolver.
package request

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CaptureMetadata is recorded alongside an automatic screenshot capture.
type CaptureMetadata struct {
	LevelNumber    *int   `json:"level_number,omitempty"`
	FoundationCard string `json:"foundation_card,omitempty"`
	TableauCount   int    `json:"tableau_count,omitempty"`
	DrawPileCount  int    `json:"draw_pile_count,omitempty"`
}

// Inputs is the bundle the operator submits with a draft. Images are raw
// PNG bytes.
type Inputs struct {
	Screenshot      []byte           `json:"screenshot,omitempty"`
	Annotations     []byte           `json:"annotations,omitempty"`
	ReferenceImage  []byte           `json:"reference_image,omitempty"`
	ReferenceImages [][]byte         `json:"reference_images,omitempty"`
	Text            string           `json:"text,omitempty"`
	HasDrawing      bool             `json:"has_drawing,omitempty"`
	Metadata        *CaptureMetadata `json:"metadata,omitempty"`
	LevelSelection  *int             `json:"level_selection,omitempty"`

	// VariationPrompt requests the image-variation step. Empty means the
	// request goes straight to reasoning.
	VariationPrompt string `json:"variation_prompt,omitempty"`
	Variations      int    `json:"variations,omitempty"`
}

// Clone returns a deep copy of the inputs.
func (in Inputs) Clone() Inputs {
	out := in
	out.Screenshot = cloneBytes(in.Screenshot)
	out.Annotations = cloneBytes(in.Annotations)
	out.ReferenceImage = cloneBytes(in.ReferenceImage)
	out.ReferenceImages = cloneImages(in.ReferenceImages)
	if in.Metadata != nil {
		m := *in.Metadata
		m.LevelNumber = cloneInt(in.Metadata.LevelNumber)
		out.Metadata = &m
	}
	out.LevelSelection = cloneInt(in.LevelSelection)
	return out
}

// WantsVariations reports whether the inputs ask for the variation step.
func (in Inputs) WantsVariations() bool {
	return in.VariationPrompt != ""
}

// ChangeRequest is one queued, independently-lifecycled edit proposal.
type ChangeRequest struct {
	ID          string      `json:"id"`
	Category    Category    `json:"category"`
	Level       *int        `json:"level,omitempty"`
	LevelSource LevelSource `json:"level_source,omitempty"`
	Inputs      Inputs      `json:"inputs"`

	State     State  `json:"state"`
	LastError string `json:"last_error,omitempty"`

	// Attempt increases on every submission. Completions carrying an older
	// attempt are discarded.
	Attempt int `json:"attempt"`

	Rationale  string          `json:"rationale,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Complexity Complexity      `json:"complexity,omitempty"`

	Variations           [][]byte `json:"variations,omitempty"`
	Selected             int      `json:"selected"`
	SelectionAnnotations []byte   `json:"selection_annotations,omitempty"`

	Conflict bool `json:"conflict"`

	BuildID string   `json:"build_id,omitempty"`
	Outcome *Outcome `json:"outcome,omitempty"`
	QA      QAStatus `json:"qa,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewID returns a fresh request identifier.
func NewID() string {
	return uuid.NewString()
}

// Policy returns the processing policy for the request's category.
func (r *ChangeRequest) Policy() Policy {
	return PolicyFor(r.Category)
}

// LevelValue returns the level number and whether one is set.
func (r *ChangeRequest) LevelValue() (int, bool) {
	if r.Level == nil {
		return 0, false
	}
	return *r.Level, true
}

// Reference returns the image the reasoning call should treat as the
// target look: the selected variation when the variation flow ran,
// otherwise the submitted reference image.
func (r *ChangeRequest) Reference() []byte {
	if len(r.Variations) > 0 && r.Selected >= 0 && r.Selected < len(r.Variations) {
		return r.Variations[r.Selected]
	}
	return r.Inputs.ReferenceImage
}

// Clone returns a deep copy. The copy is safe to mutate without affecting
// the queue.
func (r *ChangeRequest) Clone() *ChangeRequest {
	dst := *r
	dst.Level = cloneInt(r.Level)
	dst.Inputs = r.Inputs.Clone()
	if r.Payload != nil {
		dst.Payload = make(json.RawMessage, len(r.Payload))
		copy(dst.Payload, r.Payload)
	}
	dst.Variations = cloneImages(r.Variations)
	dst.SelectionAnnotations = cloneBytes(r.SelectionAnnotations)
	if r.Outcome != nil {
		o := *r.Outcome
		dst.Outcome = &o
	}
	return &dst
}

// Summary is a compact, image-free view for listings.
type Summary struct {
	ID          string      `json:"id"`
	Category    Category    `json:"category"`
	Level       *int        `json:"level,omitempty"`
	LevelSource LevelSource `json:"level_source,omitempty"`
	State       State       `json:"state"`
	Text        string      `json:"text,omitempty"`
	Rationale   string      `json:"rationale,omitempty"`
	Complexity  Complexity  `json:"complexity,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
	Variations  int         `json:"variations,omitempty"`
	Conflict    bool        `json:"conflict"`
	BuildID     string      `json:"build_id,omitempty"`
	Outcome     *Outcome    `json:"outcome,omitempty"`
	QA          QAStatus    `json:"qa,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Summarize drops image payloads from r.
func (r *ChangeRequest) Summarize() Summary {
	s := Summary{
		ID:          r.ID,
		Category:    r.Category,
		Level:       cloneInt(r.Level),
		LevelSource: r.LevelSource,
		State:       r.State,
		Text:        r.Inputs.Text,
		Rationale:   r.Rationale,
		Complexity:  r.Complexity,
		LastError:   r.LastError,
		Variations:  len(r.Variations),
		Conflict:    r.Conflict,
		BuildID:     r.BuildID,
		QA:          r.QA,
		CreatedAt:   r.CreatedAt,
	}
	if r.Outcome != nil {
		o := *r.Outcome
		s.Outcome = &o
	}
	return s
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneImages(imgs [][]byte) [][]byte {
	if imgs == nil {
		return nil
	}
	out := make([][]byte, len(imgs))
	for i, img := range imgs {
		out[i] = cloneBytes(img)
	}
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
