package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/dusk-indust/adqueue/internal/prompts"
	"github.com/dusk-indust/adqueue/internal/request"
)

// Compile-time interface checks.
var (
	_ Reasoner = (*Gemini)(nil)
	_ Merger   = (*Gemini)(nil)
	_ Imager   = (*Gemini)(nil)
)

// Default model names.
const (
	DefaultModel      = "gemini-2.5-flash"
	DefaultImageModel = "gemini-2.5-flash-image"
)

const (
	layoutToolName = "generate_level_layout"
	mergeToolName  = "update_game_configs"
	pngMIME        = "image/png"

	rationaleInstruction = "Before anything else, explain in one or two plain sentences what you " +
		"understood from the request and what you are changing."
)

// generator is the part of the genai client Gemini uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	APIKey     string
	Model      string
	ImageModel string
}

// Gemini implements Reasoner, Merger and Imager on the Gemini API.
type Gemini struct {
	gen        generator
	model      string
	imageModel string
	logger     *zap.Logger
}

// NewGemini creates a Gemini adapter with its own API client.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("reasoning: gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("reasoning: create gemini client: %w", err)
	}
	return newGemini(client.Models, cfg, logger), nil
}

func newGemini(gen generator, cfg GeminiConfig, logger *zap.Logger) *Gemini {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gemini{
		gen:        gen,
		model:      cfg.Model,
		imageModel: cfg.ImageModel,
		logger:     logger.Named("gemini"),
	}
}

// Analyze runs the category-specific reasoning call for one request.
func (g *Gemini) Analyze(ctx context.Context, call Call) (Result, error) {
	policy := request.PolicyFor(call.Category)

	level := 1
	if call.Level != nil {
		level = *call.Level
	}
	system, err := prompts.Render(policy.PromptTemplate, prompts.Data{Level: level})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", request.ErrService, err)
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system+"\n\n"+rationaleInstruction, genai.RoleUser),
	}
	if policy.AllowsStructuredTool {
		cfg.Tools = []*genai.Tool{layoutTool()}
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
		}
	}

	contents := []*genai.Content{genai.NewContentFromParts(analyzeParts(call, policy), genai.RoleUser)}

	g.logger.Info("analyze request",
		zap.String("category", string(call.Category)),
		zap.Intp("level", call.Level),
		zap.Bool("screenshot", len(call.Screenshot) > 0),
		zap.Bool("drawing", call.HasDrawing),
		zap.Int("reference_images", len(call.ReferenceImages)),
	)

	resp, err := g.gen.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("%w: analyze: %w", request.ErrService, err)
	}
	return analyzeResult(resp, policy)
}

// analyzeParts assembles the labelled images and instruction text.
func analyzeParts(call Call, policy request.Policy) []*genai.Part {
	var parts []*genai.Part
	addImage := func(data []byte, label string) {
		if len(data) == 0 {
			return
		}
		parts = append(parts, genai.NewPartFromText(label), genai.NewPartFromBytes(data, pngMIME))
	}

	if call.HasDrawing {
		addImage(call.Screenshot, "Current build screenshot with operator drawings baked in. "+
			"The colored marks are layout change instructions; identify each one and where it sits "+
			"relative to the cards before deciding on the new layout.")
	} else {
		addImage(call.Screenshot, "Current build screenshot (no annotations):")
	}
	addImage(call.Reference, "Target reference image (what the operator wants it to look like):")
	addImage(call.Annotations, "Drawing annotations (operator drew on top of the screenshot or reference):")
	for i, img := range call.ReferenceImages {
		addImage(img, fmt.Sprintf("Reference Image %02d (@Image%02d in the text):", i+1, i+1))
	}

	instruction := call.Text
	switch {
	case instruction != "":
	case call.HasDrawing:
		instruction = "Read every drawn mark on the screenshot and translate them into layout changes. " +
			"Describe each mark and the change it implies, then output the new layout."
	default:
		instruction = "Update the layout to match the reference and annotations."
	}

	var sb strings.Builder
	if ctxLine := metadataContext(call.Metadata); ctxLine != "" {
		sb.WriteString("Game state context: ")
		sb.WriteString(ctxLine)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Operator instruction: ")
	sb.WriteString(instruction)
	if policy.AllowsStructuredTool {
		sb.WriteString("\nUse the " + layoutToolName + " function to return the updated layout.")
	}
	if len(call.Section) > 0 && policy.ConfigSection != request.SectionNone {
		fmt.Fprintf(&sb, "\n\nCURRENT %s CONFIG:\n```json\n%s\n```",
			strings.ToUpper(string(policy.ConfigSection)), indentJSON(call.Section))
	}
	parts = append(parts, genai.NewPartFromText(sb.String()))
	return parts
}

// metadataContext renders the capture metadata as a single line.
func metadataContext(m *request.CaptureMetadata) string {
	if m == nil {
		return ""
	}
	var fields []string
	if m.LevelNumber != nil {
		fields = append(fields, fmt.Sprintf("Level: %d", *m.LevelNumber))
	}
	if m.FoundationCard != "" {
		fields = append(fields, "Foundation: "+m.FoundationCard)
	}
	if m.TableauCount > 0 {
		fields = append(fields, fmt.Sprintf("Tableau cards: %d", m.TableauCount))
	}
	if m.DrawPileCount > 0 {
		fields = append(fields, fmt.Sprintf("Draw pile: %d", m.DrawPileCount))
	}
	return strings.Join(fields, ", ")
}

// analyzeResult extracts rationale and layout from the model response.
func analyzeResult(resp *genai.GenerateContentResponse, policy request.Policy) (Result, error) {
	text, calls := responseParts(resp)

	if !policy.AllowsStructuredTool {
		if text == "" {
			return Result{}, fmt.Errorf("%w: service returned no rationale", request.ErrService)
		}
		return Result{Rationale: text, Complexity: request.ComplexityNotApplicable}, nil
	}

	fc := findCall(calls, layoutToolName)
	if fc == nil {
		return Result{}, fmt.Errorf("%w: service returned no layout; try adding more detail", request.ErrService)
	}
	payload, err := NormalizeLayout(fc.Args)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", request.ErrService, err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode layout: %w", request.ErrService, err)
	}
	if text == "" {
		text = DescribeLayout(payload.Layout)
	}
	return Result{
		Rationale:  text,
		Complexity: LayoutComplexity(payload.Layout),
		Payload:    raw,
	}, nil
}

// Merge sends the full configuration and the ordered requests and requires
// a complete configuration back.
func (g *Gemini) Merge(ctx context.Context, call MergeCall) (MergeReply, error) {
	if call.Current == nil {
		return MergeReply{}, fmt.Errorf("%w: no current configuration", request.ErrMergeService)
	}
	system, err := prompts.Render(prompts.Merge, prompts.Data{})
	if err != nil {
		return MergeReply{}, fmt.Errorf("%w: %w", request.ErrMergeService, err)
	}
	body, err := mergePrompt(call)
	if err != nil {
		return MergeReply{}, fmt.Errorf("%w: %w", request.ErrMergeService, err)
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Tools:             []*genai.Tool{mergeTool()},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{mergeToolName},
			},
		},
	}

	g.logger.Info("merge build", zap.Int("requests", len(call.Requests)))

	resp, err := g.gen.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(body, genai.RoleUser)}, cfg)
	if err != nil {
		return MergeReply{}, fmt.Errorf("%w: %w", request.ErrMergeService, err)
	}
	return mergeReply(resp)
}

// mergePrompt renders the current configuration followed by the request
// list in merge order.
func mergePrompt(call MergeCall) (string, error) {
	current, err := json.MarshalIndent(call.Current, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode current configuration: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("CURRENT CONFIGURATION:\n```json\n")
	sb.Write(current)
	sb.WriteString("\n```\n\nPENDING CHANGE REQUESTS (apply in this order):\n\n")
	for i, item := range call.Requests {
		label := request.PolicyFor(item.Category).Label
		if item.Level != nil {
			label = fmt.Sprintf("%s (Level %d)", label, *item.Level)
		}
		fmt.Fprintf(&sb, "%d. [ref=%s] %s\n", i+1, item.Ref, label)
		fmt.Fprintf(&sb, "   Reasoning: %s\n", item.Rationale)
		if item.Complexity != "" {
			fmt.Fprintf(&sb, "   Complexity: %s\n", item.Complexity)
		}
		if len(item.Payload) > 0 {
			fmt.Fprintf(&sb, "   Proposed layout: %s\n", item.Payload)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Apply all of these changes and return the result with " + mergeToolName + ".")
	return sb.String(), nil
}

// mergeReply extracts the merge tool call from the response.
func mergeReply(resp *genai.GenerateContentResponse) (MergeReply, error) {
	_, calls := responseParts(resp)
	fc := findCall(calls, mergeToolName)
	if fc == nil {
		return MergeReply{}, fmt.Errorf("%w: service returned no configuration", request.ErrMergeService)
	}

	rawConfig, _ := fc.Args["config_json"].(string)
	if strings.TrimSpace(rawConfig) == "" {
		return MergeReply{}, fmt.Errorf("%w: service returned an empty configuration", request.ErrMergeService)
	}
	rawConfig = stripFences(rawConfig)
	if !json.Valid([]byte(rawConfig)) {
		return MergeReply{}, fmt.Errorf("%w: service returned malformed JSON", request.ErrMergeService)
	}

	summary, _ := fc.Args["changes_summary"].(string)
	if summary == "" {
		summary = "Changes applied"
	}
	return MergeReply{
		Config:  json.RawMessage(rawConfig),
		Summary: summary,
		Skipped: parseSkips(fc.Args["skipped_requests"]),
	}, nil
}

// parseSkips accepts either {ref, reason} objects or "ref: reason" strings.
func parseSkips(v any) []Skip {
	items, _ := v.([]any)
	var skips []Skip
	for _, item := range items {
		switch it := item.(type) {
		case map[string]any:
			ref, _ := it["ref"].(string)
			reason, _ := it["reason"].(string)
			skips = append(skips, Skip{Ref: strings.TrimSpace(ref), Reason: strings.TrimSpace(reason)})
		case string:
			ref, reason, found := strings.Cut(it, ":")
			if !found {
				skips = append(skips, Skip{Reason: strings.TrimSpace(it)})
				continue
			}
			skips = append(skips, Skip{Ref: strings.TrimSpace(ref), Reason: strings.TrimSpace(reason)})
		}
	}
	return skips
}

// Generate produces one image. With a reference it is an image-to-image
// edit, otherwise text-to-image.
func (g *Gemini) Generate(ctx context.Context, prompt string, reference []byte) ([]byte, error) {
	var parts []*genai.Part
	if len(reference) > 0 {
		parts = append(parts, genai.NewPartFromBytes(reference, pngMIME))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	resp, err := g.gen.GenerateContent(ctx, g.imageModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: generate image: %w", request.ErrService, err)
	}
	for _, p := range candidateParts(resp) {
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return p.InlineData.Data, nil
		}
	}
	return nil, fmt.Errorf("%w: service returned no image", request.ErrService)
}

// SuggestPrompts asks for refined image prompts for a rough description.
func (g *Gemini) SuggestPrompts(ctx context.Context, rough string, screenshot []byte) ([]string, error) {
	system, err := prompts.Render(prompts.Suggest, prompts.Data{Count: SuggestionCount})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", request.ErrService, err)
	}

	var parts []*genai.Part
	if len(screenshot) > 0 {
		parts = append(parts, genai.NewPartFromBytes(screenshot, pngMIME))
	}
	parts = append(parts, genai.NewPartFromText(fmt.Sprintf(
		"The current screenshot is attached. The operator wants: %q\nWrite %d refined image-generation prompts.",
		rough, SuggestionCount)))

	resp, err := g.gen.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			ResponseMIMEType:  "application/json",
		})
	if err != nil {
		return nil, fmt.Errorf("%w: suggest prompts: %w", request.ErrService, err)
	}
	text, _ := responseParts(resp)
	return parseSuggestions(text)
}

// parseSuggestions decodes a JSON array of strings, tolerating code fences.
func parseSuggestions(text string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(stripFences(text)), &out); err != nil {
		return nil, fmt.Errorf("%w: suggestions are not a JSON array: %w", request.ErrService, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: service returned no suggestions", request.ErrService)
	}
	if len(out) > SuggestionCount {
		out = out[:SuggestionCount]
	}
	return out, nil
}

func candidateParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

// responseParts joins the text parts of the first candidate and collects its
// function calls.
func responseParts(resp *genai.GenerateContentResponse) (string, []*genai.FunctionCall) {
	var texts []string
	var calls []*genai.FunctionCall
	for _, p := range candidateParts(resp) {
		if p.FunctionCall != nil {
			calls = append(calls, p.FunctionCall)
		}
		if t := strings.TrimSpace(p.Text); t != "" && !p.Thought {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, " "), calls
}

func findCall(calls []*genai.FunctionCall, name string) *genai.FunctionCall {
	for _, c := range calls {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if _, rest, ok := strings.Cut(s, "\n"); ok {
		s = rest
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func indentJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
