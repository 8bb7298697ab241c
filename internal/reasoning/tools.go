package reasoning

import "google.golang.org/genai"

// layoutTool declares the structured layout function.
func layoutTool() *genai.Tool {
	card := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"code":    {Type: genai.TypeString, Description: "Card code, e.g. '6S', '10D', 'AS'"},
			"face_up": {Type: genai.TypeBoolean, Description: "true if visible, false if hidden"},
			"col":     {Type: genai.TypeInteger, Description: "Column index, 0-based"},
			"row":     {Type: genai.TypeInteger, Description: "Row index, 0 is the top face-up card"},
		},
		Required: []string{"code", "face_up", "col", "row"},
	}
	return &genai.Tool{FunctionDeclarations: []*genai.FunctionDeclaration{{
		Name:        layoutToolName,
		Description: "Output a solitaire level layout as structured data.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"foundation_card": {Type: genai.TypeString, Description: "The starting face-up foundation card, e.g. '7H'"},
				"tableau":         {Type: genai.TypeArray, Description: "Every tableau card with its position", Items: card},
				"draw_pile": {
					Type:        genai.TypeArray,
					Description: "Cards in the draw pile, empty when there is none",
					Items:       &genai.Schema{Type: genai.TypeString},
				},
				"solve_sequence": {
					Type:        genai.TypeArray,
					Description: "The order to play cards to win, with the foundation after each step",
					Items:       &genai.Schema{Type: genai.TypeString},
				},
			},
			Required: []string{"foundation_card", "tableau", "draw_pile", "solve_sequence"},
		},
	}}}
}

// mergeTool declares the build merge function. The configuration travels as
// a JSON string so the open sections keep arbitrary fields.
func mergeTool() *genai.Tool {
	return &genai.Tool{FunctionDeclarations: []*genai.FunctionDeclaration{{
		Name:        mergeToolName,
		Description: "Return the complete updated game configuration after applying the pending requests.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"config_json": {
					Type:        genai.TypeString,
					Description: "The complete configuration as a JSON object with mechanics, levels and visual keys",
				},
				"changes_summary": {Type: genai.TypeString, Description: "Brief summary of the applied changes"},
				"skipped_requests": {
					Type:        genai.TypeArray,
					Description: "Requests that could not be applied",
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"ref":    {Type: genai.TypeString, Description: "The ref of the skipped request"},
							"reason": {Type: genai.TypeString, Description: "Why it could not be applied"},
						},
						Required: []string{"ref", "reason"},
					},
				},
			},
			Required: []string{"config_json", "changes_summary"},
		},
	}}}
}
