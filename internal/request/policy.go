package request

// ConfigSection names the part of the configuration snapshot a request
// category reads and writes.
type ConfigSection string

const (
	SectionNone      ConfigSection = ""
	SectionMechanics ConfigSection = "mechanics"
	SectionLevels    ConfigSection = "levels"
	SectionVisual    ConfigSection = "visual"
)

// Policy describes how requests of one category are processed.
type Policy struct {
	// PromptTemplate is the name of the embedded system prompt template.
	PromptTemplate string

	// AllowsStructuredTool permits the reasoning call to return a structured
	// layout payload.
	AllowsStructuredTool bool

	// RequiresLevel means the request targets a single level and must carry a
	// resolved level number.
	RequiresLevel bool

	// AllowsVariations permits the image-variation step before reasoning.
	AllowsVariations bool

	// ConfigSection is the configuration section shown to the reasoning call.
	ConfigSection ConfigSection

	// MergeOrder is the position of the category in the build merge order.
	MergeOrder int

	// Label is the operator-facing name.
	Label string
}

// policies is the single table consulted for category-specific behaviour.
var policies = map[Category]Policy{
	CategoryGameDesign: {
		PromptTemplate: "game_design",
		ConfigSection:  SectionMechanics,
		MergeOrder:     0,
		Label:          "Game Design (Global)",
	},
	CategoryLevelDesign: {
		PromptTemplate:       "level_design",
		AllowsStructuredTool: true,
		RequiresLevel:        true,
		AllowsVariations:     true,
		ConfigSection:        SectionLevels,
		MergeOrder:           1,
		Label:                "Level Design",
	},
	CategoryGraphicsUI: {
		PromptTemplate:   "graphics_ui",
		AllowsVariations: true,
		ConfigSection:    SectionVisual,
		MergeOrder:       2,
		Label:            "Graphics & UI (Global)",
	},
	CategoryAnimation: {
		PromptTemplate:   "animation",
		AllowsVariations: true,
		ConfigSection:    SectionVisual,
		MergeOrder:       3,
		Label:            "Animation & Polish (Global)",
	},
	CategoryLegacy: {
		PromptTemplate:       "legacy",
		AllowsStructuredTool: true,
		AllowsVariations:     true,
		MergeOrder:           4,
		Label:                "Legacy",
	},
}

// restrictedPolicy is returned for categories missing from the table: no
// tool, no level, no variations, merged last.
var restrictedPolicy = Policy{
	PromptTemplate: "legacy",
	MergeOrder:     len(policies),
	Label:          "Unclassified",
}

// PolicyFor returns the processing policy for c. Unknown categories fail
// closed to the most conservative policy.
func PolicyFor(c Category) Policy {
	if p, ok := policies[c]; ok {
		return p
	}
	return restrictedPolicy
}
