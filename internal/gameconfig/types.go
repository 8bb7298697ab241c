// Package gameconfig holds the playable-ad configuration snapshot consumed
// by the build: mechanics, the ordered level list and visual styling.
package gameconfig

// Mechanics holds the global game rules.
type Mechanics struct {
	MechanicsVersion    string `json:"mechanics_version" validate:"required"`
	Genre               string `json:"genre" validate:"required"`
	InputType           string `json:"input_type" validate:"oneof=tap drag both"`
	CardMoveSpeed       string `json:"card_move_speed" validate:"oneof=slow medium fast"`
	AnimationType       string `json:"animation_type" validate:"oneof=slide flip instant"`
	HighlightValidMoves bool   `json:"highlight_valid_moves"`
	AutoCompleteEnabled bool   `json:"auto_complete_enabled"`
	Notes               string `json:"notes"`

	// Extra keeps fields the merge service introduced that this struct does
	// not model, so they survive a round trip.
	Extra map[string]any `json:"-"`
}

// TableauCard is one card on the board.
type TableauCard struct {
	Code   string `json:"code" validate:"cardcode"`
	FaceUp bool   `json:"face_up"`
	Col    int    `json:"col" validate:"gte=0"`
	Row    int    `json:"row" validate:"gte=0"`
}

// Grid positions the tableau on the stage.
type Grid struct {
	CellWidth  int     `json:"cell_width" validate:"gt=0"`
	CellHeight int     `json:"cell_height" validate:"gt=0"`
	OriginX    float64 `json:"origin_x" validate:"gte=0,lte=1"`
	OriginY    float64 `json:"origin_y" validate:"gte=0,lte=1"`
}

// DefaultGrid matches the renderer's built-in grid.
func DefaultGrid() Grid {
	return Grid{CellWidth: 76, CellHeight: 100, OriginX: 0.5, OriginY: 0.18}
}

// Layout is the board of a single level.
type Layout struct {
	FoundationCard string        `json:"foundation_card" validate:"cardcode"`
	Tableau        []TableauCard `json:"tableau" validate:"dive"`
	DrawPile       []string      `json:"draw_pile" validate:"dive,cardcode"`
	Grid           Grid          `json:"grid"`
}

// Timings controls end-of-level screens.
type Timings struct {
	WinScreenDurationMs       int `json:"win_screen_duration_ms" validate:"gte=0"`
	FailScreenDurationMs      int `json:"fail_screen_duration_ms" validate:"gte=0"`
	LevelTransitionDurationMs int `json:"level_transition_duration_ms" validate:"gte=0"`
}

// Level is one entry in the ordered level list.
type Level struct {
	LevelID         int     `json:"level_id" validate:"gte=1"`
	GameType        string  `json:"game_type" validate:"required"`
	ShowDrawPile    bool    `json:"show_draw_pile"`
	EnterAnimation  string  `json:"enter_animation" validate:"oneof=shuffle_in drop_down bulk"`
	EnterDurationMs int     `json:"enter_duration_ms" validate:"gte=0"`
	Layout          Layout  `json:"layout"`
	Timings         Timings `json:"timings"`
}

// Levels is the level list with its global settings.
type Levels struct {
	LevelsVersion string  `json:"levels_version" validate:"required"`
	Genre         string  `json:"genre" validate:"required"`
	TestingMode   bool    `json:"testing_mode"`
	TotalLevels   int     `json:"total_levels" validate:"gte=1"`
	TargetURL     string  `json:"target_url" validate:"required,url"`
	CTAText       string  `json:"cta_text" validate:"required"`
	Levels        []Level `json:"levels" validate:"required,min=1,dive"`
}

// Visual holds global styling. Animation tuning also lives here.
type Visual struct {
	VisualVersion    string `json:"visual_version" validate:"required"`
	BackgroundColor  string `json:"background_color" validate:"hexcolor"`
	TableFeltColor   string `json:"table_felt_color" validate:"hexcolor"`
	CardFaceColor    string `json:"card_face_color" validate:"hexcolor"`
	CardBackColor    string `json:"card_back_color" validate:"hexcolor"`
	CardBackPattern  string `json:"card_back_pattern" validate:"oneof=solid stripes dots"`
	CardBorderColor  string `json:"card_border_color" validate:"hexcolor"`
	HighlightColor   string `json:"highlight_color" validate:"hexcolor"`
	ButtonColor      string `json:"button_color" validate:"hexcolor"`
	ButtonTextColor  string `json:"button_text_color" validate:"hexcolor"`
	PrimaryTextColor string `json:"primary_text_color" validate:"hexcolor"`
	FontFamily       string `json:"font_family" validate:"required"`
	UITheme          string `json:"ui_theme" validate:"oneof=dark classic minimal"`

	Extra map[string]any `json:"-"`
}

// Snapshot is the complete configuration a build consumes. Merges always
// exchange a whole Snapshot, never a patch.
type Snapshot struct {
	Mechanics Mechanics `json:"mechanics"`
	Levels    Levels    `json:"levels"`
	Visual    Visual    `json:"visual"`
}

// HasLevel reports whether a level with the given id exists.
func (s *Snapshot) HasLevel(id int) bool {
	for _, l := range s.Levels.Levels {
		if l.LevelID == id {
			return true
		}
	}
	return false
}

// Level returns the level with the given id.
func (s *Snapshot) Level(id int) (Level, bool) {
	for _, l := range s.Levels.Levels {
		if l.LevelID == id {
			return l, true
		}
	}
	return Level{}, false
}

// LevelIDs returns the ids of all levels in order.
func (s *Snapshot) LevelIDs() []int {
	ids := make([]int, 0, len(s.Levels.Levels))
	for _, l := range s.Levels.Levels {
		ids = append(ids, l.LevelID)
	}
	return ids
}
