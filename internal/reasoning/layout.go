package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dusk-indust/adqueue/internal/gameconfig"
	"github.com/dusk-indust/adqueue/internal/request"
)

// Stage width the grid is fitted to, and the cell width bounds.
const (
	stageWidth   = 360
	minCellWidth = 56
	maxCellWidth = 90
	cellHeight   = 110
)

// layoutArgs is the shape of the layout tool arguments.
type layoutArgs struct {
	FoundationCard string                   `json:"foundation_card"`
	Tableau        []gameconfig.TableauCard `json:"tableau"`
	DrawPile       []string                 `json:"draw_pile"`
	SolveSequence  []string                 `json:"solve_sequence"`
}

// NormalizeLayout turns raw layout tool arguments into a validated layout
// with a computed grid. Any grid in the arguments is ignored.
func NormalizeLayout(args map[string]any) (LayoutPayload, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return LayoutPayload{}, fmt.Errorf("encode layout arguments: %w", err)
	}
	var in layoutArgs
	if err := json.Unmarshal(raw, &in); err != nil {
		return LayoutPayload{}, fmt.Errorf("decode layout arguments: %w", err)
	}

	layout := gameconfig.Layout{
		FoundationCard: strings.ToUpper(strings.TrimSpace(in.FoundationCard)),
		Tableau:        in.Tableau,
		DrawPile:       in.DrawPile,
		Grid:           GridFor(columns(in.Tableau)),
	}
	for i := range layout.Tableau {
		layout.Tableau[i].Code = strings.ToUpper(strings.TrimSpace(layout.Tableau[i].Code))
	}
	if layout.DrawPile == nil {
		layout.DrawPile = []string{}
	}
	if err := gameconfig.ValidateLayout(layout); err != nil {
		return LayoutPayload{}, err
	}
	return LayoutPayload{Layout: layout, SolveSequence: in.SolveSequence}, nil
}

// GridFor fits the grid to the stage width for the given column count.
func GridFor(cols int) gameconfig.Grid {
	if cols < 1 {
		cols = 1
	}
	width := stageWidth / cols
	width = max(minCellWidth, min(maxCellWidth, width))
	return gameconfig.Grid{CellWidth: width, CellHeight: cellHeight, OriginX: 0.5, OriginY: 0.18}
}

// LayoutComplexity grades a layout by size.
func LayoutComplexity(l gameconfig.Layout) request.Complexity {
	cards := len(l.Tableau)
	cols := columns(l.Tableau)
	draw := len(l.DrawPile)
	switch {
	case cards <= 5 && cols <= 3 && draw <= 3:
		return request.ComplexityEasy
	case cards >= 10 || cols >= 6 || draw >= 8:
		return request.ComplexityRisky
	default:
		return request.ComplexityModerate
	}
}

// DescribeLayout is the rationale used when the service returns a layout
// without any prose.
func DescribeLayout(l gameconfig.Layout) string {
	cols := columns(l.Tableau)
	var sb strings.Builder
	fmt.Fprintf(&sb, "I've created a layout with foundation %s, %d tableau cards arranged in %d %s",
		l.FoundationCard, len(l.Tableau), cols, plural(cols, "column"))
	if n := len(l.DrawPile); n > 0 {
		fmt.Fprintf(&sb, ", and %d %s in the draw pile", n, plural(n, "card"))
	}
	sb.WriteString(".")
	return sb.String()
}

// columns returns the number of columns spanned by the tableau.
func columns(tableau []gameconfig.TableauCard) int {
	maxCol := 0
	for _, c := range tableau {
		maxCol = max(maxCol, c.Col)
	}
	return maxCol + 1
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
