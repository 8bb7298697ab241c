package request

import (
	"fmt"
	"strings"
)

// Category is the closed classification of a change request's intent.
type Category string

const (
	CategoryGameDesign  Category = "game_design"
	CategoryLevelDesign Category = "level_design"
	CategoryGraphicsUI  Category = "graphics_ui"
	CategoryAnimation   Category = "animation"
	CategoryLegacy      Category = "legacy"
)

// Categories returns every known category in merge order.
func Categories() []Category {
	return []Category{
		CategoryGameDesign,
		CategoryLevelDesign,
		CategoryGraphicsUI,
		CategoryAnimation,
		CategoryLegacy,
	}
}

// Valid reports whether c is one of the five known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryGameDesign, CategoryLevelDesign, CategoryGraphicsUI, CategoryAnimation, CategoryLegacy:
		return true
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory maps user input to a Category. Hyphens and case are
// tolerated so "Level-Design" and "level_design" parse the same.
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	c := Category(norm)
	if !c.Valid() {
		return "", &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", s)}
	}
	return c, nil
}
