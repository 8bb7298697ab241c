package gameconfig

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// cardCodeRe matches card codes such as "7H", "10S", "AS", "KD".
var cardCodeRe = regexp.MustCompile(`^(A|[2-9]|10|J|Q|K)[HDCS]$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("cardcode", func(fl validator.FieldLevel) bool {
			return cardCodeRe.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// ValidCardCode reports whether code is a well-formed card code.
func ValidCardCode(code string) bool {
	return cardCodeRe.MatchString(code)
}

// Validate checks that s is a structurally complete configuration: field
// constraints on every section plus the cross-field rules of the level list.
func Validate(s *Snapshot) error {
	if s == nil {
		return errors.New("gameconfig: nil snapshot")
	}

	if err := structErrors("snapshot", structValidator().Struct(s)); err != nil {
		return err
	}

	if s.Levels.TotalLevels != len(s.Levels.Levels) {
		return fmt.Errorf("gameconfig: total_levels is %d but %d levels are defined",
			s.Levels.TotalLevels, len(s.Levels.Levels))
	}

	seen := make(map[int]bool, len(s.Levels.Levels))
	for _, l := range s.Levels.Levels {
		if seen[l.LevelID] {
			return fmt.Errorf("gameconfig: duplicate level_id %d", l.LevelID)
		}
		seen[l.LevelID] = true

		if err := checkCells(l.LevelID, l.Layout); err != nil {
			return err
		}
	}

	return nil
}

// ValidateLayout checks a single level layout, as returned by the layout
// tool, before it is stored on a request.
func ValidateLayout(l Layout) error {
	if err := structErrors("layout", structValidator().Struct(l)); err != nil {
		return err
	}
	if len(l.Tableau) == 0 {
		return errors.New("gameconfig: invalid layout: tableau is empty")
	}
	return checkCells(0, l)
}

func checkCells(levelID int, l Layout) error {
	cells := make(map[[2]int]bool, len(l.Tableau))
	for _, c := range l.Tableau {
		pos := [2]int{c.Col, c.Row}
		if cells[pos] {
			return fmt.Errorf("gameconfig: level %d has two cards at col %d row %d", levelID, c.Col, c.Row)
		}
		cells[pos] = true
	}
	return nil
}

func structErrors(what string, err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("gameconfig: invalid %s: %s", what, strings.Join(msgs, "; "))
	}
	return fmt.Errorf("gameconfig: invalid %s: %w", what, err)
}
