// Package prompts embeds the system prompts sent to the reasoning service.
// Templates share the rules, marks and cards blocks defined in rules.tmpl.
package prompts

import (
	"embed"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Names of the non-category templates.
const (
	Merge   = "merge"
	Suggest = "suggest"
)

// Data is the template input.
type Data struct {
	// Level is the targeted level number for level design prompts.
	Level int
	// Count is the number of suggestions requested.
	Count int
}

var (
	parseOnce sync.Once
	parsed    *template.Template
	parseErr  error
)

func templates() (*template.Template, error) {
	parseOnce.Do(func() {
		parsed, parseErr = template.New("prompts").Option("missingkey=error").
			ParseFS(templateFS, "templates/*.tmpl")
	})
	return parsed, parseErr
}

// Render executes the named template, for example "level_design".
func Render(name string, data Data) (string, error) {
	t, err := templates()
	if err != nil {
		return "", fmt.Errorf("prompts: parse templates: %w", err)
	}
	tmpl := t.Lookup(name + ".tmpl")
	if tmpl == nil {
		return "", fmt.Errorf("prompts: unknown template %q", name)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("prompts: render %s: %w", name, err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// Names lists the available top-level templates.
func Names() []string {
	t, err := templates()
	if err != nil {
		return nil
	}
	var names []string
	for _, tmpl := range t.Templates() {
		n := tmpl.Name()
		if strings.HasSuffix(n, ".tmpl") && n != "rules.tmpl" {
			names = append(names, strings.TrimSuffix(n, ".tmpl"))
		}
	}
	return names
}
