// Package export writes archived builds to disk in the formats downstream
// tooling reads: the three configuration files and a build summary in JSON
// or YAML.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/adqueue/internal/archive"
	"github.com/dusk-indust/adqueue/internal/gameconfig"
)

// Format selects the summary encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatYAML:
		return Format(s), nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("export: unknown format %q (json or yaml)", s)
}

// BuildExport is the summary of one build. Images are left out.
type BuildExport struct {
	ID         string              `json:"id" yaml:"id"`
	CreatedAt  string              `json:"createdAt" yaml:"createdAt"`
	ExportedAt string              `json:"exportedAt" yaml:"exportedAt"`
	Summary    string              `json:"summary" yaml:"summary"`
	Applied    int                 `json:"applied" yaml:"applied"`
	Skipped    int                 `json:"skipped" yaml:"skipped"`
	Requests   []RequestExport     `json:"requests" yaml:"requests"`
	Changes    []gameconfig.Change `json:"changes,omitempty" yaml:"changes,omitempty"`
}

// RequestExport is one consumed request.
type RequestExport struct {
	ID         string `json:"id" yaml:"id"`
	Category   string `json:"category" yaml:"category"`
	Level      *int   `json:"level,omitempty" yaml:"level,omitempty"`
	Text       string `json:"text,omitempty" yaml:"text,omitempty"`
	Rationale  string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Complexity string `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	Outcome    string `json:"outcome" yaml:"outcome"`
	Reason     string `json:"reason,omitempty" yaml:"reason,omitempty"`
	QA         string `json:"qa,omitempty" yaml:"qa,omitempty"`
}

// ExportBuild builds the summary of rec.
func ExportBuild(rec *archive.BuildRecord, now time.Time) *BuildExport {
	applied, skipped := rec.Counts()
	out := &BuildExport{
		ID:         rec.ID,
		CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
		ExportedAt: now.UTC().Format(time.RFC3339),
		Summary:    rec.Summary,
		Applied:    applied,
		Skipped:    skipped,
		Requests:   make([]RequestExport, 0, len(rec.Requests)),
		Changes:    rec.Changes,
	}
	for _, r := range rec.Requests {
		re := RequestExport{
			ID:         r.ID,
			Category:   string(r.Category),
			Level:      r.Level,
			Text:       r.Inputs.Text,
			Rationale:  r.Rationale,
			Complexity: string(r.Complexity),
			QA:         string(r.QA),
		}
		if r.Outcome != nil {
			re.Outcome = string(r.Outcome.Kind)
			re.Reason = r.Outcome.Reason
		}
		out.Requests = append(out.Requests, re)
	}
	return out
}

// Write encodes e to w in the given format.
func Write(w io.Writer, e *BuildExport, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("export: encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON, "":
		data, err := json.MarshalIndent(e, "", "  ")
		if err != nil {
			return fmt.Errorf("export: encode json: %w", err)
		}
		_, err = w.Write(append(data, '\n'))
		return err
	}
	return fmt.Errorf("export: unknown format %q", format)
}

// WriteDir writes the build's resulting configuration files and its
// summary (build.json or build.yaml) into dir.
func WriteDir(dir string, rec *archive.BuildRecord, format Format, now time.Time) error {
	if rec.Result == nil {
		return fmt.Errorf("export: build %q has no result configuration", rec.ID)
	}
	if err := gameconfig.WriteDir(dir, rec.Result); err != nil {
		return err
	}

	name := "build.json"
	if format == FormatYAML {
		name = "build.yaml"
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("export: create %s: %w", name, err)
	}
	if err := Write(f, ExportBuild(rec, now), format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
