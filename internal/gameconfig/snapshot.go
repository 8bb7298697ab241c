package gameconfig

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrIncomplete reports a snapshot document that leaves out typed keys.
var ErrIncomplete = errors.New("gameconfig: incomplete snapshot")

//go:embed defaults/*.json
var defaultsFS embed.FS

// section file names, shared by the embedded defaults and on-disk overrides.
const (
	mechanicsFile = "mechanics.json"
	levelsFile    = "levels.json"
	visualFile    = "visual.json"
)

// Default returns the built-in starting configuration.
func Default() (*Snapshot, error) {
	return load(func(name string) ([]byte, error) {
		return defaultsFS.ReadFile("defaults/" + name)
	})
}

// LoadDir reads mechanics.json, levels.json and visual.json from dir. Missing
// files fall back to the built-in section.
func LoadDir(dir string) (*Snapshot, error) {
	return load(func(name string) ([]byte, error) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			return defaultsFS.ReadFile("defaults/" + name)
		}
		return data, err
	})
}

func load(read func(name string) ([]byte, error)) (*Snapshot, error) {
	var s Snapshot
	targets := []struct {
		name string
		dst  any
	}{
		{mechanicsFile, &s.Mechanics},
		{levelsFile, &s.Levels},
		{visualFile, &s.Visual},
	}
	for _, t := range targets {
		data, err := read(t.name)
		if err != nil {
			return nil, fmt.Errorf("gameconfig: read %s: %w", t.name, err)
		}
		if err := json.Unmarshal(data, t.dst); err != nil {
			return nil, fmt.Errorf("gameconfig: parse %s: %w", t.name, err)
		}
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Decode parses a full snapshot from JSON and validates it. Every typed key
// must be present; a partial document is rejected rather than zero-filled.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("gameconfig: decode snapshot: %w", err)
	}
	missing, err := missingKeys(data, &s)
	if err != nil {
		return nil, fmt.Errorf("gameconfig: decode snapshot: %w", err)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	data, err := json.Marshal(s)
	if err != nil {
		// Every field is JSON-representable; a failure here is a bug.
		panic(fmt.Sprintf("gameconfig: clone snapshot: %v", err))
	}
	var out Snapshot
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("gameconfig: clone snapshot: %v", err))
	}
	return &out
}

// Section returns the JSON encoding of one named section, or the whole
// snapshot when name is empty.
func (s *Snapshot) Section(name string) (json.RawMessage, error) {
	var v any
	switch name {
	case "":
		v = s
	case "mechanics":
		v = s.Mechanics
	case "levels":
		v = s.Levels
	case "visual":
		v = s.Visual
	default:
		return nil, fmt.Errorf("gameconfig: unknown section %q", name)
	}
	return json.Marshal(v)
}

// WriteDir writes s as mechanics.json, levels.json and visual.json into
// dir, creating it if needed. LoadDir reads the result back.
func WriteDir(dir string, s *Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("gameconfig: create %s: %w", dir, err)
	}
	sections := []struct {
		name string
		v    any
	}{
		{mechanicsFile, s.Mechanics},
		{levelsFile, s.Levels},
		{visualFile, s.Visual},
	}
	for _, sec := range sections {
		data, err := json.MarshalIndent(sec.v, "", "  ")
		if err != nil {
			return fmt.Errorf("gameconfig: encode %s: %w", sec.name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, sec.name), append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("gameconfig: write %s: %w", sec.name, err)
		}
	}
	return nil
}
