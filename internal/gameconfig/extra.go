package gameconfig

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// The open sections (mechanics, visual) carry unknown keys in Extra. These
// helpers split and rejoin them around the typed fields.

type mechanicsFields Mechanics

func (m Mechanics) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(mechanicsFields(m), m.Extra)
}

func (m *Mechanics) UnmarshalJSON(data []byte) error {
	var f mechanicsFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	extra, err := unknownKeys(data, f)
	if err != nil {
		return err
	}
	*m = Mechanics(f)
	m.Extra = extra
	return nil
}

type visualFields Visual

func (v Visual) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(visualFields(v), v.Extra)
}

func (v *Visual) UnmarshalJSON(data []byte) error {
	var f visualFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	extra, err := unknownKeys(data, f)
	if err != nil {
		return err
	}
	*v = Visual(f)
	v.Extra = extra
	return nil
}

// marshalWithExtra encodes the typed fields and adds extra keys that do not
// collide with them.
func marshalWithExtra(fields any, extra map[string]any) ([]byte, error) {
	known, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return known, nil
	}

	var merged map[string]any
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, typed := merged[k]; typed {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// unknownKeys returns the keys of data that the typed fields do not cover.
func unknownKeys(data []byte, fields any) (map[string]any, error) {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}

	known, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var typed map[string]json.RawMessage
	if err := json.Unmarshal(known, &typed); err != nil {
		return nil, err
	}

	var extra map[string]any
	for k, v := range all {
		if _, ok := typed[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra, nil
}

// missingKeys returns the dotted paths of keys the typed encoding of fields
// carries but data leaves out. Objects are walked recursively and arrays
// element by element.
func missingKeys(data []byte, fields any) ([]string, error) {
	var got any
	if err := json.Unmarshal(data, &got); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	known, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var want any
	if err := json.Unmarshal(known, &want); err != nil {
		return nil, err
	}

	var missing []string
	walkMissing(want, got, "", &missing)
	slices.Sort(missing)
	return missing, nil
}

func walkMissing(want, got any, path string, missing *[]string) {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return
		}
		for k, wv := range w {
			gv, present := g[k]
			if !present {
				*missing = append(*missing, joinPath(path, k))
				continue
			}
			walkMissing(wv, gv, joinPath(path, k), missing)
		}
	case []any:
		g, ok := got.([]any)
		if !ok {
			return
		}
		for i := 0; i < len(w) && i < len(g); i++ {
			walkMissing(w[i], g[i], path+"["+strconv.Itoa(i)+"]", missing)
		}
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
