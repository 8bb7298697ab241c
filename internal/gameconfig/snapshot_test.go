package gameconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "tap", s.Mechanics.InputType)
	assert.Equal(t, []int{1, 2, 3}, s.LevelIDs())
	assert.True(t, s.HasLevel(2))
	assert.False(t, s.HasLevel(9))
	assert.NoError(t, Validate(s))
}

func TestLoadDir_OverridesAndFallsBack(t *testing.T) {
	dir := t.TempDir()
	mech := `{"mechanics_version":"2.0","genre":"solitaire_simplified","input_type":"drag",
		"card_move_speed":"fast","animation_type":"slide","highlight_valid_moves":false,
		"auto_complete_enabled":true,"notes":"","timer_seconds":30}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mechanics.json"), []byte(mech), 0o644))

	s, err := LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, "drag", s.Mechanics.InputType)
	assert.Equal(t, float64(30), s.Mechanics.Extra["timer_seconds"], "unknown keys survive in Extra")
	assert.Len(t, s.Levels.Levels, 3, "levels fall back to the built-in file")
}

func TestExtraFieldsRoundTrip(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)
	s.Visual.Extra = map[string]any{"card_width": float64(80), "background_color": "#000000"}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var out Snapshot
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, float64(80), out.Visual.Extra["card_width"])
	assert.Equal(t, "#1a472a", out.Visual.BackgroundColor, "typed fields win over colliding extra keys")
	_, collided := out.Visual.Extra["background_color"]
	assert.False(t, collided)
}

func TestClone_IsIndependent(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	cp := s.Clone()
	cp.Levels.Levels[0].Layout.FoundationCard = "AS"
	cp.Mechanics.InputType = "both"

	assert.Equal(t, "7H", s.Levels.Levels[0].Layout.FoundationCard)
	assert.Equal(t, "tap", s.Mechanics.InputType)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Snapshot)
		wantMsg string
	}{
		{
			name:    "bad card code",
			mutate:  func(s *Snapshot) { s.Levels.Levels[0].Layout.FoundationCard = "1Z" },
			wantMsg: "cardcode",
		},
		{
			name:    "bad input type",
			mutate:  func(s *Snapshot) { s.Mechanics.InputType = "swipe" },
			wantMsg: "oneof",
		},
		{
			name:    "bad color",
			mutate:  func(s *Snapshot) { s.Visual.ButtonColor = "orange" },
			wantMsg: "hexcolor",
		},
		{
			name:    "total levels mismatch",
			mutate:  func(s *Snapshot) { s.Levels.TotalLevels = 5 },
			wantMsg: "total_levels",
		},
		{
			name:    "duplicate level id",
			mutate:  func(s *Snapshot) { s.Levels.Levels[1].LevelID = 1 },
			wantMsg: "duplicate level_id",
		},
		{
			name: "overlapping cards",
			mutate: func(s *Snapshot) {
				l := &s.Levels.Levels[0].Layout
				l.Tableau = append(l.Tableau, TableauCard{Code: "2H", FaceUp: true, Col: 0, Row: 0})
			},
			wantMsg: "two cards",
		},
		{
			name:    "empty level list",
			mutate:  func(s *Snapshot) { s.Levels.Levels = nil; s.Levels.TotalLevels = 0 },
			wantMsg: "Levels",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Default()
			require.NoError(t, err)
			tc.mutate(s)

			err = Validate(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestDecode_RejectsStructurallyInvalid(t *testing.T) {
	_, err := Decode([]byte(`{"mechanics":{},"levels":{},"visual":{}}`))
	require.Error(t, err)

	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestDecode_RejectsMissingKeys(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)
	full, err := json.Marshal(s)
	require.NoError(t, err)

	_, err = Decode(full)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(full, &doc))
	delete(doc["mechanics"].(map[string]any), "highlight_valid_moves")
	levels := doc["levels"].(map[string]any)["levels"].([]any)
	delete(levels[0].(map[string]any), "timings")
	partial, err := json.Marshal(doc)
	require.NoError(t, err)

	_, err = Decode(partial)
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), "mechanics.highlight_valid_moves")
	assert.Contains(t, err.Error(), "levels.levels[0].timings")
}

func TestDecode_KeepsExtraKeys(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)
	full, err := json.Marshal(s)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(full, &doc))
	doc["visual"].(map[string]any)["glow"] = "soft"
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "soft", got.Visual.Extra["glow"])
}

func TestDiff(t *testing.T) {
	before, err := Default()
	require.NoError(t, err)
	after := before.Clone()
	after.Visual.BackgroundColor = "#000000"

	changes, err := Diff(before, after)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "replace", changes[0].Op)
	assert.Equal(t, "/visual/background_color", changes[0].Path)
	assert.Equal(t, "#000000", changes[0].Value)

	none, err := Diff(before, before.Clone())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSection(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	raw, err := s.Section("mechanics")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"input_type":"tap"`)

	_, err = s.Section("audio")
	assert.Error(t, err)
}

func TestWriteDir_RoundTrip(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)
	s.Visual.BackgroundColor = "#123456"

	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, WriteDir(dir, s))

	back, err := LoadDir(dir)
	require.NoError(t, err)
	want, err := json.Marshal(s)
	require.NoError(t, err)
	got, err := json.Marshal(back)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}
