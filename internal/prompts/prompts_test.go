package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/adqueue/internal/request"
)

func TestRender_EveryCategoryHasATemplate(t *testing.T) {
	for _, c := range request.Categories() {
		t.Run(string(c), func(t *testing.T) {
			out, err := Render(request.PolicyFor(c).PromptTemplate, Data{Level: 1})
			require.NoError(t, err)
			assert.NotEmpty(t, out)
		})
	}
}

func TestRender_InjectsLevel(t *testing.T) {
	out, err := Render("level_design", Data{Level: 4})
	require.NoError(t, err)
	assert.Contains(t, out, "Level 4")
	assert.Contains(t, out, "GAME RULES")
	assert.Contains(t, out, "READING DRAWN MARKS")
	assert.NotContains(t, out, "{{")
}

func TestRender_SuggestCount(t *testing.T) {
	out, err := Render(Suggest, Data{Count: 3})
	require.NoError(t, err)
	assert.Contains(t, out, "JSON array of 3 strings")
}

func TestRender_Unknown(t *testing.T) {
	_, err := Render("nope", Data{})
	assert.ErrorContains(t, err, "unknown template")
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "merge")
	assert.Contains(t, names, "legacy")
	assert.NotContains(t, names, "rules")
}
