package research

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/deep-research-service/internal/domain"
)

func TestDefaultPrompts_RenderAll(t *testing.T) {
	p := DefaultPrompts()
	data := PromptData{
		Topic:           "Impact of AI on healthcare",
		ResearchContent: `{"core_research_topic": "AI"}`,
		Category:        "Regulation",
		Resources:       "[]",
		Reports:         "[]",
		Language:        "English",
	}

	for _, name := range []string{PromptTranslate, PromptBrief, PromptPlan, PromptCategoryReport, PromptFinalResearch, PromptFinalDetailed, PromptFinalWechat} {
		t.Run(name, func(t *testing.T) {
			out, err := p.Render(name, data)
			require.NoError(t, err)
			assert.NotEmpty(t, out)
		})
	}
}

func TestPrompts_Render_Fields(t *testing.T) {
	p := DefaultPrompts()

	out, err := p.Render(PromptTranslate, PromptData{Topic: "人工智能对医疗的影响"})
	require.NoError(t, err)
	assert.Contains(t, out, "[人工智能对医疗的影响]")
	assert.Contains(t, out, `{"response":`)

	out, err = p.Render(PromptCategoryReport, PromptData{Category: "Regulation", Resources: `[{"title":"t"}]`, Language: "German"})
	require.NoError(t, err)
	assert.Contains(t, out, "[Regulation]")
	assert.Contains(t, out, `[{"title":"t"}]`)
	assert.Contains(t, out, "German")
}

func TestPrompts_Render_Instructions(t *testing.T) {
	p := DefaultPrompts()

	with, err := p.Render(PromptFinalResearch, PromptData{Instructions: "Cite every figure."})
	require.NoError(t, err)
	assert.Contains(t, with, "Instructions:\n- Cite every figure.\n- Keep the research goal in focus throughout.")

	without, err := p.Render(PromptFinalResearch, PromptData{})
	require.NoError(t, err)
	assert.Contains(t, without, "Instructions:\n- Keep the research goal in focus throughout.")
}

func TestPrompts_RenderUnknown(t *testing.T) {
	_, err := DefaultPrompts().Render("poem", PromptData{})
	assert.ErrorContains(t, err, "prompt not found: poem")
}

func TestLoadPrompts(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		p, err := LoadPrompts("")
		require.NoError(t, err)
		_, err = p.Render(PromptPlan, PromptData{})
		assert.NoError(t, err)
	})

	t.Run("override replaces one template", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("templates:\n  translate: \"Translate {{.Topic}} please\"\n"), 0o600))

		p, err := LoadPrompts(path)
		require.NoError(t, err)

		out, err := p.Render(PromptTranslate, PromptData{Topic: "x"})
		require.NoError(t, err)
		assert.Equal(t, "Translate x please", out)

		out, err = p.Render(PromptBrief, PromptData{Topic: "x"})
		require.NoError(t, err)
		assert.Contains(t, out, "core_research_topic")
	})

	t.Run("unknown prompt name", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("templates:\n  sonnet: \"x\"\n"), 0o600))

		_, err := LoadPrompts(path)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("bad template syntax", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("templates:\n  plan: \"{{.ResearchContent\"\n"), 0o600))

		_, err := LoadPrompts(path)
		assert.ErrorContains(t, err, "parse prompt plan")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPrompts(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "read prompts file")
	})
}

func TestFinalPrompt(t *testing.T) {
	assert.Equal(t, PromptFinalResearch, finalPrompt(domain.ReportModeResearch))
	assert.Equal(t, PromptFinalDetailed, finalPrompt(domain.ReportModeDetailed))
	assert.Equal(t, PromptFinalWechat, finalPrompt(domain.ReportModeWechat))
}
