package agentconfig

import (
	"regexp"
	"strings"
	"testing"

	"github.com/dukex/agentbundle/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	t.Parallel()

	id := GenerateID("  Weekly   News Digest!! -- ")
	assert.Regexp(t, regexp.MustCompile(`^weekly-news-digest-[0-9a-z]{6}$`), id)

	long := GenerateID(strings.Repeat("a", 80))
	assert.Len(t, long, 50+1+6)
}

func TestNewTemplate(t *testing.T) {
	t.Parallel()

	config := NewTemplate("My Agent", "Do {task}", map[string]any{"task": "x"})

	assert.True(t, strings.HasPrefix(config.ID, "my-agent-"))
	assert.Equal(t, models.DefaultBundle, config.Bundle)
	assert.True(t, config.IsPublic())
	assert.True(t, Validate(config).Valid)
}

func TestMerge(t *testing.T) {
	t.Parallel()

	base := validConfig()
	base.Vars["tone"] = "formal"
	override := &models.AgentConfig{Title: "New title", Vars: map[string]any{"tone": "casual", "extra": 1}}

	merged := Merge(base, override)

	assert.Equal(t, "research-agent", merged.ID)
	assert.Equal(t, "New title", merged.Title)
	assert.Equal(t, map[string]any{"topic": "go", "tone": "casual", "extra": 1}, merged.Vars)
	assert.Equal(t, "formal", base.Vars["tone"])
	assert.Equal(t, "Research", base.Title)
}

func TestHasBreakingChanges(t *testing.T) {
	t.Parallel()

	previous := validConfig()

	renamed := previous.Clone()
	renamed.ID = "other"
	assert.True(t, HasBreakingChanges(previous, renamed))

	dropped := previous.Clone()
	dropped.Prompt = "Research everything"
	assert.True(t, HasBreakingChanges(previous, dropped))

	added := previous.Clone()
	added.Prompt = "Research {topic} for {audience}"
	assert.False(t, HasBreakingChanges(previous, added))
}

func TestSchema(t *testing.T) {
	t.Parallel()

	info := Schema()

	require.Equal(t, RequiredFields, info.Required)

	for _, key := range append(info.Required, info.Optional...) {
		assert.NotEmpty(t, info.Descriptions[key], key)
	}
}
