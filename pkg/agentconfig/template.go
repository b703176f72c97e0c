package agentconfig

import (
	"maps"
	"math/rand/v2"
	"regexp"
	"slices"
	"strings"

	"github.com/dukex/agentbundle/pkg/models"
)

const (
	maxSlugLength    = 50
	idSuffixLength   = 6
	idSuffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var (
	slugInvalid    = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
	slugHyphens    = regexp.MustCompile(`-+`)
)

// SchemaInfo describes the definition keys for editors and help output.
type SchemaInfo struct {
	Required     []string          `json:"required"`
	Optional     []string          `json:"optional"`
	Descriptions map[string]string `json:"descriptions"`
}

// NewTemplate returns a definition with defaults applied and an id derived
// from title.
func NewTemplate(title, prompt string, vars map[string]any) *models.AgentConfig {
	config := &models.AgentConfig{
		ID:     GenerateID(title),
		Title:  title,
		Prompt: prompt,
		Vars:   maps.Clone(vars),
	}

	ApplyDefaults(config)

	return config
}

// GenerateID slugs title (at most 50 characters) and appends a random
// six character base-36 suffix.
func GenerateID(title string) string {
	slug := strings.ToLower(title)
	slug = slugInvalid.ReplaceAllString(slug, "")
	slug = slugWhitespace.ReplaceAllString(slug, "-")
	slug = slugHyphens.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}

	suffix := make([]byte, idSuffixLength)
	for i := range suffix {
		suffix[i] = idSuffixAlphabet[rand.IntN(len(idSuffixAlphabet))]
	}

	return slug + "-" + string(suffix)
}

// Merge returns base overlaid with every field override sets. Vars and
// unknown keys are merged key by key. Neither argument is modified.
func Merge(base, override *models.AgentConfig) *models.AgentConfig {
	merged := base.Clone()
	if merged == nil {
		merged = &models.AgentConfig{}
	}

	if override == nil {
		return merged
	}

	setString(&merged.ID, override.ID)
	setString(&merged.Title, override.Title)
	setString(&merged.Description, override.Description)
	setString(&merged.Prompt, override.Prompt)
	setString(&merged.Bundle, override.Bundle)
	setString(&merged.ToolhouseID, override.ToolhouseID)
	setString(&merged.Schedule, override.Schedule)
	setString(&merged.Model, override.Model)
	setString(&merged.Version, override.Version)

	o := override.Clone()
	if o.Public != nil {
		merged.Public = o.Public
	}

	if o.Timeout != nil {
		merged.Timeout = o.Timeout.Clone()
	}

	if o.Retries != nil {
		merged.Retries = o.Retries.Clone()
	}

	if o.Tags != nil {
		merged.Tags = o.Tags
	}

	merged.Vars = mergeMaps(merged.Vars, o.Vars)
	merged.Extra = mergeMaps(merged.Extra, o.Extra)

	return merged
}

// HasBreakingChanges reports whether updated changes the id of previous or
// drops a placeholder that previous used.
func HasBreakingChanges(previous, updated *models.AgentConfig) bool {
	if previous.ID != updated.ID {
		return true
	}

	current := PromptVariables(updated.Prompt)

	for _, name := range PromptVariables(previous.Prompt) {
		if !slices.Contains(current, name) {
			return true
		}
	}

	return false
}

// Schema returns the description of every definition key.
func Schema() SchemaInfo {
	return SchemaInfo{
		Required: slices.Clone(RequiredFields),
		Optional: []string{
			"vars", "bundle", "public", "toolhouse_id", "schedule",
			"description", "version", "tags", "timeout", "retries", "model",
		},
		Descriptions: map[string]string{
			"id":           "Unique identifier for the agent (alphanumeric, hyphens, underscores)",
			"title":        "Human-readable name for the agent",
			"prompt":       "The instructions for the agent (can include {variable} placeholders)",
			"vars":         "Object containing variable definitions used in the prompt",
			"bundle":       `Bundle name for organizing agents (default: "default")`,
			"public":       "Whether the agent is publicly accessible (default: true)",
			"toolhouse_id": `Tool provider identifier for the agent (default: "default")`,
			"schedule":     "Cron expression for scheduled execution (optional)",
			"description":  "Detailed description of the agent's purpose",
			"version":      "Version identifier for the agent",
			"tags":         "Array of tags for categorizing the agent",
			"timeout":      "Maximum execution time in seconds (1-3600)",
			"retries":      "Number of retry attempts on failure (0-10)",
			"model":        "AI model to use (e.g., gpt-4o, gpt-4o-mini)",
		},
	}
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func mergeMaps(base, override map[string]any) map[string]any {
	if base == nil && override == nil {
		return nil
	}

	out := maps.Clone(base)
	if out == nil {
		out = map[string]any{}
	}

	maps.Copy(out, override)

	return out
}
