package agentconfig

import (
	"regexp"
	"strings"

	"github.com/dukex/agentbundle/pkg/models"
	"gopkg.in/yaml.v3"
)

var excessBlankLines = regexp.MustCompile(`\n{3,}`)

// ParsedAgent is a parsed definition together with its derived variables.
type ParsedAgent struct {
	Config    *models.AgentConfig `json:"config"`
	Variables []models.Variable   `json:"variables"`
}

// Clean normalizes raw definition text: strips a leading byte-order mark,
// converts line endings to \n, collapses runs of three or more newlines and
// trims surrounding whitespace.
func Clean(raw string) string {
	cleaned := strings.TrimPrefix(raw, "\uFEFF")
	cleaned = strings.ReplaceAll(cleaned, "\r\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\r", "\n")
	cleaned = excessBlankLines.ReplaceAllString(cleaned, "\n\n")

	return strings.TrimSpace(cleaned)
}

// Parse deserializes a definition. A root that is not a mapping is rejected.
// Once the structure is accepted, vars defaults to an empty map. The optional
// bundle, public and toolhouse_id defaults are only filled in when the
// definition passes Validate.
func Parse(raw string) (*models.AgentConfig, error) {
	var doc yaml.Node

	err := yaml.Unmarshal([]byte(Clean(raw)), &doc)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ParseError{Err: ErrEmptyDocument}
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Line: root.Line, Column: root.Column, Err: ErrInvalidRoot}
	}

	config := &models.AgentConfig{}

	err = root.Decode(config)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	normalize(config)

	if Validate(config).Valid {
		ApplyDefaults(config)
	}

	return config, nil
}

// ParseAgent parses a definition and extracts its variables.
func ParseAgent(raw string) (*ParsedAgent, error) {
	config, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	return &ParsedAgent{
		Config:    config,
		Variables: ExtractVariables(config),
	}, nil
}

// ApplyDefaults fills unset optional fields with their documented defaults.
func ApplyDefaults(config *models.AgentConfig) {
	if config.Vars == nil {
		config.Vars = map[string]any{}
	}

	if config.Bundle == "" {
		config.Bundle = models.DefaultBundle
	}

	if config.Public == nil {
		public := true
		config.Public = &public
	}

	if config.ToolhouseID == "" {
		config.ToolhouseID = models.DefaultToolhouseID
	}
}

// IsValidYAML reports whether text is syntactically valid YAML, whatever its shape.
func IsValidYAML(text string) bool {
	var v any

	return yaml.Unmarshal([]byte(text), &v) == nil
}

func normalize(config *models.AgentConfig) {
	if config.Vars == nil {
		config.Vars = map[string]any{}
	}

	if len(config.Tags) == 0 {
		config.Tags = nil
	}

	if len(config.Extra) == 0 {
		config.Extra = nil
	}
}
