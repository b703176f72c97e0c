package agentconfig

import (
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/dukex/agentbundle/pkg/models"
)

const undefinedVariableDescription = "Variable used in prompt but not defined in vars"

var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`),
	regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`),
	regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`),
}

var (
	emailPattern         = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	urlPattern           = regexp.MustCompile(`^https?://.+`)
	datePattern          = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	numericStringPattern = regexp.MustCompile(`^\d+$`)
)

// nameDescriptions is matched in order against the lowercased variable name.
var nameDescriptions = []struct {
	fragment    string
	description string
}{
	{"topic", "The main subject or theme"},
	{"name", "A name or identifier"},
	{"title", "A title or heading"},
	{"description", "A detailed description"},
	{"url", "A web URL or link"},
	{"email", "An email address"},
	{"date", "A date value"},
	{"count", "A numeric count"},
	{"limit", "A maximum limit"},
	{"text", "Text content"},
	{"content", "Main content"},
	{"message", "A message or communication"},
	{"id", "A unique identifier"},
	{"path", "A file or URL path"},
	{"key", "A key or password"},
	{"token", "An access token"},
}

var typeDescriptions = map[models.VariableType]string{
	models.VariableTypeString:  "A text value",
	models.VariableTypeNumber:  "A numeric value",
	models.VariableTypeInteger: "A whole number",
	models.VariableTypeBoolean: "A true/false value",
	models.VariableTypeArray:   "A list of items",
	models.VariableTypeObject:  "A structured object",
	models.VariableTypeEmail:   "An email address",
	models.VariableTypeURL:     "A web URL",
	models.VariableTypeDate:    "A date value",
}

// PromptVariables returns the distinct placeholder names in prompt, in the
// order they were first found.
func PromptVariables(prompt string) []string {
	var names []string

	for _, pattern := range placeholderPatterns {
		for _, match := range pattern.FindAllStringSubmatch(prompt, -1) {
			if !slices.Contains(names, match[1]) {
				names = append(names, match[1])
			}
		}
	}

	return names
}

// ExtractVariables derives the variable list of config: one entry per vars key
// plus one flagged entry per placeholder that has no vars key. Required
// variables sort first, then by name.
func ExtractVariables(config *models.AgentConfig) []models.Variable {
	used := PromptVariables(config.Prompt)
	variables := make([]models.Variable, 0, len(config.Vars)+len(used))

	for name, value := range config.Vars {
		variables = append(variables, models.Variable{
			Name:        name,
			Value:       value,
			Type:        InferType(value),
			Required:    slices.Contains(used, name),
			Description: describe(name, value),
		})
	}

	for _, name := range used {
		if _, ok := config.Vars[name]; ok {
			continue
		}

		variables = append(variables, models.Variable{
			Name:        name,
			Value:       "",
			Type:        models.VariableTypeString,
			Required:    true,
			Undefined:   true,
			Description: undefinedVariableDescription,
		})
	}

	slices.SortFunc(variables, func(a, b models.Variable) int {
		if a.Required != b.Required {
			if a.Required {
				return -1
			}

			return 1
		}

		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}

		return strings.Compare(a.Name, b.Name)
	})

	return variables
}

// InferType classifies a vars value. Whole floating point numbers count as
// integers, and strings are checked against the email, url, date and digit
// patterns in that order.
func InferType(value any) models.VariableType {
	switch v := value.(type) {
	case nil:
		return models.VariableTypeString
	case bool:
		return models.VariableTypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return models.VariableTypeInteger
	case float32:
		return inferFloat(float64(v))
	case float64:
		return inferFloat(v)
	case []any, []string:
		return models.VariableTypeArray
	case map[string]any:
		return models.VariableTypeObject
	case string:
		switch {
		case emailPattern.MatchString(v):
			return models.VariableTypeEmail
		case urlPattern.MatchString(v):
			return models.VariableTypeURL
		case datePattern.MatchString(v):
			return models.VariableTypeDate
		case numericStringPattern.MatchString(v):
			return models.VariableTypeNumericString
		}
	}

	return models.VariableTypeString
}

func inferFloat(v float64) models.VariableType {
	if !math.IsInf(v, 0) && v == math.Trunc(v) {
		return models.VariableTypeInteger
	}

	return models.VariableTypeNumber
}

func describe(name string, value any) string {
	lower := strings.ToLower(name)

	for _, nd := range nameDescriptions {
		if strings.Contains(lower, nd.fragment) {
			return nd.description
		}
	}

	if d, ok := typeDescriptions[InferType(value)]; ok {
		return d
	}

	return "A configurable value"
}
