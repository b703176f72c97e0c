package agentconfig

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Substitute replaces every {{key}}, ${key} and {key} placeholder in prompt
// with the string form of values[key]. Keys without a placeholder are ignored.
//
// Applying Substitute twice gives the same result only when no value itself
// contains placeholder syntax.
func Substitute(prompt string, values map[string]any) string {
	result := prompt

	for key, value := range values {
		s := FormatValue(value)
		result = strings.ReplaceAll(result, "{{"+key+"}}", s)
		result = strings.ReplaceAll(result, "${"+key+"}", s)
		result = strings.ReplaceAll(result, "{"+key+"}", s)
	}

	return result
}

// FormatValue renders a variable value for inclusion in a prompt. Lists and
// objects are rendered as JSON, nil as the empty string.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case []any, []string, map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(b)
	default:
		return fmt.Sprint(v)
	}
}
