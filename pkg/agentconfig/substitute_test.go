package agentconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstitute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prompt string
		values map[string]any
		want   string
	}{
		{name: "single brace", prompt: "Hi {name}", values: map[string]any{"name": "Ada"}, want: "Hi Ada"},
		{name: "all syntaxes", prompt: "{a} {{a}} ${a}", values: map[string]any{"a": 1}, want: "1 1 1"},
		{name: "no match", prompt: "Hi {name}", values: map[string]any{"other": "x"}, want: "Hi {name}"},
		{name: "nil values", prompt: "Hi {name}", values: nil, want: "Hi {name}"},
		{name: "float", prompt: "ratio {r}", values: map[string]any{"r": 0.5}, want: "ratio 0.5"},
		{name: "list", prompt: "tags {t}", values: map[string]any{"t": []any{"a", "b"}}, want: `tags ["a","b"]`},
		{name: "nil value", prompt: "x{v}y", values: map[string]any{"v": nil}, want: "xy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Substitute(tt.prompt, tt.values))
		})
	}
}

func TestSubstitute_IdempotentWithoutPlaceholderValues(t *testing.T) {
	t.Parallel()

	values := map[string]any{"name": "Ada", "day": "Monday"}
	once := Substitute("Hi {name}, see you ${day}", values)

	assert.Equal(t, once, Substitute(once, values))
}
