package cmd

import (
	"testing"

	"github.com/dukex/agentbundle/pkg/toolrunner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      ProviderConfig
		provider string
		key      string
		err      error
	}{
		{
			name:     "openai by default",
			cfg:      ProviderConfig{Model: "gpt-4o-mini", OpenAIKey: "sk-o", AnthropicKey: "sk-a"},
			provider: "openai",
			key:      "sk-o",
		},
		{
			name:     "claude model",
			cfg:      ProviderConfig{Model: "claude-3-haiku", OpenAIKey: "sk-o", AnthropicKey: "sk-a"},
			provider: "anthropic",
			key:      "sk-a",
		},
		{
			name:     "only anthropic key",
			cfg:      ProviderConfig{Model: "gpt-4o-mini", AnthropicKey: "sk-a"},
			provider: "anthropic",
			key:      "sk-a",
		},
		{
			name:     "no key",
			cfg:      ProviderConfig{Model: "claude-3-opus", OpenAIKey: "sk-o"},
			provider: "anthropic",
			err:      ErrNoProviderKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.provider, tt.cfg.Provider())

			creds, err := tt.cfg.Credentials()
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.key, creds.ProviderKey)
		})
	}
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)

	assert.Equal(t, []string{"http_request", "log"}, reg.Names())

	var _ toolrunner.ToolSet = reg
}

func TestNewEventBus(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, NewEventBus("memory", nil))
	assert.NotNil(t, NewEventBus("gochannel", nil))
	assert.Panics(t, func() { NewEventBus("kafka", nil) })
}
