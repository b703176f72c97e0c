package cmd

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/dukex/agentbundle/pkg/toolrunner"
	"github.com/dukex/agentbundle/pkg/toolrunner/anthropic"
	"github.com/dukex/agentbundle/pkg/toolrunner/openai"
)

var ErrNoProviderKey = errors.New("no provider API key configured")

// ProviderConfig holds the provider keys read from flags or the environment.
type ProviderConfig struct {
	Model           string
	OpenAIKey       string
	AnthropicKey    string
	ToolProviderKey string
}

// Provider picks the provider serving cfg.Model. Claude models go to
// Anthropic; everything else goes to OpenAI unless only an Anthropic key is
// configured.
func (cfg ProviderConfig) Provider() string {
	switch {
	case strings.HasPrefix(cfg.Model, "claude"):
		return anthropic.ProviderName
	case cfg.OpenAIKey == "" && cfg.AnthropicKey != "":
		return anthropic.ProviderName
	default:
		return openai.ProviderName
	}
}

// Credentials returns the keys handed to the workspace at run time.
func (cfg ProviderConfig) Credentials() (toolrunner.Credentials, error) {
	key := cfg.OpenAIKey
	if cfg.Provider() == anthropic.ProviderName {
		key = cfg.AnthropicKey
	}

	if key == "" {
		return toolrunner.Credentials{}, ErrNoProviderKey
	}

	return toolrunner.Credentials{ProviderKey: key, ToolProviderKey: cfg.ToolProviderKey}, nil
}

// NewToolRunner returns the provider client backed by the native tools.
func NewToolRunner(cfg ProviderConfig, logger *slog.Logger) *toolrunner.Runner {
	factory := openai.NewFactory()
	if cfg.Provider() == anthropic.ProviderName {
		factory = anthropic.NewFactory()
	}

	return toolrunner.NewRunner(factory, NewRegistry(logger), logger)
}
