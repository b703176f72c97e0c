// Package anthropic implements toolrunner.Completer with the Anthropic
// Messages API, including tool use.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/dukex/agentbundle/pkg/models"
	"github.com/dukex/agentbundle/pkg/toolrunner"
)

const ProviderName = "anthropic"

const (
	defaultMaxTokens   = 4096
	statusOverloaded   = 529
	creditBalanceError = "credit balance"
)

// Completer wraps an Anthropic client.
type Completer struct {
	client    *anthropic.Client
	maxTokens int64
}

var _ toolrunner.Completer = (*Completer)(nil)

// New creates a completer for apiKey. Extra request options are applied
// after the key.
func New(apiKey string, opts ...option.RequestOption) *Completer {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)

	return &Completer{client: &client, maxTokens: defaultMaxTokens}
}

// NewFactory returns a toolrunner.CompleterFactory building Anthropic completers.
func NewFactory(opts ...option.RequestOption) toolrunner.CompleterFactory {
	return func(apiKey string) (toolrunner.Completer, error) {
		return New(apiKey, opts...), nil
	}
}

func (c *Completer) Provider() string {
	return ProviderName
}

func (c *Completer) Complete(
	ctx context.Context,
	messages []toolrunner.Message,
	model string,
	tools []toolrunner.Tool,
) (*toolrunner.Completion, error) {
	system, conversation := buildMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  conversation,
		MaxTokens: c.maxTokens,
	}

	if len(system) > 0 {
		params.System = system
	}

	if len(tools) > 0 {
		params.Tools = buildTools(tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	completion := &toolrunner.Completion{
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
	}

	var text strings.Builder

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			toolUse := block.AsToolUse()

			args := "{}"
			if toolUse.Input != nil {
				if b, err := json.Marshal(toolUse.Input); err == nil {
					args = string(b)
				}
			}

			completion.ToolCalls = append(completion.ToolCalls, toolrunner.ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: args,
			})
		}
	}

	completion.Content = text.String()

	return completion, nil
}

// buildMessages splits system prompts out and folds consecutive tool results
// into a single user turn, as the Messages API requires.
func buildMessages(messages []toolrunner.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var (
		system      []anthropic.TextBlockParam
		out         []anthropic.MessageParam
		toolResults []anthropic.ContentBlockParamUnion
	)

	flushResults := func() {
		if len(toolResults) > 0 {
			out = append(out, anthropic.NewUserMessage(toolResults...))
			toolResults = nil
		}
	}

	for _, m := range messages {
		if m.Role == toolrunner.RoleTool {
			toolResults = append(toolResults, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))

			continue
		}

		flushResults()

		switch m.Role {
		case toolrunner.RoleSystem:
			if m.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case toolrunner.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}

			for _, tc := range m.ToolCalls {
				var input any = map[string]any{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						input = map[string]any{}
					}
				}

				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}

			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	flushResults()

	return system, out
}

func buildTools(tools []toolrunner.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))

	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if properties, ok := t.Parameters["properties"]; ok {
			schema.Properties = properties
		}

		switch required := t.Parameters["required"].(type) {
		case []string:
			schema.Required = required
		case []any:
			for _, r := range required {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}

		tool := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if tool.OfTool != nil && t.Description != "" {
			tool.OfTool.Description = anthropic.String(t.Description)
		}

		out = append(out, tool)
	}

	return out
}

// classify maps an SDK error onto the failure taxonomy. Context errors are
// returned unchanged.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return toolrunner.NewProviderError(ProviderName, models.FailureUnknownProvider, err)
	}

	kind := models.FailureUnknownProvider

	switch {
	case strings.Contains(strings.ToLower(apiErr.RawJSON()), creditBalanceError):
		kind = models.FailureQuotaExceeded
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		kind = models.FailureInvalidCredential
	case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode == statusOverloaded:
		kind = models.FailureRateLimited
	}

	return toolrunner.NewProviderError(ProviderName, kind, fmt.Errorf("status %d: %w", apiErr.StatusCode, err))
}
