// Package openai implements toolrunner.Completer with the OpenAI Chat
// Completions API, including function calling.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dukex/agentbundle/pkg/models"
	"github.com/dukex/agentbundle/pkg/toolrunner"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const ProviderName = "openai"

const quotaCode = "insufficient_quota"

// Completer wraps an OpenAI client.
type Completer struct {
	client *openai.Client
}

var _ toolrunner.Completer = (*Completer)(nil)

// New creates a completer for apiKey. Extra request options (base URL,
// retries, HTTP client) are applied after the key.
func New(apiKey string, opts ...option.RequestOption) *Completer {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)

	return &Completer{client: &client}
}

// NewFactory returns a toolrunner.CompleterFactory building OpenAI completers.
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
	params := openai.ChatCompletionNewParams{
		Messages: buildMessages(messages),
		Model:    model,
	}

	if len(tools) > 0 {
		params.Tools = buildTools(tools)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Choices) == 0 {
		return nil, toolrunner.NewProviderError(ProviderName, models.FailureUnknownProvider, errors.New("no choices returned"))
	}

	choice := resp.Choices[0]
	completion := &toolrunner.Completion{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: choice.FinishReason,
	}

	for _, tc := range choice.Message.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, toolrunner.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return completion, nil
}

func buildMessages(messages []toolrunner.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case toolrunner.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case toolrunner.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))

				continue
			}

			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}

			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: calls,
			}})
		case toolrunner.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}

	return out
}

func buildTools(tools []toolrunner.Tool) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))

	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
			},
		})
	}

	return out
}

// classify maps an SDK error onto the failure taxonomy. Context errors are
// returned unchanged.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return toolrunner.NewProviderError(ProviderName, models.FailureUnknownProvider, err)
	}

	kind := models.FailureUnknownProvider

	switch {
	case apiErr.Code == quotaCode || strings.Contains(apiErr.RawJSON(), quotaCode):
		kind = models.FailureQuotaExceeded
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		kind = models.FailureInvalidCredential
	case apiErr.StatusCode == http.StatusTooManyRequests:
		kind = models.FailureRateLimited
	}

	return toolrunner.NewProviderError(ProviderName, kind, fmt.Errorf("status %d: %w", apiErr.StatusCode, err))
}
