package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukex/agentbundle/pkg/models"
	"github.com/dukex/agentbundle/pkg/toolrunner"
	completer "github.com/dukex/agentbundle/pkg/toolrunner/openai"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const toolCallResponse = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": null,
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "log", "arguments": "{\"message\":\"hi\"}"}
      }]
    }
  }]
}`

func newServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)

			return
		}

		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, seen)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))

	t.Cleanup(srv.Close)

	return srv
}

func newCompleter(srv *httptest.Server) *completer.Completer {
	return completer.New("sk-test", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
}

func TestComplete_ToolCalls(t *testing.T) {
	t.Parallel()

	var request map[string]any

	srv := newServer(t, http.StatusOK, toolCallResponse, &request)
	c := newCompleter(srv)

	tools := []toolrunner.Tool{{
		Name:        "log",
		Description: "Write a log line",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{"message": map[string]any{"type": "string"}}},
	}}

	messages := []toolrunner.Message{
		toolrunner.SystemMessage("be brief"),
		toolrunner.UserMessage("say hi"),
		{Role: toolrunner.RoleAssistant, ToolCalls: []toolrunner.ToolCall{{ID: "call_0", Name: "log", Arguments: "{}"}}},
		{Role: toolrunner.RoleTool, ToolCallID: "call_0", Content: "ok"},
	}

	completion, err := c.Complete(context.Background(), messages, "gpt-4o-mini", tools)
	require.NoError(t, err)

	assert.Equal(t, "openai", c.Provider())
	assert.Equal(t, "tool_calls", completion.FinishReason)
	require.Len(t, completion.ToolCalls, 1)
	assert.Equal(t, toolrunner.ToolCall{ID: "call_1", Name: "log", Arguments: `{"message":"hi"}`}, completion.ToolCalls[0])

	assert.Equal(t, "gpt-4o-mini", request["model"])
	assert.Len(t, request["messages"], 4)
	assert.Len(t, request["tools"], 1)
}

func TestComplete_ClassifiesErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   models.FailureKind
	}{
		{
			name:   "invalid key",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`,
			want:   models.FailureInvalidCredential,
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`,
			want:   models.FailureRateLimited,
		},
		{
			name:   "quota",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`,
			want:   models.FailureQuotaExceeded,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":{"message":"oops","type":"server_error","code":"server_error"}}`,
			want:   models.FailureUnknownProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newServer(t, tt.status, tt.body, nil)

			_, err := newCompleter(srv).Complete(context.Background(), []toolrunner.Message{toolrunner.UserMessage("hi")}, "gpt-4o", nil)
			require.Error(t, err)

			var pe *toolrunner.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.want, pe.Kind)
			assert.Equal(t, "openai", pe.Provider)
		})
	}
}

func TestComplete_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := newServer(t, http.StatusOK, toolCallResponse, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newCompleter(srv).Complete(ctx, []toolrunner.Message{toolrunner.UserMessage("hi")}, "gpt-4o", nil)
	require.Error(t, err)
	assert.Equal(t, models.FailureCancelled, toolrunner.Classify(err))
}
