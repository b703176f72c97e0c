package toolrunner_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/agentbundle/pkg/mocks"
	"github.com/dukex/agentbundle/pkg/models"
	"github.com/dukex/agentbundle/pkg/toolrunner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRunner(t *testing.T) (*toolrunner.Runner, *mocks.MockCompleter, *mocks.MockToolSet) {
	t.Helper()

	completer := &mocks.MockCompleter{}
	completer.On("Provider").Return("fake").Maybe()

	tools := &mocks.MockToolSet{}
	factory := func(apiKey string) (toolrunner.Completer, error) {
		if apiKey == "bad" {
			return nil, errors.New("rejected")
		}

		return completer, nil
	}

	return toolrunner.NewRunner(factory, tools, nil), completer, tools
}

func TestRunner_RequiresInitialize(t *testing.T) {
	t.Parallel()

	runner, _, _ := newRunner(t)
	ctx := context.Background()

	_, err := runner.ListTools(ctx)
	require.ErrorIs(t, err, toolrunner.ErrNotInitialized)

	_, err = runner.Complete(ctx, nil, "m", nil)
	require.ErrorIs(t, err, toolrunner.ErrNotInitialized)

	_, err = runner.RunTools(ctx, &toolrunner.Completion{})
	require.ErrorIs(t, err, toolrunner.ErrNotInitialized)
}

func TestRunner_Initialize(t *testing.T) {
	t.Parallel()

	runner, _, _ := newRunner(t)
	ctx := context.Background()

	err := runner.Initialize(ctx, toolrunner.Credentials{}, nil)
	require.ErrorIs(t, err, toolrunner.ErrMissingCredential)
	assert.Equal(t, models.FailureInvalidCredential, toolrunner.Classify(err))

	err = runner.Initialize(ctx, toolrunner.Credentials{ProviderKey: "bad"}, nil)
	require.Error(t, err)

	require.NoError(t, runner.Initialize(ctx, toolrunner.Credentials{ProviderKey: "sk-1"}, nil))
}

func TestRunner_ListToolsIsCached(t *testing.T) {
	t.Parallel()

	runner, _, tools := newRunner(t)
	ctx := context.Background()

	tools.On("Tools").Return([]toolrunner.Tool{{Name: "log"}}).Once()

	require.NoError(t, runner.Initialize(ctx, toolrunner.Credentials{ProviderKey: "sk"}, nil))

	first, err := runner.ListTools(ctx)
	require.NoError(t, err)
	second, err := runner.ListTools(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	tools.AssertNumberOfCalls(t, "Tools", 1)
}

func TestRunner_CompleteDelegates(t *testing.T) {
	t.Parallel()

	runner, completer, _ := newRunner(t)
	ctx := context.Background()
	messages := []toolrunner.Message{toolrunner.UserMessage("hi")}

	completer.On("Complete", mock.Anything, messages, "gpt-4o", []toolrunner.Tool(nil)).
		Return(&toolrunner.Completion{Content: "hello"}, nil)

	require.NoError(t, runner.Initialize(ctx, toolrunner.Credentials{ProviderKey: "sk"}, nil))

	completion, err := runner.Complete(ctx, messages, "gpt-4o", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", completion.Content)
}

func TestRunner_RunTools(t *testing.T) {
	t.Parallel()

	runner, _, tools := newRunner(t)
	ctx := context.Background()

	var seen map[string]string

	tools.On("Call", mock.Anything, "log", `{"message":"hi"}`).
		Run(func(args mock.Arguments) {
			seen = toolrunner.MetadataFromContext(args.Get(0).(context.Context))
		}).
		Return("logged", nil)

	require.NoError(t, runner.Initialize(ctx, toolrunner.Credentials{ProviderKey: "sk"}, map[string]string{"user": "u1"}))

	completion := &toolrunner.Completion{ToolCalls: []toolrunner.ToolCall{{ID: "c1", Name: "log", Arguments: `{"message":"hi"}`}}}

	results, err := runner.RunTools(ctx, completion)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, toolrunner.RoleTool, results[0].Role)
	assert.Equal(t, "c1", results[0].ToolCallID)
	assert.Equal(t, "logged", results[0].Content)
	assert.Equal(t, map[string]string{"user": "u1"}, seen)
}

func TestRunner_RunToolsFailure(t *testing.T) {
	t.Parallel()

	runner, _, tools := newRunner(t)
	ctx := context.Background()

	tools.On("Call", mock.Anything, "fetch", "{}").Return("", errors.New("connection refused"))

	require.NoError(t, runner.Initialize(ctx, toolrunner.Credentials{ProviderKey: "sk"}, nil))

	_, err := runner.RunTools(ctx, &toolrunner.Completion{ToolCalls: []toolrunner.ToolCall{{ID: "c1", Name: "fetch", Arguments: "{}"}}})
	require.Error(t, err)
	assert.Equal(t, models.FailureToolExecution, toolrunner.Classify(err))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want models.FailureKind
	}{
		{toolrunner.NewProviderError("p", models.FailureRateLimited, errors.New("x")), models.FailureRateLimited},
		{fmt.Errorf("wrapped: %w", toolrunner.NewProviderError("p", models.FailureQuotaExceeded, errors.New("x"))), models.FailureQuotaExceeded},
		{fmt.Errorf("call: %w", context.DeadlineExceeded), models.FailureTimeout},
		{context.Canceled, models.FailureCancelled},
		{errors.New("boom"), models.FailureUnknownProvider},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, toolrunner.Classify(tt.err), tt.err.Error())
	}

	assert.True(t, toolrunner.IsRetryable(models.FailureRateLimited))
	assert.False(t, toolrunner.IsRetryable(models.FailureQuotaExceeded))
}

func TestCredentials_StringRedacts(t *testing.T) {
	t.Parallel()

	creds := toolrunner.Credentials{ProviderKey: "sk-secret"}

	assert.NotContains(t, creds.String(), "sk-secret")
	assert.Contains(t, fmt.Sprint(creds), "<unset>")
}
