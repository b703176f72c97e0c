package mocks

import (
	"context"

	"github.com/dukex/agentbundle/pkg/toolrunner"
	"github.com/stretchr/testify/mock"
)

// MockToolRunnerClient is a mock implementation of toolrunner.Client interface.
type MockToolRunnerClient struct {
	mock.Mock
}

func (m *MockToolRunnerClient) Initialize(ctx context.Context, credentials toolrunner.Credentials, metadata map[string]string) error {
	args := m.Called(ctx, credentials, metadata)

	return args.Error(0)
}

func (m *MockToolRunnerClient) ListTools(ctx context.Context) ([]toolrunner.Tool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]toolrunner.Tool), args.Error(1)
}

func (m *MockToolRunnerClient) Complete(
	ctx context.Context,
	messages []toolrunner.Message,
	model string,
	tools []toolrunner.Tool,
) (*toolrunner.Completion, error) {
	args := m.Called(ctx, messages, model, tools)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*toolrunner.Completion), args.Error(1)
}

func (m *MockToolRunnerClient) RunTools(ctx context.Context, completion *toolrunner.Completion) ([]toolrunner.Message, error) {
	args := m.Called(ctx, completion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]toolrunner.Message), args.Error(1)
}

// MockCompleter is a mock implementation of toolrunner.Completer interface.
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Provider() string {
	args := m.Called()

	return args.String(0)
}

func (m *MockCompleter) Complete(
	ctx context.Context,
	messages []toolrunner.Message,
	model string,
	tools []toolrunner.Tool,
) (*toolrunner.Completion, error) {
	args := m.Called(ctx, messages, model, tools)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*toolrunner.Completion), args.Error(1)
}

// MockToolSet is a mock implementation of toolrunner.ToolSet interface.
type MockToolSet struct {
	mock.Mock
}

func (m *MockToolSet) Tools() []toolrunner.Tool {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).([]toolrunner.Tool)
}

func (m *MockToolSet) Call(ctx context.Context, name, arguments string) (string, error) {
	args := m.Called(ctx, name, arguments)

	return args.String(0), args.Error(1)
}
