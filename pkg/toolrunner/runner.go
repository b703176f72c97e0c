package toolrunner

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/dukex/agentbundle/pkg/models"
)

const toolsProvider = "tools"

type metadataKey struct{}

// WithMetadata attaches the session metadata given to Initialize to ctx.
func WithMetadata(ctx context.Context, metadata map[string]string) context.Context {
	return context.WithValue(ctx, metadataKey{}, metadata)
}

// MetadataFromContext returns the session metadata attached to ctx.
func MetadataFromContext(ctx context.Context) map[string]string {
	md, _ := ctx.Value(metadataKey{}).(map[string]string)

	return md
}

// Runner is the Client used in production: completions go to the provider
// built by the factory and tool calls go to a local ToolSet.
type Runner struct {
	factory CompleterFactory
	tools   ToolSet
	logger  *slog.Logger

	mu        sync.RWMutex
	completer Completer
	metadata  map[string]string
	toolList  []Tool
}

var _ Client = (*Runner)(nil)

func NewRunner(factory CompleterFactory, tools ToolSet, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		factory: factory,
		tools:   tools,
		logger:  logger.With("module", "toolrunner"),
	}
}

// Initialize builds the provider completer for the credentials. The keys are
// held only by the completer.
func (r *Runner) Initialize(ctx context.Context, credentials Credentials, metadata map[string]string) error {
	if credentials.ProviderKey == "" {
		return NewProviderError("runner", models.FailureInvalidCredential, ErrMissingCredential)
	}

	completer, err := r.factory(credentials.ProviderKey)
	if err != nil {
		return fmt.Errorf("initialize tool runner: %w", err)
	}

	r.mu.Lock()
	r.completer = completer
	r.metadata = maps.Clone(metadata)
	r.toolList = nil
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "tool runner initialized",
		"provider", completer.Provider(),
		"tool_provider_key_set", credentials.ToolProviderKey != "")

	return nil
}

// ListTools returns the tool definitions, cached after the first call.
func (r *Runner) ListTools(_ context.Context) ([]Tool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.completer == nil {
		return nil, ErrNotInitialized
	}

	if r.toolList == nil {
		r.toolList = []Tool{}
		if r.tools != nil {
			r.toolList = r.tools.Tools()
		}
	}

	return slices.Clone(r.toolList), nil
}

func (r *Runner) Complete(ctx context.Context, messages []Message, model string, tools []Tool) (*Completion, error) {
	r.mu.RLock()
	completer := r.completer
	r.mu.RUnlock()

	if completer == nil {
		return nil, ErrNotInitialized
	}

	return completer.Complete(ctx, messages, model, tools)
}

// RunTools executes every tool call of completion in order and returns one
// tool message per call. The first failing call aborts with a
// tool execution failure.
func (r *Runner) RunTools(ctx context.Context, completion *Completion) ([]Message, error) {
	r.mu.RLock()
	initialized := r.completer != nil
	metadata := r.metadata
	r.mu.RUnlock()

	if !initialized {
		return nil, ErrNotInitialized
	}

	if r.tools == nil && completion.HasToolCalls() {
		return nil, NewProviderError(toolsProvider, models.FailureToolExecution, fmt.Errorf("no tools available"))
	}

	ctx = WithMetadata(ctx, metadata)
	results := make([]Message, 0, len(completion.ToolCalls))

	for _, call := range completion.ToolCalls {
		r.logger.DebugContext(ctx, "running tool", "tool", call.Name, "call_id", call.ID)

		output, err := r.tools.Call(ctx, call.Name, call.Arguments)
		if err != nil {
			return nil, NewProviderError(toolsProvider, models.FailureToolExecution, fmt.Errorf("tool %s: %w", call.Name, err))
		}

		results = append(results, ToolResultMessage(call, output))
	}

	return results, nil
}
