// Package registry holds the local tools offered to the model and dispatches
// the tool calls it makes.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/agentbundle/pkg/toolrunner"
	"github.com/kaptinlin/jsonrepair"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrToolNotFound      = errors.New("tool not registered")
	ErrInvalidArguments  = errors.New("invalid tool arguments")
	ErrDuplicateToolName = errors.New("tool already registered")
)

// Tool is a function the model may call. Parameters is a JSON schema object
// describing the arguments.
type Tool interface {
	ID() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any, logger *slog.Logger) (any, error)
}

// ToolError reports a failed call of a named tool.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

var _ toolrunner.ToolSet = (*Registry)(nil)

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		logger: log.With("module", "registry"),
		tools:  make(map[string]Tool),
	}
}

// Register adds tool. Tools are offered to the model in registration order.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[tool.ID()]; ok {
		return &ToolError{Tool: tool.ID(), Err: ErrDuplicateToolName}
	}

	r.tools[tool.ID()] = tool
	r.order = append(r.order, tool.ID())

	return nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.tools[name]

	return ok
}

// Tools returns the definitions of every registered tool.
func (r *Registry) Tools() []toolrunner.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]toolrunner.Tool, 0, len(r.order))
	for _, id := range r.order {
		t := r.tools[id]
		out = append(out, toolrunner.Tool{
			Name:        t.ID(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}

	return out
}

// Names returns the registered tool names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := slices.Clone(r.order)
	slices.Sort(names)

	return names
}

// Call runs the tool called name with the JSON encoded arguments and returns
// its result as text.
func (r *Registry) Call(ctx context.Context, name string, arguments string) (string, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return "", &ToolError{Tool: name, Err: ErrToolNotFound}
	}

	logger := r.logger.With("tool", name)

	args, err := decodeArguments(arguments)
	if err != nil {
		logger.WarnContext(ctx, "Could not decode tool arguments", "error", err)

		return "", &ToolError{Tool: name, Err: err}
	}

	if err := validateArguments(tool.Parameters(), args); err != nil {
		return "", &ToolError{Tool: name, Err: err}
	}

	logger.DebugContext(ctx, "Calling tool")

	result, err := tool.Execute(ctx, args, logger)
	if err != nil {
		return "", &ToolError{Tool: name, Err: err}
	}

	return encodeResult(result)
}

// decodeArguments parses the model's argument JSON, repairing it when the
// model produced something slightly malformed.
func decodeArguments(arguments string) (map[string]any, error) {
	if strings.TrimSpace(arguments) == "" {
		return map[string]any{}, nil
	}

	var args map[string]any

	err := json.Unmarshal([]byte(arguments), &args)
	if err == nil {
		return normalize(args), nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(arguments)
	if repairErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	return normalize(args), nil
}

func normalize(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}

	return args
}

func validateArguments(schema map[string]any, args map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(msgs, "; "))
	}

	return nil
}

func encodeResult(result any) (string, error) {
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	}

	b, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}

	return string(b), nil
}
