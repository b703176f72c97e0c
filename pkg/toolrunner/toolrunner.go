// Package toolrunner defines the contract between the execution engine and a
// tool-augmented language model provider, and a Runner that fulfils it with a
// provider completer and a local tool set.
package toolrunner

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to invoke a tool. Arguments is raw JSON.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of a conversation. Assistant messages may carry tool
// calls and tool messages answer the call named by ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func ToolResultMessage(call ToolCall, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: call.ID, Name: call.Name}
}

// Tool describes a tool offered to the model. Parameters is a JSON schema object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Completion is the result of one model call.
type Completion struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Model        string     `json:"model"`
	FinishReason string     `json:"finish_reason"`
}

// Message returns the assistant message to append to the conversation.
func (c *Completion) Message() Message {
	return Message{Role: RoleAssistant, Content: c.Content, ToolCalls: c.ToolCalls}
}

// HasToolCalls reports whether the model asked for tools.
func (c *Completion) HasToolCalls() bool {
	return len(c.ToolCalls) > 0
}

// Credentials are supplied at run time and never persisted.
type Credentials struct {
	ProviderKey     string
	ToolProviderKey string
}

// String redacts the keys.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{ProviderKey:%s ToolProviderKey:%s}", redact(c.ProviderKey), redact(c.ToolProviderKey))
}

func redact(key string) string {
	if key == "" {
		return "<unset>"
	}

	return "<redacted>"
}

// Client is the capability the engine drives for each run unit: an initial
// completion, the requested tool calls, and a second completion with their
// results appended.
type Client interface {
	Initialize(ctx context.Context, credentials Credentials, metadata map[string]string) error
	ListTools(ctx context.Context) ([]Tool, error)
	Complete(ctx context.Context, messages []Message, model string, tools []Tool) (*Completion, error)
	RunTools(ctx context.Context, completion *Completion) ([]Message, error)
}

// Completer calls one model provider. Implementations classify provider
// failures into *ProviderError.
type Completer interface {
	Provider() string
	Complete(ctx context.Context, messages []Message, model string, tools []Tool) (*Completion, error)
}

// CompleterFactory builds a Completer for an API key.
type CompleterFactory func(apiKey string) (Completer, error)

// ToolSet executes the tools offered to the model.
type ToolSet interface {
	Tools() []Tool
	Call(ctx context.Context, name, arguments string) (string, error)
}
