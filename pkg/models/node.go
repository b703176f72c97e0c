// Package models defines the graph, bundle and agent definition types shared by
// the configuration service, the graph model and the execution engine.
package models

import "maps"

// NodeRole classifies what a node does inside a bundle.
type NodeRole string

const (
	NodeRoleInput     NodeRole = "input"      // Free-form prompt + model agent
	NodeRoleYamlAgent NodeRole = "yaml_agent" // Agent backed by a declarative definition
	NodeRoleOutput    NodeRole = "output"     // Receives the response of a connected agent
	NodeRoleGeneric   NodeRole = "generic"
)

// IsAgent reports whether nodes of this role produce a prompt/response pair.
func (r NodeRole) IsAgent() bool {
	return r == NodeRoleInput || r == NodeRoleYamlAgent
}

// NodeStatus is the display state of a node.
type NodeStatus string

const (
	NodeStatusIdle       NodeStatus = "idle"
	NodeStatusProcessing NodeStatus = "processing"
	NodeStatusReady      NodeStatus = "ready"
	NodeStatusError      NodeStatus = "error"
)

// Node is a vertex of the workspace graph.
type Node struct {
	ID             string            `json:"id"                        validate:"required"`
	Role           NodeRole          `json:"role"                      validate:"required,oneof=input yaml_agent output generic"`
	Label          string            `json:"label,omitempty"`
	PromptTemplate string            `json:"prompt_template,omitempty"`
	Model          string            `json:"model,omitempty"`
	Variables      map[string]any    `json:"variables,omitempty"`
	Agent          *AgentConfig      `json:"agent,omitempty"`
	BundleID       BundleID          `json:"bundle_id,omitempty"`
	Status         NodeStatus        `json:"status"`
	RuntimeOutput  string            `json:"runtime_output,omitempty"`
	Response       *ResponseEnvelope `json:"response,omitempty"`
	FailureKind    FailureKind       `json:"failure_kind,omitempty"`
	FailureReason  string            `json:"failure_reason,omitempty"`
}

func (n *Node) IsAgentNode() bool {
	return n.Role.IsAgent()
}

func (n *Node) IsOutputNode() bool {
	return n.Role == NodeRoleOutput
}

// Clone returns a copy that shares no mutable state with n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}

	c := *n
	c.Variables = maps.Clone(n.Variables)
	c.Agent = n.Agent.Clone()

	if n.Response != nil {
		r := *n.Response
		c.Response = &r
	}

	return &c
}

// Edge is a directed connection source -> target.
type Edge struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"source_node_id" validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
}

// Touches reports whether the edge has nodeID as either endpoint.
func (e *Edge) Touches(nodeID string) bool {
	return e.SourceNodeID == nodeID || e.TargetNodeID == nodeID
}
