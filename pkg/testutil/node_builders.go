// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/agentbundle/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test output node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:     uuid.New().String(),
		Role:   models.NodeRoleOutput,
		Label:  "Test Node",
		Status: models.NodeStatusIdle,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// CreateInputNode creates a free-form agent node with prompt.
func CreateInputNode(prompt string, overrides ...func(*models.Node)) *models.Node {
	return CreateTestNode(append([]func(*models.Node){
		WithRole(models.NodeRoleInput),
		WithPrompt(prompt),
	}, overrides...)...)
}

// CreateYamlAgentNode creates an agent node backed by config.
func CreateYamlAgentNode(config *models.AgentConfig, overrides ...func(*models.Node)) *models.Node {
	return CreateTestNode(append([]func(*models.Node){
		WithRole(models.NodeRoleYamlAgent),
		WithAgentConfig(config),
	}, overrides...)...)
}

// CreateTestAgentConfig creates a valid definition that can be overridden.
func CreateTestAgentConfig(overrides ...func(*models.AgentConfig)) *models.AgentConfig {
	public := true
	config := &models.AgentConfig{
		ID:          "test-agent",
		Title:       "Test Agent",
		Prompt:      "Write a short note about {topic}",
		Vars:        map[string]any{"topic": "testing"},
		Bundle:      models.DefaultBundle,
		Public:      &public,
		ToolhouseID: models.DefaultToolhouseID,
	}

	for _, override := range overrides {
		override(config)
	}

	return config
}

// WithID sets the node id.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithRole sets the node role.
func WithRole(role models.NodeRole) func(*models.Node) {
	return func(n *models.Node) {
		n.Role = role
	}
}

// WithLabel sets the node label.
func WithLabel(label string) func(*models.Node) {
	return func(n *models.Node) {
		n.Label = label
	}
}

// WithPrompt sets the node prompt template.
func WithPrompt(prompt string) func(*models.Node) {
	return func(n *models.Node) {
		n.PromptTemplate = prompt
	}
}

// WithModel sets the node model.
func WithModel(model string) func(*models.Node) {
	return func(n *models.Node) {
		n.Model = model
	}
}

// WithVariables sets the node-local variable overrides.
func WithVariables(vars map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Variables = vars
	}
}

// WithAgentConfig attaches a definition to the node.
func WithAgentConfig(config *models.AgentConfig) func(*models.Node) {
	return func(n *models.Node) {
		n.Agent = config
		if config != nil && (n.Label == "" || n.Label == "Test Node") {
			n.Label = config.Title
		}
	}
}
