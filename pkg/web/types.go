// Package web provides HTTP request and response types for the workspace API.
package web

import (
	"github.com/dukex/agentbundle/pkg/models"
	"github.com/moogar0880/problems"
)

// CreateInputNodeRequest represents the request body for adding a free-form agent node.
type CreateInputNodeRequest struct {
	Prompt string `json:"prompt" validate:"required"`
	Model  string `json:"model"`
}

// CreateOutputNodeRequest represents the request body for adding an output node.
type CreateOutputNodeRequest struct {
	Label string `json:"label"`
}

// ConnectRequest represents the request body for adding an edge.
type ConnectRequest struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required,nefield=Source"`
}

type SetVariablesRequest struct {
	Variables map[string]any `json:"variables" validate:"required"`
}

// CreateBundleRequest represents the request body for grouping nodes.
type CreateBundleRequest struct {
	NodeIDs []string      `json:"node_ids" validate:"required,min=1,dive,required"`
	Name    string        `json:"name"     validate:"omitempty,max=100"`
	Color   *models.Color `json:"color,omitempty"`
}

// UpdateBundleRequest represents the request body for renaming or recoloring
// a bundle. All fields are optional.
type UpdateBundleRequest struct {
	Name  *string       `json:"name,omitempty"  validate:"omitempty,max=100"`
	Color *models.Color `json:"color,omitempty"`
}

// BundleResponse is a bundle with its runnable flag.
type BundleResponse struct {
	*models.Bundle

	Runnable bool `json:"runnable"`
}

// RunAllResponse lists the runs that happened and why the others did not.
type RunAllResponse struct {
	Runs   []*models.BundleRun `json:"runs"`
	Errors []string            `json:"errors,omitempty"`
}

// HistoryResponse reports the change undone or redone.
type HistoryResponse struct {
	Name    string `json:"name"`
	CanUndo bool   `json:"can_undo"`
	CanRedo bool   `json:"can_redo"`
}

type LogsResponse struct {
	Logs []string `json:"logs"`
}

// ConfigProblem is the problem body of a rejected agent definition.
type ConfigProblem struct {
	*problems.Problem

	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}
