package engine

import (
	"errors"
	"fmt"

	"github.com/dukex/agentbundle/pkg/models"
)

var (
	// ErrMissingAgent is returned when a bundle has no agent node to run.
	ErrMissingAgent = errors.New("bundle has no agent node")

	// ErrMissingOutput is returned when a bundle has no output node to write to.
	ErrMissingOutput = errors.New("bundle has no output node")

	ErrUnconnected     = errors.New("agent is not connected to an output node in its bundle")
	ErrMissingVariable = errors.New("required variables are not resolved")
	ErrMissingConfig   = errors.New("agent node has no definition")
	ErrCancelled       = errors.New("run cancelled before the unit started")
)

// ExecutionError is the failure of one run unit.
type ExecutionError struct {
	Kind   models.FailureKind
	NodeID string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("unit %s failed (%s): %v", e.NodeID, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}

	return t.Kind == e.Kind && (t.NodeID == "" || t.NodeID == e.NodeID)
}

func newExecutionError(kind models.FailureKind, nodeID string, err error) *ExecutionError {
	return &ExecutionError{Kind: kind, NodeID: nodeID, Err: err}
}

// IsExecutionError reports whether err is a unit failure, returning its kind.
func IsExecutionError(err error) (models.FailureKind, bool) {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}

	return "", false
}
