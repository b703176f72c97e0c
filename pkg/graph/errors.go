package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeNotFound indicates no node has the given id.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode indicates a node with the same id already exists.
	ErrDuplicateNode = errors.New("node already exists")

	// ErrEdgeNotFound indicates no edge has the given id.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrSelfLoop indicates an edge whose source and target are the same node.
	ErrSelfLoop = errors.New("edge cannot connect a node to itself")
)

// NodeError wraps a node lookup or mutation failure.
type NodeError struct {
	Op     string
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s operation failed for node %s: %v", e.Op, e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func (e *NodeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// ConsistencyError reports a broken internal invariant, such as an edge
// pointing at a node that no longer exists.
type ConsistencyError struct {
	Detail string
}

func (e *ConsistencyError) Error() string {
	return "graph consistency violated: " + e.Detail
}

// IsNotFound reports whether err means a node or edge does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound) || errors.Is(err, ErrEdgeNotFound)
}

// IsConsistencyError reports whether err is (or wraps) a *ConsistencyError.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError

	return errors.As(err, &ce)
}
