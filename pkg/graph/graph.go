// Package graph holds the nodes and directed edges of a workspace and answers
// the adjacency queries the bundle manager and engine rely on.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/agentbundle/pkg/eventbus"
	"github.com/dukex/agentbundle/pkg/events"
	"github.com/dukex/agentbundle/pkg/models"
	"github.com/google/uuid"
)

// Direction selects which end of an edge Neighbors follows.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

// RemovalListener is told about every removed node once the graph has
// dropped it and its edges. It reports whether it deleted any bundle as a
// consequence.
type RemovalListener interface {
	NodeRemoved(ctx context.Context, nodeID string) bool
}

// Graph is safe for concurrent use. Queries never observe a half-applied
// mutation and always return copies.
type Graph struct {
	mu        sync.RWMutex
	nodes     map[string]*models.Node
	order     []string
	edges     []*models.Edge
	listeners []RemovalListener
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

// New returns an empty graph. publisher may be nil.
func New(publisher eventbus.EventPublisher, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}

	return &Graph{
		nodes:     make(map[string]*models.Node),
		publisher: publisher,
		logger:    logger.With("module", "graph"),
	}
}

// AddRemovalListener registers l for node removals.
func (g *Graph) AddRemovalListener(l RemovalListener) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.listeners = append(g.listeners, l)
}

// AddNode stores a copy of node. An empty id is replaced by a new UUID and an
// empty status by idle.
func (g *Graph) AddNode(ctx context.Context, node *models.Node) (*models.Node, error) {
	stored := node.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}

	if stored.Status == "" {
		stored.Status = models.NodeStatusIdle
	}

	g.mu.Lock()

	if _, exists := g.nodes[stored.ID]; exists {
		g.mu.Unlock()

		return nil, &NodeError{Op: "AddNode", NodeID: stored.ID, Err: ErrDuplicateNode}
	}

	g.nodes[stored.ID] = stored
	g.order = append(g.order, stored.ID)
	g.mu.Unlock()

	g.logger.DebugContext(ctx, "node added", "node_id", stored.ID, "role", stored.Role)
	eventbus.Emit(ctx, g.publisher, g.logger, stored.ID, events.NewNodeAdded(stored))

	return stored.Clone(), nil
}

// RemoveNode deletes a node with its incident edges and then notifies the
// removal listeners. It reports whether any bundle was deleted because it
// became empty.
func (g *Graph) RemoveNode(ctx context.Context, id string) (bool, error) {
	g.mu.Lock()

	node, exists := g.nodes[id]
	if !exists {
		g.mu.Unlock()

		return false, &NodeError{Op: "RemoveNode", NodeID: id, Err: ErrNodeNotFound}
	}

	removedEdges := g.removeEdgesTouchingLocked(id)
	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(n string) bool { return n == id })
	listeners := slices.Clone(g.listeners)
	g.mu.Unlock()

	evs := make([]eventbus.Event, 0, len(removedEdges)+1)
	for _, edge := range removedEdges {
		evs = append(evs, events.NewEdgeRemoved(edge))
	}

	evs = append(evs, events.NewNodeRemoved(node))
	eventbus.Emit(ctx, g.publisher, g.logger, id, evs...)

	emptied := false

	for _, l := range listeners {
		if l.NodeRemoved(ctx, id) {
			emptied = true
		}
	}

	g.logger.DebugContext(ctx, "node removed",
		"node_id", id,
		"edges_removed", len(removedEdges),
		"bundle_emptied", emptied)

	return emptied, nil
}

// UpdateNode applies fn to the stored node under the write lock and returns
// a copy of the result. fn must not change the node id.
func (g *Graph) UpdateNode(ctx context.Context, id string, fn func(*models.Node)) (*models.Node, error) {
	g.mu.Lock()

	node, exists := g.nodes[id]
	if !exists {
		g.mu.Unlock()

		return nil, &NodeError{Op: "UpdateNode", NodeID: id, Err: ErrNodeNotFound}
	}

	fn(node)
	node.ID = id
	updated := node.Clone()
	g.mu.Unlock()

	eventbus.Emit(ctx, g.publisher, g.logger, id, events.NewNodeUpdated(updated))

	return updated, nil
}

// AddEdge connects source to target. Several edges between the same pair are
// allowed.
func (g *Graph) AddEdge(ctx context.Context, source, target string) (*models.Edge, error) {
	edge := models.Edge{ID: uuid.New().String(), SourceNodeID: source, TargetNodeID: target}

	if err := g.RestoreEdge(ctx, edge); err != nil {
		return nil, err
	}

	return &edge, nil
}

// RestoreEdge inserts edge keeping its id, as when undoing a removal.
func (g *Graph) RestoreEdge(ctx context.Context, edge models.Edge) error {
	if edge.SourceNodeID == edge.TargetNodeID {
		return &NodeError{Op: "AddEdge", NodeID: edge.SourceNodeID, Err: ErrSelfLoop}
	}

	g.mu.Lock()

	for _, id := range []string{edge.SourceNodeID, edge.TargetNodeID} {
		if _, exists := g.nodes[id]; !exists {
			g.mu.Unlock()

			return &NodeError{Op: "AddEdge", NodeID: id, Err: ErrNodeNotFound}
		}
	}

	stored := edge
	g.edges = append(g.edges, &stored)
	g.mu.Unlock()

	eventbus.Emit(ctx, g.publisher, g.logger, edge.ID, events.NewEdgeAdded(edge))

	return nil
}

// RemoveEdge deletes one edge by id.
func (g *Graph) RemoveEdge(ctx context.Context, id string) error {
	g.mu.Lock()

	idx := slices.IndexFunc(g.edges, func(e *models.Edge) bool { return e.ID == id })
	if idx < 0 {
		g.mu.Unlock()

		return fmt.Errorf("remove edge %s: %w", id, ErrEdgeNotFound)
	}

	removed := *g.edges[idx]
	g.edges = slices.Delete(g.edges, idx, idx+1)
	g.mu.Unlock()

	eventbus.Emit(ctx, g.publisher, g.logger, id, events.NewEdgeRemoved(removed))

	return nil
}

// RemoveEdgesTouching deletes every edge with id as an endpoint and returns them.
func (g *Graph) RemoveEdgesTouching(ctx context.Context, id string) []models.Edge {
	g.mu.Lock()
	removed := g.removeEdgesTouchingLocked(id)
	g.mu.Unlock()

	evs := make([]eventbus.Event, 0, len(removed))
	for _, edge := range removed {
		evs = append(evs, events.NewEdgeRemoved(edge))
	}

	eventbus.Emit(ctx, g.publisher, g.logger, id, evs...)

	return removed
}

func (g *Graph) removeEdgesTouchingLocked(id string) []models.Edge {
	var removed []models.Edge

	g.edges = slices.DeleteFunc(g.edges, func(e *models.Edge) bool {
		if e.Touches(id) {
			removed = append(removed, *e)

			return true
		}

		return false
	})

	return removed
}

// EdgesTouching returns the edges with id as an endpoint, in insertion order.
func (g *Graph) EdgesTouching(id string) []models.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var touching []models.Edge

	for _, e := range g.edges {
		if e.Touches(id) {
			touching = append(touching, *e)
		}
	}

	return touching
}

// Neighbors returns the distinct nodes across edges leaving (Outgoing) or
// entering (Incoming) id, ordered by edge insertion.
func (g *Graph) Neighbors(id string, direction Direction) []*models.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var (
		neighbors []*models.Node
		seen      = map[string]bool{}
	)

	for _, e := range g.edges {
		var other string

		switch {
		case direction == Outgoing && e.SourceNodeID == id:
			other = e.TargetNodeID
		case direction == Incoming && e.TargetNodeID == id:
			other = e.SourceNodeID
		default:
			continue
		}

		if seen[other] {
			continue
		}

		seen[other] = true

		if node, ok := g.nodes[other]; ok {
			neighbors = append(neighbors, node.Clone())
		}
	}

	return neighbors
}

// NodesByRole returns the nodes with role. With restrictTo, only those ids
// are considered, in the order given; otherwise all nodes in insertion order.
func (g *Graph) NodesByRole(role models.NodeRole, restrictTo ...string) []*models.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := g.order
	if restrictTo != nil {
		ids = restrictTo
	}

	var matched []*models.Node

	for _, id := range ids {
		if node, ok := g.nodes[id]; ok && node.Role == role {
			matched = append(matched, node.Clone())
		}
	}

	return matched
}

// Node returns a copy of the node with id.
func (g *Graph) Node(id string) (*models.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]
	if !ok {
		return nil, &NodeError{Op: "Node", NodeID: id, Err: ErrNodeNotFound}
	}

	return node.Clone(), nil
}

// HasNode reports whether a node with id exists.
func (g *Graph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.nodes[id]

	return ok
}

// Nodes returns copies of all nodes in insertion order.
func (g *Graph) Nodes() []*models.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]*models.Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id].Clone())
	}

	return nodes
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []models.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges := make([]models.Edge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, *e)
	}

	return edges
}

// CheckConsistency verifies that the node index and every edge endpoint
// refer to existing nodes.
func (g *Graph) CheckConsistency() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.order) != len(g.nodes) {
		return &ConsistencyError{Detail: fmt.Sprintf("%d ordered ids for %d nodes", len(g.order), len(g.nodes))}
	}

	for _, e := range g.edges {
		for _, id := range []string{e.SourceNodeID, e.TargetNodeID} {
			if _, ok := g.nodes[id]; !ok {
				return &ConsistencyError{Detail: fmt.Sprintf("edge %s references missing node %s", e.ID, id)}
			}
		}
	}

	return nil
}
