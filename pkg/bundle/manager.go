// Package bundle groups graph nodes into named, colored units and keeps their
// membership in step with the graph.
package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dukex/agentbundle/pkg/eventbus"
	"github.com/dukex/agentbundle/pkg/events"
	"github.com/dukex/agentbundle/pkg/graph"
	"github.com/dukex/agentbundle/pkg/models"
	"github.com/go-playground/validator/v10"
)

// CreateOptions customizes a new bundle. Zero values select the defaults.
type CreateOptions struct {
	Name  string
	Color *models.Color
}

// Manager owns the bundles of one graph. It must be the only writer of
// Node.BundleID.
//
// Locking: the manager lock may be held while reading the graph; the graph
// never calls back into the manager while holding its own lock.
type Manager struct {
	mu        sync.Mutex
	graph     *graph.Graph
	bundles   map[models.BundleID]*models.Bundle
	nextID    models.BundleID
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
}

// New returns a manager for g and registers it for node removals.
func New(g *graph.Graph, publisher eventbus.EventPublisher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		graph:     g,
		bundles:   make(map[models.BundleID]*models.Bundle),
		publisher: publisher,
		logger:    logger.With("module", "bundle_manager"),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
	}

	g.AddRemovalListener(m)

	return m
}

// CreateBundle groups nodeIDs into a new bundle. Nodes that already belong
// to another bundle move to the new one; a bundle left empty by the move is
// deleted.
func (m *Manager) CreateBundle(ctx context.Context, nodeIDs []string, opts CreateOptions) (*models.Bundle, error) {
	ids := dedupe(nodeIDs)
	if len(ids) == 0 {
		return nil, &BundleError{Op: "CreateBundle", Err: ErrEmptySelection}
	}

	if opts.Color != nil {
		if err := m.validate.Struct(opts.Color); err != nil {
			return nil, &BundleError{Op: "CreateBundle", Err: fmt.Errorf("%w: %w", ErrInvalidColor, err)}
		}
	}

	m.mu.Lock()

	if err := m.checkComposition(ids); err != nil {
		m.mu.Unlock()

		return nil, &BundleError{Op: "CreateBundle", Err: err}
	}

	evs := m.detachLocked(ids)

	m.nextID++
	created := &models.Bundle{
		ID:        m.nextID,
		Name:      opts.Name,
		NodeIDs:   ids,
		Color:     DefaultColor(m.nextID),
		CreatedAt: m.now().UTC(),
	}

	if created.Name == "" {
		created.Name = defaultName(created.ID)
	}

	if opts.Color != nil {
		created.Color = *opts.Color
	}

	m.bundles[created.ID] = created
	snapshot := created.Clone()
	m.mu.Unlock()

	m.assign(ctx, ids, snapshot.ID)

	evs = append(evs, events.NewBundleCreated(snapshot))
	eventbus.Emit(ctx, m.publisher, m.logger, bundleKey(snapshot.ID), evs...)

	m.logger.InfoContext(ctx, "bundle created",
		"bundle_id", snapshot.ID,
		"name", snapshot.Name,
		"nodes", len(ids))

	return snapshot, nil
}

// checkComposition requires every id to exist and the set to hold an agent
// node and an output node.
func (m *Manager) checkComposition(ids []string) error {
	hasAgent, hasOutput := false, false

	for _, id := range ids {
		node, err := m.graph.Node(id)
		if err != nil {
			return err
		}

		hasAgent = hasAgent || node.IsAgentNode()
		hasOutput = hasOutput || node.IsOutputNode()
	}

	if !hasAgent || !hasOutput {
		return ErrInvalidComposition
	}

	return nil
}

// detachLocked removes ids from the bundles that hold them and deletes the
// bundles left empty.
func (m *Manager) detachLocked(ids []string) []eventbus.Event {
	var evs []eventbus.Event

	for _, id := range m.sortedIDsLocked() {
		b := m.bundles[id]

		before := len(b.NodeIDs)
		b.NodeIDs = slices.DeleteFunc(b.NodeIDs, func(n string) bool { return slices.Contains(ids, n) })

		switch {
		case len(b.NodeIDs) == before:
			continue
		case len(b.NodeIDs) == 0:
			delete(m.bundles, id)
			evs = append(evs, events.NewBundleDeleted(b, events.DeleteReasonEmptied))
		default:
			evs = append(evs, events.NewBundleUpdated(b))
		}
	}

	return evs
}

// RenameBundle sets the display name. An empty name restores "Bundle N".
func (m *Manager) RenameBundle(ctx context.Context, id models.BundleID, name string) (*models.Bundle, error) {
	return m.update(ctx, "RenameBundle", id, func(b *models.Bundle) {
		b.Name = name
		if b.Name == "" {
			b.Name = defaultName(b.ID)
		}
	})
}

// Recolor sets the bundle color.
func (m *Manager) Recolor(ctx context.Context, id models.BundleID, color models.Color) (*models.Bundle, error) {
	if err := m.validate.Struct(color); err != nil {
		return nil, &BundleError{Op: "Recolor", BundleID: id, Err: fmt.Errorf("%w: %w", ErrInvalidColor, err)}
	}

	return m.update(ctx, "Recolor", id, func(b *models.Bundle) {
		b.Color = color
	})
}

// SetRunning flags whether a run of the bundle is in progress.
func (m *Manager) SetRunning(ctx context.Context, id models.BundleID, running bool) error {
	_, err := m.update(ctx, "SetRunning", id, func(b *models.Bundle) {
		b.IsRunning = running
	})

	return err
}

func (m *Manager) update(ctx context.Context, op string, id models.BundleID, fn func(*models.Bundle)) (*models.Bundle, error) {
	m.mu.Lock()

	b, ok := m.bundles[id]
	if !ok {
		m.mu.Unlock()

		return nil, &BundleError{Op: op, BundleID: id, Err: ErrBundleNotFound}
	}

	fn(b)
	snapshot := b.Clone()
	m.mu.Unlock()

	eventbus.Emit(ctx, m.publisher, m.logger, bundleKey(id), events.NewBundleUpdated(snapshot))

	return snapshot, nil
}

// DeleteBundle removes the bundle and clears the bundle of its members. The
// nodes themselves stay in the graph. The deleted bundle is returned.
func (m *Manager) DeleteBundle(ctx context.Context, id models.BundleID) (*models.Bundle, error) {
	m.mu.Lock()

	b, ok := m.bundles[id]
	if !ok {
		m.mu.Unlock()

		return nil, &BundleError{Op: "DeleteBundle", BundleID: id, Err: ErrBundleNotFound}
	}

	delete(m.bundles, id)
	m.mu.Unlock()

	m.assign(ctx, b.NodeIDs, 0)
	eventbus.Emit(ctx, m.publisher, m.logger, bundleKey(id), events.NewBundleDeleted(b, events.DeleteReasonExplicit))

	m.logger.InfoContext(ctx, "bundle deleted", "bundle_id", id, "name", b.Name)

	return b, nil
}

// Restore puts a bundle snapshot back, as when undoing a change. Members that
// no longer exist are skipped and members held by other bundles move back.
func (m *Manager) Restore(ctx context.Context, snapshot *models.Bundle) (*models.Bundle, error) {
	restored := snapshot.Clone()
	restored.IsRunning = false

	m.mu.Lock()

	restored.NodeIDs = slices.DeleteFunc(dedupe(restored.NodeIDs), func(n string) bool {
		return !m.graph.HasNode(n)
	})

	if len(restored.NodeIDs) == 0 {
		m.mu.Unlock()

		return nil, &BundleError{Op: "Restore", BundleID: restored.ID, Err: ErrEmptySelection}
	}

	_, existed := m.bundles[restored.ID]
	delete(m.bundles, restored.ID)

	evs := m.detachLocked(restored.NodeIDs)
	m.bundles[restored.ID] = restored

	if restored.ID > m.nextID {
		m.nextID = restored.ID
	}

	result := restored.Clone()
	m.mu.Unlock()

	m.assign(ctx, result.NodeIDs, result.ID)

	if existed {
		evs = append(evs, events.NewBundleUpdated(result))
	} else {
		evs = append(evs, events.NewBundleCreated(result))
	}

	eventbus.Emit(ctx, m.publisher, m.logger, bundleKey(result.ID), evs...)

	return result, nil
}

// NodeRemoved prunes nodeID from every bundle and deletes bundles left empty.
// It reports whether a bundle was deleted.
func (m *Manager) NodeRemoved(ctx context.Context, nodeID string) bool {
	m.mu.Lock()
	evs := m.detachLocked([]string{nodeID})
	m.mu.Unlock()

	emptied := false

	for _, ev := range evs {
		if deleted, ok := ev.(*events.BundleDeleted); ok {
			emptied = true

			m.logger.InfoContext(ctx, "bundle pruned after its last node was removed",
				"bundle_id", deleted.BundleID,
				"node_id", nodeID)
		}
	}

	eventbus.Emit(ctx, m.publisher, m.logger, nodeID, evs...)

	return emptied
}

// Get returns a copy of the bundle with id.
func (m *Manager) Get(id models.BundleID) (*models.Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bundles[id]
	if !ok {
		return nil, &BundleError{Op: "Get", BundleID: id, Err: ErrBundleNotFound}
	}

	return b.Clone(), nil
}

// List returns copies of all bundles in creation order.
func (m *Manager) List() []*models.Bundle {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.sortedIDsLocked()
	list := make([]*models.Bundle, 0, len(ids))

	for _, id := range ids {
		list = append(list, m.bundles[id].Clone())
	}

	return list
}

// BundleOf returns the bundle holding nodeID.
func (m *Manager) BundleOf(nodeID string) (models.BundleID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, b := range m.bundles {
		if b.Contains(nodeID) {
			return id, true
		}
	}

	return 0, false
}

// IsRunnable reports whether some agent member reaches an output member
// through edges whose endpoints are all members.
func (m *Manager) IsRunnable(id models.BundleID) (bool, error) {
	b, err := m.Get(id)
	if err != nil {
		return false, err
	}

	members := make(map[string]bool, len(b.NodeIDs))
	for _, n := range b.NodeIDs {
		members[n] = true
	}

	adjacency := map[string][]string{}

	for _, e := range m.graph.Edges() {
		if members[e.SourceNodeID] && members[e.TargetNodeID] {
			adjacency[e.SourceNodeID] = append(adjacency[e.SourceNodeID], e.TargetNodeID)
		}
	}

	outputs := map[string]bool{}
	for _, n := range m.graph.NodesByRole(models.NodeRoleOutput, b.NodeIDs...) {
		outputs[n.ID] = true
	}

	var agents []string

	for _, role := range []models.NodeRole{models.NodeRoleInput, models.NodeRoleYamlAgent} {
		for _, n := range m.graph.NodesByRole(role, b.NodeIDs...) {
			agents = append(agents, n.ID)
		}
	}

	for _, agent := range agents {
		if reaches(agent, adjacency, outputs) {
			return true, nil
		}
	}

	return false, nil
}

func reaches(start string, adjacency map[string][]string, targets map[string]bool) bool {
	visited := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range adjacency[current] {
			if targets[next] {
				return true
			}

			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	return false
}

// CheckConsistency verifies that every member of every bundle exists and
// that no node belongs to two bundles.
func (m *Manager) CheckConsistency() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner := map[string]models.BundleID{}

	for _, id := range m.sortedIDsLocked() {
		b := m.bundles[id]
		if len(b.NodeIDs) == 0 {
			return &graph.ConsistencyError{Detail: fmt.Sprintf("bundle %d is empty", id)}
		}

		for _, n := range b.NodeIDs {
			if !m.graph.HasNode(n) {
				return &graph.ConsistencyError{Detail: fmt.Sprintf("bundle %d references missing node %s", id, n)}
			}

			if other, dup := owner[n]; dup {
				return &graph.ConsistencyError{Detail: fmt.Sprintf("node %s belongs to bundles %d and %d", n, other, id)}
			}

			owner[n] = id
		}
	}

	return nil
}

// assign writes the bundle id onto the given nodes. Nodes removed meanwhile
// are skipped.
func (m *Manager) assign(ctx context.Context, nodeIDs []string, id models.BundleID) {
	for _, n := range nodeIDs {
		_, err := m.graph.UpdateNode(ctx, n, func(node *models.Node) {
			node.BundleID = id
		})
		if err != nil {
			m.logger.DebugContext(ctx, "skipping bundle assignment", "node_id", n, "error", err)
		}
	}
}

func (m *Manager) sortedIDsLocked() []models.BundleID {
	return slices.Sorted(maps.Keys(m.bundles))
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}

	return out
}

func defaultName(id models.BundleID) string {
	return fmt.Sprintf("Bundle %d", id)
}

func bundleKey(id models.BundleID) string {
	return fmt.Sprintf("bundle-%d", id)
}
