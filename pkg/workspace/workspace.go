// Package workspace is the session facade: it owns one graph with its bundles
// and runs them, records undoable changes and keeps the debug log.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukex/agentbundle/pkg/agentconfig"
	"github.com/dukex/agentbundle/pkg/bundle"
	"github.com/dukex/agentbundle/pkg/engine"
	"github.com/dukex/agentbundle/pkg/eventbus"
	"github.com/dukex/agentbundle/pkg/graph"
	"github.com/dukex/agentbundle/pkg/history"
	"github.com/dukex/agentbundle/pkg/models"
	"github.com/dukex/agentbundle/pkg/toolrunner"
	"github.com/google/uuid"
)

// SessionID is sent to the provider client as session metadata.
const SessionID = "agentbundle"

type Workspace struct {
	graph   *graph.Graph
	bundles *bundle.Manager
	engine  *engine.Engine
	history *history.History
	debug   *DebugLog
	bus     eventbus.EventBus
	logger  *slog.Logger

	// mu serializes changes and runs.
	mu       sync.Mutex
	lastRuns map[models.BundleID]*models.BundleRun
}

type options struct {
	bus          eventbus.EventBus
	engineOpts   []engine.Option
	historyLimit int
	logLimit     int
	now          func() time.Time
}

type Option func(*options)

// WithEventBus sets the bus the workspace publishes on. Handlers must be
// registered on it before New, which subscribes it.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(o *options) { o.bus = bus }
}

func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

func WithHistoryLimit(n int) Option {
	return func(o *options) { o.historyLimit = n }
}

func WithLogLimit(n int) Option {
	return func(o *options) { o.logLimit = n }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New(ctx context.Context, client toolrunner.Client, logger *slog.Logger, opts ...Option) (*Workspace, error) {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	if logger == nil {
		logger = slog.Default()
	}

	if o.bus == nil {
		o.bus = eventbus.NewMemoryEventBus()
	}

	g := graph.New(o.bus, logger)
	bundles := bundle.New(g, o.bus, logger)

	w := &Workspace{
		graph:    g,
		bundles:  bundles,
		engine:   engine.New(g, bundles, client, logger, append([]engine.Option{engine.WithPublisher(o.bus)}, o.engineOpts...)...),
		history:  history.New(o.historyLimit),
		debug:    NewDebugLog(o.logLimit, o.now),
		bus:      o.bus,
		logger:   logger.With("module", "workspace"),
		lastRuns: make(map[models.BundleID]*models.BundleRun),
	}

	if err := eventbus.HandleAll(o.bus, w.debug.Handle); err != nil {
		return nil, fmt.Errorf("register debug log: %w", err)
	}

	if err := o.bus.Subscribe(ctx); err != nil {
		return nil, fmt.Errorf("subscribe workspace bus: %w", err)
	}

	return w, nil
}

func (w *Workspace) Close() error {
	return w.bus.Close()
}

// Initialize hands the credentials to the provider client.
func (w *Workspace) Initialize(ctx context.Context, credentials toolrunner.Credentials) error {
	w.debug.Add("Initializing provider...")

	if err := w.engine.Initialize(ctx, credentials, map[string]string{"id": SessionID}); err != nil {
		w.debug.Addf("Failed to initialize provider: %v", err)

		return err
	}

	w.debug.Add("Provider initialized successfully")

	return nil
}

// UploadResult is what UploadAgent created.
type UploadResult struct {
	Agent     *models.Node        `json:"agent"`
	Output    *models.Node        `json:"output"`
	Edge      models.Edge         `json:"edge"`
	Config    *models.AgentConfig `json:"config"`
	Variables []models.Variable   `json:"variables"`
	Warnings  []string            `json:"warnings,omitempty"`
}

// UploadAgent parses and validates a definition, then adds it as an agent
// node paired with a fresh output node. Validation errors reject the upload;
// warnings are returned.
func (w *Workspace) UploadAgent(ctx context.Context, raw string) (*UploadResult, error) {
	parsed, err := agentconfig.ParseAgent(raw)
	if err != nil {
		w.debug.Addf("Failed to parse agent definition: %v", err)

		return nil, err
	}

	result := agentconfig.Validate(parsed.Config)
	if !result.Valid {
		w.debug.Addf("Agent %q rejected: %s", parsed.Config.ID, strings.Join(result.Errors, "; "))

		return nil, &ConfigError{Result: result}
	}

	agent := &models.Node{
		ID:     uuid.NewString(),
		Role:   models.NodeRoleYamlAgent,
		Label:  parsed.Config.Title,
		Agent:  parsed.Config,
		Status: models.NodeStatusIdle,
	}
	output := &models.Node{
		ID:     uuid.NewString(),
		Role:   models.NodeRoleOutput,
		Label:  parsed.Config.Title + " Output",
		Status: models.NodeStatusIdle,
	}
	edge := models.Edge{ID: uuid.NewString(), SourceNodeID: agent.ID, TargetNodeID: output.ID}

	cmd := history.Batch("upload agent "+parsed.Config.ID,
		w.addNodeCommand(agent),
		w.addNodeCommand(output),
		w.addEdgeCommand(edge),
	)

	if err := w.execute(ctx, cmd); err != nil {
		return nil, err
	}

	for _, warning := range result.Warnings {
		w.debug.Addf("Agent %q: %s", parsed.Config.ID, warning)
	}

	return &UploadResult{
		Agent:     agent.Clone(),
		Output:    output.Clone(),
		Edge:      edge,
		Config:    parsed.Config.Clone(),
		Variables: parsed.Variables,
		Warnings:  result.Warnings,
	}, nil
}

// AddInputNode adds a free-form agent node.
func (w *Workspace) AddInputNode(ctx context.Context, prompt, model string) (*models.Node, error) {
	node := &models.Node{
		ID:             uuid.NewString(),
		Role:           models.NodeRoleInput,
		Label:          "Input",
		PromptTemplate: prompt,
		Model:          model,
		Status:         models.NodeStatusIdle,
	}

	if err := w.execute(ctx, w.addNodeCommand(node)); err != nil {
		return nil, err
	}

	return node.Clone(), nil
}

func (w *Workspace) AddOutputNode(ctx context.Context, label string) (*models.Node, error) {
	if label == "" {
		label = "Output"
	}

	node := &models.Node{
		ID:     uuid.NewString(),
		Role:   models.NodeRoleOutput,
		Label:  label,
		Status: models.NodeStatusIdle,
	}

	if err := w.execute(ctx, w.addNodeCommand(node)); err != nil {
		return nil, err
	}

	return node.Clone(), nil
}

func (w *Workspace) Connect(ctx context.Context, source, target string) (*models.Edge, error) {
	edge := models.Edge{ID: uuid.NewString(), SourceNodeID: source, TargetNodeID: target}

	if err := w.execute(ctx, w.addEdgeCommand(edge)); err != nil {
		return nil, err
	}

	return &edge, nil
}

// RemoveNode deletes the node with its edges. Its bundle loses the node and
// is deleted when left empty.
func (w *Workspace) RemoveNode(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	cmd, err := w.removeNodeCommand(id)
	if err != nil {
		return err
	}

	return w.history.Execute(ctx, cmd)
}

// SetVariables replaces the variable overrides of an agent node.
func (w *Workspace) SetVariables(ctx context.Context, nodeID string, vars map[string]any) (*models.Node, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	node, err := w.graph.Node(nodeID)
	if err != nil {
		return nil, err
	}

	if !node.IsAgentNode() {
		return nil, roleError(nodeID, node.Role, "set variables")
	}

	if err := w.history.Execute(ctx, w.setVariablesCommand(node, vars)); err != nil {
		return nil, err
	}

	return w.graph.Node(nodeID)
}

// UpdateAgentConfig replaces the definition of a YAML agent node.
func (w *Workspace) UpdateAgentConfig(ctx context.Context, nodeID, raw string) (*models.Node, []string, error) {
	config, err := agentconfig.Parse(raw)
	if err != nil {
		return nil, nil, err
	}

	result := agentconfig.Validate(config)
	if !result.Valid {
		return nil, nil, &ConfigError{Result: result}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	node, err := w.graph.Node(nodeID)
	if err != nil {
		return nil, nil, err
	}

	if node.Role != models.NodeRoleYamlAgent {
		return nil, nil, roleError(nodeID, node.Role, "update definition")
	}

	if node.Agent != nil && agentconfig.HasBreakingChanges(node.Agent, config) {
		w.debug.Addf("Definition of %s changed its id or removed prompt variables", nodeID)
	}

	if err := w.history.Execute(ctx, w.setAgentCommand(node, config)); err != nil {
		return nil, nil, err
	}

	updated, err := w.graph.Node(nodeID)

	return updated, result.Warnings, err
}

// ExportAgent serializes the definition of a YAML agent node with the node's
// variable overrides folded into its vars.
func (w *Workspace) ExportAgent(nodeID string) (string, error) {
	node, err := w.graph.Node(nodeID)
	if err != nil {
		return "", err
	}

	if node.Agent == nil {
		return "", fmt.Errorf("export %s: %w", nodeID, ErrNotAgentDefinition)
	}

	config := node.Agent
	if len(node.Variables) > 0 {
		config = agentconfig.Merge(node.Agent, &models.AgentConfig{Vars: node.Variables})
	}

	return agentconfig.Serialize(config)
}

func (w *Workspace) CreateBundle(ctx context.Context, nodeIDs []string, opts bundle.CreateOptions) (*models.Bundle, error) {
	var created *models.Bundle

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.history.Execute(ctx, w.createBundleCommand(nodeIDs, opts, &created)); err != nil {
		return nil, err
	}

	return created, nil
}

// RenameBundle renames a bundle; an empty name restores the default one.
func (w *Workspace) RenameBundle(ctx context.Context, id models.BundleID, name string) (*models.Bundle, error) {
	return w.bundleChange(ctx, id, func(b *models.Bundle) history.Command {
		return w.renameBundleCommand(b, name)
	})
}

func (w *Workspace) RecolorBundle(ctx context.Context, id models.BundleID, color models.Color) (*models.Bundle, error) {
	return w.bundleChange(ctx, id, func(b *models.Bundle) history.Command {
		return w.recolorBundleCommand(b, color)
	})
}

// DeleteBundle removes the bundle. Its nodes stay in the graph.
func (w *Workspace) DeleteBundle(ctx context.Context, id models.BundleID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	snapshot, err := w.bundles.Get(id)
	if err != nil {
		return err
	}

	delete(w.lastRuns, id)

	return w.history.Execute(ctx, w.deleteBundleCommand(snapshot))
}

func (w *Workspace) bundleChange(ctx context.Context, id models.BundleID, build func(*models.Bundle) history.Command) (*models.Bundle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	snapshot, err := w.bundles.Get(id)
	if err != nil {
		return nil, err
	}

	if err := w.history.Execute(ctx, build(snapshot)); err != nil {
		return nil, err
	}

	return w.bundles.Get(id)
}

// RunBundle runs one bundle. The returned run holds each unit's outcome.
func (w *Workspace) RunBundle(ctx context.Context, id models.BundleID) (*models.BundleRun, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	run, err := w.engine.RunBundle(ctx, id)
	if err != nil {
		w.debug.Addf("Cannot run bundle %d: %v", id, err)

		return nil, err
	}

	w.lastRuns[id] = run

	return run, nil
}

// RunAllBundles runs every bundle in creation order.
func (w *Workspace) RunAllBundles(ctx context.Context) ([]*models.BundleRun, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.debug.Add("Running all bundles...")

	runs, err := w.engine.RunAllBundles(ctx)
	for _, run := range runs {
		w.lastRuns[run.BundleID] = run
	}

	if err != nil {
		w.debug.Addf("Some bundles did not run: %v", err)
	}

	w.debug.Addf("Completed %d bundle runs", len(runs))

	return runs, err
}

// LastRun returns the most recent run of a bundle.
func (w *Workspace) LastRun(id models.BundleID) (*models.BundleRun, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	run, ok := w.lastRuns[id]

	return run, ok
}

// Undo reverts the latest change and returns its name.
func (w *Workspace) Undo(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	name, err := w.history.Undo(ctx)
	if err == nil {
		w.debug.Addf("Undo: %s", name)
	}

	return name, err
}

// Redo applies the latest undone change again and returns its name.
func (w *Workspace) Redo(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	name, err := w.history.Redo(ctx)
	if err == nil {
		w.debug.Addf("Redo: %s", name)
	}

	return name, err
}

func (w *Workspace) CanUndo() bool { return w.history.CanUndo() }
func (w *Workspace) CanRedo() bool { return w.history.CanRedo() }

// ClearHistory forgets every recorded change.
func (w *Workspace) ClearHistory() {
	w.history.Clear()
}

// Snapshot is a copy of the graph and its bundles.
type Snapshot struct {
	Nodes   []*models.Node   `json:"nodes"`
	Edges   []models.Edge    `json:"edges"`
	Bundles []*models.Bundle `json:"bundles"`
}

func (w *Workspace) Snapshot() Snapshot {
	return Snapshot{
		Nodes:   w.graph.Nodes(),
		Edges:   w.graph.Edges(),
		Bundles: w.bundles.List(),
	}
}

func (w *Workspace) Node(id string) (*models.Node, error) {
	return w.graph.Node(id)
}

func (w *Workspace) Bundle(id models.BundleID) (*models.Bundle, error) {
	return w.bundles.Get(id)
}

func (w *Workspace) Bundles() []*models.Bundle {
	return w.bundles.List()
}

// IsRunnable reports whether the bundle has an agent reaching an output
// through its own nodes.
func (w *Workspace) IsRunnable(id models.BundleID) (bool, error) {
	return w.bundles.IsRunnable(id)
}

// Logs returns the debug log, newest first.
func (w *Workspace) Logs() []string {
	return w.debug.Entries()
}

// CheckConsistency verifies the graph and bundle invariants.
func (w *Workspace) CheckConsistency() error {
	if err := w.graph.CheckConsistency(); err != nil {
		return err
	}

	return w.bundles.CheckConsistency()
}

func (w *Workspace) execute(ctx context.Context, cmd history.Command) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.history.Execute(ctx, cmd)
}
