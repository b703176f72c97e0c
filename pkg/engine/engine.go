// Package engine runs bundles: every agent node of a bundle is paired with an
// output node and sent to the provider, one unit at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dukex/agentbundle/pkg/bundle"
	"github.com/dukex/agentbundle/pkg/eventbus"
	"github.com/dukex/agentbundle/pkg/events"
	"github.com/dukex/agentbundle/pkg/graph"
	"github.com/dukex/agentbundle/pkg/models"
	"github.com/dukex/agentbundle/pkg/otelhelper"
	"github.com/dukex/agentbundle/pkg/toolrunner"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultModel is used when neither the node nor its definition names a model.
const DefaultModel = "gpt-4o-mini"

type Engine struct {
	graph   *graph.Graph
	bundles *bundle.Manager
	client  toolrunner.Client
	logger  *slog.Logger

	publisher    eventbus.EventPublisher
	tracer       trace.Tracer
	newBackOff   func() backoff.BackOff
	defaultModel string
	now          func() time.Time

	// runMu serializes runs so that at most one bundle is running.
	runMu sync.Mutex
}

type Option func(*Engine)

func WithDefaultModel(model string) Option {
	return func(e *Engine) {
		if model != "" {
			e.defaultModel = model
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithBackOff sets the policy used between retries of rate limited calls.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(e *Engine) { e.newBackOff = fn }
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(g *graph.Graph, bundles *bundle.Manager, client toolrunner.Client, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		graph:        g,
		bundles:      bundles,
		client:       client,
		logger:       logger.With("module", "engine"),
		tracer:       otelhelper.DefaultTracer("agentbundle/engine"),
		defaultModel: DefaultModel,
		now:          time.Now,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Initialize hands the credentials to the provider client.
func (e *Engine) Initialize(ctx context.Context, credentials toolrunner.Credentials, metadata map[string]string) error {
	return e.client.Initialize(ctx, credentials, metadata)
}

// RunBundle runs every agent of the bundle in membership order. Unit failures
// are recorded on the returned run and on the nodes; only the guards and an
// unknown bundle return an error.
func (e *Engine) RunBundle(ctx context.Context, id models.BundleID) (*models.BundleRun, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	return e.runBundle(ctx, id)
}

// RunAllBundles runs the bundles one after the other in creation order. A
// bundle failing its guards does not stop the others.
func (e *Engine) RunAllBundles(ctx context.Context) ([]*models.BundleRun, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	var (
		runs []*models.BundleRun
		errs []error
	)

	for _, b := range e.bundles.List() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("run all bundles: %w", err))

			break
		}

		run, err := e.runBundle(ctx, b.ID)
		if err != nil {
			e.logger.WarnContext(ctx, "bundle not run", "bundle_id", b.ID, "error", err)
			errs = append(errs, err)

			continue
		}

		runs = append(runs, run)
	}

	return runs, errors.Join(errs...)
}

func (e *Engine) runBundle(ctx context.Context, id models.BundleID) (*models.BundleRun, error) {
	b, err := e.bundles.Get(id)
	if err != nil {
		return nil, err
	}

	agents, hasOutput := e.members(b)

	switch {
	case len(agents) == 0:
		return nil, fmt.Errorf("run bundle %d: %w", id, ErrMissingAgent)
	case !hasOutput:
		return nil, fmt.Errorf("run bundle %d: %w", id, ErrMissingOutput)
	}

	run := &models.BundleRun{
		ID:         uuid.NewString(),
		BundleID:   b.ID,
		BundleName: b.Name,
		StartedAt:  e.now(),
	}

	logger := e.logger.With("bundle_id", b.ID, "run_id", run.ID)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.run_bundle",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.Int64(otelhelper.BundleIDKey, int64(b.ID)),
		attribute.String(otelhelper.BundleNameKey, b.Name),
	)
	defer span.End()

	// State written after a cancellation must still land.
	record := context.WithoutCancel(ctx)

	if err := e.bundles.SetRunning(record, b.ID, true); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	defer func() {
		if err := e.bundles.SetRunning(record, b.ID, false); err != nil && !bundle.IsNotFound(err) {
			logger.ErrorContext(record, "failed to clear running flag", "error", err)
		}
	}()

	logger.InfoContext(ctx, "Bundle run started", "name", b.Name, "agents", len(agents))
	e.emit(record, b.ID, &events.BundleRunStarted{
		BaseEvent:  events.NewBaseEvent(events.BundleRunStartedEvent),
		RunID:      run.ID,
		BundleID:   b.ID,
		BundleName: b.Name,
		Agents:     len(agents),
	})

	for _, agent := range agents {
		unit := &models.RunUnit{AgentNodeID: agent.ID, State: models.UnitStateIdle}
		run.Units = append(run.Units, unit)

		if err := ctx.Err(); err != nil {
			e.fail(record, run, unit, newExecutionError(models.FailureCancelled, agent.ID,
				fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))))

			continue
		}

		e.runUnit(ctx, run, b, agent, unit)
	}

	run.FinishedAt = e.now()
	succeeded, failed := len(run.Succeeded()), len(run.Failed())

	span.SetAttributes(attribute.Int("agentbundle.run.succeeded", succeeded), attribute.Int("agentbundle.run.failed", failed))
	logger.InfoContext(ctx, "Bundle run finished", "succeeded", succeeded, "failed", failed)

	e.emit(record, b.ID, &events.BundleRunFinished{
		BaseEvent:  events.NewBaseEvent(events.BundleRunFinishedEvent),
		RunID:      run.ID,
		BundleID:   b.ID,
		BundleName: b.Name,
		Succeeded:  succeeded,
		Failed:     failed,
		Duration:   run.FinishedAt.Sub(run.StartedAt),
	})

	return run, nil
}

// members returns the agent nodes of b in membership order and whether b holds
// an output node.
func (e *Engine) members(b *models.Bundle) ([]*models.Node, bool) {
	var (
		agents    []*models.Node
		hasOutput bool
	)

	for _, id := range b.NodeIDs {
		node, err := e.graph.Node(id)
		if err != nil {
			continue
		}

		switch {
		case node.IsAgentNode():
			agents = append(agents, node)
		case node.IsOutputNode():
			hasOutput = true
		}
	}

	return agents, hasOutput
}

// resolveOutput returns the nearest output node agent reaches through an
// edge chain inside b. Ties go to edge insertion order.
func (e *Engine) resolveOutput(agentID string, b *models.Bundle) *models.Node {
	visited := map[string]bool{agentID: true}
	queue := []string{agentID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, n := range e.graph.Neighbors(current, graph.Outgoing) {
			if visited[n.ID] || !slices.Contains(b.NodeIDs, n.ID) {
				continue
			}

			if n.IsOutputNode() {
				return n
			}

			visited[n.ID] = true
			queue = append(queue, n.ID)
		}
	}

	return nil
}

func (e *Engine) runUnit(ctx context.Context, run *models.BundleRun, b *models.Bundle, agent *models.Node, unit *models.RunUnit) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.run_unit",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.AgentNodeIDKey, agent.ID),
	)
	defer span.End()

	record := context.WithoutCancel(ctx)
	logger := e.logger.With("bundle_id", b.ID, "run_id", run.ID, "node_id", agent.ID)

	output := e.resolveOutput(agent.ID, b)
	if output == nil {
		err := newExecutionError(models.FailureUnconnected, agent.ID, ErrUnconnected)
		otelhelper.SetError(span, err, attribute.String(otelhelper.FailureKindKey, string(err.Kind)))
		e.fail(record, run, unit, err)

		return
	}

	unit.OutputNodeID = output.ID
	span.SetAttributes(attribute.String(otelhelper.OutputNodeIDKey, output.ID))

	e.setNode(record, output.ID, func(n *models.Node) {
		n.Status = models.NodeStatusProcessing
		n.RuntimeOutput = ""
		n.Response = nil
		n.FailureKind = ""
		n.FailureReason = ""
	})
	e.transition(record, run, unit, models.UnitStateProcessing)

	req, buildErr := e.buildRequest(agent)
	if buildErr != nil {
		otelhelper.SetError(span, buildErr, attribute.String(otelhelper.FailureKindKey, string(buildErr.Kind)))
		e.fail(record, run, unit, buildErr)

		return
	}

	span.SetAttributes(attribute.String(otelhelper.ModelKey, req.model))
	logger.InfoContext(ctx, "Running unit", "output_node_id", output.ID, "model", req.model)

	completion, usedTools, err := e.complete(ctx, run, unit, req, logger)
	if err != nil {
		kind := toolrunner.Classify(err)
		otelhelper.SetError(span, err, attribute.String(otelhelper.FailureKindKey, string(kind)))
		e.fail(record, run, unit, newExecutionError(kind, agent.ID, err))

		return
	}

	envelope := &models.ResponseEnvelope{
		Bundle:    b.Name,
		Model:     req.model,
		UsedTools: usedTools,
		Timestamp: e.now(),
	}

	if req.config != nil {
		envelope.AgentTitle = req.config.Title
		envelope.AgentID = req.config.ID
	} else {
		envelope.AgentTitle = agent.Label
		envelope.AgentID = agent.ID
	}

	e.setNode(record, output.ID, func(n *models.Node) {
		n.Status = models.NodeStatusReady
		n.RuntimeOutput = completion.Content
		n.Response = envelope
	})

	unit.Output = completion.Content
	unit.Envelope = envelope
	e.transition(record, run, unit, models.UnitStateSucceeded)

	otelhelper.SetOK(span, attribute.Bool(otelhelper.ToolCallsKey, usedTools), attribute.Int(otelhelper.AttemptKey, unit.Attempts))
	logger.InfoContext(ctx, "Unit succeeded", "used_tools", usedTools, "attempts", unit.Attempts)
}

// complete runs the two-pass exchange, bounded by the definition's timeout
// and retried on rate limiting up to its retries count.
func (e *Engine) complete(
	ctx context.Context,
	run *models.BundleRun,
	unit *models.RunUnit,
	req *request,
	logger *slog.Logger,
) (*toolrunner.Completion, bool, error) {
	maxTries := 1

	if req.config != nil {
		if retries, ok := req.config.Retries.Int(); ok && retries > 0 {
			maxTries += retries
		}

		if seconds, ok := req.config.Timeout.Float(); ok && seconds > 0 {
			var cancel context.CancelFunc

			ctx, cancel = context.WithTimeout(ctx, time.Duration(seconds*float64(time.Second)))
			defer cancel()
		}
	}

	type result struct {
		completion *toolrunner.Completion
		usedTools  bool
	}

	operation := func() (result, error) {
		unit.Attempts++

		completion, usedTools, err := e.exchange(ctx, req)
		if err == nil {
			return result{completion, usedTools}, nil
		}

		kind := toolrunner.Classify(err)
		if !toolrunner.IsRetryable(kind) || unit.Attempts >= maxTries {
			return result{}, backoff.Permanent(err)
		}

		logger.WarnContext(ctx, "Retrying unit", "attempt", unit.Attempts, "max_tries", maxTries, "error", err)
		e.emitUnit(context.WithoutCancel(ctx), run, unit)

		return result{}, err
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(e.newBackOff()),
		backoff.WithMaxTries(uint(maxTries)), //nolint:gosec // maxTries is within [1, 11]
	)
	if err != nil {
		return nil, false, err
	}

	return res.completion, res.usedTools, nil
}

// exchange sends the prompt and, when the model asks for tools, runs them and
// sends their results back for the final answer.
func (e *Engine) exchange(ctx context.Context, req *request) (*toolrunner.Completion, bool, error) {
	tools, err := e.client.ListTools(ctx)
	if err != nil {
		return nil, false, err
	}

	first, err := e.client.Complete(ctx, req.messages, req.model, tools)
	if err != nil {
		return nil, false, err
	}

	if !first.HasToolCalls() {
		return first, false, nil
	}

	results, err := e.client.RunTools(ctx, first)
	if err != nil {
		return nil, true, err
	}

	messages := slices.Concat(req.messages, []toolrunner.Message{first.Message()}, results)

	final, err := e.client.Complete(ctx, messages, req.model, tools)
	if err != nil {
		return nil, true, err
	}

	return final, true, nil
}

// fail moves unit to Failed and records the failure on its output node, or on
// the agent node when no output was resolved.
func (e *Engine) fail(ctx context.Context, run *models.BundleRun, unit *models.RunUnit, err *ExecutionError) {
	unit.FailureKind = err.Kind
	unit.Error = err.Error()

	target := unit.OutputNodeID
	if target == "" {
		target = unit.AgentNodeID
	}

	e.setNode(ctx, target, func(n *models.Node) {
		n.Status = models.NodeStatusError
		n.FailureKind = err.Kind
		n.FailureReason = err.Err.Error()
	})

	e.logger.WarnContext(ctx, "Unit failed",
		"run_id", run.ID,
		"bundle_id", run.BundleID,
		"node_id", unit.AgentNodeID,
		"failure_kind", err.Kind,
		"error", err.Err)

	e.transition(ctx, run, unit, models.UnitStateFailed)
}

func (e *Engine) transition(ctx context.Context, run *models.BundleRun, unit *models.RunUnit, state models.UnitState) {
	unit.State = state
	e.emitUnit(ctx, run, unit)
}

func (e *Engine) emitUnit(ctx context.Context, run *models.BundleRun, unit *models.RunUnit) {
	e.emit(ctx, run.BundleID, &events.UnitStateChanged{
		BaseEvent:    events.NewBaseEvent(events.UnitStateChangedEvent),
		RunID:        run.ID,
		BundleID:     run.BundleID,
		AgentNodeID:  unit.AgentNodeID,
		OutputNodeID: unit.OutputNodeID,
		State:        unit.State,
		FailureKind:  unit.FailureKind,
		Error:        unit.Error,
		Attempt:      unit.Attempts,
	})
}

func (e *Engine) emit(ctx context.Context, id models.BundleID, ev eventbus.Event) {
	eventbus.Emit(ctx, e.publisher, e.logger, fmt.Sprintf("bundle-%d", id), ev)
}

func (e *Engine) setNode(ctx context.Context, id string, fn func(*models.Node)) {
	if _, err := e.graph.UpdateNode(ctx, id, fn); err != nil {
		e.logger.WarnContext(ctx, "failed to record node state", "node_id", id, "error", err)
	}
}
