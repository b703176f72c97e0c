package workspace

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dukex/agentbundle/pkg/events"
	"github.com/dukex/agentbundle/pkg/models"
)

// DefaultLogLimit bounds the debug log.
const DefaultLogLimit = 200

// DebugLog is the human readable trace of what happened in a workspace,
// newest line first.
type DebugLog struct {
	mu      sync.Mutex
	limit   int
	now     func() time.Time
	entries []string
}

func NewDebugLog(limit int, now func() time.Time) *DebugLog {
	if limit <= 0 {
		limit = DefaultLogLimit
	}

	if now == nil {
		now = time.Now
	}

	return &DebugLog{limit: limit, now: now}
}

// Add prepends message stamped with the UTC wall clock time.
func (l *DebugLog) Add(message string) {
	line := fmt.Sprintf("[%s] %s", l.now().UTC().Format(time.TimeOnly), message)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = slices.Insert(l.entries, 0, line)
	if len(l.entries) > l.limit {
		l.entries = l.entries[:l.limit]
	}
}

func (l *DebugLog) Addf(format string, args ...any) {
	l.Add(fmt.Sprintf(format, args...))
}

// Entries returns the lines, newest first.
func (l *DebugLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return slices.Clone(l.entries)
}

func (l *DebugLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
}

// Handle is an event handler turning workspace events into log lines.
func (l *DebugLog) Handle(_ context.Context, event any) error {
	if message, ok := describeEvent(event); ok {
		l.Add(message)
	}

	return nil
}

func describeEvent(event any) (string, bool) {
	switch e := event.(type) {
	case *events.NodeAdded:
		return fmt.Sprintf("Added %s node %s", e.Node.Role, nodeName(&e.Node)), true
	case *events.NodeRemoved:
		return fmt.Sprintf("Removed %s node %s", e.Role, e.NodeID), true
	case *events.EdgeAdded:
		return fmt.Sprintf("Connected %s -> %s", e.Edge.SourceNodeID, e.Edge.TargetNodeID), true
	case *events.EdgeRemoved:
		return fmt.Sprintf("Disconnected %s -> %s", e.Edge.SourceNodeID, e.Edge.TargetNodeID), true
	case *events.BundleCreated:
		return fmt.Sprintf("Created bundle %q with %d nodes", e.Bundle.Name, len(e.Bundle.NodeIDs)), true
	case *events.BundleDeleted:
		if e.Reason == events.DeleteReasonEmptied {
			return fmt.Sprintf("Deleted bundle %q: no nodes left", e.Name), true
		}

		return fmt.Sprintf("Deleted bundle %q", e.Name), true
	case *events.BundleRunStarted:
		return fmt.Sprintf("Running bundle %q with %d agents", e.BundleName, e.Agents), true
	case *events.BundleRunFinished:
		return fmt.Sprintf("Bundle %q finished: %d succeeded, %d failed", e.BundleName, e.Succeeded, e.Failed), true
	case *events.UnitStateChanged:
		return describeUnit(e), true
	default:
		return "", false
	}
}

func describeUnit(e *events.UnitStateChanged) string {
	switch e.State {
	case models.UnitStateProcessing:
		if e.Attempt > 0 {
			return fmt.Sprintf("Agent %s rate limited, retrying (attempt %d)", e.AgentNodeID, e.Attempt+1)
		}

		return fmt.Sprintf("Processing agent %s -> %s", e.AgentNodeID, e.OutputNodeID)
	case models.UnitStateSucceeded:
		return fmt.Sprintf("Agent %s succeeded", e.AgentNodeID)
	case models.UnitStateFailed:
		return fmt.Sprintf("Agent %s failed (%s): %s", e.AgentNodeID, e.FailureKind, e.Error)
	default:
		return fmt.Sprintf("Agent %s is %s", e.AgentNodeID, e.State)
	}
}

func nodeName(n *models.Node) string {
	if n.Label != "" {
		return fmt.Sprintf("%q (%s)", n.Label, n.ID)
	}

	return n.ID
}
