// Package events defines the notifications emitted while a workspace graph,
// its bundles and their runs change.
package events

import (
	"time"

	"github.com/dukex/agentbundle/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic is the transport topic every workspace event is published on.
const Topic = "agentbundle.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Graph events.
	NodeAddedEvent   EventType = "node.added"
	NodeRemovedEvent EventType = "node.removed"
	NodeUpdatedEvent EventType = "node.updated"
	EdgeAddedEvent   EventType = "edge.added"
	EdgeRemovedEvent EventType = "edge.removed"

	// Bundle lifecycle events.
	BundleCreatedEvent EventType = "bundle.created"
	BundleUpdatedEvent EventType = "bundle.updated"
	BundleDeletedEvent EventType = "bundle.deleted"

	// Run events.
	BundleRunStartedEvent  EventType = "bundle.run.started"
	BundleRunFinishedEvent EventType = "bundle.run.finished"
	UnitStateChangedEvent  EventType = "unit.state.changed"
)

// AllEventTypes lists every event type in the order they are declared.
var AllEventTypes = []EventType{
	NodeAddedEvent, NodeRemovedEvent, NodeUpdatedEvent, EdgeAddedEvent, EdgeRemovedEvent,
	BundleCreatedEvent, BundleUpdatedEvent, BundleDeletedEvent,
	BundleRunStartedEvent, BundleRunFinishedEvent, UnitStateChangedEvent,
}

// Reasons a bundle is deleted.
const (
	DeleteReasonExplicit = "explicit"
	DeleteReasonEmptied  = "emptied"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}

type NodeAdded struct {
	BaseEvent

	Node models.Node `json:"node"`
}

func (n NodeAdded) GetType() EventType {
	return NodeAddedEvent
}

func NewNodeAdded(node *models.Node) *NodeAdded {
	return &NodeAdded{BaseEvent: NewBaseEvent(NodeAddedEvent), Node: *node.Clone()}
}

type NodeRemoved struct {
	BaseEvent

	NodeID string          `json:"node_id"`
	Role   models.NodeRole `json:"role"`
}

func (n NodeRemoved) GetType() EventType {
	return NodeRemovedEvent
}

func NewNodeRemoved(node *models.Node) *NodeRemoved {
	return &NodeRemoved{BaseEvent: NewBaseEvent(NodeRemovedEvent), NodeID: node.ID, Role: node.Role}
}

type NodeUpdated struct {
	BaseEvent

	Node models.Node `json:"node"`
}

func (n NodeUpdated) GetType() EventType {
	return NodeUpdatedEvent
}

func NewNodeUpdated(node *models.Node) *NodeUpdated {
	return &NodeUpdated{BaseEvent: NewBaseEvent(NodeUpdatedEvent), Node: *node.Clone()}
}

type EdgeAdded struct {
	BaseEvent

	Edge models.Edge `json:"edge"`
}

func (e EdgeAdded) GetType() EventType {
	return EdgeAddedEvent
}

func NewEdgeAdded(edge models.Edge) *EdgeAdded {
	return &EdgeAdded{BaseEvent: NewBaseEvent(EdgeAddedEvent), Edge: edge}
}

type EdgeRemoved struct {
	BaseEvent

	Edge models.Edge `json:"edge"`
}

func (e EdgeRemoved) GetType() EventType {
	return EdgeRemovedEvent
}

func NewEdgeRemoved(edge models.Edge) *EdgeRemoved {
	return &EdgeRemoved{BaseEvent: NewBaseEvent(EdgeRemovedEvent), Edge: edge}
}

type BundleCreated struct {
	BaseEvent

	Bundle models.Bundle `json:"bundle"`
}

func (b BundleCreated) GetType() EventType {
	return BundleCreatedEvent
}

func NewBundleCreated(bundle *models.Bundle) *BundleCreated {
	return &BundleCreated{BaseEvent: NewBaseEvent(BundleCreatedEvent), Bundle: *bundle.Clone()}
}

type BundleUpdated struct {
	BaseEvent

	Bundle models.Bundle `json:"bundle"`
}

func (b BundleUpdated) GetType() EventType {
	return BundleUpdatedEvent
}

func NewBundleUpdated(bundle *models.Bundle) *BundleUpdated {
	return &BundleUpdated{BaseEvent: NewBaseEvent(BundleUpdatedEvent), Bundle: *bundle.Clone()}
}

// BundleDeleted is emitted when a bundle is deleted explicitly or pruned
// because its last member left.
type BundleDeleted struct {
	BaseEvent

	BundleID models.BundleID `json:"bundle_id"`
	Name     string          `json:"name"`
	Reason   string          `json:"reason"`
}

func (b BundleDeleted) GetType() EventType {
	return BundleDeletedEvent
}

func NewBundleDeleted(bundle *models.Bundle, reason string) *BundleDeleted {
	return &BundleDeleted{
		BaseEvent: NewBaseEvent(BundleDeletedEvent),
		BundleID:  bundle.ID,
		Name:      bundle.Name,
		Reason:    reason,
	}
}

type BundleRunStarted struct {
	BaseEvent

	RunID      string          `json:"run_id"`
	BundleID   models.BundleID `json:"bundle_id"`
	BundleName string          `json:"bundle_name"`
	Agents     int             `json:"agents"`
}

func (b BundleRunStarted) GetType() EventType {
	return BundleRunStartedEvent
}

type BundleRunFinished struct {
	BaseEvent

	RunID      string          `json:"run_id"`
	BundleID   models.BundleID `json:"bundle_id"`
	BundleName string          `json:"bundle_name"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Duration   time.Duration   `json:"duration"`
}

func (b BundleRunFinished) GetType() EventType {
	return BundleRunFinishedEvent
}

// UnitStateChanged reports a transition of one run unit.
type UnitStateChanged struct {
	BaseEvent

	RunID        string             `json:"run_id"`
	BundleID     models.BundleID    `json:"bundle_id"`
	AgentNodeID  string             `json:"agent_node_id"`
	OutputNodeID string             `json:"output_node_id,omitempty"`
	State        models.UnitState   `json:"state"`
	FailureKind  models.FailureKind `json:"failure_kind,omitempty"`
	Error        string             `json:"error,omitempty"`
	Attempt      int                `json:"attempt,omitempty"`
}

func (u UnitStateChanged) GetType() EventType {
	return UnitStateChangedEvent
}

// New returns an empty event value for eventType, ready to be decoded into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case NodeAddedEvent:
		return &NodeAdded{}, true
	case NodeRemovedEvent:
		return &NodeRemoved{}, true
	case NodeUpdatedEvent:
		return &NodeUpdated{}, true
	case EdgeAddedEvent:
		return &EdgeAdded{}, true
	case EdgeRemovedEvent:
		return &EdgeRemoved{}, true
	case BundleCreatedEvent:
		return &BundleCreated{}, true
	case BundleUpdatedEvent:
		return &BundleUpdated{}, true
	case BundleDeletedEvent:
		return &BundleDeleted{}, true
	case BundleRunStartedEvent:
		return &BundleRunStarted{}, true
	case BundleRunFinishedEvent:
		return &BundleRunFinished{}, true
	case UnitStateChangedEvent:
		return &UnitStateChanged{}, true
	default:
		return nil, false
	}
}
