package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/agentbundle/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CoversAllEventTypes(t *testing.T) {
	for _, eventType := range AllEventTypes {
		event, ok := New(eventType)
		require.True(t, ok, eventType)

		typed, ok := event.(interface{ GetType() EventType })
		require.True(t, ok, eventType)
		assert.Equal(t, eventType, typed.GetType())
	}

	_, ok := New("unknown.event")
	assert.False(t, ok)
}

func TestNewNodeAdded_CopiesNode(t *testing.T) {
	node := &models.Node{ID: "n1", Role: models.NodeRoleInput, Variables: map[string]any{"a": 1}}

	event := NewNodeAdded(node)
	node.Variables["a"] = 2

	assert.Equal(t, NodeAddedEvent, event.Type)
	assert.Equal(t, 1, event.Node.Variables["a"])
	assert.NotEmpty(t, event.ID)
}

func TestBundleDeleted_JSONSerialization(t *testing.T) {
	original := NewBundleDeleted(&models.Bundle{ID: 3, Name: "Bundle 3"}, DeleteReasonEmptied)

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"bundle.deleted"`)
	assert.Contains(t, string(jsonData), `"reason":"emptied"`)

	var deserialized BundleDeleted

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)
	assert.Equal(t, models.BundleID(3), deserialized.BundleID)
	assert.Equal(t, "Bundle 3", deserialized.Name)
}

func TestUnitStateChanged_JSONSerialization(t *testing.T) {
	original := &UnitStateChanged{
		BaseEvent:    NewBaseEvent(UnitStateChangedEvent),
		RunID:        "run-1",
		BundleID:     1,
		AgentNodeID:  "agent",
		OutputNodeID: "out",
		State:        models.UnitStateFailed,
		FailureKind:  models.FailureRateLimited,
		Error:        "slow down",
		Attempt:      2,
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)

	var deserialized UnitStateChanged

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)
	assert.Equal(t, original.State, deserialized.State)
	assert.Equal(t, original.FailureKind, deserialized.FailureKind)
	assert.WithinDuration(t, original.Timestamp, deserialized.Timestamp, time.Millisecond)
}
