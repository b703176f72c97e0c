package workspace_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dukex/agentbundle/pkg/agentconfig"
	"github.com/dukex/agentbundle/pkg/bundle"
	"github.com/dukex/agentbundle/pkg/engine"
	"github.com/dukex/agentbundle/pkg/graph"
	"github.com/dukex/agentbundle/pkg/history"
	"github.com/dukex/agentbundle/pkg/mocks"
	"github.com/dukex/agentbundle/pkg/models"
	"github.com/dukex/agentbundle/pkg/toolrunner"
	"github.com/dukex/agentbundle/pkg/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const summarizer = `id: summarizer
title: Summarizer
description: Summarizes text for busy readers.
prompt: "Summarize the following text in {length} sentences: {text}"
vars:
  length: 3
  text: ""
`

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func newWorkspace(t *testing.T) (*workspace.Workspace, *mocks.MockToolRunnerClient) {
	t.Helper()

	client := &mocks.MockToolRunnerClient{}

	w, err := workspace.New(context.Background(), client, nil,
		workspace.WithClock(func() time.Time { return fixedNow }),
		workspace.WithEngineOptions(
			engine.WithClock(func() time.Time { return fixedNow }),
			engine.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.AssertExpectations(t)
		assert.NoError(t, w.Close())
	})

	return w, client
}

func upload(t *testing.T, w *workspace.Workspace, raw string) *workspace.UploadResult {
	t.Helper()

	result, err := w.UploadAgent(context.Background(), raw)
	require.NoError(t, err)

	return result
}

func TestUploadAgent(t *testing.T) {
	t.Parallel()

	w, _ := newWorkspace(t)

	result := upload(t, w, summarizer)

	assert.Equal(t, models.NodeRoleYamlAgent, result.Agent.Role)
	assert.Equal(t, "Summarizer", result.Agent.Label)
	assert.Equal(t, "summarizer", result.Agent.Agent.ID)
	assert.Equal(t, models.NodeRoleOutput, result.Output.Role)
	assert.Equal(t, "Summarizer Output", result.Output.Label)
	assert.Equal(t, result.Agent.ID, result.Edge.SourceNodeID)
	assert.Equal(t, result.Output.ID, result.Edge.TargetNodeID)
	assert.Len(t, result.Variables, 2)
	assert.Empty(t, result.Warnings)

	snapshot := w.Snapshot()
	assert.Len(t, snapshot.Nodes, 2)
	assert.Len(t, snapshot.Edges, 1)
	assert.Empty(t, snapshot.Bundles)
	assert.True(t, w.CanUndo())
	require.NoError(t, w.CheckConsistency())
}

func TestUploadAgent_Rejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, err error)
	}{
		{
			name: "invalid yaml",
			raw:  "id: [unclosed",
			check: func(t *testing.T, err error) {
				assert.True(t, agentconfig.IsParseError(err))
			},
		},
		{
			name: "missing fields",
			raw:  "description: nothing else",
			check: func(t *testing.T, err error) {
				result, ok := workspace.IsConfigError(err)
				require.True(t, ok)
				assert.Contains(t, result.Errors, "Missing required field: id")
				assert.ErrorIs(t, err, agentconfig.ErrInvalidConfig)
			},
		},
		{
			name: "undefined variable",
			raw:  "id: broken\ntitle: Broken\nprompt: Tell me about {topic} please",
			check: func(t *testing.T, err error) {
				result, ok := workspace.IsConfigError(err)
				require.True(t, ok)
				assert.Contains(t, result.Errors, `Variable "topic" used in prompt but not defined in vars`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w, _ := newWorkspace(t)

			_, err := w.UploadAgent(context.Background(), tt.raw)
			require.Error(t, err)
			tt.check(t, err)

			assert.Empty(t, w.Snapshot().Nodes)
			assert.False(t, w.CanUndo())
		})
	}
}

func TestUploadAgent_UndoRedo(t *testing.T) {
	t.Parallel()

	w, _ := newWorkspace(t)
	ctx := context.Background()

	result := upload(t, w, summarizer)

	name, err := w.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "upload agent summarizer", name)
	assert.Empty(t, w.Snapshot().Nodes)
	assert.Empty(t, w.Snapshot().Edges)

	_, err = w.Redo(ctx)
	require.NoError(t, err)

	snapshot := w.Snapshot()
	require.Len(t, snapshot.Nodes, 2)
	assert.Equal(t, result.Agent.ID, snapshot.Nodes[0].ID)
	assert.Equal(t, []models.Edge{result.Edge}, snapshot.Edges)

	_, err = w.Redo(ctx)
	assert.ErrorIs(t, err, history.ErrNothingToRedo)
}

func TestRemoveNode_UndoRestoresEdgesAndBundle(t *testing.T) {
	t.Parallel()

	w, _ := newWorkspace(t)
	ctx := context.Background()

	result := upload(t, w, summarizer)

	b, err := w.CreateBundle(ctx, []string{result.Agent.ID, result.Output.ID}, bundle.CreateOptions{Name: "daily"})
	require.NoError(t, err)

	require.NoError(t, w.RemoveNode(ctx, result.Output.ID))

	snapshot := w.Snapshot()
	assert.Len(t, snapshot.Nodes, 1)
	assert.Empty(t, snapshot.Edges)
	require.Len(t, snapshot.Bundles, 1)
	assert.Equal(t, []string{result.Agent.ID}, snapshot.Bundles[0].NodeIDs)

	_, err = w.Undo(ctx)
	require.NoError(t, err)

	snapshot = w.Snapshot()
	assert.Len(t, snapshot.Nodes, 2)
	assert.Equal(t, []models.Edge{result.Edge}, snapshot.Edges)

	restored, err := w.Bundle(b.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{result.Agent.ID, result.Output.ID}, restored.NodeIDs)

	output, err := w.Node(result.Output.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, output.BundleID)
	require.NoError(t, w.CheckConsistency())
}

func TestRemoveNode_Unknown(t *testing.T) {
	t.Parallel()

	w, _ := newWorkspace(t)

	err := w.RemoveNode(context.Background(), "missing")
	assert.True(t, graph.IsNotFound(err))
	assert.False(t, w.CanUndo())
}

func TestCreateBundle_UndoGivesNodesBack(t *testing.T) {
	t.Parallel()

	w, _ := newWorkspace(t)
	ctx := context.Background()

	first := upload(t, w, summarizer)
	second := upload(t, w, summarizer)

	original, err := w.CreateBundle(ctx, []string{first.Agent.ID, first.Output.ID, second.Agent.ID}, bundle.CreateOptions{})
	require.NoError(t, err)

	moved, err := w.CreateBundle(ctx, []string{second.Agent.ID, second.Output.ID}, bundle.CreateOptions{Name: "second"})
	require.NoError(t, err)

	shrunk, err := w.Bundle(original.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{first.Agent.ID, first.Output.ID}, shrunk.NodeIDs)

	_, err = w.Undo(ctx)
	require.NoError(t, err)

	_, err = w.Bundle(moved.ID)
	assert.True(t, bundle.IsNotFound(err))

	back, err := w.Bundle(original.ID)
	require.NoError(t, err)
	assert.Equal(t, original.NodeIDs, back.NodeIDs)

	_, err = w.Redo(ctx)
	require.NoError(t, err)

	again, err := w.Bundle(moved.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", again.Name)
	require.NoError(t, w.CheckConsistency())
}

func TestBundleEdits_Undo(t *testing.T) {
	t.Parallel()

	w, _ := newWorkspace(t)
	ctx := context.Background()

	result := upload(t, w, summarizer)

	b, err := w.CreateBundle(ctx, []string{result.Agent.ID, result.Output.ID}, bundle.CreateOptions{Name: "before"})
	require.NoError(t, err)

	renamed, err := w.RenameBundle(ctx, b.ID, "after")
	require.NoError(t, err)
	assert.Equal(t, "after", renamed.Name)

	color := models.Color{Name: "Ink", Color: "#111111", Light: "#eeeeee"}
	recolored, err := w.RecolorBundle(ctx, b.ID, color)
	require.NoError(t, err)
	assert.Equal(t, color, recolored.Color)

	require.NoError(t, w.DeleteBundle(ctx, b.ID))
	assert.Empty(t, w.Bundles())

	for range 3 {
		_, err = w.Undo(ctx)
		require.NoError(t, err)
	}

	restored, err := w.Bundle(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", restored.Name)
	assert.Equal(t, b.Color, restored.Color)
}

func TestSetVariables(t *testing.T) {
	t.Parallel()

	w, _ := newWorkspace(t)
	ctx := context.Background()

	result := upload(t, w, summarizer)

	node, err := w.SetVariables(ctx, result.Agent.ID, map[string]any{"text": "Go is fun."})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "Go is fun."}, node.Variables)

	_, err = w.SetVariables(ctx, result.Output.ID, map[string]any{"x": 1})
	assert.ErrorIs(t, err, workspace.ErrRoleMismatch)

	_, err = w.Undo(ctx)
	require.NoError(t, err)

	node, err = w.Node(result.Agent.ID)
	require.NoError(t, err)
	assert.Empty(t, node.Variables)
}

func TestUpdateAgentConfig(t *testing.T) {
	t.Parallel()

	w, _ := newWorkspace(t)
	ctx := context.Background()

	result := upload(t, w, summarizer)

	updated := strings.Replace(summarizer, "title: Summarizer", "title: Short Summarizer", 1)
	updated += "model: mystery-model\n"

	node, warnings, err := w.UpdateAgentConfig(ctx, result.Agent.ID, updated)
	require.NoError(t, err)
	assert.Equal(t, "Short Summarizer", node.Label)
	assert.Equal(t, "mystery-model", node.Agent.Model)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `Model "mystery-model" may not be supported`)

	_, _, err = w.UpdateAgentConfig(ctx, result.Output.ID, summarizer)
	assert.ErrorIs(t, err, workspace.ErrRoleMismatch)

	_, _, err = w.UpdateAgentConfig(ctx, result.Agent.ID, "title: no id")
	_, ok := workspace.IsConfigError(err)
	assert.True(t, ok)

	_, err = w.Undo(ctx)
	require.NoError(t, err)

	node, err = w.Node(result.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "Summarizer", node.Label)
	assert.Empty(t, node.Agent.Model)
}

func TestExportAgent(t *testing.T) {
	t.Parallel()

	w, _ := newWorkspace(t)
	ctx := context.Background()

	result := upload(t, w, summarizer)

	_, err := w.SetVariables(ctx, result.Agent.ID, map[string]any{"text": "Go is fun."})
	require.NoError(t, err)

	exported, err := w.ExportAgent(result.Agent.ID)
	require.NoError(t, err)

	config, err := agentconfig.Parse(exported)
	require.NoError(t, err)
	assert.Equal(t, "summarizer", config.ID)
	assert.Equal(t, "Go is fun.", config.Vars["text"])
	assert.EqualValues(t, 3, config.Vars["length"])

	_, err = w.ExportAgent(result.Output.ID)
	assert.ErrorIs(t, err, workspace.ErrNotAgentDefinition)
}

func TestRunBundle(t *testing.T) {
	t.Parallel()

	w, client := newWorkspace(t)
	ctx := context.Background()

	result := upload(t, w, summarizer)

	_, err := w.SetVariables(ctx, result.Agent.ID, map[string]any{"text": "Go is fun."})
	require.NoError(t, err)

	b, err := w.CreateBundle(ctx, []string{result.Agent.ID, result.Output.ID}, bundle.CreateOptions{Name: "daily"})
	require.NoError(t, err)

	runnable, err := w.IsRunnable(b.ID)
	require.NoError(t, err)
	assert.True(t, runnable)

	client.On("ListTools", mock.Anything).Return([]toolrunner.Tool{}, nil).Once()
	client.On("Complete", mock.Anything,
		mock.MatchedBy(func(msgs []toolrunner.Message) bool {
			return len(msgs) == 2 &&
				msgs[0].Content == "Summarizes text for busy readers." &&
				msgs[1].Content == "Summarize the following text in 3 sentences: Go is fun."
		}),
		engine.DefaultModel, []toolrunner.Tool{},
	).Return(&toolrunner.Completion{Content: "Go is fun."}, nil).Once()

	run, err := w.RunBundle(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, run.Succeeded(), 1)

	output, err := w.Node(result.Output.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusReady, output.Status)
	assert.Equal(t, "Go is fun.", output.RuntimeOutput)
	assert.Equal(t, "Summarizer", output.Response.AgentTitle)
	assert.Equal(t, "daily", output.Response.Bundle)

	last, ok := w.LastRun(b.ID)
	require.True(t, ok)
	assert.Equal(t, run.ID, last.ID)

	logs := w.Logs()
	assert.Contains(t, logs, `[09:30:00] Bundle "daily" finished: 1 succeeded, 0 failed`)
	assert.Contains(t, logs, `[09:30:00] Running bundle "daily" with 1 agents`)
}

func TestRunBundle_GuardFailureIsLogged(t *testing.T) {
	t.Parallel()

	w, _ := newWorkspace(t)
	ctx := context.Background()

	result := upload(t, w, summarizer)

	b, err := w.CreateBundle(ctx, []string{result.Agent.ID, result.Output.ID}, bundle.CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, w.RemoveNode(ctx, result.Agent.ID))

	_, err = w.RunBundle(ctx, b.ID)
	require.ErrorIs(t, err, engine.ErrMissingAgent)

	_, ok := w.LastRun(b.ID)
	assert.False(t, ok)
	assert.True(t, strings.HasPrefix(w.Logs()[0], "[09:30:00] Cannot run bundle 1"))
}

func TestRunAllBundles(t *testing.T) {
	t.Parallel()

	w, client := newWorkspace(t)
	ctx := context.Background()

	input, err := w.AddInputNode(ctx, "Say hello", "gpt-4o")
	require.NoError(t, err)

	output, err := w.AddOutputNode(ctx, "Greeting")
	require.NoError(t, err)

	_, err = w.Connect(ctx, input.ID, output.ID)
	require.NoError(t, err)

	first, err := w.CreateBundle(ctx, []string{input.ID, output.ID}, bundle.CreateOptions{})
	require.NoError(t, err)

	broken := upload(t, w, summarizer)

	_, err = w.CreateBundle(ctx, []string{broken.Agent.ID, broken.Output.ID}, bundle.CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, w.RemoveNode(ctx, broken.Agent.ID))

	client.On("ListTools", mock.Anything).Return([]toolrunner.Tool{}, nil).Once()
	client.On("Complete", mock.Anything, mock.Anything, "gpt-4o", []toolrunner.Tool{}).
		Return(&toolrunner.Completion{Content: "hello"}, nil).Once()

	runs, err := w.RunAllBundles(ctx)
	require.ErrorIs(t, err, engine.ErrMissingAgent)
	require.Len(t, runs, 1)
	assert.Equal(t, first.ID, runs[0].BundleID)

	_, ok := w.LastRun(first.ID)
	assert.True(t, ok)
	assert.Equal(t, "[09:30:00] Completed 1 bundle runs", w.Logs()[0])
}

func TestInitialize(t *testing.T) {
	t.Parallel()

	w, client := newWorkspace(t)
	creds := toolrunner.Credentials{ProviderKey: "sk-test"}

	client.On("Initialize", mock.Anything, creds, map[string]string{"id": workspace.SessionID}).
		Return(errors.New("bad key")).Once()

	err := w.Initialize(context.Background(), creds)
	require.Error(t, err)
	assert.Equal(t, "[09:30:00] Failed to initialize provider: bad key", w.Logs()[0])
}
