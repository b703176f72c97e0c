package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukex/agentbundle/pkg/bundle"
	"github.com/dukex/agentbundle/pkg/mocks"
	"github.com/dukex/agentbundle/pkg/models"
	"github.com/dukex/agentbundle/pkg/toolrunner"
	"github.com/dukex/agentbundle/pkg/web"
	"github.com/dukex/agentbundle/pkg/workspace"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const greeter = `id: greeter
title: Greeter
prompt: "Write a warm greeting for {name}"
vars:
  name: Ada
`

func setupTestApp(t *testing.T) (*fiber.App, *workspace.Workspace, *mocks.MockToolRunnerClient) {
	t.Helper()

	client := &mocks.MockToolRunnerClient{}

	ws, err := workspace.New(context.Background(), client, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.AssertExpectations(t)
		_ = ws.Close()
	})

	app := fiber.New()
	web.NewAPIHandlers(ws, validator.New(validator.WithRequiredStructEnabled())).Register(app)

	return app, ws, client
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		encoded, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if _, raw := body.(string); !raw && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(data, &v))

	return v
}

func TestAPIHandlers_UploadAgent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedType   string
		validate       func(t *testing.T, data []byte)
	}{
		{
			name:           "successful upload",
			body:           greeter,
			expectedStatus: http.StatusCreated,
			validate: func(t *testing.T, data []byte) {
				t.Helper()

				result := decode[workspace.UploadResult](t, data)
				assert.Equal(t, "Greeter", result.Agent.Label)
				assert.Equal(t, "Greeter Output", result.Output.Label)
				assert.Equal(t, result.Agent.ID, result.Edge.SourceNodeID)
			},
		},
		{
			name:           "malformed yaml",
			body:           "prompt: [oops",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "parse_error",
		},
		{
			name:           "invalid definition",
			body:           "id: x\ntitle: Missing prompt",
			expectedStatus: http.StatusUnprocessableEntity,
			expectedType:   "invalid_agent_config",
			validate: func(t *testing.T, data []byte) {
				t.Helper()

				problem := decode[map[string]any](t, data)
				assert.InDelta(t, float64(http.StatusUnprocessableEntity), problem["status"], 0)
				assert.Equal(t, "/agents", problem["instance"])
				assert.Contains(t, problem["errors"], "Missing required field: prompt")
				assert.Contains(t, problem["errors"], "ID must be between 3 and 100 characters")
			},
		},
		{
			name:           "empty body",
			body:           "",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _, _ := setupTestApp(t)

			status, data := do(t, app, http.MethodPost, "/agents", tt.body)
			assert.Equal(t, tt.expectedStatus, status)

			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, decode[map[string]any](t, data)["type"])
			}

			if tt.validate != nil {
				tt.validate(t, data)
			}
		})
	}
}

func TestAPIHandlers_GraphLifecycle(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	status, data := do(t, app, http.MethodPost, "/nodes/input", web.CreateInputNodeRequest{Prompt: "Say hi"})
	require.Equal(t, http.StatusCreated, status)
	input := decode[models.Node](t, data)
	assert.Equal(t, models.NodeRoleInput, input.Role)

	status, data = do(t, app, http.MethodPost, "/nodes/output", web.CreateOutputNodeRequest{Label: "Answer"})
	require.Equal(t, http.StatusCreated, status)
	output := decode[models.Node](t, data)

	status, _ = do(t, app, http.MethodPost, "/edges", web.ConnectRequest{Source: input.ID, Target: input.ID})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, http.MethodPost, "/edges", web.ConnectRequest{Source: input.ID, Target: "missing"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, app, http.MethodPost, "/edges", web.ConnectRequest{Source: input.ID, Target: output.ID})
	require.Equal(t, http.StatusCreated, status)

	status, data = do(t, app, http.MethodGet, "/graph", nil)
	require.Equal(t, http.StatusOK, status)

	snapshot := decode[workspace.Snapshot](t, data)
	assert.Len(t, snapshot.Nodes, 2)
	assert.Len(t, snapshot.Edges, 1)

	status, _ = do(t, app, http.MethodDelete, "/nodes/"+output.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, app, http.MethodGet, "/nodes/"+output.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, data = do(t, app, http.MethodPost, "/history/undo", nil)
	require.Equal(t, http.StatusOK, status)

	undone := decode[web.HistoryResponse](t, data)
	assert.Equal(t, "remove node "+output.ID, undone.Name)
	assert.True(t, undone.CanRedo)

	status, _ = do(t, app, http.MethodGet, "/nodes/"+output.ID, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAPIHandlers_History_Empty(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	for _, path := range []string{"/history/undo", "/history/redo"} {
		status, data := do(t, app, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "history_empty", decode[map[string]any](t, data)["type"])
	}
}

func TestAPIHandlers_Bundles(t *testing.T) {
	t.Parallel()

	app, ws, _ := setupTestApp(t)

	result, err := ws.UploadAgent(context.Background(), greeter)
	require.NoError(t, err)

	lonely, err := ws.AddOutputNode(context.Background(), "Lonely")
	require.NoError(t, err)

	tests := []struct {
		name           string
		body           any
		expectedStatus int
	}{
		{"no nodes", web.CreateBundleRequest{}, http.StatusBadRequest},
		{"no agent", web.CreateBundleRequest{NodeIDs: []string{lonely.ID}}, http.StatusBadRequest},
		{"unknown node", web.CreateBundleRequest{NodeIDs: []string{"ghost"}}, http.StatusNotFound},
		{"bad color", web.CreateBundleRequest{
			NodeIDs: []string{result.Agent.ID, result.Output.ID},
			Color:   &models.Color{Color: "blue"},
		}, http.StatusBadRequest},
		{"invalid json", "{", http.StatusBadRequest},
	}

	for _, tt := range tests {
		status, _ := do(t, app, http.MethodPost, "/bundles", tt.body)
		assert.Equal(t, tt.expectedStatus, status, tt.name)
	}

	status, data := do(t, app, http.MethodPost, "/bundles", web.CreateBundleRequest{
		NodeIDs: []string{result.Agent.ID, result.Output.ID},
		Name:    "morning",
	})
	require.Equal(t, http.StatusCreated, status)

	created := decode[models.Bundle](t, data)
	assert.Equal(t, "morning", created.Name)

	name := "evening"
	status, data = do(t, app, http.MethodPatch, fmt.Sprintf("/bundles/%d", created.ID), web.UpdateBundleRequest{Name: &name})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "evening", decode[models.Bundle](t, data).Name)

	status, data = do(t, app, http.MethodGet, "/bundles", nil)
	require.Equal(t, http.StatusOK, status)

	listed := decode[map[string]any](t, data)
	assert.EqualValues(t, 1, listed["total_count"])

	bundles := listed["bundles"].([]any)
	assert.Equal(t, true, bundles[0].(map[string]any)["runnable"])

	status, _ = do(t, app, http.MethodPatch, "/bundles/abc", web.UpdateBundleRequest{Name: &name})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, http.MethodDelete, "/bundles/99", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, app, http.MethodDelete, fmt.Sprintf("/bundles/%d", created.ID), nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestAPIHandlers_RunBundle(t *testing.T) {
	t.Parallel()

	app, ws, client := setupTestApp(t)
	ctx := context.Background()

	result, err := ws.UploadAgent(ctx, greeter)
	require.NoError(t, err)

	status, data := do(t, app, http.MethodPost, "/bundles", web.CreateBundleRequest{
		NodeIDs: []string{result.Agent.ID, result.Output.ID},
	})
	require.Equal(t, http.StatusCreated, status)

	created := decode[models.Bundle](t, data)
	path := fmt.Sprintf("/bundles/%d/run", created.ID)

	status, _ = do(t, app, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, status)

	client.On("ListTools", mock.Anything).Return([]toolrunner.Tool{}, nil).Once()
	client.On("Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&toolrunner.Completion{Content: "Hello, Ada!"}, nil).Once()

	status, data = do(t, app, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, status)

	run := decode[models.BundleRun](t, data)
	require.Len(t, run.Units, 1)
	assert.Equal(t, models.UnitStateSucceeded, run.Units[0].State)
	assert.Equal(t, "Hello, Ada!", run.Units[0].Output)

	status, data = do(t, app, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, run.ID, decode[models.BundleRun](t, data).ID)

	status, data = do(t, app, http.MethodGet, "/logs", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, decode[web.LogsResponse](t, data).Logs)
}

func TestAPIHandlers_RunAllBundles_ReportsSkipped(t *testing.T) {
	t.Parallel()

	app, ws, _ := setupTestApp(t)
	ctx := context.Background()

	result, err := ws.UploadAgent(ctx, greeter)
	require.NoError(t, err)

	_, err = ws.CreateBundle(ctx, []string{result.Agent.ID, result.Output.ID}, bundle.CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, ws.RemoveNode(ctx, result.Output.ID))

	status, data := do(t, app, http.MethodPost, "/run", nil)
	require.Equal(t, http.StatusOK, status)

	response := decode[web.RunAllResponse](t, data)
	assert.Empty(t, response.Runs)
	require.Len(t, response.Errors, 1)
	assert.Contains(t, response.Errors[0], "bundle has no output node")
}

func TestAPIHandlers_AgentDefinition(t *testing.T) {
	t.Parallel()

	app, ws, _ := setupTestApp(t)

	result, err := ws.UploadAgent(context.Background(), greeter)
	require.NoError(t, err)

	status, data := do(t, app, http.MethodPut, "/nodes/"+result.Agent.ID+"/variables",
		web.SetVariablesRequest{Variables: map[string]any{"name": "Grace"}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Grace", decode[models.Node](t, data).Variables["name"])

	status, data = do(t, app, http.MethodGet, "/nodes/"+result.Agent.ID+"/export", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), "name: Grace")

	status, _ = do(t, app, http.MethodGet, "/nodes/"+result.Output.ID+"/export", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	updated := strings.Replace(greeter, "title: Greeter", "title: Friendly Greeter", 1)
	status, data = do(t, app, http.MethodPut, "/nodes/"+result.Agent.ID+"/agent", updated)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), "Friendly Greeter")
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	status, data := do(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", decode[map[string]any](t, data)["status"])
}
