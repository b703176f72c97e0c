package engine

import (
	"fmt"
	"maps"
	"strings"

	"github.com/dukex/agentbundle/pkg/agentconfig"
	"github.com/dukex/agentbundle/pkg/models"
	"github.com/dukex/agentbundle/pkg/toolrunner"
)

// request is what one unit sends to the provider.
type request struct {
	messages []toolrunner.Message
	model    string
	config   *models.AgentConfig
}

// buildRequest resolves the prompt and model of agent. Node variables
// override the definition's vars key by key. Input nodes are free-form: their
// variables are substituted but placeholders left over are not an error.
func (e *Engine) buildRequest(agent *models.Node) (*request, *ExecutionError) {
	switch agent.Role {
	case models.NodeRoleYamlAgent:
		return e.yamlAgentRequest(agent)
	case models.NodeRoleInput:
		return e.inputRequest(agent)
	default:
		return nil, newExecutionError(models.FailureMissingConfig, agent.ID, fmt.Errorf("node role %q cannot run", agent.Role))
	}
}

func (e *Engine) yamlAgentRequest(agent *models.Node) (*request, *ExecutionError) {
	if agent.Agent == nil {
		return nil, newExecutionError(models.FailureMissingConfig, agent.ID, ErrMissingConfig)
	}

	config := agent.Agent.Clone()
	config.Vars = mergeVars(config.Vars, agent.Variables)

	if missing := unresolved(config); len(missing) > 0 {
		return nil, newExecutionError(models.FailureMissingVariable, agent.ID,
			fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(missing, ", ")))
	}

	var messages []toolrunner.Message
	if config.Description != "" {
		messages = append(messages, toolrunner.SystemMessage(config.Description))
	}

	messages = append(messages, toolrunner.UserMessage(agentconfig.Substitute(config.Prompt, config.Vars)))

	return &request{
		messages: messages,
		model:    e.resolveModel(agent.Model, config.Model),
		config:   config,
	}, nil
}

func (e *Engine) inputRequest(agent *models.Node) (*request, *ExecutionError) {
	if strings.TrimSpace(agent.PromptTemplate) == "" {
		return nil, newExecutionError(models.FailureMissingConfig, agent.ID, fmt.Errorf("%w: empty prompt", ErrMissingConfig))
	}

	return &request{
		messages: []toolrunner.Message{toolrunner.UserMessage(agentconfig.Substitute(agent.PromptTemplate, agent.Variables))},
		model:    e.resolveModel(agent.Model, ""),
	}, nil
}

// resolveModel picks the node model, then the definition model, then the
// engine default.
func (e *Engine) resolveModel(nodeModel, configModel string) string {
	switch {
	case nodeModel != "":
		return nodeModel
	case configModel != "":
		return configModel
	default:
		return e.defaultModel
	}
}

func mergeVars(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	maps.Copy(merged, base)
	maps.Copy(merged, override)

	return merged
}

// unresolved lists the required variables of config that have no usable value.
func unresolved(config *models.AgentConfig) []string {
	var missing []string

	for _, v := range agentconfig.ExtractVariables(config) {
		if v.Required && isUnset(config.Vars, v.Name) {
			missing = append(missing, v.Name)
		}
	}

	return missing
}

func isUnset(vars map[string]any, name string) bool {
	value, ok := vars[name]
	if !ok || value == nil {
		return true
	}

	s, isString := value.(string)

	return isString && s == ""
}
