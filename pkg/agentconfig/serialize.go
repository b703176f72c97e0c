package agentconfig

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/dukex/agentbundle/pkg/models"
	"gopkg.in/yaml.v3"
)

// KeyOrder is the order documented keys are written in. Unknown keys follow,
// sorted alphabetically.
var KeyOrder = []string{
	"id", "title", "description", "prompt", "vars",
	"bundle", "public", "toolhouse_id", "schedule",
	"model", "timeout", "retries", "version", "tags",
}

// Serialize renders config as YAML in KeyOrder. Fields holding their default
// value (bundle and toolhouse_id "default", public true) and empty optional
// fields are omitted.
func Serialize(config *models.AgentConfig) (string, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	add := func(key string, value any) error {
		valueNode, err := toNode(value)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", key, err)
		}

		root.Content = append(root.Content, scalar("!!str", key), valueNode)

		return nil
	}

	fields := []struct {
		key   string
		value any
		set   bool
	}{
		{"id", config.ID, true},
		{"title", config.Title, true},
		{"description", config.Description, config.Description != ""},
		{"prompt", config.Prompt, true},
		{"vars", varsOrEmpty(config.Vars), true},
		{"bundle", config.Bundle, config.Bundle != "" && config.Bundle != models.DefaultBundle},
		{"public", false, !config.IsPublic()},
		{"toolhouse_id", config.ToolhouseID, config.ToolhouseID != "" && config.ToolhouseID != models.DefaultToolhouseID},
		{"schedule", config.Schedule, config.Schedule != ""},
		{"model", config.Model, config.Model != ""},
		{"timeout", rawNumber(config.Timeout), config.Timeout != nil},
		{"retries", rawNumber(config.Retries), config.Retries != nil},
		{"version", config.Version, config.Version != ""},
		{"tags", config.Tags, len(config.Tags) > 0},
	}

	for _, f := range fields {
		if !f.set {
			continue
		}

		if err := add(f.key, f.value); err != nil {
			return "", err
		}
	}

	for _, key := range sortedKeys(config.Extra) {
		if slices.Contains(KeyOrder, key) {
			continue
		}

		if err := add(key, config.Extra[key]); err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(root); err != nil {
		return "", fmt.Errorf("serialize agent definition: %w", err)
	}

	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("serialize agent definition: %w", err)
	}

	return buf.String(), nil
}

// toNode builds a node for value. Maps are written with sorted keys and whole
// floats keep a fractional part so they decode back as floats.
func toNode(value any) (*yaml.Node, error) {
	switch v := value.(type) {
	case float64:
		return floatNode(v), nil
	case float32:
		return floatNode(float64(v)), nil
	case map[string]any:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

		for _, key := range sortedKeys(v) {
			child, err := toNode(v[key])
			if err != nil {
				return nil, err
			}

			node.Content = append(node.Content, scalar("!!str", key), child)
		}

		return node, nil
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}

		for _, item := range v {
			child, err := toNode(item)
			if err != nil {
				return nil, err
			}

			node.Content = append(node.Content, child)
		}

		return node, nil
	}

	node := &yaml.Node{}
	if err := node.Encode(value); err != nil {
		return nil, err
	}

	return node, nil
}

func floatNode(v float64) *yaml.Node {
	switch {
	case math.IsNaN(v):
		return scalar("!!float", ".nan")
	case math.IsInf(v, 1):
		return scalar("!!float", ".inf")
	case math.IsInf(v, -1):
		return scalar("!!float", "-.inf")
	}

	s := strconv.FormatFloat(v, 'g', -1, 64)
	if v == math.Trunc(v) && !bytes.ContainsAny([]byte(s), ".e") {
		s += ".0"
	}

	return scalar("!!float", s)
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func varsOrEmpty(vars map[string]any) map[string]any {
	if vars == nil {
		return map[string]any{}
	}

	return vars
}

func rawNumber(n *models.Number) any {
	if n == nil {
		return nil
	}

	return n.Raw
}
