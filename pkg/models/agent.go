package models

import (
	"encoding/json"
	"maps"
	"math"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied to optional AgentConfig fields.
const (
	DefaultBundle      = "default"
	DefaultToolhouseID = "default"
)

// AgentConfig is a declarative agent definition.
type AgentConfig struct {
	ID          string         `yaml:"id"                     json:"id"                     validate:"required"`
	Title       string         `yaml:"title"                  json:"title"                  validate:"required,max=200"`
	Description string         `yaml:"description,omitempty"  json:"description,omitempty"`
	Prompt      string         `yaml:"prompt"                 json:"prompt"                 validate:"required"`
	Vars        map[string]any `yaml:"vars,omitempty"         json:"vars"`
	Bundle      string         `yaml:"bundle,omitempty"       json:"bundle,omitempty"`
	Public      *bool          `yaml:"public,omitempty"       json:"public,omitempty"`
	ToolhouseID string         `yaml:"toolhouse_id,omitempty" json:"toolhouse_id,omitempty"`
	Schedule    string         `yaml:"schedule,omitempty"     json:"schedule,omitempty"     validate:"omitempty,schedule"`
	Model       string         `yaml:"model,omitempty"        json:"model,omitempty"`
	Timeout     *Number        `yaml:"timeout,omitempty"      json:"timeout,omitempty"`
	Retries     *Number        `yaml:"retries,omitempty"      json:"retries,omitempty"`
	Version     string         `yaml:"version,omitempty"      json:"version,omitempty"`
	Tags        []string       `yaml:"tags,omitempty"         json:"tags,omitempty"`

	// Extra holds keys outside the documented schema so they survive a round trip.
	Extra map[string]any `yaml:",inline" json:"extra,omitempty"`
}

// IsPublic returns the effective value of Public.
func (c *AgentConfig) IsPublic() bool {
	return c.Public == nil || *c.Public
}

// Clone returns a copy of c. Nested values inside Vars and Extra are shared.
func (c *AgentConfig) Clone() *AgentConfig {
	if c == nil {
		return nil
	}

	cp := *c
	cp.Vars = maps.Clone(c.Vars)
	cp.Extra = maps.Clone(c.Extra)
	cp.Tags = slices.Clone(c.Tags)

	if c.Public != nil {
		v := *c.Public
		cp.Public = &v
	}

	cp.Timeout = c.Timeout.Clone()
	cp.Retries = c.Retries.Clone()

	return &cp
}

// Number is a numeric definition field. It holds the value exactly as
// written, so fractions and non-numeric values reach validation intact.
type Number struct {
	Raw any
}

// NewNumber wraps v.
func NewNumber(v any) *Number {
	return &Number{Raw: v}
}

// Float reports the value as a float64, or false when it is not a number.
func (n *Number) Float() (float64, bool) {
	if n == nil {
		return 0, false
	}

	switch v := n.Raw.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	default:
		return 0, false
	}
}

// Int reports the value as an int, or false when it is not a whole number.
func (n *Number) Int() (int, bool) {
	f, ok := n.Float()
	if !ok || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}

	return int(f), true
}

// Clone returns a copy of n.
func (n *Number) Clone() *Number {
	if n == nil {
		return nil
	}

	cp := *n

	return &cp
}

func (n *Number) UnmarshalYAML(value *yaml.Node) error {
	return value.Decode(&n.Raw)
}

func (n Number) MarshalYAML() (any, error) {
	return n.Raw, nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Raw)
}

func (n *Number) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &n.Raw)
}

// VariableType is the inferred type of a prompt variable value.
type VariableType string

const (
	VariableTypeString        VariableType = "string"
	VariableTypeNumber        VariableType = "number"
	VariableTypeInteger       VariableType = "integer"
	VariableTypeBoolean       VariableType = "boolean"
	VariableTypeArray         VariableType = "array"
	VariableTypeObject        VariableType = "object"
	VariableTypeEmail         VariableType = "email"
	VariableTypeURL           VariableType = "url"
	VariableTypeDate          VariableType = "date"
	VariableTypeNumericString VariableType = "numeric_string"
)

// Variable is derived from an AgentConfig and a scan of its prompt.
type Variable struct {
	Name        string       `json:"name"`
	Value       any          `json:"value"`
	Type        VariableType `json:"type"`
	Required    bool         `json:"required"`
	Undefined   bool         `json:"undefined,omitempty"`
	Description string       `json:"description"`
}
