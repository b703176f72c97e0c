package workspace

import (
	"errors"
	"fmt"

	"github.com/dukex/agentbundle/pkg/agentconfig"
	"github.com/dukex/agentbundle/pkg/models"
)

var (
	ErrNotAgentDefinition = errors.New("node has no agent definition")
	ErrRoleMismatch       = errors.New("operation not supported for node role")
)

// ConfigError carries the validation result that rejected a definition.
type ConfigError struct {
	Result agentconfig.ValidationResult
}

func (e *ConfigError) Error() string {
	return e.Result.Err().Error()
}

func (e *ConfigError) Unwrap() error {
	return agentconfig.ErrInvalidConfig
}

// IsConfigError reports whether err rejected a definition and returns the
// validation result.
func IsConfigError(err error) (agentconfig.ValidationResult, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Result, true
	}

	return agentconfig.ValidationResult{}, false
}

func roleError(nodeID string, role models.NodeRole, op string) error {
	return fmt.Errorf("%s on node %s (%s): %w", op, nodeID, role, ErrRoleMismatch)
}
