package models

import "time"

// FailureKind classifies why a run unit failed.
type FailureKind string

const (
	FailureUnconnected       FailureKind = "unconnected"
	FailureMissingVariable   FailureKind = "missing_variable"
	FailureMissingConfig     FailureKind = "missing_config"
	FailureQuotaExceeded     FailureKind = "provider_quota_exceeded"
	FailureInvalidCredential FailureKind = "invalid_credential"
	FailureRateLimited       FailureKind = "rate_limited"
	FailureToolExecution     FailureKind = "tool_execution_failed"
	FailureUnknownProvider   FailureKind = "unknown_provider_error"
	FailureTimeout           FailureKind = "timeout"
	FailureCancelled         FailureKind = "cancelled"
)

// UnitState is the state of one agent -> output pairing during a bundle run.
type UnitState string

const (
	UnitStateIdle       UnitState = "idle"
	UnitStateProcessing UnitState = "processing"
	UnitStateSucceeded  UnitState = "succeeded"
	UnitStateFailed     UnitState = "failed"
)

func (s UnitState) IsTerminal() bool {
	return s == UnitStateSucceeded || s == UnitStateFailed
}

// ResponseEnvelope describes where a response came from.
type ResponseEnvelope struct {
	AgentTitle string    `json:"agent_title"`
	AgentID    string    `json:"agent_id"`
	Bundle     string    `json:"bundle"`
	Model      string    `json:"model"`
	UsedTools  bool      `json:"used_tools"`
	Timestamp  time.Time `json:"timestamp"`
}

// RunUnit is one agent node paired with its resolved output node.
type RunUnit struct {
	AgentNodeID  string            `json:"agent_node_id"`
	OutputNodeID string            `json:"output_node_id,omitempty"`
	State        UnitState         `json:"state"`
	FailureKind  FailureKind       `json:"failure_kind,omitempty"`
	Error        string            `json:"error,omitempty"`
	Attempts     int               `json:"attempts,omitempty"`
	Output       string            `json:"output,omitempty"`
	Envelope     *ResponseEnvelope `json:"envelope,omitempty"`
}

// BundleRun is the record of one runBundle invocation.
type BundleRun struct {
	ID         string     `json:"id"`
	BundleID   BundleID   `json:"bundle_id"`
	BundleName string     `json:"bundle_name"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Units      []*RunUnit `json:"units"`
	Error      string     `json:"error,omitempty"`
}

// Failed returns the units that ended in UnitStateFailed.
func (r *BundleRun) Failed() []*RunUnit {
	var failed []*RunUnit

	for _, u := range r.Units {
		if u.State == UnitStateFailed {
			failed = append(failed, u)
		}
	}

	return failed
}

// Succeeded returns the units that ended in UnitStateSucceeded.
func (r *BundleRun) Succeeded() []*RunUnit {
	var ok []*RunUnit

	for _, u := range r.Units {
		if u.State == UnitStateSucceeded {
			ok = append(ok, u)
		}
	}

	return ok
}
