// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Phase is a state of the research session state machine.
type Phase string

const (
	PhaseClarifying   Phase = "clarifying"
	PhasePlanning     Phase = "planning"
	PhaseExecuting    Phase = "executing"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseReporting    Phase = "reporting"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// IsTerminal reports whether no transition can leave the phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// ProgressEvent is a one-way notification emitted by the orchestrator as a
// session advances. Events within a session carry strictly increasing Seq.
type ProgressEvent struct {
	Seq       int64      `json:"seq" yaml:"seq"`
	SessionID string     `json:"session_id" yaml:"session_id"`
	Phase     Phase      `json:"phase" yaml:"phase"`
	TaskID    string     `json:"task_id,omitempty" yaml:"task_id,omitempty"`
	Status    TaskStatus `json:"status,omitempty" yaml:"status,omitempty"`
	Message   string     `json:"message" yaml:"message"`

	// Sources and Findings are running totals for the session.
	Sources  int `json:"sources" yaml:"sources"`
	Findings int `json:"findings" yaml:"findings"`

	Time time.Time `json:"time" yaml:"time"`
}

// AgentStats aggregates calls made to one agent during a session.
type AgentStats struct {
	Calls           int           `json:"calls" yaml:"calls"`
	Successes       int           `json:"successes" yaml:"successes"`
	TotalDuration   time.Duration `json:"total_duration" yaml:"total_duration"`
	AverageDuration time.Duration `json:"average_duration" yaml:"average_duration"`
}

// ExecutionSummary is the execution trace attached to a report.
type ExecutionSummary struct {
	// Operations counts every agent call made in the session.
	Operations int `json:"operations" yaml:"operations"`

	// SuccessRate is Successes/Operations across all agents, 0 when nothing ran.
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`

	// Handoffs counts phase transitions.
	Handoffs int `json:"handoffs" yaml:"handoffs"`

	Agents   map[AgentKind]AgentStats `json:"agents" yaml:"agents"`
	Duration time.Duration            `json:"duration" yaml:"duration"`
}
