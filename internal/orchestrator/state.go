// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/deep-research/internal/metrics"
	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrInvalidTransition is returned when a phase change is not in the
// transition table for the session's mode.
var ErrInvalidTransition = errors.New("invalid phase transition")

// transitions lists the phases reachable from each phase, per mode. Failed
// is reachable from every non-terminal phase and is not listed.
var transitions = map[types.ResearchMode]map[types.Phase]types.Phase{
	types.ModeComprehensive: {
		types.PhaseClarifying:   types.PhasePlanning,
		types.PhasePlanning:     types.PhaseExecuting,
		types.PhaseExecuting:    types.PhaseSynthesizing,
		types.PhaseSynthesizing: types.PhaseReporting,
		types.PhaseReporting:    types.PhaseDone,
	},
	types.ModeQuick: {
		types.PhaseClarifying: types.PhaseExecuting,
		types.PhaseExecuting:  types.PhaseReporting,
		types.PhaseReporting:  types.PhaseDone,
	},
}

// machine is the session state machine. It is not safe for concurrent use;
// only the session's control flow advances it.
type machine struct {
	mode     types.ResearchMode
	phase    types.Phase
	entered  time.Time
	handoffs int
	now      func() time.Time
	metrics  *metrics.Metrics
}

func newMachine(mode types.ResearchMode, now func() time.Time, m *metrics.Metrics) *machine {
	return &machine{mode: mode, phase: types.PhaseClarifying, entered: now(), now: now, metrics: m}
}

// to moves to next if the table allows it.
func (m *machine) to(next types.Phase) error {
	if m.phase.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, m.phase)
	}
	if next != types.PhaseFailed && transitions[m.mode][m.phase] != next {
		return fmt.Errorf("%w: %s -> %s in %s mode", ErrInvalidTransition, m.phase, next, m.mode)
	}

	status := "ok"
	if next == types.PhaseFailed {
		status = "failed"
	}
	at := m.now()
	m.metrics.ObservePhase(string(m.phase), status, at.Sub(m.entered))
	m.phase, m.entered = next, at
	m.handoffs++
	return nil
}

// Typed transitions, one per edge of the table.

func (m *machine) plan() error       { return m.to(types.PhasePlanning) }
func (m *machine) execute() error    { return m.to(types.PhaseExecuting) }
func (m *machine) synthesize() error { return m.to(types.PhaseSynthesizing) }
func (m *machine) report() error     { return m.to(types.PhaseReporting) }
func (m *machine) finish() error     { return m.to(types.PhaseDone) }
func (m *machine) fail() error       { return m.to(types.PhaseFailed) }
