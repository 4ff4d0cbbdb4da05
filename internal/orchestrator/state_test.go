// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/deep-research/internal/metrics"
	"github.com/pdiddy/deep-research/pkg/types"
)

func TestMachine_ComprehensivePath(t *testing.T) {
	m := newMachine(types.ModeComprehensive, time.Now, metrics.MustNew(prometheus.NewRegistry()))
	assert.Equal(t, types.PhaseClarifying, m.phase)

	for _, step := range []func() error{m.plan, m.execute, m.synthesize, m.report, m.finish} {
		require.NoError(t, step())
	}
	assert.Equal(t, types.PhaseDone, m.phase)
	assert.Equal(t, 5, m.handoffs)

	assert.ErrorIs(t, m.fail(), ErrInvalidTransition, "done is terminal")
}

func TestMachine_QuickPath(t *testing.T) {
	m := newMachine(types.ModeQuick, time.Now, nil)
	assert.ErrorIs(t, m.plan(), ErrInvalidTransition)
	require.NoError(t, m.execute())
	assert.ErrorIs(t, m.synthesize(), ErrInvalidTransition)
	require.NoError(t, m.report())
	require.NoError(t, m.finish())
}

func TestMachine_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		steps func(m *machine) []func() error
	}{
		{"skip planning", func(m *machine) []func() error { return []func() error{m.execute} }},
		{"report before synthesis", func(m *machine) []func() error { return []func() error{m.plan, m.execute, m.report} }},
		{"done before report", func(m *machine) []func() error { return []func() error{m.plan, m.finish} }},
		{"back to planning", func(m *machine) []func() error { return []func() error{m.plan, m.execute, m.plan} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine(types.ModeComprehensive, time.Now, nil)
			steps := tt.steps(m)
			for _, s := range steps[:len(steps)-1] {
				require.NoError(t, s())
			}
			before := m.phase
			assert.ErrorIs(t, steps[len(steps)-1](), ErrInvalidTransition)
			assert.Equal(t, before, m.phase)
		})
	}
}

func TestMachine_FailFromAnyActivePhase(t *testing.T) {
	m := newMachine(types.ModeComprehensive, time.Now, nil)
	require.NoError(t, m.plan())
	require.NoError(t, m.execute())
	require.NoError(t, m.fail())
	assert.Equal(t, types.PhaseFailed, m.phase)
	assert.ErrorIs(t, m.fail(), ErrInvalidTransition)
	assert.ErrorIs(t, m.synthesize(), ErrInvalidTransition)
}
