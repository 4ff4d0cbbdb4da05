// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/deep-research/internal/citation"
	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/metrics"
	"github.com/pdiddy/deep-research/internal/planning"
	"github.com/pdiddy/deep-research/internal/ratelimit"
	"github.com/pdiddy/deep-research/internal/reflection"
	"github.com/pdiddy/deep-research/internal/requirements"
	"github.com/pdiddy/deep-research/internal/search"
	"github.com/pdiddy/deep-research/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeAgent[In, Out any] struct {
	kind types.AgentKind
	fn   func(ctx context.Context, in In) (Out, error)
}

func (f fakeAgent[In, Out]) Name() types.AgentKind { return f.kind }

func (f fakeAgent[In, Out]) Execute(ctx context.Context, in In) (Out, error) { return f.fn(ctx, in) }

func rec(url, snippet string) types.SourceRecord {
	return types.SourceRecord{
		ID:          types.SourceID(url),
		URL:         url,
		Title:       "Page at " + url,
		Snippet:     snippet,
		Quality:     types.QualityForURL(url),
		Provider:    "tavily",
		RetrievedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func plannerFor(queries ...string) Agent[planning.Input, []types.ResearchTask] {
	return fakeAgent[planning.Input, []types.ResearchTask]{kind: types.AgentPlanning,
		fn: func(context.Context, planning.Input) ([]types.ResearchTask, error) {
			var tasks []types.ResearchTask
			for i, q := range queries {
				tasks = append(tasks, types.ResearchTask{
					ID:            fmt.Sprintf("t%d", i+1),
					Facet:         q,
					Description:   "research " + q,
					Query:         q,
					Status:        types.TaskPending,
					AssignedAgent: types.AgentSearch,
				})
			}
			return tasks, nil
		}}
}

func searchFrom(results map[string]search.Output) Agent[string, search.Output] {
	return fakeAgent[string, search.Output]{kind: types.AgentSearch,
		fn: func(ctx context.Context, q string) (search.Output, error) {
			if err := ctx.Err(); err != nil {
				return search.Output{}, err
			}
			out := results[q]
			out.Query = q
			return out, nil
		}}
}

func testAgents(t *testing.T) Agents {
	cfg := types.DefaultConfig()
	return Agents{
		Requirements: requirements.NewAgent(cfg.Orchestrator),
		Planning:     planning.NewAgent(cfg.Planning, nil, nil),
		Search:       searchFrom(nil),
		Reflection:   reflection.NewAgent(cfg.Reflection, zaptest.NewLogger(t)),
		Citations:    citation.NewAgent(nil),
	}
}

func newTest(t *testing.T, agents Agents, opts ...Option) *Orchestrator {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.Orchestrator.MaxConcurrency = 2
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	o, err := New(cfg, agents, opts...)
	require.NoError(t, err)
	return o
}

// recorder collects progress events.
type recorder struct {
	mu     sync.Mutex
	events []types.ProgressEvent
}

func (r *recorder) Emit(ev types.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) phases() []types.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Phase
	for _, ev := range r.events {
		if len(out) == 0 || out[len(out)-1] != ev.Phase {
			out = append(out, ev.Phase)
		}
	}
	return out
}

func (r *recorder) last() types.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func TestNew_MissingAgents(t *testing.T) {
	_, err := New(types.DefaultConfig(), Agents{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requirements, planning, search, reflection, citations")
}

func TestComprehensive_PartialFailure(t *testing.T) {
	agents := testAgents(t)
	agents.Planning = plannerFor("solar", "wind", "hydro")
	agents.Search = searchFrom(map[string]search.Output{
		"solar": {Records: []types.SourceRecord{rec("https://energy.gov/solar", "Solar panels convert sunlight directly into electricity.")}},
		"wind":  {Err: fmt.Errorf("tavily: %w: boom", search.ErrProviderUnavailable)},
		"hydro": {Records: []types.SourceRecord{rec("https://usgs.gov/hydro", "Hydropower uses flowing water to spin turbines.")}},
	})
	events := &recorder{}
	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)
	o := newTest(t, agents, WithSink(events), WithMetrics(m))

	report, err := o.ComprehensiveResearch(context.Background(), "How do renewable energy sources work?")
	require.NoError(t, err)

	require.Len(t, report.Findings, 2)
	require.Len(t, report.Tasks, 3)
	assert.Equal(t, types.TaskCompleted, report.Tasks[0].Status)
	assert.Equal(t, types.TaskFailed, report.Tasks[1].Status)
	assert.Contains(t, report.Tasks[1].Result.Error, "provider unavailable")
	assert.Equal(t, types.TaskCompleted, report.Tasks[2].Status)

	var caveat string
	for _, c := range report.Caveats {
		if strings.Contains(c, `"wind"`) {
			caveat = c
		}
	}
	assert.Contains(t, caveat, "could not be researched")

	require.Len(t, report.Citations, 2)
	for _, f := range report.Findings {
		for _, id := range f.SourceIDs {
			_, ok := report.Source(id)
			assert.True(t, ok, "finding %s cites unknown source %s", f.ID, id)
		}
	}
	assert.Equal(t, types.ModeComprehensive, report.Mode)
	assert.NotEmpty(t, report.SessionID)
	assert.Contains(t, report.Summary, "2 findings from 2 sources across 2 of 3 research tasks")

	exec := report.Execution
	assert.Equal(t, 3, exec.Agents[types.AgentSearch].Calls)
	assert.Equal(t, 2, exec.Agents[types.AgentSearch].Successes)
	assert.Equal(t, 5, exec.Handoffs)
	assert.Greater(t, exec.Operations, 0)

	assert.Equal(t, []types.Phase{
		types.PhaseClarifying, types.PhasePlanning, types.PhaseExecuting,
		types.PhaseSynthesizing, types.PhaseReporting, types.PhaseDone,
	}, events.phases())
	for i, ev := range events.events {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, report.SessionID, ev.SessionID)
	}
	assert.Equal(t, 2, events.last().Findings)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskCounter(string(types.TaskFailed))))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TaskCounter(string(types.TaskCompleted))))
}

func TestComprehensive_NoSourcesIsNoFindings(t *testing.T) {
	agents := testAgents(t)
	agents.Planning = plannerFor("a", "b")
	agents.Search = searchFrom(map[string]search.Output{
		"b": {Err: fmt.Errorf("tavily: %w", search.ErrProviderUnavailable)},
	})
	events := &recorder{}
	o := newTest(t, agents)

	report, err := o.Run(context.Background(), Request{Question: "What is renewable energy?", Mode: types.ModeComprehensive, Sink: events})
	assert.ErrorIs(t, err, ErrNoFindings)
	assert.Nil(t, report)
	assert.Equal(t, types.PhaseFailed, events.last().Phase)
}

func TestComprehensive_ContradictionsKeptAndDisputed(t *testing.T) {
	agents := testAgents(t)
	agents.Planning = plannerFor("effects", "benefits")
	agents.Search = searchFrom(map[string]search.Output{
		"effects":  {Records: []types.SourceRecord{rec("https://example.edu/a", "Energy source X increases emissions in urban areas.")}},
		"benefits": {Records: []types.SourceRecord{rec("https://example.org/b", "Energy source X decreases emissions in urban areas.")}},
	})
	o := newTest(t, agents)

	report, err := o.ComprehensiveResearch(context.Background(), "Does energy source X affect emissions?")
	require.NoError(t, err)
	require.Len(t, report.Findings, 2)
	require.Len(t, report.Conflicts, 1)
	for _, f := range report.Findings {
		assert.True(t, f.Disputed)
		assert.True(t, f.HasTag(types.TagDisputed))
	}
	assert.Contains(t, strings.Join(report.Caveats, "\n"), "2 findings are disputed")
	assert.Contains(t, report.Summary, "both sides are reported")
}

func TestComprehensive_MergesDuplicateFindingsAcrossTasks(t *testing.T) {
	agents := testAgents(t)
	agents.Planning = plannerFor("one", "two")
	agents.Search = searchFrom(map[string]search.Output{
		"one": {Records: []types.SourceRecord{rec("https://energy.gov/a", "Geothermal plants provide steady baseload power.")}},
		"two": {Records: []types.SourceRecord{rec("https://example.com/b", "Geothermal plants provide steady baseload power!")}},
	})
	o := newTest(t, agents)

	report, err := o.ComprehensiveResearch(context.Background(), "Is geothermal reliable?")
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	merged := report.Findings[0].ID
	assert.Equal(t, []string{merged}, report.Tasks[0].Result.FindingIDs)
	assert.Equal(t, []string{merged}, report.Tasks[1].Result.FindingIDs)
	assert.Len(t, report.Citations, 2)
}

func TestQuick_FallbackPathWithoutSearchKey(t *testing.T) {
	model := llm.ModelFunc(func(_ context.Context, req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "Live web search is unavailable") {
			return "Renewable energy comes from sources that are naturally replenished. " +
				"Solar and wind are the most widely deployed renewable sources.", nil
		}
		return "Renewable energy is naturally replenished energy.", nil
	})
	cfg := types.DefaultConfig()
	limiter := ratelimit.New(types.RateLimitConfig{MaxAttempts: 1})

	agents := testAgents(t)
	agents.Search = search.NewAgent(cfg.Search, limiter,
		search.WithFallback(search.NewFallback(nil, model, nil)))
	events := &recorder{}
	o := newTest(t, agents, WithModel(model), WithSink(events))

	report, err := o.QuickResearch(context.Background(), "What is renewable energy?")
	require.NoError(t, err)

	require.NotEmpty(t, report.Findings)
	for _, f := range report.Findings {
		assert.True(t, f.HasTag(types.TagLowConfidence), f.Claim)
		assert.True(t, f.HasTag(types.TagFallbackData), f.Claim)
		assert.LessOrEqual(t, f.Confidence, 0.3)
	}
	assert.NotEmpty(t, report.Citations)
	assert.True(t, report.Tasks[0].Result.Degraded)
	assert.Equal(t, "quick", report.Tasks[0].Facet)
	assert.Equal(t, "Renewable energy is naturally replenished energy.", report.Summary)
	assert.Contains(t, strings.Join(report.Caveats, "\n"), "fallback data")
	assert.Equal(t, []types.Phase{
		types.PhaseClarifying, types.PhaseExecuting, types.PhaseReporting, types.PhaseDone,
	}, events.phases())
	assert.Equal(t, 3, report.Execution.Handoffs)
}

func TestRun_ModelSummaryFailureFallsBack(t *testing.T) {
	agents := testAgents(t)
	agents.Search = searchFrom(map[string]search.Output{
		"What is tidal power?": {Records: []types.SourceRecord{rec("https://noaa.gov/tides", "Tidal power depends on predictable ocean tides.")}},
	})
	model := llm.ModelFunc(func(context.Context, llm.Request) (string, error) {
		return "", errors.New("quota")
	})
	o := newTest(t, agents, WithModel(model))

	report, err := o.QuickResearch(context.Background(), "What is tidal power?")
	require.NoError(t, err)
	assert.Contains(t, report.Summary, `Research on "What is tidal power?" produced 1 findings`)
	assert.Contains(t, report.Summary, "Tidal power depends on predictable ocean tides.")
}

func TestRun_CancelDiscardsSession(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	agents := testAgents(t)
	agents.Planning = plannerFor("a", "b", "c")
	agents.Search = fakeAgent[string, search.Output]{kind: types.AgentSearch,
		fn: func(ctx context.Context, _ string) (search.Output, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return search.Output{}, ctx.Err()
		}}
	events := &recorder{}
	o := newTest(t, agents, WithSink(events))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	report, err := o.ComprehensiveResearch(ctx, "What is renewable energy?")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
	assert.Equal(t, types.PhaseFailed, events.last().Phase)
}

func TestRun_BoundedConcurrency(t *testing.T) {
	var inflight, peak int32
	agents := testAgents(t)
	agents.Planning = plannerFor("a", "b", "c", "d", "e")
	agents.Search = fakeAgent[string, search.Output]{kind: types.AgentSearch,
		fn: func(ctx context.Context, q string) (search.Output, error) {
			n := atomic.AddInt32(&inflight, 1)
			defer atomic.AddInt32(&inflight, -1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			return search.Output{Records: []types.SourceRecord{
				rec("https://example.edu/"+q, "Topic "+q+" has several well documented properties."),
			}}, nil
		}}
	o := newTest(t, agents)

	report, err := o.ComprehensiveResearch(context.Background(), "Tell me everything")
	require.NoError(t, err)
	assert.Len(t, report.Tasks, 5)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRun_InputErrors(t *testing.T) {
	o := newTest(t, testAgents(t))

	_, err := o.Run(context.Background(), Request{Question: "  "})
	assert.ErrorIs(t, err, types.ErrEmptyQuestion)

	_, err = o.Run(context.Background(), Request{Question: "x", Style: "chicago"})
	assert.ErrorIs(t, err, citation.ErrUnsupportedStyle)

	_, err = o.Run(context.Background(), Request{Question: "x", Mode: "slow"})
	assert.Error(t, err)
}

func TestNew_NilLoggerKeepsDefault(t *testing.T) {
	agents := testAgents(t)
	agents.Search = searchFrom(map[string]search.Output{
		"What is tidal power?": {Records: []types.SourceRecord{rec("https://noaa.gov/tides", "Tidal power depends on predictable ocean tides.")}},
	})
	o, err := New(types.DefaultConfig(), agents, WithLogger(nil))
	require.NoError(t, err)
	require.NotNil(t, o.log)

	report, err := o.Run(context.Background(), Request{Question: "What is tidal power?", Mode: types.ModeQuick})
	require.NoError(t, err)
	assert.NotEmpty(t, report.Findings)
}

func TestRun_MLAStyle(t *testing.T) {
	agents := testAgents(t)
	agents.Search = searchFrom(map[string]search.Output{
		"What is tidal power?": {Records: []types.SourceRecord{rec("https://noaa.gov/tides", "Tidal power depends on predictable ocean tides.")}},
	})
	o := newTest(t, agents)

	report, err := o.Run(context.Background(), Request{Question: "What is tidal power?", Mode: types.ModeQuick, Style: types.StyleMLA})
	require.NoError(t, err)
	require.Len(t, report.Citations, 1)
	assert.Equal(t, types.StyleMLA, report.Citations[0].Style)
	assert.True(t, strings.HasPrefix(report.Citations[0].Text, `"Page at https://noaa.gov/tides." noaa.gov,`), report.Citations[0].Text)
}
