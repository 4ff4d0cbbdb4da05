// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package planning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/pkg/types"
)

func renewable(depth types.ResearchDepth) types.ClarifiedContext {
	return types.ClarifiedContext{
		OriginalQuestion:  "What is renewable energy?",
		ClarifiedQuestion: "What is renewable energy?",
		Subject:           "renewable energy",
		Scope:             "general",
		Timeframe:         "current",
		Depth:             depth,
	}
}

func facetsOf(tasks []types.ResearchTask) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Facet
	}
	return out
}

func TestComparisonSubjects(t *testing.T) {
	tests := []struct {
		question string
		want     []string
	}{
		{"Compare solar and wind energy", []string{"solar", "wind energy"}},
		{"What are the differences between nuclear and coal power?", []string{"nuclear", "coal power"}},
		{"Is solar vs wind better for homes", []string{"solar", "wind better for homes"}},
		{"Solar versus wind", []string{"Solar", "wind"}},
		{"What is renewable energy?", nil},
		{"Are these results comparable to last year?", nil},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, ComparisonSubjects(tt.question))
		})
	}
}

func TestFacets_CountByDepth(t *testing.T) {
	tests := []struct {
		depth types.ResearchDepth
		want  []string
	}{
		{types.DepthBasic, []string{"overview", "evidence"}},
		{types.DepthStandard, []string{"overview", "evidence", "tradeoffs"}},
		{types.DepthDeep, []string{"overview", "evidence", "tradeoffs", "recent", "expert"}},
		{types.DepthExpert, []string{"overview", "evidence", "tradeoffs", "recent", "expert"}},
		{"", []string{"overview", "evidence", "tradeoffs"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.depth), func(t *testing.T) {
			specs := Facets("What is renewable energy?", renewable(tt.depth))
			got := make([]string, len(specs))
			for i, s := range specs {
				got[i] = s.Facet
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFacets_Queries(t *testing.T) {
	c := renewable(types.DepthBasic)
	specs := Facets("What is renewable energy?", c)
	assert.Equal(t, "renewable energy overview key facts", specs[0].Query)
	assert.Equal(t, "Key facts and definitions about renewable energy", specs[0].Description)

	c.Scope, c.Timeframe = "Europe", "since 2015"
	specs = Facets("What is renewable energy?", c)
	assert.Equal(t, "renewable energy overview key facts Europe since 2015", specs[0].Query)

	c.Subject = ""
	specs = Facets("What is renewable energy?", c)
	assert.Equal(t, "What is renewable energy overview key facts Europe since 2015", specs[0].Query)
}

func TestFacets_Comparison(t *testing.T) {
	c := renewable(types.DepthStandard)
	c.Subject = "solar wind energy"
	specs := Facets("Compare solar and wind energy", c)
	require.Len(t, specs, 3)
	assert.Equal(t, "subject: solar", specs[0].Facet)
	assert.Equal(t, "subject: wind energy", specs[1].Facet)
	assert.Equal(t, "comparison", specs[2].Facet)
	assert.Equal(t, "solar vs wind energy comparison", specs[2].Query)

	c.Depth = types.DepthDeep
	specs = Facets("Compare solar and wind energy", c)
	require.Len(t, specs, 5)
	assert.Equal(t, "overview", specs[3].Facet)

	c.Depth = types.DepthBasic
	assert.Len(t, Facets("Compare solar and wind energy", c), 3)
}

func TestPlan_Deterministic(t *testing.T) {
	a := NewAgent(types.PlanningConfig{MaxTasks: 5}, nil, zaptest.NewLogger(t))
	tasks, err := a.Plan(context.Background(), "What is renewable energy?", renewable(types.DepthStandard))
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	ids := map[string]bool{}
	for _, task := range tasks {
		assert.Equal(t, types.TaskPending, task.Status)
		assert.Equal(t, types.AgentSearch, task.AssignedAgent)
		assert.NotEmpty(t, task.Query)
		assert.False(t, ids[task.ID], "duplicate id %s", task.ID)
		ids[task.ID] = true
	}

	again, err := a.Plan(context.Background(), "What is renewable energy?", renewable(types.DepthStandard))
	require.NoError(t, err)
	assert.Equal(t, tasks, again)
	assert.Equal(t, TaskID("What is renewable energy?", "overview"), tasks[0].ID)
}

func TestPlan_MaxTasks(t *testing.T) {
	a := NewAgent(types.PlanningConfig{MaxTasks: 2}, nil, nil)
	tasks, err := a.Plan(context.Background(), "What is renewable energy?", renewable(types.DepthDeep))
	require.NoError(t, err)
	assert.Equal(t, []string{"overview", "evidence"}, facetsOf(tasks))
}

func TestPlan_UsesClarifiedQuestion(t *testing.T) {
	a := NewAgent(types.PlanningConfig{}, nil, nil)
	c := renewable(types.DepthBasic)
	c.ClarifiedQuestion = "What is renewable energy? (scope: homes)"
	tasks, err := a.Plan(context.Background(), "What is renewable energy?", c)
	require.NoError(t, err)
	assert.Equal(t, TaskID(c.ClarifiedQuestion, "overview"), tasks[0].ID)
}

func TestPlan_ModelPlan(t *testing.T) {
	var prompt string
	model := llm.ModelFunc(func(_ context.Context, req llm.Request) (string, error) {
		prompt = req.Prompt
		return `{"tasks": [
			{"facet": "Economics", "description": "What does it cost?", "query": "renewable energy cost per kWh"},
			{"facet": "economics", "description": "Who pays for subsidies?", "query": ""},
			{"facet": "", "description": "", "query": ""},
			{"facet": "policy", "description": "Which policies help?", "query": "renewable energy policy",},
		]}`, nil
	})
	a := NewAgent(types.PlanningConfig{MaxTasks: 5}, model, zaptest.NewLogger(t))

	tasks, err := a.Plan(context.Background(), "What is renewable energy?", renewable(types.DepthStandard))
	require.NoError(t, err)
	assert.Contains(t, prompt, "at most 5 independent sub-questions")
	assert.Contains(t, prompt, "Research question: What is renewable energy?")

	assert.Equal(t, []string{"economics", "economics 2", "policy"}, facetsOf(tasks))
	assert.Equal(t, "Who pays for subsidies?", tasks[1].Query)
	assert.NotEqual(t, tasks[0].ID, tasks[1].ID)
}

func TestPlan_ModelFailureFallsBackToFacets(t *testing.T) {
	for name, model := range map[string]llm.Model{
		"error": llm.ModelFunc(func(context.Context, llm.Request) (string, error) {
			return "", errors.New("quota")
		}),
		"no json": llm.ModelFunc(func(context.Context, llm.Request) (string, error) {
			return "I would research the overview first.", nil
		}),
		"empty plan": llm.ModelFunc(func(context.Context, llm.Request) (string, error) {
			return `{"tasks": []}`, nil
		}),
	} {
		t.Run(name, func(t *testing.T) {
			a := NewAgent(types.PlanningConfig{}, model, zaptest.NewLogger(t))
			tasks, err := a.Plan(context.Background(), "What is renewable energy?", renewable(types.DepthBasic))
			require.NoError(t, err)
			assert.Equal(t, []string{"overview", "evidence"}, facetsOf(tasks))
		})
	}
}

func TestPlan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	model := llm.ModelFunc(func(ctx context.Context, _ llm.Request) (string, error) {
		cancel()
		return "", ctx.Err()
	})
	a := NewAgent(types.PlanningConfig{}, model, nil)
	_, err := a.Plan(ctx, "What is renewable energy?", renewable(types.DepthBasic))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlan_EmptyQuestion(t *testing.T) {
	a := NewAgent(types.PlanningConfig{}, nil, nil)
	_, err := a.Plan(context.Background(), " ", types.ClarifiedContext{})
	assert.ErrorIs(t, err, types.ErrEmptyQuestion)
}

func TestExecute(t *testing.T) {
	a := NewAgent(types.PlanningConfig{}, nil, nil)
	assert.Equal(t, types.AgentPlanning, a.Name())
	tasks, err := a.Execute(context.Background(), Input{Question: "What is renewable energy?", Context: renewable(types.DepthBasic)})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}
