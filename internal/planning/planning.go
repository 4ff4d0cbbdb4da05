// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package planning decomposes a clarified research question into an ordered
// list of research tasks, one per topic facet.
package planning

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrNoTasks is returned when a plan contains no tasks.
var ErrNoTasks = errors.New("plan contains no tasks")

var planPromptTmpl = template.Must(template.New("plan").Parse(`You are a research planner. Break the research question into at most {{.MaxTasks}} independent sub-questions, one per topic facet, so that together they cover the question.

Research question: {{.Question}}
Research depth: {{.Depth}}
Audience expertise: {{.Expertise}}
{{- if .Scope}}
Scope: {{.Scope}}{{end}}
{{- if .Timeframe}}
Timeframe: {{.Timeframe}}{{end}}
{{- if .FocusAreas}}
Focus areas: {{.FocusAreas}}{{end}}

For each sub-question give:
- facet: a short lowercase label for the topic facet
- description: the sub-question in one sentence
- query: a web search query of at most ten words

Respond with a JSON object only:
{"tasks": [{"facet": "...", "description": "...", "query": "..."}]}
`))

// Input is one planning call.
type Input struct {
	Question string
	Context  types.ClarifiedContext
}

// Agent is the planning step of the research pipeline.
type Agent struct {
	cfg   types.PlanningConfig
	model llm.Model
	log   *zap.Logger
}

// NewAgent creates a planning agent. model may be nil, in which case the
// deterministic facet policy is always used.
func NewAgent(cfg types.PlanningConfig, model llm.Model, log *zap.Logger) *Agent {
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = types.DefaultConfig().Planning.MaxTasks
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{cfg: cfg, model: model, log: log}
}

// Name returns the agent kind.
func (a *Agent) Name() types.AgentKind { return types.AgentPlanning }

// Execute runs Plan. It satisfies the common agent capability.
func (a *Agent) Execute(ctx context.Context, in Input) ([]types.ResearchTask, error) {
	return a.Plan(ctx, in.Question, in.Context)
}

// Plan returns at most MaxTasks pending tasks assigned to search. The model
// plan is used when a model is configured and answers with a usable plan;
// otherwise the deterministic facet policy applies, so identical inputs give
// identical plans.
func (a *Agent) Plan(ctx context.Context, question string, c types.ClarifiedContext) ([]types.ResearchTask, error) {
	question = strings.TrimSpace(question)
	if q := strings.TrimSpace(c.ClarifiedQuestion); q != "" {
		question = q
	}
	if question == "" {
		return nil, types.ErrEmptyQuestion
	}

	var specs []TaskSpec
	source := "facets"
	if a.model != nil {
		var err error
		specs, err = a.modelPlan(ctx, question, c)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			a.log.Warn("model plan unusable, using facet policy", zap.Error(err))
			specs = nil
		default:
			source = "model"
		}
	}
	if len(specs) == 0 {
		specs = Facets(question, c)
		source = "facets"
	}

	tasks := a.build(question, specs)
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}
	a.log.Info("plan created",
		zap.String("source", source),
		zap.Int("tasks", len(tasks)),
		zap.String("depth", string(c.Depth)))
	return tasks, nil
}

type modelPlan struct {
	Tasks []TaskSpec `json:"tasks"`
}

func (a *Agent) modelPlan(ctx context.Context, question string, c types.ClarifiedContext) ([]TaskSpec, error) {
	var buf bytes.Buffer
	err := planPromptTmpl.Execute(&buf, map[string]any{
		"MaxTasks":   a.cfg.MaxTasks,
		"Question":   question,
		"Depth":      c.Depth,
		"Expertise":  c.Expertise,
		"Scope":      c.Scope,
		"Timeframe":  c.Timeframe,
		"FocusAreas": strings.Join(c.Preferences.FocusAreas, ", "),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	raw, err := a.model.Generate(ctx, llm.Request{Prompt: buf.String(), JSON: true})
	if err != nil {
		return nil, err
	}
	var plan modelPlan
	if err := llm.DecodeJSON(raw, &plan); err != nil {
		return nil, err
	}

	var specs []TaskSpec
	for _, s := range plan.Tasks {
		s.Facet = strings.ToLower(strings.TrimSpace(s.Facet))
		s.Description = strings.TrimSpace(s.Description)
		s.Query = strings.TrimSpace(s.Query)
		if s.Query == "" {
			s.Query = s.Description
		}
		if s.Query == "" {
			continue
		}
		if s.Description == "" {
			s.Description = s.Query
		}
		specs = append(specs, s)
	}
	if len(specs) == 0 {
		return nil, ErrNoTasks
	}
	return specs, nil
}

// build caps specs at MaxTasks and assigns unique, stable IDs.
func (a *Agent) build(question string, specs []TaskSpec) []types.ResearchTask {
	if len(specs) > a.cfg.MaxTasks {
		specs = specs[:a.cfg.MaxTasks]
	}
	used := make(map[string]bool, len(specs))
	tasks := make([]types.ResearchTask, 0, len(specs))
	for i, s := range specs {
		if s.Facet == "" {
			s.Facet = fmt.Sprintf("facet %d", i+1)
		}
		facet := s.Facet
		for n := 2; used[facet]; n++ {
			facet = fmt.Sprintf("%s %d", s.Facet, n)
		}
		used[facet] = true
		tasks = append(tasks, types.ResearchTask{
			ID:            TaskID(question, facet),
			Facet:         facet,
			Description:   s.Description,
			Query:         s.Query,
			Status:        types.TaskPending,
			AssignedAgent: types.AgentSearch,
		})
	}
	return tasks
}

// TaskID is a stable identifier for a facet of a question.
func TaskID(question, facet string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(question) + "\x00" + facet))
	return "task-" + fmt.Sprintf("%x", sum[:])[:10]
}
