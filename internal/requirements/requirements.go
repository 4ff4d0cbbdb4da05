// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package requirements clarifies a raw research question into a
// ClarifiedContext: depth, expertise, preferences, and the subject, scope and
// timeframe the research should cover.
package requirements

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrClarificationTimeout is logged when follow-up answers do not arrive in
// time. Clarification then continues with default values.
var ErrClarificationTimeout = errors.New("clarification timed out")

// Asker poses follow-up questions to the person asking and returns one
// answer per question. An empty answer leaves that ambiguity unresolved.
type Asker interface {
	Ask(ctx context.Context, questions []string) ([]string, error)
}

// AskerFunc adapts a function to the Asker interface.
type AskerFunc func(ctx context.Context, questions []string) ([]string, error)

// Ask calls f.
func (f AskerFunc) Ask(ctx context.Context, questions []string) ([]string, error) {
	return f(ctx, questions)
}

var refinePromptTmpl = template.Must(template.New("refine").Parse(`You help a research assistant understand what a user wants to research.

User question: {{.Question}}
{{- if .Scope}}
Scope: {{.Scope}}{{end}}
{{- if .Timeframe}}
Timeframe: {{.Timeframe}}{{end}}
Expertise: {{.Expertise}}

Rewrite the question as one clear, self-contained research question that keeps
the user's intent and includes the scope and timeframe. Name the main subject
in a few words.

Respond with a JSON object only:
{"clarified_question": "...", "subject": "..."}
`))

// Agent is the requirement gathering step of the research pipeline.
type Agent struct {
	cfg   types.OrchestratorConfig
	model llm.Model
	asker Asker
	log   *zap.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithModel lets the agent refine the clarified question with a model.
func WithModel(m llm.Model) Option { return func(a *Agent) { a.model = m } }

// WithAsker sets where follow-up questions go in interactive mode.
func WithAsker(asker Asker) Option { return func(a *Agent) { a.asker = asker } }

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option { return func(a *Agent) { a.log = log } }

// NewAgent creates a requirement gathering agent. Follow-ups are only asked
// when cfg.Interactive is set and an Asker is configured.
func NewAgent(cfg types.OrchestratorConfig, opts ...Option) *Agent {
	if cfg.ClarifyTimeout <= 0 {
		cfg.ClarifyTimeout = types.DefaultConfig().Orchestrator.ClarifyTimeout
	}
	a := &Agent{cfg: cfg, log: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the agent kind.
func (a *Agent) Name() types.AgentKind { return types.AgentRequirements }

// Execute runs Clarify. It satisfies the common agent capability.
func (a *Agent) Execute(ctx context.Context, question string) (types.ClarifiedContext, error) {
	return a.Clarify(ctx, question)
}

// Clarify analyzes question and resolves its ambiguities. In interactive
// mode the Asker is consulted, bounded by ClarifyTimeout; otherwise, or when
// asking fails, defaults fill the gaps. Only a blank question or a cancelled
// ctx return an error.
func (a *Agent) Clarify(ctx context.Context, question string) (types.ClarifiedContext, error) {
	if strings.TrimSpace(question) == "" {
		return types.ClarifiedContext{}, types.ErrEmptyQuestion
	}
	if err := ctx.Err(); err != nil {
		return types.ClarifiedContext{}, err
	}

	c := Analyze(question)
	if len(c.Ambiguities) > 0 {
		answered := false
		if a.cfg.Interactive && a.asker != nil {
			var err error
			answered, err = a.askFollowUps(ctx, &c)
			if err != nil {
				return types.ClarifiedContext{}, err
			}
		}
		if !answered {
			applyDefaults(&c)
		}
	}

	if a.model != nil {
		if err := a.refine(ctx, &c); err != nil {
			if ctx.Err() != nil {
				return types.ClarifiedContext{}, ctx.Err()
			}
			a.log.Warn("question refinement failed, keeping rule-based context", zap.Error(err))
		}
	}

	a.log.Info("requirements gathered",
		zap.String("question", c.ClarifiedQuestion),
		zap.String("depth", string(c.Depth)),
		zap.String("expertise", string(c.Expertise)),
		zap.Strings("ambiguities", c.Ambiguities),
		zap.Bool("defaulted", c.Defaulted))
	return c, nil
}

// askFollowUps asks one question per ambiguity and applies the answers. It
// reports whether any answer was applied. Only cancellation of the parent
// ctx is returned as an error.
func (a *Agent) askFollowUps(ctx context.Context, c *types.ClarifiedContext) (bool, error) {
	questions := make([]string, len(c.Ambiguities))
	for i, amb := range c.Ambiguities {
		questions[i] = followUps[amb]
	}

	askCtx, cancel := context.WithTimeout(ctx, a.cfg.ClarifyTimeout)
	defer cancel()

	answers, err := a.asker.Ask(askCtx, questions)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || askCtx.Err() != nil {
			err = fmt.Errorf("%w after %s", ErrClarificationTimeout, a.cfg.ClarifyTimeout)
		}
		a.log.Warn("follow-up questions unanswered, using defaults", zap.Error(err))
		return false, nil
	}

	applied := false
	var unresolved []string
	for i, amb := range c.Ambiguities {
		answer := ""
		if i < len(answers) {
			answer = strings.TrimSpace(answers[i])
		}
		c.FollowUps = append(c.FollowUps, types.QA{Question: questions[i], Answer: answer})
		if answer == "" {
			unresolved = append(unresolved, amb)
			continue
		}
		applied = true
		switch amb {
		case AmbiguitySubject:
			c.Subject = answer
		case AmbiguityScope:
			c.Scope = answer
		case AmbiguityTimeframe:
			c.Timeframe = answer
		}
	}
	if !applied {
		return false, nil
	}
	if len(unresolved) > 0 {
		fillDefaults(c, unresolved)
	}
	c.ClarifiedQuestion = withQualifiers(c.OriginalQuestion, *c)
	return true, nil
}

// applyDefaults fills every ambiguity with its default.
func applyDefaults(c *types.ClarifiedContext) {
	fillDefaults(c, c.Ambiguities)
}

func fillDefaults(c *types.ClarifiedContext, ambiguities []string) {
	for _, amb := range ambiguities {
		switch amb {
		case AmbiguitySubject:
			c.Subject = strings.ToLower(strings.Trim(c.OriginalQuestion, "?!. "))
		case AmbiguityScope:
			c.Scope = DefaultScope
		case AmbiguityTimeframe:
			c.Timeframe = DefaultTimeframe
		}
	}
	c.Defaulted = true
}

// withQualifiers appends the answered scope and timeframe to question.
func withQualifiers(question string, c types.ClarifiedContext) string {
	var parts []string
	if c.Scope != "" && c.Scope != DefaultScope {
		parts = append(parts, "scope: "+c.Scope)
	}
	if c.Timeframe != "" && c.Timeframe != DefaultTimeframe {
		parts = append(parts, "timeframe: "+c.Timeframe)
	}
	if len(parts) == 0 {
		return question
	}
	return fmt.Sprintf("%s (%s)", question, strings.Join(parts, "; "))
}

type refinement struct {
	ClarifiedQuestion string `json:"clarified_question"`
	Subject           string `json:"subject"`
}

func (a *Agent) refine(ctx context.Context, c *types.ClarifiedContext) error {
	var buf bytes.Buffer
	if err := refinePromptTmpl.Execute(&buf, struct {
		Question, Scope, Timeframe string
		Expertise                  types.Expertise
	}{c.ClarifiedQuestion, c.Scope, c.Timeframe, c.Expertise}); err != nil {
		return fmt.Errorf("rendering prompt: %w", err)
	}

	raw, err := a.model.Generate(ctx, llm.Request{Prompt: buf.String(), JSON: true})
	if err != nil {
		return err
	}
	var r refinement
	if err := llm.DecodeJSON(raw, &r); err != nil {
		return err
	}
	if q := strings.TrimSpace(r.ClarifiedQuestion); q != "" {
		c.ClarifiedQuestion = q
	}
	if s := strings.TrimSpace(r.Subject); s != "" {
		c.Subject = strings.ToLower(s)
	}
	return nil
}
