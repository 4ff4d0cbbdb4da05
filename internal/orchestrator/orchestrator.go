// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrator runs research sessions. A session is an explicit state
// machine (clarifying, planning, executing, synthesizing, reporting) that
// hands work to the requirement gathering, planning, search, reflection, and
// citation agents and assembles their results into a ResearchReport.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/deep-research/internal/citation"
	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/metrics"
	"github.com/pdiddy/deep-research/internal/planning"
	"github.com/pdiddy/deep-research/internal/reflection"
	"github.com/pdiddy/deep-research/internal/search"
	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrNoFindings is returned when a session gathered nothing to report.
var ErrNoFindings = errors.New("no findings")

// errNoSources marks a task whose search returned nothing.
var errNoSources = errors.New("no sources found")

const tracerName = "github.com/pdiddy/deep-research/internal/orchestrator"

// Agent is the capability shared by every pipeline step.
type Agent[In, Out any] interface {
	Name() types.AgentKind
	Execute(ctx context.Context, in In) (Out, error)
}

// Reflector synthesizes findings per task and reconciles them across tasks.
// *reflection.Agent implements it.
type Reflector interface {
	Agent[reflection.Input, []types.Finding]
	Reconcile(findings []types.Finding, records []types.SourceRecord) reflection.Reconciliation
}

// Agents are the pipeline steps a session hands work to.
type Agents struct {
	Requirements Agent[string, types.ClarifiedContext]
	Planning     Agent[planning.Input, []types.ResearchTask]
	Search       Agent[string, search.Output]
	Reflection   Reflector
	Citations    Agent[citation.Input, []types.Citation]
}

func (a Agents) validate() error {
	var missing []string
	if a.Requirements == nil {
		missing = append(missing, string(types.AgentRequirements))
	}
	if a.Planning == nil {
		missing = append(missing, string(types.AgentPlanning))
	}
	if a.Search == nil {
		missing = append(missing, string(types.AgentSearch))
	}
	if a.Reflection == nil {
		missing = append(missing, string(types.AgentReflection))
	}
	if a.Citations == nil {
		missing = append(missing, string(types.AgentCitations))
	}
	if len(missing) > 0 {
		return fmt.Errorf("orchestrator: missing agents: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Orchestrator runs research sessions. It is safe for concurrent use; each
// call to Run owns its own session state.
type Orchestrator struct {
	cfg     types.Config
	agents  Agents
	model   llm.Model
	metrics *metrics.Metrics
	sink    EventSink
	log     *zap.Logger
	now     func() time.Time
	tracer  trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithModel enables model-written summaries.
func WithModel(m llm.Model) Option { return func(o *Orchestrator) { o.model = m } }

// WithMetrics records session metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithSink sets the default progress sink used when a Request has none.
func WithSink(s EventSink) Option { return func(o *Orchestrator) { o.sink = s } }

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// New creates an orchestrator over agents.
func New(cfg types.Config, agents Agents, opts ...Option) (*Orchestrator, error) {
	if err := agents.validate(); err != nil {
		return nil, err
	}
	if cfg.Orchestrator.MaxConcurrency < 1 {
		cfg.Orchestrator.MaxConcurrency = 1
	}
	o := &Orchestrator{
		cfg:    cfg,
		agents: agents,
		sink:   nopSink{},
		log:    zap.NewNop(),
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Request is one research run.
type Request struct {
	Question string
	Mode     types.ResearchMode

	// Style overrides the configured citation style.
	Style types.CitationStyle

	// Sink overrides the orchestrator's progress sink.
	Sink EventSink
}

// ComprehensiveResearch clarifies, plans, researches every planned task, and
// reports.
func (o *Orchestrator) ComprehensiveResearch(ctx context.Context, question string) (*types.ResearchReport, error) {
	return o.Run(ctx, Request{Question: question, Mode: types.ModeComprehensive})
}

// QuickResearch clarifies and researches the question as a single task,
// skipping planning.
func (o *Orchestrator) QuickResearch(ctx context.Context, question string) (*types.ResearchReport, error) {
	return o.Run(ctx, Request{Question: question, Mode: types.ModeQuick})
}

// Run executes one session. The returned error is ErrNoFindings when nothing
// was gathered, the context error on cancellation, or an input error; task
// level failures are reported as caveats instead. No report is returned with
// an error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*types.ResearchReport, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, types.ErrEmptyQuestion
	}
	mode := req.Mode
	if mode == "" {
		mode = types.ModeComprehensive
	}
	if _, ok := transitions[mode]; !ok {
		return nil, fmt.Errorf("unknown research mode %q", mode)
	}
	style := req.Style
	if style == "" {
		style = o.cfg.Citations.Style
	}
	if style != types.StyleAPA && style != types.StyleMLA {
		return nil, fmt.Errorf("%w: %q", citation.ErrUnsupportedStyle, style)
	}
	sink := req.Sink
	if sink == nil {
		sink = o.sink
	}

	id := uuid.NewString()
	s := newSession(id, mode, question, style, o.now, sink, newMachine(mode, o.now, o.metrics))
	log := o.log.With(zap.String("session", id), zap.String("mode", string(mode)))

	ctx, span := o.tracer.Start(ctx, "research.session", trace.WithAttributes(
		attribute.String("research.session_id", id),
		attribute.String("research.mode", string(mode)),
	))
	defer span.End()

	o.metrics.SessionStarted()
	log.Info("research session started", zap.String("question", question))

	report, err := o.run(ctx, s)
	outcome := "done"
	if err != nil {
		outcome = "failed"
		if errors.Is(err, ErrNoFindings) {
			outcome = "no_findings"
		} else if ctx.Err() != nil {
			outcome = "cancelled"
		}
		if ferr := s.transition(s.machine.fail, "failed: "+err.Error()); ferr != nil {
			log.Debug("session already terminal", zap.Error(ferr))
		}
		log.Warn("research session failed", zap.Error(err))
	} else {
		log.Info("research session done",
			zap.Int("findings", len(report.Findings)),
			zap.Int("sources", len(report.Sources)),
			zap.Duration("duration", report.Execution.Duration))
	}
	o.metrics.SessionFinished(string(mode), outcome)
	markSpan(span, err)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (o *Orchestrator) run(ctx context.Context, s *session) (*types.ResearchReport, error) {
	s.emit("clarifying the question")
	clarified, err := call(ctx, o, s, o.agents.Requirements, s.question)
	if err != nil {
		return nil, fmt.Errorf("clarifying: %w", err)
	}
	s.context = clarified

	var tasks []types.ResearchTask
	if s.mode == types.ModeQuick {
		tasks = []types.ResearchTask{quickTask(s.question, clarified)}
	} else {
		if err := s.transition(s.machine.plan, "planning research tasks"); err != nil {
			return nil, err
		}
		tasks, err = call(ctx, o, s, o.agents.Planning, planning.Input{Question: s.question, Context: clarified})
		if err != nil {
			return nil, fmt.Errorf("planning: %w", err)
		}
		if len(tasks) == 0 {
			return nil, fmt.Errorf("planning: %w", planning.ErrNoTasks)
		}
	}
	s.setTasks(tasks)

	if err := s.transition(s.machine.execute, fmt.Sprintf("executing %d task(s)", len(tasks))); err != nil {
		return nil, err
	}
	if err := o.execute(ctx, s); err != nil {
		return nil, err
	}

	var syn synthesis
	if s.mode == types.ModeComprehensive {
		if err := s.transition(s.machine.synthesize, "reconciling findings and formatting citations"); err != nil {
			return nil, err
		}
		if syn, err = o.synthesize(ctx, s); err != nil {
			return nil, err
		}
		if err := s.transition(s.machine.report, "writing the report"); err != nil {
			return nil, err
		}
	} else {
		if err := s.transition(s.machine.report, "writing the report"); err != nil {
			return nil, err
		}
		if syn, err = o.synthesize(ctx, s); err != nil {
			return nil, err
		}
	}

	report, err := o.report(ctx, s, syn)
	if err != nil {
		return nil, err
	}
	if err := s.transition(s.machine.finish, "done"); err != nil {
		return nil, err
	}
	report.Execution = s.execution()
	return report, nil
}

// quickTask is the single task of a quick session.
func quickTask(question string, c types.ClarifiedContext) types.ResearchTask {
	q := strings.TrimSpace(c.ClarifiedQuestion)
	if q == "" {
		q = question
	}
	return types.ResearchTask{
		ID:            planning.TaskID(q, "quick"),
		Facet:         "quick",
		Description:   q,
		Query:         q,
		Status:        types.TaskPending,
		AssignedAgent: types.AgentSearch,
	}
}

// execute runs every task with bounded concurrency. Task failures are
// recorded on the task; only cancellation stops the group.
func (o *Orchestrator) execute(ctx context.Context, s *session) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Orchestrator.MaxConcurrency)
	for i := range s.tasks {
		g.Go(func() error {
			return o.runTask(gctx, s, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// runTask searches and reflects for task i.
func (o *Orchestrator) runTask(ctx context.Context, s *session, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	task := s.startTask(i)

	out, err := call(ctx, o, s, o.agents.Search, task.Query)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.finishTask(s, i, err)
		return nil
	}
	if len(out.Records) == 0 {
		cause := out.Err
		if cause == nil {
			cause = errNoSources
		}
		o.finishTask(s, i, cause)
		return nil
	}

	findings, err := call(ctx, o, s, o.agents.Reflection, reflection.Input{Task: task, Records: out.Records})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.finishTask(s, i, err)
		return nil
	}

	note := ""
	if out.Err != nil {
		note = out.Err.Error()
	}
	s.completeTask(i, out.Records, findings, out.Degraded || out.Err != nil, note)
	o.metrics.IncTask(string(types.TaskCompleted))
	return nil
}

func (o *Orchestrator) finishTask(s *session, i int, err error) {
	s.failTask(i, err)
	o.metrics.IncTask(string(types.TaskFailed))
	o.log.Warn("task failed", zap.String("session", s.id), zap.Int("task", i), zap.Error(err))
}

// failer is implemented by agent outputs that carry a soft failure.
type failer interface{ Failed() bool }

// call runs one agent step inside a span and records it in the session's
// execution statistics.
func call[In, Out any](ctx context.Context, o *Orchestrator, s *session, a Agent[In, Out], in In) (Out, error) {
	kind := a.Name()
	ctx, span := o.tracer.Start(ctx, "agent."+string(kind), trace.WithAttributes(
		attribute.String("research.session_id", s.id),
		attribute.String("research.agent", string(kind)),
	))
	defer span.End()

	start := o.now()
	out, err := a.Execute(ctx, in)
	ok := err == nil
	if f, isFailer := any(out).(failer); ok && isFailer && f.Failed() {
		ok = false
	}
	s.recordCall(kind, o.now().Sub(start), ok)
	o.metrics.IncAgentCall(string(kind), ok)
	markSpan(span, err)
	return out, err
}

func markSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
