// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"sync"
	"time"

	"github.com/pdiddy/deep-research/pkg/types"
)

// EventSink receives progress events. Emit is called synchronously and in
// order from the session's goroutines, so implementations must return
// promptly.
type EventSink interface {
	Emit(ev types.ProgressEvent)
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(ev types.ProgressEvent)

// Emit calls f.
func (f SinkFunc) Emit(ev types.ProgressEvent) { f(ev) }

type nopSink struct{}

func (nopSink) Emit(types.ProgressEvent) {}

// session is the in-memory state of one research run. Everything is
// discarded when the run ends; only the report built from it survives.
type session struct {
	id       string
	mode     types.ResearchMode
	question string
	style    types.CitationStyle
	started  time.Time
	now      func() time.Time
	sink     EventSink
	machine  *machine

	context types.ClarifiedContext

	mu       sync.Mutex
	seq      int64
	tasks    []types.ResearchTask
	records  [][]types.SourceRecord // per task, in task order
	findings [][]types.Finding      // per task, in task order
	sourceN  int
	findingN int
	seen     map[string]bool
	stats    map[types.AgentKind]*types.AgentStats
}

func newSession(id string, mode types.ResearchMode, question string, style types.CitationStyle,
	now func() time.Time, sink EventSink, m *machine) *session {
	if sink == nil {
		sink = nopSink{}
	}
	return &session{
		id:       id,
		mode:     mode,
		question: question,
		style:    style,
		started:  now(),
		now:      now,
		sink:     sink,
		machine:  m,
		seen:     make(map[string]bool),
		stats:    make(map[types.AgentKind]*types.AgentStats),
	}
}

// emit sends a session-level event for the current phase.
func (s *session) emit(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(types.ProgressEvent{Message: msg})
}

// emitLocked stamps ev with the next sequence number and running totals.
// s.mu must be held.
func (s *session) emitLocked(ev types.ProgressEvent) {
	s.seq++
	ev.Seq = s.seq
	ev.SessionID = s.id
	ev.Phase = s.machine.phase
	ev.Sources = s.sourceN
	ev.Findings = s.findingN
	ev.Time = s.now()
	s.sink.Emit(ev)
}

// transition runs a state machine step and announces the new phase.
func (s *session) transition(step func() error, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := step(); err != nil {
		return err
	}
	s.emitLocked(types.ProgressEvent{Message: msg})
	return nil
}

// setTasks installs the plan.
func (s *session) setTasks(tasks []types.ResearchTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append([]types.ResearchTask(nil), tasks...)
	s.records = make([][]types.SourceRecord, len(tasks))
	s.findings = make([][]types.Finding, len(tasks))
}

// startTask marks task i in progress.
func (s *session) startTask(i int) types.ResearchTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[i].Status = types.TaskInProgress
	t := s.tasks[i]
	s.emitLocked(types.ProgressEvent{TaskID: t.ID, Status: t.Status, Message: "researching: " + t.Description})
	return t
}

// completeTask records what task i produced and marks it completed.
func (s *session) completeTask(i int, records []types.SourceRecord, findings []types.Finding, degraded bool, note string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[i] = records
	s.findings[i] = findings
	for _, r := range records {
		if !s.seen[r.ID] {
			s.seen[r.ID] = true
			s.sourceN++
		}
	}
	s.findingN += len(findings)

	t := &s.tasks[i]
	t.Status = types.TaskCompleted
	t.Result = types.TaskResult{
		SourceIDs:  sourceIDs(records),
		FindingIDs: findingIDs(findings),
		Degraded:   degraded,
		Error:      note,
	}
	msg := "completed: " + t.Description
	if degraded {
		msg += " (fallback data)"
	}
	s.emitLocked(types.ProgressEvent{TaskID: t.ID, Status: t.Status, Message: msg})
}

// failTask marks task i failed with err.
func (s *session) failTask(i int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &s.tasks[i]
	t.Status = types.TaskFailed
	t.Result.Error = err.Error()
	s.emitLocked(types.ProgressEvent{TaskID: t.ID, Status: t.Status, Message: "failed: " + err.Error()})
}

// recordCall adds one agent call to the execution statistics.
func (s *session) recordCall(kind types.AgentKind, d time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[kind]
	if st == nil {
		st = &types.AgentStats{}
		s.stats[kind] = st
	}
	st.Calls++
	if ok {
		st.Successes++
	}
	st.TotalDuration += d
	st.AverageDuration = st.TotalDuration / time.Duration(st.Calls)
}

// gathered returns all findings and de-duplicated records in task order.
func (s *session) gathered() ([]types.Finding, []types.SourceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		findings []types.Finding
		records  []types.SourceRecord
		seen     = make(map[string]bool)
	)
	for i := range s.tasks {
		findings = append(findings, s.findings[i]...)
		for _, r := range s.records[i] {
			if !seen[r.ID] {
				seen[r.ID] = true
				records = append(records, r)
			}
		}
	}
	return findings, records
}

// remapFindings rewrites task FindingIDs after cross-task merging and
// updates the running finding total.
func (s *session) remapFindings(merged map[string]string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		ids := s.tasks[i].Result.FindingIDs
		if len(ids) == 0 {
			continue
		}
		var out []string
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if to, ok := merged[id]; ok {
				id = to
			}
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
		s.tasks[i].Result.FindingIDs = out
	}
	s.findingN = total
}

// execution summarizes agent calls and phase handoffs.
func (s *session) execution() types.ExecutionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := types.ExecutionSummary{
		Handoffs: s.machine.handoffs,
		Agents:   make(map[types.AgentKind]types.AgentStats, len(s.stats)),
		Duration: s.now().Sub(s.started),
	}
	successes := 0
	for kind, st := range s.stats {
		sum.Agents[kind] = *st
		sum.Operations += st.Calls
		successes += st.Successes
	}
	if sum.Operations > 0 {
		sum.SuccessRate = float64(successes) / float64(sum.Operations)
	}
	return sum
}

// snapshotTasks returns a deep copy of the tasks.
func (s *session) snapshotTasks() []types.ResearchTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ResearchTask, len(s.tasks))
	for i, t := range s.tasks {
		t.Result.SourceIDs = append([]string(nil), t.Result.SourceIDs...)
		t.Result.FindingIDs = append([]string(nil), t.Result.FindingIDs...)
		out[i] = t
	}
	return out
}

func sourceIDs(records []types.SourceRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func findingIDs(findings []types.Finding) []string {
	ids := make([]string, len(findings))
	for i, f := range findings {
		ids[i] = f.ID
	}
	return ids
}
