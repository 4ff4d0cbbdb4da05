// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyQuestion is returned when a research question is blank.
var ErrEmptyQuestion = errors.New("empty research question")

// TaskStatus is the lifecycle state of a ResearchTask.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// IsTerminal reports whether the status is completed or failed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// AgentKind names one of the fixed pipeline agents.
type AgentKind string

const (
	AgentRequirements AgentKind = "requirements"
	AgentPlanning     AgentKind = "planning"
	AgentSearch       AgentKind = "search"
	AgentReflection   AgentKind = "reflection"
	AgentCitations    AgentKind = "citations"
)

// AllAgents lists every agent kind in pipeline order.
var AllAgents = []AgentKind{AgentRequirements, AgentPlanning, AgentSearch, AgentReflection, AgentCitations}

// ResearchTask is one sub-question produced by planning and executed by the
// orchestrator.
type ResearchTask struct {
	// ID is unique within a session and stable for identical plans.
	ID string `json:"id" yaml:"id"`

	// Facet is the topic facet this task covers (e.g. "overview", "drawbacks").
	Facet string `json:"facet" yaml:"facet"`

	// Description is a human-readable statement of the sub-question.
	Description string `json:"description" yaml:"description"`

	// Query is the search query issued for this task.
	Query string `json:"query" yaml:"query"`

	Status        TaskStatus `json:"status" yaml:"status"`
	AssignedAgent AgentKind  `json:"assigned_agent" yaml:"assigned_agent"`
	Result        TaskResult `json:"result" yaml:"result"`
}

// TaskResult records what a task produced.
type TaskResult struct {
	SourceIDs  []string `json:"source_ids,omitempty" yaml:"source_ids,omitempty"`
	FindingIDs []string `json:"finding_ids,omitempty" yaml:"finding_ids,omitempty"`

	// Degraded is set when the task ran on fallback data.
	Degraded bool `json:"degraded,omitempty" yaml:"degraded,omitempty"`

	// Error records the failure message for failed tasks.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Finding tags.
const (
	TagDisputed      = "disputed"
	TagLowConfidence = "low-confidence"
	TagFallbackData  = "fallback-data"
)

// Finding is a synthesized claim supported by one or more source records.
// SourceIDs are weak references: a finding never owns its sources.
type Finding struct {
	ID     string `json:"id" yaml:"id"`
	TaskID string `json:"task_id" yaml:"task_id"`

	// Claim is the claim text as it appeared in the best supporting source.
	Claim string `json:"claim" yaml:"claim"`

	// Subject is the normalized subject the claim is about, used for conflict detection.
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`

	SourceIDs []string `json:"source_ids" yaml:"source_ids"`

	// Confidence is between 0.0 and 1.0 and grows with the number and
	// quality of corroborating sources.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	Disputed      bool     `json:"disputed,omitempty" yaml:"disputed,omitempty"`
	ConflictsWith []string `json:"conflicts_with,omitempty" yaml:"conflicts_with,omitempty"`
	Tags          []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// HasTag reports whether the finding carries tag.
func (f Finding) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ConflictCategory classifies why two findings disagree.
type ConflictCategory string

const (
	ConflictTemporal       ConflictCategory = "temporal"
	ConflictMethodological ConflictCategory = "methodological"
	ConflictPerspectival   ConflictCategory = "perspectival"
	ConflictDataQuality    ConflictCategory = "data_quality"
)

// Conflict links two findings that make mutually exclusive claims about the
// same subject.
type Conflict struct {
	FindingIDs [2]string        `json:"finding_ids" yaml:"finding_ids,flow"`
	Subject    string           `json:"subject" yaml:"subject"`
	Category   ConflictCategory `json:"category" yaml:"category"`
}

// CitationStyle selects a reference format.
type CitationStyle string

const (
	StyleAPA CitationStyle = "APA"
	StyleMLA CitationStyle = "MLA"
)

// ParseCitationStyle accepts "apa" or "mla" in any case.
func ParseCitationStyle(s string) (CitationStyle, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(StyleAPA):
		return StyleAPA, nil
	case string(StyleMLA):
		return StyleMLA, nil
	default:
		return "", fmt.Errorf("unknown citation style %q: use APA or MLA", s)
	}
}

// Citation is a formatted reference to exactly one source record.
type Citation struct {
	Text     string        `json:"text" yaml:"text"`
	Style    CitationStyle `json:"style" yaml:"style"`
	SourceID string        `json:"source_id" yaml:"source_id"`
}

// ResearchDepth controls how many facets planning decomposes a question into.
type ResearchDepth string

const (
	DepthBasic    ResearchDepth = "basic"
	DepthStandard ResearchDepth = "standard"
	DepthDeep     ResearchDepth = "deep"
	DepthExpert   ResearchDepth = "expert"
)

// Expertise is the estimated expertise of the person asking.
type Expertise string

const (
	ExpertiseBeginner     Expertise = "beginner"
	ExpertiseIntermediate Expertise = "intermediate"
	ExpertiseExpert       Expertise = "expert"
)

// Preferences are hints extracted from the wording of a question.
type Preferences struct {
	DetailLevel string   `json:"detail_level" yaml:"detail_level"`
	FocusAreas  []string `json:"focus_areas,omitempty" yaml:"focus_areas,omitempty"`
}

// QA is one follow-up question asked during clarification and its answer.
type QA struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// ClarifiedContext is the output of requirement gathering.
type ClarifiedContext struct {
	OriginalQuestion  string        `json:"original_question" yaml:"original_question"`
	ClarifiedQuestion string        `json:"clarified_question" yaml:"clarified_question"`
	Subject           string        `json:"subject" yaml:"subject"`
	Scope             string        `json:"scope" yaml:"scope"`
	Timeframe         string        `json:"timeframe" yaml:"timeframe"`
	Depth             ResearchDepth `json:"depth" yaml:"depth"`
	Expertise         Expertise     `json:"expertise" yaml:"expertise"`
	Preferences       Preferences   `json:"preferences" yaml:"preferences"`

	// Ambiguities lists what the question left unspecified ("scope", "timeframe", "subject").
	Ambiguities []string `json:"ambiguities,omitempty" yaml:"ambiguities,omitempty"`
	FollowUps   []QA     `json:"follow_ups,omitempty" yaml:"follow_ups,omitempty"`

	// Defaulted is set when ambiguities were filled with defaults instead of answers.
	Defaulted bool `json:"defaulted,omitempty" yaml:"defaulted,omitempty"`
}

// ResearchMode distinguishes the two entry points.
type ResearchMode string

const (
	ModeQuick         ResearchMode = "quick"
	ModeComprehensive ResearchMode = "comprehensive"
)

// ResearchReport is the final artifact of a research session. It is
// immutable once returned to the caller.
type ResearchReport struct {
	SessionID   string           `json:"session_id" yaml:"session_id"`
	Mode        ResearchMode     `json:"mode" yaml:"mode"`
	Question    string           `json:"question" yaml:"question"`
	Context     ClarifiedContext `json:"context" yaml:"context"`
	Tasks       []ResearchTask   `json:"tasks" yaml:"tasks"`
	Sources     []SourceRecord   `json:"sources" yaml:"sources"`
	Findings    []Finding        `json:"findings" yaml:"findings"`
	Conflicts   []Conflict       `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	Citations   []Citation       `json:"citations" yaml:"citations"`
	Summary     string           `json:"summary" yaml:"summary"`
	Caveats     []string         `json:"caveats,omitempty" yaml:"caveats,omitempty"`
	Execution   ExecutionSummary `json:"execution" yaml:"execution"`
	GeneratedAt time.Time        `json:"generated_at" yaml:"generated_at"`
}

// Source returns the record with the given ID.
func (r *ResearchReport) Source(id string) (SourceRecord, bool) {
	for _, s := range r.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceRecord{}, false
}

// FailedTasks returns the tasks that ended in failure.
func (r *ResearchReport) FailedTasks() []ResearchTask {
	var failed []ResearchTask
	for _, t := range r.Tasks {
		if t.Status == TaskFailed {
			failed = append(failed, t)
		}
	}
	return failed
}
