// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reflection turns source records into findings: it extracts claims
// from snippets, merges near-identical claims, scores confidence from source
// quality and corroboration, and flags contradictory findings as disputed.
package reflection

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/pkg/types"
)

// Per-source weights in the confidence formula.
var qualityWeight = map[types.Quality]float64{
	types.QualityHigh:   0.5,
	types.QualityMedium: 0.3,
	types.QualityLow:    0.15,
}

const (
	// fallbackCap is the highest confidence a finding backed only by
	// fallback data can reach.
	fallbackCap = 0.3

	// lowConfidence is the threshold below which findings are tagged low-confidence.
	lowConfidence = 0.3
)

// Confidence combines supporting sources as 1 - Π(1 - wᵢ) where wᵢ is the
// weight of source i's quality tier. Adding a source or raising a source's
// tier never lowers the result.
func Confidence(qualities []types.Quality) float64 {
	miss := 1.0
	for _, q := range qualities {
		w, ok := qualityWeight[q]
		if !ok {
			w = qualityWeight[types.QualityLow]
		}
		miss *= 1 - w
	}
	return math.Round((1-miss)*1000) / 1000
}

// Input is one reflection call: the records retrieved for a task.
type Input struct {
	Task    types.ResearchTask
	Records []types.SourceRecord
}

// Agent is the reflection step of the research pipeline.
type Agent struct {
	cfg types.ReflectionConfig
	log *zap.Logger
}

// NewAgent creates a reflection agent. Zero config values take the defaults.
func NewAgent(cfg types.ReflectionConfig, log *zap.Logger) *Agent {
	def := types.DefaultConfig().Reflection
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.MaxClaimsPerSource <= 0 {
		cfg.MaxClaimsPerSource = def.MaxClaimsPerSource
	}
	if cfg.ConflictOverlap <= 0 {
		cfg.ConflictOverlap = def.ConflictOverlap
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{cfg: cfg, log: log}
}

// Name returns the agent kind.
func (a *Agent) Name() types.AgentKind { return types.AgentReflection }

// Execute runs Synthesize. It satisfies the common agent capability.
func (a *Agent) Execute(ctx context.Context, in Input) ([]types.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.Synthesize(in.Records, in.Task), nil
}

// candidate is a claim under construction.
type candidate struct {
	claim     string
	bestW     float64
	sourceIDs []string
}

// Synthesize extracts findings for task from records. Near-identical claims
// are merged and their sources combined; contradictory findings are kept
// and tagged disputed. Findings are ordered by confidence, highest first.
func (a *Agent) Synthesize(records []types.SourceRecord, task types.ResearchTask) []types.Finding {
	byID := indexRecords(records)

	var cands []*candidate
	for _, r := range records {
		claims := extractClaims(r.Snippet, a.cfg.MaxClaimsPerSource)
		if len(claims) == 0 && strings.TrimSpace(r.Title) != "" {
			claims = []string{strings.TrimSpace(r.Title)}
		}
		w := qualityWeight[r.Quality]
		for _, claim := range claims {
			if c := a.match(cands, claim); c != nil {
				c.sourceIDs = appendUnique(c.sourceIDs, r.ID)
				if w > c.bestW {
					c.claim, c.bestW = claim, w
				}
				continue
			}
			cands = append(cands, &candidate{claim: claim, bestW: w, sourceIDs: []string{r.ID}})
		}
	}

	findings := make([]types.Finding, 0, len(cands))
	for _, c := range cands {
		f := types.Finding{
			ID:        findingID(task.ID, c.claim),
			TaskID:    task.ID,
			Claim:     c.claim,
			Subject:   strings.Join(analyze(c.claim).subject, " "),
			SourceIDs: c.sourceIDs,
		}
		score(&f, byID)
		findings = append(findings, f)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Confidence > findings[j].Confidence
	})

	findings, _ = a.detectConflicts(findings)
	a.log.Debug("synthesized findings",
		zap.String("task", task.ID),
		zap.Int("sources", len(records)),
		zap.Int("findings", len(findings)))
	return findings
}

func (a *Agent) match(cands []*candidate, claim string) *candidate {
	for _, c := range cands {
		if a.duplicate(c.claim, claim) {
			return c
		}
	}
	return nil
}

// duplicate reports whether two claims say the same thing. Claims whose
// differing words are opposites ("increases" / "decreases") or a negation
// are textually close but contradictory, so they are never merged.
func (a *Agent) duplicate(x, y string) bool {
	if similarity(x, y) < a.cfg.SimilarityThreshold {
		return false
	}
	if opposedWording(x, y) {
		return false
	}
	ok, _ := a.contradicts(analyze(x), analyze(y))
	return !ok
}

// contradicts reports whether two analysed claims use opposite predicates
// of one family about overlapping subjects, and returns the shared subject words.
func (a *Agent) contradicts(x, y analysis) (bool, []string) {
	if !x.hasPred || !y.hasPred {
		return false, nil
	}
	if x.pred.family != y.pred.family || x.pred.positive == y.pred.positive {
		return false, nil
	}
	overlap, shared := jaccard(x.subject, y.subject)
	return overlap >= a.cfg.ConflictOverlap, shared
}

// Reconciliation is the result of cross-task reconciliation.
type Reconciliation struct {
	Findings  []types.Finding
	Conflicts []types.Conflict

	// Merged maps the ID of each finding folded into another to the ID of
	// the finding that absorbed it.
	Merged map[string]string
}

// Reconcile merges near-identical findings produced by different tasks and
// detects contradictions across the whole set. records resolves source IDs
// when confidence is recomputed for merged findings. Input order is kept.
func (a *Agent) Reconcile(findings []types.Finding, records []types.SourceRecord) Reconciliation {
	byID := indexRecords(records)
	out := Reconciliation{Merged: make(map[string]string)}

	var kept []types.Finding
	for _, f := range findings {
		f = cloneFinding(f)
		merged := false
		for i := range kept {
			if !a.duplicate(kept[i].Claim, f.Claim) {
				continue
			}
			for _, id := range f.SourceIDs {
				kept[i].SourceIDs = appendUnique(kept[i].SourceIDs, id)
			}
			score(&kept[i], byID)
			out.Merged[f.ID] = kept[i].ID
			merged = true
			break
		}
		if !merged {
			kept = append(kept, f)
		}
	}

	out.Findings, out.Conflicts = a.detectConflicts(kept)
	if len(out.Conflicts) > 0 {
		a.log.Info("conflicting findings detected", zap.Int("conflicts", len(out.Conflicts)))
	}
	return out
}

// detectConflicts clears and recomputes dispute markers over findings.
func (a *Agent) detectConflicts(findings []types.Finding) ([]types.Finding, []types.Conflict) {
	analyses := make([]analysis, len(findings))
	for i := range findings {
		findings[i].Disputed = false
		findings[i].ConflictsWith = nil
		findings[i].Tags = removeTag(findings[i].Tags, types.TagDisputed)
		analyses[i] = analyze(findings[i].Claim)
	}

	var conflicts []types.Conflict
	for i := 0; i < len(findings); i++ {
		for j := i + 1; j < len(findings); j++ {
			ok, shared := a.contradicts(analyses[i], analyses[j])
			if !ok {
				continue
			}

			markDisputed(&findings[i], findings[j].ID)
			markDisputed(&findings[j], findings[i].ID)
			conflicts = append(conflicts, types.Conflict{
				FindingIDs: [2]string{findings[i].ID, findings[j].ID},
				Subject:    strings.Join(shared, " "),
				Category:   categorize(findings[i].Claim, findings[j].Claim),
			})
		}
	}
	return findings, conflicts
}

func markDisputed(f *types.Finding, other string) {
	f.Disputed = true
	f.ConflictsWith = appendUnique(f.ConflictsWith, other)
	if !f.HasTag(types.TagDisputed) {
		f.Tags = append(f.Tags, types.TagDisputed)
	}
}

// score sets confidence and the confidence tags from the finding's sources.
func score(f *types.Finding, byID map[string]types.SourceRecord) {
	var (
		qualities   []types.Quality
		allFallback = len(f.SourceIDs) > 0
	)
	for _, id := range f.SourceIDs {
		r, ok := byID[id]
		if !ok {
			qualities = append(qualities, types.QualityLow)
			continue
		}
		qualities = append(qualities, r.Quality)
		if !r.Fallback {
			allFallback = false
		}
	}

	f.Confidence = Confidence(qualities)
	f.Tags = removeTag(removeTag(f.Tags, types.TagLowConfidence), types.TagFallbackData)
	if allFallback {
		f.Confidence = math.Min(f.Confidence, fallbackCap)
		f.Tags = append(f.Tags, types.TagLowConfidence, types.TagFallbackData)
		return
	}
	if f.Confidence < lowConfidence {
		f.Tags = append(f.Tags, types.TagLowConfidence)
	}
}

func indexRecords(records []types.SourceRecord) map[string]types.SourceRecord {
	m := make(map[string]types.SourceRecord, len(records))
	for _, r := range records {
		m[r.ID] = r
	}
	return m
}

// findingID is stable for a task and normalized claim.
func findingID(taskID, claim string) string {
	sum := sha256.Sum256([]byte(taskID + "\x00" + normalizeClaim(claim)))
	return "f-" + fmt.Sprintf("%x", sum[:])[:12]
}

func cloneFinding(f types.Finding) types.Finding {
	f.SourceIDs = append([]string(nil), f.SourceIDs...)
	f.ConflictsWith = append([]string(nil), f.ConflictsWith...)
	f.Tags = append([]string(nil), f.Tags...)
	return f
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func removeTag(tags []string, tag string) []string {
	out := tags[:0]
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
