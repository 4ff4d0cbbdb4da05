// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package requirements

import (
	"regexp"
	"strings"

	"github.com/pdiddy/deep-research/pkg/types"
)

// Ambiguity names.
const (
	AmbiguitySubject   = "subject"
	AmbiguityScope     = "scope"
	AmbiguityTimeframe = "timeframe"
)

// Values used when an ambiguity is filled without an answer.
const (
	DefaultScope     = "general"
	DefaultTimeframe = "current"
)

var (
	deepWords  = []string{"compare", "analyze", "analyse", "evaluate", "comprehensive", "detailed", "in-depth"}
	basicWords = []string{"brief", "briefly", "quick", "summary", "summarize", "tl;dr"}

	expertIndicators = []string{
		"methodology", "framework", "paradigm", "theoretical", "empirical",
		"quantitative", "qualitative", "meta-analysis", "systematic review",
	}
	beginnerIndicators = []string{"what is", "define", "explain", "basics", "introduction", "simple"}
)

// focusRules maps a focus area to the phrases that select it.
var focusRules = []struct {
	area    string
	phrases []string
}{
	{"technical", []string{"technical"}},
	{"practical", []string{"practical", "application"}},
	{"academic", []string{"academic", "research"}},
}

// followUps holds the question asked for each ambiguity.
var followUps = map[string]string{
	AmbiguitySubject:   "What specific subject should the research focus on?",
	AmbiguityScope:     "What scope should the research cover (for example a region, industry, or population)?",
	AmbiguityTimeframe: "What timeframe matters (for example the last five years, or historical trends)?",
}

var (
	timeframeRe = regexp.MustCompile(`(?i)\b(?:(?:since|before|after|by|until)\s+)?(?:1[89]\d{2}|20\d{2})s?\b|\b(?:currently|current|recently|recent|today|nowadays|now|latest|modern|historically|historical|history|future|past|upcoming|decades?|century|(?:this|next|last)\s+(?:year|decade))\b`)
	scopeRe     = regexp.MustCompile(`(?i)\b(?:in|for|among|within|across|on)\s+((?:the\s+)?[\w-]+(?:\s+[\w-]+){0,3})`)
)

// fillerWords are dropped when extracting the subject of a question.
var fillerWords = map[string]bool{
	"what": true, "whats": true, "is": true, "are": true, "was": true, "were": true, "the": true,
	"a": true, "an": true, "how": true, "does": true, "do": true, "did": true, "why": true,
	"when": true, "where": true, "which": true, "who": true, "explain": true, "define": true,
	"tell": true, "me": true, "about": true, "of": true, "can": true, "could": true, "you": true,
	"please": true, "should": true, "i": true, "we": true, "give": true, "describe": true,
	"basics": true, "introduction": true, "to": true, "brief": true, "briefly": true, "summary": true,
	"detailed": true, "comprehensive": true, "compare": true, "analyze": true, "analyse": true,
	"evaluate": true, "it": true, "this": true, "that": true, "they": true, "them": true,
	"some": true, "any": true, "more": true, "simple": true, "quick": true, "overview": true,
	"information": true, "info": true, "stuff": true, "things": true, "thing": true, "research": true,
}

// Analyze applies the keyword rules to a question without asking anything.
// Ambiguities are reported but not filled.
func Analyze(question string) types.ClarifiedContext {
	q := strings.TrimSpace(question)
	lower := strings.ToLower(q)

	c := types.ClarifiedContext{
		OriginalQuestion:  q,
		ClarifiedQuestion: q,
		Depth:             depthFor(lower),
		Expertise:         expertiseFor(lower),
		Preferences:       preferencesFor(lower),
		Subject:           subjectOf(q),
		Timeframe:         timeframeOf(q),
	}
	if c.Expertise == types.ExpertiseExpert && c.Depth == types.DepthDeep {
		c.Depth = types.DepthExpert
	}
	c.Scope = scopeOf(q)
	if c.Scope == "" && len(c.Preferences.FocusAreas) > 0 {
		c.Scope = strings.Join(c.Preferences.FocusAreas, ", ")
	}

	if c.Subject == "" {
		c.Ambiguities = append(c.Ambiguities, AmbiguitySubject)
	}
	if c.Scope == "" {
		c.Ambiguities = append(c.Ambiguities, AmbiguityScope)
	}
	if c.Timeframe == "" {
		c.Ambiguities = append(c.Ambiguities, AmbiguityTimeframe)
	}
	return c
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func depthFor(lower string) types.ResearchDepth {
	switch {
	case containsAny(lower, deepWords):
		return types.DepthDeep
	case containsAny(lower, basicWords):
		return types.DepthBasic
	default:
		return types.DepthStandard
	}
}

func expertiseFor(lower string) types.Expertise {
	switch {
	case containsAny(lower, expertIndicators):
		return types.ExpertiseExpert
	case containsAny(lower, beginnerIndicators):
		return types.ExpertiseBeginner
	default:
		return types.ExpertiseIntermediate
	}
}

func preferencesFor(lower string) types.Preferences {
	p := types.Preferences{DetailLevel: "standard"}
	for _, r := range focusRules {
		if containsAny(lower, r.phrases) {
			p.FocusAreas = append(p.FocusAreas, r.area)
		}
	}
	switch {
	case strings.Contains(lower, "detailed") || strings.Contains(lower, "comprehensive"):
		p.DetailLevel = "high"
	case strings.Contains(lower, "brief") || strings.Contains(lower, "summary"):
		p.DetailLevel = "low"
	}
	return p
}

// subjectOf returns the content words of question in order, lowercased.
func subjectOf(question string) string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(question)) {
		w = strings.Trim(w, "?!.,;:\"'()")
		w = strings.ReplaceAll(w, "'", "")
		if w == "" || fillerWords[w] {
			continue
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}

func timeframeOf(question string) string {
	return strings.TrimSpace(timeframeRe.FindString(question))
}

// scopeOf returns the first prepositional phrase, cut before any timeframe.
func scopeOf(question string) string {
	for _, m := range scopeRe.FindAllStringSubmatch(question, -1) {
		phrase := m[1]
		if loc := timeframeRe.FindStringIndex(phrase); loc != nil {
			phrase = phrase[:loc[0]]
		}
		phrase = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(phrase), "?!.,;:"))
		if phrase == "" || strings.EqualFold(phrase, "the") {
			continue
		}
		return phrase
	}
	return ""
}
