// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reflection

import (
	"strings"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/pdiddy/deep-research/pkg/types"
)

// minClaimWords is the shortest sentence accepted as a claim.
const minClaimWords = 4

// splitSentences breaks a snippet into sentences on '.', '!' or '?'
// followed by whitespace. A trailing fragment cut off by truncation ("...")
// is dropped when at least one full sentence precedes it.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	truncated := strings.HasSuffix(text, "...") || strings.HasSuffix(text, "…")

	var (
		sentences []string
		start     int
	)
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		s := strings.TrimSpace(string(runes[start : i+1]))
		if s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}

	if truncated && len(sentences) > 1 {
		sentences = sentences[:len(sentences)-1]
	}
	return sentences
}

// extractClaims returns up to max sentences of at least minClaimWords words.
func extractClaims(text string, max int) []string {
	var claims []string
	for _, s := range splitSentences(text) {
		if len(strings.Fields(s)) < minClaimWords {
			continue
		}
		claims = append(claims, s)
		if len(claims) == max {
			break
		}
	}
	return claims
}

// normalizeClaim lowercases, strips punctuation and collapses whitespace.
func normalizeClaim(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) over the
// normalized claims, in [0, 1].
func similarity(a, b string) float64 {
	na, nb := normalizeClaim(a), normalizeClaim(b)
	if na == nb {
		return 1
	}
	la, lb := len([]rune(na)), len([]rune(nb))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dmp := diffmatchpatch.New()
	dist := dmp.DiffLevenshtein(dmp.DiffMain(na, nb, false))
	return 1 - float64(dist)/float64(longest)
}

// predicate describes one side of an antonym pair. Modifier predicates
// come from adjectives and quantifiers ("renewable", "more") and only count
// when the claim has no verb predicate.
type predicate struct {
	family   string
	positive bool
	modifier bool
}

// lexicon maps predicate words to their family and polarity. Two claims in
// the same family with opposite polarity contradict each other.
var lexicon = buildLexicon(map[string][2][]string{
	"increase": {
		{"increase", "increases", "increased", "increasing", "raise", "raises", "raised", "rise", "rises", "rising", "boost", "boosts", "grow", "grows", "growing", "higher", "more"},
		{"decrease", "decreases", "decreased", "decreasing", "reduce", "reduces", "reduced", "reducing", "lower", "lowers", "lowered", "cut", "cuts", "decline", "declines", "declining", "fall", "falls", "falling", "drop", "drops", "less", "fewer"},
	},
	"improve": {
		{"improve", "improves", "improved", "improving", "benefit", "benefits", "enhance", "enhances", "helps", "strengthens"},
		{"worsen", "worsens", "worsened", "worsening", "harm", "harms", "harmed", "damage", "damages", "hurt", "hurts", "degrade", "degrades", "weakens"},
	},
	"safety": {
		{"safe", "safer", "harmless"},
		{"unsafe", "dangerous", "hazardous", "harmful"},
	},
	"effective": {
		{"effective", "efficient", "reliable"},
		{"ineffective", "inefficient", "unreliable"},
	},
	"cost": {
		{"cheap", "cheaper", "affordable", "inexpensive"},
		{"expensive", "costly", "unaffordable"},
	},
	"evidence": {
		{"supports", "confirms", "proves", "demonstrates"},
		{"refutes", "contradicts", "disproves", "undermines"},
	},
	"cause": {
		{"causes", "cause", "causing", "triggers"},
		{"prevents", "prevent", "preventing", "avoids"},
	},
	"sustainable": {
		{"sustainable", "renewable", "clean"},
		{"unsustainable", "nonrenewable", "polluting", "dirty"},
	},
})

// modifierFamilies hold adjectives only.
var modifierFamilies = map[string]bool{
	"safety": true, "effective": true, "cost": true, "sustainable": true,
}

// quantifiers are the adjective forms inside verb families.
var quantifiers = map[string]bool{
	"higher": true, "more": true, "lower": true, "less": true, "fewer": true,
}

func buildLexicon(families map[string][2][]string) map[string]predicate {
	m := make(map[string]predicate)
	for family, sides := range families {
		for i, side := range sides {
			for _, w := range side {
				m[w] = predicate{
					family:   family,
					positive: i == 0,
					modifier: modifierFamilies[family] || quantifiers[w],
				}
			}
		}
	}
	return m
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "neither": true, "nor": true, "without": true,
	"doesnt": true, "dont": true, "didnt": true, "isnt": true, "arent": true, "wasnt": true,
	"werent": true, "cannot": true, "cant": true, "wont": true, "hardly": true,
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true, "these": true,
	"those": true, "are": true, "was": true, "were": true, "has": true, "have": true, "had": true,
	"its": true, "their": true, "from": true, "into": true, "than": true, "then": true, "also": true,
	"can": true, "could": true, "may": true, "might": true, "will": true, "would": true, "should": true,
	"does": true, "did": true, "been": true, "being": true, "which": true, "while": true, "when": true,
	"such": true, "some": true, "many": true, "most": true, "very": true, "much": true, "by": true,
	"significantly": true, "substantially": true, "greatly": true, "slightly": true,
}

// analysis is a claim reduced to its predicate and subject.
type analysis struct {
	pred    predicate
	hasPred bool
	subject []string
}

// analyze picks the claim's predicate, flips its polarity for each negation
// that precedes it, and collects the remaining content words as the subject.
// The first verb predicate wins; the first modifier is used only when the
// claim has no verb predicate.
func analyze(claim string) analysis {
	var (
		a               analysis
		verb, mod       predicate
		hasVerb, hasMod bool
		negVerb, negMod bool
		negated         bool
		seen            = make(map[string]bool)
	)

	for _, tok := range tokens(claim) {
		if negations[tok] {
			negated = !negated
			continue
		}
		if p, ok := lexicon[tok]; ok {
			switch {
			case !p.modifier && !hasVerb:
				verb, hasVerb, negVerb = p, true, negated
			case p.modifier && !hasMod:
				mod, hasMod, negMod = p, true, negated
			}
			continue
		}
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		stem := stemToken(tok)
		if !seen[stem] {
			seen[stem] = true
			a.subject = append(a.subject, stem)
		}
	}

	switch {
	case hasVerb:
		a.pred, a.hasPred = verb, true
		negated = negVerb
	case hasMod:
		a.pred, a.hasPred = mod, true
		negated = negMod
	}
	if a.hasPred && negated {
		a.pred.positive = !a.pred.positive
	}
	return a
}

// opposedWording reports whether the words x and y do not share include a
// pair of opposite polarity in one lexicon family, or a negation on one side.
func opposedWording(x, y string) bool {
	tx, ty := tokenSet(x), tokenSet(y)
	var onlyX, onlyY []string
	for w := range tx {
		if !ty[w] {
			onlyX = append(onlyX, w)
		}
	}
	for w := range ty {
		if !tx[w] {
			onlyY = append(onlyY, w)
		}
	}
	negX, negY := 0, 0
	for _, w := range onlyX {
		if negations[w] {
			negX++
		}
	}
	for _, w := range onlyY {
		if negations[w] {
			negY++
		}
	}
	if negX%2 != negY%2 {
		return true
	}
	for _, wx := range onlyX {
		px, ok := lexicon[wx]
		if !ok {
			continue
		}
		for _, wy := range onlyY {
			if py, ok := lexicon[wy]; ok && px.family == py.family && px.positive != py.positive {
				return true
			}
		}
	}
	return false
}

func tokenSet(claim string) map[string]bool {
	m := make(map[string]bool)
	for _, tok := range tokens(claim) {
		m[tok] = true
	}
	return m
}

// tokens lowercases claim and splits it into words, dropping apostrophes so
// that "doesn't" becomes "doesnt".
func tokens(claim string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(claim) {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// stemToken strips a plural "s" so that "emission" and "emissions" match.
func stemToken(tok string) string {
	if len(tok) > 4 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
		return strings.TrimSuffix(tok, "s")
	}
	return tok
}

// jaccard returns |a ∩ b| / |a ∪ b| and the shared words in a's order.
func jaccard(a, b []string) (float64, []string) {
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}
	inB := make(map[string]bool, len(b))
	for _, w := range b {
		inB[w] = true
	}
	var shared []string
	union := len(b)
	for _, w := range a {
		if inB[w] {
			shared = append(shared, w)
		} else {
			union++
		}
	}
	return float64(len(shared)) / float64(union), shared
}

// categoryWords assigns a conflict category from words in either claim,
// checked in order; perspectival is the default.
var categoryWords = []struct {
	category types.ConflictCategory
	words    []string
}{
	{types.ConflictTemporal, []string{"recent", "recently", "latest", "new", "old", "dated", "current", "currently", "now", "today", "historically", "previously"}},
	{types.ConflictMethodological, []string{"method", "methods", "approach", "study", "studies", "research", "analysis", "survey", "model", "experiment", "trial"}},
	{types.ConflictPerspectival, []string{"perspective", "view", "views", "opinion", "belief", "stance", "argue", "argues", "critics", "proponents"}},
	{types.ConflictDataQuality, []string{"quality", "reliable", "accurate", "valid", "credible", "estimate", "estimates", "data", "unverified"}},
}

func categorize(a, b string) types.ConflictCategory {
	words := make(map[string]bool)
	for _, t := range tokens(a + " " + b) {
		words[t] = true
	}
	for _, c := range categoryWords {
		for _, w := range c.words {
			if words[w] {
				return c.category
			}
		}
	}
	return types.ConflictPerspectival
}

// Resolution describes how the report treats a conflict of the given category.
func Resolution(c types.ConflictCategory) string {
	switch c {
	case types.ConflictTemporal:
		return "Prioritize more recent sources and note the temporal context."
	case types.ConflictMethodological:
		return "Compare the methodological approaches and note their respective strengths."
	case types.ConflictDataQuality:
		return "Assess source reliability and weight higher-quality sources."
	default:
		return "Acknowledge both perspectives and present a balanced view."
	}
}
