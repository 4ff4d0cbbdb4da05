// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package planning

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/deep-research/pkg/types"
)

// TaskSpec is a task before IDs and status are assigned.
type TaskSpec struct {
	Facet       string `json:"facet"`
	Description string `json:"description"`
	Query       string `json:"query"`
}

// facetCount is how many facets the deterministic policy produces per depth.
var facetCount = map[types.ResearchDepth]int{
	types.DepthBasic:    2,
	types.DepthStandard: 3,
	types.DepthDeep:     5,
	types.DepthExpert:   5,
}

// genericFacets are used in order until the facet count is reached.
var genericFacets = []struct {
	facet       string
	description string
	suffix      string
}{
	{"overview", "Key facts and definitions about %s", "overview key facts"},
	{"evidence", "Data, statistics, and evidence on %s", "statistics data evidence"},
	{"tradeoffs", "Advantages, drawbacks, and criticism of %s", "advantages disadvantages criticism"},
	{"recent", "Latest developments and trends in %s", "latest developments trends"},
	{"expert", "Expert analysis and research studies on %s", "expert analysis research studies"},
}

var comparisonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdifferences?\s+between\s+(.+?)\s+and\s+(.+)$`),
	regexp.MustCompile(`(?i)\bcompar(?:e|ing)\s+(.+?)\s+(?:and|with|to|against|vs\.?|versus)\s+(.+)$`),
	regexp.MustCompile(`(?i)^(?:.*?\b(?:is|are|should\s+i\s+use)\s+)?(.+?)\s+(?:vs\.?|versus)\s+(.+)$`),
}

// ComparisonSubjects returns the two subjects of a comparison question, or
// nil when question is not a comparison.
func ComparisonSubjects(question string) []string {
	q := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(question), "?!."))
	for _, re := range comparisonPatterns {
		m := re.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		a, b := cleanSubject(m[1]), cleanSubject(m[2])
		if a == "" || b == "" || strings.EqualFold(a, b) {
			continue
		}
		return []string{a, b}
	}
	return nil
}

func cleanSubject(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, p := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	return s
}

// Facets is the deterministic decomposition policy. The number of facets
// follows the research depth; comparison questions get one facet per subject
// plus a head-to-head facet before the generic ones.
func Facets(question string, c types.ClarifiedContext) []TaskSpec {
	n, ok := facetCount[c.Depth]
	if !ok {
		n = facetCount[types.DepthStandard]
	}
	topic := strings.TrimSpace(c.Subject)
	if topic == "" {
		topic = strings.TrimRight(strings.TrimSpace(question), "?!.")
	}
	qualifier := qualifierOf(c)

	var specs []TaskSpec
	if subjects := ComparisonSubjects(question); subjects != nil {
		for _, s := range subjects {
			specs = append(specs, TaskSpec{
				Facet:       "subject: " + strings.ToLower(s),
				Description: fmt.Sprintf("Key facts and evidence about %s", s),
				Query:       joinQuery(s, "key facts evidence", qualifier),
			})
		}
		specs = append(specs, TaskSpec{
			Facet:       "comparison",
			Description: fmt.Sprintf("Direct comparison of %s and %s", subjects[0], subjects[1]),
			Query:       joinQuery(subjects[0]+" vs "+subjects[1], "comparison", qualifier),
		})
		if n < len(specs) {
			n = len(specs)
		}
	}

	for _, g := range genericFacets {
		if len(specs) >= n {
			break
		}
		specs = append(specs, TaskSpec{
			Facet:       g.facet,
			Description: fmt.Sprintf(g.description, topic),
			Query:       joinQuery(topic, g.suffix, qualifier),
		})
	}
	return specs
}

// qualifierOf returns the scope and timeframe words worth adding to queries.
func qualifierOf(c types.ClarifiedContext) string {
	var parts []string
	if c.Scope != "" && c.Scope != "general" {
		parts = append(parts, c.Scope)
	}
	if c.Timeframe != "" && c.Timeframe != "current" {
		parts = append(parts, c.Timeframe)
	}
	return strings.Join(parts, " ")
}

func joinQuery(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
