// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package citation formats source records as references. Formatting is a
// pure function of the record and style: identical input always yields
// identical text.
package citation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrUnsupportedStyle is returned for a style other than APA or MLA.
var ErrUnsupportedStyle = errors.New("unsupported citation style")

// modelSiteName is the site shown for sources generated by the model.
const modelSiteName = "Language model background knowledge"

// Format renders one source record in the given style.
func Format(r types.SourceRecord, style types.CitationStyle) (types.Citation, error) {
	var text string
	switch style {
	case types.StyleAPA:
		text = formatAPA(r)
	case types.StyleMLA:
		text = formatMLA(r)
	default:
		return types.Citation{}, fmt.Errorf("%w: %q", ErrUnsupportedStyle, style)
	}
	return types.Citation{Text: text, Style: style, SourceID: r.ID}, nil
}

// FormatAll formats every record, in order.
func FormatAll(records []types.SourceRecord, style types.CitationStyle) ([]types.Citation, error) {
	out := make([]types.Citation, 0, len(records))
	for _, r := range records {
		c, err := Format(r, style)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// formatAPA renders "Site. (Year). Title. Retrieved Month D, YYYY, from URL".
func formatAPA(r types.SourceRecord) string {
	year := "n.d."
	if pub, ok := PublishedTime(r.PublishedDate); ok {
		year = fmt.Sprintf("%d", pub.Year())
	}
	return fmt.Sprintf("%s. (%s). %s. Retrieved %s, from %s",
		trimPeriod(site(r)), year, trimPeriod(title(r)),
		r.RetrievedAt.UTC().Format("January 2, 2006"), r.URL)
}

// formatMLA renders "\"Title.\" Site, D Mon. YYYY, URL. Accessed D Mon. YYYY."
// The publication date is omitted when unknown.
func formatMLA(r types.SourceRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\"%s.\" %s, ", trimPeriod(title(r)), trimPeriod(site(r)))
	if pub, ok := PublishedTime(r.PublishedDate); ok {
		fmt.Fprintf(&b, "%s, ", mlaDate(pub))
	}
	fmt.Fprintf(&b, "%s. Accessed %s.", r.URL, mlaDate(r.RetrievedAt.UTC()))
	return b.String()
}

var mlaMonths = [...]string{"Jan.", "Feb.", "Mar.", "Apr.", "May", "June", "July", "Aug.", "Sept.", "Oct.", "Nov.", "Dec."}

func mlaDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), mlaMonths[t.Month()-1], t.Year())
}

func site(r types.SourceRecord) string {
	if strings.HasPrefix(r.URL, "llm://") {
		return modelSiteName
	}
	if s := types.SiteName(r.URL); s != "" {
		return s
	}
	return "Unknown source"
}

func title(r types.SourceRecord) string {
	if t := strings.TrimSpace(r.Title); t != "" {
		return t
	}
	return "Untitled"
}

func trimPeriod(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ".")
}

// publishedLayouts are the date formats providers use for published_date.
var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 MST",
	"January 2, 2006",
	"2006-01",
	"2006",
}

// PublishedTime parses a provider publication date.
func PublishedTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Input is one citations call.
type Input struct {
	Records []types.SourceRecord
	Style   types.CitationStyle
}

// Agent is the citations step of the research pipeline.
type Agent struct {
	log *zap.Logger
}

// NewAgent creates a citations agent.
func NewAgent(log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{log: log}
}

// Name returns the agent kind.
func (a *Agent) Name() types.AgentKind { return types.AgentCitations }

// Execute formats all records in the requested style. It satisfies the
// common agent capability.
func (a *Agent) Execute(ctx context.Context, in Input) ([]types.Citation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	citations, err := FormatAll(in.Records, in.Style)
	if err != nil {
		return nil, err
	}
	a.log.Debug("formatted citations", zap.String("style", string(in.Style)), zap.Int("count", len(citations)))
	return citations, nil
}
