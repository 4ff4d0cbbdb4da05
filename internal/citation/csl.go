// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citation

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-research/pkg/types"
)

// CSLItem represents a bibliographic entry in CSL (Citation Style Language)
// format. The field names and structure follow the CSL-JSON/CSL-YAML schema
// so that output is consumable by Pandoc and reference managers.
type CSLItem struct {
	ID             string    `yaml:"id"`
	Type           string    `yaml:"type"`
	Title          string    `yaml:"title"`
	Author         []CSLName `yaml:"author,omitempty"`
	ContainerTitle string    `yaml:"container-title,omitempty"`
	URL            string    `yaml:"URL,omitempty"`
	Issued         *CSLDate  `yaml:"issued,omitempty"`
	Accessed       *CSLDate  `yaml:"accessed,omitempty"`
	Abstract       string    `yaml:"abstract,omitempty"`
}

// CSLName represents an author in CSL format. Web sources carry no person,
// so the site is used as a literal corporate author.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate represents a date in CSL format using date-parts.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// WriteCSL writes records as a CSL-YAML list to w.
func WriteCSL(records []types.SourceRecord, w io.Writer) error {
	items := make([]CSLItem, len(records))
	for i, r := range records {
		items[i] = ToCSLItem(r)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

// ToCSLItem converts a source record to a CSL webpage item.
func ToCSLItem(r types.SourceRecord) CSLItem {
	item := CSLItem{
		ID:             CitationKey(r),
		Type:           "webpage",
		Title:          title(r),
		Author:         []CSLName{{Literal: site(r)}},
		ContainerTitle: site(r),
		URL:            r.URL,
		Abstract:       r.Snippet,
	}
	if pub, ok := PublishedTime(r.PublishedDate); ok {
		item.Issued = &CSLDate{DateParts: [][]int{{pub.Year(), int(pub.Month()), pub.Day()}}}
	}
	if !r.RetrievedAt.IsZero() {
		at := r.RetrievedAt.UTC()
		item.Accessed = &CSLDate{DateParts: [][]int{{at.Year(), int(at.Month()), at.Day()}}}
	}
	return item
}

var nonKeyChars = regexp.MustCompile(`[^a-z0-9]+`)

// CitationKey returns a stable BibTeX/CSL key such as "energygov2024-1a2b".
// The key combines the site, the publication year (or "nd"), and the first
// four characters of the record ID.
func CitationKey(r types.SourceRecord) string {
	base := nonKeyChars.ReplaceAllString(strings.ToLower(types.SiteName(r.URL)), "")
	if base == "" {
		base = "source"
	}
	year := "nd"
	if pub, ok := PublishedTime(r.PublishedDate); ok {
		year = fmt.Sprintf("%d", pub.Year())
	}
	id := r.ID
	if len(id) > 4 {
		id = id[:4]
	}
	return fmt.Sprintf("%s%s-%s", base, year, id)
}

// BibTeX produces @misc entries for records.
func BibTeX(records []types.SourceRecord) string {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "@misc{%s,\n", CitationKey(r))
		fmt.Fprintf(&b, "  title = {%s},\n", escapeBibTeX(title(r)))
		fmt.Fprintf(&b, "  author = {{%s}},\n", escapeBibTeX(site(r)))
		fmt.Fprintf(&b, "  howpublished = {\\url{%s}},\n", r.URL)
		if pub, ok := PublishedTime(r.PublishedDate); ok {
			fmt.Fprintf(&b, "  year = {%d},\n", pub.Year())
		}
		if !r.RetrievedAt.IsZero() {
			fmt.Fprintf(&b, "  note = {Accessed %s},\n", r.RetrievedAt.UTC().Format("2006-01-02"))
		}
		fmt.Fprintf(&b, "}\n\n")
	}
	return b.String()
}

var bibtexEscaper = strings.NewReplacer(`&`, `\&`, `%`, `\%`, `$`, `\$`, `#`, `\#`, `_`, `\_`, `{`, `\{`, `}`, `\}`)

func escapeBibTeX(s string) string {
	return bibtexEscaper.Replace(s)
}
