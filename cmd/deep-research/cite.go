// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/deep-research/internal/citation"
	"github.com/pdiddy/deep-research/pkg/types"
)

var citeCmd = &cobra.Command{
	Use:   "cite",
	Short: "Format a citation for a single web source",
	Long: `Cite formats one web source as an APA or MLA reference, a CSL-YAML
item, or a BibTeX entry. The access date is today unless --accessed is set.`,
	RunE: runCite,
}

func init() {
	citeCmd.Flags().String("url", "", "source URL (required)")
	citeCmd.Flags().String("title", "", "page title")
	citeCmd.Flags().String("published", "", "publication date (e.g. 2024-03-05)")
	citeCmd.Flags().String("accessed", "", "access date, YYYY-MM-DD (default today)")
	citeCmd.Flags().String("style", "APA", "citation style: APA or MLA")
	citeCmd.Flags().String("format", "text", "output format: text, csl, or bibtex")
	_ = citeCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(citeCmd)
}

func runCite(cmd *cobra.Command, args []string) error {
	r, err := sourceFromFlags(cmd, time.Now())
	if err != nil {
		return err
	}
	styleName, _ := cmd.Flags().GetString("style")
	format, _ := cmd.Flags().GetString("format")
	return writeCitation(os.Stdout, r, styleName, format)
}

func sourceFromFlags(cmd *cobra.Command, now time.Time) (types.SourceRecord, error) {
	rawURL, _ := cmd.Flags().GetString("url")
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return types.SourceRecord{}, fmt.Errorf("--url is required")
	}
	title, _ := cmd.Flags().GetString("title")
	published, _ := cmd.Flags().GetString("published")
	accessed, _ := cmd.Flags().GetString("accessed")

	retrieved := now.UTC()
	if accessed != "" {
		t, err := time.Parse("2006-01-02", accessed)
		if err != nil {
			return types.SourceRecord{}, fmt.Errorf("invalid --accessed %q: %w", accessed, err)
		}
		retrieved = t
	}
	if published != "" {
		if _, ok := citation.PublishedTime(published); !ok {
			return types.SourceRecord{}, fmt.Errorf("unrecognized --published date %q", published)
		}
	}

	return types.SourceRecord{
		ID:            types.SourceID(rawURL),
		URL:           rawURL,
		Title:         title,
		Quality:       types.QualityForURL(rawURL),
		Type:          types.SourceTypeForURL(rawURL),
		PublishedDate: published,
		RetrievedAt:   retrieved,
	}, nil
}

func writeCitation(w io.Writer, r types.SourceRecord, styleName, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		style, err := types.ParseCitationStyle(styleName)
		if err != nil {
			return err
		}
		c, err := citation.Format(r, style)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, c.Text)
		return err
	case "csl":
		return citation.WriteCSL([]types.SourceRecord{r}, w)
	case "bibtex", "bib":
		_, err := io.WriteString(w, citation.BibTeX([]types.SourceRecord{r}))
		return err
	default:
		return fmt.Errorf("unknown format %q: use text, csl, or bibtex", format)
	}
}
