// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-research/internal/citation"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Format is an output encoding.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatCSL      Format = "csl"
	FormatBibTeX   Format = "bibtex"
)

// ParseFormat accepts a format name in any case. "md" and "yml" are aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csl":
		return FormatCSL, nil
	case "bibtex", "bib":
		return FormatBibTeX, nil
	default:
		return "", fmt.Errorf("unknown format %q: use markdown, json, yaml, csl, or bibtex", s)
	}
}

// FormatForPath picks a format from a file extension, defaulting to Markdown.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".bib":
		return FormatBibTeX
	default:
		return FormatMarkdown
	}
}

// Encode writes r to w in format f. CSL and BibTeX contain only the cited
// sources.
func Encode(w io.Writer, r *types.ResearchReport, f Format) error {
	switch f {
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(r))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	case FormatCSL:
		return citation.WriteCSL(CitedSources(r), w)
	case FormatBibTeX:
		_, err := io.WriteString(w, citation.BibTeX(CitedSources(r)))
		return err
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}

// WriteFile saves r to path in the format implied by its extension.
func WriteFile(path string, r *types.ResearchReport) error {
	return WriteFileAs(path, r, FormatForPath(path))
}

// WriteFileAs saves r to path in format f, creating parent directories.
func WriteFileAs(path string, r *types.ResearchReport, f Format) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	if err := Encode(fh, r, f); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// ReadFile loads a report saved as JSON or YAML.
func ReadFile(path string) (*types.ResearchReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report file: %w", err)
	}
	var r types.ResearchReport
	switch FormatForPath(path) {
	case FormatJSON:
		err = json.Unmarshal(data, &r)
	case FormatYAML:
		err = yaml.Unmarshal(data, &r)
	default:
		return nil, fmt.Errorf("reading %s: only .json and .yaml reports can be loaded", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing report file: %w", err)
	}
	return &r, nil
}
