// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the deep-research pipeline:
// the research task and finding model, source records, citations, the final
// report, progress events, and configuration.
package types

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Quality is a coarse trust classification assigned to a source by domain.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// QualityForURL classifies a source by the suffix of its hostname:
// .edu and .gov are high, .org and .com are medium, everything else is low.
// URLs without a parseable host are low.
func QualityForURL(rawURL string) Quality {
	host := hostOf(rawURL)
	switch {
	case host == "":
		return QualityLow
	case strings.HasSuffix(host, ".edu"), strings.HasSuffix(host, ".gov"):
		return QualityHigh
	case strings.HasSuffix(host, ".org"), strings.HasSuffix(host, ".com"):
		return QualityMedium
	default:
		return QualityLow
	}
}

// SourceType classifies a source by the kind of publisher behind it.
type SourceType string

const (
	SourceAcademic     SourceType = "academic"
	SourceGovernment   SourceType = "government"
	SourceOrganization SourceType = "organization"
	SourceCommercial   SourceType = "commercial"
	SourceWeb          SourceType = "web"
)

// SourceTypes lists the source types in report order.
var SourceTypes = []SourceType{SourceAcademic, SourceGovernment, SourceOrganization, SourceCommercial, SourceWeb}

// SourceTypeForURL classifies a source by its hostname: .edu hosts and
// academic ".ac." domains are academic, .gov is government, .org is an
// organization, .com is commercial and everything else is web.
func SourceTypeForURL(rawURL string) SourceType {
	host := hostOf(rawURL)
	switch {
	case host == "":
		return SourceWeb
	case strings.HasSuffix(host, ".edu"), strings.Contains(host+".", ".ac."):
		return SourceAcademic
	case strings.HasSuffix(host, ".gov"):
		return SourceGovernment
	case strings.HasSuffix(host, ".org"):
		return SourceOrganization
	case strings.HasSuffix(host, ".com"):
		return SourceCommercial
	default:
		return SourceWeb
	}
}

// hostOf returns the lowercased hostname of rawURL without a trailing dot.
// Scheme-less inputs such as "example.com/page" are accepted.
func hostOf(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// SiteName returns the hostname of rawURL with a leading "www." removed.
// It is used as the corporate author when a source names no person.
func SiteName(rawURL string) string {
	return strings.TrimPrefix(hostOf(rawURL), "www.")
}

// SourceRecord is a single normalized web source retrieved during a research
// session. Records are immutable once created; findings and citations refer
// to them by ID.
type SourceRecord struct {
	// ID is a stable identifier derived from the normalized URL.
	ID string `json:"id" yaml:"id"`

	// URL is the canonical location of the source.
	URL string `json:"url" yaml:"url"`

	// Title is the page or document title as returned by the provider.
	Title string `json:"title" yaml:"title"`

	// Snippet is the provider's content excerpt, truncated during normalization.
	Snippet string `json:"snippet" yaml:"snippet"`

	// Quality is derived from the URL suffix via QualityForURL.
	Quality Quality `json:"quality" yaml:"quality"`

	// Type is derived from the URL via SourceTypeForURL.
	Type SourceType `json:"type,omitempty" yaml:"type,omitempty"`

	// Provider names the backend that produced the record (e.g. "tavily", "cache", "fallback").
	Provider string `json:"provider" yaml:"provider"`

	// Score is the provider's relevance score between 0.0 and 1.0, if any.
	Score float64 `json:"score,omitempty" yaml:"score,omitempty"`

	// PublishedDate is the publication date reported by the provider, verbatim.
	PublishedDate string `json:"published_date,omitempty" yaml:"published_date,omitempty"`

	// RetrievedAt is when the record was fetched from its provider.
	RetrievedAt time.Time `json:"retrieved_at" yaml:"retrieved_at"`

	// Fallback marks records that came from cached or placeholder data
	// instead of a live search.
	Fallback bool `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// NormalizeURL lowercases the scheme and host, drops fragments and trailing
// slashes, so that trivially different spellings of one page compare equal.
func NormalizeURL(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.ToLower(s), "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// SourceID returns the stable record ID for a URL: the first 12 hex
// characters of SHA-256 over the normalized URL.
func SourceID(rawURL string) string {
	sum := sha256.Sum256([]byte(NormalizeURL(rawURL)))
	return fmt.Sprintf("%x", sum[:])[:12]
}
