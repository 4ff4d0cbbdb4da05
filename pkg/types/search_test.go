// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualityForURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want Quality
	}{
		{"edu", "https://www.mit.edu/energy", QualityHigh},
		{"gov", "https://www.energy.gov/solar", QualityHigh},
		{"org", "https://www.un.org/en/climatechange", QualityMedium},
		{"com", "https://example.com/wind", QualityMedium},
		{"other tld", "https://news.example.io/story", QualityLow},
		{"empty", "", QualityLow},
		{"blank", "   ", QualityLow},
		{"scheme-less", "energy.gov/solar", QualityHigh},
		{"uppercase host", "HTTPS://WWW.NASA.GOV/", QualityHigh},
		{"trailing dot", "https://energy.gov./solar", QualityHigh},
		{"edu label not suffix", "https://edu.example.io/page", QualityLow},
		{"gov in path only", "https://example.net/www.energy.gov", QualityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QualityForURL(tt.url))
		})
	}
}

func TestSourceTypeForURL(t *testing.T) {
	tests := []struct {
		url  string
		want SourceType
	}{
		{"https://www.stanford.edu/research", SourceAcademic},
		{"https://www.ox.ac.uk/news", SourceAcademic},
		{"https://www.epa.gov/ghgemissions", SourceGovernment},
		{"https://www.iea.org/reports", SourceOrganization},
		{"https://example.com/blog", SourceCommercial},
		{"https://edu.example.io/page", SourceWeb},
		{"https://www.bbc.co.uk/news", SourceWeb},
		{"", SourceWeb},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SourceTypeForURL(tt.url), tt.url)
	}
}

func TestSourceID_StableAcrossForms(t *testing.T) {
	assert.Equal(t, SourceID("https://www.energy.gov/solar"), SourceID("https://www.energy.gov/solar/"))
	assert.NotEqual(t, SourceID("https://www.energy.gov/solar"), SourceID("https://www.energy.gov/wind"))
}
