// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSON is returned when a response contains no JSON document.
var ErrNoJSON = errors.New("no JSON document in response")

// DecodeJSON extracts the JSON document from a model response and decodes it
// into v. Markdown code fences and surrounding prose are stripped. A document
// that fails to parse is passed through jsonrepair once before giving up.
func DecodeJSON(raw string, v any) error {
	doc := extractJSON(raw)
	if doc == "" {
		return ErrNoJSON
	}

	err := json.Unmarshal([]byte(doc), v)
	if err == nil {
		return nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(doc)
	if repairErr != nil {
		return fmt.Errorf("parsing model JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("parsing repaired model JSON: %w", err)
	}
	return nil
}

// extractJSON returns the substring from the first '{' or '[' to the matching
// last '}' or ']'. When no closing bracket exists the tail is returned so
// jsonrepair can close it.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	open := s[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}
