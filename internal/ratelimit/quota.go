// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ratelimit

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/pdiddy/deep-research/internal/httputil"
)

// quotaMarkers are substrings that providers use in quota error messages.
var quotaMarkers = []string{
	"resource_exhausted",
	"resource exhausted",
	"quota",
	"rate limit",
	"too many requests",
}

// IsQuotaError reports whether err signals an exhausted provider quota:
// an HTTP 429, a Gemini API error with code 429 or status RESOURCE_EXHAUSTED,
// or a message naming a quota or rate limit.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimitExceeded) {
		return false
	}

	if httputil.StatusCode(err) == http.StatusTooManyRequests {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && isQuotaAPIError(apiErr) {
		return true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && isQuotaAPIError(*apiErrPtr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") {
		return true
	}
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func isQuotaAPIError(e genai.APIError) bool {
	return e.Code == http.StatusTooManyRequests || strings.EqualFold(e.Status, "RESOURCE_EXHAUSTED")
}
