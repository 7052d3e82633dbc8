// Package ingest reads buyer, exporter and news CSV exports into cleaned trade records.
//
// Source files are messy: numbers arrive as "NA" or "Unknown", flags as "yes"/"1"/"",
// dates in several layouts. Every field is parsed leniently into a documented default so
// that scoring never fails on malformed input. Rows without an identity are dropped and
// counted.
package ingest

import (
	"strconv"
	"strings"
)

// missingTokens are the values treated as absent, compared case-insensitively.
var missingTokens = map[string]struct{}{
	"":        {},
	"na":      {},
	"nan":     {},
	"none":    {},
	"unknown": {},
	"null":    {},
}

// DefaultUnknownFlag is the baseline for binary flags whose value is not known.
const DefaultUnknownFlag = 0.1

// DefaultResponseProbability is used when a buyer's response probability is missing.
const DefaultResponseProbability = 0.3

// ParseFloat returns the numeric value of s, or ok=false when it is missing or malformed.
func ParseFloat(s string) (float64, bool) {
	if isMissing(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func isMissing(s string) bool {
	_, missing := missingTokens[strings.ToLower(strings.TrimSpace(s))]
	return missing
}

// text returns s, or "" when s is one of the missing-value tokens.
func text(s string) string {
	if isMissing(s) {
		return ""
	}
	return strings.TrimSpace(s)
}

// SafeFloat parses s, falling back when it is missing or malformed.
func SafeFloat(s string, fallback float64) float64 {
	if f, ok := ParseFloat(s); ok {
		return f
	}
	return fallback
}

// OptionalFloat parses s, returning nil when it is missing or malformed.
func OptionalFloat(s string) *float64 {
	if f, ok := ParseFloat(s); ok {
		return &f
	}
	return nil
}

// SafeBinary maps 1/true/yes to 1 and 0/false/no to 0. Anything else is treated as
// uncertain and returns unknown.
func SafeBinary(s string, unknown float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "1.0", "true", "yes":
		return 1.0
	case "0", "0.0", "false", "no":
		return 0.0
	default:
		return unknown
	}
}
