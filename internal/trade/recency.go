package trade

import (
	"math"
	"strings"
	"time"
)

// DefaultRecencyLambda is the daily decay rate for record freshness (roughly a two-year half-life).
const DefaultRecencyLambda = 0.001

// NeutralRecency is returned for dates that cannot be parsed.
const NeutralRecency = 0.5

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02-01-2006",
	"01/02/2006",
	"2006/01/02",
}

// ParseDate parses a record date in any of the layouts seen in source data.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// RecencyWeight computes exp(-lambda * daysOld) for a record date relative to now.
// Future dates count as zero days old. Unparseable dates yield NeutralRecency.
func RecencyWeight(date string, now time.Time, lambda float64) float64 {
	t, ok := ParseDate(date)
	if !ok {
		return NeutralRecency
	}
	days := math.Floor(now.Sub(t).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return math.Exp(-lambda * days)
}
