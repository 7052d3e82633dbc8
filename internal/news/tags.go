package news

import (
	"fmt"

	"github.com/onnwee/tradematch/internal/trade"
)

// Tags returns card tags describing recent events that affect a buyer's industry in a
// region covering the buyer's country. Events older than the configured recency
// threshold are skipped. The result is never nil so cards always carry a tag list.
func Tags(events []trade.NewsEvent, country, industry string, cfg Config) []string {
	tags := []string{}
	for _, ev := range events {
		if ev.RecencyWeight < cfg.TagRecencyThreshold {
			continue
		}
		if ev.AffectedIndustry != industry || !cfg.covers(ev.Region, country) {
			continue
		}
		tags = append(tags, fmt.Sprintf("%s impact: %s in %s affecting %s",
			ev.ImpactLevel, ev.EventType, ev.Region, ev.AffectedIndustry))
	}
	return tags
}
