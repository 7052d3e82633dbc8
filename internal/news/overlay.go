package news

import (
	"math"
	"sort"

	"github.com/onnwee/tradematch/internal/trade"
)

type key struct {
	country  string
	industry string
}

// Entry is one indexed (country, industry) delta.
type Entry struct {
	Country  string  `json:"country"`
	Industry string  `json:"industry"`
	Delta    float64 `json:"delta"`
}

// Index maps (country, industry) to an accumulated news delta. Every stored value lies
// within [-MaxDelta, MaxDelta]. An Index is immutable after Build and safe for
// concurrent reads.
type Index struct {
	deltas   map[key]float64
	maxDelta float64
}

// EventDelta computes the signed contribution of a single event before it is spread
// across countries.
//
// The base effect comes from the event type. Tariff updates take their sign from the
// tariff change (a rise hurts, a cut helps; zero keeps the table default). Trade
// agreements announced alongside an active war flag are dampened. The result is then
// scaled by impact level and by the event's recency weight.
func EventDelta(ev trade.NewsEvent, cfg Config) float64 {
	base := cfg.BaseEffects[ev.EventType]

	switch ev.EventType {
	case trade.EventTariffUpdate:
		if ev.TariffChange > 0 {
			base = -math.Abs(base)
		} else if ev.TariffChange < 0 {
			base = math.Abs(base)
		}
	case trade.EventTradeAgreement:
		if ev.WarFlag > cfg.WarFlagThreshold {
			base *= cfg.WarDampening
		}
	}

	return base * cfg.impact(ev.ImpactLevel) * ev.RecencyWeight
}

// Build indexes the events. Global-region events are stored under GlobalKey; named
// regions expand to their member countries; unknown regions contribute nothing. Deltas
// for the same key accumulate and each key is clipped once all events are applied.
func Build(events []trade.NewsEvent, cfg Config) *Index {
	deltas := make(map[key]float64)

	for _, ev := range events {
		delta := EventDelta(ev, cfg)

		if ev.Region == trade.GlobalRegion {
			k := key{country: GlobalKey, industry: ev.AffectedIndustry}
			deltas[k] += delta
			continue
		}
		for _, country := range cfg.Regions[ev.Region] {
			k := key{country: country, industry: ev.AffectedIndustry}
			deltas[k] += delta
		}
	}

	for k, v := range deltas {
		deltas[k] = clip(v, cfg.MaxDelta)
	}

	return &Index{deltas: deltas, maxDelta: cfg.MaxDelta}
}

// Delta returns the news delta for a buyer: the exact (country, industry) entry plus the
// global entry for the industry, clipped to [-MaxDelta, MaxDelta]. A nil index yields 0.
func (idx *Index) Delta(country, industry string) float64 {
	if idx == nil {
		return 0
	}
	exact := idx.deltas[key{country: country, industry: industry}]
	global := idx.deltas[key{country: GlobalKey, industry: industry}]
	return clip(exact+global, idx.maxDelta)
}

// Len returns the number of indexed keys.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.deltas)
}

// Entries returns all indexed deltas sorted by country then industry.
func (idx *Index) Entries() []Entry {
	if idx == nil {
		return nil
	}
	out := make([]Entry, 0, len(idx.deltas))
	for k, v := range idx.deltas {
		out = append(out, Entry{Country: k.country, Industry: k.industry, Delta: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Country != out[j].Country {
			return out[i].Country < out[j].Country
		}
		return out[i].Industry < out[j].Industry
	})
	return out
}

func clip(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}
