package matching

import (
	"github.com/onnwee/tradematch/internal/news"
	"github.com/onnwee/tradematch/internal/trade"
)

// Catalog is an immutable set of loaded records plus the news overlay built from them.
// It is safe for concurrent reads.
type Catalog struct {
	buyers    []trade.Buyer
	exporters []trade.Exporter
	events    []trade.NewsEvent

	buyerIdx    map[string]int
	exporterIdx map[string]int

	newsCfg news.Config
	overlay *news.Index
}

// NewCatalog copies the records and builds the news overlay. When IDs repeat, the first
// record wins lookups; all records still appear in Buyers and Exporters.
func NewCatalog(buyers []trade.Buyer, exporters []trade.Exporter, events []trade.NewsEvent, newsCfg news.Config) *Catalog {
	c := &Catalog{
		buyers:      append([]trade.Buyer(nil), buyers...),
		exporters:   append([]trade.Exporter(nil), exporters...),
		events:      append([]trade.NewsEvent(nil), events...),
		buyerIdx:    make(map[string]int, len(buyers)),
		exporterIdx: make(map[string]int, len(exporters)),
		newsCfg:     newsCfg,
		overlay:     news.Build(events, newsCfg),
	}
	for i, b := range c.buyers {
		if _, ok := c.buyerIdx[b.ID]; !ok {
			c.buyerIdx[b.ID] = i
		}
	}
	for i, e := range c.exporters {
		if _, ok := c.exporterIdx[e.ID]; !ok {
			c.exporterIdx[e.ID] = i
		}
	}
	return c
}

// Buyers returns the buyers in load order. Callers must not modify the slice.
func (c *Catalog) Buyers() []trade.Buyer { return c.buyers }

// Exporters returns the exporters in load order. Callers must not modify the slice.
func (c *Catalog) Exporters() []trade.Exporter { return c.exporters }

// News returns the loaded news events.
func (c *Catalog) News() []trade.NewsEvent { return c.events }

// Overlay returns the news overlay index.
func (c *Catalog) Overlay() *news.Index { return c.overlay }

// Buyer looks up a buyer by ID.
func (c *Catalog) Buyer(id string) (trade.Buyer, bool) {
	i, ok := c.buyerIdx[id]
	if !ok {
		return trade.Buyer{}, false
	}
	return c.buyers[i], true
}

// Exporter looks up an exporter by ID.
func (c *Catalog) Exporter(id string) (trade.Exporter, bool) {
	i, ok := c.exporterIdx[id]
	if !ok {
		return trade.Exporter{}, false
	}
	return c.exporters[i], true
}

// NewsTags returns card tags for recent events relevant to the buyer's market.
func (c *Catalog) NewsTags(b trade.Buyer) []string {
	return news.Tags(c.events, b.Country, b.Industry, c.newsCfg)
}
