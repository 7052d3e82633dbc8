package matching

import (
	"github.com/onnwee/tradematch/internal/ingest"
	"github.com/onnwee/tradematch/internal/news"
	"github.com/onnwee/tradematch/internal/trade"
)

// CatalogFiles names the CSV inputs of a catalog. News is optional.
type CatalogFiles struct {
	Buyers    string
	Exporters string
	News      string
}

// LoadCatalog reads the CSV files with l and builds a Catalog from them.
func LoadCatalog(l *ingest.Loader, files CatalogFiles, newsCfg news.Config) (*Catalog, error) {
	buyers, _, err := l.LoadBuyers(files.Buyers)
	if err != nil {
		return nil, err
	}
	exporters, _, err := l.LoadExporters(files.Exporters)
	if err != nil {
		return nil, err
	}

	var events []trade.NewsEvent
	if files.News != "" {
		if events, _, err = l.LoadNews(files.News); err != nil {
			return nil, err
		}
	}
	return NewCatalog(buyers, exporters, events, newsCfg), nil
}
