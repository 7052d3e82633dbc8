package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/onnwee/tradematch/internal/trade"
)

// DefaultProfileVisitsCap is the visit count that normalizes to 1.0.
const DefaultProfileVisitsCap = 20000

// Config configures a Loader.
type Config struct {
	// Now is the reference time for recency weights. Defaults to time.Now.
	Now func() time.Time
	// RecencyLambda is the daily decay rate. Defaults to trade.DefaultRecencyLambda.
	RecencyLambda float64
	// ProfileVisitsCap defaults to DefaultProfileVisitsCap.
	ProfileVisitsCap float64
	Logger           *slog.Logger
}

// Loader parses CSV exports into trade records.
type Loader struct {
	now       func() time.Time
	lambda    float64
	visitsCap float64
	logger    *slog.Logger
}

// NewLoader creates a Loader, filling unset config fields with defaults.
func NewLoader(cfg Config) *Loader {
	l := &Loader{
		now:       cfg.Now,
		lambda:    cfg.RecencyLambda,
		visitsCap: cfg.ProfileVisitsCap,
		logger:    cfg.Logger,
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.lambda <= 0 {
		l.lambda = trade.DefaultRecencyLambda
	}
	if l.visitsCap <= 0 {
		l.visitsCap = DefaultProfileVisitsCap
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

var buyerColumns = []string{"Buyer_ID", "Country", "Industry"}

// ReadBuyers parses an importer CSV. Rows with an empty Buyer_ID are dropped.
func (l *Loader) ReadBuyers(r io.Reader) ([]trade.Buyer, Stats, error) {
	now := l.now()
	title := cases.Title(language.Und)

	var (
		buyers []trade.Buyer
		stats  Stats
	)
	err := readRows(r, buyerColumns, func(rw row) error {
		stats.Rows++
		id := rw.get("Buyer_ID")
		if isMissing(id) {
			stats.Dropped++
			return nil
		}

		b := trade.Buyer{
			ID:            id,
			RecordID:      rw.get("Record_ID"),
			Country:       rw.get("Country"),
			Industry:      rw.get("Industry"),
			Date:          rw.get("Date"),
			Certification: rw.get("Certification"),

			AvgOrderTons:        OptionalFloat(rw.get("Avg_Order_Tons")),
			RevenueUSD:          SafeFloat(rw.get("Revenue_Size_USD"), 0),
			TeamSize:            SafeFloat(rw.get("Team_Size"), 0),
			PromptResponse:      SafeFloat(rw.get("Prompt_Response"), 0.5),
			IntentScore:         SafeFloat(rw.get("Intent_Score"), 0.3),
			ResponseProbability: SafeFloat(rw.get("Response_Probability"), DefaultResponseProbability),
			CurrencyFluctuation: SafeFloat(rw.get("Currency_Fluctuation"), 0),
			ProfileVisits:       SafeFloat(rw.get("SalesNav_ProfileVisits"), 0),

			GoodPayment:         SafeBinary(rw.get("Good_Payment_History"), DefaultUnknownFlag),
			HiringGrowth:        SafeBinary(rw.get("Hiring_Growth"), DefaultUnknownFlag),
			EngagementSpike:     SafeBinary(rw.get("Engagement_Spike"), DefaultUnknownFlag),
			DecisionMakerChange: SafeBinary(rw.get("DecisionMaker_Change"), DefaultUnknownFlag),
			FundingEvent:        SafeBinary(rw.get("Funding_Event"), DefaultUnknownFlag),
			TariffNews:          SafeBinary(rw.get("Tariff_News"), DefaultUnknownFlag),
			StockShock:          SafeBinary(rw.get("StockMarket_Shock"), DefaultUnknownFlag),
			WarEvent:            SafeBinary(rw.get("War_Event"), DefaultUnknownFlag),
			NaturalCalamity:     SafeBinary(rw.get("Natural_Calamity"), DefaultUnknownFlag),

			Channel: title.String(text(rw.get("Preferred_Channel"))),
		}

		buyers = append(buyers, DeriveBuyer(b, now, l.lambda, l.visitsCap))
		stats.Loaded++
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("buyers: %w", err)
	}

	l.logger.Info("loaded buyers",
		slog.Int("loaded", stats.Loaded),
		slog.Int("dropped", stats.Dropped),
		slog.Int("industries", distinct(buyers, func(b trade.Buyer) string { return b.Industry })),
		slog.Int("countries", distinct(buyers, func(b trade.Buyer) string { return b.Country })))
	return buyers, stats, nil
}

var exporterColumns = []string{"Exporter_ID", "Industry"}

// ReadExporters parses an exporter CSV. Rows with an empty Exporter_ID are dropped.
func (l *Loader) ReadExporters(r io.Reader) ([]trade.Exporter, Stats, error) {
	now := l.now()

	var (
		exporters []trade.Exporter
		stats     Stats
	)
	err := readRows(r, exporterColumns, func(rw row) error {
		stats.Rows++
		id := rw.get("Exporter_ID")
		if isMissing(id) {
			stats.Dropped++
			return nil
		}

		e := trade.Exporter{
			ID:       id,
			RecordID: rw.get("Record_ID"),
			State:    rw.get("State"),
			Industry: rw.get("Industry"),
			Date:     rw.get("Date"),

			ManufacturingCapacity: SafeFloat(rw.get("Manufacturing_Capacity_Tons"), 0),
			RevenueUSD:            SafeFloat(rw.get("Revenue_Size_USD"), 0),
			TeamSize:              SafeFloat(rw.get("Team_Size"), 0),
			PromptResponse:        SafeFloat(rw.get("Prompt_Response_Score"), 0.5),
			IntentScore:           SafeFloat(rw.get("Intent_Score"), 0.3),
			ShipmentValueUSD:      OptionalFloat(rw.get("Shipment_Value_USD")),
			QuantityTons:          OptionalFloat(rw.get("Quantity_Tons")),
			LinkedInActivity:      SafeFloat(rw.get("LinkedIn_Activity"), 0),
			TariffImpact:          SafeFloat(rw.get("Tariff_Impact"), 0),
			StockImpact:           SafeFloat(rw.get("StockMarket_Impact"), 0),
			WarRisk:               SafeBinary(rw.get("War_Risk"), DefaultUnknownFlag),
			NaturalCalamityRisk:   SafeBinary(rw.get("Natural_Calamity_Risk"), DefaultUnknownFlag),
			CurrencyShift:         SafeFloat(rw.get("Currency_Shift"), 0),
			GoodPaymentTerms:      SafeBinary(rw.get("Good_Payment_Terms"), DefaultUnknownFlag),
			HiringSignal:          SafeBinary(rw.get("Hiring_Signal"), DefaultUnknownFlag),
			MSME:                  SafeBinary(rw.get("MSME_Udyam"), 0),
			JobChange:             SafeBinary(rw.get("SalesNav_JobChange"), DefaultUnknownFlag),
		}

		exporters = append(exporters, DeriveExporter(e, now, l.lambda))
		stats.Loaded++
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("exporters: %w", err)
	}

	l.logger.Info("loaded exporters",
		slog.Int("loaded", stats.Loaded),
		slog.Int("dropped", stats.Dropped),
		slog.Int("industries", distinct(exporters, func(e trade.Exporter) string { return e.Industry })),
		slog.Int("states", distinct(exporters, func(e trade.Exporter) string { return e.State })))
	return exporters, stats, nil
}

var newsColumns = []string{"Event_Type", "Affected_Industry", "Region"}

// ReadNews parses a global news CSV. News rows are never dropped; an event without an
// ID is still a valid signal.
func (l *Loader) ReadNews(r io.Reader) ([]trade.NewsEvent, Stats, error) {
	now := l.now()

	var (
		events []trade.NewsEvent
		stats  Stats
	)
	err := readRows(r, newsColumns, func(rw row) error {
		stats.Rows++
		ev := trade.NewsEvent{
			ID:               rw.get("News_ID"),
			EventType:        trade.EventType(rw.get("Event_Type")),
			AffectedIndustry: rw.get("Affected_Industry"),
			Region:           rw.get("Region"),
			ImpactLevel:      trade.ImpactLevel(rw.get("Impact_Level")),
			Date:             rw.get("Date"),
			TariffChange:     SafeFloat(rw.get("Tariff_Change"), 0),
			StockShock:       SafeFloat(rw.get("StockMarket_Shock"), 0),
			WarFlag:          SafeBinary(rw.get("War_Flag"), DefaultUnknownFlag),
			CalamityFlag:     SafeBinary(rw.get("Natural_Calamity_Flag"), DefaultUnknownFlag),
			CurrencyShift:    SafeFloat(rw.get("Currency_Shift"), 0),
		}
		ev.RecencyWeight = trade.RecencyWeight(ev.Date, now, l.lambda)
		events = append(events, ev)
		stats.Loaded++
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("news: %w", err)
	}

	l.logger.Info("loaded news events",
		slog.Int("loaded", stats.Loaded),
		slog.Int("event_types", distinct(events, func(e trade.NewsEvent) string { return string(e.EventType) })),
		slog.Int("regions", distinct(events, func(e trade.NewsEvent) string { return e.Region })))
	return events, stats, nil
}

// SwipeRecord is one historical swipe read from a replay file. Direction is left
// unparsed so the caller decides how to treat bad values.
type SwipeRecord struct {
	ExporterID string
	BuyerID    string
	Direction  string
}

var swipeColumns = []string{"Exporter_ID", "Buyer_ID", "Direction"}

// ReadSwipes parses a swipe history CSV in file order. Rows missing either ID are dropped.
func (l *Loader) ReadSwipes(r io.Reader) ([]SwipeRecord, Stats, error) {
	var (
		swipes []SwipeRecord
		stats  Stats
	)
	err := readRows(r, swipeColumns, func(rw row) error {
		stats.Rows++
		rec := SwipeRecord{
			ExporterID: rw.get("Exporter_ID"),
			BuyerID:    rw.get("Buyer_ID"),
			Direction:  rw.get("Direction"),
		}
		if isMissing(rec.ExporterID) || isMissing(rec.BuyerID) {
			stats.Dropped++
			return nil
		}
		swipes = append(swipes, rec)
		stats.Loaded++
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("swipes: %w", err)
	}

	l.logger.Info("loaded swipe history",
		slog.Int("loaded", stats.Loaded),
		slog.Int("dropped", stats.Dropped))
	return swipes, stats, nil
}

// LoadBuyers opens path and calls ReadBuyers.
func (l *Loader) LoadBuyers(path string) ([]trade.Buyer, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to open buyers file: %w", err)
	}
	defer f.Close()
	return l.ReadBuyers(f)
}

// LoadExporters opens path and calls ReadExporters.
func (l *Loader) LoadExporters(path string) ([]trade.Exporter, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to open exporters file: %w", err)
	}
	defer f.Close()
	return l.ReadExporters(f)
}

// LoadNews opens path and calls ReadNews.
func (l *Loader) LoadNews(path string) ([]trade.NewsEvent, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to open news file: %w", err)
	}
	defer f.Close()
	return l.ReadNews(f)
}

// LoadSwipes opens path and calls ReadSwipes.
func (l *Loader) LoadSwipes(path string) ([]SwipeRecord, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to open swipes file: %w", err)
	}
	defer f.Close()
	return l.ReadSwipes(f)
}

func distinct[T any](items []T, key func(T) string) int {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		seen[key(it)] = struct{}{}
	}
	return len(seen)
}
