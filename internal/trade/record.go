package trade

// Activity tiers assigned to buyers from their intent flags.
const (
	ActivityHigh    = "High Activity"
	ActivityGrowing = "Growing"
	ActivityStable  = "Stable"
	ActivityLow     = "Low Activity"
)

// Capacity tiers assigned to exporters from manufacturing capacity.
const (
	CapacityLarge   = "Large"
	CapacityMedium  = "Medium"
	CapacitySmall   = "Small"
	CapacityUnknown = "Unknown"
)

// UnknownChannel is used when a buyer has no preferred channel.
const UnknownChannel = "Unknown"

// Buyer is a cleaned importer record.
// Binary flags hold 1.0, 0.0, or an "unknown" baseline (0.1 unless stated otherwise).
type Buyer struct {
	ID       string `json:"buyer_id"`
	RecordID string `json:"record_id,omitempty"`
	Country  string `json:"country"`
	Industry string `json:"industry"`
	Date     string `json:"date,omitempty"`

	// AvgOrderTons is nil when the source value was missing.
	AvgOrderTons        *float64 `json:"avg_order_tons,omitempty"`
	RevenueUSD          float64  `json:"revenue_usd"`
	TeamSize            float64  `json:"team_size"`
	PromptResponse      float64  `json:"prompt_response"`
	IntentScore         float64  `json:"intent_score"`
	ResponseProbability float64  `json:"response_probability"`
	CurrencyFluctuation float64  `json:"currency_fluctuation"`
	ProfileVisits       float64  `json:"profile_visits"`

	GoodPayment         float64 `json:"good_payment"`
	HiringGrowth        float64 `json:"hiring_growth"`
	EngagementSpike     float64 `json:"engagement_spike"`
	DecisionMakerChange float64 `json:"decision_maker_change"`
	FundingEvent        float64 `json:"funding_event"`
	TariffNews          float64 `json:"tariff_news"`
	StockShock          float64 `json:"stock_shock"`
	WarEvent            float64 `json:"war_event"`
	NaturalCalamity     float64 `json:"natural_calamity"`

	Channel       string `json:"channel"`
	Certification string `json:"certification,omitempty"`

	// Derived fields.
	NormProfileVisits float64 `json:"norm_profile_visits"`
	RecencyWeight     float64 `json:"recency_weight"`
	DataCompleteness  float64 `json:"data_completeness"`
	ActivityTier      string  `json:"activity_tier"`
	MomentumScore     float64 `json:"momentum_score"`
	ContactReadiness  float64 `json:"contact_readiness"`
}

// Attribute returns the buyer's value for a named profile dimension.
// Dimension names follow the source column names ("Country", "Industry", ...).
// The second return value is false for dimensions the buyer does not expose.
func (b Buyer) Attribute(dim string) (string, bool) {
	switch dim {
	case "Country", "country":
		return b.Country, true
	case "Industry", "industry":
		return b.Industry, true
	case "Channel", "channel", "Preferred_Channel":
		return b.Channel, true
	case "Certification", "certification":
		return b.Certification, true
	case "ActivityTier", "activity_tier":
		return b.ActivityTier, true
	default:
		return "", false
	}
}

// Exporter is a cleaned exporter record.
type Exporter struct {
	ID       string `json:"exporter_id"`
	RecordID string `json:"record_id,omitempty"`
	State    string `json:"state"`
	Industry string `json:"industry"`
	Date     string `json:"date,omitempty"`

	ManufacturingCapacity float64  `json:"manufacturing_capacity"`
	RevenueUSD            float64  `json:"revenue_usd"`
	TeamSize              float64  `json:"team_size"`
	PromptResponse        float64  `json:"prompt_response"`
	IntentScore           float64  `json:"intent_score"`
	ShipmentValueUSD      *float64 `json:"shipment_value_usd,omitempty"`
	QuantityTons          *float64 `json:"quantity_tons,omitempty"`
	LinkedInActivity      float64  `json:"linkedin_activity"`
	TariffImpact          float64  `json:"tariff_impact"`
	StockImpact           float64  `json:"stock_impact"`
	WarRisk               float64  `json:"war_risk"`
	NaturalCalamityRisk   float64  `json:"natural_calamity_risk"`
	CurrencyShift         float64  `json:"currency_shift"`
	GoodPaymentTerms      float64  `json:"good_payment_terms"`
	HiringSignal          float64  `json:"hiring_signal"`
	MSME                  float64  `json:"msme"`
	JobChange             float64  `json:"job_change"`

	// Derived fields.
	RecencyWeight float64 `json:"recency_weight"`
	CapacityTier  string  `json:"capacity_tier"`
	Reliability   float64 `json:"reliability"`
}

// EventType enumerates the news event categories the overlay understands.
type EventType string

const (
	EventTradeAgreement   EventType = "Trade Agreement"
	EventTariffUpdate     EventType = "Tariff Update"
	EventSupplyChainShock EventType = "Supply Chain Shock"
	EventStockCrash       EventType = "Stock Crash"
	EventWarAlert         EventType = "War Alert"
	EventNaturalCalamity  EventType = "Natural Calamity"
)

// ImpactLevel is the reported severity of a news event.
type ImpactLevel string

const (
	ImpactHigh   ImpactLevel = "High"
	ImpactMedium ImpactLevel = "Medium"
	ImpactLow    ImpactLevel = "Low"
)

// GlobalRegion is the region name for events that affect every country.
const GlobalRegion = "Global"

// NewsEvent is a cleaned global news record.
type NewsEvent struct {
	ID               string      `json:"id,omitempty"`
	EventType        EventType   `json:"event_type"`
	AffectedIndustry string      `json:"affected_industry"`
	Region           string      `json:"region"`
	ImpactLevel      ImpactLevel `json:"impact_level"`
	Date             string      `json:"date,omitempty"`

	TariffChange  float64 `json:"tariff_change"`
	StockShock    float64 `json:"stock_shock"`
	WarFlag       float64 `json:"war_flag"`
	CalamityFlag  float64 `json:"calamity_flag"`
	CurrencyShift float64 `json:"currency_shift"`

	RecencyWeight float64 `json:"recency_weight"`
}
