package matching

import (
	"time"

	"github.com/onnwee/tradematch/internal/ranking"
	"github.com/onnwee/tradematch/internal/trade"
)

// BuyerDisplay holds the buyer fields shown on a match card.
type BuyerDisplay struct {
	Country          string  `json:"country"`
	Industry         string  `json:"industry"`
	RevenueUSD       float64 `json:"revenue_usd"`
	TeamSize         float64 `json:"team_size"`
	Certification    string  `json:"certification,omitempty"`
	Channel          string  `json:"channel"`
	ActivityTier     string  `json:"activity_tier"`
	Momentum         float64 `json:"momentum"`
	ContactReadiness float64 `json:"contact_ready"`
}

// DisplayFor builds the card display fields for a buyer.
func DisplayFor(b trade.Buyer) BuyerDisplay {
	return BuyerDisplay{
		Country:          b.Country,
		Industry:         b.Industry,
		RevenueUSD:       b.RevenueUSD,
		TeamSize:         b.TeamSize,
		Certification:    b.Certification,
		Channel:          b.Channel,
		ActivityTier:     b.ActivityTier,
		Momentum:         b.MomentumScore,
		ContactReadiness: b.ContactReadiness,
	}
}

// Match is one scored buyer card in a deck.
type Match struct {
	ranking.MatchScore
	NewsTags []string     `json:"news_tags"`
	Buyer    BuyerDisplay `json:"buyer_display"`
}

// RunStats counts what happened to each candidate pair during ranking.
type RunStats struct {
	Pairs          int `json:"pairs"`
	Suppressed     int `json:"suppressed"`
	BelowThreshold int `json:"below_threshold"`
	Matches        int `json:"matches"`
}

// Add accumulates other into s.
func (s *RunStats) Add(other RunStats) {
	s.Pairs += other.Pairs
	s.Suppressed += other.Suppressed
	s.BelowThreshold += other.BelowThreshold
	s.Matches += other.Matches
}

// Deck is the ranked card deck for one exporter.
type Deck struct {
	ExporterID   string    `json:"exporter_id"`
	Industry     string    `json:"industry"`
	State        string    `json:"state"`
	TotalMatches int       `json:"total_matches"`
	GeneratedAt  time.Time `json:"generated_at"`
	TopMatches   []Match   `json:"top_matches"`
	Stats        RunStats  `json:"stats"`
}

// Limit returns a copy of the deck truncated to at most n matches, with TotalMatches
// counting the cards kept. n <= 0 keeps all.
func (d Deck) Limit(n int) Deck {
	if n <= 0 || n >= len(d.TopMatches) {
		return d
	}
	d.TopMatches = append([]Match(nil), d.TopMatches[:n]...)
	d.TotalMatches = len(d.TopMatches)
	return d
}
