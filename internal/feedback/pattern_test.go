package feedback

import (
	"errors"
	"math"
	"testing"

	"github.com/onnwee/tradematch/internal/trade"
)

func vectorWith(key string, left, right int) PreferenceVector {
	pv := NewPreferenceVector()
	if left > 0 {
		pv.LeftPatterns[key] = left
	}
	if right > 0 {
		pv.RightPatterns[key] = right
	}
	return pv
}

func TestPatternKey(t *testing.T) {
	tests := []struct {
		name  string
		buyer trade.Buyer
		dims  []string
		want  string
	}{
		{
			name:  "country and industry",
			buyer: trade.Buyer{Country: "Germany", Industry: "Solar"},
			dims:  []string{"Country", "Industry"},
			want:  "Germany|Solar",
		},
		{
			name:  "empty value is unknown",
			buyer: trade.Buyer{Country: "  ", Industry: "Solar"},
			dims:  []string{"Country", "Industry"},
			want:  "Unknown|Solar",
		},
		{
			name:  "unsupported dimension is unknown",
			buyer: trade.Buyer{Country: "Germany"},
			dims:  []string{"Country", "Shoe Size"},
			want:  "Germany|Unknown",
		},
		{
			name:  "channel dimension",
			buyer: trade.Buyer{Channel: "Email"},
			dims:  []string{"Channel"},
			want:  "Email",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PatternKey(tt.buyer, tt.dims); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUpdatePreferenceVector(t *testing.T) {
	cfg := DefaultConfig()
	b := quietBuyer("b1")

	pv := NewPreferenceVector()
	next := UpdatePreferenceVector(pv, b, Left, t0, cfg)
	next = UpdatePreferenceVector(next, b, Left, t0, cfg)
	next = UpdatePreferenceVector(next, b, Right, t0, cfg)

	if len(pv.LeftPatterns) != 0 {
		t.Error("input vector was mutated")
	}
	if next.LeftPatterns["Germany|Solar"] != 2 {
		t.Errorf("left count = %d, want 2", next.LeftPatterns["Germany|Solar"])
	}
	if next.RightPatterns["Germany|Solar"] != 1 {
		t.Errorf("right count = %d, want 1", next.RightPatterns["Germany|Solar"])
	}
	if next.UpdatedAt == nil || !next.UpdatedAt.Equal(t0) {
		t.Errorf("updated at = %v, want %v", next.UpdatedAt, t0)
	}
}

func TestPatternPenalty(t *testing.T) {
	cfg := DefaultConfig()
	b := quietBuyer("b1")
	key := PatternKey(b, cfg.PatternDimensions)

	tests := []struct {
		name        string
		left, right int
		want        float64
	}{
		{"no history", 0, 0, 1.0},
		{"below threshold", 2, 0, 1.0},
		{"at threshold", 3, 0, 0.70},
		{"net left four", 4, 0, 0.65},
		{"rights offset lefts", 6, 3, 0.70},
		{"floor", 40, 0, 0.35},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PatternPenalty(vectorWith(key, tt.left, tt.right), b, cfg)
			if math.Abs(got-tt.want) > epsilon {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestPatternBoost(t *testing.T) {
	cfg := DefaultConfig()
	b := quietBuyer("b1")
	key := PatternKey(b, cfg.PatternDimensions)

	tests := []struct {
		name        string
		left, right int
		want        float64
	}{
		{"no history", 0, 0, 1.0},
		{"net left", 3, 1, 1.0},
		{"net right two", 0, 2, 1.06},
		{"capped", 0, 10, 1.15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PatternBoost(vectorWith(key, tt.left, tt.right), b, cfg)
			if math.Abs(got-tt.want) > epsilon {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestComputeFactors(t *testing.T) {
	cfg := DefaultConfig()
	b := quietBuyer("b1")
	key := PatternKey(b, cfg.PatternDimensions)

	s := applyLefts(NewSwipeState(), 5, cfg)
	f := ComputeFactors(s, vectorWith(key, 4, 0), b, t0, cfg)

	if !f.Suppressed {
		t.Error("expected suppressed")
	}
	if math.Abs(f.Penalty-math.Pow(0.6, 5)) > epsilon {
		t.Errorf("penalty = %f", f.Penalty)
	}
	if math.Abs(f.Pattern-0.65) > epsilon {
		t.Errorf("pattern = %f, want 0.65", f.Pattern)
	}
	if f.LeftCount != 5 || f.RightCount != 0 {
		t.Errorf("counts = %d/%d", f.LeftCount, f.RightCount)
	}

	other := trade.Buyer{ID: "b2", Country: "France", Industry: "Textiles"}
	if got := ComputeFactors(NewSwipeState(), vectorWith(key, 4, 0), other, t0, cfg); got.Pattern != 1.0 || got.Penalty != 1.0 {
		t.Errorf("unrelated buyer should be unaffected: %+v", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"decay one", func(c *Config) { c.LeftDecay = 1 }, ErrInvalidDecay},
		{"zero floor", func(c *Config) { c.PenaltyFloor = 0 }, ErrInvalidFloor},
		{"zero hide", func(c *Config) { c.HideAfterLeft = 0 }, ErrInvalidHide},
		{"no dimensions", func(c *Config) { c.PatternDimensions = nil }, ErrNoDimensions},
		{"pattern floor above one", func(c *Config) { c.PatternFloor = 1.5 }, ErrInvalidPatternCfg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
