package ranking

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultWeights_Valid(t *testing.T) {
	w := DefaultWeights()

	if err := w.Validate(); err != nil {
		t.Fatalf("default weights should validate, got: %v", err)
	}
	if w.Composite.IndustryMatch != 0.35 || w.Composite.Intent != 0.30 ||
		w.Composite.Reliability != 0.20 || w.Composite.Geopolitical != 0.15 {
		t.Errorf("unexpected composite weights: %+v", w.Composite)
	}
	if len(w.Tiers) != 5 || w.Tiers[0].Label != "Hot Match" {
		t.Errorf("unexpected tiers: %+v", w.Tiers)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(w *Weights)
		wantErr error
	}{
		{
			name:    "composite sum too high",
			mutate:  func(w *Weights) { w.Composite.IndustryMatch = 0.5 },
			wantErr: ErrWeightsSum,
		},
		{
			name:    "composite sum within tolerance",
			mutate:  func(w *Weights) { w.Composite.Geopolitical = 0.1505 },
			wantErr: nil,
		},
		{
			name:    "intent sum off",
			mutate:  func(w *Weights) { w.Intent.Hiring = 0.2 },
			wantErr: ErrIntentWeightsSum,
		},
		{
			name: "reliability sum off",
			mutate: func(w *Weights) {
				w.Reliability.PaymentHistory = 0.9
			},
			wantErr: ErrReliabilityWeightsSum,
		},
		{
			name:    "negative penalty",
			mutate:  func(w *Weights) { w.Geo.War = -0.1 },
			wantErr: ErrNegativeWeight,
		},
		{
			name: "unordered tiers",
			mutate: func(w *Weights) {
				w.Tiers = []Tier{{0.2, "low"}, {0.8, "high"}}
			},
			wantErr: ErrTiersUnordered,
		},
		{
			name:    "no tiers",
			mutate:  func(w *Weights) { w.Tiers = nil },
			wantErr: ErrNoTiers,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DefaultWeights()
			tt.mutate(w)
			err := w.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadCalibration_EmptyPath(t *testing.T) {
	w, err := LoadCalibration("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if w.Composite.IndustryMatch != 0.35 {
		t.Errorf("expected defaults, got %+v", w.Composite)
	}
}

func TestLoadCalibration_MissingFile(t *testing.T) {
	w, err := LoadCalibration(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if w == nil || w.Composite.Intent != 0.30 {
		t.Error("expected defaults alongside the error")
	}
}

func TestLoadCalibration_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	content := `{
		"version": "1.1",
		"weights": {
			"composite": {"industry_match": 0.40, "intent_score": 0.25},
			"industry_adjacency": {"Textiles": ["Chemicals", "Auto Parts"]}
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Composite.IndustryMatch != 0.40 || w.Composite.Intent != 0.25 {
		t.Errorf("overrides not applied: %+v", w.Composite)
	}
	if w.Composite.Reliability != 0.20 {
		t.Errorf("unset weight should keep default, got %f", w.Composite.Reliability)
	}
	if got := w.Adjacency["Textiles"]; len(got) != 2 || got[1] != "Auto Parts" {
		t.Errorf("adjacency override not applied: %v", got)
	}
	if got := w.Adjacency["Solar"]; len(got) != 3 {
		t.Errorf("untouched adjacency should keep default, got %v", got)
	}
}

func TestLoadCalibration_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := LoadCalibration(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if w.Composite.IndustryMatch != 0.35 {
		t.Error("expected defaults on parse error")
	}
}

func TestLoadCalibration_RejectsBrokenInvariant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	content := `{"weights": {"composite": {"industry_match": 0.9}}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := LoadCalibration(path)
	if !errors.Is(err, ErrWeightsSum) {
		t.Fatalf("expected ErrWeightsSum, got %v", err)
	}
	if w.Composite.IndustryMatch != 0.35 {
		t.Error("expected defaults when calibration is invalid")
	}
}

func TestMergeCalibration_DoesNotMutateBase(t *testing.T) {
	base := DefaultWeights()
	override := &Weights{
		Adjacency: map[string][]string{"Solar": {"Textiles"}},
		Tiers:     []Tier{{0.5, "Good"}, {0, "Bad"}},
	}

	merged := MergeCalibration(base, override)

	if len(base.Adjacency["Solar"]) != 3 {
		t.Errorf("base adjacency mutated: %v", base.Adjacency["Solar"])
	}
	if len(base.Tiers) != 5 {
		t.Errorf("base tiers mutated: %v", base.Tiers)
	}
	if merged.Adjacency["Solar"][0] != "Textiles" || len(merged.Tiers) != 2 {
		t.Errorf("override not applied: %+v", merged)
	}
}

func TestMergeCalibration_NilArguments(t *testing.T) {
	if got := MergeCalibration(nil, nil); got.Composite.IndustryMatch != 0.35 {
		t.Error("nil base should fall back to defaults")
	}
	base := DefaultWeights()
	got := MergeCalibration(base, nil)
	if got == base {
		t.Error("expected a copy, got the same pointer")
	}
}

func TestLoadCalibration_ShippedFile(t *testing.T) {
	w, err := LoadCalibration(filepath.Join("..", "..", "configs", "scoring.calibration.example.json"))
	if err != nil {
		t.Fatalf("shipped calibration rejected: %v", err)
	}
	if w.Geo.War != 0.40 {
		t.Errorf("war penalty = %v, want 0.40", w.Geo.War)
	}
	if w.Reliability.PaymentHistory != DefaultWeights().Reliability.PaymentHistory {
		t.Error("reliability weights should keep their defaults")
	}
}
