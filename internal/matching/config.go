// Package matching ranks buyers for each exporter into card decks.
//
// An Orchestrator combines the scorer, the news overlay and swipe feedback. For each
// exporter it takes one feedback snapshot, scores every candidate buyer, drops hidden and
// low-scoring pairs, and keeps the top N by composite score.
package matching

import (
	"errors"
	"fmt"
)

// Configuration errors.
var (
	ErrInvalidTopN         = errors.New("top n must be positive")
	ErrInvalidMinComposite = errors.New("min composite must be within [0, 1]")
	ErrInvalidWorkers      = errors.New("workers must not be negative")
)

// Config controls deck assembly.
type Config struct {
	// TopN is the number of matches kept per exporter.
	TopN int `koanf:"top_n" json:"top_n"`
	// MinComposite drops pairs scoring below this value.
	MinComposite float64 `koanf:"min_composite" json:"min_composite"`
	// Workers bounds parallel exporter ranking in Run. Zero means one per CPU.
	Workers int `koanf:"workers" json:"workers"`
}

// DefaultConfig returns the standard deck settings.
func DefaultConfig() Config {
	return Config{
		TopN:         10,
		MinComposite: 0.10,
	}
}

// Validate checks the deck settings.
func (c Config) Validate() error {
	var errs []error
	if c.TopN <= 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidTopN, c.TopN))
	}
	if c.MinComposite < 0 || c.MinComposite > 1 {
		errs = append(errs, fmt.Errorf("%w: %f", ErrInvalidMinComposite, c.MinComposite))
	}
	if c.Workers < 0 {
		errs = append(errs, ErrInvalidWorkers)
	}
	return errors.Join(errs...)
}
