// Package export writes ranked decks to files, stdout, or S3-compatible object storage.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/onnwee/tradematch/internal/matching"
)

// Document is the serialized form of one ranking run.
type Document struct {
	GeneratedAt   time.Time         `json:"generated_at"`
	ExporterCount int               `json:"exporter_count"`
	Stats         matching.RunStats `json:"stats"`
	Decks         []matching.Deck   `json:"decks"`
}

// NewDocument builds a document from decks, summing their run stats.
func NewDocument(decks []matching.Deck, generatedAt time.Time) Document {
	doc := Document{
		GeneratedAt:   generatedAt.UTC(),
		ExporterCount: len(decks),
		Decks:         decks,
	}
	for _, d := range decks {
		doc.Stats.Add(d.Stats)
	}
	return doc
}

// Sink persists a document and returns a human-readable location for it.
type Sink interface {
	Write(ctx context.Context, doc Document) (string, error)
}

// encode writes doc as indented JSON.
func encode(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriterSink writes documents to an io.Writer such as stdout.
type WriterSink struct {
	w    io.Writer
	name string
}

// NewWriterSink creates a sink over w. name is returned as the location.
func NewWriterSink(w io.Writer, name string) *WriterSink {
	return &WriterSink{w: w, name: name}
}

// Write encodes doc to the underlying writer.
func (s *WriterSink) Write(_ context.Context, doc Document) (string, error) {
	if err := encode(s.w, doc); err != nil {
		return "", fmt.Errorf("failed to encode decks: %w", err)
	}
	return s.name, nil
}

// FileSink writes documents to a file, replacing it atomically.
type FileSink struct {
	path string
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Write encodes doc to a temporary file next to the target and renames it into place.
func (s *FileSink) Write(_ context.Context, doc Document) (string, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".decks-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := encode(tmp, doc); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to encode decks: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return "", fmt.Errorf("failed to move export into place: %w", err)
	}
	return s.path, nil
}
