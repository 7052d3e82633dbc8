package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("required column missing")

// Stats summarizes one file load.
type Stats struct {
	Rows    int `json:"rows"`
	Loaded  int `json:"loaded"`
	Dropped int `json:"dropped"`
}

// row gives header-keyed access to one CSV record. Absent columns read as "".
type row struct {
	index  map[string]int
	fields []string
}

func (r row) get(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// readRows streams records from a CSV with a header line, calling fn for each one.
func readRows(src io.Reader, required []string, fn func(row) error) error {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty csv: %w", io.ErrUnexpectedEOF)
		}
		return fmt.Errorf("failed to read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		// Excel exports often prefix the first column with a UTF-8 BOM.
		h = strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")
		index[h] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read csv record: %w", err)
		}
		if err := fn(row{index: index, fields: fields}); err != nil {
			return err
		}
	}
}
