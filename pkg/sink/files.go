package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/amosWeiskopf/listingsmith/internal/models"
)

// JSONWriter writes the records as a {total, extracted_at, records} envelope
type JSONWriter struct {
	path string
	now  func() time.Time
}

func NewJSONWriter(path string) *JSONWriter {
	return &JSONWriter{path: path, now: time.Now}
}

func (w *JSONWriter) Write(_ context.Context, records []models.Record) error {
	data, err := json.MarshalIndent(models.NewRecordSet(records, w.now()), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	if err := os.WriteFile(w.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.path, err)
	}
	return nil
}

func (w *JSONWriter) Close() error { return nil }

// ReadJSON loads a record set saved by JSONWriter
func ReadJSON(path string) (models.RecordSet, error) {
	var set models.RecordSet
	data, err := os.ReadFile(path)
	if err != nil {
		return set, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &set); err != nil {
		return set, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if set.Records == nil {
		set.Records = []models.Record{}
	}
	return set, nil
}

// CSVWriter writes one row per record under a header made of the sorted
// union of the fields present in the batch
type CSVWriter struct {
	path string
}

func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

func (w *CSVWriter) Write(_ context.Context, records []models.Record) error {
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", w.path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	cols := Columns(records)
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(row(r.Fields(), cols)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return f.Close()
}

func (w *CSVWriter) Close() error { return nil }

// XLSXWriter writes the same layout as CSVWriter into a spreadsheet
type XLSXWriter struct {
	path  string
	sheet string
}

func NewXLSXWriter(path string) *XLSXWriter {
	return &XLSXWriter{path: path, sheet: "Records"}
}

func (w *XLSXWriter) Write(_ context.Context, records []models.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", w.sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	cols := Columns(records)
	if err := f.SetSheetRow(w.sheet, "A1", &cols); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row(r.Fields(), cols)
		if err := f.SetSheetRow(w.sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if len(cols) > 0 {
		if err := f.SetPanes(w.sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return fmt.Errorf("failed to freeze header: %w", err)
		}
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save %s: %w", w.path, err)
	}
	return nil
}

func (w *XLSXWriter) Close() error { return nil }

func row(fields map[string]string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = fields[c]
	}
	return out
}
