// Package sink persists extracted records in the configured formats.
package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amosWeiskopf/listingsmith/internal/config"
	"github.com/amosWeiskopf/listingsmith/internal/logging"
	"github.com/amosWeiskopf/listingsmith/internal/models"
)

// Writer persists a batch of records
type Writer interface {
	Write(ctx context.Context, records []models.Record) error
	Close() error
}

// Set fans a batch out to several writers
type Set struct {
	writers map[string]Writer
	order   []string
	log     logrus.FieldLogger
}

// Open builds one writer per configured format. File outputs are named
// stem.<ext> under the output directory.
func Open(ctx context.Context, cfg config.StorageConfig, stem string, log logrus.FieldLogger) (*Set, error) {
	if log == nil {
		log = logging.Discard()
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	s := &Set{writers: make(map[string]Writer), log: log}
	for _, format := range cfg.Formats {
		if _, dup := s.writers[format]; dup {
			continue
		}
		w, err := open(ctx, cfg, format, stem)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("opening %s sink: %w", format, err)
		}
		s.writers[format] = w
		s.order = append(s.order, format)
	}
	return s, nil
}

func open(ctx context.Context, cfg config.StorageConfig, format, stem string) (Writer, error) {
	path := func(ext string) string { return filepath.Join(cfg.OutputDir, stem+"."+ext) }
	switch format {
	case "json":
		return NewJSONWriter(path("json")), nil
	case "csv":
		return NewCSVWriter(path("csv")), nil
	case "xlsx":
		return NewXLSXWriter(path("xlsx")), nil
	case "sqlite":
		return NewSQLiteWriter(cfg.SQLitePath)
	case "postgres":
		return NewPostgresWriter(ctx, cfg.PostgresDSN)
	default:
		return nil, &config.Error{Field: "storage.formats", Reason: fmt.Sprintf("unknown format %q", format)}
	}
}

// Formats returns the open formats in configuration order
func (s *Set) Formats() []string {
	return append([]string(nil), s.order...)
}

// Write hands records to every writer. A failing writer does not stop the
// others; their errors are joined.
func (s *Set) Write(ctx context.Context, records []models.Record) error {
	var errs []error
	for _, format := range s.order {
		if err := s.writers[format].Write(ctx, records); err != nil {
			s.log.WithError(err).WithField("format", format).Error("saving records failed")
			errs = append(errs, fmt.Errorf("%s: %w", format, err))
			continue
		}
		s.log.WithFields(logrus.Fields{"format": format, "records": len(records)}).Info("records saved")
	}
	return errors.Join(errs...)
}

// Close releases every writer
func (s *Set) Close() error {
	var errs []error
	for _, format := range s.order {
		if err := s.writers[format].Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", format, err))
		}
	}
	return errors.Join(errs...)
}

// Columns returns the sorted union of the field names present in records
func Columns(records []models.Record) []string {
	set := make(map[string]struct{})
	for _, r := range records {
		for k := range r.Fields() {
			set[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Stem returns a file stem such as "records_20240315_093000"
func Stem(prefix string, at time.Time) string {
	return fmt.Sprintf("%s_%s", prefix, at.Format("20060102_150405"))
}
