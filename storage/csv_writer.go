package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"

	"apartments-scraper/models"
)

const (
	ListingsFile = "listings.csv"
	StatsFile    = "neighborhood_stats.csv"
)

// CSVWriter writes the listings and statistics tables as CSV files in one
// directory. It is safe for concurrent use.
type CSVWriter struct {
	mu  sync.Mutex
	dir string
}

// NewCSVWriter creates the output directory if needed.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, eris.Wrapf(err, "csv: create output dir %q", dir)
	}
	return &CSVWriter{dir: dir}, nil
}

// Write replaces listings.csv and neighborhood_stats.csv.
func (c *CSVWriter) Write(_ context.Context, _ string, listings []models.Listing, stats []models.NeighborhoodStat) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows := make([][]string, 0, len(listings))
	for i := range listings {
		rows = append(rows, listingRow(&listings[i]))
	}
	if err := writeCSV(filepath.Join(c.dir, ListingsFile), ListingColumns, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for i := range stats {
		rows = append(rows, statRow(&stats[i]))
	}
	return writeCSV(filepath.Join(c.dir, StatsFile), StatColumns, rows)
}

// Close is a no-op; files are closed after each Write.
func (c *CSVWriter) Close() error { return nil }

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "csv: create file %q", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrapf(err, "csv: write %q", path)
	}
	return f.Close()
}
