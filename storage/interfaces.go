package storage

import (
	"context"

	"apartments-scraper/models"
)

// ResultWriter is the interface any output sink must satisfy. Write receives
// the enriched listings and the neighborhood statistics of one run.
type ResultWriter interface {
	Write(ctx context.Context, runID string, listings []models.Listing, stats []models.NeighborhoodStat) error
	Close() error
}
