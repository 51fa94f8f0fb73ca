package models

import "time"

// FetchFailure records why one area query produced no listings.
type FetchFailure struct {
	Query  AreaQuery
	Reason string
}

// FetchResult is the outcome of one area query. Index is the query's position
// in the input so results can be merged independently of completion order.
type FetchResult struct {
	Index   int
	Query   AreaQuery
	Records []RawRecord
	Err     error
}

// FetchReport summarizes a fetch run.
type FetchReport struct {
	Queries   int
	Succeeded int
	Failures  []FetchFailure
}

// Failed returns the number of queries that produced no result.
func (r *FetchReport) Failed() int { return len(r.Failures) }

// FailuresByReason groups failure counts by their reason.
func (r *FetchReport) FailuresByReason() map[string]int {
	out := make(map[string]int)
	for _, f := range r.Failures {
		out[f.Reason]++
	}
	return out
}

// DistanceReport summarizes a distance resolution run.
type DistanceReport struct {
	Listings       int
	Stations       int
	Lookups        int
	LookupFailures int
	Resolved       int
	// Listings that could not be enriched (no token, no coordinates, or
	// every station lookup failed).
	Gaps int
}

// RunSummary is what a completed pipeline run reports.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Fetch      FetchReport
	Distance   DistanceReport
	Listings   int
	Duplicates int
	Stats      int
}

// InsightReport is the console overview printed after a run.
type InsightReport struct {
	TotalListings   int
	PrivateListings int
	AveragePrice    float64
	MinPrice        float64
	MaxPrice        float64
	MostExpensive   *Listing
	// Up to five listings with the shortest walk to a station.
	ClosestToStation       []Listing
	ListingsByNeighborhood map[string]int
	// Cheapest price per m² among neighborhood groups with a size.
	BestValue []NeighborhoodStat
}
