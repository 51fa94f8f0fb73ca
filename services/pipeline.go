package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"apartments-scraper/models"
	"apartments-scraper/utils"
)

// ListingFetcher runs every area query and reports per-query failures.
type ListingFetcher interface {
	FetchAll(ctx context.Context, queries []models.AreaQuery) ([]models.FetchResult, models.FetchReport)
}

// Result is the output of one pipeline run.
type Result struct {
	Listings []models.Listing
	Stats    []models.NeighborhoodStat
	Summary  models.RunSummary
}

// Pipeline wires fetch, aggregation, statistics and distance resolution.
type Pipeline struct {
	fetcher    ListingFetcher
	aggregator *Aggregator
	resolver   *Resolver
	walkSpeed  float64
	timeout    time.Duration
	logger     *utils.Logger
}

// PipelineOptions configures NewPipeline.
type PipelineOptions struct {
	Fetcher    ListingFetcher
	Aggregator *Aggregator
	Resolver   *Resolver
	// WalkSpeed in meters per minute.
	WalkSpeed float64
	// Timeout bounds the whole run; zero means no deadline.
	Timeout time.Duration
	Logger  *utils.Logger
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}
	return &Pipeline{
		fetcher:    opts.Fetcher,
		aggregator: opts.Aggregator,
		resolver:   opts.Resolver,
		walkSpeed:  opts.WalkSpeed,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
}

// Run fetches every query, builds the listings and statistics tables, and
// enriches listings with their nearest station. Calls still pending when the
// run deadline passes count as failed calls; the partial tables are returned.
func (p *Pipeline) Run(ctx context.Context, queries []models.AreaQuery, stations []models.Station) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: context done before start")
	}

	summary := models.RunSummary{RunID: uuid.NewString(), StartedAt: time.Now()}
	logger := p.logger.With("run", summary.RunID)

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	logger.Info("[pipeline] Run started: %d area queries, %d stations", len(queries), len(stations))

	results, fetchReport := p.fetcher.FetchAll(ctx, queries)
	summary.Fetch = fetchReport

	listings, duplicates := p.aggregator.Aggregate(results)
	summary.Listings = len(listings)
	summary.Duplicates = duplicates

	var (
		stats   []models.NeighborhoodStat
		records []models.DistanceRecord
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		stats = ComputeNeighborhoodStats(listings)
		return nil
	})
	g.Go(func() error {
		records, summary.Distance = p.resolver.Resolve(ctx, listings, stations)
		return nil
	})
	_ = g.Wait()
	summary.Stats = len(stats)

	enriched := Enrich(listings, records, p.walkSpeed)

	if ctx.Err() != nil {
		logger.Warn("[pipeline] Run deadline reached, results are partial: %v", ctx.Err())
	}
	summary.FinishedAt = time.Now()
	logger.Info("[pipeline] Run finished in %s: %d listings, %d groups, %d enriched",
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond),
		len(enriched), len(stats), summary.Distance.Resolved)

	return &Result{Listings: enriched, Stats: stats, Summary: summary}, nil
}
