package yad2

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"

	"apartments-scraper/models"
	"apartments-scraper/utils"
)

// Fetcher runs one feed request per area query on a bounded worker pool.
type Fetcher struct {
	client      FeedClient
	logger      *utils.Logger
	concurrency int
	rateLimitMs int
}

// NewFetcher creates a Fetcher. concurrency defaults to 10 in-flight requests.
func NewFetcher(client FeedClient, concurrency, rateLimitMs int, logger *utils.Logger) *Fetcher {
	if concurrency <= 0 {
		concurrency = 10
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Fetcher{
		client:      client,
		logger:      logger,
		concurrency: concurrency,
		rateLimitMs: rateLimitMs,
	}
}

// FetchAll fetches every query. A failed query yields an empty result and a
// FetchFailure; it never stops the others. Results are ordered by query
// index regardless of completion order.
func (f *Fetcher) FetchAll(ctx context.Context, queries []models.AreaQuery) ([]models.FetchResult, models.FetchReport) {
	pool := utils.NewWorkerPool(f.concurrency, f.rateLimitMs)
	f.logger.Info("[yad2] Fetching %d area queries, %d in flight", len(queries), pool.Size())

	out := make(chan models.FetchResult, len(queries))

	for i, q := range queries {
		if err := q.Validate(); err != nil {
			out <- models.FetchResult{Index: i, Query: q, Err: err}
			continue
		}
		i, q := i, q
		pool.Submit(ctx, func(ctx context.Context) {
			if err := ctx.Err(); err != nil {
				out <- models.FetchResult{Index: i, Query: q, Err: err}
				return
			}
			records, err := f.client.Fetch(ctx, q)
			out <- models.FetchResult{Index: i, Query: q, Records: records, Err: err}
		})
	}
	pool.Wait()
	close(out)

	results := make([]models.FetchResult, 0, len(queries))
	for r := range out {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	report := models.FetchReport{Queries: len(queries)}
	for i := range results {
		r := &results[i]
		if r.Err != nil {
			reason := FailureReason(r.Err)
			f.logger.Warn("[yad2] %s failed (%s): %v", r.Query, reason, r.Err)
			report.Failures = append(report.Failures, models.FetchFailure{Query: r.Query, Reason: reason})
			r.Records = nil
			continue
		}
		report.Succeeded++
		f.logger.Debug("[yad2] %s returned %d listings", r.Query, len(r.Records))
	}

	f.logger.Info("[yad2] Fetch complete: %d ok, %d failed", report.Succeeded, report.Failed())
	return results, report
}

// FailureReason classifies a fetch error for the run summary.
func FailureReason(err error) string {
	var statusErr *StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, models.ErrInvalidQuery):
		return "invalid query"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed payload"
	case errors.As(err, &statusErr):
		return fmt.Sprintf("http %d", statusErr.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "network error"
	}
}
