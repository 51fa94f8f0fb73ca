package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apartments-scraper/models"
)

type stubFetcher struct {
	results []models.FetchResult
	report  models.FetchReport
	block   bool
	ctxErr  error
}

func (s *stubFetcher) FetchAll(ctx context.Context, _ []models.AreaQuery) ([]models.FetchResult, models.FetchReport) {
	if s.block {
		<-ctx.Done()
	}
	s.ctxErr = ctx.Err()
	return s.results, s.report
}

func scenarioPipeline(router *fakeRouter, timeout time.Duration) (*Pipeline, *stubFetcher) {
	fetcher := &stubFetcher{
		results: []models.FetchResult{
			{Index: 0, Records: []models.RawRecord{withLat(rawMarker("t1", 3, 5000, 50), 32.01), withLat(rawMarker("t2", 3, 6000, 60), 32.02)}},
			{Index: 1, Records: []models.RawRecord{withLat(rawMarker("t3", 3, 7000, 70), 32.03)}},
		},
		report: models.FetchReport{Queries: 2, Succeeded: 2},
	}
	p := NewPipeline(PipelineOptions{
		Fetcher:    fetcher,
		Aggregator: NewAggregator("https://listings.test/item/", false, nil),
		Resolver:   NewResolver(router, 4, nil),
		WalkSpeed:  80,
		Timeout:    timeout,
		Logger:     newTestLogger(),
	})
	return p, fetcher
}

func withLat(r models.RawRecord, lat float64) models.RawRecord {
	r["address.coords.lat"] = lat
	return r
}

func TestPipelineRun_Scenario(t *testing.T) {
	stations := []models.Station{s1, s2}
	router := newFakeRouter(stations)
	router.answers["32.01|S1"] = 160
	router.answers["32.01|S2"] = 900
	router.answers["32.02|S2"] = 300
	// t3 has no route to any station.

	p, _ := scenarioPipeline(router, time.Minute)
	res, err := p.Run(context.Background(), make([]models.AreaQuery, 2), stations)
	require.NoError(t, err)

	require.Len(t, res.Listings, 3)
	assert.Equal(t, "S1", *res.Listings[0].Station)
	assert.Equal(t, 2, *res.Listings[0].WalkingMinutes)
	assert.Equal(t, "S2", *res.Listings[1].Station)
	assert.Equal(t, 4, *res.Listings[1].WalkingMinutes)
	assert.Nil(t, res.Listings[2].Station)

	require.Len(t, res.Stats, 1)
	assert.Equal(t, 6000.0, res.Stats[0].PriceMean)
	assert.Equal(t, int64(100), *res.Stats[0].PricePerSqM)

	sum := res.Summary
	_, err = uuid.Parse(sum.RunID)
	assert.NoError(t, err)
	assert.Equal(t, 3, sum.Listings)
	assert.Equal(t, 1, sum.Stats)
	assert.Equal(t, 2, sum.Distance.Resolved)
	assert.Equal(t, 1, sum.Distance.Gaps)
	assert.Equal(t, 3, sum.Distance.LookupFailures)
	assert.False(t, sum.FinishedAt.Before(sum.StartedAt))
}

func TestPipelineRun_DoneContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, _ := scenarioPipeline(newFakeRouter(nil), 0)
	_, err := p.Run(ctx, nil, nil)
	assert.Error(t, err)
}

func TestPipelineRun_Deadline(t *testing.T) {
	stations := []models.Station{s1}
	router := newFakeRouter(stations)
	p, fetcher := scenarioPipeline(router, 20*time.Millisecond)
	fetcher.block = true

	res, err := p.Run(context.Background(), nil, stations)
	require.NoError(t, err)
	assert.Error(t, fetcher.ctxErr, "fetch sees the run deadline")
	assert.Len(t, res.Listings, 3)
	assert.Equal(t, 3, res.Summary.Distance.Gaps)
	assert.Equal(t, 0, router.calls)
}
