package services

import (
	"context"
	"errors"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"apartments-scraper/models"
	"apartments-scraper/routing"
	"apartments-scraper/utils"
)

// DefaultWalkSpeed is the walking speed used for WalkingMinutes, in meters per minute.
const DefaultWalkSpeed = 80.0

// Resolver finds the nearest station by walking distance for each listing.
type Resolver struct {
	router      routing.Router
	concurrency int
	logger      *utils.Logger
}

// NewResolver creates a Resolver. concurrency bounds the number of routing
// calls in flight and defaults to 8.
func NewResolver(router routing.Router, concurrency int, logger *utils.Logger) *Resolver {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Resolver{router: router, concurrency: concurrency, logger: logger}
}

type pairResult struct {
	distance float64
	ok       bool
}

// Resolve looks up the walking distance from every routable listing to every
// station and keeps the shortest one per listing. A failed lookup excludes
// only that station; a listing with no successful lookup gets no record.
// Ties go to the station listed first. Each token is routed once.
func (r *Resolver) Resolve(ctx context.Context, listings []models.Listing, stations []models.Station) ([]models.DistanceRecord, models.DistanceReport) {
	report := models.DistanceReport{Listings: len(listings), Stations: len(stations)}

	var origins []models.Listing
	seen := utils.NewTokenSet()
	for _, l := range listings {
		if l.Token == "" || !l.HasCoords() {
			continue
		}
		if seen.Add(l.Token) {
			origins = append(origins, l)
		}
	}

	slots := make([][]pairResult, len(origins))
	for i := range slots {
		slots[i] = make([]pairResult, len(stations))
	}

	r.logger.Info("[resolver] Routing %d listings × %d stations, %d in flight",
		len(origins), len(stations), r.concurrency)

	var failures, noRoute int64
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for i, l := range origins {
		from := models.Coordinate{Lat: *l.Lat, Lon: *l.Lon}
		for j, s := range stations {
			to := models.Coordinate{Lat: s.Lat, Lon: s.Lon}
			i, l, j, s := i, l, j, s
			g.Go(func() error {
				if ctx.Err() != nil {
					atomic.AddInt64(&failures, 1)
					return nil
				}
				d, err := r.router.WalkingDistance(ctx, from, to)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					if errors.Is(err, routing.ErrNoRoute) {
						atomic.AddInt64(&noRoute, 1)
					} else {
						r.logger.Debug("[resolver] %s -> %s: %v", l.Token, s.Name, err)
					}
					return nil
				}
				slots[i][j] = pairResult{distance: d, ok: true}
				return nil
			})
		}
	}
	_ = g.Wait()

	report.Lookups = len(origins) * len(stations)
	report.LookupFailures = int(failures)

	records := make([]models.DistanceRecord, 0, len(origins))
	for i, l := range origins {
		best := -1
		for j, p := range slots[i] {
			if p.ok && (best < 0 || p.distance < slots[i][best].distance) {
				best = j
			}
		}
		if best < 0 {
			continue
		}
		records = append(records, models.DistanceRecord{
			ListingToken: l.Token,
			StationName:  stations[best].Name,
			DistanceM:    slots[i][best].distance,
		})
	}

	resolved := make(map[string]struct{}, len(records))
	for _, rec := range records {
		resolved[rec.ListingToken] = struct{}{}
	}
	for _, l := range listings {
		if _, ok := resolved[l.Token]; ok && l.Token != "" {
			report.Resolved++
		} else {
			report.Gaps++
		}
	}

	if report.LookupFailures > 0 {
		r.logger.Warn("[resolver] %d of %d lookups failed (%d without a route)",
			report.LookupFailures, report.Lookups, noRoute)
	}
	r.logger.Info("[resolver] Resolved %d listings, %d gaps", report.Resolved, report.Gaps)
	return records, report
}

// Enrich left-joins distance records onto listings by token. Listings
// without a record keep empty distance fields. walkSpeed is in meters per
// minute; zero or less uses DefaultWalkSpeed.
func Enrich(listings []models.Listing, records []models.DistanceRecord, walkSpeed float64) []models.Listing {
	if walkSpeed <= 0 {
		walkSpeed = DefaultWalkSpeed
	}
	byToken := make(map[string]models.DistanceRecord, len(records))
	for _, rec := range records {
		if _, ok := byToken[rec.ListingToken]; !ok {
			byToken[rec.ListingToken] = rec
		}
	}

	out := make([]models.Listing, len(listings))
	for i, l := range listings {
		l.Station, l.DistanceM, l.WalkingMinutes = nil, nil, nil
		if rec, ok := byToken[l.Token]; ok && l.Token != "" {
			l.Station = models.String(rec.StationName)
			l.DistanceM = models.Float(rec.DistanceM)
			l.WalkingMinutes = models.Int(int(math.Ceil(rec.DistanceM / walkSpeed)))
		}
		out[i] = l
	}
	return out
}
