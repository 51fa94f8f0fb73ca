package services

import (
	"math"
	"sort"

	"apartments-scraper/models"
)

type groupKey struct {
	city         string
	neighborhood string
	rooms        float64
}

type groupAcc struct {
	priceSum float64
	priceN   int
	sqmSum   float64
	sqmN     int
}

// ComputeNeighborhoodStats groups listings by (city, neighborhood, rooms).
// Rows missing any of the three keys are not grouped. Price and size means
// are taken independently over the rows that have them; a group without a
// single price is omitted. Rows come back sorted by city, neighborhood, rooms.
func ComputeNeighborhoodStats(listings []models.Listing) []models.NeighborhoodStat {
	groups := make(map[groupKey]*groupAcc)
	for i := range listings {
		l := &listings[i]
		if l.City == "" || l.Neighborhood == "" || l.Rooms == nil {
			continue
		}
		key := groupKey{city: l.City, neighborhood: l.Neighborhood, rooms: *l.Rooms}
		acc, ok := groups[key]
		if !ok {
			acc = &groupAcc{}
			groups[key] = acc
		}
		if l.Price != nil {
			acc.priceSum += *l.Price
			acc.priceN++
		}
		if l.SqM != nil {
			acc.sqmSum += *l.SqM
			acc.sqmN++
		}
	}

	stats := make([]models.NeighborhoodStat, 0, len(groups))
	for key, acc := range groups {
		if acc.priceN == 0 {
			continue
		}
		s := models.NeighborhoodStat{
			City:         key.city,
			Neighborhood: key.neighborhood,
			Rooms:        key.rooms,
			PriceMean:    acc.priceSum / float64(acc.priceN),
			Count:        acc.priceN,
		}
		if acc.sqmN > 0 {
			s.SqMMean = models.Float(acc.sqmSum / float64(acc.sqmN))
		}
		s.PricePerSqM = pricePerSqM(s.PriceMean, s.SqMMean)
		stats = append(stats, s)
	}

	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.City != b.City {
			return a.City < b.City
		}
		if a.Neighborhood != b.Neighborhood {
			return a.Neighborhood < b.Neighborhood
		}
		return a.Rooms < b.Rooms
	})
	return stats
}

// pricePerSqM is floor(price / size), or nil when the result is not finite.
func pricePerSqM(priceMean float64, sqmMean *float64) *int64 {
	if sqmMean == nil || *sqmMean == 0 {
		return nil
	}
	v := math.Floor(priceMean / *sqmMean)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	n := int64(v)
	return &n
}
