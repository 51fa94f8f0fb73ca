package models

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidQuery is returned for area queries with non-positive identifiers.
var ErrInvalidQuery = errors.New("invalid area query")

// AreaQuery identifies one sub-area of the listings feed.
type AreaQuery struct {
	AreaID         int
	CityID         int
	NeighborhoodID int
}

// Validate rejects queries that cannot be sent to the feed.
func (q AreaQuery) Validate() error {
	if q.AreaID <= 0 || q.CityID <= 0 || q.NeighborhoodID <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidQuery, q)
	}
	return nil
}

func (q AreaQuery) String() string {
	return fmt.Sprintf("area=%d city=%d neighborhood=%d", q.AreaID, q.CityID, q.NeighborhoodID)
}

// RawRecord is one feed marker flattened to dotted keys, e.g. "address.city.text".
// It only lives between fetch and aggregation.
type RawRecord map[string]any

// Listing is the normalized rental record. Optional fields are nil when the
// feed did not provide a usable value.
type Listing struct {
	Token        string
	City         string
	Neighborhood string
	Street       string
	HouseNum     *int
	Floor        *int
	Lon          *float64
	Lat          *float64
	Rooms        *float64
	SqM          *float64
	Price        *float64
	Image        string
	URL          string
	AdType       string

	// Set by the distance resolver.
	Station        *string
	DistanceM      *float64
	WalkingMinutes *int
}

// HasCoords reports whether the listing can be routed from.
func (l *Listing) HasCoords() bool {
	return l.Lat != nil && l.Lon != nil && ValidLatLon(*l.Lat, *l.Lon)
}

// Station is a rail stop used as a walking-distance reference point.
type Station struct {
	Name string
	Lat  float64
	Lon  float64
}

// DistanceRecord is the nearest station found for one listing.
type DistanceRecord struct {
	ListingToken string
	StationName  string
	DistanceM    float64
}

// NeighborhoodStat is one row of the per-neighborhood price summary.
// PricePerSqM is nil when the mean size is missing or zero.
type NeighborhoodStat struct {
	City         string
	Neighborhood string
	Rooms        float64
	PriceMean    float64
	SqMMean      *float64
	Count        int
	PricePerSqM  *int64
}

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64
	Lon float64
}

// ValidLatLon reports whether lat/lon are finite and in range. (0,0) is
// treated as missing, the feed uses it for unplaced listings.
func ValidLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
