package storage

import (
	"strconv"

	"apartments-scraper/models"
)

// ListingColumns is the fixed column order of the listings table.
var ListingColumns = []string{
	"token", "city", "neighborhood", "street", "house_num", "floor",
	"lon", "lat", "rooms", "sq_m", "price", "image", "url", "ad_type",
	"station", "distance", "walking_time",
}

// StatColumns is the fixed column order of the neighborhood statistics table.
var StatColumns = []string{
	"city", "neighborhood", "rooms", "price_mean", "sq_m_mean", "count", "price_per_sq_m",
}

// listingRow renders l in ListingColumns order; missing values are empty.
func listingRow(l *models.Listing) []string {
	return []string{
		l.Token,
		l.City,
		l.Neighborhood,
		l.Street,
		formatInt(l.HouseNum),
		formatInt(l.Floor),
		formatFloat(l.Lon),
		formatFloat(l.Lat),
		formatFloat(l.Rooms),
		formatFloat(l.SqM),
		formatFloat(l.Price),
		l.Image,
		l.URL,
		l.AdType,
		formatString(l.Station),
		formatFloat(l.DistanceM),
		formatInt(l.WalkingMinutes),
	}
}

func statRow(s *models.NeighborhoodStat) []string {
	row := []string{
		s.City,
		s.Neighborhood,
		strconv.FormatFloat(s.Rooms, 'f', -1, 64),
		strconv.FormatFloat(s.PriceMean, 'f', -1, 64),
		formatFloat(s.SqMMean),
		strconv.Itoa(s.Count),
		"",
	}
	if s.PricePerSqM != nil {
		row[6] = strconv.FormatInt(*s.PricePerSqM, 10)
	}
	return row
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
