package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"apartments-scraper/models"
)

const GeoJSONFile = "listings.geojson"

// GeoJSONWriter writes enriched listings as a point FeatureCollection for
// map layers. Listings without coordinates are left out.
type GeoJSONWriter struct {
	path string
}

func NewGeoJSONWriter(dir string) (*GeoJSONWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, eris.Wrapf(err, "geojson: create output dir %q", dir)
	}
	return &GeoJSONWriter{path: filepath.Join(dir, GeoJSONFile)}, nil
}

func (g *GeoJSONWriter) Write(_ context.Context, runID string, listings []models.Listing, _ []models.NeighborhoodStat) error {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(listings))}
	for i := range listings {
		l := &listings[i]
		if !l.HasCoords() {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         l.Token,
			Geometry:   geom.NewPointFlat(geom.XY, []float64{*l.Lon, *l.Lat}),
			Properties: featureProperties(runID, l),
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "geojson: marshal")
	}
	if err := os.WriteFile(g.path, data, 0644); err != nil {
		return eris.Wrapf(err, "geojson: write %q", g.path)
	}
	return nil
}

func (g *GeoJSONWriter) Close() error { return nil }

func featureProperties(runID string, l *models.Listing) map[string]any {
	props := map[string]any{
		"run_id":       runID,
		"token":        l.Token,
		"city":         l.City,
		"neighborhood": l.Neighborhood,
		"street":       l.Street,
		"url":          l.URL,
		"image":        l.Image,
		"ad_type":      l.AdType,
	}
	optional := map[string]any{
		"house_num":    l.HouseNum,
		"floor":        l.Floor,
		"rooms":        l.Rooms,
		"sq_m":         l.SqM,
		"price":        l.Price,
		"station":      l.Station,
		"distance":     l.DistanceM,
		"walking_time": l.WalkingMinutes,
	}
	for k, v := range optional {
		switch p := v.(type) {
		case *int:
			if p != nil {
				props[k] = *p
			}
		case *float64:
			if p != nil {
				props[k] = *p
			}
		case *string:
			if p != nil {
				props[k] = *p
			}
		}
	}
	return props
}
