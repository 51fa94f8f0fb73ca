package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"apartments-scraper/models"
)

const ShapefileName = "listings.shp"

// dBase field names are limited to 10 characters.
var shapeFields = []shp.Field{
	shp.StringField("TOKEN", 32),
	shp.StringField("CITY", 64),
	shp.StringField("NBHD", 64),
	shp.StringField("STREET", 64),
	shp.FloatField("ROOMS", 6, 1),
	shp.FloatField("SQ_M", 10, 1),
	shp.FloatField("PRICE", 12, 0),
	shp.StringField("AD_TYPE", 16),
	shp.StringField("STATION", 64),
	shp.FloatField("DIST_M", 10, 0),
	shp.NumberField("WALK_MIN", 6),
	shp.StringField("URL", 128),
}

// ShapefileWriter writes enriched listings as a POINT shapefile in WGS84.
// Listings without coordinates are left out.
type ShapefileWriter struct {
	path string
}

func NewShapefileWriter(dir string) (*ShapefileWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, eris.Wrapf(err, "shapefile: create output dir %q", dir)
	}
	return &ShapefileWriter{path: filepath.Join(dir, ShapefileName)}, nil
}

func (s *ShapefileWriter) Write(_ context.Context, _ string, listings []models.Listing, _ []models.NeighborhoodStat) error {
	w, err := shp.Create(s.path, shp.POINT)
	if err != nil {
		return eris.Wrapf(err, "shapefile: create %q", s.path)
	}
	defer w.Close()

	if err := w.SetFields(shapeFields); err != nil {
		return eris.Wrap(err, "shapefile: set fields")
	}

	for i := range listings {
		l := &listings[i]
		if !l.HasCoords() {
			continue
		}
		row := int(w.Write(&shp.Point{X: *l.Lon, Y: *l.Lat}))
		values := []any{
			l.Token, l.City, l.Neighborhood, l.Street,
			l.Rooms, l.SqM, l.Price, l.AdType,
			l.Station, l.DistanceM, l.WalkingMinutes, l.URL,
		}
		for field, v := range values {
			if err := w.WriteAttribute(row, field, attribute(v, field)); err != nil {
				return eris.Wrapf(err, "shapefile: write attribute %d of %s", field, l.Token)
			}
		}
	}
	return nil
}

func (s *ShapefileWriter) Close() error { return nil }

// attribute converts v for WriteAttribute. Missing values become a blank
// field so no stale bytes are left in the record.
func attribute(v any, field int) any {
	switch p := v.(type) {
	case string:
		if p != "" {
			return fitField(p, int(shapeFields[field].Size))
		}
	case *string:
		if p != nil && *p != "" {
			return fitField(*p, int(shapeFields[field].Size))
		}
	case *float64:
		if p != nil {
			return *p
		}
	case *int:
		if p != nil {
			return *p
		}
	}
	return strings.Repeat(" ", int(shapeFields[field].Size))
}

// fitField cuts s to at most size bytes without splitting a UTF-8 sequence.
func fitField(s string, size int) string {
	if len(s) <= size {
		return s
	}
	cut := size
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
