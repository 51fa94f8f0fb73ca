package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	_ "modernc.org/sqlite"

	"apartments-scraper/models"
)

// dialect holds what differs between the supported SQL backends.
type dialect struct {
	driver      string
	serial      string
	blob        string
	placeholder func(n int) string
	pingTries   int
}

var dialects = map[string]dialect{
	"postgres": {
		driver:      "postgres",
		serial:      "SERIAL PRIMARY KEY",
		blob:        "BYTEA",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		pingTries:   10,
	},
	"sqlite": {
		driver:      "sqlite",
		serial:      "INTEGER PRIMARY KEY AUTOINCREMENT",
		blob:        "BLOB",
		placeholder: func(int) string { return "?" },
		pingTries:   1,
	},
}

// SQLWriter persists listings and statistics to PostgreSQL or SQLite.
type SQLWriter struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLWriter opens the database, runs schema migrations, and returns a
// ready-to-use SQLWriter. driver is "postgres" or "sqlite"; for sqlite the
// dsn is a file path.
func NewSQLWriter(driver, dsn string) (*SQLWriter, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, eris.Errorf("sql: unsupported driver %q", driver)
	}
	if driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create dir for %q", dsn)
		}
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: open", driver)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	for i := 0; i < d.pingTries; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		if i+1 < d.pingTries {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, eris.Wrapf(err, "%s: ping failed after %d tries", driver, d.pingTries)
	}

	w := &SQLWriter{db: db, dialect: d}
	if err := w.migrate(); err != nil {
		_ = db.Close()
		return nil, eris.Wrapf(err, "%s: migrate", driver)
	}
	return w, nil
}

func (w *SQLWriter) migrate() error {
	stmts := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS listings (
			id            %s,
			run_id        TEXT NOT NULL,
			token         TEXT NOT NULL DEFAULT '',
			city          TEXT NOT NULL DEFAULT '',
			neighborhood  TEXT NOT NULL DEFAULT '',
			street        TEXT NOT NULL DEFAULT '',
			house_num     INTEGER,
			floor         INTEGER,
			lon           DOUBLE PRECISION,
			lat           DOUBLE PRECISION,
			rooms         DOUBLE PRECISION,
			sq_m          DOUBLE PRECISION,
			price         DOUBLE PRECISION,
			image         TEXT NOT NULL DEFAULT '',
			url           TEXT NOT NULL DEFAULT '',
			ad_type       TEXT NOT NULL DEFAULT '',
			station       TEXT,
			distance      DOUBLE PRECISION,
			walking_time  INTEGER,
			location_wkb  %s
		)`, w.dialect.serial, w.dialect.blob),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS neighborhood_stats (
			id              %s,
			run_id          TEXT NOT NULL,
			city            TEXT NOT NULL,
			neighborhood    TEXT NOT NULL,
			rooms           DOUBLE PRECISION NOT NULL,
			price_mean      DOUBLE PRECISION NOT NULL,
			sq_m_mean       DOUBLE PRECISION,
			count           INTEGER NOT NULL,
			price_per_sq_m  BIGINT
		)`, w.dialect.serial),
		`CREATE INDEX IF NOT EXISTS idx_listings_token        ON listings(token)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_neighborhood ON listings(city, neighborhood, rooms)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_price        ON listings(price)`,
	}
	for _, stmt := range stmts {
		if _, err := w.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Write clears both tables and batch-inserts this run's rows in one
// transaction.
func (w *SQLWriter) Write(ctx context.Context, runID string, listings []models.Listing, stats []models.NeighborhoodStat) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sql: begin")
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"listings", "neighborhood_stats"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "sql: clear %s", table)
		}
	}

	listingCols := []string{
		"run_id", "token", "city", "neighborhood", "street", "house_num", "floor",
		"lon", "lat", "rooms", "sq_m", "price", "image", "url", "ad_type",
		"station", "distance", "walking_time", "location_wkb",
	}
	const batchSize = 50
	for i := 0; i < len(listings); i += batchSize {
		end := min(i+batchSize, len(listings))
		rows := make([][]any, 0, end-i)
		for j := i; j < end; j++ {
			l := &listings[j]
			loc, err := locationWKB(l)
			if err != nil {
				return err
			}
			rows = append(rows, []any{
				runID, l.Token, l.City, l.Neighborhood, l.Street, sqlInt(l.HouseNum), sqlInt(l.Floor),
				sqlFloat(l.Lon), sqlFloat(l.Lat), sqlFloat(l.Rooms), sqlFloat(l.SqM), sqlFloat(l.Price),
				l.Image, l.URL, l.AdType,
				sqlString(l.Station), sqlFloat(l.DistanceM), sqlInt(l.WalkingMinutes), loc,
			})
		}
		if err := w.insertBatch(ctx, tx, "listings", listingCols, rows); err != nil {
			return err
		}
	}

	statCols := []string{"run_id", "city", "neighborhood", "rooms", "price_mean", "sq_m_mean", "count", "price_per_sq_m"}
	for i := 0; i < len(stats); i += batchSize {
		end := min(i+batchSize, len(stats))
		rows := make([][]any, 0, end-i)
		for j := i; j < end; j++ {
			s := &stats[j]
			var ppsm any
			if s.PricePerSqM != nil {
				ppsm = *s.PricePerSqM
			}
			rows = append(rows, []any{runID, s.City, s.Neighborhood, s.Rooms, s.PriceMean, sqlFloat(s.SqMMean), int64(s.Count), ppsm})
		}
		if err := w.insertBatch(ctx, tx, "neighborhood_stats", statCols, rows); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(), "sql: commit")
}

func (w *SQLWriter) insertBatch(ctx context.Context, tx *sql.Tx, table string, cols []string, rows [][]any) error {
	valueStrings := make([]string, 0, len(rows))
	valueArgs := make([]any, 0, len(rows)*len(cols))

	n := 0
	for _, row := range rows {
		ph := make([]string, len(row))
		for k := range row {
			n++
			ph[k] = w.dialect.placeholder(n)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs, row...)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		table, strings.Join(cols, ", "), strings.Join(valueStrings, ","))
	if _, err := tx.ExecContext(ctx, query, valueArgs...); err != nil {
		return eris.Wrapf(err, "sql: insert into %s", table)
	}
	return nil
}

// Drivers get plain values or nil, never pointers.
func sqlFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func sqlInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func sqlString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// locationWKB encodes the listing position as EWKB (SRID 4326), or nil.
func locationWKB(l *models.Listing) (any, error) {
	if !l.HasCoords() {
		return nil, nil
	}
	p := geom.NewPointFlat(geom.XY, []float64{*l.Lon, *l.Lat}).SetSRID(4326)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "sql: encode location")
	}
	return data, nil
}

func (w *SQLWriter) Close() error {
	return w.db.Close()
}

// FetchListings reads back the stored listings in insertion order; used by
// the insight report.
func (w *SQLWriter) FetchListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT token, city, neighborhood, street, house_num, floor, lon, lat,
		       rooms, sq_m, price, image, url, ad_type, station, distance, walking_time
		FROM listings
		ORDER BY id
	`)
	if err != nil {
		return nil, eris.Wrap(err, "sql: fetch listings")
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var (
			l                           models.Listing
			houseNum, floor, walking    sql.NullInt64
			lon, lat, rooms, sqm, price sql.NullFloat64
			distance                    sql.NullFloat64
			station                     sql.NullString
		)
		if err := rows.Scan(
			&l.Token, &l.City, &l.Neighborhood, &l.Street, &houseNum, &floor, &lon, &lat,
			&rooms, &sqm, &price, &l.Image, &l.URL, &l.AdType, &station, &distance, &walking,
		); err != nil {
			return nil, eris.Wrap(err, "sql: scan row")
		}
		l.HouseNum, l.Floor, l.WalkingMinutes = nullInt(houseNum), nullInt(floor), nullInt(walking)
		l.Lon, l.Lat = nullFloat(lon), nullFloat(lat)
		l.Rooms, l.SqM, l.Price = nullFloat(rooms), nullFloat(sqm), nullFloat(price)
		l.DistanceM = nullFloat(distance)
		if station.Valid {
			l.Station = models.String(station.String)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return models.Int(int(v.Int64))
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return models.Float(v.Float64)
}
