// Package reference loads the static input tables: the area queries to fetch
// and the rail stations to measure walking distance against.
package reference

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"apartments-scraper/models"
)

// ReferenceDataError means an input table is missing or malformed. A run
// cannot continue without its reference data.
type ReferenceDataError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ReferenceDataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reference data %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("reference data %s: %s", e.Path, e.Reason)
}

func (e *ReferenceDataError) Unwrap() error { return e.Err }

// LoadAreaQueries reads the neighborhoods table (CSV or XLSX) with columns
// area_id, city_id and neighborhood_id.
func LoadAreaQueries(path string) ([]models.AreaQuery, error) {
	tbl, err := readTable(path)
	if err != nil {
		return nil, err
	}
	cols, err := tbl.columns(path, []string{"area_id"}, []string{"city_id"}, []string{"neighborhood_id"})
	if err != nil {
		return nil, err
	}

	queries := make([]models.AreaQuery, 0, len(tbl.rows))
	for i, row := range tbl.rows {
		var ids [3]int
		for j, col := range cols {
			n, err := parseID(cell(row, col))
			if err != nil {
				return nil, &ReferenceDataError{
					Path:   path,
					Reason: fmt.Sprintf("row %d column %s", i+2, tbl.header[col]),
					Err:    err,
				}
			}
			ids[j] = n
		}
		queries = append(queries, models.AreaQuery{AreaID: ids[0], CityID: ids[1], NeighborhoodID: ids[2]})
	}
	if len(queries) == 0 {
		return nil, &ReferenceDataError{Path: path, Reason: "no area queries"}
	}
	return queries, nil
}

// LoadStations reads the stations table (CSV or XLSX) with columns station
// (or name), lat and lon. Row order is kept: it decides distance ties.
func LoadStations(path string) ([]models.Station, error) {
	tbl, err := readTable(path)
	if err != nil {
		return nil, err
	}
	cols, err := tbl.columns(path, []string{"station", "name"}, []string{"lat", "latitude"}, []string{"lon", "lng", "longitude"})
	if err != nil {
		return nil, err
	}

	stations := make([]models.Station, 0, len(tbl.rows))
	for i, row := range tbl.rows {
		name := strings.TrimSpace(cell(row, cols[0]))
		if name == "" {
			return nil, &ReferenceDataError{Path: path, Reason: fmt.Sprintf("row %d: empty station name", i+2)}
		}
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(cell(row, cols[1])), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(cell(row, cols[2])), 64)
		if latErr != nil || lonErr != nil || !models.ValidLatLon(lat, lon) {
			return nil, &ReferenceDataError{
				Path:   path,
				Reason: fmt.Sprintf("row %d: invalid coordinates for station %q", i+2, name),
			}
		}
		stations = append(stations, models.Station{Name: name, Lat: lat, Lon: lon})
	}
	if len(stations) == 0 {
		return nil, &ReferenceDataError{Path: path, Reason: "no stations"}
	}
	return stations, nil
}

type table struct {
	header []string
	rows   [][]string
}

// columns resolves each wanted column (first matching alias) to its index.
func (t *table) columns(path string, wanted ...[]string) ([]int, error) {
	index := make(map[string]int, len(t.header))
	for i, h := range t.header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	out := make([]int, 0, len(wanted))
	for _, aliases := range wanted {
		found := -1
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, &ReferenceDataError{Path: path, Reason: fmt.Sprintf("missing column %q", aliases[0])}
		}
		out = append(out, found)
	}
	return out, nil
}

func readTable(path string) (*table, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCSV(path)
	case ".xlsx":
		records, err = readXLSX(path)
	default:
		return nil, &ReferenceDataError{Path: path, Reason: "unsupported file type, want .csv or .xlsx"}
	}
	if err != nil {
		return nil, &ReferenceDataError{Path: path, Reason: "read", Err: err}
	}

	// Trailing blank rows are common in spreadsheets.
	for len(records) > 0 && blank(records[len(records)-1]) {
		records = records[:len(records)-1]
	}
	if len(records) == 0 {
		return nil, &ReferenceDataError{Path: path, Reason: "empty table"}
	}
	return &table{header: records[0], rows: records[1:]}, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "csv: open file")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		records = append(records, rec)
	}
	return records, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}

	sheet := f.Sheets[0]
	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}
		records = append(records, cells)
	}
	return records, nil
}

// parseID accepts integer identifiers, including spreadsheet floats like "5.0".
func parseID(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, eris.Errorf("not an integer identifier: %q", s)
	}
	return int(f), nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
