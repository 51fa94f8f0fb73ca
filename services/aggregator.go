package services

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"apartments-scraper/models"
	"apartments-scraper/utils"
)

// droppedFields are source-only feed fields removed before normalization.
var droppedFields = []string{
	"orderId",
	"tags",
	"subcategoryId",
	"priority",
	"additionalDetails.property.text",
	"priceBeforeTag",
	"customer.agencyName",
	"inProperty.isAssetExclusive",
}

// renamedFields maps flattened feed keys to listing columns.
var renamedFields = map[string]string{
	"address.city.text":             "city",
	"address.neighborhood.text":     "neighborhood",
	"address.street.text":           "street",
	"address.house.number":          "house_num",
	"address.house.floor":           "floor",
	"address.coords.lon":            "lon",
	"address.coords.lat":            "lat",
	"additionalDetails.roomsCount":  "rooms",
	"additionalDetails.squareMeter": "sq_m",
	"metaData.coverImage":           "image",
	"adType":                        "ad_type",
}

// Project drops source-only fields and renames the rest to listing columns.
// Absent fields are ignored, and Project(Project(r)) equals Project(r).
func Project(r models.RawRecord) models.RawRecord {
	out := make(models.RawRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	for _, k := range droppedFields {
		delete(out, k)
	}
	for from, to := range renamedFields {
		if v, ok := out[from]; ok {
			out[to] = v
			delete(out, from)
		}
	}
	return out
}

// ToListing converts a projected record into a typed Listing. A field that is
// missing or has the wrong type is left empty rather than guessed.
func ToListing(r models.RawRecord) models.Listing {
	l := models.Listing{
		Token:        text(r["token"]),
		City:         text(r["city"]),
		Neighborhood: text(r["neighborhood"]),
		Street:       text(r["street"]),
		HouseNum:     integer(r["house_num"]),
		Floor:        integer(r["floor"]),
		Rooms:        number(r["rooms"]),
		SqM:          number(r["sq_m"]),
		Price:        number(r["price"]),
		Image:        text(r["image"]),
		AdType:       text(r["ad_type"]),
	}

	lat, lon := number(r["lat"]), number(r["lon"])
	if lat != nil && lon != nil && models.ValidLatLon(*lat, *lon) {
		l.Lat, l.Lon = lat, lon
	}
	return l
}

// Aggregator merges per-query results into one listings table.
type Aggregator struct {
	baseURL string
	dedupe  bool
	logger  *utils.Logger
}

// NewAggregator creates an Aggregator. When dedupe is set only the first
// observation of a token, in query order, is kept.
func NewAggregator(listingBaseURL string, dedupe bool, logger *utils.Logger) *Aggregator {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Aggregator{baseURL: listingBaseURL, dedupe: dedupe, logger: logger}
}

// Aggregate concatenates results in query-index order and normalizes every
// record. It returns the listings and how many tokens were seen more than
// once (dropped only when dedupe is on).
func (a *Aggregator) Aggregate(results []models.FetchResult) ([]models.Listing, int) {
	ordered := make([]models.FetchResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	seen := utils.NewTokenSet()
	duplicates := 0
	var total int
	listings := make([]models.Listing, 0)

	for _, res := range ordered {
		if res.Err != nil {
			continue
		}
		for _, rec := range res.Records {
			total++
			l := ToListing(Project(rec))
			if l.Token != "" {
				l.URL = a.baseURL + l.Token
				if !seen.Add(l.Token) {
					duplicates++
					if a.dedupe {
						a.logger.Debug("[aggregator] Duplicate token skipped: %s", l.Token)
						continue
					}
				}
			}
			listings = append(listings, l)
		}
	}

	a.logger.Info("[aggregator] Aggregated %d records → %d listings (%d unique tokens, %d duplicates)",
		total, len(listings), seen.Size(), duplicates)
	return listings, duplicates
}

func text(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return normaliseText(s)
}

func number(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func integer(v any) *int {
	f := number(v)
	if f == nil || *f != math.Trunc(*f) || math.Abs(*f) > math.MaxInt32 {
		return nil
	}
	n := int(*f)
	return &n
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
