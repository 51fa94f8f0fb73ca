package services

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"apartments-scraper/models"
	"apartments-scraper/utils"
)

func newTestLogger() *utils.Logger { return utils.NewNopLogger() }

func rawMarker(token string, rooms, price, sqm float64) models.RawRecord {
	return models.RawRecord{
		"token":                         token,
		"orderId":                       3.0,
		"adType":                        "private",
		"price":                         price,
		"address.city.text":             "Tel Aviv",
		"address.neighborhood.text":     "Florentin",
		"address.street.text":           " Herzl  St ",
		"address.house.number":          12.0,
		"address.house.floor":           2.0,
		"address.coords.lon":            34.77,
		"address.coords.lat":            32.05,
		"additionalDetails.roomsCount":  rooms,
		"additionalDetails.squareMeter": sqm,
		"metaData.coverImage":           "https://img/" + token,
		"tags":                          []any{"new"},
	}
}

func TestProject(t *testing.T) {
	got := Project(rawMarker("t1", 3, 5000, 50))

	for _, k := range droppedFields {
		if _, ok := got[k]; ok {
			t.Errorf("Project kept dropped field %q", k)
		}
	}
	for from, to := range renamedFields {
		if _, ok := got[from]; ok {
			t.Errorf("Project kept source field %q", from)
		}
		if _, ok := got[to]; !ok {
			t.Errorf("Project missing renamed field %q", to)
		}
	}
	if got["city"] != "Tel Aviv" || got["rooms"] != 3.0 {
		t.Errorf("unexpected projection: %v", got)
	}
}

func TestProjectIdempotent(t *testing.T) {
	inputs := []models.RawRecord{
		rawMarker("t1", 3, 5000, 50),
		{"token": "bare"},
		{},
		{"city": "already renamed", "address.city.text": "source"},
	}
	for _, in := range inputs {
		once := Project(in)
		twice := Project(once)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("Project not idempotent:\n once=%v\ntwice=%v", once, twice)
		}
	}
}

func TestProjectDoesNotMutateInput(t *testing.T) {
	in := rawMarker("t1", 3, 5000, 50)
	_ = Project(in)
	if _, ok := in["orderId"]; !ok {
		t.Error("Project mutated its input")
	}
}

func TestToListing(t *testing.T) {
	l := ToListing(Project(rawMarker("t1", 3.5, 5000, 50)))

	if l.Token != "t1" || l.City != "Tel Aviv" || l.Neighborhood != "Florentin" {
		t.Errorf("unexpected identity fields: %+v", l)
	}
	if l.Street != "Herzl St" {
		t.Errorf("Street = %q; want whitespace collapsed", l.Street)
	}
	if l.Rooms == nil || *l.Rooms != 3.5 {
		t.Errorf("Rooms = %v; want 3.5", l.Rooms)
	}
	if l.HouseNum == nil || *l.HouseNum != 12 || l.Floor == nil || *l.Floor != 2 {
		t.Errorf("house/floor = %v/%v", l.HouseNum, l.Floor)
	}
	if !l.HasCoords() || *l.Lat != 32.05 || *l.Lon != 34.77 {
		t.Errorf("coords = %v,%v", l.Lat, l.Lon)
	}
	if l.AdType != "private" || l.Image != "https://img/t1" {
		t.Errorf("AdType=%q Image=%q", l.AdType, l.Image)
	}
}

func TestToListingFailsClosed(t *testing.T) {
	l := ToListing(models.RawRecord{
		"token":     "t9",
		"price":     "call me",
		"rooms":     true,
		"sq_m":      map[string]any{"a": 1},
		"house_num": "12a",
		"floor":     1.5,
		"lat":       0.0,
		"lon":       0.0,
		"city":      42.0,
	})
	if l.Price != nil || l.Rooms != nil || l.SqM != nil {
		t.Errorf("wrongly typed numbers should be nil: %+v", l)
	}
	if l.HouseNum != nil || l.Floor != nil {
		t.Errorf("non-integral house/floor should be nil: %v %v", l.HouseNum, l.Floor)
	}
	if l.HasCoords() {
		t.Error("(0,0) should not count as coordinates")
	}
	if l.City != "" {
		t.Errorf("City = %q; want empty for non-string", l.City)
	}

	l = ToListing(models.RawRecord{"price": "7500", "house_num": "14"})
	if l.Price == nil || *l.Price != 7500 || l.HouseNum == nil || *l.HouseNum != 14 {
		t.Errorf("numeric strings should parse: %+v", l)
	}
}

func TestAggregateScenario(t *testing.T) {
	results := []models.FetchResult{
		{Index: 1, Records: []models.RawRecord{rawMarker("t3", 3, 7000, 70)}},
		{Index: 0, Records: []models.RawRecord{rawMarker("t1", 3, 5000, 50), rawMarker("t2", 3, 6000, 60)}},
		{Index: 2, Err: errors.New("boom")},
	}
	a := NewAggregator("https://listings.test/item/", false, newTestLogger())
	listings, dups := a.Aggregate(results)

	if len(listings) != 3 || dups != 0 {
		t.Fatalf("got %d listings, %d dups; want 3, 0", len(listings), dups)
	}
	want := []string{"t1", "t2", "t3"}
	for i, l := range listings {
		if l.Token != want[i] {
			t.Errorf("listings[%d].Token = %q; want %q", i, l.Token, want[i])
		}
		if l.URL != "https://listings.test/item/"+want[i] {
			t.Errorf("listings[%d].URL = %q", i, l.URL)
		}
	}
}

func TestAggregateDuplicates(t *testing.T) {
	first := rawMarker("dup", 3, 5000, 50)
	second := rawMarker("dup", 3, 5200, 50)
	results := []models.FetchResult{
		{Index: 0, Records: []models.RawRecord{first, {"price": 100.0}}},
		{Index: 1, Records: []models.RawRecord{second}},
	}

	keep := NewAggregator("u/", false, newTestLogger())
	all, dups := keep.Aggregate(results)
	if len(all) != 3 || dups != 1 {
		t.Errorf("keep-all: got %d listings, %d dups; want 3, 1", len(all), dups)
	}

	dedupe := NewAggregator("u/", true, newTestLogger())
	unique, dups := dedupe.Aggregate(results)
	if len(unique) != 2 || dups != 1 {
		t.Fatalf("dedupe: got %d listings, %d dups; want 2, 1", len(unique), dups)
	}
	if *unique[0].Price != 5000 {
		t.Errorf("dedupe kept price %.0f; want the first observation (5000)", *unique[0].Price)
	}
	if unique[1].Token != "" || unique[1].URL != "" {
		t.Errorf("token-less listing should have no URL: %+v", unique[1])
	}
}

func TestAggregateEmpty(t *testing.T) {
	listings, dups := NewAggregator("u/", false, nil).Aggregate(nil)
	if listings == nil || len(listings) != 0 || dups != 0 {
		t.Errorf("Aggregate(nil) = %v, %d", listings, dups)
	}
}

func TestAggregateLogsTokenCounts(t *testing.T) {
	var buf bytes.Buffer
	logger := utils.NewLoggerWith(utils.LoggerOptions{Writer: &buf, NoColor: true})
	results := []models.FetchResult{
		{Index: 0, Records: []models.RawRecord{rawMarker("a", 3, 5000, 50), rawMarker("b", 3, 6000, 60)}},
		{Index: 1, Records: []models.RawRecord{rawMarker("a", 3, 5000, 50)}},
	}
	NewAggregator("u/", false, logger).Aggregate(results)

	if out := buf.String(); !strings.Contains(out, "2 unique tokens, 1 duplicates") {
		t.Errorf("log line missing token counts: %q", out)
	}
}
