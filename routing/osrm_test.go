package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apartments-scraper/models"
)

var (
	home    = models.Coordinate{Lat: 32.0853, Lon: 34.7818}
	station = models.Coordinate{Lat: 32.0700, Lon: 34.7900}
)

func TestWalkingDistance(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path + "?" + r.URL.RawQuery
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"distance":1234.5,"duration":900},{"distance":99}]}`))
	}))
	defer srv.Close()

	c := NewOSRMClient(Options{BaseURL: srv.URL + "/", MaxRetries: 1})
	d, err := c.WalkingDistance(context.Background(), home, station)
	require.NoError(t, err)
	assert.Equal(t, 1234.5, d)
	assert.True(t, strings.HasPrefix(path, "/route/v1/foot/34.781800,32.085300;34.790000,32.070000"), path)
	assert.True(t, strings.HasSuffix(path, "overview=false"), path)
}

func TestWalkingDistance_Cached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"routes":[{"distance":500}]}`))
	}))
	defer srv.Close()

	c := NewOSRMClient(Options{BaseURL: srv.URL, MaxRetries: 1})
	for i := 0; i < 3; i++ {
		d, err := c.WalkingDistance(context.Background(), home, station)
		require.NoError(t, err)
		assert.Equal(t, 500.0, d)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// A point a few meters away gets its own lookup.
	nearby := models.Coordinate{Lat: home.Lat + 0.00003, Lon: home.Lon}
	_, err := c.WalkingDistance(context.Background(), nearby, station)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWalkingDistance_NearbyOriginsKeepOwnDistance(t *testing.T) {
	// Distance derived from the origin latitude in the request path.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		coords := strings.TrimPrefix(r.URL.Path, "/route/v1/foot/")
		origin := strings.Split(strings.Split(coords, ";")[0], ",")
		lat, err := strconv.ParseFloat(origin[1], 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		d := math.Round((lat-32)*1e7) / 10
		_, _ = fmt.Fprintf(w, `{"routes":[{"distance":%g}]}`, d)
	}))
	defer srv.Close()

	c := NewOSRMClient(Options{BaseURL: srv.URL, MaxRetries: 1})
	a := models.Coordinate{Lat: 32.00001, Lon: 34.78}
	b := models.Coordinate{Lat: 32.00004, Lon: 34.78}

	da, err := c.WalkingDistance(context.Background(), a, station)
	require.NoError(t, err)
	db, err := c.WalkingDistance(context.Background(), b, station)
	require.NoError(t, err)

	assert.Equal(t, 10.0, da)
	assert.Equal(t, 40.0, db)
}

func TestWalkingDistance_NoRoute(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"empty routes", http.StatusOK, `{"code":"Ok","routes":[]}`},
		{"missing routes", http.StatusOK, `{"code":"Ok"}`},
		{"no route code", http.StatusBadRequest, `{"code":"NoRoute","message":"Impossible route"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOSRMClient(Options{BaseURL: srv.URL, MaxRetries: 3})
			_, err := c.WalkingDistance(context.Background(), home, station)
			assert.True(t, errors.Is(err, ErrNoRoute), "got %v", err)

			_, err = c.WalkingDistance(context.Background(), home, station)
			assert.True(t, errors.Is(err, ErrNoRoute))
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		})
	}
}

func TestWalkingDistance_ServerErrorRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"routes":[{"distance":42}]}`))
	}))
	defer srv.Close()

	c := NewOSRMClient(Options{BaseURL: srv.URL, MaxRetries: 2})
	c.retry.BaseDelay = 0
	d, err := c.WalkingDistance(context.Background(), home, station)
	require.NoError(t, err)
	assert.Equal(t, 42.0, d)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWalkingDistance_ClientErrorNotCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewOSRMClient(Options{BaseURL: srv.URL, MaxRetries: 3})
	_, err := c.WalkingDistance(context.Background(), home, station)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoRoute))

	_, err = c.WalkingDistance(context.Background(), home, station)
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWalkingDistance_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"routes":[{"distance":1}]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewOSRMClient(Options{BaseURL: srv.URL, RatePerSec: 1})
	_, err := c.WalkingDistance(ctx, home, station)
	assert.Error(t, err)
}
