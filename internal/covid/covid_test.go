package covid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rewired-gh/forecastkit/internal/models"
	"github.com/rewired-gh/forecastkit/internal/storage"
)

var start = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

// dataset builds an OWID-shaped CSV. India has 40 days of new_cases with two
// leading blanks, a negative correction on day 10 and a blank on day 20.
// France has only 10 days.
func dataset(locationHeader string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "iso_code,%s,date,new_cases,new_cases_smoothed,new_deaths,new_deaths_smoothed\n", locationHeader)
	for i := 0; i < 40; i++ {
		date := start.AddDate(0, 0, i).Format(dateLayout)
		cases := fmt.Sprintf("%d", 100+i)
		switch i {
		case 0, 1, 20:
			cases = ""
		case 10:
			cases = "-5"
		}
		fmt.Fprintf(&b, "IND,India,%s,%s,%d,%d,%d\n", date, cases, 100+i, i, i)
	}
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "FRA,France,%s,%d,%d,1,1\n", start.AddDate(0, 0, i).Format(dateLayout), 50+i, 50+i)
	}
	return b.String()
}

func newServer(t *testing.T, body string, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func newLoader(t *testing.T, url string, withCache bool) *Loader {
	t.Helper()
	client := NewClient(url, 5*time.Second, 3, time.Millisecond)
	if !withCache {
		return NewLoader(client, nil, time.Hour, 30)
	}
	store, err := storage.Open(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("storage.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewLoader(client, store, time.Hour, 30)
}

func TestFetchRegions(t *testing.T) {
	for _, header := range []string{"location", "country"} {
		server := newServer(t, dataset(header), nil)
		client := NewClient(server.URL, 5*time.Second, 1, time.Millisecond)

		regions, err := client.FetchRegions(context.Background())
		if err != nil {
			t.Fatalf("FetchRegions with %s header failed: %v", header, err)
		}
		if len(regions) != 2 || regions[0] != "France" || regions[1] != "India" {
			t.Errorf("Expected [France India], got %v", regions)
		}
	}
}

func TestFetchRegionDays(t *testing.T) {
	server := newServer(t, "\ufeff"+dataset("location"), nil)
	client := NewClient(server.URL, 5*time.Second, 1, time.Millisecond)

	got, err := client.FetchRegionDays(context.Background(), "France", "Atlantis")
	if err != nil {
		t.Fatalf("FetchRegionDays failed: %v", err)
	}
	if len(got["France"]) != 10 {
		t.Errorf("Expected 10 France rows, got %d", len(got["France"]))
	}
	if _, ok := got["India"]; ok {
		t.Error("India was not requested")
	}
	if len(got["Atlantis"]) != 0 {
		t.Error("Unknown region should have no rows")
	}
	if got["France"][0].NewCases != 50 || got["France"][0].NewDeathsSmoothed != 1 {
		t.Errorf("Unexpected first row %+v", got["France"][0])
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(dataset("location")))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 3, time.Millisecond)
	if _, err := client.FetchRegions(context.Background()); err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("Expected 3 attempts, got %d", atomic.LoadInt32(&attempts))
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 3, time.Millisecond)
	if _, err := client.FetchRegions(context.Background()); err == nil {
		t.Fatal("Expected error for 404")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("Expected a single attempt, got %d", atomic.LoadInt32(&attempts))
	}
}

func TestClient_MissingColumns(t *testing.T) {
	server := newServer(t, "a,b\n1,2\n", nil)
	client := NewClient(server.URL, 5*time.Second, 1, time.Millisecond)
	if _, err := client.FetchRegions(context.Background()); err == nil {
		t.Error("Expected error for a dataset without date/location columns")
	}
}

func TestLoad_Cleans(t *testing.T) {
	server := newServer(t, dataset("location"), nil)
	loader := newLoader(t, server.URL, false)

	s, err := loader.Load(context.Background(), "India", models.TargetNewCases, DateRange{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Len() != 38 {
		t.Fatalf("Expected 38 observations after dropping leading blanks, got %d", s.Len())
	}
	if s.Filled != 2 {
		t.Errorf("Expected 2 filled values, got %d", s.Filled)
	}
	if !s.Observations[0].Date.Equal(start.AddDate(0, 0, 2)) {
		t.Errorf("Expected series to start on day 2, got %v", s.Observations[0].Date)
	}
	// Day 10 was -5 and carries day 9's value; day 20 was blank.
	if v := s.Observations[8].Value; v != 109 {
		t.Errorf("Expected forward-filled 109 on day 10, got %v", v)
	}
	if v := s.Observations[18].Value; v != 119 {
		t.Errorf("Expected forward-filled 119 on day 20, got %v", v)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Loaded series invalid: %v", err)
	}
}

func TestLoad_DateRange(t *testing.T) {
	server := newServer(t, dataset("location"), nil)
	loader := newLoader(t, server.URL, false)
	ctx := context.Background()

	s, err := loader.Load(ctx, "India", models.TargetNewCasesSmoothed, DateRange{Start: start.AddDate(0, 0, 5)})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Len() != 35 || s.Filled != 0 {
		t.Errorf("Expected 35 unfilled observations, got %d (%d filled)", s.Len(), s.Filled)
	}

	_, err = loader.Load(ctx, "India", models.TargetNewCasesSmoothed, DateRange{End: start.AddDate(0, 0, 20)})
	var verr *models.ValidationError
	if !errors.As(err, &verr) || verr.Field != "region" {
		t.Errorf("Expected ValidationError on region for a short range, got %v", err)
	}
}

func TestLoad_Rejects(t *testing.T) {
	server := newServer(t, dataset("location"), nil)
	loader := newLoader(t, server.URL, false)
	ctx := context.Background()

	tests := []struct {
		name   string
		region string
		target models.Target
		field  string
	}{
		{"too short", "France", models.TargetNewCases, "region"},
		{"unknown region", "Atlantis", models.TargetNewCases, "region"},
		{"empty region", "  ", models.TargetNewCases, "region"},
		{"bad target", "India", models.Target("total_cases"), "target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Load(ctx, tt.region, tt.target, DateRange{})
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, verr.Field)
			}
		})
	}
}

func TestLoad_UsesCache(t *testing.T) {
	var hits int32
	server := newServer(t, dataset("location"), &hits)
	loader := newLoader(t, server.URL, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := loader.Load(ctx, "India", models.TargetNewCases, DateRange{}); err != nil {
			t.Fatalf("Load %d failed: %v", i, err)
		}
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("Expected one download, got %d", atomic.LoadInt32(&hits))
	}

	// Expire the cache; the next load downloads again.
	loader.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := loader.Load(ctx, "India", models.TargetNewCases, DateRange{}); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("Expected a second download after expiry, got %d", atomic.LoadInt32(&hits))
	}
}

func TestLoad_StaleCacheOnFailure(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(dataset("location")))
	}))
	defer server.Close()

	loader := newLoader(t, server.URL, true)
	ctx := context.Background()
	if _, err := loader.Load(ctx, "India", models.TargetNewCases, DateRange{}); err != nil {
		t.Fatal(err)
	}

	healthy.Store(false)
	loader.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	s, err := loader.Load(ctx, "India", models.TargetNewCases, DateRange{})
	if err != nil {
		t.Fatalf("Expected stale cache to be used, got %v", err)
	}
	if s.Len() != 38 {
		t.Errorf("Expected 38 observations, got %d", s.Len())
	}
}

func TestRegions_Fallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	loader := newLoader(t, server.URL, false)
	regions := loader.Regions(context.Background())
	if strings.Join(regions, ",") != strings.Join(FallbackRegions, ",") {
		t.Errorf("Expected fallback regions, got %v", regions)
	}

	// The returned slice must not alias the package default.
	regions[0] = "Mars"
	if FallbackRegions[0] != "India" {
		t.Error("FallbackRegions was modified through the returned slice")
	}
}

func TestRegions_Cached(t *testing.T) {
	var hits int32
	server := newServer(t, dataset("location"), &hits)
	loader := newLoader(t, server.URL, true)
	ctx := context.Background()

	first := loader.Regions(ctx)
	second := loader.Regions(ctx)
	if len(first) != 2 || len(second) != 2 {
		t.Errorf("Expected two regions, got %v and %v", first, second)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("Expected one download, got %d", atomic.LoadInt32(&hits))
	}
}

func TestRefresh(t *testing.T) {
	var hits int32
	server := newServer(t, dataset("location"), &hits)
	loader := newLoader(t, server.URL, true)
	ctx := context.Background()

	if _, err := loader.Load(ctx, "India", models.TargetNewCases, DateRange{}); err != nil {
		t.Fatal(err)
	}
	n, err := loader.Refresh(ctx, []string{"France"})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected India and France refreshed, got %d", n)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("Expected a single download for the refresh, got %d total", atomic.LoadInt32(&hits))
	}
}

func TestParseCSV(t *testing.T) {
	var b strings.Builder
	b.WriteString("date,value\n")
	for i := 34; i >= 0; i-- {
		v := fmt.Sprintf("%d", 10+i)
		if i == 3 {
			v = ""
		}
		fmt.Fprintf(&b, "%s,%s\n", start.AddDate(0, 0, i).Format(dateLayout), v)
	}

	loader := NewLoader(nil, nil, 0, 30)
	s, err := loader.ParseCSV(strings.NewReader(b.String()), "upload", models.TargetNewCases, DateRange{})
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if s.Len() != 35 || s.Filled != 1 {
		t.Errorf("Expected 35 observations with 1 filled, got %d/%d", s.Len(), s.Filled)
	}
	if !s.Observations[0].Date.Equal(start) {
		t.Errorf("Expected rows sorted by date, first is %v", s.Observations[0].Date)
	}
	if s.Region != "upload" {
		t.Errorf("Expected region upload, got %s", s.Region)
	}
}

func TestParseCSV_Rejects(t *testing.T) {
	loader := NewLoader(nil, nil, 0, 30)
	tests := []struct {
		name string
		body string
	}{
		{"no value column", "date,other\n2021-01-01,3\n"},
		{"bad date", "date,value\nyesterday,3\n"},
		{"too short", "date,value\n2021-01-01,3\n2021-01-02,4\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.ParseCSV(strings.NewReader(tt.body), "upload", models.TargetNewCases, DateRange{})
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Expected ValidationError, got %v", err)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	s := &models.Series{Region: "X", Target: models.TargetNewCases, Filled: 3}
	for i, v := range []float64{2, 4, 6, 8} {
		s.Observations = append(s.Observations, models.Observation{Date: start.AddDate(0, 0, i), Value: v})
	}

	sum := Summarize(s)
	if sum.Count != 4 || sum.Mean != 5 || sum.Min != 2 || sum.Max != 8 {
		t.Errorf("Unexpected summary %+v", sum)
	}
	if sum.Missing != 3 {
		t.Errorf("Expected 3 missing, got %d", sum.Missing)
	}
	if math.Abs(sum.TrendSlope-2) > 1e-9 {
		t.Errorf("Expected slope 2, got %v", sum.TrendSlope)
	}
	if math.Abs(sum.Std-math.Sqrt(20.0/3)) > 1e-9 {
		t.Errorf("Expected sample std, got %v", sum.Std)
	}
	if !sum.End.Equal(start.AddDate(0, 0, 3)) {
		t.Errorf("Unexpected end %v", sum.End)
	}

	if Summarize(&models.Series{}).Count != 0 {
		t.Error("Expected zero summary for empty series")
	}
}
