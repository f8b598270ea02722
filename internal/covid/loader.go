package covid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/rewired-gh/forecastkit/internal/logger"
	"github.com/rewired-gh/forecastkit/internal/models"
	"github.com/rewired-gh/forecastkit/internal/storage"
)

// FallbackRegions is offered when the region list cannot be fetched.
var FallbackRegions = []string{"India", "United States", "United Kingdom", "Germany", "France"}

// DefaultMinObservations is the shortest series the loader accepts.
const DefaultMinObservations = 30

// Cache persists raw region rows between requests. *storage.Storage implements it.
type Cache interface {
	SaveRegionDays(ctx context.Context, region string, days []models.RegionDay, fetchedAt time.Time) error
	RegionDays(ctx context.Context, region string) ([]models.RegionDay, time.Time, error)
	SaveRegions(ctx context.Context, regions []string, fetchedAt time.Time) error
	Regions(ctx context.Context) ([]string, time.Time, error)
	CachedRegions(ctx context.Context) ([]string, error)
}

// DateRange optionally bounds a loaded series. Zero values are open ends.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Loader turns dataset rows into clean series, consulting the cache first.
type Loader struct {
	client          *Client
	cache           Cache
	ttl             time.Duration
	minObservations int
	now             func() time.Time

	// mu serialises dataset downloads so concurrent requests for an uncached
	// region do not each stream the full file.
	mu sync.Mutex
}

// NewLoader creates a loader. cache may be nil, in which case every load downloads.
func NewLoader(client *Client, cache Cache, ttl time.Duration, minObservations int) *Loader {
	if minObservations < 1 {
		minObservations = DefaultMinObservations
	}
	return &Loader{
		client:          client,
		cache:           cache,
		ttl:             ttl,
		minObservations: minObservations,
		now:             time.Now,
	}
}

func (l *Loader) fresh(fetchedAt time.Time) bool {
	return l.ttl > 0 && l.now().Sub(fetchedAt) < l.ttl
}

// regionDays returns cached rows when fresh, otherwise downloads and caches them.
// A stale cache is still used when the download fails.
func (l *Loader) regionDays(ctx context.Context, region string) ([]models.RegionDay, error) {
	var cached []models.RegionDay
	if l.cache != nil {
		days, fetchedAt, err := l.cache.RegionDays(ctx, region)
		switch {
		case err == nil && l.fresh(fetchedAt):
			return days, nil
		case err == nil:
			cached = days
		case !errors.Is(err, storage.ErrNotFound):
			logger.Warn("Dataset cache read failed for %s: %v", region, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fetched, err := l.client.FetchRegionDays(ctx, region)
	if err != nil {
		if cached != nil {
			logger.Warn("Using stale cache for %s: %v", region, err)
			return cached, nil
		}
		return nil, err
	}
	days := fetched[region]
	if len(days) > 0 && l.cache != nil {
		if err := l.cache.SaveRegionDays(ctx, region, days, l.now()); err != nil {
			logger.Warn("Failed to cache %s: %v", region, err)
		}
	}
	return days, nil
}

// Load returns the cleaned series of target for region.
func (l *Loader) Load(ctx context.Context, region string, target models.Target, r DateRange) (*models.Series, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		return nil, &models.ValidationError{Field: "region", Reason: "must not be empty"}
	}
	if _, err := models.ParseTarget(string(target)); err != nil {
		return nil, err
	}

	days, err := l.regionDays(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", region, err)
	}
	if len(days) == 0 {
		return nil, &models.ValidationError{Field: "region", Reason: fmt.Sprintf("no data found for %s", region)}
	}

	dates := make([]string, len(days))
	values := make([]float64, len(days))
	for i, d := range days {
		dates[i] = d.Date.Format(dateLayout)
		values[i] = d.Value(target)
	}
	df := dataframe.New(
		series.New(dates, series.String, "date"),
		series.New(values, series.Float, string(target)),
	)
	s, err := l.buildSeries(df, region, target, r)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loaded %s/%s: %d observations, %d filled", region, target, s.Len(), s.Filled)
	return s, nil
}

// ParseCSV reads a user-supplied series with a date column and either a
// column named after target or a column named "value".
func (l *Loader) ParseCSV(r io.Reader, name string, target models.Target, dr DateRange) (*models.Series, error) {
	df := dataframe.ReadCSV(r, dataframe.DetectTypes(false), dataframe.DefaultType(series.String))
	if df.Err != nil {
		return nil, &models.ValidationError{Field: "file", Reason: df.Err.Error()}
	}

	valueCol := ""
	hasDate := false
	for _, n := range df.Names() {
		switch strings.TrimSpace(n) {
		case "date":
			hasDate = true
		case string(target):
			valueCol = n
		case "value":
			if valueCol == "" {
				valueCol = n
			}
		}
	}
	if !hasDate || valueCol == "" {
		return nil, &models.ValidationError{Field: "file", Reason: fmt.Sprintf("CSV needs a date column and a %s or value column", target)}
	}

	dates := df.Col("date").Records()
	raw := df.Col(valueCol).Records()
	normalized := make([]string, 0, len(dates))
	values := make([]float64, 0, len(dates))
	for i, d := range dates {
		t, err := parseLooseDate(d)
		if err != nil {
			return nil, &models.ValidationError{Field: "file", Reason: fmt.Sprintf("row %d: %v", i+2, err)}
		}
		normalized = append(normalized, t.Format(dateLayout))
		values = append(values, parseValue(raw, i, true))
	}

	frame := dataframe.New(
		series.New(normalized, series.String, "date"),
		series.New(values, series.Float, string(target)),
	)
	return l.buildSeries(frame, name, target, dr)
}

var looseLayouts = []string{dateLayout, "2006/01/02", "02/01/2006", time.RFC3339}

func parseLooseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range looseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// buildSeries filters a date/value frame to the range, sorts it and cleans it.
func (l *Loader) buildSeries(df dataframe.DataFrame, region string, target models.Target, r DateRange) (*models.Series, error) {
	if !r.Start.IsZero() {
		df = df.Filter(dataframe.F{Colname: "date", Comparator: series.GreaterEq, Comparando: r.Start.Format(dateLayout)})
	}
	if !r.End.IsZero() {
		df = df.Filter(dataframe.F{Colname: "date", Comparator: series.LessEq, Comparando: r.End.Format(dateLayout)})
	}
	df = df.Arrange(dataframe.Sort("date"))
	if df.Err != nil {
		return nil, fmt.Errorf("failed to prepare frame: %w", df.Err)
	}

	dates := df.Col("date").Records()
	values := df.Col(string(target)).Float()

	obs, filled := clean(dates, values)
	if len(obs) < l.minObservations {
		return nil, &models.ValidationError{
			Field:  "region",
			Reason: fmt.Sprintf("only %d usable days of %s for %s, need %d", len(obs), target, region, l.minObservations),
		}
	}
	return &models.Series{Region: region, Target: target, Observations: obs, Filled: filled}, nil
}

// clean drops duplicate dates, treats negatives as missing, forward-fills, and
// drops leading days that have no value to fill from.
func clean(dates []string, values []float64) ([]models.Observation, int) {
	var obs []models.Observation
	filled := 0
	last := math.NaN()
	prevDate := ""
	for i, ds := range dates {
		if ds == prevDate {
			continue
		}
		prevDate = ds
		d, err := time.Parse(dateLayout, ds)
		if err != nil {
			continue
		}
		v := values[i]
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			if math.IsNaN(last) {
				continue
			}
			v = last
			filled++
		}
		last = v
		obs = append(obs, models.Observation{Date: d, Value: v})
	}
	return obs, filled
}

// Regions returns the dataset's region names. It never fails: on any error it
// logs a warning and returns FallbackRegions.
func (l *Loader) Regions(ctx context.Context) []string {
	if l.cache != nil {
		regions, fetchedAt, err := l.cache.Regions(ctx)
		if err == nil && l.fresh(fetchedAt) {
			return regions
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	regions, err := l.client.FetchRegions(ctx)
	if err != nil || len(regions) == 0 {
		logger.Warn("Falling back to default regions: %v", err)
		return append([]string(nil), FallbackRegions...)
	}
	if l.cache != nil {
		if err := l.cache.SaveRegions(ctx, regions, l.now()); err != nil {
			logger.Warn("Failed to cache regions: %v", err)
		}
	}
	return regions
}

// Refresh re-downloads the given regions, plus every region already cached,
// in a single pass over the dataset.
func (l *Loader) Refresh(ctx context.Context, regions []string) (int, error) {
	want := make(map[string]bool)
	for _, r := range regions {
		want[r] = true
	}
	if l.cache != nil {
		cached, err := l.cache.CachedRegions(ctx)
		if err != nil {
			logger.Warn("Failed to list cached regions: %v", err)
		}
		for _, r := range cached {
			want[r] = true
		}
	}
	if len(want) == 0 {
		return 0, nil
	}
	names := make([]string, 0, len(want))
	for r := range want {
		names = append(names, r)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fetched, err := l.client.FetchRegionDays(ctx, names...)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh dataset: %w", err)
	}
	if l.cache == nil {
		return len(fetched), nil
	}
	now := l.now()
	refreshed := 0
	for region, days := range fetched {
		if err := l.cache.SaveRegionDays(ctx, region, days, now); err != nil {
			logger.Warn("Failed to cache %s: %v", region, err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}
