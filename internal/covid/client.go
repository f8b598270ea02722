// Package covid loads daily COVID-19 series from the Our World in Data CSV.
//
// The full dataset is large, so the client streams it and keeps only the rows
// of the requested regions. The loader cleans a region's rows into a Series:
//
//   - negative values are treated as missing (they are data corrections)
//   - missing values are forward-filled from the previous day
//   - leading days with no value at all are dropped
//   - series shorter than the configured minimum are rejected
package covid

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/forecastkit/internal/logger"
	"github.com/rewired-gh/forecastkit/internal/models"
)

const dateLayout = "2006-01-02"

// Client streams the OWID CSV over HTTP with retries.
type Client struct {
	datasetURL     string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new dataset client
func NewClient(datasetURL string, timeout time.Duration, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Client{
		datasetURL: datasetURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// columns maps the header names the client needs to their positions.
type columns struct {
	date, location int
	values         map[models.Target]int
}

func parseHeader(header []string) (columns, error) {
	cols := columns{date: -1, location: -1, values: make(map[models.Target]int)}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch name {
		case "date":
			cols.date = i
		case "location", "country":
			if cols.location < 0 {
				cols.location = i
			}
		default:
			if t, err := models.ParseTarget(name); err == nil {
				cols.values[t] = i
			}
		}
	}
	if cols.date < 0 || cols.location < 0 {
		return cols, errors.New("dataset is missing the date or location column")
	}
	if len(cols.values) == 0 {
		return cols, errors.New("dataset has none of the forecastable columns")
	}
	return cols, nil
}

func parseValue(record []string, idx int, ok bool) float64 {
	if !ok || idx >= len(record) {
		return math.NaN()
	}
	s := strings.TrimSpace(record[idx])
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func (c columns) day(record []string) (models.RegionDay, error) {
	date, err := time.Parse(dateLayout, strings.TrimSpace(record[c.date]))
	if err != nil {
		return models.RegionDay{}, err
	}
	get := func(t models.Target) float64 {
		idx, ok := c.values[t]
		return parseValue(record, idx, ok)
	}
	return models.RegionDay{
		Date:              date,
		NewCases:          get(models.TargetNewCases),
		NewCasesSmoothed:  get(models.TargetNewCasesSmoothed),
		NewDeaths:         get(models.TargetNewDeaths),
		NewDeathsSmoothed: get(models.TargetNewDeathsSmoothed),
	}, nil
}

// scan streams the dataset, calling fn with each record.
func (c *Client) scan(ctx context.Context, fn func(cols columns, record []string) error) error {
	resp, err := c.doRequest(ctx, c.datasetURL)
	if err != nil {
		return fmt.Errorf("failed to fetch dataset: %w", err)
	}
	defer resp.Body.Close()

	r := csv.NewReader(resp.Body)
	r.ReuseRecord = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("failed to read dataset header: %w", err)
	}
	cols, err := parseHeader(header)
	if err != nil {
		return err
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read dataset: %w", err)
		}
		if len(record) <= cols.date || len(record) <= cols.location {
			continue
		}
		if err := fn(cols, record); err != nil {
			return err
		}
	}
}

// FetchRegions returns the sorted distinct region names in the dataset.
func (c *Client) FetchRegions(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	err := c.scan(ctx, func(cols columns, record []string) error {
		if name := strings.TrimSpace(record[cols.location]); name != "" {
			seen[name] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	regions := make([]string, 0, len(seen))
	for r := range seen {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions, nil
}

// FetchRegionDays returns the raw rows of each requested region in one pass
// over the dataset. Regions absent from the dataset map to no rows.
func (c *Client) FetchRegionDays(ctx context.Context, regions ...string) (map[string][]models.RegionDay, error) {
	want := make(map[string]bool, len(regions))
	for _, r := range regions {
		want[r] = true
	}
	out := make(map[string][]models.RegionDay, len(regions))
	skipped := 0

	err := c.scan(ctx, func(cols columns, record []string) error {
		name := strings.TrimSpace(record[cols.location])
		if !want[name] {
			return nil
		}
		d, err := cols.day(record)
		if err != nil {
			skipped++
			return nil
		}
		out[name] = append(out[name], d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		logger.Warn("Skipped %d dataset rows with unparsable dates", skipped)
	}
	return out, nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * c.retryDelayBase):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Accept", "text/csv")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logger.Debug("Dataset request attempt %d failed: %v", i+1, err)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
