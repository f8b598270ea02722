// Package storage caches downloaded dataset rows in SQL so that dashboard
// requests and scheduled refreshes do not re-download the full dataset.
//
// Two drivers are supported through sqlx: "sqlite" (modernc.org/sqlite, no cgo)
// for single-host installs and "postgres" (lib/pq) for shared deployments.
// Queries are written with ? placeholders and rebound per driver.
//
// Only raw rows and the region list are cached; cleaning and forecasting
// always run on the cached rows, never on stored results.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rewired-gh/forecastkit/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a region or the region list has not been cached.
var ErrNotFound = errors.New("not cached")

const dateLayout = "2006-01-02"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS region_days (
		region TEXT NOT NULL,
		date TEXT NOT NULL,
		new_cases DOUBLE PRECISION,
		new_cases_smoothed DOUBLE PRECISION,
		new_deaths DOUBLE PRECISION,
		new_deaths_smoothed DOUBLE PRECISION,
		PRIMARY KEY (region, date)
	)`,
	`CREATE TABLE IF NOT EXISTS region_fetches (
		region TEXT PRIMARY KEY,
		fetched_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS regions (
		name TEXT PRIMARY KEY,
		fetched_at TEXT NOT NULL
	)`,
}

// Storage is a SQL-backed dataset cache. It is safe for concurrent use.
type Storage struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the database and creates the cache tables.
func Open(ctx context.Context, driver, dsn string) (*Storage, error) {
	switch driver {
	case "sqlite":
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// One connection serialises writers and keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
	}

	s := &Storage{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Driver returns the configured driver name.
func (s *Storage) Driver() string { return s.driver }

func (s *Storage) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

type dayRow struct {
	Date              string          `db:"date"`
	NewCases          sql.NullFloat64 `db:"new_cases"`
	NewCasesSmoothed  sql.NullFloat64 `db:"new_cases_smoothed"`
	NewDeaths         sql.NullFloat64 `db:"new_deaths"`
	NewDeathsSmoothed sql.NullFloat64 `db:"new_deaths_smoothed"`
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// SaveRegionDays replaces the cached rows of a region and stamps the fetch time.
func (s *Storage) SaveRegionDays(ctx context.Context, region string, days []models.RegionDay, fetchedAt time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM region_days WHERE region = ?`), region); err != nil {
		return fmt.Errorf("failed to clear region %s: %w", region, err)
	}

	stmt, err := tx.PreparexContext(ctx, s.db.Rebind(`
		INSERT INTO region_days (region, date, new_cases, new_cases_smoothed, new_deaths, new_deaths_smoothed)
		VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range days {
		_, err := stmt.ExecContext(ctx, region, d.Date.Format(dateLayout),
			nullable(d.NewCases), nullable(d.NewCasesSmoothed),
			nullable(d.NewDeaths), nullable(d.NewDeathsSmoothed))
		if err != nil {
			return fmt.Errorf("failed to insert %s %s: %w", region, d.Date.Format(dateLayout), err)
		}
	}

	_, err = tx.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO region_fetches (region, fetched_at) VALUES (?, ?)
		ON CONFLICT (region) DO UPDATE SET fetched_at = excluded.fetched_at`),
		region, fetchedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to stamp region %s: %w", region, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit region %s: %w", region, err)
	}
	return nil
}

// RegionDays returns the cached rows of a region in date order and when they
// were fetched. ErrNotFound means the region was never cached.
func (s *Storage) RegionDays(ctx context.Context, region string) ([]models.RegionDay, time.Time, error) {
	var stamp string
	err := s.db.GetContext(ctx, &stamp, s.db.Rebind(`SELECT fetched_at FROM region_fetches WHERE region = ?`), region)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read fetch time for %s: %w", region, err)
	}
	fetchedAt, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("corrupt fetch time for %s: %w", region, err)
	}

	var rows []dayRow
	err = s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT date, new_cases, new_cases_smoothed, new_deaths, new_deaths_smoothed
		FROM region_days WHERE region = ? ORDER BY date`), region)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read region %s: %w", region, err)
	}

	days := make([]models.RegionDay, 0, len(rows))
	for _, r := range rows {
		date, err := time.Parse(dateLayout, r.Date)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("corrupt date %q for %s: %w", r.Date, region, err)
		}
		days = append(days, models.RegionDay{
			Date:              date,
			NewCases:          orNaN(r.NewCases),
			NewCasesSmoothed:  orNaN(r.NewCasesSmoothed),
			NewDeaths:         orNaN(r.NewDeaths),
			NewDeathsSmoothed: orNaN(r.NewDeathsSmoothed),
		})
	}
	return days, fetchedAt, nil
}

// SaveRegions replaces the cached region list.
func (s *Storage) SaveRegions(ctx context.Context, regions []string, fetchedAt time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM regions`); err != nil {
		return fmt.Errorf("failed to clear regions: %w", err)
	}
	stamp := fetchedAt.UTC().Format(time.RFC3339)
	for _, r := range regions {
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO regions (name, fetched_at) VALUES (?, ?)`), r, stamp); err != nil {
			return fmt.Errorf("failed to insert region %s: %w", r, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit regions: %w", err)
	}
	return nil
}

// Regions returns the cached region list sorted by name and the oldest fetch
// time among its entries.
func (s *Storage) Regions(ctx context.Context) ([]string, time.Time, error) {
	var rows []struct {
		Name      string `db:"name"`
		FetchedAt string `db:"fetched_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT name, fetched_at FROM regions ORDER BY name`); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read regions: %w", err)
	}
	if len(rows) == 0 {
		return nil, time.Time{}, ErrNotFound
	}

	names := make([]string, len(rows))
	var oldest time.Time
	for i, r := range rows {
		names[i] = r.Name
		t, err := time.Parse(time.RFC3339, r.FetchedAt)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("corrupt fetch time for region %s: %w", r.Name, err)
		}
		if oldest.IsZero() || t.Before(oldest) {
			oldest = t
		}
	}
	return names, oldest, nil
}

// CachedRegions lists regions that have cached rows, for scheduled refreshes.
func (s *Storage) CachedRegions(ctx context.Context) ([]string, error) {
	var regions []string
	if err := s.db.SelectContext(ctx, &regions, `SELECT region FROM region_fetches ORDER BY region`); err != nil {
		return nil, fmt.Errorf("failed to list cached regions: %w", err)
	}
	return regions, nil
}
