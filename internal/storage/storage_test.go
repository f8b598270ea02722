package storage

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/forecastkit/internal/models"
)

func openMemory(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func day(offset int, cases float64) models.RegionDay {
	return models.RegionDay{
		Date:              time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset),
		NewCases:          cases,
		NewCasesSmoothed:  cases / 2,
		NewDeaths:         math.NaN(),
		NewDeathsSmoothed: 1,
	}
}

func TestStorage_RegionDaysRoundTrip(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	fetched := time.Date(2021, 4, 1, 12, 0, 0, 0, time.UTC)

	days := []models.RegionDay{day(2, 30), day(0, 10), day(1, math.NaN())}
	if err := s.SaveRegionDays(ctx, "India", days, fetched); err != nil {
		t.Fatalf("SaveRegionDays failed: %v", err)
	}

	got, at, err := s.RegionDays(ctx, "India")
	if err != nil {
		t.Fatalf("RegionDays failed: %v", err)
	}
	if !at.Equal(fetched) {
		t.Errorf("Expected fetch time %v, got %v", fetched, at)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Date.After(got[i-1].Date) {
			t.Errorf("Rows not in date order at %d", i)
		}
	}
	if got[0].NewCases != 10 || got[0].NewCasesSmoothed != 5 {
		t.Errorf("Unexpected first row %+v", got[0])
	}
	if !math.IsNaN(got[1].NewCases) {
		t.Errorf("Expected NaN to survive as NULL, got %v", got[1].NewCases)
	}
	if !math.IsNaN(got[0].NewDeaths) {
		t.Errorf("Expected NaN deaths, got %v", got[0].NewDeaths)
	}
}

func TestStorage_SaveRegionDaysReplaces(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if err := s.SaveRegionDays(ctx, "France", []models.RegionDay{day(0, 1), day(1, 2)}, time.Now()); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Hour)
	if err := s.SaveRegionDays(ctx, "France", []models.RegionDay{day(5, 9)}, later); err != nil {
		t.Fatal(err)
	}

	got, at, err := s.RegionDays(ctx, "France")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].NewCases != 9 {
		t.Errorf("Expected the second save to replace the first, got %+v", got)
	}
	if at.Unix() != later.Unix() {
		t.Errorf("Expected refreshed fetch time, got %v", at)
	}

	regions, err := s.CachedRegions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 1 || regions[0] != "France" {
		t.Errorf("Expected [France], got %v", regions)
	}
}

func TestStorage_RegionDaysNotCached(t *testing.T) {
	s := openMemory(t)
	_, _, err := s.RegionDays(context.Background(), "Atlantis")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStorage_Regions(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if _, _, err := s.Regions(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound before save, got %v", err)
	}

	fetched := time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.SaveRegions(ctx, []string{"Germany", "Brazil", "India"}, fetched); err != nil {
		t.Fatalf("SaveRegions failed: %v", err)
	}
	names, at, err := s.Regions(ctx)
	if err != nil {
		t.Fatalf("Regions failed: %v", err)
	}
	if len(names) != 3 || names[0] != "Brazil" || names[2] != "India" {
		t.Errorf("Expected sorted names, got %v", names)
	}
	if !at.Equal(fetched) {
		t.Errorf("Expected %v, got %v", fetched, at)
	}
}

func TestStorage_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	ctx := context.Background()

	s, err := Open(ctx, "sqlite", path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.SaveRegions(ctx, []string{"Chile"}, time.Now()); err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened, err := Open(ctx, "sqlite", path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()
	names, _, err := reopened.Regions(ctx)
	if err != nil || len(names) != 1 {
		t.Errorf("Expected persisted region, got %v (%v)", names, err)
	}
}

func TestStorage_UnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}
