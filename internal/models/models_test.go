package models

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		value    float64
		expected PriceCategory
	}{
		{0, CategoryBudget},
		{4999.99, CategoryBudget},
		{5000, CategoryEconomy},
		{14999.99, CategoryEconomy},
		{15000, CategoryPremium},
		{29999.99, CategoryPremium},
		{30000, CategoryLuxury},
		{120000, CategoryLuxury},
	}

	for _, tt := range tests {
		if got := CategoryFor(tt.value); got != tt.expected {
			t.Errorf("CategoryFor(%v) = %s, expected %s", tt.value, got, tt.expected)
		}
	}
}

func TestNewPriceEstimateClampsNegative(t *testing.T) {
	est := NewPriceEstimate(-120)
	if est.Value != 0 {
		t.Errorf("Expected value 0, got %f", est.Value)
	}
	if est.Category != CategoryBudget {
		t.Errorf("Expected Budget, got %s", est.Category)
	}
}

func TestFlightRecordValidate(t *testing.T) {
	valid := FlightRecord{
		Airline:         "IndiGo",
		Source:          "Banglore",
		Destination:     "New Delhi",
		DateOfJourney:   time.Date(2019, 3, 24, 0, 0, 0, 0, time.UTC),
		DepHour:         22,
		DepMinute:       20,
		ArrHour:         1,
		ArrMinute:       10,
		DurationMinutes: 170,
		TotalStops:      0,
		AdditionalInfo:  "No info",
	}

	tests := []struct {
		name    string
		mutate  func(r *FlightRecord)
		wantErr bool
	}{
		{"valid record", func(r *FlightRecord) {}, false},
		{"empty airline", func(r *FlightRecord) { r.Airline = "" }, true},
		{"empty info", func(r *FlightRecord) { r.AdditionalInfo = "" }, true},
		{"negative stops", func(r *FlightRecord) { r.TotalStops = -1 }, true},
		{"bad hour", func(r *FlightRecord) { r.DepHour = 24 }, true},
		{"zero date", func(r *FlightRecord) { r.DateOfJourney = time.Time{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if valid.Weekday() != int(time.Sunday) {
		t.Errorf("Expected Sunday, got %d", valid.Weekday())
	}
}

func TestForecastResultValidate(t *testing.T) {
	day := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	result := ForecastResult{
		Tier: "naive",
		Points: []ForecastPoint{
			{Date: day, Predicted: 10, Lower: 8, Upper: 12},
			{Date: day.AddDate(0, 0, 1), Predicted: 11, Lower: 9, Upper: 13},
		},
	}
	if err := result.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	result.Points[1].Lower = -1
	if err := result.Validate(); err == nil {
		t.Error("Expected error for negative lower bound")
	}
	result.Points[1].Lower = 9

	result.Points[0].Upper = math.Inf(1)
	if err := result.Validate(); err == nil {
		t.Error("Expected error for an infinite upper bound")
	}
	result.Points[0].Upper = 12

	result.Points[0].Predicted = math.NaN()
	if err := result.Validate(); err == nil {
		t.Error("Expected error for a NaN prediction")
	}
	result.Points[0].Predicted = 10

	result.Metrics.RMSE = math.Inf(1)
	if err := result.Validate(); err == nil {
		t.Error("Expected error for infinite metrics")
	}
}

func TestParseTarget(t *testing.T) {
	if _, err := ParseTarget("new_cases"); err != nil {
		t.Errorf("ParseTarget failed: %v", err)
	}

	_, err := ParseTarget("hospital_beds")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if verr.Field != "target" {
		t.Errorf("Expected field target, got %s", verr.Field)
	}
}

func TestErrorsUnwrap(t *testing.T) {
	base := errors.New("boom")
	wrapped := fmt.Errorf("predict: %w", &ModelUnavailableError{Path: "m.gob.gz", Err: base})

	var mu *ModelUnavailableError
	if !errors.As(wrapped, &mu) {
		t.Fatal("Expected ModelUnavailableError in chain")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Expected base error to be reachable")
	}

	fit := &ModelFittingError{Tier: "seasonal", Err: base}
	if !errors.Is(fit, base) {
		t.Error("Expected ModelFittingError to unwrap")
	}
}

func TestSeriesValidate(t *testing.T) {
	day := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Series{Observations: []Observation{{Date: day, Value: 1}, {Date: day, Value: 2}}}
	if err := s.Validate(); err == nil {
		t.Error("Expected error for duplicate dates")
	}

	empty := Series{}
	if err := empty.Validate(); err == nil {
		t.Error("Expected error for empty series")
	}
}
