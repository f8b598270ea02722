// Package models defines the core domain entities for forecastkit.
// These models represent flight fare inputs and estimates, COVID-19 case series,
// and forecast results produced by the model fallback chain.
// All models include built-in validation to ensure data integrity throughout the application.
//
// Terminology:
//   - Tier: one strategy in the forecast fallback chain (seasonal, auto-select, naive).
//   - Target: the OWID column being forecast, e.g. new_cases_smoothed.
package models

import (
	"errors"
	"time"
)

// FlightRecord is a fully prepared flight itinerary ready for encoding.
// It is derived from raw form fields at prediction time and never persisted.
type FlightRecord struct {
	Airline         string    `json:"airline"`
	Source          string    `json:"source"`
	Destination     string    `json:"destination"`
	DateOfJourney   time.Time `json:"date_of_journey"`
	DepHour         int       `json:"dep_hour"`
	DepMinute       int       `json:"dep_minute"`
	ArrHour         int       `json:"arr_hour"`
	ArrMinute       int       `json:"arr_minute"`
	DurationMinutes int       `json:"duration_minutes"`
	TotalStops      int       `json:"total_stops"`
	AdditionalInfo  string    `json:"additional_info"`
}

// JourneyDay returns the day of month of the journey.
func (r *FlightRecord) JourneyDay() int { return r.DateOfJourney.Day() }

// JourneyMonth returns the month (1-12) of the journey.
func (r *FlightRecord) JourneyMonth() int { return int(r.DateOfJourney.Month()) }

// Weekday returns the day of week of the journey, Sunday = 0.
func (r *FlightRecord) Weekday() int { return int(r.DateOfJourney.Weekday()) }

// Validate checks that all record fields are valid
func (r *FlightRecord) Validate() error {
	if r.Airline == "" {
		return errors.New("airline must not be empty")
	}
	if r.Source == "" {
		return errors.New("source must not be empty")
	}
	if r.Destination == "" {
		return errors.New("destination must not be empty")
	}
	if r.AdditionalInfo == "" {
		return errors.New("additional info must not be empty")
	}
	if r.DateOfJourney.IsZero() {
		return errors.New("date of journey must be set")
	}
	if r.DepHour < 0 || r.DepHour > 23 || r.ArrHour < 0 || r.ArrHour > 23 {
		return errors.New("hours must be between 0 and 23")
	}
	if r.DepMinute < 0 || r.DepMinute > 59 || r.ArrMinute < 0 || r.ArrMinute > 59 {
		return errors.New("minutes must be between 0 and 59")
	}
	if r.DurationMinutes < 0 {
		return errors.New("duration must not be negative")
	}
	if r.TotalStops < 0 {
		return errors.New("total stops must not be negative")
	}
	return nil
}

// PriceCategory buckets a fare into a user-facing band.
type PriceCategory string

const (
	CategoryBudget  PriceCategory = "Budget"
	CategoryEconomy PriceCategory = "Economy"
	CategoryPremium PriceCategory = "Premium"
	CategoryLuxury  PriceCategory = "Luxury"
)

// Category thresholds. Each band is closed at its lower edge and open at its
// upper edge; Luxury is unbounded.
const (
	EconomyThreshold = 5000.0
	PremiumThreshold = 15000.0
	LuxuryThreshold  = 30000.0
)

// CategoryFor maps a price to its band.
func CategoryFor(value float64) PriceCategory {
	switch {
	case value < EconomyThreshold:
		return CategoryBudget
	case value < PremiumThreshold:
		return CategoryEconomy
	case value < LuxuryThreshold:
		return CategoryPremium
	default:
		return CategoryLuxury
	}
}

// PriceEstimate is the output of the flight model runner
type PriceEstimate struct {
	Value    float64       `json:"value"`
	Category PriceCategory `json:"category"`
}

// NewPriceEstimate clamps value to be non-negative and attaches its category.
func NewPriceEstimate(value float64) PriceEstimate {
	if value < 0 || value != value {
		value = 0
	}
	return PriceEstimate{Value: value, Category: CategoryFor(value)}
}
