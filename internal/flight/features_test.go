package flight

import (
	"errors"
	"testing"
	"time"

	"github.com/rewired-gh/forecastkit/internal/models"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"2h 30m", 150, false},
		{"45m", 45, false},
		{"3h", 180, false},
		{" 1h5m ", 65, false},
		{"0h 0m", 0, false},
		{"", 0, true},
		{"abc", 0, true},
		{"30m 2h", 0, true},
		{"-2h", 0, true},
		{"2 hours", 0, true},
		{"168h", 10080, false},
		{"168h 1m", 0, true},
		{"99999999999999999999h", 0, true},
		{"153722867280912931h", 0, true},
		{"5000000000000000000m", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				var verr *models.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("Expected ValidationError for %q, got %v", tt.in, err)
				}
				if verr.Field != "duration" {
					t.Errorf("Expected field duration, got %s", verr.Field)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseStops(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"non-stop", 0, false},
		{"Non-Stop", 0, false},
		{"1 stop", 1, false},
		{"2 stops", 2, false},
		{"4", 4, false},
		{"-1", 0, true},
		{"many stops", 0, true},
		{"2 layovers", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStops(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStops(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStops(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func validForm() Form {
	return Form{
		Airline:        "IndiGo",
		Source:         "Banglore",
		Destination:    "New Delhi",
		Date:           "24/03/2019",
		DepTime:        "22:20",
		ArrTime:        "01:10 22 Mar",
		Duration:       "2h 50m",
		Stops:          "non-stop",
		AdditionalInfo: "No info",
	}
}

func TestPrepare(t *testing.T) {
	p := NewPreparer()

	record, err := p.Prepare(validForm())
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if !record.DateOfJourney.Equal(time.Date(2019, 3, 24, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected date %v", record.DateOfJourney)
	}
	if record.JourneyDay() != 24 || record.JourneyMonth() != 3 {
		t.Errorf("Expected day 24 month 3, got %d/%d", record.JourneyDay(), record.JourneyMonth())
	}
	if record.Weekday() != int(time.Sunday) {
		t.Errorf("Expected Sunday, got %d", record.Weekday())
	}
	if record.DepHour != 22 || record.DepMinute != 20 {
		t.Errorf("Expected dep 22:20, got %d:%d", record.DepHour, record.DepMinute)
	}
	if record.ArrHour != 1 || record.ArrMinute != 10 {
		t.Errorf("Expected arr 01:10, got %d:%d", record.ArrHour, record.ArrMinute)
	}
	if record.DurationMinutes != 170 {
		t.Errorf("Expected 170 minutes, got %d", record.DurationMinutes)
	}
	if record.TotalStops != 0 {
		t.Errorf("Expected 0 stops, got %d", record.TotalStops)
	}
}

func TestPrepareAcceptsISODate(t *testing.T) {
	form := validForm()
	form.Date = "2019-06-09"

	record, err := NewPreparer().Prepare(form)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if record.JourneyMonth() != 6 || record.JourneyDay() != 9 {
		t.Errorf("Expected 9 June, got %v", record.DateOfJourney)
	}
}

func TestPrepareRejects(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(f *Form)
		wantField string
	}{
		{"empty airline", func(f *Form) { f.Airline = "  " }, "airline"},
		{"empty additional info", func(f *Form) { f.AdditionalInfo = "" }, "additional_info"},
		{"bad date", func(f *Form) { f.Date = "31/31/2019" }, "date"},
		{"bad dep time", func(f *Form) { f.DepTime = "25:00" }, "dep_time"},
		{"bad arr time", func(f *Form) { f.ArrTime = "noon" }, "arr_time"},
		{"bad duration", func(f *Form) { f.Duration = "long" }, "duration"},
		{"negative stops", func(f *Form) { f.Stops = "-2" }, "stops"},
	}

	p := NewPreparer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			tt.mutate(&form)

			_, err := p.Prepare(form)
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Expected field %s, got %s", tt.wantField, verr.Field)
			}
		})
	}
}
