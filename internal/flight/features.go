// Package flight implements the fare prediction pipeline: raw form fields are
// prepared into a FlightRecord, encoded against the training vocabulary, and
// scored by a random forest loaded from the model artifact.
package flight

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rewired-gh/forecastkit/internal/models"
)

// Form holds raw fare form fields exactly as typed by the user or read from a spreadsheet row.
type Form struct {
	Airline        string `json:"airline" validate:"required"`
	Source         string `json:"source" validate:"required"`
	Destination    string `json:"destination" validate:"required"`
	Date           string `json:"date" validate:"required"`
	DepTime        string `json:"dep_time" validate:"required"`
	ArrTime        string `json:"arr_time" validate:"required"`
	Duration       string `json:"duration" validate:"required"`
	Stops          string `json:"stops" validate:"required"`
	AdditionalInfo string `json:"additional_info" validate:"required"`
}

var durationPattern = regexp.MustCompile(`^(?:(\d+)\s*h)?\s*(?:(\d+)\s*m)?$`)

// maxDurationMinutes bounds a single journey to one week.
const maxDurationMinutes = 7 * 24 * 60

// ParseDuration converts "2h 30m", "3h" or "45m" into total minutes.
func ParseDuration(s string) (int, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	m := durationPattern.FindStringSubmatch(trimmed)
	if trimmed == "" || m == nil || (m[1] == "" && m[2] == "") {
		return 0, &models.ValidationError{Field: "duration", Reason: fmt.Sprintf("%q does not match the \"Xh Ym\" pattern", s)}
	}

	tooLong := &models.ValidationError{Field: "duration", Reason: fmt.Sprintf("%q exceeds %d hours", s, maxDurationMinutes/60)}
	var hours, minutes int
	var err error
	if m[1] != "" {
		if hours, err = strconv.Atoi(m[1]); err != nil || hours > maxDurationMinutes/60 {
			return 0, tooLong
		}
	}
	if m[2] != "" {
		if minutes, err = strconv.Atoi(m[2]); err != nil || minutes > maxDurationMinutes {
			return 0, tooLong
		}
	}
	total := hours*60 + minutes
	if total > maxDurationMinutes {
		return 0, tooLong
	}
	return total, nil
}

// ParseStops accepts "non-stop", "1 stop", "2 stops" or a bare integer.
func ParseStops(s string) (int, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if trimmed == "non-stop" || trimmed == "nonstop" {
		return 0, nil
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return 0, &models.ValidationError{Field: "stops", Reason: "must not be empty"}
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 || len(fields) > 2 || (len(fields) == 2 && !strings.HasPrefix(fields[1], "stop")) {
		return 0, &models.ValidationError{Field: "stops", Reason: fmt.Sprintf("unrecognised stop count %q", s)}
	}
	return n, nil
}

var dateLayouts = []string{"2006-01-02", "2/1/2006"}

func parseDate(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, trimmed); err == nil {
			return d, nil
		}
	}
	return time.Time{}, &models.ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD or DD/MM/YYYY", s)}
}

// parseClock reads "HH:MM", ignoring a trailing date such as "01:10 22 Mar".
func parseClock(field, s string) (int, int, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, 0, &models.ValidationError{Field: field, Reason: "must not be empty"}
	}
	t, err := time.Parse("15:04", fields[0])
	if err != nil {
		return 0, 0, &models.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not HH:MM", s)}
	}
	return t.Hour(), t.Minute(), nil
}

// Preparer turns raw forms into FlightRecords. It has no side effects.
type Preparer struct {
	validate *validator.Validate
}

// NewPreparer creates a Preparer whose validation errors name fields by their JSON tag.
func NewPreparer() *Preparer {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Preparer{validate: v}
}

// Prepare validates the form and derives every numeric field of a FlightRecord.
func (p *Preparer) Prepare(form Form) (*models.FlightRecord, error) {
	form = trimForm(form)
	if err := p.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &models.ValidationError{Field: verrs[0].Field(), Reason: "must not be empty"}
		}
		return nil, &models.ValidationError{Reason: err.Error()}
	}

	date, err := parseDate(form.Date)
	if err != nil {
		return nil, err
	}
	depHour, depMinute, err := parseClock("dep_time", form.DepTime)
	if err != nil {
		return nil, err
	}
	arrHour, arrMinute, err := parseClock("arr_time", form.ArrTime)
	if err != nil {
		return nil, err
	}
	duration, err := ParseDuration(form.Duration)
	if err != nil {
		return nil, err
	}
	stops, err := ParseStops(form.Stops)
	if err != nil {
		return nil, err
	}

	record := &models.FlightRecord{
		Airline:         form.Airline,
		Source:          form.Source,
		Destination:     form.Destination,
		DateOfJourney:   date,
		DepHour:         depHour,
		DepMinute:       depMinute,
		ArrHour:         arrHour,
		ArrMinute:       arrMinute,
		DurationMinutes: duration,
		TotalStops:      stops,
		AdditionalInfo:  form.AdditionalInfo,
	}
	if err := record.Validate(); err != nil {
		return nil, &models.ValidationError{Reason: err.Error()}
	}
	return record, nil
}

func trimForm(f Form) Form {
	f.Airline = strings.TrimSpace(f.Airline)
	f.Source = strings.TrimSpace(f.Source)
	f.Destination = strings.TrimSpace(f.Destination)
	f.Date = strings.TrimSpace(f.Date)
	f.DepTime = strings.TrimSpace(f.DepTime)
	f.ArrTime = strings.TrimSpace(f.ArrTime)
	f.Duration = strings.TrimSpace(f.Duration)
	f.Stops = strings.TrimSpace(f.Stops)
	f.AdditionalInfo = strings.TrimSpace(f.AdditionalInfo)
	return f
}
