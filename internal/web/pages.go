package web

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rewired-gh/forecastkit/internal/app"
	"github.com/rewired-gh/forecastkit/internal/covid"
	"github.com/rewired-gh/forecastkit/internal/flight"
	"github.com/rewired-gh/forecastkit/internal/models"
)

type pageError struct {
	Message string
	Field   string
	Hint    string
}

func newPageError(err error) (int, *pageError) {
	status, body := classify(err)
	return status, &pageError{Message: body.Error, Field: body.Field, Hint: body.Hint}
}

var stopOptions = []string{"non-stop", "1 stop", "2 stops", "3 stops", "4 stops"}

type flightPage struct {
	Title       string
	Ready       bool
	Hint        string
	Vocab       map[string][]string
	StopOptions []string
	Form        flight.Form
	Estimate    *models.PriceEstimate
	Error       *pageError
}

func formFromValues(v url.Values) flight.Form {
	return flight.Form{
		Airline:        v.Get("airline"),
		Source:         v.Get("source"),
		Destination:    v.Get("destination"),
		Date:           v.Get("date"),
		DepTime:        v.Get("dep_time"),
		ArrTime:        v.Get("arr_time"),
		Duration:       v.Get("duration"),
		Stops:          v.Get("stops"),
		AdditionalInfo: v.Get("additional_info"),
	}
}

func (s *Server) handleFlightPage(w http.ResponseWriter, r *http.Request) {
	page := flightPage{
		Title:       "Flight fare estimate",
		Ready:       s.app.Fares.Ready(),
		Vocab:       s.app.Fares.Vocabularies(),
		StopOptions: stopOptions,
	}
	if !page.Ready {
		page.Hint = models.TrainingHint
	}

	if r.Method != http.MethodPost {
		s.render(w, http.StatusOK, "flight.html", page)
		return
	}

	if err := r.ParseForm(); err != nil {
		status, perr := newPageError(&models.ValidationError{Field: "form", Reason: err.Error()})
		page.Error = perr
		s.render(w, status, "flight.html", page)
		return
	}
	page.Form = formFromValues(r.PostForm)

	estimate, err := s.app.Fares.PredictForm(page.Form)
	if err != nil {
		status, perr := newPageError(err)
		page.Error = perr
		s.render(w, status, "flight.html", page)
		return
	}
	page.Estimate = &estimate
	s.render(w, http.StatusOK, "flight.html", page)
}

type covidPage struct {
	Title      string
	Regions    []string
	Targets    []models.Target
	Query      app.ForecastQuery
	MinHorizon int
	MaxHorizon int
	Start      string
	End        string
	Uploaded   string
	Summary    *models.SeriesSummary
	Result     *models.ForecastResult
	Chart      template.HTML
	ExportURL  string
	Error      *pageError
}

func exportURL(q app.ForecastQuery) string {
	v := url.Values{}
	v.Set("region", q.Region)
	v.Set("target", string(q.Target))
	v.Set("horizon", strconv.Itoa(q.HorizonDays))
	v.Set("seasonal", strconv.FormatBool(q.Seasonal))
	v.Set("log", strconv.FormatBool(q.LogTransform))
	if !q.Range.Start.IsZero() {
		v.Set("start", q.Range.Start.Format("2006-01-02"))
	}
	if !q.Range.End.IsZero() {
		v.Set("end", q.Range.End.Format("2006-01-02"))
	}
	return "/api/covid/export.csv?" + v.Encode()
}

// handleCovidPage renders the forecast form. GET runs a forecast only when a
// region is given in the query; POST accepts an optional CSV upload that
// replaces the downloaded dataset for that request.
func (s *Server) handleCovidPage(w http.ResponseWriter, r *http.Request) {
	page := covidPage{
		Title:      "COVID-19 forecast",
		Regions:    s.app.Loader.Regions(r.Context()),
		Targets:    models.Targets,
		Query:      s.app.DefaultQuery(),
		MinHorizon: s.app.Horizons.MinHorizon,
		MaxHorizon: s.app.Horizons.MaxHorizon,
	}
	fail := func(err error) {
		status, perr := newPageError(err)
		page.Error = perr
		s.render(w, status, "covid.html", page)
	}

	var values url.Values
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			fail(&models.ValidationError{Field: "file", Reason: err.Error()})
			return
		}
		values = r.PostForm
	} else {
		values = r.URL.Query()
		if !values.Has("region") {
			s.render(w, http.StatusOK, "covid.html", page)
			return
		}
	}

	q, err := queryFromValues(page.Query, values)
	page.Query = q
	page.Start, page.End = values.Get("start"), values.Get("end")
	if err != nil {
		fail(err)
		return
	}

	var series *models.Series
	if file, header, ferr := r.FormFile("file"); ferr == nil && header.Size > 0 {
		defer file.Close()
		page.Uploaded = header.Filename
		series, err = s.app.Loader.ParseCSV(file, header.Filename, q.Target, q.Range)
	} else {
		series, err = s.app.Loader.Load(r.Context(), q.Region, q.Target, q.Range)
	}
	if err != nil {
		fail(err)
		return
	}

	summary := covid.Summarize(series)
	page.Summary = &summary

	result, err := s.app.ForecastSeries(r.Context(), series, q)
	if err != nil {
		fail(err)
		return
	}
	page.Result = result
	page.Chart = renderChart(series, result)
	if page.Uploaded == "" {
		page.ExportURL = exportURL(q)
	}
	s.render(w, http.StatusOK, "covid.html", page)
}
