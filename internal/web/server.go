// Package web serves the dashboard forms and the JSON API.
//
//	GET  /                       redirect to /covid
//	GET  /flight, POST /flight   fare form
//	GET  /covid,  POST /covid    forecast form (optional CSV upload)
//	POST /api/flight/predict     fare prediction
//	POST /api/covid/forecast     forecast with fallback chain
//	GET  /api/covid/regions      region list
//	GET  /api/covid/series       cleaned series and summary
//	GET  /api/covid/export.csv   series plus forecast as CSV
//	GET  /healthz                liveness and model status
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/rewired-gh/forecastkit/internal/app"
	"github.com/rewired-gh/forecastkit/internal/forecast"
	"github.com/rewired-gh/forecastkit/internal/logger"
	"github.com/rewired-gh/forecastkit/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// maxUploadBytes caps CSV uploads on the forecast form.
const maxUploadBytes = 8 << 20

// Server routes dashboard and API requests to the application context.
type Server struct {
	app   *app.Context
	pages *template.Template
	mux   *http.ServeMux
}

// New parses the page templates and registers routes.
func New(a *app.Context) (*Server, error) {
	pages, err := template.New("").Funcs(template.FuncMap{
		"metric": forecast.FormatMetric,
		"tier":   forecast.TierLabel,
		"money":  func(v float64) string { return fmt.Sprintf("%.2f", v) },
		"date":   func(t time.Time) string { return t.Format("2006-01-02") },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{app: a, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/covid", http.StatusFound)
	})
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /flight", s.handleFlightPage)
	s.mux.HandleFunc("POST /flight", s.handleFlightPage)
	s.mux.HandleFunc("GET /covid", s.handleCovidPage)
	s.mux.HandleFunc("POST /covid", s.handleCovidPage)

	s.mux.HandleFunc("POST /api/flight/predict", s.handlePredict)
	s.mux.HandleFunc("POST /api/covid/forecast", s.handleForecast)
	s.mux.HandleFunc("GET /api/covid/regions", s.handleRegions)
	s.mux.HandleFunc("GET /api/covid/series", s.handleSeries)
	s.mux.HandleFunc("GET /api/covid/export.csv", s.handleExport)
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("%s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

// classify maps an error to an HTTP status and a user-facing body.
func classify(err error) (int, errorBody) {
	var (
		verr        *models.ValidationError
		missing     *models.MissingFileError
		unavailable *models.ModelUnavailableError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorBody{Error: verr.Error(), Field: verr.Field}
	case errors.As(err, &unavailable), errors.As(err, &missing):
		return http.StatusServiceUnavailable, errorBody{Error: err.Error(), Hint: models.TrainingHint}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, errorBody{Error: "request cancelled"}
	default:
		return http.StatusInternalServerError, errorBody{Error: err.Error()}
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	respondJSON(w, status, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":       "ok",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"flight_model": s.app.Fares.Ready(),
		"tiers":        s.app.Chain.Tiers(),
	}
	if s.app.Store != nil {
		status["storage"] = s.app.Store.Driver()
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		logger.Error("Failed to render %s: %v", name, err)
	}
}
