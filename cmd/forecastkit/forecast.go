package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rewired-gh/forecastkit/internal/app"
	"github.com/rewired-gh/forecastkit/internal/covid"
	"github.com/rewired-gh/forecastkit/internal/export"
	"github.com/rewired-gh/forecastkit/internal/forecast"
	"github.com/rewired-gh/forecastkit/internal/logger"
	"github.com/rewired-gh/forecastkit/internal/models"
	"github.com/rewired-gh/forecastkit/internal/notify"
	"github.com/spf13/cobra"
)

type forecastFlags struct {
	region     string
	target     string
	horizon    int
	noSeasonal bool
	log        bool
	start      string
	end        string
	csvPath    string
	exportPath string
	sinks      []string
	notify     bool
	asJSON     bool
}

func parseRange(start, end string) (covid.DateRange, error) {
	var r covid.DateRange
	for _, f := range []struct {
		name  string
		value string
		dst   *time.Time
	}{{"start", start, &r.Start}, {"end", end, &r.End}} {
		if f.value == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", f.value)
		if err != nil {
			return r, &models.ValidationError{Field: f.name, Reason: "expected YYYY-MM-DD"}
		}
		*f.dst = t
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return r, &models.ValidationError{Field: "end", Reason: "must not be before start"}
	}
	return r, nil
}

func (f *forecastFlags) query(a *app.Context) (app.ForecastQuery, error) {
	q := a.DefaultQuery()
	if f.region != "" {
		q.Region = f.region
	}
	if f.target != "" {
		t, err := models.ParseTarget(f.target)
		if err != nil {
			return q, err
		}
		q.Target = t
	}
	if f.horizon != 0 {
		q.HorizonDays = f.horizon
	}
	q.Seasonal = !f.noSeasonal
	q.LogTransform = f.log
	r, err := parseRange(f.start, f.end)
	if err != nil {
		return q, err
	}
	q.Range = r
	return q, nil
}

func newForecastCmd(opts *rootOptions) *cobra.Command {
	f := &forecastFlags{}
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast a region's series, or a series read from a CSV file",
		Example: `  forecastkit forecast --region Germany --target new_deaths_smoothed --horizon 21
  forecastkit forecast --csv cases.csv --export cases_forecast.csv
  forecastkit forecast --region India --sink out/forecasts.parquet --notify`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withApp(ctx, func(a *app.Context) error {
				q, err := f.query(a)
				if err != nil {
					return err
				}

				var series *models.Series
				if f.csvPath != "" {
					series, err = readSeriesCSV(a.Loader, f.csvPath, q)
				} else {
					series, err = a.Loader.Load(ctx, q.Region, q.Target, q.Range)
				}
				if err != nil {
					return err
				}

				result, err := a.ForecastSeries(ctx, series, q)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if f.asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					if err := enc.Encode(map[string]any{"summary": covid.Summarize(series), "result": result}); err != nil {
						return err
					}
				} else {
					printSummary(out, series, covid.Summarize(series))
					printResult(out, result)
				}

				if f.exportPath != "" {
					if err := writeSeriesExport(f.exportPath, series, result); err != nil {
						return err
					}
					logger.Info("Series and forecast written to %s", f.exportPath)
				}
				for _, dest := range f.sinks {
					if err := writeSink(cmd, a, dest, result); err != nil {
						return err
					}
				}
				if f.notify {
					if len(a.Notifiers) == 0 {
						logger.Warn("No notifier is enabled; skipping digest")
					} else if err := notify.SendAll(ctx, a.Notifiers, []*models.ForecastResult{result}); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.region, "region", "r", "", "region name (default covid.default_region)")
	fl.StringVarP(&f.target, "target", "t", "", "target column: "+strings.Join(targetNames(), ", "))
	fl.IntVarP(&f.horizon, "horizon", "n", 0, "forecast horizon in days (default forecast.default_horizon)")
	fl.BoolVar(&f.noSeasonal, "no-seasonal", false, "disable the weekly seasonal component")
	fl.BoolVar(&f.log, "log", false, "fit on log1p-transformed values")
	fl.StringVar(&f.start, "start", "", "first date to use (YYYY-MM-DD)")
	fl.StringVar(&f.end, "end", "", "last date to use (YYYY-MM-DD)")
	fl.StringVar(&f.csvPath, "csv", "", "read the series from a CSV file with date and value columns")
	fl.StringVar(&f.exportPath, "export", "", "write series plus forecast as CSV to this path")
	fl.StringArrayVar(&f.sinks, "sink", nil, "also write the result to a sink (-, file.csv|jsonl|parquet, kafka://topic, s3://bucket/key); repeatable")
	fl.BoolVar(&f.notify, "notify", false, "send the forecast digest to enabled notifiers")
	fl.BoolVar(&f.asJSON, "json", false, "print summary and result as JSON")
	return cmd
}

func targetNames() []string {
	names := make([]string, len(models.Targets))
	for i, t := range models.Targets {
		names[i] = string(t)
	}
	return names
}

func readSeriesCSV(l *covid.Loader, path string, q app.ForecastQuery) (*models.Series, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.MissingFileError{Path: path}
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()
	return l.ParseCSV(file, filepath.Base(path), q.Target, q.Range)
}

func writeSeriesExport(path string, series *models.Series, result *models.ForecastResult) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := export.WriteSeriesCSV(file, series, result); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}

func writeSink(cmd *cobra.Command, a *app.Context, dest string, result *models.ForecastResult) error {
	sink, err := export.Open(cmd.Context(), dest, a.Config.Export)
	if err != nil {
		return err
	}
	if err := sink.Write(cmd.Context(), result); err != nil {
		sink.Close()
		return fmt.Errorf("failed to export to %s: %w", dest, err)
	}
	if err := sink.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", dest, err)
	}
	logger.Info("Forecast exported to %s", dest)
	return nil
}

func printSummary(w io.Writer, s *models.Series, sum models.SeriesSummary) {
	fmt.Fprintf(w, "%s · %s\n", s.Region, s.Target)
	fmt.Fprintf(w, "  observations  %d (%s to %s), %d filled\n",
		sum.Count, sum.Start.Format("2006-01-02"), sum.End.Format("2006-01-02"), sum.Missing)
	fmt.Fprintf(w, "  mean %s  std %s  min %s  max %s  trend %s/day\n",
		forecast.FormatMetric(sum.Mean), forecast.FormatMetric(sum.Std),
		forecast.FormatMetric(sum.Min), forecast.FormatMetric(sum.Max), forecast.FormatMetric(sum.TrendSlope))
}

func printResult(w io.Writer, r *models.ForecastResult) {
	model := ""
	if r.Model != "" {
		model = " " + r.Model
	}
	fmt.Fprintf(w, "\n%s%s\n", forecast.TierLabel(r.Tier), model)
	fmt.Fprintf(w, "  MAE %s  RMSE %s  MAPE %s%%\n",
		forecast.FormatMetric(r.Metrics.MAE), forecast.FormatMetric(r.Metrics.RMSE), forecast.FormatMetric(r.Metrics.MAPE))
	for _, note := range r.Notes {
		fmt.Fprintf(w, "  note: %s\n", note)
	}
	fmt.Fprintln(w)
	for _, p := range r.Points {
		fmt.Fprintf(w, "  %s  %10s  [%s, %s]\n", p.Date.Format("2006-01-02"),
			forecast.FormatMetric(p.Predicted), forecast.FormatMetric(p.Lower), forecast.FormatMetric(p.Upper))
	}
}
