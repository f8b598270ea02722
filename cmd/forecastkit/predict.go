package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/rewired-gh/forecastkit/internal/flight"
	"github.com/rewired-gh/forecastkit/internal/logger"
	"github.com/spf13/cobra"
)

func newPredictCmd(opts *rootOptions) *cobra.Command {
	var (
		form     flight.Form
		testSet  bool
		dataPath string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Estimate a flight fare from flags, or every row of the test workbook",
		Example: `  forecastkit predict --airline IndiGo --source Banglore --destination "New Delhi" \
    --date 2019-03-24 --dep 22:20 --arr 01:10 --duration "2h 50m" --stops non-stop
  forecastkit predict --test-set`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := flight.NewRunner(opts.cfg.Flight.ModelPath)
			if _, err := runner.Model(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !testSet {
				estimate, err := runner.PredictForm(form)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Estimated fare: %.2f (%s)\n", estimate.Value, estimate.Category)
				return nil
			}

			if dataPath == "" {
				dataPath = opts.cfg.Flight.TestPath
			}
			df, err := flight.LoadWorkbook(dataPath)
			if err != nil {
				return err
			}
			forms, err := flight.Forms(df)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROW\tAIRLINE\tROUTE\tDATE\tSTOPS\tFARE\tCATEGORY")
			failed := 0
			for i, f := range forms {
				estimate, err := runner.PredictForm(f)
				if err != nil {
					failed++
					logger.Warn("Row %d skipped: %v", i+2, err)
					continue
				}
				fmt.Fprintf(tw, "%d\t%s\t%s → %s\t%s\t%s\t%.2f\t%s\n",
					i+2, f.Airline, f.Source, f.Destination, f.Date, f.Stops, estimate.Value, estimate.Category)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if failed == len(forms) && failed > 0 {
				return errors.New("no row of the test set could be predicted")
			}
			fmt.Fprintf(out, "%d predicted, %d skipped\n", len(forms)-failed, failed)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&form.Airline, "airline", "", "airline name")
	f.StringVar(&form.Source, "source", "", "departure city")
	f.StringVar(&form.Destination, "destination", "", "arrival city")
	f.StringVar(&form.Date, "date", "", "date of journey (YYYY-MM-DD or DD/MM/YYYY)")
	f.StringVar(&form.DepTime, "dep", "", "departure time HH:MM")
	f.StringVar(&form.ArrTime, "arr", "", "arrival time HH:MM")
	f.StringVar(&form.Duration, "duration", "", `flight duration such as "2h 50m"`)
	f.StringVar(&form.Stops, "stops", "non-stop", `"non-stop" or "N stops"`)
	f.StringVar(&form.AdditionalInfo, "info", "No info", "additional info label")
	f.BoolVar(&testSet, "test-set", false, "predict every row of the test workbook")
	f.StringVar(&dataPath, "data", "", "test workbook (default flight.test_path)")
	return cmd
}
