package main

import (
	"fmt"

	"github.com/rewired-gh/forecastkit/internal/flight"
	"github.com/rewired-gh/forecastkit/internal/forest"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newTrainCmd(opts *rootOptions) *cobra.Command {
	var (
		dataPath string
		trees    int
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the flight fare model from a fare workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc := opts.cfg.Flight
			if dataPath == "" {
				dataPath = fc.TrainPath
			}
			params := forest.Params{
				Trees:          fc.Trees,
				MaxDepth:       fc.MaxDepth,
				MinSamplesLeaf: fc.MinSamplesLeaf,
				FeatureRatio:   fc.FeatureRatio,
				Seed:           fc.Seed,
			}
			if trees > 0 {
				params.Trees = trees
			}

			df, err := flight.LoadWorkbook(dataPath)
			if err != nil {
				return err
			}
			examples, err := flight.Examples(df, flight.NewPreparer())
			if err != nil {
				return err
			}

			trainOpts := flight.TrainOptions{Params: params, HoldoutRatio: fc.HoldoutRatio}
			var bar *progressbar.ProgressBar
			if !quiet {
				bar = progressbar.NewOptions(params.Trees,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("Growing trees"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
				trainOpts.OnTree = func() { bar.Add(1) }
			}

			model, report, err := flight.Train(examples, trainOpts)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}
			if err := flight.SaveModel(fc.ModelPath, model); err != nil {
				return err
			}
			if err := flight.WriteReport(fc.ReportPath, report); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Trained %d trees on %d rows (%d held out) in %s\n", report.Trees, report.TrainRows, report.HoldoutRows, report.Duration)
			fmt.Fprintf(out, "MAE %.2f  RMSE %.2f  R2 %.4f\n", report.Holdout.MAE, report.Holdout.RMSE, report.Holdout.R2)
			fmt.Fprintf(out, "Model saved to %s, report to %s\n", fc.ModelPath, fc.ReportPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "", "training workbook (default flight.train_path)")
	cmd.Flags().IntVar(&trees, "trees", 0, "number of trees (default flight.trees)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}
