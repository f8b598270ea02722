package main

import (
	"fmt"

	"github.com/rewired-gh/forecastkit/internal/app"
	"github.com/spf13/cobra"
)

func newRegionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the regions available in the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.Context) error {
				for _, r := range a.Loader.Regions(cmd.Context()) {
					fmt.Fprintln(cmd.OutOrStdout(), r)
				}
				return nil
			})
		},
	}
}
