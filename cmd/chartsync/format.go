package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vango-dev/chartsync/internal/errors"
	"github.com/vango-dev/chartsync/pkg/format"
)

func formatCmd() *cobra.Command {
	var (
		precision int
		grouped   bool
	)

	cmd := &cobra.Command{
		Use:   "format VALUE",
		Short: "Format a number the way chart tooltips display it",
		Long: `Format a number with a fixed precision.

Values too small to show at the precision print as a bound,
for example "<0.01".

Examples:
  chartsync format 0.004
  chartsync format 1234567.891 --precision=2 --grouped`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return errors.New("E301").
					WithDetail(fmt.Sprintf("%q is not a number", args[0])).
					WithExample("chartsync format 12.5 --precision=1")
			}

			out := format.PrecisionFormatter(value, precision)
			if grouped {
				out = format.NumberFormatter(value, precision)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&precision, "precision", "p", 2, "Digits after the decimal point")
	cmd.Flags().BoolVarP(&grouped, "grouped", "g", false, "Group thousands with commas")

	return cmd
}
