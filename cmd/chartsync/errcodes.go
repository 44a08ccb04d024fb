package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/chartsync/internal/errors"
)

func errorsCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "errors [CODE]",
		Short: "List error codes or explain one",
		Long: `List the error codes chartsync reports, or explain a single code.

Examples:
  chartsync errors
  chartsync errors --category storage
  chartsync errors E103`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return explainCode(cmd.OutOrStdout(), args[0])
			}
			return listCodes(cmd.OutOrStdout(), category)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only list codes in this category (config, storage, cli)")

	return cmd
}

func listCodes(w io.Writer, category string) error {
	codes := errors.Codes()
	if category != "" {
		codes = errors.ByCategory(errors.Category(category))
		if len(codes) == 0 {
			return errors.New("E301").
				WithDetail(fmt.Sprintf("no error codes in category %q", category)).
				WithExample("chartsync errors --category config")
		}
	}

	for _, code := range codes {
		t, _ := errors.Lookup(code)
		fmt.Fprintf(w, "%s  %-8s %s\n", code, t.Category, t.Message)
	}
	return nil
}

func explainCode(w io.Writer, code string) error {
	code = strings.ToUpper(code)
	t, ok := errors.Lookup(code)
	if !ok {
		return errors.New("E301").
			WithDetail(fmt.Sprintf("unknown error code %q", code)).
			WithExample("chartsync errors")
	}

	fmt.Fprintf(w, "%s: %s\n", code, t.Message)
	fmt.Fprintf(w, "Category: %s\n", t.Category)
	if t.Suggestion != "" {
		fmt.Fprintf(w, "Hint: %s\n", t.Suggestion)
	}
	return nil
}
