package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ignatij/goclassify/pkg/report"
	"github.com/ignatij/goclassify/pkg/storage"
	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [task]",
		Short: "Summary statistics of a numeric response field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			field, _ := cmd.Flags().GetString("field")
			breakpoints, _ := cmd.Flags().GetInt("breakpoints")
			sinceFlag, _ := cmd.Flags().GetString("since")
			since, err := report.ParseSince(sinceFlag)
			if err != nil {
				return err
			}
			store, err := initStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			st, err := report.NewReporter(store).Summarize(args[0], field, since, breakpoints)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().String("field", "", "Numeric response field")
	cmd.Flags().Int("breakpoints", report.DefaultBreakpoints, "Number of percentile steps")
	cmd.Flags().String("since", "", "Only count responses from this date (YYYY-MM-DD) on")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [task]",
		Short: "Export responses joined with their inputs as CSV",
		Long: `Export one CSV row per response: the requested input columns (id,
external_id, category, created_at, status or any input field) followed by
every response field. Filters take the form field<op>value with op one of
=, !=, <, <=, >, >= and apply to response fields.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			output, _ := cmd.Flags().GetString("output")
			columns, _ := cmd.Flags().GetStringSlice("columns")
			where, _ := cmd.Flags().GetStringArray("where")
			category, _ := cmd.Flags().GetString("category")
			sinceFlag, _ := cmd.Flags().GetString("since")

			filter := storage.ResponseFilter{Category: category}
			if filter.Since, err = report.ParseSince(sinceFlag); err != nil {
				return err
			}
			for _, expr := range where {
				p, err := storage.ParsePredicate(strings.TrimSpace(expr))
				if err != nil {
					return err
				}
				filter.Predicates = append(filter.Predicates, p)
			}
			if len(columns) == 0 {
				columns = nil
			}

			store, err := initStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := report.NewReporter(store).Export(w, args[0], filter, columns)
			if err != nil {
				return err
			}
			if w != cmd.OutOrStdout() {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d responses to %s\n", n, output)
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "-", "Output file, - for stdout")
	cmd.Flags().StringSlice("columns", nil, "Input columns to include (default id,external_id,category,created_at)")
	cmd.Flags().StringArray("where", nil, "Response filter such as 'score>=7', repeatable")
	cmd.Flags().String("category", "", "Only export inputs of this category")
	cmd.Flags().String("since", "", "Only export responses from this date (YYYY-MM-DD) on")
	return cmd
}
