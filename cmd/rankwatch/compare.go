package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FranksOps/rankwatch/internal/config"
	"github.com/FranksOps/rankwatch/internal/report"
)

func newCompareCmd(a *app) *cobra.Command {
	var (
		output     string
		rankColumn string
	)
	cmd := &cobra.Command{
		Use:   "compare CURRENT PREVIOUS",
		Short: "Add rank changes to an existing report without searching again",
		Long: "compare joins two reports on their keyword column and inserts previous_rank, rank_diff and " +
			"rank_change after the target rank column. Either argument may be sheet:<tab> to read a spreadsheet tab.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			so := sheetOptions{
				SpreadsheetID:   a.v.GetString(config.KeySpreadsheetID),
				CredentialsFile: a.v.GetString(config.KeyCredentials),
			}

			current, err := loadTable(ctx, args[0], so, a.logger)
			if err != nil {
				return err
			}
			previous, err := loadTable(ctx, args[1], so, a.logger)
			if err != nil {
				return err
			}

			out, deltas, err := report.Compare(current, previous, rankColumn)
			if err != nil {
				return err
			}
			if output == "" {
				output = args[0]
			}
			if err := saveTable(ctx, out, []string{output}, so, a.logger); err != nil {
				return err
			}

			con := newConsole(cmd.OutOrStdout(), 0)
			con.heading(fmt.Sprintf("Changes from %s to %s", args[1], args[0]))
			con.changes(deltas)

			s := report.GenerateSummary(nil, nil, deltas)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d improved, %d worsened, %d unchanged, %d n/a; written to %s\n",
				s.Improved, s.Worsened, s.Unchanged, s.Unavailable, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "where to write the compared report (default: overwrite CURRENT)")
	cmd.Flags().StringVar(&rankColumn, "rank-column", "", "target rank column (default: first *_rank column)")
	return cmd
}
