package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/comps-cli/internal/runlog"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent sync runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		conn, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		entries, err := runlog.NewLedger(conn).List(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs")
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No runs found.")
			return nil
		}
		formatRuns(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "maximum number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func formatRuns(w io.Writer, entries []runlog.Entry) {
	headers := []string{"ID", "Category", "Table", "Status", "Started", "Duration", "Processed", "Saved", "Missing", "Failed", "Rows", "Error"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		category := e.Category
		if category == "" {
			category = "*"
		}
		rows = append(rows, []string{
			shortID(e.ID),
			category,
			e.Table,
			string(e.Status),
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Duration().Round(time.Second).String(),
			strconv.FormatInt(e.Processed, 10),
			strconv.FormatInt(e.Saved, 10),
			strconv.FormatInt(e.Missing, 10),
			strconv.FormatInt(e.Failed, 10),
			strconv.FormatInt(e.Rows, 10),
			truncate(e.Error, 60),
		})
	}
	fmt.Fprintln(w, renderTable(headers, rows, aligns))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
