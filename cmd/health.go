package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/comps-cli/internal/config"
	"github.com/sells-group/comps-cli/internal/db"
	"github.com/sells-group/comps-cli/internal/monitoring"
	"github.com/sells-group/comps-cli/internal/runlog"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check recent sync runs against health thresholds",
	Long:  "Summarizes runs in the lookback window, evaluates failure, missing-rate and staleness thresholds, and posts any alerts to monitoring.webhook_url.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		failOnAlert, _ := cmd.Flags().GetBool("fail-on-alert")

		conn, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		snap, alerts, err := newChecker(conn, cfg.Monitoring).Check(ctx)
		if err != nil {
			return eris.Wrap(err, "health")
		}
		writeHealth(cmd.OutOrStdout(), snap, alerts)

		if failOnAlert && len(alerts) > 0 {
			return eris.Errorf("health: %d alert(s) triggered", len(alerts))
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().Bool("fail-on-alert", false, "exit non-zero when any alert triggers")
	rootCmd.AddCommand(healthCmd)
}

func newChecker(conn db.Conn, mc config.MonitoringConfig) *monitoring.Checker {
	return monitoring.NewChecker(
		monitoring.NewCollector(runlog.NewLedger(conn)),
		monitoring.NewAlerter(mc),
		mc,
	)
}

func writeHealth(w io.Writer, snap *monitoring.Snapshot, alerts []monitoring.Alert) {
	last := "never"
	if snap.LastSuccess != nil {
		last = snap.LastSuccess.Local().Format(time.RFC3339)
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Window", "Runs", "Complete", "Interrupted", "Failed", "Processed", "Missing", "Missing %", "Last Success"},
		[][]string{{
			strconv.Itoa(snap.LookbackHours) + "h",
			strconv.Itoa(snap.Runs),
			strconv.Itoa(snap.Complete),
			strconv.Itoa(snap.Interrupted),
			strconv.Itoa(snap.Failed),
			strconv.FormatInt(snap.Processed, 10),
			strconv.FormatInt(snap.Missing, 10),
			fmt.Sprintf("%.1f", snap.MissingRate*100),
			last,
		}},
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
	))

	if len(alerts) == 0 {
		fmt.Fprintln(w, "No alerts.")
		return
	}
	rows := make([][]string, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, []string{string(a.Type), a.Severity, a.Message})
	}
	fmt.Fprintln(w, renderTable([]string{"Alert", "Severity", "Message"}, rows, nil))
}
