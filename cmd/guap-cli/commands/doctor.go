package commands

import (
	"guapassist-backend/internal/components/chrono"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/upstream"
	"guapassist-backend/lib/restyutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func renderReport(report upstream.Report) {
	t := newTable()
	t.SetTitle("Upstream")
	t.AppendHeader(table.Row{"Target", "URL", "Reachable", "Status", "Latency (ms)", "Error"})
	for _, s := range report.Targets {
		t.AppendRow(table.Row{s.Name, s.URL, s.Reachable, s.StatusCode, s.LatencyMs, truncate(s.Error, 60)})
	}
	t.Render()
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Checks that the portal can be reached, and the guap-server if one is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if remote() {
			health, err := newClient().Health(cmd.Context())
			if err != nil {
				return err
			}
			renderReport(health.Upstream)

			t := newTable()
			t.SetTitle("Server")
			t.AppendHeader(table.Row{"Healthy", "Sessions", "Active", "Expired"})
			t.AppendRow(table.Row{health.Healthy, health.Sessions.Total, health.Sessions.Active, health.Sessions.Expired})
			t.Render()
			return nil
		}

		opts := upstream.Options{}
		if verbose {
			opts.Dump = restyutil.DevOutput("upstream")
		}
		prober := upstream.NewProber(chrono.NewStandardTime(), telemetry.SlogAPI{}, opts)
		renderReport(prober.Probe(cmd.Context()))
		return nil
	},
}
