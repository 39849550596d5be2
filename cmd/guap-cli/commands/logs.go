package commands

import (
	"context"
	"guapassist-backend/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var logsLimit int

func init() {
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 20, "How many attempts to show.")
	rootCmd.AddCommand(logsCmd)
}

var logsCmd = &cobra.Command{
	Use:   "logs <username>",
	Short: "Shows the latest extraction attempts of an account.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var outcomes []store.Outcome
		if remote() {
			var err error
			outcomes, err = newClient().Logs(cmd.Context(), args[0], logsLimit)
			if err != nil {
				return err
			}
		} else {
			app, err := localStack(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close(context.Background())
			outcomes, err = app.Log.Recent(cmd.Context(), args[0], logsLimit)
			if err != nil {
				return err
			}
		}

		t := newTable()
		t.AppendHeader(table.Row{"When", "Domain", "Success", "Items", "Error"})
		for _, o := range outcomes {
			t.AppendRow(table.Row{
				formatTime(&o.CreatedAt),
				o.Domain,
				o.Success,
				o.ItemsCount,
				truncate(o.ErrorMessage, 60),
			})
		}
		t.Render()
		return nil
	},
}
