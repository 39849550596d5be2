package commands

import (
	"errors"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(logoutCmd)
	logoutCmd.Flags().Bool("purge", false, "Also remove every stored result of the account.")
}

var errServerRequired = errors.New("this command needs a guap-server, pass --server")

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Lists the sessions held by a guap-server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !remote() {
			return errServerRequired
		}
		c := newClient()
		sessions, err := c.Sessions(cmd.Context())
		if err != nil {
			return err
		}
		stats, err := c.Stats(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Username", "Created", "Last activity", "Valid", "Leased"})
		for _, s := range sessions {
			t.AppendRow(table.Row{
				s.Username,
				formatTime(&s.CreatedAt),
				formatTime(&s.LastActivityAt),
				s.Valid,
				s.Leased,
			})
		}
		t.AppendFooter(table.Row{"Total", stats.Total, "Active", stats.Active, ""})
		t.Render()
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout <username>",
	Short: "Closes the session of an account on a guap-server.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !remote() {
			return errServerRequired
		}
		purge, _ := cmd.Flags().GetBool("purge")
		res, err := newClient().Logout(cmd.Context(), args[0], purge)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Username", "Forgotten results"})
		t.AppendRow(table.Row{res.Username, res.Forgotten})
		t.Render()
		return nil
	},
}
