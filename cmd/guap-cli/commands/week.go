package commands

import (
	"guapassist-backend/internal/components/chrono"
	"guapassist-backend/lib/academic"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var weekInvert bool

func init() {
	weekCmd.Flags().BoolVar(&weekInvert, "invert", false, "Flip the parity of ISO weeks.")
	rootCmd.AddCommand(weekCmd)
}

var weekCmd = &cobra.Command{
	Use:   "week [YYYY-MM-DD]",
	Short: "Prints the ISO week, its parity and the academic year of a day, today by default.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		day := chrono.NewStandardTime().Now()
		if len(args) == 1 {
			parsed, err := time.ParseInLocation(time.DateOnly, args[0], chrono.MSK())
			if err != nil {
				return err
			}
			day = parsed
		}

		week := academic.WeekOf(day, weekInvert)
		parity := "odd"
		if week.Even {
			parity = "even"
		}

		t := newTable()
		t.AppendHeader(table.Row{"Date", "ISO year", "Week", "Parity", "Academic year"})
		t.AppendRow(table.Row{day.Format(time.DateOnly), week.Year, week.Number, parity, academic.AcademicYear(day)})
		t.Render()
		return nil
	},
}
