package commands

import (
	"context"
	"fmt"
	"guapassist-backend/internal/scrapers/guap"
	"guapassist-backend/internal/service"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var scrapeFlags struct {
	date      string
	year      int
	week      int
	semester  string
	contrType string
	teacher   string
	mark      string
	force     bool
	json      bool
}

func init() {
	domains := make([]string, len(service.Domains))
	for i, d := range service.Domains {
		domains[i] = string(d)
	}
	scrapeCmd.ValidArgs = domains

	flags := scrapeCmd.Flags()
	addCredentialFlags(scrapeCmd)
	flags.StringVar(&scrapeFlags.date, "date", "", "Day of the daily schedule, YYYY-MM-DD.")
	flags.IntVar(&scrapeFlags.year, "year", 0, "ISO year of the weekly schedule.")
	flags.IntVar(&scrapeFlags.week, "week", 0, "ISO week of the weekly schedule.")
	flags.StringVar(&scrapeFlags.semester, "semester", "", "Only marks of this semester.")
	flags.StringVar(&scrapeFlags.contrType, "contr-type", "", "Only marks of this control type.")
	flags.StringVar(&scrapeFlags.teacher, "teacher", "", "Only marks given by a teacher with a similar name.")
	flags.StringVar(&scrapeFlags.mark, "mark", "", "Only marks with this value.")
	flags.BoolVar(&scrapeFlags.force, "force", false, "Ignore stored results.")
	flags.BoolVar(&scrapeFlags.json, "json", false, "Print only the extracted data as json.")

	rootCmd.AddCommand(scrapeCmd)
}

type scrapeSummary struct {
	domain    service.Domain
	count     int
	cached    bool
	updatedAt *time.Time
	data      any
}

func scrapeParams() service.Params {
	return service.Params{
		Date: scrapeFlags.date,
		Year: scrapeFlags.year,
		Week: scrapeFlags.week,
		MarkFilters: guap.MarkFilters{
			Semester:  scrapeFlags.semester,
			ContrType: scrapeFlags.contrType,
			Teacher:   scrapeFlags.teacher,
			Mark:      scrapeFlags.mark,
		},
	}
}

func scrapeRemote(ctx context.Context, req service.Request) (scrapeSummary, error) {
	res, err := newClient().Extract(ctx, req.Domain, req.Credentials, req.Params, req.Force)
	if err != nil {
		return scrapeSummary{}, err
	}
	return scrapeSummary{
		domain:    req.Domain,
		count:     res.Count,
		cached:    res.Cached,
		updatedAt: res.UpdatedAt,
		data:      res.Data,
	}, nil
}

func scrapeLocal(ctx context.Context, req service.Request) (scrapeSummary, error) {
	app, err := localStack(ctx)
	if err != nil {
		return scrapeSummary{}, err
	}
	defer app.Close(context.Background())

	res := app.Service.Extract(ctx, req)
	if !res.Success {
		return scrapeSummary{}, fmt.Errorf("%s failure: %s", res.ErrorKind, res.Message)
	}
	return scrapeSummary{
		domain:    req.Domain,
		count:     res.Count,
		cached:    res.Cached,
		updatedAt: res.UpdatedAt,
		data:      res.Data,
	}, nil
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <domain>",
	Short: "Extracts one domain (tasks, marks, reports, daily-schedule, schedule or profile) of an account.",
	Args:  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, err := service.ParseDomain(args[0])
		if err != nil {
			return err
		}
		creds, err := credentials(cmd)
		if err != nil {
			return err
		}
		req := service.Request{
			Domain:      domain,
			Credentials: creds,
			Params:      scrapeParams(),
			Force:       scrapeFlags.force,
		}

		var summary scrapeSummary
		if remote() {
			summary, err = scrapeRemote(cmd.Context(), req)
		} else {
			summary, err = scrapeLocal(cmd.Context(), req)
		}
		if err != nil {
			return err
		}

		err = printJSON(summary.data)
		if err != nil || scrapeFlags.json {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Domain", "Count", "Cached", "Updated at"})
		t.AppendRow(table.Row{summary.domain, summary.count, summary.cached, formatTime(summary.updatedAt)})
		t.Render()
		return nil
	},
}
