package guap

import (
	"context"
	"errors"
	"fmt"
	"guapassist-backend/internal/browser"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/retry"
	"guapassist-backend/internal/scraperr"
	"guapassist-backend/internal/session"
	"guapassist-backend/lib/academic"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("guapassist.scrapers.guap")

const (
	portalURL        = "https://pro.guap.ru"
	profileURL       = portalURL + "/inside/profile"
	tasksURL         = portalURL + "/inside/student/tasks/"
	reportsURL       = portalURL + "/inside/student/reports/"
	marksURL         = portalURL + "/inside/student/marks/new"
	dayScheduleURL   = portalURL + "/inside/students/classes/schedule/day/"
	weekScheduleURL  = portalURL + "/inside/students/classes/schedule/week/"
	ssoHost          = "sso.guap.ru"
	dateLayout       = "2006-01-02"
	pageRowsSelector = "table tbody tr"
)

var (
	tableReady    = []string{"table", ".alert.alert-info"}
	marksReady    = []string{markCardSelector, ".alert.alert-info"}
	scheduleReady = []string{"table.table-bordered", ".alert.alert-info"}
	profileReady  = []string{".card"}
)

const (
	report_engine_extract = "engine.extract"
	report_engine_records = "engine.records"
	report_engine_retry   = "engine.retry"
)

// Sessions hands out exclusive leases on signed in sessions.
//
// note: fault injection point
type Sessions interface {
	Acquire(ctx context.Context, creds session.Credentials) (*session.Lease, error)
	InvalidateSession(ctx context.Context, username string)
}

type EngineTimeouts struct {
	Navigation time.Duration `json:"navigation"`
	// Ready bounds the wait for the data container of a view.
	Ready time.Duration `json:"ready"`
}

type EngineOptions struct {
	Timeouts EngineTimeouts
	Policy   retry.Policy
	// InvertWeekParity flips the parity of ISO weeks for years where the
	// university counts the first week as odd.
	InvertWeekParity bool
}

func (o EngineOptions) withDefaults() EngineOptions {
	if o.Timeouts.Navigation <= 0 {
		o.Timeouts.Navigation = 30 * time.Second
	}
	if o.Timeouts.Ready <= 0 {
		o.Timeouts.Ready = 10 * time.Second
	}
	if o.Policy.MaxAttempts <= 0 {
		o.Policy = retry.ParserPolicy
	}
	return o
}

// Engine extracts records from the portal through leased sessions. Every
// extraction is retried with the parser policy.
type Engine struct {
	sessions Sessions
	tel      telemetry.API
	opts     EngineOptions
}

func NewEngine(sessions Sessions, tel telemetry.API, opts EngineOptions) *Engine {
	return &Engine{
		sessions: sessions,
		tel:      telemetry.NewScopedAPI("guap", tel),
		opts:     opts.withDefaults(),
	}
}

func validateCredentials(creds session.Credentials) error {
	if creds.Empty() {
		return scraperr.Validation("engine.validate", "username and password are required")
	}
	return nil
}

func isInvalidCredentials(err error) bool {
	return errors.Is(err, session.ErrInvalidCredentials)
}

// extract runs fn on a leased page under the parser retry policy. A failure
// that leaves the page unusable invalidates the session after the lease is
// given back.
func extract[T any](
	ctx context.Context,
	e *Engine,
	domain string,
	creds session.Credentials,
	fn func(ctx context.Context, page browser.Page) (T, error),
) (T, error) {
	ctx, span := tracer.Start(ctx, "extract")
	defer span.End()
	span.SetAttributes(attribute.String("domain", domain))

	var zero T
	if err := validateCredentials(creds); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}

	res, err := retry.WithParserRetry(
		ctx,
		e.opts.Policy,
		creds.Username,
		e.sessions,
		func(ctx context.Context) (T, error) {
			lease, err := e.sessions.Acquire(ctx, creds)
			if err != nil {
				return zero, err
			}
			res, err := fn(ctx, lease.Page())
			lease.Release()
			if err != nil && scraperr.IsSessionFatal(err) {
				e.sessions.InvalidateSession(ctx, creds.Username)
			}
			return res, err
		},
		retry.WithStop(isInvalidCredentials),
		retry.WithObserver(func(attempt retry.Attempt) {
			e.tel.ReportCount(report_engine_retry, 1)
		}),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !scraperr.IsValidation(err) && !scraperr.IsAuth(err) {
			e.tel.ReportWarning(report_engine_extract, domain, creds.Username, err)
		}
		return zero, err
	}
	return res, nil
}

func (e *Engine) checkLoggedIn(ctx context.Context, page browser.Page) (*url.URL, error) {
	location, err := page.Location(ctx)
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return nil, scraperr.Wrapf(scraperr.KindContentShape, "engine.open", err, "unreadable location %q", location)
	}
	if parsed.Hostname() == ssoHost {
		return nil, scraperr.New(scraperr.KindAuthentication, "engine.open", "session is no longer signed in")
	}
	return parsed, nil
}

// snapshot parses the rendered document of page.
func (e *Engine) snapshot(ctx context.Context, page browser.Page) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "snapshot")
	defer span.End()

	body, err := page.HTML(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, scraperr.Wrapf(scraperr.KindContentShape, "engine.snapshot", err, "parse document")
	}
	return doc, nil
}

func (e *Engine) waitReady(ctx context.Context, page browser.Page, ready []string) error {
	_, err := page.WaitAny(ctx, ready, e.opts.Timeouts.Ready)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if scraperr.IsSessionFatal(err) {
		return err
	}
	return scraperr.Wrapf(scraperr.KindContentShape, "engine.ready", err, "view did not render")
}

// open navigates to target, waits until one of the ready selectors matches
// and returns the location and the parsed document.
func (e *Engine) open(ctx context.Context, page browser.Page, target string, ready []string) (*url.URL, *goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "open")
	defer span.End()
	span.SetAttributes(attribute.String("url", target))

	fail := func(err error) (*url.URL, *goquery.Document, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	err := page.Navigate(ctx, target, e.opts.Timeouts.Navigation)
	if err != nil {
		return fail(err)
	}
	base, err := e.checkLoggedIn(ctx, page)
	if err != nil {
		return fail(err)
	}
	err = e.waitReady(ctx, page, ready)
	if err != nil {
		return fail(err)
	}
	doc, err := e.snapshot(ctx, page)
	if err != nil {
		return fail(err)
	}
	return base, doc, nil
}

// advance follows a pagination control, by its href when it has one and by
// clicking it otherwise.
func (e *Engine) advance(page browser.Page) advanceFunc {
	return func(ctx context.Context, control PageControl) (*goquery.Document, error) {
		if control.Href != "" {
			err := page.Navigate(ctx, control.Href, e.opts.Timeouts.Navigation)
			if err != nil {
				return nil, err
			}
		} else {
			navigated, stop := page.ExpectNavigation()
			defer stop()

			err := page.Click(ctx, control.Selector)
			if err != nil {
				return nil, err
			}
			timer := time.NewTimer(e.opts.Timeouts.Navigation)
			defer timer.Stop()
			select {
			case <-navigated:
			case <-timer.C:
				e.tel.ReportDebug("no navigation after clicking a page control", control.Selector)
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		_, err := e.checkLoggedIn(ctx, page)
		if err != nil {
			return nil, err
		}
		err = e.waitReady(ctx, page, []string{pageRowsSelector})
		if err != nil {
			return nil, err
		}
		return e.snapshot(ctx, page)
	}
}

type TasksResult struct {
	Tasks []Task `json:"tasks"`
	// Total is the record count the portal announces, 0 if it shows none.
	Total int `json:"total"`
	Count int `json:"count"`
	Pages int `json:"pages"`
}

// Tasks extracts every assignment across all pages of the assignments table.
func (e *Engine) Tasks(ctx context.Context, creds session.Credentials) (TasksResult, error) {
	return extract(ctx, e, "tasks", creds, func(ctx context.Context, page browser.Page) (TasksResult, error) {
		base, doc, err := e.open(ctx, page, tasksURL, tableReady)
		if err != nil {
			return TasksResult{}, err
		}
		total := ParseTotal(doc)
		tasks, pages, err := collectPages(ctx, base, doc, total, ParseTasks, Task.key, e.advance(page))
		if err != nil {
			return TasksResult{}, err
		}
		e.tel.ReportCount(report_engine_records, int64(len(tasks)))
		return TasksResult{
			Tasks: tasks,
			Total: total,
			Count: len(tasks),
			Pages: pages,
		}, nil
	})
}

type ReportsResult struct {
	Reports []Report `json:"reports"`
	Total   int      `json:"total"`
	Count   int      `json:"count"`
	Pages   int      `json:"pages"`
}

// Reports extracts every uploaded report across all pages of the reports table.
func (e *Engine) Reports(ctx context.Context, creds session.Credentials) (ReportsResult, error) {
	return extract(ctx, e, "reports", creds, func(ctx context.Context, page browser.Page) (ReportsResult, error) {
		base, doc, err := e.open(ctx, page, reportsURL, tableReady)
		if err != nil {
			return ReportsResult{}, err
		}
		total := ParseTotal(doc)
		reports, pages, err := collectPages(ctx, base, doc, total, ParseReports, Report.key, e.advance(page))
		if err != nil {
			return ReportsResult{}, err
		}
		e.tel.ReportCount(report_engine_records, int64(len(reports)))
		return ReportsResult{
			Reports: reports,
			Total:   total,
			Count:   len(reports),
			Pages:   pages,
		}, nil
	})
}

// MarksURL is the grades page narrowed down by filters.
func MarksURL(filters MarkFilters) string {
	return marksURL + "?" + filters.Query().Encode()
}

type MarksResult struct {
	Marks []Mark `json:"marks"`
	Count int    `json:"count"`
	// Filters are the filters that were applied, free text resolved to
	// option values.
	Filters   MarkFilters       `json:"filters"`
	Available MarkFilterOptions `json:"available_filters"`
}

// Marks extracts the grade cards. Free text filters are resolved against the
// options of the unfiltered page first.
func (e *Engine) Marks(ctx context.Context, creds session.Credentials, filters MarkFilters) (MarksResult, error) {
	return extract(ctx, e, "marks", creds, func(ctx context.Context, page browser.Page) (MarksResult, error) {
		resolved := filters
		if filters.NeedsResolution() {
			_, doc, err := e.open(ctx, page, MarksURL(MarkFilters{}), marksReady)
			if err != nil {
				return MarksResult{}, err
			}
			resolved, err = ParseMarkFilterOptions(doc).Resolve(filters)
			if err != nil {
				return MarksResult{}, err
			}
		}

		base, doc, err := e.open(ctx, page, MarksURL(resolved), marksReady)
		if err != nil {
			return MarksResult{}, err
		}
		marks := ParseMarks(base, doc)
		e.tel.ReportCount(report_engine_records, int64(len(marks)))
		return MarksResult{
			Marks:     marks,
			Count:     len(marks),
			Filters:   resolved,
			Available: ParseMarkFilterOptions(doc),
		}, nil
	})
}

type DayScheduleResult struct {
	Date    string          `json:"date"`
	Classes []ScheduleClass `json:"classes"`
	Count   int             `json:"count"`
}

// DaySchedule extracts the classes of date, formatted as YYYY-MM-DD.
func (e *Engine) DaySchedule(ctx context.Context, creds session.Credentials, date string) (DayScheduleResult, error) {
	if err := validateCredentials(creds); err != nil {
		return DayScheduleResult{}, err
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return DayScheduleResult{}, scraperr.Validation("engine.day-schedule", fmt.Sprintf("date %q is not formatted as YYYY-MM-DD", date))
	}

	return extract(ctx, e, "daily-schedule", creds, func(ctx context.Context, page browser.Page) (DayScheduleResult, error) {
		_, doc, err := e.open(ctx, page, dayScheduleURL+date, scheduleReady)
		if err != nil {
			return DayScheduleResult{}, err
		}
		classes := ParseDaySchedule(doc)
		e.tel.ReportCount(report_engine_records, int64(len(classes)))
		return DayScheduleResult{
			Date:    date,
			Classes: classes,
			Count:   len(classes),
		}, nil
	})
}

type WeekScheduleResult struct {
	Year         int             `json:"year"`
	Week         int             `json:"week"`
	IsEvenWeek   bool            `json:"is_even_week"`
	Days         []ScheduleDay   `json:"days"`
	ExtraClasses []ScheduleClass `json:"extra_classes"`
}

// WeekSchedule extracts the classes of an ISO week.
func (e *Engine) WeekSchedule(ctx context.Context, creds session.Credentials, year, week int) (WeekScheduleResult, error) {
	if err := validateCredentials(creds); err != nil {
		return WeekScheduleResult{}, err
	}
	if year < 1 {
		return WeekScheduleResult{}, scraperr.Validation("engine.week-schedule", fmt.Sprintf("invalid year %d", year))
	}
	if week < 1 || week > 53 {
		return WeekScheduleResult{}, scraperr.Validation("engine.week-schedule", fmt.Sprintf("week %d is not between 1 and 53", week))
	}

	return extract(ctx, e, "schedule", creds, func(ctx context.Context, page browser.Page) (WeekScheduleResult, error) {
		target := fmt.Sprintf("%s%d/%d", weekScheduleURL, year, week)
		_, doc, err := e.open(ctx, page, target, scheduleReady)
		if err != nil {
			return WeekScheduleResult{}, err
		}
		schedule := ParseWeekSchedule(doc)
		e.tel.ReportCount(report_engine_records, int64(len(schedule.Days)))
		return WeekScheduleResult{
			Year:         year,
			Week:         week,
			IsEvenWeek:   academic.IsEvenWeek(week, e.opts.InvertWeekParity),
			Days:         schedule.Days,
			ExtraClasses: schedule.ExtraClasses,
		}, nil
	})
}

type ProfileResult struct {
	Profile Profile `json:"profile"`
	// CurrentSemester is filled in by callers that know the date, it stays
	// 0 if the admission year is unknown.
	CurrentSemester int `json:"current_semester,omitempty"`
}

func (e *Engine) Profile(ctx context.Context, creds session.Credentials) (ProfileResult, error) {
	return extract(ctx, e, "profile", creds, func(ctx context.Context, page browser.Page) (ProfileResult, error) {
		base, doc, err := e.open(ctx, page, profileURL, profileReady)
		if err != nil {
			return ProfileResult{}, err
		}
		return ProfileResult{Profile: ParseProfile(base, doc)}, nil
	})
}
