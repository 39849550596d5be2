// Package service serves extractions to callers: it picks between the stored
// result and a fresh extraction, persists what was extracted and logs every
// attempt.
package service

import (
	"context"
	"fmt"
	"guapassist-backend/internal/components/assert"
	"guapassist-backend/internal/components/chrono"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/scraperr"
	"guapassist-backend/internal/scrapers/guap"
	"guapassist-backend/internal/session"
	"guapassist-backend/internal/store"
	"guapassist-backend/internal/upstream"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("guapassist.service")

const (
	report_service_extract = "service.extract"
	report_service_cache   = "service.cache"
	report_service_session = "service.session"
)

// Extractor runs extractions against the portal.
//
// note: fault injection point
type Extractor interface {
	Tasks(ctx context.Context, creds session.Credentials) (guap.TasksResult, error)
	Reports(ctx context.Context, creds session.Credentials) (guap.ReportsResult, error)
	Marks(ctx context.Context, creds session.Credentials, filters guap.MarkFilters) (guap.MarksResult, error)
	DaySchedule(ctx context.Context, creds session.Credentials, date string) (guap.DayScheduleResult, error)
	WeekSchedule(ctx context.Context, creds session.Credentials, year, week int) (guap.WeekScheduleResult, error)
	Profile(ctx context.Context, creds session.Credentials) (guap.ProfileResult, error)
}

// Sessions is the part of the session registry exposed to callers.
//
// note: fault injection point
type Sessions interface {
	CreateSession(ctx context.Context, creds session.Credentials) (*session.Session, error)
	GetSession(username string) *session.Session
	Lookup(creds session.Credentials) *session.Session
	IsSessionActive(ctx context.Context, username string) bool
	InvalidateSession(ctx context.Context, username string)
	Stats() session.Stats
	Sessions() []session.Info
}

// Cache stores the latest result of every extraction.
//
// note: fault injection point
type Cache interface {
	Put(ctx context.Context, key store.Key, value any) (time.Time, error)
	Fresh(ctx context.Context, key store.Key, out any) (time.Time, bool, error)
	Forget(ctx context.Context, username string) (int, error)
}

// OutcomeLog records every extraction attempt.
//
// note: fault injection point
type OutcomeLog interface {
	Record(ctx context.Context, o store.Outcome)
	Recent(ctx context.Context, username string, limit int) ([]store.Outcome, error)
}

// Prober checks that the portal can be reached.
//
// note: fault injection point
type Prober interface {
	Probe(ctx context.Context) upstream.Report
}

type Options struct {
	// InvertWeekParity must match the engine's setting, it is used for
	// default weekly schedule parameters.
	InvertWeekParity bool
}

type Service struct {
	extractor Extractor
	sessions  Sessions
	cache     Cache
	log       OutcomeLog
	prober    Prober
	time      chrono.TimeAPI
	tel       telemetry.API
	opts      Options
}

func NewService(
	extractor Extractor,
	sessions Sessions,
	cache Cache,
	log OutcomeLog,
	prober Prober,
	timeApi chrono.TimeAPI,
	tel telemetry.API,
	opts Options,
) *Service {
	assert.NotNil(extractor, "extractor")
	assert.NotNil(sessions, "sessions")
	assert.NotNil(cache, "cache")
	assert.NotNil(log, "log")
	assert.NotNil(prober, "prober")
	assert.NotNil(timeApi, "time")
	assert.NotNil(tel, "tel")

	return &Service{
		extractor: extractor,
		sessions:  sessions,
		cache:     cache,
		log:       log,
		prober:    prober,
		time:      timeApi,
		tel:       telemetry.NewScopedAPI("service", tel),
		opts:      opts,
	}
}

type Domain string

const (
	DomainTasks         Domain = "tasks"
	DomainMarks         Domain = "marks"
	DomainReports       Domain = "reports"
	DomainDailySchedule Domain = "daily-schedule"
	DomainSchedule      Domain = "schedule"
	DomainProfile       Domain = "profile"
)

var Domains = []Domain{
	DomainTasks,
	DomainMarks,
	DomainReports,
	DomainDailySchedule,
	DomainSchedule,
	DomainProfile,
}

func ParseDomain(value string) (Domain, error) {
	for _, d := range Domains {
		if string(d) == value {
			return d, nil
		}
	}
	return "", scraperr.Validation("service.domain", fmt.Sprintf("unknown domain %q", value))
}

// Params narrows down an extraction, each domain reads only its own fields.
type Params struct {
	// Date of the daily schedule, YYYY-MM-DD, defaults to today.
	Date string `json:"date,omitempty"`
	// Year and Week of the weekly schedule, default to the current ISO week.
	Year int `json:"year,omitempty"`
	Week int `json:"week,omitempty"`

	guap.MarkFilters
}

type Request struct {
	Domain      Domain              `json:"domain"`
	Credentials session.Credentials `json:"credentials"`
	Params      Params              `json:"params"`
	// Force skips the stored result even if it is fresh.
	Force bool `json:"force"`
}

// Response is what every caller facing operation returns, failures are
// described by Message instead of an error.
type Response struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Domain    Domain     `json:"domain,omitempty"`
	Data      any        `json:"data,omitempty"`
	Count     int        `json:"count"`
	Cached    bool       `json:"cached"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	ErrorKind string     `json:"error_kind,omitempty"`

	kind scraperr.Kind
}

// Kind is the kind of the failure, meaningless on success.
func (r Response) Kind() scraperr.Kind {
	return r.kind
}

func failure(domain Domain, err error) Response {
	kind := scraperr.KindOf(err)
	return Response{
		Success:   false,
		Message:   scraperr.Message(err),
		Domain:    domain,
		ErrorKind: kind.String(),
		kind:      kind,
	}
}
