package service

import (
	"context"
	"encoding/json"
	"fmt"
	"guapassist-backend/internal/scraperr"
	"guapassist-backend/internal/session"
	"guapassist-backend/internal/store"
	"guapassist-backend/lib/academic"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// stored is what is persisted per extraction, Data is kept raw so a stored
// result is served without knowing its type.
type stored struct {
	Data  json.RawMessage `json:"data"`
	Count int             `json:"count"`
}

type extraction struct {
	data  any
	count int
}

type domainHandler struct {
	// variant derives the cache variant from defaulted params.
	variant func(p Params) string
	run     func(ctx context.Context, s *Service, creds session.Credentials, p Params) (extraction, error)
}

var handlers = map[Domain]domainHandler{
	DomainTasks: {
		variant: func(Params) string { return "" },
		run: func(ctx context.Context, s *Service, creds session.Credentials, _ Params) (extraction, error) {
			res, err := s.extractor.Tasks(ctx, creds)
			return extraction{data: res, count: res.Count}, err
		},
	},
	DomainReports: {
		variant: func(Params) string { return "" },
		run: func(ctx context.Context, s *Service, creds session.Credentials, _ Params) (extraction, error) {
			res, err := s.extractor.Reports(ctx, creds)
			return extraction{data: res, count: res.Count}, err
		},
	},
	DomainMarks: {
		variant: func(p Params) string {
			f := p.MarkFilters
			return store.TupleVariant(f.Semester, f.ContrType, f.Teacher, f.Mark)
		},
		run: func(ctx context.Context, s *Service, creds session.Credentials, p Params) (extraction, error) {
			res, err := s.extractor.Marks(ctx, creds, p.MarkFilters)
			return extraction{data: res, count: res.Count}, err
		},
	},
	DomainDailySchedule: {
		variant: func(p Params) string { return store.DateVariant(p.Date) },
		run: func(ctx context.Context, s *Service, creds session.Credentials, p Params) (extraction, error) {
			res, err := s.extractor.DaySchedule(ctx, creds, p.Date)
			return extraction{data: res, count: res.Count}, err
		},
	},
	DomainSchedule: {
		variant: func(p Params) string { return store.WeekVariant(p.Year, p.Week) },
		run: func(ctx context.Context, s *Service, creds session.Credentials, p Params) (extraction, error) {
			res, err := s.extractor.WeekSchedule(ctx, creds, p.Year, p.Week)
			count := len(res.ExtraClasses)
			for _, day := range res.Days {
				count += len(day.Classes)
			}
			return extraction{data: res, count: count}, err
		},
	},
	DomainProfile: {
		variant: func(Params) string { return "" },
		run: func(ctx context.Context, s *Service, creds session.Credentials, _ Params) (extraction, error) {
			res, err := s.extractor.Profile(ctx, creds)
			if err != nil {
				return extraction{}, err
			}
			if admission := res.Profile.AdmissionYear(); admission > 0 {
				res.CurrentSemester = academic.CurrentSemester(admission, s.time.Now())
			}
			return extraction{data: res, count: 1}, nil
		},
	},
}

func (s *Service) withDefaults(domain Domain, p Params) Params {
	now := s.time.Now()
	switch domain {
	case DomainDailySchedule:
		if p.Date == "" {
			p.Date = now.Format("2006-01-02")
		}
	case DomainSchedule:
		if p.Year == 0 || p.Week == 0 {
			week := academic.WeekOf(now, s.opts.InvertWeekParity)
			if p.Year == 0 {
				p.Year = week.Year
			}
			if p.Week == 0 {
				p.Week = week.Number
			}
		}
	}
	return p
}

// Extract serves req from the stored result if it is fresh and Force is not
// set, otherwise it extracts from the portal and stores the result.
func (s *Service) Extract(ctx context.Context, req Request) Response {
	ctx, span := tracer.Start(ctx, "Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("domain", string(req.Domain)),
		attribute.Bool("force", req.Force),
	)

	handler, ok := handlers[req.Domain]
	if !ok {
		return failure(req.Domain, scraperr.Validation("service.extract", fmt.Sprintf("unknown domain %q", req.Domain)))
	}
	if req.Credentials.Empty() {
		return failure(req.Domain, scraperr.Validation("service.extract", "username and password are required"))
	}

	params := s.withDefaults(req.Domain, req.Params)
	key := store.Key{
		Username: req.Credentials.Username,
		Domain:   string(req.Domain),
		Variant:  handler.variant(params),
	}

	if !req.Force {
		var cached stored
		updatedAt, fresh, err := s.cache.Fresh(ctx, key, &cached)
		if err != nil {
			s.tel.ReportWarning(report_service_cache, key.String(), err)
		}
		if fresh {
			// stored results are only handed to credentials the portal accepted
			if s.sessions.Lookup(req.Credentials) == nil {
				_, err := s.sessions.CreateSession(ctx, req.Credentials)
				if err != nil {
					if !scraperr.IsAuth(err) {
						s.tel.ReportWarning(report_service_session, req.Credentials.Username, err)
					}
					return failure(req.Domain, err)
				}
			}
			slog.DebugContext(ctx, "extraction cache hit", "key", key.String())
			span.SetAttributes(attribute.Bool("cached", true))
			return Response{
				Success:   true,
				Domain:    req.Domain,
				Data:      cached.Data,
				Count:     cached.Count,
				Cached:    true,
				UpdatedAt: &updatedAt,
			}
		}
	}

	res, err := handler.run(ctx, s, req.Credentials, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Record(ctx, store.Outcome{
			Username:     req.Credentials.Username,
			Domain:       string(req.Domain),
			Success:      false,
			ErrorMessage: scraperr.Message(err),
		})
		if !scraperr.IsValidation(err) && !scraperr.IsAuth(err) {
			s.tel.ReportWarning(report_service_extract, key.String(), err)
		}
		return failure(req.Domain, err)
	}

	updatedAt := s.time.Now()
	encoded, err := json.Marshal(res.data)
	if err == nil {
		updatedAt, err = s.cache.Put(ctx, key, stored{Data: encoded, Count: res.count})
	}
	if err != nil {
		s.tel.ReportWarning(report_service_cache, key.String(), err)
		updatedAt = s.time.Now()
	}

	s.log.Record(ctx, store.Outcome{
		Username:   req.Credentials.Username,
		Domain:     string(req.Domain),
		Success:    true,
		ItemsCount: res.count,
	})
	slog.InfoContext(
		ctx, "extraction finished",
		"domain", req.Domain,
		"username", req.Credentials.Username,
		"count", res.count,
	)

	return Response{
		Success:   true,
		Domain:    req.Domain,
		Data:      res.data,
		Count:     res.count,
		UpdatedAt: &updatedAt,
	}
}
