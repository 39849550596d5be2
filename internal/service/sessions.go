package service

import (
	"context"
	"guapassist-backend/internal/scraperr"
	"guapassist-backend/internal/session"
	"guapassist-backend/internal/store"
	"guapassist-backend/internal/upstream"
	"log/slog"
)

type SessionState struct {
	Username string `json:"username"`
	Active   bool   `json:"active"`
	// Reused is true if InitSession found a working session.
	Reused    bool   `json:"reused,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// InitSession makes sure username has a working session, it reuses the
// existing one if it still passes the probe and signs in otherwise.
func (s *Service) InitSession(ctx context.Context, creds session.Credentials) Response {
	if creds.Empty() {
		return failure("", scraperr.Validation("service.init-session", "username and password are required"))
	}

	if existing := s.sessions.Lookup(creds); existing != nil {
		if s.sessions.IsSessionActive(ctx, creds.Username) {
			return Response{
				Success: true,
				Message: "session is active",
				Data: SessionState{
					Username:  creds.Username,
					Active:    true,
					Reused:    true,
					SessionID: existing.ID.String(),
				},
			}
		}
		slog.InfoContext(ctx, "existing session failed the probe, signing in again", "username", creds.Username)
	}

	created, err := s.sessions.CreateSession(ctx, creds)
	if err != nil {
		if !scraperr.IsAuth(err) {
			s.tel.ReportWarning(report_service_session, creds.Username, err)
		}
		return failure("", err)
	}
	return Response{
		Success: true,
		Message: "session created",
		Data: SessionState{
			Username:  creds.Username,
			Active:    true,
			SessionID: created.ID.String(),
		},
	}
}

// CheckSession reports whether username has a session that still works.
func (s *Service) CheckSession(ctx context.Context, username string) Response {
	if username == "" {
		return failure("", scraperr.Validation("service.check-session", "username is required"))
	}
	state := SessionState{Username: username}
	if s.sessions.GetSession(username) != nil {
		state.Active = s.sessions.IsSessionActive(ctx, username)
	}
	message := "no active session"
	if state.Active {
		message = "session is active"
	}
	return Response{Success: true, Message: message, Data: state}
}

type LogoutResult struct {
	Username string `json:"username"`
	// Forgotten is how many stored results were removed.
	Forgotten int `json:"forgotten"`
}

// Logout releases the session of username, purge also removes every stored
// result of the account.
func (s *Service) Logout(ctx context.Context, username string, purge bool) Response {
	if username == "" {
		return failure("", scraperr.Validation("service.logout", "username is required"))
	}
	s.InvalidateSession(ctx, username)

	result := LogoutResult{Username: username}
	if purge {
		forgotten, err := s.cache.Forget(ctx, username)
		if err != nil {
			s.tel.ReportWarning(report_service_cache, username, err)
			return failure("", err)
		}
		result.Forgotten = forgotten
	}
	return Response{Success: true, Message: "logged out", Data: result}
}

// InvalidateSession closes the session of username, if there is one.
func (s *Service) InvalidateSession(ctx context.Context, username string) {
	s.sessions.InvalidateSession(ctx, username)
}

func (s *Service) Stats() session.Stats {
	return s.sessions.Stats()
}

func (s *Service) Sessions() []session.Info {
	return s.sessions.Sessions()
}

// RecentOutcomes lists the latest extraction attempts of username.
func (s *Service) RecentOutcomes(ctx context.Context, username string, limit int) ([]store.Outcome, error) {
	if username == "" {
		return nil, scraperr.Validation("service.recent-outcomes", "username is required")
	}
	return s.log.Recent(ctx, username, limit)
}

type Health struct {
	Healthy  bool            `json:"healthy"`
	Sessions session.Stats   `json:"sessions"`
	Upstream upstream.Report `json:"upstream"`
}

func (s *Service) Health(ctx context.Context) Health {
	report := s.prober.Probe(ctx)
	return Health{
		Healthy:  report.Healthy,
		Sessions: s.sessions.Stats(),
		Upstream: report,
	}
}
