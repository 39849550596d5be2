package session

import (
	"context"
	"fmt"
	"guapassist-backend/internal/browser"
	"guapassist-backend/internal/components/assert"
	"guapassist-backend/internal/components/chrono"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/scraperr"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	report_manager_create  = "manager.create"
	report_manager_close   = "manager.close"
	report_manager_count   = "manager.sessions"
	report_manager_acquire = "manager.acquire"
)

type Options struct {
	// Timeout is how long a session may stay idle before it expires.
	Timeout time.Duration `json:"timeout"`
	// ProbeURL is navigated to by IsSessionActive, a logged in page stays on
	// its host.
	ProbeURL     string        `json:"probe_url"`
	ProbeTimeout time.Duration `json:"probe_timeout"`
	// CreateTimeout bounds a whole browser launch and sign-in.
	CreateTimeout time.Duration `json:"create_timeout"`
	// LoginsPerMinute limits how many sign-ins are started across all accounts.
	LoginsPerMinute  int `json:"logins_per_minute"`
	CloseConcurrency int `json:"close_concurrency"`
}

func (o Options) withDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Minute
	}
	if o.ProbeURL == "" {
		o.ProbeURL = "https://pro.guap.ru/inside/profile"
	}
	if o.ProbeTimeout == 0 {
		o.ProbeTimeout = 15 * time.Second
	}
	if o.CreateTimeout == 0 {
		o.CreateTimeout = 90 * time.Second
	}
	if o.LoginsPerMinute == 0 {
		o.LoginsPerMinute = 30
	}
	if o.CloseConcurrency == 0 {
		o.CloseConcurrency = 8
	}
	return o
}

type Manager struct {
	launcher browser.Launcher
	auth     Authenticator
	time     chrono.TimeAPI
	tel      telemetry.API
	opts     Options
	probe    *url.URL

	flight  singleflight.Group
	limiter *rate.Limiter

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(
	launcher browser.Launcher,
	auth Authenticator,
	timeApi chrono.TimeAPI,
	tel telemetry.API,
	opts Options,
) *Manager {
	assert.NotNil(launcher, "launcher")
	assert.NotNil(auth, "auth")
	assert.NotNil(timeApi, "time")
	assert.NotNil(tel, "tel")

	opts = opts.withDefaults()
	probe, err := url.Parse(opts.ProbeURL)
	if err != nil {
		panic(fmt.Sprintf("invalid probe url: %v", err))
	}

	return &Manager{
		launcher: launcher,
		auth:     auth,
		time:     timeApi,
		tel:      telemetry.NewScopedAPI("session", tel),
		opts:     opts,
		probe:    probe,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.LoginsPerMinute)), 3),
		sessions: map[string]*Session{},
	}
}

func (m *Manager) isValidLocked(s *Session, now time.Time) bool {
	return s.valid && now.Sub(s.lastActivityAt) < m.opts.Timeout
}

// CreateSession launches a browser and signs in, any session already held
// for the account is released. Concurrent calls for the same credentials
// share one sign-in.
func (m *Manager) CreateSession(ctx context.Context, creds Credentials) (*Session, error) {
	if creds.Empty() {
		return nil, scraperr.Validation("session.create", "username and password are required")
	}

	digest := creds.digest()
	key := creds.Username + "\x00" + string(digest[:])
	ch := m.flight.DoChan(key, func() (any, error) {
		// the sign-in is shared, so it must not die with whichever caller
		// happened to start it.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.CreateTimeout)
		defer cancel()
		return m.create(flightCtx, creds)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) create(ctx context.Context, creds Credentials) (*Session, error) {
	if old := m.detach(creds.Username, nil); old != nil {
		m.release(ctx, old)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return nil, &CreationError{Username: creds.Username, Err: scraperr.Wrap(scraperr.KindTransient, "session.create", err)}
	}

	page, err := m.launcher.Launch(ctx)
	if err != nil {
		m.tel.ReportBroken(report_manager_create, err, creds.Username)
		return nil, &CreationError{Username: creds.Username, Err: err}
	}

	location, err := m.auth.Login(ctx, page, creds)
	if err != nil {
		m.closePage(page)
		m.tel.ReportWarning(report_manager_create, err, creds.Username)
		return nil, &CreationError{Username: creds.Username, Err: err}
	}
	if !m.auth.IsLoginSuccessful(location) {
		msg := m.auth.FailureMessage(ctx, page)
		m.closePage(page)
		m.tel.ReportDebug("login rejected", creds.Username, location)
		return nil, &scraperr.Error{
			Kind:    scraperr.KindAuthentication,
			Op:      "session.create",
			Message: msg,
			Err:     ErrInvalidCredentials,
		}
	}

	s := newSession(creds, page, m.time.Now())

	m.mu.Lock()
	superseded := m.sessions[creds.Username]
	m.sessions[creds.Username] = s
	count := len(m.sessions)
	m.mu.Unlock()

	if superseded != nil {
		m.release(ctx, superseded)
	}
	m.tel.ReportCount(report_manager_count, int64(count))
	m.tel.ReportDebug("session created", creds.Username, s.ID.String())
	return s, nil
}

// GetSession returns the session for username if it is still valid and
// refreshes its activity, otherwise nil.
func (m *Manager) GetSession(username string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[username]
	if !ok {
		return nil
	}
	now := m.time.Now()
	if !m.isValidLocked(s, now) {
		return nil
	}
	s.lastActivityAt = now
	return s
}

// Lookup returns the valid session of creds.Username only if it was signed
// in with the same password, otherwise nil. Unlike GetSession it does not
// refresh the activity of the session.
func (m *Manager) Lookup(creds Credentials) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[creds.Username]
	if !ok || !m.isValidLocked(s, m.time.Now()) || !s.matches(creds) {
		return nil
	}
	return s
}

func (m *Manager) registered(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[s.Username] == s
}

func (m *Manager) touch(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.lastActivityAt = m.time.Now()
}

func (m *Manager) markInvalid(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.valid = false
}

// detach removes the entry for username from the registry. If only is not
// nil the entry is only removed if it is that session.
func (m *Manager) detach(username string, only *Session) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[username]
	if !ok || (only != nil && s != only) {
		return nil
	}
	delete(m.sessions, username)
	return s
}

// lockSession waits for the lease of s. It returns false if s was closed
// while waiting.
func lockSession(ctx context.Context, s *Session) (bool, error) {
	select {
	case s.lock <- struct{}{}:
		if s.closed.Load() {
			<-s.lock
			return false, nil
		}
		return true, nil
	case <-s.done:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// IsSessionActive probes the session of username by loading a portal page,
// a session that lands anywhere else is marked invalid.
func (m *Manager) IsSessionActive(ctx context.Context, username string) bool {
	m.mu.Lock()
	s, ok := m.sessions[username]
	m.mu.Unlock()
	if !ok {
		return false
	}

	locked, err := lockSession(ctx, s)
	if err != nil || !locked {
		return false
	}
	defer func() { <-s.lock }()

	err = s.page.Navigate(ctx, m.opts.ProbeURL, m.opts.ProbeTimeout)
	if err != nil {
		m.tel.ReportDebug("probe navigation failed", username, err)
		m.markInvalid(s)
		return false
	}
	location, err := s.page.Location(ctx)
	if err != nil {
		m.markInvalid(s)
		return false
	}
	landed, err := url.Parse(location)
	if err != nil || landed.Hostname() != m.probe.Hostname() {
		m.tel.ReportDebug("probe landed outside the portal", username, location)
		m.markInvalid(s)
		return false
	}

	m.touch(s)
	return true
}

// CleanupExpiredSessions releases every expired or invalid session that is
// not currently leased and returns how many were released.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) int {
	now := m.time.Now()

	m.mu.Lock()
	var expired []*Session
	for username, s := range m.sessions {
		if m.isValidLocked(s, now) {
			continue
		}
		if !s.tryLock() {
			continue
		}
		delete(m.sessions, username)
		expired = append(expired, s)
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		m.closeLocked(s)
	}
	if len(expired) > 0 {
		m.tel.ReportDebug("released expired sessions", len(expired))
	}
	m.tel.ReportCount(report_manager_count, int64(remaining))
	return len(expired)
}

// CleanupAllSessions releases every session, it is meant to run at shutdown.
func (m *Manager) CleanupAllSessions(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = map[string]*Session{}
	m.mu.Unlock()

	group := errgroup.Group{}
	group.SetLimit(m.opts.CloseConcurrency)
	for _, s := range all {
		s := s
		group.Go(func() error {
			m.release(ctx, s)
			return nil
		})
	}
	group.Wait()

	m.tel.ReportCount(report_manager_count, 0)
}

// InvalidateSession removes and releases the session of username. It must
// not be called while holding a lease on that session.
func (m *Manager) InvalidateSession(ctx context.Context, username string) {
	s := m.detach(username, nil)
	if s == nil {
		return
	}
	m.tel.ReportDebug("invalidating session", username, s.ID.String())
	m.release(ctx, s)
}

// discard releases s only if it is still the registered session of its account.
func (m *Manager) discard(ctx context.Context, s *Session) {
	if m.detach(s.Username, s) == nil {
		return
	}
	m.release(ctx, s)
}

// release waits for the lease of a detached session and closes it. If ctx
// ends first the close is handed off to the background.
func (m *Manager) release(ctx context.Context, s *Session) {
	select {
	case s.lock <- struct{}{}:
		m.closeLocked(s)
	case <-s.done:
	case <-ctx.Done():
		go func() {
			select {
			case s.lock <- struct{}{}:
				m.closeLocked(s)
			case <-s.done:
			}
		}()
	}
}

// closeLocked closes a session whose lease is held by the caller, the lease
// is never given back so waiters observe done instead.
func (m *Manager) closeLocked(s *Session) {
	if s.closed.Swap(true) {
		return
	}
	m.closePage(s.page)
	close(s.done)
}

func (m *Manager) closePage(page browser.Page) {
	err := page.Close()
	if err != nil {
		m.tel.ReportWarning(report_manager_close, err)
	}
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.time.Now()
	stats := Stats{Total: len(m.sessions)}
	for _, s := range m.sessions {
		if m.isValidLocked(s, now) {
			stats.Active++
		} else {
			stats.Expired++
		}
	}
	return stats
}

// Sessions lists every registered session ordered by username.
func (m *Manager) Sessions() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.time.Now()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Info{
			ID:             s.ID.String(),
			Username:       s.Username,
			CreatedAt:      s.createdAt,
			LastActivityAt: s.lastActivityAt,
			Valid:          m.isValidLocked(s, now),
			Leased:         len(s.lock) > 0,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})
	return out
}

// Lease is exclusive use of a session's page until Release is called.
type Lease struct {
	manager *Manager
	session *Session
	once    sync.Once
}

func (l *Lease) Page() browser.Page {
	return l.session.page
}

func (l *Lease) Session() *Session {
	return l.session
}

// Release refreshes the activity of the session and gives the page back.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.manager.touch(l.session)
		<-l.session.lock
	})
}

const acquireAttempts = 3

// Acquire returns a lease on a valid session for creds, signing in first if
// there is none. A page that no longer has a document is discarded and
// replaced.
func (m *Manager) Acquire(ctx context.Context, creds Credentials) (*Lease, error) {
	if creds.Empty() {
		return nil, scraperr.Validation("session.acquire", "username and password are required")
	}

	for attempt := 0; attempt < acquireAttempts; attempt++ {
		s := m.Lookup(creds)
		if s == nil {
			var err error
			s, err = m.CreateSession(ctx, creds)
			if err != nil {
				return nil, err
			}
		}

		locked, err := lockSession(ctx, s)
		if err != nil {
			return nil, err
		}
		if !locked {
			continue
		}
		if !m.registered(s) {
			<-s.lock
			continue
		}
		if !s.page.Alive(ctx) {
			m.tel.ReportWarning(report_manager_acquire, "page lost its document", creds.Username)
			m.markInvalid(s)
			<-s.lock
			m.discard(ctx, s)
			continue
		}

		m.touch(s)
		return &Lease{manager: m, session: s}, nil
	}

	return nil, scraperr.New(scraperr.KindTransient, "session.acquire", "could not obtain a live session")
}
