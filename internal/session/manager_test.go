package session

import (
	"context"
	"errors"
	"guapassist-backend/internal/browser"
	"guapassist-backend/internal/browser/fakebrowser"
	"guapassist-backend/internal/components/chrono"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/scraperr"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	portalProfile = "https://pro.guap.ru/inside/profile"
	ssoLogin      = "https://sso.guap.ru/realms/master/protocol/openid-connect/auth"
)

type stubAuth struct {
	password string
	logins   atomic.Int32
}

func (a *stubAuth) Login(ctx context.Context, page browser.Page, creds Credentials) (string, error) {
	a.logins.Add(1)
	if creds.Password == a.password {
		return portalProfile, nil
	}
	return ssoLogin, nil
}

func (a *stubAuth) IsLoginSuccessful(location string) bool {
	return strings.HasPrefix(location, "https://pro.guap.ru")
}

func (a *stubAuth) FailureMessage(ctx context.Context, page browser.Page) string {
	return "Неверное имя пользователя или пароль."
}

type fixture struct {
	manager  *Manager
	launcher *fakebrowser.Launcher
	auth     *stubAuth
	clock    *chrono.Fake
	tel      *telemetry.Recorder
	// probe is where the fake pages land when the profile page is opened.
	probe atomic.Value
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		auth:  &stubAuth{password: "secret"},
		clock: chrono.NewFake(time.Date(2025, time.November, 3, 10, 0, 0, 0, chrono.MSK())),
		tel:   telemetry.NewRecorder(),
	}
	f.probe.Store(portalProfile)

	f.launcher = fakebrowser.NewLauncher(func() *fakebrowser.Page {
		return fakebrowser.New(func(url string) (fakebrowser.Document, error) {
			return fakebrowser.Document{
				Location: f.probe.Load().(string),
				HTML:     `<html><body><div class="card shadow-sm"></div></body></html>`,
			}, nil
		}, nil)
	})
	f.manager = NewManager(f.launcher, f.auth, f.clock, f.tel, Options{LoginsPerMinute: 60000})
	t.Cleanup(func() {
		f.manager.CleanupAllSessions(context.Background())
	})
	return f
}

var student = Credentials{Username: "ivanov", Password: "secret"}

func TestGetSessionReturnsSameHandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.manager.CreateSession(ctx, student)
	require.NoError(t, err)

	first := f.manager.GetSession(student.Username)
	second := f.manager.GetSession(student.Username)
	require.Same(t, created, first)
	require.Same(t, first, second)
	require.Nil(t, f.manager.GetSession("petrov"))
}

func TestSessionExpiresAfterTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.CreateSession(ctx, student)
	require.NoError(t, err)

	f.clock.Advance(29 * time.Minute)
	require.NotNil(t, f.manager.GetSession(student.Username))

	// the lookup above refreshed the activity
	f.clock.Advance(30 * time.Minute)
	require.Nil(t, f.manager.GetSession(student.Username))
	require.Equal(t, Stats{Total: 1, Active: 0, Expired: 1}, f.manager.Stats())

	recreated, err := f.manager.CreateSession(ctx, student)
	require.NoError(t, err)
	require.Same(t, recreated, f.manager.GetSession(student.Username))
	require.Equal(t, 1, f.launcher.Open())
}

func TestCreateSupersedesExistingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.manager.CreateSession(ctx, student)
	require.NoError(t, err)
	second, err := f.manager.CreateSession(ctx, student)
	require.NoError(t, err)

	require.NotSame(t, first, second)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, 1, f.manager.Stats().Total)

	pages := f.launcher.Pages()
	require.Len(t, pages, 2)
	require.True(t, pages[0].Closed())
	require.False(t, pages[1].Closed())
}

func TestInvalidCredentials(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.CreateSession(context.Background(), Credentials{Username: "ivanov", Password: "wrong"})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.True(t, scraperr.IsAuth(err))
	require.Equal(t, "Неверное имя пользователя или пароль.", scraperr.Message(err))

	require.Equal(t, Stats{}, f.manager.Stats())
	pages := f.launcher.Pages()
	require.Len(t, pages, 1)
	require.True(t, pages[0].Closed())
}

func TestLaunchFailureIsCreationError(t *testing.T) {
	f := newFixture(t)
	f.launcher.FailWith(errors.New("exec: \"google-chrome\": executable file not found in $PATH"))

	_, err := f.manager.CreateSession(context.Background(), student)
	var creationErr *CreationError
	require.ErrorAs(t, err, &creationErr)
	require.Equal(t, "ivanov", creationErr.Username)
	require.True(t, scraperr.IsRetryable(err))
	require.True(t, f.tel.Has(telemetry.LevelBroken, report_manager_create))
}

func TestCreateRequiresCredentials(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.CreateSession(context.Background(), Credentials{Username: "ivanov"})
	require.True(t, scraperr.IsValidation(err))
	_, err = f.manager.Acquire(context.Background(), Credentials{Password: "secret"})
	require.True(t, scraperr.IsValidation(err))
	require.Empty(t, f.launcher.Pages())
}

func TestConcurrentCreateSharesSignIn(t *testing.T) {
	f := newFixture(t)
	f.launcher.SlowDown(100 * time.Millisecond)

	const callers = 5
	results := make([]*Session, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	wg := sync.WaitGroup{}
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.manager.CreateSession(context.Background(), student)
		}()
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, int32(1), f.auth.logins.Load())
	for _, s := range results {
		require.Same(t, results[0], s)
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lease, err := f.manager.Acquire(ctx, student)
	require.NoError(t, err)
	require.NotNil(t, lease.Page())

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = f.manager.Acquire(waitCtx, student)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	lease.Release()
	lease.Release()

	again, err := f.manager.Acquire(ctx, student)
	require.NoError(t, err)
	require.Same(t, lease.Session(), again.Session())
	again.Release()
	require.Equal(t, int32(1), f.auth.logins.Load())
}

func TestAcquireReplacesDeadPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lease, err := f.manager.Acquire(ctx, student)
	require.NoError(t, err)
	lease.Release()

	f.launcher.Pages()[0].Crash()

	replaced, err := f.manager.Acquire(ctx, student)
	require.NoError(t, err)
	defer replaced.Release()

	require.NotSame(t, lease.Session(), replaced.Session())
	pages := f.launcher.Pages()
	require.Len(t, pages, 2)
	require.True(t, pages[0].Closed())
	require.True(t, f.tel.Has(telemetry.LevelWarning, report_manager_acquire))
}

func TestAcquireWithOtherPasswordSignsInAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lease, err := f.manager.Acquire(ctx, student)
	require.NoError(t, err)
	lease.Release()

	_, err = f.manager.Acquire(ctx, Credentials{Username: student.Username, Password: "guess"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, int32(2), f.auth.logins.Load())
}

func TestIsSessionActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.False(t, f.manager.IsSessionActive(ctx, student.Username))

	_, err := f.manager.CreateSession(ctx, student)
	require.NoError(t, err)
	require.True(t, f.manager.IsSessionActive(ctx, student.Username))

	// the portal bounced the page back to the sign-in form
	f.probe.Store(ssoLogin)
	require.False(t, f.manager.IsSessionActive(ctx, student.Username))
	require.Nil(t, f.manager.GetSession(student.Username))
	require.Equal(t, Stats{Total: 1, Expired: 1}, f.manager.Stats())
}

func TestCleanupExpiredSkipsLeasedSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	busy := Credentials{Username: "busy", Password: "secret"}
	idle := Credentials{Username: "idle", Password: "secret"}

	lease, err := f.manager.Acquire(ctx, busy)
	require.NoError(t, err)
	_, err = f.manager.CreateSession(ctx, idle)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	require.Equal(t, 1, f.manager.CleanupExpiredSessions(ctx))

	infos := f.manager.Sessions()
	require.Len(t, infos, 1)
	require.Equal(t, "busy", infos[0].Username)
	require.True(t, infos[0].Leased)

	lease.Release()
	require.Equal(t, Stats{Total: 1, Active: 1}, f.manager.Stats())
	require.Equal(t, 0, f.manager.CleanupExpiredSessions(ctx))
}

func TestInvalidateWaitsForLease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lease, err := f.manager.Acquire(ctx, student)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		f.manager.InvalidateSession(ctx, student.Username)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return f.manager.Stats().Total == 0
	}, time.Second, 5*time.Millisecond)
	require.False(t, f.launcher.Pages()[0].Closed())

	lease.Release()
	<-done
	require.True(t, f.launcher.Pages()[0].Closed())
}

func TestCleanupAllSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, username := range []string{"a", "b", "c"} {
		_, err := f.manager.CreateSession(ctx, Credentials{Username: username, Password: "secret"})
		require.NoError(t, err)
	}
	require.Equal(t, 3, f.launcher.Open())

	f.manager.CleanupAllSessions(ctx)
	require.Equal(t, 0, f.launcher.Open())
	require.Empty(t, f.manager.Sessions())
}
