package guap

import (
	"context"
	"errors"
	"guapassist-backend/internal/browser/fakebrowser"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/scraperr"
	"guapassist-backend/internal/session"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoginURL(t *testing.T) {
	parsed, err := url.Parse(LoginURL("abc"))
	require.NoError(t, err)
	require.Equal(t, "sso.guap.ru", parsed.Host)
	require.Equal(t, "/realms/master/protocol/openid-connect/auth", parsed.Path)

	query := parsed.Query()
	require.Equal(t, "abc", query.Get("state"))
	require.Equal(t, "prosuai", query.Get("client_id"))
	require.Equal(t, "https://pro.guap.ru/oauth/callback", query.Get("redirect_uri"))
	require.Equal(t, "code", query.Get("response_type"))
}

func TestIsLoginSuccessful(t *testing.T) {
	auth := NewAuthStrategy(telemetry.NewRecorder())

	testCases := []struct {
		location string
		expect   bool
	}{
		{location: "https://pro.guap.ru/inside/profile", expect: true},
		{location: "https://pro.guap.ru/oauth/callback?code=1&state=2", expect: true},
		{location: "https://sso.guap.ru/realms/master/login-actions/authenticate?execution=1", expect: false},
		{location: LoginURL("abc"), expect: false},
		{location: "https://sso.guap.ru/oauth/callback", expect: true},
		{location: "about:blank", expect: false},
		{location: "", expect: false},
	}
	for _, test := range testCases {
		require.Equal(t, test.expect, auth.IsLoginSuccessful(test.location), test.location)
	}
}

func TestLogin(t *testing.T) {
	p := newPortal(t)
	auth := NewAuthStrategy(telemetry.NewRecorder(), WithRandomAPI(fixedState{}))

	t.Run("ValidCredentials", func(t *testing.T) {
		page := p.newPage()
		location, err := auth.Login(context.Background(), page, student)
		require.NoError(t, err)
		require.Equal(t, profileURL, location)
		require.True(t, auth.IsLoginSuccessful(location))

		require.Equal(t, []string{LoginURL(testState)}, page.Navigations())
		require.Equal(t, "ivanov", page.Typed(selectorUsername))
		require.Equal(t, "secret", page.Typed(selectorPassword))
		require.Equal(t, []string{selectorSubmit}, page.Clicks())
	})

	t.Run("InvalidCredentials", func(t *testing.T) {
		page := p.newPage()
		location, err := auth.Login(context.Background(), page, session.Credentials{
			Username: "ivanov",
			Password: "wrong",
		})
		require.NoError(t, err)
		require.False(t, auth.IsLoginSuccessful(location))
		require.Equal(t, "Неверное имя пользователя или пароль.", auth.FailureMessage(context.Background(), page))
	})

	t.Run("MissingUsernameField", func(t *testing.T) {
		page := fakebrowser.New(fakebrowser.Routes(map[string]fakebrowser.Document{
			LoginURL(testState): {HTML: `<html><body><h1>Технические работы</h1></body></html>`},
		}), nil)
		_, err := auth.Login(context.Background(), page, student)
		require.Error(t, err)
		require.True(t, scraperr.IsAuth(err))
		require.Contains(t, err.Error(), "waiting for selector `#username` failed")
	})

	t.Run("UnreachableEntryPoint", func(t *testing.T) {
		page := fakebrowser.New(fakebrowser.Routes(nil), nil)
		_, err := auth.Login(context.Background(), page, student)
		require.Error(t, err)
		require.True(t, scraperr.IsRetryable(err))
	})

	t.Run("NoNavigationAfterSubmit", func(t *testing.T) {
		rec := telemetry.NewRecorder()
		patient := NewAuthStrategy(
			rec,
			WithRandomAPI(fixedState{}),
			WithAuthTimeouts(AuthTimeouts{Navigation: time.Second, Field: time.Second, Submit: 10 * time.Millisecond}),
		)
		// the form is submitted but nothing ever navigates
		page := fakebrowser.New(fakebrowser.Routes(map[string]fakebrowser.Document{
			LoginURL(testState): {HTML: loginHTML},
		}), nil)

		location, err := patient.Login(context.Background(), page, student)
		require.NoError(t, err)
		require.Equal(t, LoginURL(testState), location)
		require.False(t, patient.IsLoginSuccessful(location))
		require.Equal(t, []string{selectorSubmit}, page.Clicks())
		require.True(t, rec.Has(telemetry.LevelDebug, "no navigation after submitting the login form"))
	})

	t.Run("StateFailure", func(t *testing.T) {
		broken := NewAuthStrategy(telemetry.NewRecorder(), WithRandomAPI(failingState{}))
		page := p.newPage()
		_, err := broken.Login(context.Background(), page, student)
		require.Error(t, err)
		require.Empty(t, page.Navigations())
	})
}

type failingState struct{}

func (failingState) GenerateState() (string, error) {
	return "", errors.New("entropy source unavailable")
}

func TestFailureMessageDefault(t *testing.T) {
	auth := NewAuthStrategy(telemetry.NewRecorder())
	page := fakebrowser.New(fakebrowser.Routes(nil), nil)
	require.Equal(t, defaultFailureMessage, auth.FailureMessage(context.Background(), page))
}

func TestLoginThroughManager(t *testing.T) {
	f := newEngineFixture(t)

	s, err := f.manager.CreateSession(context.Background(), student)
	require.NoError(t, err)
	require.Equal(t, "ivanov", s.Username)
	require.Same(t, s, f.manager.GetSession("ivanov"))

	_, err = f.manager.CreateSession(context.Background(), session.Credentials{
		Username: "petrov",
		Password: "wrong",
	})
	require.Error(t, err)
	require.ErrorIs(t, err, session.ErrInvalidCredentials)
	require.True(t, scraperr.IsAuth(err))
	require.Equal(t, "Неверное имя пользователя или пароль.", scraperr.Message(err))
	require.Nil(t, f.manager.GetSession("petrov"))

	// the failed sign-in released its browser
	require.Equal(t, 1, f.launcher.Open())
}
