package guap

import (
	"context"
	"fmt"
	"guapassist-backend/internal/browser"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/scraperr"
	"guapassist-backend/internal/session"
	"net/url"
	"strings"
	"time"

	"github.com/mazen160/go-random"
)

const (
	ssoAuthURL  = "https://sso.guap.ru/realms/master/protocol/openid-connect/auth"
	callbackURL = "https://pro.guap.ru/oauth/callback"
	clientID    = "prosuai"
	portalHost  = "pro.guap.ru"

	selectorUsername = "#username"
	selectorPassword = "#password-input"
	selectorSubmit   = `input[type="submit"]`
	selectorFailure  = `.alert-error, .error, [class*="error"]`

	defaultFailureMessage = "invalid username or password"
)

const report_auth_login = "auth.login"

// RandomAPI is an abstraction over any code that potentially generates random values.
//
// note: fault injection point
type RandomAPI interface {
	GenerateState() (string, error)
}

type defaultRandomAPI struct{}

func (defaultRandomAPI) GenerateState() (string, error) {
	return random.String(32)
}

type AuthTimeouts struct {
	Navigation time.Duration
	Field      time.Duration
	// Submit bounds the best-effort wait for the navigation after submitting.
	Submit time.Duration
}

var DefaultAuthTimeouts = AuthTimeouts{
	Navigation: 30 * time.Second,
	Field:      10 * time.Second,
	Submit:     15 * time.Second,
}

// AuthStrategy signs into the portal through its Keycloak login form.
type AuthStrategy struct {
	rand     RandomAPI
	tel      telemetry.API
	timeouts AuthTimeouts
}

var _ session.Authenticator = AuthStrategy{}

type AuthOption func(s *AuthStrategy)

func WithRandomAPI(rand RandomAPI) AuthOption {
	return func(s *AuthStrategy) {
		s.rand = rand
	}
}

func WithAuthTimeouts(timeouts AuthTimeouts) AuthOption {
	return func(s *AuthStrategy) {
		s.timeouts = timeouts
	}
}

func NewAuthStrategy(tel telemetry.API, options ...AuthOption) AuthStrategy {
	s := AuthStrategy{
		rand:     defaultRandomAPI{},
		tel:      telemetry.NewScopedAPI("guap", tel),
		timeouts: DefaultAuthTimeouts,
	}
	for _, opt := range options {
		opt(&s)
	}
	return s
}

// LoginURL builds the sign-in entry point with the given OAuth state.
func LoginURL(state string) string {
	query := url.Values{}
	query.Set("state", state)
	query.Set("scope", "profile email")
	query.Set("response_type", "code")
	query.Set("approval_prompt", "auto")
	query.Set("redirect_uri", callbackURL)
	query.Set("client_id", clientID)
	return fmt.Sprintf("%s?%s", ssoAuthURL, query.Encode())
}

func (s AuthStrategy) waitField(ctx context.Context, page browser.Page, selector string) error {
	err := page.WaitVisible(ctx, selector, s.timeouts.Field)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scraperr.Wrapf(
		scraperr.KindAuthentication,
		report_auth_login,
		err,
		"waiting for selector `%s` failed", selector,
	)
}

func (s AuthStrategy) Login(ctx context.Context, page browser.Page, creds session.Credentials) (string, error) {
	state, err := s.rand.GenerateState()
	if err != nil {
		s.tel.ReportBroken(report_auth_login, fmt.Errorf("generate state: %w", err))
		return "", err
	}

	err = page.Navigate(ctx, LoginURL(state), s.timeouts.Navigation)
	if err != nil {
		return "", err
	}

	err = s.waitField(ctx, page, selectorUsername)
	if err != nil {
		return "", err
	}
	err = s.waitField(ctx, page, selectorPassword)
	if err != nil {
		return "", err
	}

	err = page.SendKeys(ctx, selectorUsername, creds.Username)
	if err != nil {
		return "", err
	}
	err = page.SendKeys(ctx, selectorPassword, creds.Password)
	if err != nil {
		return "", err
	}

	err = page.WaitVisible(ctx, selectorSubmit, s.timeouts.Field)
	if err != nil {
		return "", err
	}

	navigated, stop := page.ExpectNavigation()
	defer stop()

	err = page.Click(ctx, selectorSubmit)
	if err != nil {
		return "", err
	}

	timer := time.NewTimer(s.timeouts.Submit)
	defer timer.Stop()
	select {
	case <-navigated:
	case <-timer.C:
		s.tel.ReportDebug("no navigation after submitting the login form", creds.Username)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return page.Location(ctx)
}

// IsLoginSuccessful returns true if location is on the portal or on its
// OAuth callback.
func (AuthStrategy) IsLoginSuccessful(location string) bool {
	parsed, err := url.Parse(location)
	if err != nil || parsed.Host == "" {
		return strings.Contains(location, portalHost) || strings.Contains(location, "callback")
	}
	return parsed.Hostname() == portalHost || strings.Contains(parsed.Path, "callback")
}

func (s AuthStrategy) FailureMessage(ctx context.Context, page browser.Page) string {
	text, err := page.Text(ctx, selectorFailure)
	if err != nil {
		s.tel.ReportDebug("could not read the login failure message", err)
		return defaultFailureMessage
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return defaultFailureMessage
	}
	return text
}
