package guap

import (
	"context"
	"fmt"
	"guapassist-backend/internal/browser/fakebrowser"
	"guapassist-backend/internal/components/chrono"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/retry"
	"guapassist-backend/internal/session"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testState = "fixed-state"

	loginHTML = `<html><body>
<form id="kc-form-login" method="post">
  <input id="username" name="username" type="text">
  <input id="password-input" name="password" type="password">
  <input type="submit" value="Войти">
</form>
</body></html>`

	loginFailedHTML = `<html><body>
<div class="alert alert-error"><span class="kc-feedback-text">Неверное имя пользователя или пароль.</span></div>
<form id="kc-form-login" method="post">
  <input id="username" name="username" type="text">
  <input id="password-input" name="password" type="password">
  <input type="submit" value="Войти">
</form>
</body></html>`
)

type fixedState struct{}

func (fixedState) GenerateState() (string, error) {
	return testState, nil
}

func readFixture(t testing.TB, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

// portal is a scripted pro.guap.ru behind its sign-in form. Pages that are
// not signed in land on the login form for every portal url.
type portal struct {
	t        *testing.T
	username string
	password string
	// views maps portal urls to fixture files, an empty file name aborts
	// the navigation.
	views map[string]string

	mu       sync.Mutex
	signedIn []*atomic.Bool
}

func newPortal(t *testing.T) *portal {
	return &portal{
		t:        t,
		username: "ivanov",
		password: "secret",
		views: map[string]string{
			profileURL:                    "profile.html",
			tasksURL:                      "tasks_1.html",
			tasksURL + "?page=2":          "tasks_2.html",
			tasksURL + "?page=3":          "tasks_3.html",
			reportsURL:                    "reports.html",
			weekScheduleURL + "2025/45":   "schedule_week.html",
			dayScheduleURL + "2025-11-03": "schedule_day.html",
			dayScheduleURL + "2025-11-09": "schedule_day_empty.html",
		},
	}
}

// signOut ends the portal side of every session opened so far.
func (p *portal) signOut() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, flag := range p.signedIn {
		flag.Store(false)
	}
}

func (p *portal) loginDocument(html string) fakebrowser.Document {
	return fakebrowser.Document{Location: LoginURL(testState), HTML: html}
}

func (p *portal) newPage() *fakebrowser.Page {
	signedIn := &atomic.Bool{}
	p.mu.Lock()
	p.signedIn = append(p.signedIn, signedIn)
	p.mu.Unlock()

	router := func(target string) (fakebrowser.Document, error) {
		if strings.HasPrefix(target, ssoAuthURL) || !signedIn.Load() {
			return p.loginDocument(loginHTML), nil
		}
		name, ok := p.views[target]
		if !ok {
			return fakebrowser.Routes(nil)(target)
		}
		if name == "" {
			return fakebrowser.Document{}, fmt.Errorf("net::ERR_ABORTED at %s", target)
		}
		return fakebrowser.Document{Location: target, HTML: readFixture(p.t, name)}, nil
	}

	onClick := func(page *fakebrowser.Page, selector string) error {
		if selector != selectorSubmit {
			return nil
		}
		if page.Typed(selectorUsername) != p.username || page.Typed(selectorPassword) != p.password {
			page.SetDocument(p.loginDocument(loginFailedHTML))
			return nil
		}
		signedIn.Store(true)
		page.SetDocument(fakebrowser.Document{
			Location: profileURL,
			HTML:     readFixture(p.t, "profile.html"),
		})
		return nil
	}

	return fakebrowser.New(router, onClick)
}

type engineFixture struct {
	portal   *portal
	launcher *fakebrowser.Launcher
	manager  *session.Manager
	engine   *Engine
	tel      *telemetry.Recorder
}

func newEngineFixture(t *testing.T) *engineFixture {
	f := &engineFixture{
		portal: newPortal(t),
		tel:    telemetry.NewRecorder(),
	}
	f.launcher = fakebrowser.NewLauncher(f.portal.newPage)
	f.manager = session.NewManager(
		f.launcher,
		NewAuthStrategy(f.tel, WithRandomAPI(fixedState{})),
		chrono.NewFake(time.Date(2025, time.November, 3, 10, 0, 0, 0, chrono.MSK())),
		f.tel,
		session.Options{LoginsPerMinute: 60000},
	)
	f.engine = NewEngine(f.manager, f.tel, EngineOptions{
		Policy: retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
	})
	t.Cleanup(func() {
		f.manager.CleanupAllSessions(context.Background())
	})
	return f
}

var student = session.Credentials{Username: "ivanov", Password: "secret"}
