package client

import (
	"context"
	"encoding/json"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/retry"
	"guapassist-backend/internal/scraperr"
	"guapassist-backend/internal/service"
	"guapassist-backend/internal/session"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type server struct {
	mu       sync.Mutex
	scrapes  []service.ScrapeBody
	logouts  []service.LogoutBody
	statuses []int
	bodies   []string
}

func (s *server) next() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, body := s.statuses[0], s.bodies[0]
	if len(s.statuses) > 1 {
		s.statuses = s.statuses[1:]
		s.bodies = s.bodies[1:]
	}
	return status, body
}

func (s *server) handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/scrape/logout", func(w http.ResponseWriter, r *http.Request) {
		var body service.LogoutBody
		json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.logouts = append(s.logouts, body)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "data": {"username": "ivanov", "forgotten": 0}}`))
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/scrape/{domain}", func(w http.ResponseWriter, r *http.Request) {
		var body service.ScrapeBody
		json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.scrapes = append(s.scrapes, body)
		s.mu.Unlock()

		status, payload := s.next()
		if status == http.StatusBadGateway {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(status)
			w.Write([]byte(payload))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(payload))
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success": false, "message": "unauthorized"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "data": {"total": 2, "active": 1, "expired": 1}}`))
	}).Methods(http.MethodGet)
	return r
}

const tasksBody = `{"success": true, "domain": "tasks", "count": 1, "data": {"tasks": [{"id": "101"}], "count": 1}}`

var student = session.Credentials{Username: "ivanov", Password: "secret"}

func newTestClient(t *testing.T, srv *server, token string) *Client {
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)
	return NewClient(telemetry.NewRecorder(), Options{
		BaseURL:     ts.URL,
		AccessToken: token,
		Policy:      retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
	})
}

func TestExtract(t *testing.T) {
	testCases := []struct {
		name     string
		statuses []int
		bodies   []string
		success  bool
		kind     scraperr.Kind
		attempts int
		logouts  int
	}{
		{
			name:     "Success",
			statuses: []int{200},
			bodies:   []string{tasksBody},
			success:  true,
			attempts: 1,
		},
		{
			name:     "ExpiredSessionIsRetried",
			statuses: []int{401, 200},
			bodies: []string{
				`{"success": false, "domain": "tasks", "message": "session expired", "error_kind": "authentication"}`,
				tasksBody,
			},
			success:  true,
			attempts: 2,
			logouts:  1,
		},
		{
			name:     "BadGatewayIsRetried",
			statuses: []int{502, 200},
			bodies:   []string{"bad gateway", tasksBody},
			success:  true,
			attempts: 2,
		},
		{
			name:     "ValidationIsNotRetried",
			statuses: []int{400},
			bodies:   []string{`{"success": false, "domain": "tasks", "message": "invalid date", "error_kind": "validation"}`},
			kind:     scraperr.KindValidation,
			attempts: 1,
		},
		{
			name:     "AttemptsExhausted",
			statuses: []int{500},
			bodies:   []string{`{"success": false, "domain": "tasks", "message": "net::ERR_CONNECTION_RESET", "error_kind": "transient"}`},
			kind:     scraperr.KindTransient,
			attempts: 2,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			srv := &server{statuses: test.statuses, bodies: test.bodies}
			c := newTestClient(t, srv, "")

			res, err := c.Extract(context.Background(), service.DomainTasks, student, service.Params{}, true)
			require.Len(t, srv.scrapes, test.attempts)
			require.Len(t, srv.logouts, test.logouts)
			for _, body := range srv.scrapes {
				require.Equal(t, student, body.Credentials)
				require.True(t, body.Force)
			}

			if !test.success {
				require.Error(t, err)
				require.Equal(t, test.kind, scraperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, 1, res.Count)

			type task struct {
				ID string `json:"id"`
			}
			payload, err := Decode[struct {
				Tasks []task `json:"tasks"`
			}](res)
			require.NoError(t, err)
			diff := cmp.Diff([]task{{ID: "101"}}, payload.Tasks)
			if diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestExtractValidatesLocally(t *testing.T) {
	srv := &server{statuses: []int{200}, bodies: []string{tasksBody}}
	c := newTestClient(t, srv, "")

	_, err := c.Extract(context.Background(), "grades", student, service.Params{}, false)
	require.True(t, scraperr.IsValidation(err))

	_, err = c.Extract(context.Background(), service.DomainTasks, session.Credentials{Username: "ivanov"}, service.Params{}, false)
	require.True(t, scraperr.IsValidation(err))
	require.Empty(t, srv.scrapes)
}

func TestAccessToken(t *testing.T) {
	srv := &server{}

	_, err := newTestClient(t, srv, "").Stats(context.Background())
	require.Error(t, err)
	require.Equal(t, "unauthorized", scraperr.Message(err))

	stats, err := newTestClient(t, srv, "token").Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.Stats{Total: 2, Active: 1, Expired: 1}, stats)
}

func TestUnreachableServer(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	c := NewClient(telemetry.NewRecorder(), Options{
		BaseURL: ts.URL,
		Policy:  retry.Policy{MaxAttempts: 1},
	})
	_, err := c.Stats(context.Background())
	require.Error(t, err)
	require.Equal(t, scraperr.KindTransient, scraperr.KindOf(err))
}
