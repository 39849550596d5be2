package service

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"guapassist-backend/internal/scraperr"
	"guapassist-backend/internal/session"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

const report_http_panic = "http.panic"

type ScrapeBody struct {
	session.Credentials
	Force  bool   `json:"force"`
	Params Params `json:"params"`
}

type CheckSessionBody struct {
	Username string `json:"username"`
}

type LogoutBody struct {
	Username string `json:"username"`
	Purge    bool   `json:"purge"`
}

type HTTPOptions struct {
	// AccessToken is required as a bearer token on every route except
	// /health when set.
	AccessToken string
}

// StatusOf maps a failed response to its http status.
func StatusOf(res Response) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.kind {
	case scraperr.KindValidation:
		return http.StatusBadRequest
	case scraperr.KindAuthentication:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}

func writeResponse(w http.ResponseWriter, res Response) {
	writeJSON(w, StatusOf(res), res)
}

func decodeBody(r *http.Request, out any) error {
	err := json.NewDecoder(r.Body).Decode(out)
	if err != nil {
		return scraperr.Validation("http.decode", fmt.Sprintf("invalid request body: %s", err.Error()))
	}
	return nil
}

type handler struct {
	service *Service
}

// NewRouter exposes s over a json http api.
func NewRouter(s *Service, opts HTTPOptions) *mux.Router {
	h := handler{service: s}
	r := mux.NewRouter()
	r.Use(h.recoverMiddleware, logMiddleware)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	if opts.AccessToken != "" {
		api.Use(accessTokenMiddleware(opts.AccessToken))
	}

	// session routes are registered before the domain route so they are
	// not taken for domains
	api.HandleFunc("/scrape/init-session", h.initSession).Methods(http.MethodPost)
	api.HandleFunc("/scrape/check-session", h.checkSession).Methods(http.MethodPost)
	api.HandleFunc("/scrape/logout", h.logout).Methods(http.MethodPost)
	api.HandleFunc("/scrape/{domain}", h.scrape).Methods(http.MethodPost)

	api.HandleFunc("/sessions", h.sessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/stats", h.stats).Methods(http.MethodGet)
	api.HandleFunc("/logs/{username}", h.logs).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, Response{Message: "route not found"})
	})
	return r
}

func (h handler) scrape(w http.ResponseWriter, r *http.Request) {
	domain, err := ParseDomain(mux.Vars(r)["domain"])
	if err != nil {
		writeResponse(w, failure("", err))
		return
	}
	var body ScrapeBody
	if err := decodeBody(r, &body); err != nil {
		writeResponse(w, failure(domain, err))
		return
	}
	writeResponse(w, h.service.Extract(r.Context(), Request{
		Domain:      domain,
		Credentials: body.Credentials,
		Params:      body.Params,
		Force:       body.Force,
	}))
}

func (h handler) initSession(w http.ResponseWriter, r *http.Request) {
	var body session.Credentials
	if err := decodeBody(r, &body); err != nil {
		writeResponse(w, failure("", err))
		return
	}
	writeResponse(w, h.service.InitSession(r.Context(), body))
}

func (h handler) checkSession(w http.ResponseWriter, r *http.Request) {
	var body CheckSessionBody
	if err := decodeBody(r, &body); err != nil {
		writeResponse(w, failure("", err))
		return
	}
	writeResponse(w, h.service.CheckSession(r.Context(), body.Username))
}

func (h handler) logout(w http.ResponseWriter, r *http.Request) {
	var body LogoutBody
	if err := decodeBody(r, &body); err != nil {
		writeResponse(w, failure("", err))
		return
	}
	writeResponse(w, h.service.Logout(r.Context(), body.Username, body.Purge))
}

func (h handler) sessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.service.Sessions()
	writeResponse(w, Response{Success: true, Data: sessions, Count: len(sessions)})
}

func (h handler) stats(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, Response{Success: true, Data: h.service.Stats()})
}

func (h handler) logs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeResponse(w, failure("", scraperr.Validation("http.logs", fmt.Sprintf("invalid limit %q", raw))))
			return
		}
		limit = parsed
	}
	outcomes, err := h.service.RecentOutcomes(r.Context(), mux.Vars(r)["username"], limit)
	if err != nil {
		writeResponse(w, failure("", err))
		return
	}
	writeResponse(w, Response{Success: true, Data: outcomes, Count: len(outcomes)})
}

func (h handler) health(w http.ResponseWriter, r *http.Request) {
	health := h.service.Health(r.Context())
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (h handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if err, ok := recovered.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(recovered)
			}
			h.service.tel.ReportBroken(report_http_panic, r.URL.Path, recovered)
			writeJSON(w, http.StatusInternalServerError, Response{Message: "internal error"})
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		slog.InfoContext(
			r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration", time.Since(start).String(),
		)
	})
}

func accessTokenMiddleware(accessToken string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(accessToken)) != 1 {
				writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
