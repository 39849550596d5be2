// Package client talks to a running guap server over its json http api.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"guapassist-backend/internal/components/assert"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/retry"
	"guapassist-backend/internal/scraperr"
	"guapassist-backend/internal/service"
	"guapassist-backend/internal/session"
	"guapassist-backend/internal/store"
	"guapassist-backend/lib/restyutil"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("guapassist.client")

const (
	report_client_request    = "client.request"
	report_client_invalidate = "client.invalidate"
)

type Options struct {
	BaseURL     string
	AccessToken string
	// Timeout of a single request, extractions on a cold session can take
	// the better part of a minute.
	Timeout time.Duration
	Policy  retry.Policy
	// Dump receives every exchange with the server, nil disables dumping.
	Dump restyutil.InstrumentOutput
}

// Result mirrors the response envelope of the server with the payload left
// raw.
type Result struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Domain    string          `json:"domain"`
	Data      json.RawMessage `json:"data"`
	Count     int             `json:"count"`
	Cached    bool            `json:"cached"`
	UpdatedAt *time.Time      `json:"updated_at"`
	ErrorKind string          `json:"error_kind"`
}

// Failure turns an unsuccessful result back into a tagged error.
func (r Result) Failure() error {
	if r.Success {
		return nil
	}
	op := "client"
	if r.Domain != "" {
		op = "client." + r.Domain
	}
	return scraperr.New(scraperr.ParseKind(r.ErrorKind), op, r.Message)
}

// Decode unmarshals the payload of r into T.
func Decode[T any](r Result) (T, error) {
	var out T
	if len(r.Data) == 0 {
		return out, nil
	}
	err := json.Unmarshal(r.Data, &out)
	if err != nil {
		return out, scraperr.Wrapf(scraperr.KindContentShape, "client.decode", err, "unexpected %s payload", r.Domain)
	}
	return out, nil
}

type Client struct {
	http   *resty.Client
	policy retry.Policy
	tel    telemetry.API
}

func NewClient(tel telemetry.API, opts Options) *Client {
	assert.NotNil(tel, "tel")
	assert.NotEmptyStr(opts.BaseURL, "base url")

	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.ParserPolicy
	}
	tel = telemetry.NewScopedAPI("client", tel)

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseURL)
	httpClient.SetTimeout(opts.Timeout)
	httpClient.SetHeader("Content-Type", "application/json")
	if opts.AccessToken != "" {
		httpClient.SetAuthToken(opts.AccessToken)
	}
	telemetry.InstrumentResty(httpClient, tel)
	restyutil.InstrumentClient(httpClient, tracer, opts.Dump)

	return &Client{
		http:   httpClient,
		policy: opts.Policy,
		tel:    tel,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (Result, error) {
	var res Result
	req := c.http.R().
		SetContext(ctx).
		SetResult(&res).
		SetError(&res)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.tel.ReportWarning(report_client_request, path, err)
		return Result{}, scraperr.Wrap(scraperr.KindTransient, "client.request", err)
	}

	// error pages that are not the api envelope, ex. a proxy in front of the
	// server
	if resp.IsError() && res.Message == "" && !res.Success {
		kind := scraperr.KindFatal
		if resp.StatusCode() >= http.StatusInternalServerError {
			kind = scraperr.KindTransient
		}
		return Result{
			Message:   fmt.Sprintf("unexpected status %s", resp.Status()),
			ErrorKind: kind.String(),
		}, nil
	}
	return res, nil
}

func (c *Client) call(ctx context.Context, method, path string, body any) (Result, error) {
	res, err := c.do(ctx, method, path, body)
	if err != nil {
		return Result{}, err
	}
	if err := res.Failure(); err != nil {
		return res, err
	}
	return res, nil
}

// Extract runs an extraction on the server. Transient failures are retried
// and so are authentication failures, after logging the remote session out.
func (c *Client) Extract(
	ctx context.Context,
	domain service.Domain,
	creds session.Credentials,
	params service.Params,
	force bool,
) (Result, error) {
	if _, err := service.ParseDomain(string(domain)); err != nil {
		return Result{}, err
	}
	if creds.Empty() {
		return Result{}, scraperr.Validation("client.extract", "username and password are required")
	}

	body := service.ScrapeBody{
		Credentials: creds,
		Force:       force,
		Params:      params,
	}
	return retry.WithParserRetry(
		ctx,
		c.policy,
		creds.Username,
		c,
		func(ctx context.Context) (Result, error) {
			return c.do(ctx, http.MethodPost, "/api/scrape/"+string(domain), body)
		},
	)
}

func (c *Client) InitSession(ctx context.Context, creds session.Credentials) (service.SessionState, error) {
	res, err := c.call(ctx, http.MethodPost, "/api/scrape/init-session", creds)
	if err != nil {
		return service.SessionState{}, err
	}
	return Decode[service.SessionState](res)
}

func (c *Client) CheckSession(ctx context.Context, username string) (service.SessionState, error) {
	res, err := c.call(ctx, http.MethodPost, "/api/scrape/check-session", service.CheckSessionBody{Username: username})
	if err != nil {
		return service.SessionState{}, err
	}
	return Decode[service.SessionState](res)
}

func (c *Client) Logout(ctx context.Context, username string, purge bool) (service.LogoutResult, error) {
	res, err := c.call(ctx, http.MethodPost, "/api/scrape/logout", service.LogoutBody{
		Username: username,
		Purge:    purge,
	})
	if err != nil {
		return service.LogoutResult{}, err
	}
	return Decode[service.LogoutResult](res)
}

// InvalidateSession logs the remote session out, it lets the client stand in
// for the session registry during retries.
func (c *Client) InvalidateSession(ctx context.Context, username string) {
	_, err := c.Logout(ctx, username, false)
	if err != nil {
		c.tel.ReportWarning(report_client_invalidate, username, err)
	}
}

func (c *Client) Stats(ctx context.Context) (session.Stats, error) {
	res, err := c.call(ctx, http.MethodGet, "/api/sessions/stats", nil)
	if err != nil {
		return session.Stats{}, err
	}
	return Decode[session.Stats](res)
}

func (c *Client) Sessions(ctx context.Context) ([]session.Info, error) {
	res, err := c.call(ctx, http.MethodGet, "/api/sessions", nil)
	if err != nil {
		return nil, err
	}
	return Decode[[]session.Info](res)
}

func (c *Client) Logs(ctx context.Context, username string, limit int) ([]store.Outcome, error) {
	path := "/api/logs/" + username
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	res, err := c.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return Decode[[]store.Outcome](res)
}

// Health returns the health report of the server, an unhealthy server is
// not an error.
func (c *Client) Health(ctx context.Context) (service.Health, error) {
	var health service.Health
	_, err := c.http.R().
		SetContext(ctx).
		SetResult(&health).
		SetError(&health).
		Get("/health")
	if err != nil {
		return service.Health{}, scraperr.Wrap(scraperr.KindTransient, "client.health", err)
	}
	return health, nil
}
