// Package upstream checks whether the portal and its sign-in service can be
// reached at all, independently of any account.
package upstream

import (
	"context"
	"guapassist-backend/internal/components/assert"
	"guapassist-backend/internal/components/chrono"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/lib/restyutil"
	"net/http"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("guapassist.upstream")

const report_prober_probe = "prober.probe"

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Target struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

var DefaultTargets = []Target{
	{Name: "sso", URL: "https://sso.guap.ru/"},
	{Name: "portal", URL: "https://pro.guap.ru/"},
}

type Options struct {
	Targets []Target
	Timeout time.Duration
	// RequestsPerSecond limits probe requests across all targets.
	RequestsPerSecond float64
	// DisableBypass keeps the plain transport instead of the one that
	// mimics a browser's TLS handshake.
	DisableBypass bool
	// Dump receives every probe exchange, nil disables dumping.
	Dump restyutil.InstrumentOutput
}

type Status struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMs  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

type Report struct {
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
	Targets   []Status  `json:"targets"`
}

type Prober struct {
	http    *resty.Client
	targets []Target
	time    chrono.TimeAPI
	tel     telemetry.API
}

func NewProber(timeApi chrono.TimeAPI, tel telemetry.API, opts Options) *Prober {
	assert.NotNil(timeApi, "time")
	assert.NotNil(tel, "tel")

	if len(opts.Targets) == 0 {
		opts.Targets = DefaultTargets
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	tel = telemetry.NewScopedAPI("upstream", tel)

	httpClient := resty.New()
	if !opts.DisableBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}
	httpClient.SetHeader("user-agent", userAgent)
	httpClient.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	httpClient.SetTimeout(opts.Timeout)

	// max burst >= number of targets so a single probe is never delayed
	rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), len(opts.Targets))
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel)
	restyutil.InstrumentClient(httpClient, tracer, opts.Dump)

	return &Prober{
		http:    httpClient,
		targets: opts.Targets,
		time:    timeApi,
		tel:     tel,
	}
}

// Probe requests every target once. A target is reachable if it answered
// with a status below 500, the report is healthy if all targets are.
func (p *Prober) Probe(ctx context.Context) Report {
	statuses := make([]Status, len(p.targets))

	var group errgroup.Group
	for i, target := range p.targets {
		i, target := i, target
		group.Go(func() error {
			statuses[i] = p.probe(ctx, target)
			return nil
		})
	}
	group.Wait()

	healthy := true
	for _, s := range statuses {
		if !s.Reachable {
			healthy = false
		}
	}
	return Report{
		Healthy:   healthy,
		CheckedAt: p.time.Now(),
		Targets:   statuses,
	}
}

func (p *Prober) probe(ctx context.Context, target Target) Status {
	status := Status{Name: target.Name, URL: target.URL}

	// latency is a difference in time, it does not need chrono
	start := time.Now()
	res, err := p.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(target.URL)
	status.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		status.Error = err.Error()
		p.tel.ReportWarning(report_prober_probe, target.Name, err)
		return status
	}
	if body := res.RawBody(); body != nil {
		body.Close()
	}

	status.StatusCode = res.StatusCode()
	status.Reachable = res.StatusCode() < http.StatusInternalServerError
	if !status.Reachable {
		status.Error = res.Status()
		p.tel.ReportWarning(report_prober_probe, target.Name, res.Status())
	}
	return status
}
