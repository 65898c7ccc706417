package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/resilience"
)

// DefaultUserAgent is sent when a script does not set its own. Several
// platforms reject requests without a browser-like agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var errServerStatus = errors.New("upstream server error")

// Config tunes the script-facing HTTP client
type Config struct {
	Timeout    time.Duration
	UserAgent  string
	RateLimit  float64
	MaxRetries int
}

// DefaultConfig returns the settings used when the sandbox config is empty
func DefaultConfig() Config {
	return Config{
		Timeout:    15 * time.Second,
		UserAgent:  DefaultUserAgent,
		MaxRetries: 1,
	}
}

// Options describes one script-issued request
type Options struct {
	Method   string
	Headers  map[string]string
	Body     any
	Form     map[string]string
	FormData map[string]string
	Timeout  time.Duration
	Binary   bool
}

// Client issues outbound requests for sandboxed scripts. Every failure is
// reported inside the Response; Do never returns an error. The client holds
// the connection pool and rate limit only; host breakers live in a Scope.
type Client struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	breakers resilience.Settings
	cfg      Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu sync.RWMutex
}

// NewClient creates the client shared by all sandbox sessions
func NewClient(cfg Config, logger *zap.Logger) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Pooled transport from retryablehttp; retries themselves are driven by resty
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	r := resty.New().
		SetTransport(retryClient.HTTPClient.Transport).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(300 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || resp.StatusCode() >= 500
		})

	breakers := resilience.Settings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 8 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
		IsFailure: func(err error) bool {
			// Cancellation by the caller says nothing about the host
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("script host breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	c := &Client{
		resty:    r,
		breakers: breakers,
		cfg:      cfg,
		logger:   logger,
	}
	c.SetRateLimit(cfg.RateLimit)
	return c
}

// WithMetrics attaches a metrics collector
func (c *Client) WithMetrics(m *monitoring.Metrics) *Client {
	c.metrics = m
	return c
}

// SetRateLimit configures a global requests-per-second cap; <=0 removes it
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// Timeout returns the per-call ceiling
func (c *Client) Timeout() time.Duration {
	return c.cfg.Timeout
}

// Scope is a view of the client with its own per-host breakers. Each
// sandbox session gets one, so a script hammering a failing host only
// fails fast for itself.
type Scope struct {
	client *Client
	hosts  *resilience.Group
}

// Scope creates an isolated breaker scope named after its owner
func (c *Client) Scope(name string) *Scope {
	return &Scope{client: c, hosts: resilience.NewGroup("script-http:"+name, c.breakers)}
}

// Do performs the request through the scope's host breakers
func (s *Scope) Do(ctx context.Context, rawURL string, opts Options) *Response {
	return s.client.record(s.client.do(ctx, s.hosts, rawURL, opts))
}

// Do performs the request without any breaker and normalizes the outcome
func (c *Client) Do(ctx context.Context, rawURL string, opts Options) *Response {
	return c.record(c.do(ctx, nil, rawURL, opts))
}

func (c *Client) record(resp *Response) *Response {
	if c.metrics != nil {
		c.metrics.RecordScriptRequest(resp.outcome())
	}
	return resp
}

func (c *Client) do(ctx context.Context, hosts *resilience.Group, rawURL string, opts Options) *Response {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return failed(fmt.Sprintf("invalid url: %q", rawURL))
	}

	timeout := c.cfg.Timeout
	if opts.Timeout > 0 && opts.Timeout < timeout {
		timeout = opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()
	if err := limiter.Wait(ctx); err != nil {
		return failed(fmt.Sprintf("rate limit: %v", err))
	}

	req, err := c.build(ctx, opts)
	if err != nil {
		return failed(err.Error())
	}

	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	exec := func() (*resty.Response, error) {
		r, err := req.Execute(method, u.String())
		if err != nil {
			return r, err
		}
		if r.StatusCode() >= 500 {
			return r, errServerStatus
		}
		return r, nil
	}
	var raw *resty.Response
	if hosts != nil {
		raw, err = resilience.Execute(hosts.Get(u.Host), exec)
	} else {
		raw, err = exec()
	}

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return failed(fmt.Sprintf("host %s temporarily unavailable: %v", u.Host, err))
	case errors.Is(err, errServerStatus):
		err = nil
	case err != nil:
		if ctx.Err() == context.DeadlineExceeded {
			return failed(fmt.Sprintf("request timed out after %s", timeout))
		}
		c.logger.Debug("script request failed",
			zap.String("method", method),
			zap.String("host", u.Host),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return failed(err.Error())
	}

	return normalize(raw, opts.Binary)
}

func (c *Client) build(ctx context.Context, opts Options) (*resty.Request, error) {
	req := c.resty.R().SetContext(ctx)

	hasUA := false
	hasType := false
	for k, v := range opts.Headers {
		switch strings.ToLower(k) {
		case "user-agent":
			hasUA = true
		case "content-type":
			hasType = true
		}
		req.SetHeader(k, v)
	}
	if !hasUA {
		req.SetHeader("User-Agent", c.cfg.UserAgent)
	}

	switch {
	case len(opts.FormData) > 0:
		req.SetMultipartFormData(opts.FormData)
	case len(opts.Form) > 0:
		req.SetFormData(opts.Form)
	case opts.Body != nil:
		switch b := opts.Body.(type) {
		case string:
			req.SetBody(b)
		case []byte:
			req.SetBody(b)
		default:
			data, err := sonic.Marshal(b)
			if err != nil {
				return nil, fmt.Errorf("encode body: %w", err)
			}
			if !hasType {
				req.SetHeader("Content-Type", "application/json")
			}
			req.SetBody(data)
		}
	}

	return req, nil
}
