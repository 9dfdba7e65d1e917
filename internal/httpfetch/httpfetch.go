// Package httpfetch implements the polite polling client shared by the
// source connectors: token-bucket rate limiting with a hard ceiling,
// conditional requests backed by cached validators, and cooldown handling
// for upstream throttling.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantfold/tip/errs"
	"github.com/quantfold/tip/internal/fetchstate"
)

const (
	// AbsoluteMaxRPS is the ceiling applied to any configured rate. The SEC
	// hard limit is 10 requests per second; staying at 8 leaves headroom.
	AbsoluteMaxRPS = 8.0

	defaultRPS        = 2.0
	defaultTimeout    = 30 * time.Second
	defaultRetryAfter = 60 * time.Second
	cooldownBase      = 10 * time.Minute
	cooldownThreshold = 3
	jitterFloor       = 100 * time.Millisecond
	jitterSpread      = 400 * time.Millisecond
)

// Config describes one connector's fetch policy.
type Config struct {
	// Source tags log lines and error envelopes (for example "edgar").
	Source string
	// UserAgent is sent on every request. Upstreams require contact info.
	UserAgent string
	// MaxRPS is the sustained request rate, capped at AbsoluteMaxRPS.
	MaxRPS float64
	// Timeout bounds each request.
	Timeout time.Duration
	// State caches HTTP validators and seen markers. Optional for plain fetches.
	State *fetchstate.Store
	// Client overrides the HTTP client, primarily for testing.
	Client *http.Client
	// Logger receives throttle and cooldown notices. Optional.
	Logger *log.Logger
}

// Result carries the outcome of a conditional fetch.
type Result struct {
	// Body is the response payload; nil when the entity was not modified.
	Body []byte
	// Modified reports whether the upstream returned fresh content.
	Modified bool
	// StatusCode is the upstream HTTP status.
	StatusCode int
}

// Fetcher issues rate-limited GETs on behalf of one connector. It is not
// safe for concurrent use; each connector loop owns its fetcher.
type Fetcher struct {
	source    string
	userAgent string
	limiter   *rate.Limiter
	client    *http.Client
	state     *fetchstate.Store
	logger    *log.Logger

	sleep     func(context.Context, time.Duration) error
	randFloat func() float64

	consecutiveErrors int
}

// New constructs a Fetcher, capping the configured rate at AbsoluteMaxRPS.
func New(cfg Config) *Fetcher {
	rps := cfg.MaxRPS
	if rps <= 0 {
		rps = defaultRPS
	}
	if rps > AbsoluteMaxRPS {
		if cfg.Logger != nil {
			cfg.Logger.Printf("%s: rps capped from %.1f to %.1f", cfg.Source, rps, AbsoluteMaxRPS)
		}
		rps = AbsoluteMaxRPS
	}
	burst := int(math.Ceil(rps))
	if burst < 1 {
		burst = 1
	}

	client := cfg.Client
	if client == nil {
		client = new(http.Client)
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client.Timeout = timeout
	}

	return &Fetcher{
		source:    cfg.Source,
		userAgent: cfg.UserAgent,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		client:    client,
		state:     cfg.State,
		logger:    cfg.Logger,
		sleep:     sleepContext,
		randFloat: rand.Float64,
	}
}

// Fetch issues a plain rate-limited GET and returns the body on 2xx.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("acquire rate token: %w", err)
	}

	resp, err := f.get(ctx, url, "", "")
	if err != nil {
		return nil, errs.New(f.source, errs.CodeNetwork, errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		return nil, errs.New(f.source, errs.CodeRateLimited, errs.WithHTTP(resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, errs.New(f.source, errs.CodeUnavailable, errs.WithHTTP(resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, errs.New(f.source, errs.CodeNetwork, errs.WithHTTP(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(f.source, errs.CodeNetwork,
			errs.WithMessage("read response body"), errs.WithCause(err))
	}
	return body, nil
}

// FetchConditional issues a rate-limited GET carrying the entity's cached
// validators. On 304 it refreshes the entity's poll timestamp and reports
// Modified=false; on 200 it stores the new validators before returning.
func (f *Fetcher) FetchConditional(ctx context.Context, entity, url string) (Result, error) {
	if f.state == nil {
		return Result{}, errs.New(f.source, errs.CodeConfig,
			errs.WithMessage("conditional fetch requires a state store"))
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("acquire rate token: %w", err)
	}

	cond, err := f.state.Conditional(ctx, entity)
	if err != nil {
		return Result{}, err
	}

	resp, err := f.get(ctx, url, cond.ETag, cond.LastModified)
	if err != nil {
		return Result{}, errs.New(f.source, errs.CodeNetwork,
			errs.WithEntity(entity), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if err := f.state.Touch(ctx, entity); err != nil {
			return Result{}, err
		}
		f.consecutiveErrors = 0
		return Result{Modified: false, StatusCode: resp.StatusCode}, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		if err := f.handleThrottle(ctx, resp); err != nil {
			return Result{}, err
		}
		return Result{StatusCode: resp.StatusCode},
			errs.New(f.source, errs.CodeRateLimited, errs.WithEntity(entity), errs.WithHTTP(resp.StatusCode))

	case resp.StatusCode >= 500:
		f.logf("%s: server error %d for entity %s", f.source, resp.StatusCode, entity)
		return Result{StatusCode: resp.StatusCode},
			errs.New(f.source, errs.CodeUnavailable, errs.WithEntity(entity), errs.WithHTTP(resp.StatusCode))

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Result{StatusCode: resp.StatusCode},
			errs.New(f.source, errs.CodeNetwork, errs.WithEntity(entity), errs.WithHTTP(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, errs.New(f.source, errs.CodeNetwork,
			errs.WithEntity(entity), errs.WithMessage("read response body"), errs.WithCause(err))
	}

	if err := f.state.SetConditional(ctx, entity,
		resp.Header.Get("ETag"), resp.Header.Get("Last-Modified")); err != nil {
		return Result{}, err
	}
	f.consecutiveErrors = 0

	return Result{Body: body, Modified: true, StatusCode: resp.StatusCode}, nil
}

// Jitter sleeps a uniform 100-500ms so per-entity polls do not align.
func (f *Fetcher) Jitter(ctx context.Context) error {
	d := jitterFloor + time.Duration(f.randFloat()*float64(jitterSpread))
	return f.sleep(ctx, d)
}

func (f *Fetcher) get(ctx context.Context, url, etag, lastModified string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
	return f.client.Do(req)
}

// handleThrottle sleeps per the upstream's Retry-After (default 60s). The
// third consecutive throttle instead triggers an 8-12 minute cooldown and
// resets the counter.
func (f *Fetcher) handleThrottle(ctx context.Context, resp *http.Response) error {
	f.consecutiveErrors++

	wait := defaultRetryAfter
	if retryAfter := strings.TrimSpace(resp.Header.Get("Retry-After")); retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
			wait = time.Duration(secs) * time.Second
		}
	}

	f.logf("%s: throttled (status=%d), waiting %s, consecutive_errors=%d",
		f.source, resp.StatusCode, wait, f.consecutiveErrors)

	if f.consecutiveErrors >= cooldownThreshold {
		cooldown := time.Duration(float64(cooldownBase) * (0.8 + 0.4*f.randFloat()))
		f.logf("%s: entering cooldown for %.1f minutes", f.source, cooldown.Minutes())
		if err := f.sleep(ctx, cooldown); err != nil {
			return err
		}
		f.consecutiveErrors = 0
		return nil
	}
	return f.sleep(ctx, wait)
}

func (f *Fetcher) logf(format string, args ...any) {
	if f.logger != nil {
		f.logger.Printf(format, args...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
