package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/market-validator/internal/model"
	"github.com/sells-group/market-validator/internal/resilience"
)

// maxBodyBytes bounds how much of a quote response is decoded.
const maxBodyBytes = 1 << 20

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// HostRate is the starting request rate per upstream host.
	HostRate  rate.Limit
	HostBurst int
	// Envelope names a top-level key whose object holds the fields, e.g. "data".
	Envelope string
	Client   *http.Client
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTP fetches one JSON quote object per ticker from the source's item URL.
// It makes exactly one request per call; retries belong to the caller.
type HTTP struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTP creates a new HTTP fetcher with the given options.
func NewHTTP(opts HTTPOptions) *HTTP {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "market-validator/1.0"
	}
	if opts.HostRate == 0 {
		opts.HostRate = 5
	}
	if opts.HostBurst == 0 {
		opts.HostBurst = 1
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				MaxConnsPerHost:     8,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTP{
		client:   client,
		opts:     opts,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

func (f *HTTP) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(f.opts.HostRate, f.opts.HostBurst)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch implements Fetcher.
func (f *HTTP) Fetch(ctx context.Context, source model.DataSource, ticker string) (map[string]any, error) {
	fields, err := f.fetch(ctx, source, ticker)
	if err != nil {
		return nil, fetchErr(source, ticker, err)
	}
	return fields, nil
}

func (f *HTTP) fetch(ctx context.Context, source model.DataSource, ticker string) (map[string]any, error) {
	if source.ItemURLTemplate == "" {
		return nil, eris.Errorf("source %s has no item url template", source.ID)
	}
	rawURL := source.ItemURL(url.PathEscape(ticker))
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "parse item url")
	}

	lim := f.limiterFor(u.Host)
	if err := lim.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "http request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		lim.OnRateLimit()
		return nil, resilience.NewTransientError(eris.Errorf("http 429 from %s", u.Host), resp.StatusCode)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(eris.Errorf("http %d from %s", resp.StatusCode, u.Host), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("unexpected status %d from %s", resp.StatusCode, u.Host)
	}
	lim.OnSuccess()

	fields, err := decodeFields(io.LimitReader(resp.Body, maxBodyBytes), f.opts.Envelope)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("fetched quote",
		zap.String("source", string(source.ID)),
		zap.String("ticker", ticker),
		zap.Int("fields", len(fields)),
	)
	return fields, nil
}

// decodeFields reads a JSON object, keeping numbers as json.Number so no
// precision is lost before the source transform runs.
func decodeFields(r io.Reader, envelope string) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, eris.Wrap(err, "decode quote body")
	}
	if envelope == "" {
		return body, nil
	}
	inner, ok := body[envelope].(map[string]any)
	if !ok {
		return nil, eris.Errorf("quote body has no %q object", envelope)
	}
	return inner, nil
}
