package fetch

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jobwatch/jobwatch/internal/model"
)

// HostLimiter rate-limits per hostname so a run never hammers one source
// site, whatever the batch composition.
type HostLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
	b  int
}

// NewHostLimiter creates a limiter allowing reqPerSec sustained requests with
// the given burst per host.
func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	return &HostLimiter{
		m: make(map[string]*rate.Limiter),
		r: rate.Limit(reqPerSec),
		b: burst,
	}
}

func (hl *HostLimiter) limiterFor(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if lim, ok := hl.m[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(hl.r, hl.b)
	hl.m[host] = lim
	return lim
}

// WaitURL blocks until the host of raw may be requested again. Unparseable
// URLs share one fallback bucket.
func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return hl.limiterFor("_").Wait(ctx)
	}
	return hl.limiterFor(u.Host).Wait(ctx)
}

// RateLimitedFetcher is a decorator that enforces per-host rate limiting
// before delegating to the wrapped Fetcher. All fetchers sharing source
// hosts should share the same limiter instance.
type RateLimitedFetcher struct {
	inner   model.Fetcher
	limiter *HostLimiter
}

// NewRateLimitedFetcher wraps a Fetcher with per-host rate limiting.
func NewRateLimitedFetcher(inner model.Fetcher, limiter *HostLimiter) *RateLimitedFetcher {
	return &RateLimitedFetcher{inner: inner, limiter: limiter}
}

// Fetch waits for the limiter to allow the host, then delegates.
func (f *RateLimitedFetcher) Fetch(ctx context.Context, url string) (*model.FetchResult, error) {
	if err := f.limiter.WaitURL(ctx, url); err != nil {
		return nil, err
	}
	return f.inner.Fetch(ctx, url)
}
