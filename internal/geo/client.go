package geo

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"clickguard/internal/metrics"
)

const DefaultLookupTimeout = 3 * time.Second

// Client wraps a Provider with the shared lookup budget, an optional cache
// and per-call timeouts. It is safe for concurrent use.
type Client struct {
	provider Provider
	limiter  *WindowLimiter
	cache    Cache
	timeout  time.Duration
	group    singleflight.Group
}

type ClientOption func(*Client)

func WithCache(cache Cache) ClientOption {
	return func(c *Client) {
		c.cache = cache
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func NewClient(provider Provider, limiter *WindowLimiter, opts ...ClientOption) *Client {
	if limiter == nil {
		limiter = NewWindowLimiter(DefaultBudget, DefaultWindow)
	}
	c := &Client{
		provider: provider,
		limiter:  limiter,
		timeout:  DefaultLookupTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) Limiter() *WindowLimiter {
	return c.limiter
}

// Enrich returns metadata for ip, or nil when the address is not routable,
// the budget is spent, or the provider fails in any way.
func (c *Client) Enrich(ctx context.Context, ip string) *Result {
	if c == nil || c.provider == nil {
		return nil
	}

	parsed := net.ParseIP(strings.TrimSpace(ip))
	if !IsPublicIP(parsed) {
		metrics.GeoLookupsTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	key := parsed.String()

	if c.cache != nil {
		if res, ok := c.cache.Get(ctx, key); ok {
			metrics.GeoLookupsTotal.WithLabelValues("cache_hit").Inc()
			return res
		}
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		return c.lookup(ctx, parsed), nil
	})
	res, _ := v.(*Result)
	return res
}

func (c *Client) lookup(ctx context.Context, ip net.IP) *Result {
	if !c.limiter.Allow() {
		metrics.GeoLookupsTotal.WithLabelValues("rate_limited").Inc()
		log.Debug("geo: lookup budget exhausted", "ip", ip.String())
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.provider.Lookup(lookupCtx, ip)
	if err != nil {
		metrics.GeoLookupsTotal.WithLabelValues("failed").Inc()
		log.Debug("geo: lookup failed", "provider", c.provider.Name(), "ip", ip.String(), "error", err)
		return nil
	}
	if res == nil {
		metrics.GeoLookupsTotal.WithLabelValues("failed").Inc()
		return nil
	}

	metrics.GeoLookupsTotal.WithLabelValues("success").Inc()
	if c.cache != nil {
		c.cache.Set(ctx, ip.String(), res)
	}
	return res
}
