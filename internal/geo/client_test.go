package geo

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const ipAPISuccessBody = `{"status":"success","country":"Germany","countryCode":"DE","regionName":"Hesse","city":"Frankfurt am Main","timezone":"Europe/Berlin","isp":"Hetzner Online GmbH","org":"Hetzner","as":"AS24940 Hetzner Online GmbH","proxy":false,"hosting":true}`

func newIPAPIServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestClientEnrich_MapsIPAPIFields(t *testing.T) {
	var gotPath, gotFields string
	srv, _ := newIPAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFields = r.URL.Query().Get("fields")
		fmt.Fprint(w, ipAPISuccessBody)
	})

	client := NewClient(NewIPAPIProvider(srv.URL, srv.Client()), nil)
	res := client.Enrich(context.Background(), "8.8.8.8")
	if res == nil {
		t.Fatal("Enrich returned nil")
	}

	if gotPath != "/json/8.8.8.8" {
		t.Fatalf("path = %q", gotPath)
	}
	if !strings.Contains(gotFields, "hosting") || !strings.Contains(gotFields, "proxy") {
		t.Fatalf("fields query missing flags: %q", gotFields)
	}
	if res.Country != "Germany" || res.CountryCode != "DE" || res.Region != "Hesse" {
		t.Fatalf("unexpected location: %+v", res)
	}
	if res.ASNumber != "AS24940 Hetzner Online GmbH" || res.ISP != "Hetzner Online GmbH" {
		t.Fatalf("unexpected network fields: %+v", res)
	}
	if res.Proxy == nil || *res.Proxy {
		t.Fatalf("Proxy = %v, want false", res.Proxy)
	}
	if res.VPN == nil || !*res.VPN {
		t.Fatalf("VPN = %v, want true from hosting flag", res.VPN)
	}
	if res.Tor != nil {
		t.Fatalf("Tor = %v, want nil", res.Tor)
	}
}

func TestClientEnrich_BudgetExhaustion(t *testing.T) {
	srv, hits := newIPAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ipAPISuccessBody)
	})

	clock := newFakeClock()
	limiter := NewWindowLimiter(DefaultBudget, DefaultWindow).WithClock(clock.Now)
	client := NewClient(NewIPAPIProvider(srv.URL, srv.Client()), limiter)
	ctx := context.Background()

	for i := 0; i < 45; i++ {
		ip := fmt.Sprintf("8.8.%d.%d", i/250, i%250+1)
		if res := client.Enrich(ctx, ip); res == nil {
			t.Fatalf("call %d returned nil", i+1)
		}
	}
	if got := atomic.LoadInt32(hits); got != 45 {
		t.Fatalf("external requests = %d, want 45", got)
	}

	if res := client.Enrich(ctx, "9.9.9.9"); res != nil {
		t.Fatal("46th call returned data, want nil")
	}
	if got := atomic.LoadInt32(hits); got != 45 {
		t.Fatalf("46th call reached the provider: %d requests", got)
	}

	clock.Advance(DefaultWindow)
	if res := client.Enrich(ctx, "9.9.9.9"); res == nil {
		t.Fatal("call after window returned nil")
	}
	if got := atomic.LoadInt32(hits); got != 46 {
		t.Fatalf("external requests = %d, want 46", got)
	}
}

func TestClientEnrich_SkipsNonPublicAddresses(t *testing.T) {
	srv, hits := newIPAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ipAPISuccessBody)
	})
	client := NewClient(NewIPAPIProvider(srv.URL, srv.Client()), nil)

	for _, ip := range []string{"unknown", "", "127.0.0.1", "10.1.2.3", "192.168.0.10", "172.20.0.1", "::1", "fe80::1", "0.0.0.0"} {
		if res := client.Enrich(context.Background(), ip); res != nil {
			t.Fatalf("Enrich(%q) = %+v, want nil", ip, res)
		}
	}
	if got := atomic.LoadInt32(hits); got != 0 {
		t.Fatalf("external requests = %d, want 0", got)
	}
	if client.Limiter().Remaining() != DefaultBudget {
		t.Fatal("skipped addresses consumed budget")
	}
}

func TestClientEnrich_FailuresReturnNil(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non 2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"status":`)
			},
		},
		{
			name: "provider failure status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"status":"fail","message":"reserved range"}`)
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newIPAPIServer(t, tt.handler)
			client := NewClient(NewIPAPIProvider(srv.URL, srv.Client()), nil, WithTimeout(50*time.Millisecond))

			if res := client.Enrich(context.Background(), "1.1.1.1"); res != nil {
				t.Fatalf("Enrich = %+v, want nil", res)
			}
		})
	}
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]*Result
}

func (c *memoryCache) Get(_ context.Context, ip string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.items[ip]
	return res, ok
}

func (c *memoryCache) Set(_ context.Context, ip string, res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[ip] = res
}

func TestClientEnrich_CacheHitsDoNotSpendBudget(t *testing.T) {
	srv, hits := newIPAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ipAPISuccessBody)
	})
	cache := &memoryCache{items: map[string]*Result{}}
	client := NewClient(NewIPAPIProvider(srv.URL, srv.Client()), NewWindowLimiter(1, time.Minute), WithCache(cache))

	for i := 0; i < 5; i++ {
		if res := client.Enrich(context.Background(), "8.8.4.4"); res == nil {
			t.Fatalf("call %d returned nil", i+1)
		}
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Fatalf("external requests = %d, want 1", got)
	}
}

type stubProvider struct {
	calls int32
	res   *Result
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Lookup(_ context.Context, _ net.IP) (*Result, error) {
	atomic.AddInt32(&p.calls, 1)
	return p.res, nil
}

func TestClientEnrich_NilProviderResult(t *testing.T) {
	client := NewClient(&stubProvider{}, nil)
	if res := client.Enrich(context.Background(), "1.1.1.1"); res != nil {
		t.Fatalf("Enrich = %+v, want nil", res)
	}
}

func TestClientEnrich_NilClient(t *testing.T) {
	var client *Client
	if res := client.Enrich(context.Background(), "1.1.1.1"); res != nil {
		t.Fatal("nil client returned data")
	}
}
