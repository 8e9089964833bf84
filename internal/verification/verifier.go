// Package verification proves domain ownership by fetching the site over
// HTTPS and looking for its tracking id. Every hop is checked against a
// deny-list so the fetch can never be pointed at internal infrastructure.
package verification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"clickguard/internal/config"
	"clickguard/internal/database"
	"clickguard/internal/domain"
	"clickguard/internal/metrics"
)

const (
	UserAgent = "ClickGuard-Verifier/1.0 (+https://clickguard.io/verify)"

	DefaultTimeout      = 8 * time.Second
	DefaultMaxRedirects = 5
	DefaultMaxBodyBytes = 2 << 20
)

type Reason string

const (
	ReasonVerified     Reason = "verified"
	ReasonDeniedHost   Reason = "denied_host"
	ReasonUnresolvable Reason = "unresolvable"
	ReasonHTTPStatus   Reason = "http_status"
	ReasonTimeout      Reason = "timeout"
	ReasonConnect      Reason = "connect_failed"
	ReasonRedirects    Reason = "too_many_redirects"
	ReasonTokenMissing Reason = "token_missing"
)

// Result is reported to the site owner as-is. Failures are outcomes, not errors.
type Result struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
	Reason   Reason `json:"-"`
}

// Resolver is satisfied by *net.Resolver.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

type MarkVerifiedFunc func(ctx context.Context, siteID uint64, at time.Time) error

var (
	errDeniedHost       = errors.New("verification: destination not allowed")
	errUnresolvable     = errors.New("verification: host did not resolve")
	errTooManyRedirects = errors.New("verification: too many redirects")
)

type Verifier struct {
	resolver     Resolver
	transport    http.RoundTripper
	markVerified MarkVerifiedFunc
	settings     func() config.VerificationConfig
	snippetBase  func() string
	now          func() time.Time
}

type Option func(*Verifier)

func WithResolver(resolver Resolver) Option {
	return func(v *Verifier) {
		if resolver != nil {
			v.resolver = resolver
		}
	}
}

// WithTransport replaces the guarded dialer. Host checks in Verify and on
// every redirect still apply.
func WithTransport(rt http.RoundTripper) Option {
	return func(v *Verifier) {
		v.transport = rt
	}
}

func WithMarkVerified(fn MarkVerifiedFunc) Option {
	return func(v *Verifier) {
		if fn != nil {
			v.markVerified = fn
		}
	}
}

func WithSettings(fn func() config.VerificationConfig) Option {
	return func(v *Verifier) {
		if fn != nil {
			v.settings = fn
		}
	}
}

func WithSnippetBaseURL(fn func() string) Option {
	return func(v *Verifier) {
		if fn != nil {
			v.snippetBase = fn
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

func New(opts ...Option) *Verifier {
	v := &Verifier{
		resolver:     net.DefaultResolver,
		markVerified: database.MarkSiteVerified,
		settings:     func() config.VerificationConfig { return config.GetConfig().Verification },
		snippetBase:  func() string { return config.GetConfig().SnippetBaseURL },
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.transport == nil {
		v.transport = guardedTransport(v.resolver)
	}
	return v
}

// Verify fetches https://{domain}/ and looks for the site's public id. The
// returned error is only set when a successful verification could not be
// persisted.
func (v *Verifier) Verify(ctx context.Context, site *domain.TrackedSite) (Result, error) {
	result, err := v.verify(ctx, site)
	outcome := string(result.Reason)
	if err != nil {
		outcome = "error"
	}
	metrics.VerificationsTotal.WithLabelValues(outcome).Inc()
	return result, err
}

func (v *Verifier) verify(ctx context.Context, site *domain.TrackedSite) (Result, error) {
	host := site.Domain
	target := "https://" + host

	if IsDeniedHost(host) {
		log.Warn("Verification blocked for denied host", "site_id", site.ID, "domain", host)
		return deniedResult(host), nil
	}
	cfg := v.settings()
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := v.checkResolved(fetchCtx, host); err != nil {
		return v.failure(site, target, err), nil
	}

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, target+"/", nil)
	if err != nil {
		return Result{Message: fmt.Sprintf("Could not connect to %s", target), Reason: ReasonConnect}, nil
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	client := &http.Client{
		Transport:     v.transport,
		CheckRedirect: v.checkRedirect(maxRedirects),
	}

	resp, err := client.Do(req)
	if err != nil {
		return v.failure(site, target, err), nil
	}
	defer resp.Body.Close()

	finalHost := resp.Request.URL.Hostname()
	if IsDeniedHost(finalHost) {
		return deniedResult(finalHost), nil
	}
	if err := v.checkResolved(fetchCtx, finalHost); err != nil {
		return v.failure(site, target, err), nil
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Result{
			Message: fmt.Sprintf("Could not reach %s (HTTP status %d)", target, resp.StatusCode),
			Reason:  ReasonHTTPStatus,
		}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return v.failure(site, target, err), nil
	}

	if !strings.Contains(string(body), site.PublicID) {
		return Result{
			Message: fmt.Sprintf(
				"Tracking code not found on %s. Add this snippet to your page and try again: %s",
				target, Snippet(v.snippetBase(), site.PublicID),
			),
			Reason: ReasonTokenMissing,
		}, nil
	}

	now := v.now()
	if err := v.markVerified(ctx, site.ID, now); err != nil {
		return Result{}, fmt.Errorf("verification: persist verified flag: %w", err)
	}
	if !site.Verified {
		site.Verified = true
		verifiedAt := now.UTC()
		site.VerifiedAt = &verifiedAt
	}

	log.Info("Domain verified", "site_id", site.ID, "domain", host)
	return Result{Verified: true, Message: "Domain verified successfully", Reason: ReasonVerified}, nil
}

func (v *Verifier) failure(site *domain.TrackedSite, target string, err error) Result {
	log.Debug("Domain verification failed", "site_id", site.ID, "domain", site.Domain, "error", err)

	switch {
	case errors.Is(err, errDeniedHost):
		return deniedResult(site.Domain)
	case errors.Is(err, errUnresolvable):
		return Result{Message: fmt.Sprintf("Could not resolve %s", site.Domain), Reason: ReasonUnresolvable}
	case errors.Is(err, errTooManyRedirects):
		return Result{Message: fmt.Sprintf("Too many redirects while fetching %s", target), Reason: ReasonRedirects}
	case isTimeout(err):
		return Result{Message: fmt.Sprintf("Request to %s timed out", target), Reason: ReasonTimeout}
	default:
		return Result{Message: fmt.Sprintf("Could not connect to %s", target), Reason: ReasonConnect}
	}
}

func deniedResult(host string) Result {
	return Result{
		Message: fmt.Sprintf("%s points to a restricted address and cannot be verified", host),
		Reason:  ReasonDeniedHost,
	}
}

func (v *Verifier) checkRedirect(maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return errTooManyRedirects
		}
		if req.URL.Scheme != "https" && req.URL.Scheme != "http" {
			return errDeniedHost
		}
		host := req.URL.Hostname()
		if IsDeniedHost(host) {
			return errDeniedHost
		}
		return v.checkResolved(req.Context(), host)
	}
}

// checkResolved rejects hosts with any address in a denied range.
func (v *Verifier) checkResolved(ctx context.Context, host string) error {
	ips, err := lookup(ctx, v.resolver, host)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		if IsDeniedIP(ip) {
			return errDeniedHost
		}
	}
	return nil
}

func lookup(ctx context.Context, resolver Resolver, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		if isTimeout(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errUnresolvable, err)
	}
	if len(addrs) == 0 {
		return nil, errUnresolvable
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		ips = append(ips, addr.IP)
	}
	return ips, nil
}

// guardedTransport dials only addresses that pass IsDeniedIP, so a DNS answer
// that changes between the check and the fetch cannot reach internal hosts.
func guardedTransport(resolver Resolver) *http.Transport {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := lookup(ctx, resolver, host)
		if err != nil {
			return nil, err
		}
		for _, ip := range ips {
			if IsDeniedIP(ip) {
				return nil, errDeniedHost
			}
		}

		var lastErr error
		for _, ip := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
	return transport
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
