// Package tracking runs the beacon ingestion pipeline: resolve the site,
// parse, enrich, score, consult the blocklist, persist and decide.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"clickguard/internal/api/dto"
	"clickguard/internal/database"
	"clickguard/internal/domain"
	"clickguard/internal/geo"
	"clickguard/internal/metrics"
	"clickguard/internal/scoring"
	"clickguard/internal/support"
	"clickguard/internal/uaparse"
)

var (
	ErrMissingSiteID  = errors.New("missing site id")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnknownSite    = errors.New("unknown site")
	ErrRateLimited    = errors.New("too many beacons from this address")
)

// Request is one normalized beacon plus its transport metadata.
type Request struct {
	Beacon    dto.NormalizedBeacon
	IP        string
	UserAgent string
}

type Decision struct {
	Blocked bool
	Result  scoring.Result
	EventID uint64
}

type Tracker struct {
	store    Store
	enricher geo.Enricher
	policy   func() scoring.Policy
	throttle *Throttle
	now      func() time.Time
}

type Option func(*Tracker)

// WithPolicy supplies the scoring policy per beacon, so settings changes
// apply without a restart.
func WithPolicy(policy func() scoring.Policy) Option {
	return func(t *Tracker) {
		if policy != nil {
			t.policy = policy
		}
	}
}

func WithThrottle(throttle *Throttle) Option {
	return func(t *Tracker) {
		t.throttle = throttle
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func New(store Store, enricher geo.Enricher, opts ...Option) *Tracker {
	if store == nil {
		store = DBStore{}
	}
	t := &Tracker{
		store:    store,
		enricher: enricher,
		policy:   scoring.DefaultPolicy,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track processes a single beacon. Validation errors leave no trace; once
// the visitor event is stored, later writes are best-effort and only logged.
func (t *Tracker) Track(ctx context.Context, req Request) (Decision, error) {
	beacon := req.Beacon
	if beacon.SiteID == "" {
		metrics.BeaconsTotal.WithLabelValues("rejected").Inc()
		return Decision{}, ErrMissingSiteID
	}

	if !t.throttle.Allow(req.IP) {
		metrics.BeaconsTotal.WithLabelValues("throttled").Inc()
		return Decision{}, ErrRateLimited
	}

	site, err := t.store.SiteByPublicID(ctx, beacon.SiteID)
	if err != nil {
		if errors.Is(err, database.ErrSiteNotFound) {
			metrics.BeaconsTotal.WithLabelValues("unknown_site").Inc()
			return Decision{}, ErrUnknownSite
		}
		metrics.BeaconsTotal.WithLabelValues("error").Inc()
		return Decision{}, fmt.Errorf("tracking: resolve site: %w", err)
	}

	userAgent := beacon.UserAgent
	if userAgent == "" {
		userAgent = req.UserAgent
	}

	ua := uaparse.Parse(userAgent)

	var location *geo.Result
	if t.enricher != nil {
		location = t.enricher.Enrich(ctx, req.IP)
	}

	scorer := scoring.New(t.policy())
	result := scorer.Score(scoring.Signals{
		Headless:       beacon.Headless,
		MouseMovements: beacon.MouseMovements,
		TimeOnPage:     beacon.TimeOnPage,
		UserAgent:      userAgent,
	})

	alreadyBlocked, err := t.store.IsIPBlocked(ctx, site.ID, req.IP)
	if err != nil {
		metrics.BeaconsTotal.WithLabelValues("error").Inc()
		return Decision{}, fmt.Errorf("tracking: check blocklist: %w", err)
	}

	autoBlock := scorer.IsCritical(result.Score) && !alreadyBlocked

	// The row records the decision returned to the beacon. A failed auto-block
	// below still leaves the row blocked even though no BlockedIP exists.
	event := buildVisitorEvent(site.ID, req.IP, userAgent, beacon, ua, location, result, alreadyBlocked || autoBlock)
	if err := t.store.CreateVisitorEvent(ctx, event); err != nil {
		metrics.BeaconsTotal.WithLabelValues("error").Inc()
		return Decision{}, fmt.Errorf("tracking: persist visitor event: %w", err)
	}
	metrics.ThreatLevelsTotal.WithLabelValues(string(result.Level)).Inc()

	decision := Decision{Blocked: event.Blocked, Result: result, EventID: event.ID}

	if result.Level.AtLeast(domain.ThreatHigh) {
		if err := t.store.RecordFraudEvent(ctx, event, result); err != nil {
			log.Error("Failed to record fraud event", "site_id", site.ID, "visitor_event_id", event.ID, "error", err)
		}
	}

	if autoBlock {
		reason := fmt.Sprintf("Auto-blocked: bot score %d", result.Score)
		created, err := t.store.AutoBlockIP(ctx, site.ID, req.IP, reason)
		switch {
		case err != nil:
			log.Error("Failed to auto-block IP", "site_id", site.ID, "ip", req.IP, "error", err)
		case created:
			metrics.AutoBlocksTotal.Inc()
			log.Info("IP auto-blocked", "site_id", site.ID, "ip", req.IP, "score", result.Score)
		}
	}

	if !site.Verified {
		if err := t.store.MarkSiteVerified(ctx, site.ID, t.now()); err != nil {
			log.Error("Failed to mark site verified from beacon", "site_id", site.ID, "error", err)
		} else {
			log.Info("Site verified by first beacon", "site_id", site.ID, "domain", site.Domain)
		}
	}

	if decision.Blocked {
		metrics.BeaconsTotal.WithLabelValues("blocked").Inc()
	} else {
		metrics.BeaconsTotal.WithLabelValues("accepted").Inc()
	}

	return decision, nil
}

// Column widths of the client-supplied visitor fields.
const (
	maxVersionLength     = 64
	maxLanguageLength    = 64
	maxFingerprintLength = 128
)

func buildVisitorEvent(
	siteID uint64,
	ip, userAgent string,
	beacon dto.NormalizedBeacon,
	ua uaparse.Result,
	location *geo.Result,
	result scoring.Result,
	blocked bool,
) *domain.VisitorEvent {
	event := &domain.VisitorEvent{
		SiteID:         siteID,
		IP:             support.TruncateString(ip, support.MaxClientIPLength),
		UserAgent:      userAgent,
		DeviceType:     ua.DeviceType,
		Browser:        ua.Browser,
		BrowserVersion: support.TruncateString(ua.BrowserVersion, maxVersionLength),
		OS:             ua.OS,
		OSVersion:      support.TruncateString(ua.OSVersion, maxVersionLength),
		BotScore:       result.Score,
		ThreatLevel:    result.Level,
		MouseMovements: beacon.MouseMovements,
		TimeOnPage:     beacon.TimeOnPage,
		ClickCount:     beacon.ClickCount,
		Headless:       beacon.Headless,
		ScreenWidth:    beacon.ScreenWidth,
		ScreenHeight:   beacon.ScreenHeight,
		Language:       support.TruncateString(beacon.Language, maxLanguageLength),
		Fingerprint:    support.TruncateString(beacon.Fingerprint, maxFingerprintLength),
		Referrer:       beacon.Referrer,
		PageURL:        beacon.PageURL,
		Blocked:        blocked,
	}

	if location != nil {
		event.Country = optional(location.Country)
		event.CountryCode = optional(location.CountryCode)
		event.City = optional(location.City)
		event.Region = optional(location.Region)
		event.ISP = optional(location.ISP)
		event.Org = optional(location.Org)
		event.ASNumber = optional(location.ASNumber)
		event.Timezone = optional(location.Timezone)
		event.IsProxy = location.Proxy
		event.IsVPN = location.VPN
		event.IsTor = location.Tor
	}

	return event
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
