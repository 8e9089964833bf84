// Package analytics builds the per-site dashboard summary.
package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"clickguard/internal/database"
	"clickguard/internal/domain"
)

const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
)

var botLevels = []domain.ThreatLevel{domain.ThreatHigh, domain.ThreatCritical}

type WindowStats struct {
	Visitors int64 `json:"visitors"`
	Bots     int64 `json:"bots"`
	Blocked  int64 `json:"blocked"`
}

type Breakdowns struct {
	Devices      []database.GroupCount `json:"devices"`
	Browsers     []database.GroupCount `json:"browsers"`
	OS           []database.GroupCount `json:"os"`
	Countries    []database.GroupCount `json:"countries"`
	ThreatLevels []database.GroupCount `json:"threat_levels"`
}

type Summary struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Last24h     WindowStats `json:"last_24h"`
	Last7d      WindowStats `json:"last_7d"`
	Last30d     WindowStats `json:"last_30d"`
	// Breakdowns cover the 30 day window.
	Breakdowns  Breakdowns `json:"breakdowns"`
	FraudEvents int64      `json:"fraud_events"`
	BlockedIPs  int64      `json:"blocked_ips"`
}

type Aggregator struct {
	// MaxConcurrency bounds the number of queries in flight; 0 means no limit.
	MaxConcurrency int
}

func NewAggregator() *Aggregator {
	return &Aggregator{MaxConcurrency: 8}
}

// Summary runs every query concurrently and fails if any of them fails.
func (a *Aggregator) Summary(ctx context.Context, siteID uint64, now time.Time) (Summary, error) {
	summary := Summary{GeneratedAt: now.UTC()}

	g, ctx := errgroup.WithContext(ctx)
	if a != nil && a.MaxConcurrency > 0 {
		g.SetLimit(a.MaxConcurrency)
	}

	windows := []struct {
		span  time.Duration
		stats *WindowStats
	}{
		{Day, &summary.Last24h},
		{Week, &summary.Last7d},
		{Month, &summary.Last30d},
	}
	for _, w := range windows {
		since := now.Add(-w.span)
		countInto(ctx, g, siteID, database.VisitorCountFilter{Since: since}, &w.stats.Visitors)
		countInto(ctx, g, siteID, database.VisitorCountFilter{Since: since, Levels: botLevels}, &w.stats.Bots)
		countInto(ctx, g, siteID, database.VisitorCountFilter{Since: since, BlockedOnly: true}, &w.stats.Blocked)
	}

	monthStart := now.Add(-Month)
	breakdowns := []struct {
		dimension string
		dst       *[]database.GroupCount
	}{
		{database.DimensionDevice, &summary.Breakdowns.Devices},
		{database.DimensionBrowser, &summary.Breakdowns.Browsers},
		{database.DimensionOS, &summary.Breakdowns.OS},
		{database.DimensionCountry, &summary.Breakdowns.Countries},
		{database.DimensionThreatLevel, &summary.Breakdowns.ThreatLevels},
	}
	for _, b := range breakdowns {
		g.Go(func() error {
			rows, err := database.VisitorBreakdown(ctx, siteID, monthStart, b.dimension)
			if err != nil {
				return err
			}
			*b.dst = rows
			return nil
		})
	}

	g.Go(func() error {
		n, err := database.CountFraudEvents(ctx, siteID)
		summary.FraudEvents = n
		return err
	})
	g.Go(func() error {
		n, err := database.CountBlockedIPs(ctx, siteID)
		summary.BlockedIPs = n
		return err
	})

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func countInto(ctx context.Context, g *errgroup.Group, siteID uint64, filter database.VisitorCountFilter, dst *int64) {
	g.Go(func() error {
		n, err := database.CountVisitorEvents(ctx, siteID, filter)
		*dst = n
		return err
	})
}
