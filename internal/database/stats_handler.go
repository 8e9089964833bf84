package database

import (
	"context"
	"fmt"
	"time"

	"clickguard/internal/domain"
)

// VisitorCountFilter narrows CountVisitorEvents.
type VisitorCountFilter struct {
	Since time.Time
	// Levels restricts the count to these threat levels when non-empty.
	Levels      []domain.ThreatLevel
	BlockedOnly bool
}

type GroupCount struct {
	Key   string `gorm:"column:group_key" json:"key"`
	Count int64  `gorm:"column:count" json:"count"`
}

// Breakdown dimensions accepted by VisitorBreakdown, mapped to their columns.
const (
	DimensionDevice      = "device_type"
	DimensionBrowser     = "browser"
	DimensionOS          = "os"
	DimensionCountry     = "country"
	DimensionThreatLevel = "threat_level"
)

var breakdownColumns = map[string]string{
	DimensionDevice:      "device_type",
	DimensionBrowser:     "browser",
	DimensionOS:          "os",
	DimensionCountry:     "country",
	DimensionThreatLevel: "threat_level",
}

func CountVisitorEvents(ctx context.Context, siteID uint64, filter VisitorCountFilter) (int64, error) {
	if DB == nil {
		return 0, ErrNotInitialised
	}

	query := DB.WithContext(ctx).Model(&domain.VisitorEvent{}).Where("site_id = ?", siteID)
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since.UTC())
	}
	if len(filter.Levels) > 0 {
		query = query.Where("threat_level IN ?", filter.Levels)
	}
	if filter.BlockedOnly {
		query = query.Where("blocked = ?", true)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("database: count visitor events: %w", err)
	}
	return count, nil
}

// VisitorBreakdown groups a site's events since the given time by one
// dimension, largest group first. Missing values are reported as "Unknown".
func VisitorBreakdown(ctx context.Context, siteID uint64, since time.Time, dimension string) ([]GroupCount, error) {
	if DB == nil {
		return nil, ErrNotInitialised
	}

	column, ok := breakdownColumns[dimension]
	if !ok {
		return nil, fmt.Errorf("database: unknown breakdown dimension %q", dimension)
	}
	keyExpr := "COALESCE(NULLIF(" + column + ", ''), 'Unknown')"

	rows := make([]GroupCount, 0)
	if err := DB.WithContext(ctx).
		Model(&domain.VisitorEvent{}).
		Select(keyExpr+" AS group_key, COUNT(*) AS count").
		Where("site_id = ? AND created_at >= ?", siteID, since.UTC()).
		Group(keyExpr).
		Order("count DESC, group_key ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("database: %s breakdown: %w", dimension, err)
	}
	return rows, nil
}

func CountFraudEvents(ctx context.Context, siteID uint64) (int64, error) {
	if DB == nil {
		return 0, ErrNotInitialised
	}
	var count int64
	if err := DB.WithContext(ctx).Model(&domain.FraudEvent{}).Where("site_id = ?", siteID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("database: count fraud events: %w", err)
	}
	return count, nil
}

func CountBlockedIPs(ctx context.Context, siteID uint64) (int64, error) {
	if DB == nil {
		return 0, ErrNotInitialised
	}
	var count int64
	if err := DB.WithContext(ctx).Model(&domain.BlockedIP{}).Where("site_id = ?", siteID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("database: count blocked ips: %w", err)
	}
	return count, nil
}
