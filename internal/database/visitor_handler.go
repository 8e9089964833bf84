package database

import (
	"context"
	"fmt"
	"time"

	"clickguard/internal/domain"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
	retentionBatch  = 1000
)

// ClampPage applies the default page size and upper bound to user input.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func CreateVisitorEvent(ctx context.Context, event *domain.VisitorEvent) error {
	if DB == nil {
		return ErrNotInitialised
	}
	if err := DB.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("database: create visitor event: %w", err)
	}
	return nil
}

// ListVisitorEvents returns one page of a site's events, newest first, and
// the total number of events for the site.
func ListVisitorEvents(ctx context.Context, siteID uint64, limit, offset int) ([]domain.VisitorEvent, int64, error) {
	if DB == nil {
		return nil, 0, ErrNotInitialised
	}
	limit, offset = ClampPage(limit, offset)

	db := DB.WithContext(ctx)

	var total int64
	if err := db.Model(&domain.VisitorEvent{}).Where("site_id = ?", siteID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("database: count visitor events: %w", err)
	}

	events := make([]domain.VisitorEvent, 0)
	if err := db.Where("site_id = ?", siteID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("database: list visitor events: %w", err)
	}

	return events, total, nil
}

// DeleteVisitorEventsBefore removes events older than cutoff in batches and
// returns how many rows went away. Fraud events cascade.
func DeleteVisitorEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if DB == nil {
		return 0, ErrNotInitialised
	}

	var removed int64
	for {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		var ids []uint64
		if err := DB.WithContext(ctx).
			Model(&domain.VisitorEvent{}).
			Where("created_at < ?", cutoff.UTC()).
			Order("id").
			Limit(retentionBatch).
			Pluck("id", &ids).Error; err != nil {
			return removed, fmt.Errorf("database: select expired visitor events: %w", err)
		}
		if len(ids) == 0 {
			return removed, nil
		}

		res := DB.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.VisitorEvent{})
		if res.Error != nil {
			return removed, fmt.Errorf("database: delete expired visitor events: %w", res.Error)
		}
		removed += res.RowsAffected

		if len(ids) < retentionBatch {
			return removed, nil
		}
	}
}
