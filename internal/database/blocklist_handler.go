package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clickguard/internal/domain"
	"clickguard/internal/support"
)

const maxReasonLength = 512

// IsIPBlocked reports whether ip is on the site's blocklist. Callers must
// treat an error as "unknown", never as "not blocked".
func IsIPBlocked(ctx context.Context, siteID uint64, ip string) (bool, error) {
	if DB == nil {
		return false, ErrNotInitialised
	}

	var count int64
	if err := DB.WithContext(ctx).
		Model(&domain.BlockedIP{}).
		Where("site_id = ? AND ip = ?", siteID, ip).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("database: check blocked ip: %w", err)
	}
	return count > 0, nil
}

// AutoBlockIP inserts an auto-blocked entry. An existing entry for the same
// (site, ip) is left untouched and reported as created=false.
func AutoBlockIP(ctx context.Context, siteID uint64, ip, reason string) (bool, error) {
	if DB == nil {
		return false, ErrNotInitialised
	}

	entry := domain.BlockedIP{
		SiteID:      siteID,
		IP:          ip,
		Reason:      truncateReason(reason),
		AutoBlocked: true,
	}

	res := DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "site_id"}, {Name: "ip"}},
		DoNothing: true,
	}).Create(&entry)
	if res.Error != nil {
		return false, fmt.Errorf("database: auto block ip: %w", res.Error)
	}

	return res.RowsAffected > 0, nil
}

// BlockIPManually adds an owner-supplied entry. The address must parse.
func BlockIPManually(ctx context.Context, userID uint, siteID uint64, ip, reason string) (*domain.BlockedIP, error) {
	if DB == nil {
		return nil, ErrNotInitialised
	}

	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return nil, ErrInvalidIP
	}

	if _, err := GetOwnedSite(ctx, userID, siteID); err != nil {
		return nil, err
	}

	entry := domain.BlockedIP{
		SiteID: siteID,
		IP:     parsed.String(),
		Reason: truncateReason(strings.TrimSpace(reason)),
	}
	if entry.Reason == "" {
		entry.Reason = "Manually blocked"
	}

	if err := DB.WithContext(ctx).Create(&entry).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrIPAlreadyBlocked
		}
		return nil, fmt.Errorf("database: block ip: %w", err)
	}

	return &entry, nil
}

func UnblockIP(ctx context.Context, userID uint, siteID, blockedID uint64) error {
	if DB == nil {
		return ErrNotInitialised
	}

	if _, err := GetOwnedSite(ctx, userID, siteID); err != nil {
		return err
	}

	res := DB.WithContext(ctx).Where("id = ? AND site_id = ?", blockedID, siteID).Delete(&domain.BlockedIP{})
	if res.Error != nil {
		return fmt.Errorf("database: unblock ip: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrBlockedIPMissing
	}
	return nil
}

func ListBlockedIPs(ctx context.Context, userID uint, siteID uint64) ([]domain.BlockedIP, error) {
	if DB == nil {
		return nil, ErrNotInitialised
	}

	if _, err := GetOwnedSite(ctx, userID, siteID); err != nil {
		return nil, err
	}

	entries := make([]domain.BlockedIP, 0)
	err := DB.WithContext(ctx).
		Where("site_id = ?", siteID).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database: list blocked ips: %w", err)
	}
	return entries, nil
}

func truncateReason(reason string) string {
	return support.TruncateString(reason, maxReasonLength)
}
