package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
	"gorm.io/gorm"

	"clickguard/internal/config"
	"clickguard/internal/domain"
)

const maxDomainLength = 253

var domainProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(true),
)

// NormalizeDomain reduces user input ("https://Shop.Example.com/path") to a
// lowercase ASCII host. Bare public suffixes such as "co.uk" are rejected.
func NormalizeDomain(raw string) (string, error) {
	host := config.NormalizeHostname(raw)
	if host == "" {
		return "", ErrInvalidDomain
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}

	ascii, err := domainProfile.ToASCII(host)
	if err != nil || ascii == "" || len(ascii) > maxDomainLength {
		return "", ErrInvalidDomain
	}
	if !strings.Contains(ascii, ".") {
		return "", ErrInvalidDomain
	}

	if suffix, _ := publicsuffix.PublicSuffix(ascii); suffix == ascii {
		return "", ErrInvalidDomain
	}

	return ascii, nil
}

// NewPublicSiteID returns an opaque 32 character token.
func NewPublicSiteID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func CreateSite(ctx context.Context, userID uint, rawDomain string) (*domain.TrackedSite, error) {
	if DB == nil {
		return nil, ErrNotInitialised
	}

	host, err := NormalizeDomain(rawDomain)
	if err != nil {
		return nil, err
	}

	site := domain.TrackedSite{
		PublicID: NewPublicSiteID(),
		UserID:   userID,
		Domain:   host,
	}

	if err := DB.WithContext(ctx).Create(&site).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrSiteExists
		}
		return nil, fmt.Errorf("database: create site: %w", err)
	}

	return &site, nil
}

// GetSiteByPublicID resolves a beacon credential.
func GetSiteByPublicID(ctx context.Context, publicID string) (*domain.TrackedSite, error) {
	if DB == nil {
		return nil, ErrNotInitialised
	}

	var site domain.TrackedSite
	err := DB.WithContext(ctx).Where("public_id = ?", publicID).First(&site).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database: get site by public id: %w", err)
	}
	return &site, nil
}

// GetOwnedSite loads a site only if it belongs to userID. Foreign sites are
// reported as missing.
func GetOwnedSite(ctx context.Context, userID uint, siteID uint64) (*domain.TrackedSite, error) {
	if DB == nil {
		return nil, ErrNotInitialised
	}

	var site domain.TrackedSite
	err := DB.WithContext(ctx).Where("id = ? AND user_id = ?", siteID, userID).First(&site).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database: get site: %w", err)
	}
	return &site, nil
}

func ListSites(ctx context.Context, userID uint) ([]domain.TrackedSite, error) {
	if DB == nil {
		return nil, ErrNotInitialised
	}

	sites := make([]domain.TrackedSite, 0)
	if err := DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&sites).Error; err != nil {
		return nil, fmt.Errorf("database: list sites: %w", err)
	}
	return sites, nil
}

// DeleteSite removes a site; visitor events, blocked IPs and fraud events go
// with it through the foreign key cascade.
func DeleteSite(ctx context.Context, userID uint, siteID uint64) error {
	if DB == nil {
		return ErrNotInitialised
	}

	res := DB.WithContext(ctx).Where("id = ? AND user_id = ?", siteID, userID).Delete(&domain.TrackedSite{})
	if res.Error != nil {
		return fmt.Errorf("database: delete site: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSiteNotFound
	}
	return nil
}

// MarkSiteVerified flips the verified flag. Already verified sites keep their
// original timestamp.
func MarkSiteVerified(ctx context.Context, siteID uint64, at time.Time) error {
	if DB == nil {
		return ErrNotInitialised
	}

	res := DB.WithContext(ctx).
		Model(&domain.TrackedSite{}).
		Where("id = ? AND verified = ?", siteID, false).
		Updates(map[string]any{
			"verified":    true,
			"verified_at": at.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("database: mark site verified: %w", res.Error)
	}
	return nil
}
