package tracking

import (
	"context"
	"time"

	"clickguard/internal/database"
	"clickguard/internal/domain"
	"clickguard/internal/scoring"
)

// Store is the persistence the tracker needs.
type Store interface {
	SiteByPublicID(ctx context.Context, publicID string) (*domain.TrackedSite, error)
	IsIPBlocked(ctx context.Context, siteID uint64, ip string) (bool, error)
	CreateVisitorEvent(ctx context.Context, event *domain.VisitorEvent) error
	RecordFraudEvent(ctx context.Context, event *domain.VisitorEvent, result scoring.Result) error
	AutoBlockIP(ctx context.Context, siteID uint64, ip, reason string) (bool, error)
	MarkSiteVerified(ctx context.Context, siteID uint64, at time.Time) error
}

// DBStore routes Store calls to the shared database connection.
type DBStore struct{}

func (DBStore) SiteByPublicID(ctx context.Context, publicID string) (*domain.TrackedSite, error) {
	return database.GetSiteByPublicID(ctx, publicID)
}

func (DBStore) IsIPBlocked(ctx context.Context, siteID uint64, ip string) (bool, error) {
	return database.IsIPBlocked(ctx, siteID, ip)
}

func (DBStore) CreateVisitorEvent(ctx context.Context, event *domain.VisitorEvent) error {
	return database.CreateVisitorEvent(ctx, event)
}

func (DBStore) RecordFraudEvent(ctx context.Context, event *domain.VisitorEvent, result scoring.Result) error {
	_, err := database.RecordFraudEvent(ctx, event, result)
	return err
}

func (DBStore) AutoBlockIP(ctx context.Context, siteID uint64, ip, reason string) (bool, error) {
	return database.AutoBlockIP(ctx, siteID, ip, reason)
}

func (DBStore) MarkSiteVerified(ctx context.Context, siteID uint64, at time.Time) error {
	return database.MarkSiteVerified(ctx, siteID, at)
}
