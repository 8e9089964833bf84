package dto

import (
	"time"

	"clickguard/internal/domain"
)

type CreateSiteRequest struct {
	Domain string `json:"domain"`
}

type SiteResponse struct {
	ID         uint64     `json:"id"`
	SiteID     string     `json:"site_id"`
	Domain     string     `json:"domain"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Snippet    string     `json:"snippet"`
}

type VerificationResponse struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

type BlockIPRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason"`
}

type TrackResponse struct {
	Success bool `json:"success"`
	Blocked bool `json:"blocked"`
}

type VisitorsPage struct {
	Visitors []domain.VisitorEvent `json:"visitors"`
	Total    int64                 `json:"total"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

type FraudEventsPage struct {
	FraudEvents []domain.FraudEvent `json:"fraud_events"`
	Total       int64               `json:"total"`
	Limit       int                 `json:"limit"`
	Offset      int                 `json:"offset"`
}
