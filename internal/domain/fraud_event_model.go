package domain

import (
	"time"

	"gorm.io/datatypes"
)

type FraudEventType string

const (
	FraudBotDetected        FraudEventType = "bot_detected"
	FraudSuspiciousActivity FraudEventType = "suspicious_activity"
)

// FraudEvent promotes a flagged visitor event to an incident. Never updated.
type FraudEvent struct {
	ID             uint64                      `gorm:"primaryKey;autoIncrement" json:"id"`
	SiteID         uint64                      `gorm:"not null;index" json:"-"`
	VisitorEventID uint64                      `gorm:"not null;uniqueIndex" json:"visitor_event_id"`
	EventType      FraudEventType              `gorm:"size:32;not null" json:"event_type"`
	Severity       ThreatLevel                 `gorm:"size:16;not null" json:"severity"`
	Details        datatypes.JSON              `json:"details"`
	Reasons        datatypes.JSONSlice[string] `json:"reasons"`
	CreatedAt      time.Time                   `gorm:"autoCreateTime" json:"created_at"`

	Site         TrackedSite  `gorm:"foreignKey:SiteID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	VisitorEvent VisitorEvent `gorm:"foreignKey:VisitorEventID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

func (FraudEvent) TableName() string {
	return "fraud_events"
}
