package domain

import (
	"time"

	"gorm.io/datatypes"
)

// TrackedSite is a customer domain monitored by the tracking snippet.
// PublicID doubles as the unauthenticated beacon credential.
type TrackedSite struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	PublicID   string         `gorm:"size:64;uniqueIndex;not null" json:"site_id"`
	UserID     uint           `gorm:"not null;uniqueIndex:idx_site_user_domain,priority:1" json:"-"`
	Domain     string         `gorm:"size:255;not null;uniqueIndex:idx_site_user_domain,priority:2" json:"domain"`
	Verified   bool           `gorm:"not null;default:false" json:"verified"`
	VerifiedAt *time.Time     `json:"verified_at,omitempty"`
	Settings   datatypes.JSON `json:"settings,omitempty"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`

	User User `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

func (TrackedSite) TableName() string {
	return "tracked_sites"
}
