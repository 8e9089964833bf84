package domain

import "time"

// BlockedIP marks an address as blocked for a single site.
type BlockedIP struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	SiteID uint64 `gorm:"not null;uniqueIndex:idx_blocked_site_ip,priority:1" json:"-"`

	// IP is stored exactly as it was resolved from the beacon request.
	IP string `gorm:"size:64;not null;uniqueIndex:idx_blocked_site_ip,priority:2" json:"ip"`

	Reason      string    `gorm:"size:512;not null;default:''" json:"reason"`
	AutoBlocked bool      `gorm:"not null;default:false" json:"auto_blocked"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	Site TrackedSite `gorm:"foreignKey:SiteID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

func (BlockedIP) TableName() string {
	return "blocked_ips"
}
