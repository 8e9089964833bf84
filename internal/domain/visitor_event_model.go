package domain

import "time"

// VisitorEvent is one ingested beacon. Rows are append-only.
type VisitorEvent struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	SiteID uint64 `gorm:"not null;index:idx_visitor_site_created,priority:1" json:"-"`

	IP             string `gorm:"size:64;not null;index" json:"ip"`
	UserAgent      string `gorm:"type:text" json:"user_agent"`
	DeviceType     string `gorm:"size:16;not null;default:'desktop'" json:"device_type"`
	Browser        string `gorm:"size:64" json:"browser"`
	BrowserVersion string `gorm:"size:64" json:"browser_version"`
	OS             string `gorm:"column:os;size:64" json:"os"`
	OSVersion      string `gorm:"column:os_version;size:64" json:"os_version"`

	// Geo columns stay NULL when enrichment was skipped or failed.
	Country     *string `gorm:"size:100" json:"country"`
	CountryCode *string `gorm:"size:8" json:"country_code"`
	City        *string `gorm:"size:100" json:"city"`
	Region      *string `gorm:"size:100" json:"region"`
	ISP         *string `gorm:"column:isp;size:255" json:"isp"`
	Org         *string `gorm:"size:255" json:"org"`
	ASNumber    *string `gorm:"column:as_number;size:255" json:"as_number"`
	Timezone    *string `gorm:"size:64" json:"timezone"`
	IsProxy     *bool   `json:"is_proxy"`
	IsVPN       *bool   `gorm:"column:is_vpn" json:"is_vpn"`
	IsTor       *bool   `json:"is_tor"`

	BotScore    int         `gorm:"not null;default:0" json:"bot_score"`
	ThreatLevel ThreatLevel `gorm:"size:16;not null;index" json:"threat_level"`

	MouseMovements int     `gorm:"not null;default:0" json:"mouse_movements"`
	TimeOnPage     float64 `gorm:"not null;default:0" json:"time_on_page"`
	ClickCount     int     `gorm:"not null;default:0" json:"click_count"`
	Headless       bool    `gorm:"not null;default:false" json:"headless"`
	ScreenWidth    int     `json:"screen_width"`
	ScreenHeight   int     `json:"screen_height"`
	Language       string  `gorm:"size:64" json:"language"`
	Fingerprint    string  `gorm:"size:128" json:"fingerprint"`
	Referrer       string  `gorm:"type:text" json:"referrer"`
	PageURL        string  `gorm:"type:text" json:"page_url"`

	Blocked   bool      `gorm:"not null;default:false" json:"blocked"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_visitor_site_created,priority:2" json:"created_at"`

	Site TrackedSite `gorm:"foreignKey:SiteID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

func (VisitorEvent) TableName() string {
	return "visitor_events"
}
