package dto

import "strings"

// Beacon is the raw payload posted by the tracking snippet. The snippet may
// send verbose or abbreviated keys; both are decoded and Normalize picks the
// verbose one when both are present. Pointer fields distinguish an absent
// key from a zero value.
type Beacon struct {
	SiteID      *string `json:"siteId"`
	SiteIDShort *string `json:"sid"`

	Fingerprint      *string `json:"fingerprint"`
	FingerprintShort *string `json:"fp"`

	MouseMovements      *int `json:"mouseMovements"`
	MouseMovementsShort *int `json:"mm"`

	TimeOnPage      *float64 `json:"timeOnPage"`
	TimeOnPageShort *float64 `json:"top"`

	ScreenWidth       *int `json:"screenWidth"`
	ScreenWidthShort  *int `json:"sw"`
	ScreenHeight      *int `json:"screenHeight"`
	ScreenHeightShort *int `json:"sh"`

	ClickCount      *int `json:"clickCount"`
	ClickCountShort *int `json:"cc"`

	Headless      *bool `json:"headless"`
	HeadlessShort *bool `json:"hb"`

	PageURL      *string `json:"pageUrl"`
	PageURLShort *string `json:"url"`

	Referrer      *string `json:"referrer"`
	ReferrerShort *string `json:"ref"`

	Language      *string `json:"language"`
	LanguageShort *string `json:"lang"`

	UserAgent      *string `json:"userAgent"`
	UserAgentShort *string `json:"ua"`
}

// NormalizedBeacon is the canonical form consumed by the tracker.
type NormalizedBeacon struct {
	SiteID         string
	Fingerprint    string
	MouseMovements int
	TimeOnPage     float64
	ScreenWidth    int
	ScreenHeight   int
	ClickCount     int
	Headless       bool
	PageURL        string
	Referrer       string
	Language       string
	UserAgent      string
}

func (b Beacon) Normalize() NormalizedBeacon {
	return NormalizedBeacon{
		SiteID:         strings.TrimSpace(pick(b.SiteID, b.SiteIDShort)),
		Fingerprint:    pick(b.Fingerprint, b.FingerprintShort),
		MouseMovements: nonNegative(pick(b.MouseMovements, b.MouseMovementsShort)),
		TimeOnPage:     max(pick(b.TimeOnPage, b.TimeOnPageShort), 0),
		ScreenWidth:    nonNegative(pick(b.ScreenWidth, b.ScreenWidthShort)),
		ScreenHeight:   nonNegative(pick(b.ScreenHeight, b.ScreenHeightShort)),
		ClickCount:     nonNegative(pick(b.ClickCount, b.ClickCountShort)),
		Headless:       pick(b.Headless, b.HeadlessShort),
		PageURL:        pick(b.PageURL, b.PageURLShort),
		Referrer:       pick(b.Referrer, b.ReferrerShort),
		Language:       pick(b.Language, b.LanguageShort),
		UserAgent:      pick(b.UserAgent, b.UserAgentShort),
	}
}

func pick[T any](verbose, short *T) T {
	if verbose != nil {
		return *verbose
	}
	if short != nil {
		return *short
	}
	var zero T
	return zero
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
