package database

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"gorm.io/datatypes"

	"clickguard/internal/domain"
	"clickguard/internal/scoring"
)

// fraudDetails is the snapshot stored in FraudEvent.Details.
type fraudDetails struct {
	Score          int     `json:"score"`
	IP             string  `json:"ip"`
	UserAgent      string  `json:"user_agent"`
	Headless       bool    `json:"headless"`
	MouseMovements int     `json:"mouse_movements"`
	TimeOnPage     float64 `json:"time_on_page"`
	Fingerprint    string  `json:"fingerprint,omitempty"`
	PageURL        string  `json:"page_url,omitempty"`
}

// FraudEventType classifies a scored visit: bot_detected when the visitor
// announced itself (headless flag or bot user agent), otherwise
// suspicious_activity.
func FraudEventType(result scoring.Result) domain.FraudEventType {
	if slices.Contains(result.Reasons, scoring.ReasonHeadless) || slices.Contains(result.Reasons, scoring.ReasonUASignature) {
		return domain.FraudBotDetected
	}
	return domain.FraudSuspiciousActivity
}

// RecordFraudEvent appends one fraud event for a persisted visitor event.
func RecordFraudEvent(ctx context.Context, visitor *domain.VisitorEvent, result scoring.Result) (*domain.FraudEvent, error) {
	if DB == nil {
		return nil, ErrNotInitialised
	}
	if visitor == nil || visitor.ID == 0 {
		return nil, fmt.Errorf("database: fraud event requires a persisted visitor event")
	}

	details, err := json.Marshal(fraudDetails{
		Score:          result.Score,
		IP:             visitor.IP,
		UserAgent:      visitor.UserAgent,
		Headless:       visitor.Headless,
		MouseMovements: visitor.MouseMovements,
		TimeOnPage:     visitor.TimeOnPage,
		Fingerprint:    visitor.Fingerprint,
		PageURL:        visitor.PageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("database: encode fraud details: %w", err)
	}

	event := domain.FraudEvent{
		SiteID:         visitor.SiteID,
		VisitorEventID: visitor.ID,
		EventType:      FraudEventType(result),
		Severity:       result.Level,
		Details:        datatypes.JSON(details),
		Reasons:        datatypes.NewJSONSlice(append([]string{}, result.Reasons...)),
	}

	if err := DB.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, fmt.Errorf("database: record fraud event: %w", err)
	}
	return &event, nil
}

func ListFraudEvents(ctx context.Context, siteID uint64, limit, offset int) ([]domain.FraudEvent, int64, error) {
	if DB == nil {
		return nil, 0, ErrNotInitialised
	}
	limit, offset = ClampPage(limit, offset)

	db := DB.WithContext(ctx)

	var total int64
	if err := db.Model(&domain.FraudEvent{}).Where("site_id = ?", siteID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("database: count fraud events: %w", err)
	}

	events := make([]domain.FraudEvent, 0)
	if err := db.Where("site_id = ?", siteID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("database: list fraud events: %w", err)
	}

	return events, total, nil
}
