// Package maintenance runs the periodic housekeeping jobs.
package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"clickguard/internal/config"
	"clickguard/internal/database"
	"clickguard/internal/support"
)

const retentionLockKey = "clickguard:leader:retention"

// StartRetentionRoutine purges expired visitor events on the configured
// interval. Only the instance holding the leader lock does any work.
func StartRetentionRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	intervalValue, updateSignal := followInterval(ctx, config.GetRetentionInterval(), config.RetentionIntervalUpdates())

	err := support.RunWithLeader(ctx, retentionLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runIntervalLoop(leaderCtx, "retention", intervalValue, updateSignal, runRetention)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Retention routine stopped", "error", err)
	}
}

func runRetention(ctx context.Context) {
	start := time.Now()
	days := config.GetConfig().Retention.VisitorDays

	removed, err := PurgeVisitorEvents(ctx, days, start)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error("Failed to purge expired visitor events", "error", err)
		}
		return
	}
	if removed == 0 {
		return
	}

	log.Info(
		"Retention cleanup completed",
		"visitor_events_removed", removed,
		"retention_days", days,
		"duration", time.Since(start),
	)
}

// PurgeVisitorEvents removes visitor events older than days. Zero or negative
// days keeps everything.
func PurgeVisitorEvents(ctx context.Context, days int, now time.Time) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	return database.DeleteVisitorEventsBefore(ctx, now.AddDate(0, 0, -days))
}
