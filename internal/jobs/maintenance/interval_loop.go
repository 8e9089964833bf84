package maintenance

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// followInterval mirrors an interval update channel into an atomic value and
// pokes updateSignal after each change.
func followInterval(ctx context.Context, initial time.Duration, updates <-chan time.Duration) (*atomic.Value, <-chan struct{}) {
	var intervalValue atomic.Value
	intervalValue.Store(initial)

	updateSignal := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newInterval := <-updates:
				intervalValue.Store(newInterval)
				select {
				case updateSignal <- struct{}{}:
				default:
				}
			}
		}
	}()

	return &intervalValue, updateSignal
}

// runIntervalLoop calls run once immediately and then on every tick until ctx
// is done.
func runIntervalLoop(ctx context.Context, job string, intervalValue *atomic.Value, updateSignal <-chan struct{}, run func(context.Context)) {
	currentInterval := intervalValue.Load().(time.Duration)
	ticker := time.NewTicker(currentInterval)
	defer ticker.Stop()

	run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run(ctx)
		case <-updateSignal:
			newInterval := intervalValue.Load().(time.Duration)
			if newInterval <= 0 || newInterval == currentInterval {
				continue
			}
			currentInterval = newInterval
			ticker.Reset(currentInterval)
			log.Debug("Job interval updated", "job", job, "interval", currentInterval)
		}
	}
}
