package config

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultRetentionInterval     = 6 * time.Hour
	defaultGeoLiteUpdateInterval = 24 * time.Hour
)

var (
	retentionInterval          atomic.Value
	retentionIntervalListeners []chan time.Duration
	listenersMu                sync.Mutex

	geoLiteUpdateInterval          atomic.Value
	geoLiteUpdateIntervalListeners []chan time.Duration
	geoLiteListenersMu             sync.Mutex
)

// SetBetweenTime recomputes the derived intervals from the current config.
func SetBetweenTime() {
	cfg := GetConfig()
	setRetentionInterval(calculateRetentionInterval(cfg))
	setGeoLiteUpdateInterval(calculateGeoLiteUpdateInterval(cfg))
}

// CalculateBetweenTime converts a timer to a duration of at least one second.
func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMilliseconds(timer)

	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMilliseconds(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

func (t Timer) IsZero() bool {
	return t.Days == 0 && t.Hours == 0 && t.Minutes == 0 && t.Seconds == 0
}

func GetRetentionInterval() time.Duration {
	v, _ := retentionInterval.Load().(time.Duration)
	if v <= 0 {
		return defaultRetentionInterval
	}
	return v
}

// RetentionIntervalUpdates yields the current interval immediately and then
// every change.
func RetentionIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	retentionIntervalListeners = append(retentionIntervalListeners, ch)
	listenersMu.Unlock()

	ch <- GetRetentionInterval()
	return ch
}

func setRetentionInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultRetentionInterval
	}

	if current := GetRetentionInterval(); current == interval {
		return
	}

	retentionInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range retentionIntervalListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

func calculateRetentionInterval(cfg Config) time.Duration {
	if cfg.Retention.Interval.IsZero() {
		return defaultRetentionInterval
	}
	return CalculateBetweenTime(cfg.Retention.Interval)
}

func GetGeoLiteUpdateInterval() time.Duration {
	v, _ := geoLiteUpdateInterval.Load().(time.Duration)
	if v <= 0 {
		return defaultGeoLiteUpdateInterval
	}
	return v
}

func GeoLiteUpdateIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	geoLiteListenersMu.Lock()
	geoLiteUpdateIntervalListeners = append(geoLiteUpdateIntervalListeners, ch)
	geoLiteListenersMu.Unlock()
	return ch
}

func setGeoLiteUpdateInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultGeoLiteUpdateInterval
	}

	if current := GetGeoLiteUpdateInterval(); current == interval {
		return
	}

	geoLiteUpdateInterval.Store(interval)

	geoLiteListenersMu.Lock()
	defer geoLiteListenersMu.Unlock()
	for _, ch := range geoLiteUpdateIntervalListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

func calculateGeoLiteUpdateInterval(cfg Config) time.Duration {
	if cfg.Geo.GeoLite.UpdateInterval.IsZero() {
		return defaultGeoLiteUpdateInterval
	}
	return CalculateBetweenTime(cfg.Geo.GeoLite.UpdateInterval)
}

// GeoCacheTTL returns the configured cache lifetime, or zero for the default.
func (c GeoConfig) GeoCacheTTL() time.Duration {
	if c.CacheTTL.IsZero() {
		return 0
	}
	return CalculateBetweenTime(c.CacheTTL)
}

func (c GeoConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

func (c GeoConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c VerificationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
