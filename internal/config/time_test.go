package config

import (
	"testing"
	"time"
)

func TestCalculateMilliseconds(t *testing.T) {
	timer := Timer{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}
	want := uint64((24*60*60 + 2*60*60 + 3*60 + 4) * 1000)

	if got := CalculateMilliseconds(timer); got != want {
		t.Fatalf("CalculateMilliseconds returned %d, want %d", got, want)
	}
}

func TestCalculateBetweenTime(t *testing.T) {
	t.Run("enforces minimum interval", func(t *testing.T) {
		if got := CalculateBetweenTime(Timer{}); got != time.Second {
			t.Fatalf("CalculateBetweenTime returned %s, want 1s", got)
		}
	})

	t.Run("returns configured duration", func(t *testing.T) {
		if got := CalculateBetweenTime(Timer{Minutes: 1, Seconds: 30}); got != 90*time.Second {
			t.Fatalf("CalculateBetweenTime returned %s, want 1m30s", got)
		}
	})
}

func TestSetBetweenTime_NotifiesRetentionListeners(t *testing.T) {
	origCfg := GetConfig()
	origInterval := GetRetentionInterval()
	origListeners := retentionIntervalListeners

	t.Cleanup(func() {
		configValue.Store(origCfg)
		retentionInterval.Store(origInterval)
		retentionIntervalListeners = origListeners
	})

	retentionIntervalListeners = nil
	updates := RetentionIntervalUpdates()
	if got := <-updates; got != origInterval {
		t.Fatalf("initial interval = %s, want %s", got, origInterval)
	}

	testCfg := origCfg
	testCfg.Retention.Interval = Timer{Minutes: 30}
	configValue.Store(testCfg)
	SetBetweenTime()

	select {
	case got := <-updates:
		if got != 30*time.Minute {
			t.Fatalf("interval update = %s, want 30m", got)
		}
	default:
		t.Fatal("expected an interval update")
	}

	testCfg.Retention.Interval = Timer{}
	configValue.Store(testCfg)
	SetBetweenTime()
	if got := GetRetentionInterval(); got != defaultRetentionInterval {
		t.Fatalf("zero timer gave %s, want default %s", got, defaultRetentionInterval)
	}
}

func TestSetBetweenTime_GeoLiteUpdateInterval(t *testing.T) {
	origCfg := GetConfig()
	origInterval := GetGeoLiteUpdateInterval()
	origListeners := geoLiteUpdateIntervalListeners

	t.Cleanup(func() {
		configValue.Store(origCfg)
		geoLiteUpdateInterval.Store(origInterval)
		geoLiteUpdateIntervalListeners = origListeners
	})

	geoLiteUpdateIntervalListeners = nil
	updates := GeoLiteUpdateIntervalUpdates()

	testCfg := origCfg
	testCfg.Geo.GeoLite.UpdateInterval = Timer{Hours: 12}
	configValue.Store(testCfg)
	SetBetweenTime()

	select {
	case got := <-updates:
		if got != 12*time.Hour {
			t.Fatalf("interval update = %s, want 12h", got)
		}
	default:
		t.Fatal("expected an interval update")
	}

	testCfg.Geo.GeoLite.UpdateInterval = Timer{}
	configValue.Store(testCfg)
	SetBetweenTime()
	if got := GetGeoLiteUpdateInterval(); got != defaultGeoLiteUpdateInterval {
		t.Fatalf("zero timer gave %s, want default %s", got, defaultGeoLiteUpdateInterval)
	}
}
