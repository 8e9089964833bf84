package scoring

import (
	"errors"
	"reflect"
	"testing"

	"clickguard/internal/domain"
)

func TestScoreWeights(t *testing.T) {
	s := New(DefaultPolicy())

	cases := []struct {
		name    string
		signals Signals
		score   int
		level   domain.ThreatLevel
		reasons []string
	}{
		{
			name:    "human visitor",
			signals: Signals{MouseMovements: 42, TimeOnPage: 31, UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0"},
			score:   0,
			level:   domain.ThreatLow,
			reasons: []string{},
		},
		{
			name:    "fast exit only",
			signals: Signals{MouseMovements: 3, TimeOnPage: 1.5},
			score:   10,
			level:   domain.ThreatLow,
			reasons: []string{ReasonFastPage},
		},
		{
			name:    "no mouse and fast exit",
			signals: Signals{MouseMovements: 0, TimeOnPage: 0.4},
			score:   30,
			level:   domain.ThreatMedium,
			reasons: []string{ReasonNoMouse, ReasonFastPage},
		},
		{
			name:    "crawler user agent",
			signals: Signals{MouseMovements: 0, TimeOnPage: 5, UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1)"},
			score:   50,
			level:   domain.ThreatHigh,
			reasons: []string{ReasonNoMouse, ReasonUASignature},
		},
		{
			name:    "headless no mouse fast exit",
			signals: Signals{Headless: true, MouseMovements: 0, TimeOnPage: 1, UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/121.0"},
			score:   70,
			level:   domain.ThreatCritical,
			reasons: []string{ReasonHeadless, ReasonNoMouse, ReasonFastPage},
		},
		{
			name:    "every signal",
			signals: Signals{Headless: true, MouseMovements: 0, TimeOnPage: 1, UserAgent: "Mozilla/5.0 HeadlessChrome/100"},
			score:   100,
			level:   domain.ThreatCritical,
			reasons: []string{ReasonHeadless, ReasonNoMouse, ReasonFastPage, ReasonUASignature},
		},
		{
			name:    "exactly two seconds is not a fast exit",
			signals: Signals{MouseMovements: 1, TimeOnPage: 2},
			score:   0,
			level:   domain.ThreatLow,
			reasons: []string{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := s.Score(tc.signals)
			if got.Score != tc.score {
				t.Fatalf("score = %d, want %d", got.Score, tc.score)
			}
			if got.Level != tc.level {
				t.Fatalf("level = %s, want %s", got.Level, tc.level)
			}
			if !reflect.DeepEqual(got.Reasons, tc.reasons) {
				t.Fatalf("reasons = %v, want %v", got.Reasons, tc.reasons)
			}
		})
	}
}

func TestScoreIsClamped(t *testing.T) {
	policy := DefaultPolicy()
	policy.Weights = Weights{Headless: 90, NoMouse: 90, FastPage: 90, UASignature: 90}
	s := New(policy)

	got := s.Score(Signals{Headless: true, UserAgent: "Selenium"})
	if got.Score != MaxScore {
		t.Fatalf("score = %d, want %d", got.Score, MaxScore)
	}
}

func TestLevelBoundaries(t *testing.T) {
	s := New(DefaultPolicy())

	cases := map[int]domain.ThreatLevel{
		0:   domain.ThreatLow,
		29:  domain.ThreatLow,
		30:  domain.ThreatMedium,
		49:  domain.ThreatMedium,
		50:  domain.ThreatHigh,
		69:  domain.ThreatHigh,
		70:  domain.ThreatCritical,
		100: domain.ThreatCritical,
	}
	for score, want := range cases {
		if got := s.Level(score); got != want {
			t.Errorf("Level(%d) = %s, want %s", score, got, want)
		}
	}

	if s.IsCritical(69) || !s.IsCritical(70) {
		t.Fatal("IsCritical should flip at the critical threshold")
	}
}

func TestTunedThresholds(t *testing.T) {
	policy := DefaultPolicy()
	policy.Thresholds = Thresholds{Critical: 90, High: 60, Medium: 20}
	s := New(policy)

	got := s.Score(Signals{Headless: true, MouseMovements: 0, TimeOnPage: 1})
	if got.Score != 70 || got.Level != domain.ThreatHigh {
		t.Fatalf("got %d/%s, want 70/high", got.Score, got.Level)
	}
}

func TestBotSignatureCaseInsensitive(t *testing.T) {
	s := New(DefaultPolicy())

	for _, ua := range []string{"headlesschrome/99", "PHANTOMJS", "selenium-wire", "Baiduspider", "some crawler"} {
		if !s.MatchesBotSignature(ua) {
			t.Errorf("MatchesBotSignature(%q) = false, want true", ua)
		}
	}
	if s.MatchesBotSignature("Mozilla/5.0 (Macintosh) Safari/605.1.15") {
		t.Error("plain Safari should not match a bot signature")
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}

	bad := DefaultPolicy()
	bad.Thresholds = Thresholds{Critical: 50, High: 50, Medium: 30}
	if err := bad.Validate(); !errors.Is(err, ErrThresholdOrder) {
		t.Fatalf("Validate() = %v, want ErrThresholdOrder", err)
	}

	bad = DefaultPolicy()
	bad.Weights.NoMouse = -5
	if err := bad.Validate(); !errors.Is(err, ErrNegativeWeight) {
		t.Fatalf("Validate() = %v, want ErrNegativeWeight", err)
	}

	bad = DefaultPolicy()
	bad.Thresholds.Critical = 150
	if err := bad.Validate(); !errors.Is(err, ErrThresholdRange) {
		t.Fatalf("Validate() = %v, want ErrThresholdRange", err)
	}
}

func TestNewFallsBackOnInvalidPolicy(t *testing.T) {
	bad := DefaultPolicy()
	bad.FastPageSeconds = 0

	s := New(bad)
	if !reflect.DeepEqual(s.Policy(), DefaultPolicy()) {
		t.Fatalf("New() kept invalid policy %+v", s.Policy())
	}
}
