// Package scoring turns behavioral beacon signals into a 0..100 bot score and a
// threat level. Scoring is deterministic and free of side effects.
package scoring

import (
	"strings"

	"clickguard/internal/domain"
)

const (
	MinScore = 0
	MaxScore = 100

	ReasonHeadless    = "headless_browser"
	ReasonNoMouse     = "no_mouse_movement"
	ReasonFastPage    = "fast_page_exit"
	ReasonUASignature = "bot_user_agent"
)

// Signals are the inputs the scorer looks at.
type Signals struct {
	Headless       bool
	MouseMovements int
	TimeOnPage     float64
	UserAgent      string
}

type Result struct {
	Score   int                `json:"score"`
	Level   domain.ThreatLevel `json:"level"`
	Reasons []string           `json:"reasons"`
}

type Scorer struct {
	policy     Policy
	signatures []string
}

// New builds a scorer for the given policy. An invalid policy falls back to
// DefaultPolicy so a bad settings file can never disable scoring.
func New(policy Policy) *Scorer {
	if policy.Validate() != nil {
		policy = DefaultPolicy()
	}

	signatures := make([]string, 0, len(policy.BotSignatures))
	for _, sig := range policy.BotSignatures {
		if s := strings.ToLower(strings.TrimSpace(sig)); s != "" {
			signatures = append(signatures, s)
		}
	}

	return &Scorer{policy: policy, signatures: signatures}
}

func (s *Scorer) Policy() Policy {
	return s.policy
}

func (s *Scorer) Score(sig Signals) Result {
	w := s.policy.Weights
	total := 0
	reasons := make([]string, 0, 4)

	if sig.Headless {
		total += w.Headless
		reasons = append(reasons, ReasonHeadless)
	}
	if sig.MouseMovements == 0 {
		total += w.NoMouse
		reasons = append(reasons, ReasonNoMouse)
	}
	if sig.TimeOnPage < s.policy.FastPageSeconds {
		total += w.FastPage
		reasons = append(reasons, ReasonFastPage)
	}
	if s.MatchesBotSignature(sig.UserAgent) {
		total += w.UASignature
		reasons = append(reasons, ReasonUASignature)
	}

	score := clamp(total)
	return Result{
		Score:   score,
		Level:   s.Level(score),
		Reasons: reasons,
	}
}

// Level maps a score to a threat level; the first threshold reached wins.
func (s *Scorer) Level(score int) domain.ThreatLevel {
	th := s.policy.Thresholds
	switch {
	case score >= th.Critical:
		return domain.ThreatCritical
	case score >= th.High:
		return domain.ThreatHigh
	case score >= th.Medium:
		return domain.ThreatMedium
	default:
		return domain.ThreatLow
	}
}

// IsCritical reports whether score reaches the auto-block threshold.
func (s *Scorer) IsCritical(score int) bool {
	return score >= s.policy.Thresholds.Critical
}

func (s *Scorer) MatchesBotSignature(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	lower := strings.ToLower(userAgent)
	for _, sig := range s.signatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
