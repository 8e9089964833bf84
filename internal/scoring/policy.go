package scoring

import (
	"errors"
	"fmt"
)

// Weights are the points added for each independent signal.
type Weights struct {
	Headless    int `yaml:"headless" json:"headless"`
	NoMouse     int `yaml:"no_mouse" json:"no_mouse"`
	FastPage    int `yaml:"fast_page" json:"fast_page"`
	UASignature int `yaml:"ua_signature" json:"ua_signature"`
}

// Thresholds map a score onto a threat level, evaluated high to low.
type Thresholds struct {
	Critical int `yaml:"critical" json:"critical"`
	High     int `yaml:"high" json:"high"`
	Medium   int `yaml:"medium" json:"medium"`
}

// Policy is the tunable part of the scorer. The scoring math never reads
// literal weights; everything comes from here.
type Policy struct {
	Weights         Weights    `yaml:"weights" json:"weights"`
	Thresholds      Thresholds `yaml:"thresholds" json:"thresholds"`
	FastPageSeconds float64    `yaml:"fast_page_seconds" json:"fast_page_seconds"`
	BotSignatures   []string   `yaml:"bot_signatures" json:"bot_signatures"`
}

var (
	ErrNegativeWeight      = errors.New("scoring: weights must not be negative")
	ErrThresholdOrder      = errors.New("scoring: thresholds must satisfy critical > high > medium > 0")
	ErrThresholdRange      = errors.New("scoring: thresholds must be within 1..100")
	ErrFastPageNotPositive = errors.New("scoring: fast_page_seconds must be positive")
)

func DefaultPolicy() Policy {
	return Policy{
		Weights: Weights{
			Headless:    40,
			NoMouse:     20,
			FastPage:    10,
			UASignature: 30,
		},
		Thresholds: Thresholds{
			Critical: 70,
			High:     50,
			Medium:   30,
		},
		FastPageSeconds: 2,
		BotSignatures:   []string{"HeadlessChrome", "PhantomJS", "Selenium", "Bot", "Crawl", "Spider"},
	}
}

func (p Policy) Validate() error {
	w := p.Weights
	if w.Headless < 0 || w.NoMouse < 0 || w.FastPage < 0 || w.UASignature < 0 {
		return ErrNegativeWeight
	}

	th := p.Thresholds
	for _, v := range []int{th.Critical, th.High, th.Medium} {
		if v < 1 || v > MaxScore {
			return fmt.Errorf("%w: got %d", ErrThresholdRange, v)
		}
	}
	if !(th.Critical > th.High && th.High > th.Medium) {
		return ErrThresholdOrder
	}

	if p.FastPageSeconds <= 0 {
		return ErrFastPageNotPositive
	}

	return nil
}
