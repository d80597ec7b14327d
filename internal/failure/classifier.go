package failure

import (
	"strings"
	"time"

	"github.com/fornolabs/expedite/internal/config"
)

// Classifier decides whether a failure's error message matches a known
// recoverable signature. Matching is case-insensitive substring; the first
// configured signature wins.
type Classifier struct {
	sigs         []config.RecoverySignature
	defaultDelay time.Duration
}

// NewClassifier builds a Classifier from configuration.
func NewClassifier(cfg config.Config) *Classifier {
	return &Classifier{
		sigs:         cfg.RecoverySignatures,
		defaultDelay: time.Duration(cfg.DefaultRecoveryDelaySeconds) * time.Second,
	}
}

// Verdict is the classifier's decision for one error message.
type Verdict struct {
	Recoverable bool
	// Signature is the matched pattern, empty when not recoverable.
	Signature string
	// Delay is the wait before the automatic redrive.
	Delay time.Duration
}

// Classify matches errMsg against the recoverable signatures. A matched
// signature with no delay of its own gets the default recovery delay only
// when that signature's delay is unset (negative); an explicit zero means
// redrive immediately.
func (c *Classifier) Classify(errMsg string) Verdict {
	lowered := strings.ToLower(errMsg)
	for _, sig := range c.sigs {
		if sig.Match == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(sig.Match)) {
			delay := time.Duration(sig.DelaySeconds) * time.Second
			if sig.DelaySeconds < 0 {
				delay = c.defaultDelay
			}
			return Verdict{Recoverable: true, Signature: sig.Match, Delay: delay}
		}
	}
	return Verdict{}
}
