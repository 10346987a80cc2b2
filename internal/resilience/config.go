package resilience

import (
	"time"
)

// FromSettings converts config values to a Policy on top of base. Zero or
// negative values keep the base value, except jitter where zero disables it.
func FromSettings(base Policy, maxAttempts, baseDelayMs, maxDelayMs int, multiplier, jitter float64) Policy {
	p := base
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if baseDelayMs > 0 {
		p.BaseDelay = time.Duration(baseDelayMs) * time.Millisecond
	}
	if maxDelayMs > 0 {
		p.MaxDelay = time.Duration(maxDelayMs) * time.Millisecond
	}
	if multiplier > 0 {
		p.Multiplier = multiplier
	}
	if jitter >= 0 {
		p.Jitter = jitter
	}
	return p
}
