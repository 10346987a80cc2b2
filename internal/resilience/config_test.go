package resilience

import (
	"testing"
	"time"
)

func TestFromSettings_Overrides(t *testing.T) {
	p := FromSettings(DefaultPolicy(), 4, 100, 2000, 3.0, 0)
	if p.MaxAttempts != 4 || p.BaseDelay != 100*time.Millisecond || p.MaxDelay != 2*time.Second || p.Multiplier != 3.0 || p.Jitter != 0 {
		t.Errorf("unexpected policy %+v", p)
	}
}

func TestFromSettings_KeepsBase(t *testing.T) {
	base := PersistPolicy()
	p := FromSettings(base, 0, 0, 0, 0, -1)
	if p.MaxAttempts != base.MaxAttempts || p.BaseDelay != base.BaseDelay || p.Jitter != base.Jitter {
		t.Errorf("expected base policy, got %+v", p)
	}
}
