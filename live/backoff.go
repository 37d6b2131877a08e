package live

import "time"

// Backoff is the reconnection policy: exponential delay growth up to a
// cap, and a limit on consecutive failed cycles before the channel
// gives up until a manual reconnect.
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// DefaultBackoff is the policy used when none is configured.
var DefaultBackoff = Backoff{
	Base:        time.Second,
	Cap:         30 * time.Second,
	MaxAttempts: 5,
}

// Delay returns the wait before retry number attempt (zero-based):
// min(Base << attempt, Cap). The sequence stops growing at Cap.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Shifting past 32 would overflow long before any sane Cap.
	if attempt > 32 {
		return b.Cap
	}
	d := b.Base << uint(attempt)
	if d <= 0 || d > b.Cap {
		return b.Cap
	}
	return d
}
