package session

import "time"

// Backoff tracks reconnect attempts and produces the delay preceding
// each one. The first attempt runs immediately; attempt n (n >= 2)
// waits base * 2^(n-2). With the defaults (5s base, 5 attempts) a full
// cycle spends 5+10+20+40 = 75s waiting before giving up.
type Backoff struct {
	Base        time.Duration
	MaxAttempts int

	attempts int
}

func NewBackoff(base time.Duration, maxAttempts int) *Backoff {
	return &Backoff{Base: base, MaxAttempts: maxAttempts}
}

// Next returns the delay to observe before the next attempt and whether
// an attempt remains. Once it reports false the policy is exhausted
// until Reset.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.attempts >= b.MaxAttempts {
		return 0, false
	}
	var delay time.Duration
	if b.attempts > 0 {
		delay = b.Base << (b.attempts - 1)
	}
	b.attempts++
	return delay, true
}

// Attempts returns how many attempts have been handed out.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Exhausted reports whether every attempt has been used.
func (b *Backoff) Exhausted() bool {
	return b.attempts >= b.MaxAttempts
}

// Reset makes the policy reusable after a successful attempt.
func (b *Backoff) Reset() {
	b.attempts = 0
}
