package middleware

import (
	"sync"
	"time"
)

// LoginThrottle caps how many credential attempts a client IP gets inside a
// fixed window. It guards the login route only; authenticated traffic is
// never throttled.
type LoginThrottle struct {
	mu      sync.Mutex
	windows map[string]*attemptWindow
	limit   int
	period  time.Duration
	now     func() time.Time
}

type attemptWindow struct {
	attempts  int
	expiresAt time.Time
}

func NewLoginThrottle(limit int, period time.Duration) *LoginThrottle {
	return NewLoginThrottleWithNow(limit, period, time.Now)
}

func NewLoginThrottleWithNow(limit int, period time.Duration, now func() time.Time) *LoginThrottle {
	lt := &LoginThrottle{
		windows: make(map[string]*attemptWindow),
		limit:   limit,
		period:  period,
		now:     now,
	}
	go lt.sweep()
	return lt
}

// Allow records one attempt for key and reports whether it fits inside the
// current window.
func (lt *LoginThrottle) Allow(key string) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	now := lt.now()
	w, open := lt.windows[key]
	if !open || now.After(w.expiresAt) {
		lt.windows[key] = &attemptWindow{attempts: 1, expiresAt: now.Add(lt.period)}
		return true
	}

	if w.attempts >= lt.limit {
		return false
	}
	w.attempts++
	return true
}

// sweep drops expired windows so keys that stop attempting do not pin
// memory.
func (lt *LoginThrottle) sweep() {
	if lt.period <= 0 {
		return
	}

	ticker := time.NewTicker(lt.period)
	defer ticker.Stop()

	for range ticker.C {
		lt.mu.Lock()
		now := lt.now()
		for key, w := range lt.windows {
			if now.After(w.expiresAt) {
				delete(lt.windows, key)
			}
		}
		lt.mu.Unlock()
	}
}
