// Package ratelimit implements a fixed-window request throttle keyed by
// caller identity.
package ratelimit

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/medcert/internal/common"
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key inside fixed windows. A window whose
// resetAt has passed is reset to count=1 on the next Consume rather than
// being swept; memory is bounded by key cardinality. The fixed window
// permits bursts around a boundary of up to twice the limit — a deliberate
// simplicity trade-off; a sliding window could replace this behind the same
// Consume contract.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	// now is swappable in tests
	now func() time.Time
}

func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Consume records one request for key. It returns ErrorRateLimitExceeded
// once the caller has used up `limit` requests inside the current window.
func (l *Limiter) Consume(key string, limit int, windowSize time.Duration) error {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(windowSize)}
		return nil
	}
	if w.count >= limit {
		return common.ErrorRateLimitExceeded
	}
	w.count++
	return nil
}
