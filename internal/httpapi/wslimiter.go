package httpapi

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// ConnLimiter bounds concurrent WebSocket streaming connections: a
// process-wide cap plus a per-client-IP cap, so one client cannot
// exhaust the global budget of Universalis-fetching connections.
type ConnLimiter struct {
	global   *semaphore.Weighted
	maxPerIP int64

	mu    sync.Mutex
	perIP map[string]int64
}

// NewConnLimiter creates a limiter admitting at most maxGlobal
// concurrent connections overall, and at most maxPerIP from any single
// client IP.
func NewConnLimiter(maxGlobal, maxPerIP int64) *ConnLimiter {
	return &ConnLimiter{
		global:   semaphore.NewWeighted(maxGlobal),
		maxPerIP: maxPerIP,
		perIP:    make(map[string]int64),
	}
}

// Acquire attempts to reserve one global slot and one per-IP slot
// without blocking. It reports whether both were obtained.
func (l *ConnLimiter) Acquire(clientIP string) bool {
	if !l.global.TryAcquire(1) {
		return false
	}

	l.mu.Lock()
	if l.perIP[clientIP] >= l.maxPerIP {
		l.mu.Unlock()
		l.global.Release(1)
		return false
	}
	l.perIP[clientIP]++
	l.mu.Unlock()

	return true
}

// Release returns the slots acquired for clientIP.
func (l *ConnLimiter) Release(clientIP string) {
	l.mu.Lock()
	if l.perIP[clientIP] > 0 {
		l.perIP[clientIP]--
		if l.perIP[clientIP] == 0 {
			delete(l.perIP, clientIP)
		}
	}
	l.mu.Unlock()
	l.global.Release(1)
}
