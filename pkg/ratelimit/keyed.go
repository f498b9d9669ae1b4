package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Steady wraps a token bucket for smoothing outbound traffic such as media downloads
type Steady struct {
	limiter *rate.Limiter
}

// NewSteady allows perSecond requests on average with the given burst
func NewSteady(perSecond float64, burst int) *Steady {
	return &Steady{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a token is available or ctx is done
func (s *Steady) Wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter keeps one token bucket per client key (usually the remote IP)
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	r       rate.Limit
	burst   int
	now     Clock
}

// NewClientLimiter allows each client perSecond requests on average with the given burst
func NewClientLimiter(perSecond float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		clients: make(map[string]*clientEntry),
		r:       rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow checks whether the client identified by key may proceed
func (cl *ClientLimiter) Allow(key string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := cl.now()
	entry, ok := cl.clients[key]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(cl.r, cl.burst)}
		cl.clients[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// Prune drops clients not seen for longer than idle and returns how many were removed
func (cl *ClientLimiter) Prune(idle time.Duration) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cutoff := cl.now().Add(-idle)
	removed := 0
	for key, entry := range cl.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(cl.clients, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients
func (cl *ClientLimiter) Len() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.clients)
}
