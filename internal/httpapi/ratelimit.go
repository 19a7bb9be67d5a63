package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientIdleTTL - через сколько простоя лимитер клиента забывается.
const clientIdleTTL = 10 * time.Minute

// clientLimiter - token bucket на каждый адрес клиента.
type clientLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	now       func() time.Time
	clients   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newClientLimiter(rps float64, burst int, now func() time.Time) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	if now == nil {
		now = time.Now
	}
	return &clientLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		now:       now,
		clients:   make(map[string]*clientBucket),
		lastSweep: now(),
	}
}

// Allow списывает токен клиента id.
func (l *clientLimiter) Allow(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	bucket, ok := l.clients[id]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[id] = bucket
	}
	bucket.lastAccess = now
	return bucket.limiter.AllowN(now, 1)
}

// sweepLocked удаляет простаивающих клиентов не чаще раза в clientIdleTTL.
func (l *clientLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < clientIdleTTL {
		return
	}
	for id, bucket := range l.clients {
		if now.Sub(bucket.lastAccess) > clientIdleTTL {
			delete(l.clients, id)
		}
	}
	l.lastSweep = now
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
