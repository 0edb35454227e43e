package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter: misma semántica fixed-window que RedisLimiter, contadores
// en proceso sobre go-cache (el TTL de la cache cierra la ventana solo).
// Para dev/single-node; con réplicas usar Redis.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration

	mu    sync.Mutex
	cache *gocache.Cache
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		Max:    int64(max),
		Window: window,
		cache:  gocache.New(window, 2*window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	winStart := time.Now().UTC().Truncate(l.Window)
	ck := fmt.Sprintf("%s:%d", key, winStart.Unix())

	// go-cache no tiene INCR atómico con TTL inicial; un mutex alcanza
	// para contadores en proceso.
	l.mu.Lock()
	var hits int64 = 1
	if v, ok := l.cache.Get(ck); ok {
		hits = v.(int64) + 1
	}
	l.cache.Set(ck, hits, l.Window)
	l.mu.Unlock()

	allowed := hits <= l.Max
	remaining := l.Max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{Allowed: allowed, Remaining: remaining, CurrentHits: hits}
	if !allowed {
		res.RetryAfter = time.Until(winStart.Add(l.Window))
	}
	return res, nil
}
