package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/isdmx/runbox/config"
)

// Rejection reasons reported by Limiter.Allow and the execute handler.
const (
	ReasonGlobal      = "global"
	ReasonClient      = "client"
	ReasonConcurrency = "concurrency"
)

const (
	clientIdleTTL      = 10 * time.Minute
	clientPruneTrigger = 4096
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter admits requests to the execution routes. It combines a global
// token bucket with a token bucket per client address. A zero setting
// disables that check. The cap on executions in flight is enforced around
// the executor, see sandbox.ConcurrencyLimiter.
type Limiter struct {
	global      *rate.Limiter
	clientRate  rate.Limit
	clientBurst int

	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

// NewLimiter creates a limiter from the ratelimit section
func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	l := &Limiter{
		clientRate:  rate.Limit(cfg.PerClientRPS),
		clientBurst: cfg.PerClientBurst,
		clients:     make(map[string]*clientLimiter),
		now:         time.Now,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = max(1, int(cfg.RequestsPerSecond)*2)
		}
		l.global = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if l.clientRate > 0 && l.clientBurst <= 0 {
		l.clientBurst = max(1, int(cfg.PerClientRPS)*2)
	}
	return l
}

// Allow admits one request from client. It returns an empty reason on
// success and the rejection reason otherwise.
func (l *Limiter) Allow(client string) (reason string) {
	if l.global != nil && !l.global.Allow() {
		return ReasonGlobal
	}
	if l.clientRate > 0 && !l.clientLimiter(client).Allow() {
		return ReasonClient
	}
	return ""
}

func (l *Limiter) clientLimiter(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.clients) >= clientPruneTrigger {
		for key, c := range l.clients {
			if now.Sub(c.lastSeen) > clientIdleTTL {
				delete(l.clients, key)
			}
		}
	}

	c, ok := l.clients[client]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.clientRate, l.clientBurst)}
		l.clients[client] = c
	}
	c.lastSeen = now
	return c.limiter
}
