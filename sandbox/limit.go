package sandbox

import (
	"context"
	"errors"

	"github.com/isdmx/runbox/config"
)

// ErrTooManyExecutions is returned when every execution slot is taken.
var ErrTooManyExecutions = errors.New("too many executions in flight")

// ConcurrencyLimiter caps how many executions run at once. It wraps the
// executor rather than a transport so HTTP and MCP callers draw from the
// same slots and an idle connection never holds one.
type ConcurrencyLimiter struct {
	next  SandboxExecutor
	slots chan struct{}
}

// NewConcurrencyLimiter allows at most limit concurrent executions of next.
func NewConcurrencyLimiter(next SandboxExecutor, limit int) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{
		next:  next,
		slots: make(chan struct{}, max(1, limit)),
	}
}

// NewLimitedExecutor wraps the engine with ratelimit.max_concurrent. Zero
// leaves executions unbounded.
func NewLimitedExecutor(cfg *config.Config, engine *Engine) SandboxExecutor {
	if cfg.RateLimit.MaxConcurrent <= 0 {
		return engine
	}
	return NewConcurrencyLimiter(engine, cfg.RateLimit.MaxConcurrent)
}

// Execute runs req if a slot is free and fails fast with
// ErrTooManyExecutions otherwise.
func (l *ConcurrencyLimiter) Execute(ctx context.Context, req ExecutionRequest) (Outcome, error) {
	select {
	case l.slots <- struct{}{}:
	default:
		return Outcome{}, ErrTooManyExecutions
	}
	defer func() { <-l.slots }()

	return l.next.Execute(ctx, req)
}

// InFlight returns the number of executions holding a slot.
func (l *ConcurrencyLimiter) InFlight() int {
	return len(l.slots)
}
