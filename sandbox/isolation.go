package sandbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Isolation modes reported in outcomes, logs and metrics.
const (
	ModeContainer = "container"
	ModeHost      = "host"
)

// Decision records whether container isolation is available. It is computed
// once per process and never refreshed.
type Decision struct {
	ContainerRuntimeAvailable bool
	// Runtime names the probed container runtime, empty for the local backend.
	Runtime string
}

// Mode returns ModeContainer or ModeHost.
func (d Decision) Mode() string {
	if d.ContainerRuntimeAvailable {
		return ModeContainer
	}
	return ModeHost
}

// IsolationSource supplies the isolation decision to the engine.
type IsolationSource interface {
	Decide(ctx context.Context) Decision
}

// StaticDecision is an IsolationSource with a fixed answer.
type StaticDecision Decision

func (s StaticDecision) Decide(context.Context) Decision {
	return Decision(s)
}

// IsolationSelector probes the container runtime once, with a bounded
// timeout, and caches the answer for the lifetime of the process. Probe
// failures of any kind mean "unavailable"; they are logged, never returned.
type IsolationSelector struct {
	runtime ContainerRuntime
	timeout time.Duration
	logger  *zap.Logger

	once     sync.Once
	decision Decision
}

// NewIsolationSelector creates a selector. A nil runtime always decides host mode.
func NewIsolationSelector(logger *zap.Logger, runtime ContainerRuntime, timeout time.Duration) *IsolationSelector {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &IsolationSelector{
		runtime: runtime,
		timeout: timeout,
		logger:  logger,
	}
}

// Decide returns the cached decision, probing on first use. Concurrent first
// callers block until the single probe finishes.
func (s *IsolationSelector) Decide(ctx context.Context) Decision {
	s.once.Do(func() {
		s.decision = s.probe(ctx)
	})
	return s.decision
}

func (s *IsolationSelector) probe(ctx context.Context) Decision {
	if s.runtime == nil {
		s.logger.Warn("no container runtime configured, executing directly on the host")
		return Decision{}
	}

	// the probe outlives a cancelled first caller; the answer is shared
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.runtime.Probe(probeCtx); err != nil {
		s.logger.Warn("container runtime unavailable, falling back to host execution",
			zap.String("runtime", s.runtime.Name()),
			zap.Duration("probe_duration", time.Since(start)),
			zap.Error(err))
		return Decision{Runtime: s.runtime.Name()}
	}

	s.logger.Info("container runtime available, executions will be isolated",
		zap.String("runtime", s.runtime.Name()),
		zap.Duration("probe_duration", time.Since(start)))
	return Decision{ContainerRuntimeAvailable: true, Runtime: s.runtime.Name()}
}
