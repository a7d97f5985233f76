// Package sandbox provides secure code execution capabilities.
//
// Host mode runs the interpreter directly on the machine with the privileges
// of the server process. It is the degraded fallback for hosts without a
// container runtime and must be treated as the lower-trust path.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HostResolver finds the first runnable interpreter binary for a runtime by
// running `<binary> --version`, and caches the answer per runtime.
type HostResolver struct {
	cmdRunner CommandRunner
	timeout   time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[string]*hostEntry
}

type hostEntry struct {
	once   sync.Once
	binary string
	err    error
}

// HostResolverOption defines a functional option for HostResolver
type HostResolverOption func(*HostResolver)

// WithHostCommandRunner sets the CommandRunner used for version probes
func WithHostCommandRunner(cmdRunner CommandRunner) HostResolverOption {
	return func(h *HostResolver) {
		h.cmdRunner = cmdRunner
	}
}

// NewHostResolver creates a resolver whose probes are bounded by timeout.
func NewHostResolver(logger *zap.Logger, timeout time.Duration, opts ...HostResolverOption) *HostResolver {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	h := &HostResolver{
		cmdRunner: RealCommandRunner{},
		timeout:   timeout,
		logger:    logger,
		entries:   make(map[string]*hostEntry),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Resolve returns the interpreter binary for rt, probing candidates in order
// on first use only.
func (h *HostResolver) Resolve(ctx context.Context, rt Runtime) (string, error) {
	h.mu.Lock()
	entry, ok := h.entries[rt.Name]
	if !ok {
		entry = &hostEntry{}
		h.entries[rt.Name] = entry
	}
	h.mu.Unlock()

	entry.once.Do(func() {
		entry.binary, entry.err = h.probe(ctx, rt)
	})
	return entry.binary, entry.err
}

func (h *HostResolver) probe(ctx context.Context, rt Runtime) (string, error) {
	candidates := rt.HostBinaries
	if len(candidates) == 0 {
		candidates = []string{rt.Interpreter}
	}

	for _, candidate := range candidates {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
		stdout, stderr, exitCode, err := h.cmdRunner.RunCommand(probeCtx, []string{candidate, "--version"})
		cancel()
		if err != nil || exitCode != 0 {
			h.logger.Debug("host interpreter candidate rejected",
				zap.String("language", rt.Name),
				zap.String("binary", candidate),
				zap.Int("exit_code", exitCode),
				zap.Error(err))
			continue
		}

		version := strings.TrimSpace(stdout)
		if version == "" {
			// python 2 prints its version on stderr
			version = strings.TrimSpace(stderr)
		}
		h.logger.Info("host interpreter resolved",
			zap.String("language", rt.Name),
			zap.String("binary", candidate),
			zap.String("version", version))
		return candidate, nil
	}

	return "", fmt.Errorf("no interpreter for %s found on host (tried %s)", rt.Name, strings.Join(candidates, ", "))
}

// hostEnv is the environment of a host-mode program. Nothing else from the
// server's environment is inherited.
func hostEnv(home string) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/local/bin:/usr/bin:/bin"
	}
	return []string{
		"PATH=" + path,
		"HOME=" + home,
		"TMPDIR=" + os.TempDir(),
		"LANG=C.UTF-8",
		"PYTHONUNBUFFERED=1",
		"PYTHONDONTWRITEBYTECODE=1",
		"NODE_ENV=production",
	}
}
