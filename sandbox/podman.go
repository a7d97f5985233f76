package sandbox

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// CLIRuntime implements ContainerRuntime by shelling out to a docker-compatible
// CLI. It backs podman and serves as the docker fallback when no API client
// can be built.
type CLIRuntime struct {
	binary    string
	logger    *zap.Logger
	cmdRunner CommandRunner
}

// CLIRuntimeOption defines a functional option for CLIRuntime
type CLIRuntimeOption func(*CLIRuntime)

// WithCLICommandRunner sets the CommandRunner for CLIRuntime
func WithCLICommandRunner(cmdRunner CommandRunner) CLIRuntimeOption {
	return func(c *CLIRuntime) {
		c.cmdRunner = cmdRunner
	}
}

// NewCLIRuntime creates a runtime driving binary (e.g. "podman").
func NewCLIRuntime(logger *zap.Logger, binary string, opts ...CLIRuntimeOption) *CLIRuntime {
	r := &CLIRuntime{
		binary:    binary,
		logger:    logger,
		cmdRunner: RealCommandRunner{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (c *CLIRuntime) Name() string { return c.binary }

func (c *CLIRuntime) Binary() string { return c.binary }

// Probe runs `<binary> info`; any failure means the runtime is unusable.
func (c *CLIRuntime) Probe(ctx context.Context) error {
	_, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, []string{c.binary, "info"})
	if err != nil {
		return fmt.Errorf("%s info failed: %w", c.binary, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%s info exited with code %d: %s", c.binary, exitCode, strings.TrimSpace(stderr))
	}
	return nil
}

// Remove runs `<binary> rm -f <name>`.
func (c *CLIRuntime) Remove(ctx context.Context, name string) error {
	_, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, []string{c.binary, "rm", "-f", name})
	if err != nil {
		return fmt.Errorf("%s rm failed: %w", c.binary, err)
	}
	if exitCode != 0 && !isNoSuchContainer(stderr) {
		return fmt.Errorf("%s rm exited with code %d: %s", c.binary, exitCode, strings.TrimSpace(stderr))
	}
	return nil
}

func isNoSuchContainer(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "no such container") || strings.Contains(s, "no container with name")
}

// NewContainerRuntime selects the runtime for backend. The local backend has
// no container runtime and returns nil.
func NewContainerRuntime(logger *zap.Logger, backend string, cmdRunner CommandRunner) (ContainerRuntime, error) {
	switch backend {
	case "docker":
		rt, err := NewDockerRuntime(logger)
		if err != nil {
			logger.Warn("docker API client unavailable, using docker CLI", zap.Error(err))
			return NewCLIRuntime(logger, "docker", WithCLICommandRunner(cmdRunner)), nil
		}
		return rt, nil
	case "podman":
		return NewCLIRuntime(logger, "podman", WithCLICommandRunner(cmdRunner)), nil
	case "local":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}
