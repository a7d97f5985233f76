// Package sandbox provides secure code execution capabilities.
//
// The DockerRuntime talks to the Docker Engine API for the two operations
// that must not depend on parsing CLI output: probing daemon health and
// force-removing a container whose client process was killed on timeout.
// Programs themselves are still launched through the docker CLI so their
// standard streams can be supervised like any other child process.
package sandbox

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"go.uber.org/zap"
)

// ContainerRuntime is the container engine used in container isolation mode.
type ContainerRuntime interface {
	// Name identifies the runtime in logs and readiness output.
	Name() string
	// Binary is the CLI used to launch containers.
	Binary() string
	// Probe returns nil when containers can be started.
	Probe(ctx context.Context) error
	// Remove force-removes a container by name. A missing container is not an error.
	Remove(ctx context.Context, name string) error
}

// DockerRuntime implements ContainerRuntime with the Docker Engine API
type DockerRuntime struct {
	cli      *client.Client
	binary   string
	logger   *zap.Logger
	lookPath func(string) (string, error)
}

// NewDockerRuntime creates a client from the DOCKER_* environment. Creating
// the client does not contact the daemon.
func NewDockerRuntime(logger *zap.Logger) (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerRuntime{
		cli:      cli,
		binary:   "docker",
		logger:   logger,
		lookPath: exec.LookPath,
	}, nil
}

func (*DockerRuntime) Name() string { return "docker" }

func (d *DockerRuntime) Binary() string { return d.binary }

// Probe requires both the CLI on PATH and a responsive daemon.
func (d *DockerRuntime) Probe(ctx context.Context) error {
	if _, err := d.lookPath(d.binary); err != nil {
		return fmt.Errorf("docker CLI not found: %w", err)
	}
	ping, err := d.cli.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	d.logger.Debug("docker daemon reachable",
		zap.String("api_version", ping.APIVersion),
		zap.String("os_type", ping.OSType))
	return nil
}

// Remove force-removes the container; --rm usually got there first.
func (d *DockerRuntime) Remove(ctx context.Context, name string) error {
	err := d.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// Close releases the API client.
func (d *DockerRuntime) Close() error {
	return d.cli.Close()
}
