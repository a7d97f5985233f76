package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCLIRuntime(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("ProbeSuccess", func(t *testing.T) {
		runner := &MockCommandRunner{}
		rt := NewCLIRuntime(logger, "podman", WithCLICommandRunner(runner))

		require.NoError(t, rt.Probe(context.Background()))
		assert.Equal(t, []string{"podman info"}, runner.Calls())
		assert.Equal(t, "podman", rt.Name())
		assert.Equal(t, "podman", rt.Binary())
	})

	t.Run("ProbeNonZeroExit", func(t *testing.T) {
		runner := &MockCommandRunner{defaultResult: commandResult{exitCode: 125, stderr: "cannot connect\n"}}
		rt := NewCLIRuntime(logger, "podman", WithCLICommandRunner(runner))

		err := rt.Probe(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exited with code 125: cannot connect")
	})

	t.Run("ProbeMissingBinary", func(t *testing.T) {
		runner := &MockCommandRunner{defaultResult: commandResult{err: errors.New("executable file not found")}}
		rt := NewCLIRuntime(logger, "podman", WithCLICommandRunner(runner))

		assert.Error(t, rt.Probe(context.Background()))
	})

	t.Run("Remove", func(t *testing.T) {
		runner := &MockCommandRunner{}
		rt := NewCLIRuntime(logger, "docker", WithCLICommandRunner(runner))

		require.NoError(t, rt.Remove(context.Background(), "runbox-abc"))
		assert.Equal(t, []string{"docker rm -f runbox-abc"}, runner.Calls())
	})

	t.Run("RemoveAlreadyGone", func(t *testing.T) {
		runner := &MockCommandRunner{defaultResult: commandResult{
			exitCode: 1,
			stderr:   "Error response from daemon: No such container: runbox-abc",
		}}
		rt := NewCLIRuntime(logger, "docker", WithCLICommandRunner(runner))

		assert.NoError(t, rt.Remove(context.Background(), "runbox-abc"))
	})

	t.Run("RemoveFailure", func(t *testing.T) {
		runner := &MockCommandRunner{defaultResult: commandResult{exitCode: 1, stderr: "permission denied"}}
		rt := NewCLIRuntime(logger, "docker", WithCLICommandRunner(runner))

		assert.Error(t, rt.Remove(context.Background(), "runbox-abc"))
	})
}

func TestNewContainerRuntime(t *testing.T) {
	logger := zaptest.NewLogger(t)
	runner := &MockCommandRunner{}

	t.Run("Podman", func(t *testing.T) {
		rt, err := NewContainerRuntime(logger, "podman", runner)
		require.NoError(t, err)
		assert.Equal(t, "podman", rt.Name())
	})

	t.Run("Docker", func(t *testing.T) {
		rt, err := NewContainerRuntime(logger, "docker", runner)
		require.NoError(t, err)
		assert.Equal(t, "docker", rt.Binary())
	})

	t.Run("Local", func(t *testing.T) {
		rt, err := NewContainerRuntime(logger, "local", runner)
		require.NoError(t, err)
		assert.Nil(t, rt)
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := NewContainerRuntime(logger, "firecracker", runner)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported backend")
	})
}
