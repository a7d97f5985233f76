//go:build unix

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// shellLanguages runs "shell" programs with sh, available on every unix host.
func shellLanguages() *Languages {
	return NewLanguages([]Runtime{
		{Name: "shell", Extension: "sh", Image: "alpine:3.20", Interpreter: "sh", HostBinaries: []string{"sh"}},
	}, nil)
}

type engineFixture struct {
	engine   *Engine
	root     string
	recorder *MockRecorder
}

func newTestEngine(t *testing.T, cfg Config, opts ...EngineOption) *engineFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	root := filepath.Join(t.TempDir(), "scratch")
	cfg.ScratchDir = root

	recorder := &MockRecorder{}
	// sh has no --version flag on every platform; pretend the probe passed
	hosts := NewHostResolver(logger, time.Second, WithHostCommandRunner(&MockCommandRunner{}))

	base := []EngineOption{
		WithLanguages(shellLanguages()),
		WithHostResolver(hosts),
		WithRecorder(recorder),
	}
	engine := NewEngine(logger, cfg, append(base, opts...)...)

	return &engineFixture{engine: engine, root: root, recorder: recorder}
}

func (f *engineFixture) run(t *testing.T, code, stdin string) Outcome {
	t.Helper()
	outcome, err := f.engine.Execute(context.Background(), ExecutionRequest{Language: "shell", Code: code, Stdin: stdin})
	require.NoError(t, err)
	return outcome
}

func TestEngineExecute(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newTestEngine(t, Config{Timeout: 5 * time.Second})

		outcome := f.run(t, "echo hello", "")

		assert.Equal(t, StatusSuccess, outcome.Status)
		assert.Equal(t, "hello\n", string(outcome.Stdout))
		assert.Empty(t, outcome.Stderr)
		assert.Equal(t, ModeHost, outcome.Isolation)
		assert.Equal(t, "shell", outcome.Language)
		assert.NotEmpty(t, outcome.ExecutionID)
		assert.Positive(t, outcome.Elapsed)
		assert.Empty(t, listWorkspaceFiles(t, f.root))
	})

	t.Run("NonZeroExitIsError", func(t *testing.T) {
		f := newTestEngine(t, Config{Timeout: 5 * time.Second})

		outcome := f.run(t, "echo partial; echo oops >&2; exit 3", "")

		assert.Equal(t, StatusError, outcome.Status)
		assert.Equal(t, 3, outcome.ExitCode)
		assert.Equal(t, "partial\n", string(outcome.Stdout))
		assert.Equal(t, "oops\n", string(outcome.Stderr))
		assert.Empty(t, listWorkspaceFiles(t, f.root))
	})

	t.Run("Timeout", func(t *testing.T) {
		f := newTestEngine(t, Config{Timeout: 200 * time.Millisecond})

		start := time.Now()
		outcome := f.run(t, "echo before; sleep 30", "")

		assert.Equal(t, StatusTimeout, outcome.Status)
		assert.Equal(t, "before\n", string(outcome.Stdout))
		assert.Less(t, time.Since(start), 5*time.Second)
		assert.GreaterOrEqual(t, outcome.Elapsed, 200*time.Millisecond)

		resp := Classify(outcome)
		assert.Equal(t, "Execution timeout (200ms limit)", resp.Stderr)
		assert.Empty(t, listWorkspaceFiles(t, f.root))
	})

	t.Run("TimeoutKillsBackgroundChildren", func(t *testing.T) {
		f := newTestEngine(t, Config{Timeout: 200 * time.Millisecond})
		marker := filepath.Join(t.TempDir(), "survived")

		outcome := f.run(t, fmt.Sprintf("(sleep 1; touch %s) & sleep 30", marker), "")
		require.Equal(t, StatusTimeout, outcome.Status)

		time.Sleep(1500 * time.Millisecond)
		assert.NoFileExists(t, marker)
	})

	t.Run("ExitKillsBackgroundChildren", func(t *testing.T) {
		f := newTestEngine(t, Config{Timeout: 5 * time.Second})
		marker := filepath.Join(t.TempDir(), "survived")

		outcome := f.run(t, fmt.Sprintf("(sleep 1; touch %s) >/dev/null 2>&1 & echo hi", marker), "")
		require.Equal(t, StatusSuccess, outcome.Status)
		assert.Equal(t, "hi\n", string(outcome.Stdout))
		assert.Less(t, outcome.Elapsed, time.Second)

		time.Sleep(1500 * time.Millisecond)
		assert.NoFileExists(t, marker)
	})

	t.Run("OutputIsCapped", func(t *testing.T) {
		f := newTestEngine(t, Config{Timeout: 5 * time.Second, OutputLimitBytes: 100})

		outcome := f.run(t, `i=0; while [ $i -lt 500 ]; do echo 0123456789; echo e >&2; i=$((i+1)); done`, "")

		assert.Equal(t, StatusSuccess, outcome.Status, "overflow is not a failure")
		assert.Len(t, outcome.Stdout, 100)
		assert.Len(t, outcome.Stderr, 100)
		assert.True(t, outcome.StdoutTruncated)
		assert.True(t, outcome.StderrTruncated)
		assert.True(t, strings.HasPrefix(string(outcome.Stdout), "0123456789\n0123456789\n"))
		assert.ElementsMatch(t, []string{"stdout", "stderr"}, f.recorder.truncations)
	})

	t.Run("StdinIsDelivered", func(t *testing.T) {
		f := newTestEngine(t, Config{Timeout: 5 * time.Second})

		outcome := f.run(t, `read name; echo "hi $name"`, "world\n")

		assert.Equal(t, StatusSuccess, outcome.Status)
		assert.Equal(t, "hi world\n", string(outcome.Stdout))
	})

	t.Run("ReadingPastInputSeesEOF", func(t *testing.T) {
		f := newTestEngine(t, Config{Timeout: 5 * time.Second})

		outcome := f.run(t, `cat; echo end`, "")

		assert.Equal(t, StatusSuccess, outcome.Status)
		assert.Equal(t, "end\n", string(outcome.Stdout))
	})

	t.Run("UnsupportedLanguageCreatesNothing", func(t *testing.T) {
		f := newTestEngine(t, Config{Timeout: 5 * time.Second})

		_, err := f.engine.Execute(context.Background(), ExecutionRequest{Language: "ruby", Code: "puts 1"})

		var unsupported *UnsupportedLanguageError
		require.True(t, errors.As(err, &unsupported))
		assert.Equal(t, "Language ruby not supported", err.Error())
		_, statErr := os.Stat(f.root)
		assert.True(t, os.IsNotExist(statErr), "no scratch directory is created")
		assert.Zero(t, f.recorder.started)
	})

	t.Run("MissingInterpreterIsInfrastructureError", func(t *testing.T) {
		logger := zaptest.NewLogger(t)
		hosts := NewHostResolver(logger, time.Second, WithHostCommandRunner(&MockCommandRunner{
			defaultResult: commandResult{err: errors.New("not found")},
		}))
		f := newTestEngine(t, Config{}, WithHostResolver(hosts))

		_, err := f.engine.Execute(context.Background(), ExecutionRequest{Language: "shell", Code: "echo"})

		var infra *InfrastructureError
		require.True(t, errors.As(err, &infra))
		assert.Equal(t, "resolve", infra.Op)
		assert.Equal(t, 1, f.recorder.failed)
		assert.Empty(t, listWorkspaceFiles(t, f.root))
	})

	t.Run("StagingFailureIsInfrastructureError", func(t *testing.T) {
		logger := zaptest.NewLogger(t)
		workspaces := NewWorkspaceManager(logger, "/scratch",
			WithWorkspaceFileSystem(&MockFileSystem{writeFileErr: errors.New("no space left on device")}))
		f := newTestEngine(t, Config{}, WithWorkspaceManager(workspaces))

		_, err := f.engine.Execute(context.Background(), ExecutionRequest{Language: "shell", Code: "echo"})

		var infra *InfrastructureError
		require.True(t, errors.As(err, &infra))
		assert.Equal(t, "stage", infra.Op)
		assert.Contains(t, err.Error(), "no space left on device")
	})

	t.Run("ConcurrentExecutionsAreIndependent", func(t *testing.T) {
		f := newTestEngine(t, Config{Timeout: 10 * time.Second})

		const n = 16
		var wg sync.WaitGroup
		outcomes := make([]Outcome, n)
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcomes[i], errs[i] = f.engine.Execute(context.Background(), ExecutionRequest{
					Language: "shell",
					Code:     fmt.Sprintf("echo %d", i),
				})
			}()
		}
		wg.Wait()

		for i := range n {
			require.NoError(t, errs[i])
			assert.Equal(t, fmt.Sprintf("%d\n", i), string(outcomes[i].Stdout))
		}
		assert.Empty(t, listWorkspaceFiles(t, f.root))
		assert.Len(t, f.recorder.finished, n)
	})
}

func TestEngineIsolation(t *testing.T) {
	t.Run("FallbackToHostIsTransparent", func(t *testing.T) {
		logger := zaptest.NewLogger(t)
		rt := &MockContainerRuntime{binary: "docker", probeErr: errors.New("daemon down")}
		f := newTestEngine(t, Config{Timeout: 5 * time.Second, FallbackToHost: true},
			WithContainerRuntime(rt),
			WithIsolation(NewIsolationSelector(logger, rt, time.Second)))

		outcome := f.run(t, "echo fallback", "")

		assert.Equal(t, ModeHost, outcome.Isolation)
		assert.Equal(t, "fallback\n", string(outcome.Stdout))
		assert.Equal(t, StatusSuccess, outcome.Status)
	})

	t.Run("FallbackDisabled", func(t *testing.T) {
		rt := &MockContainerRuntime{binary: "docker"}
		f := newTestEngine(t, Config{FallbackToHost: false},
			WithContainerRuntime(rt),
			WithIsolation(StaticDecision{}))

		_, err := f.engine.Execute(context.Background(), ExecutionRequest{Language: "shell", Code: "echo"})

		var infra *InfrastructureError
		require.True(t, errors.As(err, &infra))
		assert.Equal(t, "isolation", infra.Op)
	})

	t.Run("ContainerModeInvokesRuntime", func(t *testing.T) {
		// a fake runtime CLI that prints the arguments it was given
		fake := filepath.Join(t.TempDir(), "fake-docker")
		require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\necho \"$@\"\n"), 0o755))
		rt := &MockContainerRuntime{binary: fake}

		f := newTestEngine(t, Config{Timeout: 5 * time.Second},
			WithContainerRuntime(rt),
			WithIsolation(StaticDecision{ContainerRuntimeAvailable: true, Runtime: "mock"}))

		outcome := f.run(t, "echo ignored", "")

		assert.Equal(t, ModeContainer, outcome.Isolation)
		args := string(outcome.Stdout)
		assert.Contains(t, args, "run --rm -i --name runbox-")
		assert.Contains(t, args, "--network none")
		assert.Contains(t, args, f.root+":/sandbox:ro")
		assert.Contains(t, args, "alpine:3.20 sh /sandbox/code-")
		assert.Empty(t, rt.Removed(), "finished containers are removed by --rm")
	})

	t.Run("ContainerTimeoutRemovesContainer", func(t *testing.T) {
		fake := filepath.Join(t.TempDir(), "fake-docker")
		require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\nsleep 30\n"), 0o755))
		rt := &MockContainerRuntime{binary: fake}

		f := newTestEngine(t, Config{Timeout: 200 * time.Millisecond},
			WithContainerRuntime(rt),
			WithIsolation(StaticDecision{ContainerRuntimeAvailable: true}))

		outcome := f.run(t, "while true; do :; done", "")

		assert.Equal(t, StatusTimeout, outcome.Status)
		removed := rt.Removed()
		require.Len(t, removed, 1)
		assert.True(t, strings.HasPrefix(removed[0], "runbox-"))
		assert.Empty(t, listWorkspaceFiles(t, f.root))
	})
}
