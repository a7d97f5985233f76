package sandbox

import (
	"errors"
	"io"
	"os/exec"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// waitDelay bounds how long Wait keeps draining output after the process
// exits, e.g. when an orphaned grandchild still holds the pipes open.
const waitDelay = 2 * time.Second

// Resolution states of a supervised process. Exactly one transition away
// from stateRunning ever succeeds.
const (
	stateRunning int32 = iota
	stateExited
	stateKilled
)

// processResult is the raw outcome of one supervised process.
type processResult struct {
	ExitCode int
	TimedOut bool
}

// supervise starts spec, feeds stdin and closes it, and waits for either
// natural exit or the timeout. Either way the whole process group is killed,
// so nothing the program started in the background outlives it. The process
// has always been reaped when supervise returns.
func supervise(logger *zap.Logger, spec commandSpec, stdin string, timeout time.Duration, stdout, stderr io.Writer) (processResult, error) {
	if len(spec.Args) == 0 {
		return processResult{}, errors.New("empty command")
	}

	cmd := exec.Command(spec.Args[0], spec.Args[1:]...) //nolint:gosec // arguments are built from configuration and a generated file name
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return processResult{}, err
	}

	if err := cmd.Start(); err != nil {
		return processResult{}, err
	}

	go feedStdin(logger, stdinPipe, stdin)

	var state atomic.Int32
	timer := time.AfterFunc(timeout, func() {
		if !state.CompareAndSwap(stateRunning, stateKilled) {
			return
		}
		if killErr := killProcessTree(cmd); killErr != nil {
			logger.Debug("failed to kill timed out process", zap.Int("pid", cmd.Process.Pid), zap.Error(killErr))
		}
	})

	waitErr := cmd.Wait()
	exited := state.CompareAndSwap(stateRunning, stateExited)
	timer.Stop()

	if !exited {
		return processResult{ExitCode: -1, TimedOut: true}, nil
	}

	// background children must not outlive the program
	if killErr := killProcessGroup(cmd); killErr != nil {
		logger.Debug("failed to kill leftover processes", zap.Int("pid", cmd.Process.Pid), zap.Error(killErr))
	}

	if cmd.ProcessState == nil {
		return processResult{}, waitErr
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		logger.Debug("process exited but its output pipes stayed open", zap.Int("pid", cmd.Process.Pid))
	}

	return processResult{ExitCode: cmd.ProcessState.ExitCode()}, nil
}

// feedStdin writes input and closes the pipe; programs get a single batch of
// input followed by EOF.
func feedStdin(logger *zap.Logger, w io.WriteCloser, input string) {
	if input != "" {
		if _, err := io.WriteString(w, input); err != nil {
			// the program exited or closed stdin without reading everything
			logger.Debug("stdin write interrupted", zap.Error(err))
		}
	}
	if err := w.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		logger.Debug("failed to close stdin", zap.Error(err))
	}
}
