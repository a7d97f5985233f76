package sandbox

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"time"
)

// ExecutionRequest is one inbound request to run a program.
type ExecutionRequest struct {
	Language string
	Code     string
	Stdin    string
}

// SandboxExecutor defines the interface for sandbox execution
type SandboxExecutor interface {
	Execute(ctx context.Context, req ExecutionRequest) (Outcome, error)
}

// CommandRunner defines an interface for executing short-lived system commands
// such as runtime probes and container cleanup.
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, errors.New("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // arguments come from configuration, not from requests

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		var exitError *exec.ExitError
		if !errors.As(err, &exitError) {
			return "", "", 0, err
		}
		exitCode = exitError.ExitCode()
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// FileSystem defines an interface for the file system operations used by
// the workspace manager.
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	Remove(path string) error
	ReadDir(dir string) ([]fs.DirEntry, error)
	Stat(path string) (fs.FileInfo, error)
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// WriteFile creates filename exclusively; an existing file is an error.
func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (RealFileSystem) Remove(path string) error {
	return os.Remove(path)
}

func (RealFileSystem) ReadDir(dir string) ([]fs.DirEntry, error) {
	return os.ReadDir(dir)
}

func (RealFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// File permission constants
const (
	DirPermission = 0o755
	// FilePermission lets the unprivileged container user read the staged source.
	FilePermission = 0o644
)

// Config holds the execution limits shared by every backend
type Config struct {
	ScratchDir       string
	Timeout          time.Duration
	OutputLimitBytes int
	MemoryMB         int
	CPUs             float64
	PIDsLimit        int
	NetworkEnabled   bool
	ProbeTimeout     time.Duration
	FallbackToHost   bool
}

// Default limits, matching the shipped configuration.
const (
	DefaultScratchDir       = "/tmp/code-sandbox"
	DefaultTimeout          = 10 * time.Second
	DefaultOutputLimitBytes = 10000
	DefaultMemoryMB         = 128
	DefaultCPUs             = 0.5
	DefaultPIDsLimit        = 64
	DefaultProbeTimeout     = 3 * time.Second
)

// withDefaults fills zero values so a partially populated Config is usable.
func (c Config) withDefaults() Config {
	if c.ScratchDir == "" {
		c.ScratchDir = DefaultScratchDir
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.OutputLimitBytes <= 0 {
		c.OutputLimitBytes = DefaultOutputLimitBytes
	}
	if c.MemoryMB <= 0 {
		c.MemoryMB = DefaultMemoryMB
	}
	if c.CPUs <= 0 {
		c.CPUs = DefaultCPUs
	}
	if c.PIDsLimit <= 0 {
		c.PIDsLimit = DefaultPIDsLimit
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	return c
}

// Recorder receives execution telemetry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ExecutionStarted(language string)
	ExecutionFinished(language, isolation string, status Status, elapsed time.Duration)
	ExecutionFailed(language string)
	OutputTruncated(language, stream string)
}

type noopRecorder struct{}

func (noopRecorder) ExecutionStarted(string)                                 {}
func (noopRecorder) ExecutionFinished(string, string, Status, time.Duration) {}
func (noopRecorder) ExecutionFailed(string)                                  {}
func (noopRecorder) OutputTruncated(string, string)                          {}
