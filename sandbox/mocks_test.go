package sandbox

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"
)

type commandResult struct {
	stdout   string
	stderr   string
	exitCode int
	err      error
}

// MockCommandRunner implements CommandRunner for testing
type MockCommandRunner struct {
	mu             sync.Mutex
	commandResults map[string]commandResult
	defaultResult  commandResult
	calls          []string
}

func (m *MockCommandRunner) RunCommand(_ context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	cmdKey := strings.Join(args, " ")

	m.mu.Lock()
	m.calls = append(m.calls, cmdKey)
	m.mu.Unlock()

	if result, exists := m.commandResults[cmdKey]; exists {
		return result.stdout, result.stderr, result.exitCode, result.err
	}

	return m.defaultResult.stdout, m.defaultResult.stderr, m.defaultResult.exitCode, m.defaultResult.err
}

func (m *MockCommandRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockFileSystem implements FileSystem for testing
type MockFileSystem struct {
	mkdirAllErr  error
	writeFileErr error
	removeErr    error

	mu      sync.Mutex
	written map[string][]byte
	removed []string
}

func (m *MockFileSystem) MkdirAll(string, os.FileMode) error {
	return m.mkdirAllErr
}

func (m *MockFileSystem) WriteFile(filename string, data []byte, _ os.FileMode) error {
	if m.writeFileErr != nil {
		return m.writeFileErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.written == nil {
		m.written = make(map[string][]byte)
	}
	m.written[filename] = data
	return nil
}

func (m *MockFileSystem) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, path)
	return m.removeErr
}

func (m *MockFileSystem) ReadDir(string) ([]fs.DirEntry, error) {
	return nil, errors.New("not implemented")
}

func (m *MockFileSystem) Stat(string) (fs.FileInfo, error) {
	return nil, errors.New("not implemented")
}

// MockContainerRuntime implements ContainerRuntime for testing
type MockContainerRuntime struct {
	binary   string
	probeErr error

	mu      sync.Mutex
	probes  int
	removed []string
}

func (m *MockContainerRuntime) Name() string { return "mock" }

func (m *MockContainerRuntime) Binary() string { return m.binary }

func (m *MockContainerRuntime) Probe(context.Context) error {
	m.mu.Lock()
	m.probes++
	m.mu.Unlock()
	return m.probeErr
}

func (m *MockContainerRuntime) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, name)
	return nil
}

func (m *MockContainerRuntime) Probes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probes
}

func (m *MockContainerRuntime) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}

// MockRecorder implements Recorder for testing
type MockRecorder struct {
	mu          sync.Mutex
	started     int
	finished    []Status
	failed      int
	truncations []string
}

func (m *MockRecorder) ExecutionStarted(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *MockRecorder) ExecutionFinished(_, _ string, status Status, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, status)
}

func (m *MockRecorder) ExecutionFailed(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
}

func (m *MockRecorder) OutputTruncated(_, stream string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.truncations = append(m.truncations, stream)
}
