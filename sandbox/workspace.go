package sandbox

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	workspacePrefix = "code-"
	workspaceIDSize = 8 // bytes of entropy, hex encoded to 16 characters
)

// Workspace is a single staged source file owned by one execution.
type Workspace struct {
	ID        string
	Path      string
	Extension string
}

// FileName returns the base name of the staged file, e.g. code-<id>.py.
func (w *Workspace) FileName() string {
	return filepath.Base(w.Path)
}

// WorkspaceManager stages submitted source under a shared scratch root.
// Every file name carries a fresh random id, so concurrent executions never
// collide and no locking is needed.
type WorkspaceManager struct {
	root   string
	fs     FileSystem
	logger *zap.Logger
	idFunc func() (string, error)
}

// WorkspaceOption defines a functional option for WorkspaceManager
type WorkspaceOption func(*WorkspaceManager)

// WithWorkspaceFileSystem sets the FileSystem for WorkspaceManager
func WithWorkspaceFileSystem(fs FileSystem) WorkspaceOption {
	return func(m *WorkspaceManager) {
		m.fs = fs
	}
}

// NewWorkspaceManager creates a manager rooted at root. Relative roots are
// made absolute so they can be bind-mounted into containers.
func NewWorkspaceManager(logger *zap.Logger, root string, opts ...WorkspaceOption) *WorkspaceManager {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	m := &WorkspaceManager{
		root:   root,
		fs:     RealFileSystem{},
		logger: logger,
		idFunc: newWorkspaceID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the scratch root directory.
func (m *WorkspaceManager) Root() string {
	return m.root
}

// Stage writes code to a new code-<id>.<ext> file under the scratch root.
func (m *WorkspaceManager) Stage(code, extension string) (*Workspace, error) {
	if err := m.fs.MkdirAll(m.root, DirPermission); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	id, err := m.idFunc()
	if err != nil {
		return nil, fmt.Errorf("failed to generate workspace id: %w", err)
	}

	ws := &Workspace{
		ID:        id,
		Path:      filepath.Join(m.root, workspacePrefix+id+"."+extension),
		Extension: extension,
	}

	if err := m.fs.WriteFile(ws.Path, []byte(code), FilePermission); err != nil {
		// a partial write may still have created the file; an existing one
		// belongs to another execution
		if !errors.Is(err, fs.ErrExist) {
			m.Release(ws)
		}
		return nil, fmt.Errorf("failed to write user code: %w", err)
	}

	return ws, nil
}

// Release deletes the staged file. Failures are logged, never returned.
func (m *WorkspaceManager) Release(ws *Workspace) {
	if ws == nil {
		return
	}
	if err := m.fs.Remove(ws.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("failed to remove workspace file", zap.String("path", ws.Path), zap.Error(err))
	}
}

// With stages code, runs fn and releases the workspace on every exit path,
// including a panic inside fn.
func (m *WorkspaceManager) With(code, extension string, fn func(*Workspace) error) error {
	ws, err := m.Stage(code, extension)
	if err != nil {
		return err
	}
	defer m.Release(ws)

	return fn(ws)
}

// Sweep removes workspace files whose modification time is older than maxAge
// and returns how many were removed. Files not named like a workspace are
// left alone.
func (m *WorkspaceManager) Sweep(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := m.fs.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list scratch dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), workspacePrefix) {
			continue
		}
		path := filepath.Join(m.root, entry.Name())
		info, err := m.fs.Stat(path)
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := m.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("failed to sweep workspace file", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}

	return removed, nil
}

func newWorkspaceID() (string, error) {
	b := make([]byte, workspaceIDSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
