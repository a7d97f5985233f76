package sandbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// containerRemoveTimeout bounds the force-remove of a timed-out container.
const containerRemoveTimeout = 5 * time.Second

// Engine is the single parameterized executor for every language. Per-language
// behavior lives in Runtime records, not in code branches.
type Engine struct {
	logger     *zap.Logger
	config     Config
	languages  *Languages
	workspaces *WorkspaceManager
	isolation  IsolationSource
	runtime    ContainerRuntime
	hosts      *HostResolver
	recorder   Recorder
}

// EngineOption defines a functional option for Engine
type EngineOption func(*Engine)

// WithLanguages sets the language table
func WithLanguages(languages *Languages) EngineOption {
	return func(e *Engine) {
		e.languages = languages
	}
}

// WithIsolation sets the isolation decision source
func WithIsolation(isolation IsolationSource) EngineOption {
	return func(e *Engine) {
		e.isolation = isolation
	}
}

// WithContainerRuntime sets the runtime used in container mode
func WithContainerRuntime(runtime ContainerRuntime) EngineOption {
	return func(e *Engine) {
		e.runtime = runtime
	}
}

// WithHostResolver sets the host interpreter resolver
func WithHostResolver(hosts *HostResolver) EngineOption {
	return func(e *Engine) {
		e.hosts = hosts
	}
}

// WithWorkspaceManager sets the workspace manager
func WithWorkspaceManager(workspaces *WorkspaceManager) EngineOption {
	return func(e *Engine) {
		e.workspaces = workspaces
	}
}

// WithRecorder sets the telemetry recorder
func WithRecorder(recorder Recorder) EngineOption {
	return func(e *Engine) {
		if recorder != nil {
			e.recorder = recorder
		}
	}
}

// NewEngine creates an Engine. Without options it runs the default languages
// directly on the host.
func NewEngine(logger *zap.Logger, config Config, opts ...EngineOption) *Engine {
	config = config.withDefaults()
	e := &Engine{
		logger:    logger,
		config:    config,
		languages: DefaultLanguages(),
		isolation: StaticDecision{},
		recorder:  noopRecorder{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.workspaces == nil {
		e.workspaces = NewWorkspaceManager(logger, config.ScratchDir)
	}
	if e.hosts == nil {
		e.hosts = NewHostResolver(logger, config.ProbeTimeout)
	}

	return e
}

// Execute stages req.Code, runs it under the timeout and output caps and
// classifies the result. Program failures and timeouts are reported in the
// Outcome; the error is reserved for unsupported languages
// (*UnsupportedLanguageError) and platform failures (*InfrastructureError).
func (e *Engine) Execute(ctx context.Context, req ExecutionRequest) (Outcome, error) {
	rt, err := e.languages.Resolve(req.Language)
	if err != nil {
		return Outcome{}, err
	}

	executionID := uuid.NewString()
	log := e.logger.With(
		zap.String("execution_id", executionID),
		zap.String("language", rt.Name),
	)

	e.recorder.ExecutionStarted(rt.Name)

	decision := e.isolation.Decide(ctx)
	launch, err := e.launcher(ctx, decision, rt)
	if err != nil {
		e.recorder.ExecutionFailed(rt.Name)
		log.Error("no usable execution backend", zap.Error(err))
		return Outcome{}, err
	}

	start := time.Now()

	stdout := NewBoundedBuffer(e.config.OutputLimitBytes)
	stderr := NewBoundedBuffer(e.config.OutputLimitBytes)
	var res processResult

	err = e.workspaces.With(req.Code, rt.Extension, func(ws *Workspace) error {
		spec := launch(ws)
		log.Debug("spawning process",
			zap.String("isolation", decision.Mode()),
			zap.Strings("args", spec.Args))

		var spawnErr error
		res, spawnErr = supervise(log, spec, req.Stdin, e.config.Timeout, stdout, stderr)
		if spawnErr != nil {
			return infraError("spawn", spawnErr)
		}
		if res.TimedOut && spec.ContainerName != "" {
			e.removeContainer(log, spec.ContainerName)
		}
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		var infra *InfrastructureError
		if !errors.As(err, &infra) {
			err = infraError("stage", err)
		}
		e.recorder.ExecutionFailed(rt.Name)
		log.Error("execution failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return Outcome{}, err
	}

	outcome := Outcome{
		ExecutionID:     executionID,
		Language:        rt.Name,
		Isolation:       decision.Mode(),
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		ExitCode:        res.ExitCode,
		Elapsed:         elapsed,
		Status:          classifyStatus(res),
		Limit:           e.config.Timeout,
	}

	if outcome.StdoutTruncated {
		e.recorder.OutputTruncated(rt.Name, "stdout")
	}
	if outcome.StderrTruncated {
		e.recorder.OutputTruncated(rt.Name, "stderr")
	}
	e.recorder.ExecutionFinished(rt.Name, outcome.Isolation, outcome.Status, elapsed)

	log.Info("execution completed",
		zap.String("isolation", outcome.Isolation),
		zap.String("status", string(outcome.Status)),
		zap.Int("exit_code", outcome.ExitCode),
		zap.Duration("elapsed", elapsed),
		zap.Int("stdout_len", len(outcome.Stdout)),
		zap.Int("stderr_len", len(outcome.Stderr)),
		zap.Bool("stdout_truncated", outcome.StdoutTruncated),
		zap.Bool("stderr_truncated", outcome.StderrTruncated))

	return outcome, nil
}

// launcher picks the command builder for this execution before any
// workspace exists, so a missing interpreter allocates nothing.
func (e *Engine) launcher(ctx context.Context, decision Decision, rt Runtime) (func(*Workspace) commandSpec, error) {
	root := e.workspaces.Root()

	if decision.ContainerRuntimeAvailable && e.runtime != nil {
		binary := e.runtime.Binary()
		return func(ws *Workspace) commandSpec {
			return buildContainerCommand(binary, rt, ws, root, e.config)
		}, nil
	}

	if e.runtime != nil && !e.config.FallbackToHost {
		return nil, infraError("isolation", errors.New("container runtime unavailable and host fallback is disabled"))
	}

	binary, err := e.hosts.Resolve(ctx, rt)
	if err != nil {
		return nil, infraError("resolve", err)
	}
	return func(ws *Workspace) commandSpec {
		return buildHostCommand(binary, ws, root)
	}, nil
}

// removeContainer force-removes a container whose client was killed. Killing
// the CLI does not stop the container itself.
func (e *Engine) removeContainer(log *zap.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), containerRemoveTimeout)
	defer cancel()

	if err := e.runtime.Remove(ctx, name); err != nil {
		log.Warn("failed to remove timed out container", zap.String("container", name), zap.Error(err))
		return
	}
	log.Debug("removed timed out container", zap.String("container", name))
}

// Languages returns the engine's language table.
func (e *Engine) Languages() *Languages {
	return e.languages
}
