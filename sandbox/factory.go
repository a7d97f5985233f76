package sandbox

import (
	"sort"

	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
)

// NewConfig converts the application configuration into engine limits
func NewConfig(cfg *config.Config) Config {
	return Config{
		ScratchDir:       cfg.Sandbox.ScratchDir,
		Timeout:          cfg.Timeout(),
		OutputLimitBytes: cfg.Sandbox.OutputLimitBytes,
		MemoryMB:         cfg.Sandbox.MemoryMB,
		CPUs:             cfg.Sandbox.CPUs,
		PIDsLimit:        cfg.Sandbox.PIDsLimit,
		NetworkEnabled:   cfg.Sandbox.NetworkEnabled,
		ProbeTimeout:     cfg.ProbeTimeout(),
		FallbackToHost:   cfg.Sandbox.FallbackToHost,
	}.withDefaults()
}

// NewLanguagesFromConfig builds the language table from the languages section
func NewLanguagesFromConfig(cfg *config.Config) *Languages {
	names := make([]string, 0, len(cfg.Languages))
	for name := range cfg.Languages {
		names = append(names, name)
	}
	sort.Strings(names)

	runtimes := make([]Runtime, 0, len(names))
	aliases := make(map[string]string)
	for _, name := range names {
		lang := cfg.Languages[name]
		runtimes = append(runtimes, Runtime{
			Name:         name,
			Extension:    lang.Extension,
			Image:        lang.Image,
			Interpreter:  lang.Interpreter,
			HostBinaries: lang.HostBinaries,
		})
		for _, alias := range lang.Aliases {
			aliases[alias] = name
		}
	}

	return NewLanguages(runtimes, aliases)
}

// NewContainerRuntimeFromConfig creates the runtime for sandbox.backend
func NewContainerRuntimeFromConfig(logger *zap.Logger, cfg *config.Config) (ContainerRuntime, error) {
	return NewContainerRuntime(logger, cfg.Sandbox.Backend, RealCommandRunner{})
}

// NewIsolationSelectorFromConfig creates the process-wide isolation selector
func NewIsolationSelectorFromConfig(logger *zap.Logger, cfg *config.Config, runtime ContainerRuntime) *IsolationSelector {
	return NewIsolationSelector(logger, runtime, cfg.ProbeTimeout())
}

// NewWorkspaceManagerFromConfig creates the workspace manager for sandbox.scratch_dir
func NewWorkspaceManagerFromConfig(logger *zap.Logger, cfg *config.Config) *WorkspaceManager {
	return NewWorkspaceManager(logger, cfg.Sandbox.ScratchDir)
}

// NewExecutor creates the engine from the configuration and its collaborators
func NewExecutor(
	logger *zap.Logger,
	cfg *config.Config,
	runtime ContainerRuntime,
	isolation *IsolationSelector,
	workspaces *WorkspaceManager,
	recorder Recorder,
) *Engine {
	engineConfig := NewConfig(cfg)
	return NewEngine(logger, engineConfig,
		WithLanguages(NewLanguagesFromConfig(cfg)),
		WithContainerRuntime(runtime),
		WithIsolation(isolation),
		WithWorkspaceManager(workspaces),
		WithHostResolver(NewHostResolver(logger, engineConfig.ProbeTimeout)),
		WithRecorder(recorder),
	)
}
