// Package sandbox runs short, untrusted programs and classifies the result.
//
// A single Engine serves every language. Each execution stages the submitted
// source as code-<id>.<ext> under a shared scratch directory, runs it in a
// locked-down container when a container runtime is available (or directly
// on the host otherwise), enforces a wall-clock timeout by killing the whole
// process group, caps captured stdout and stderr, and always deletes the
// staged file. The isolation decision is probed once per process and cached.
//
// Usage:
//
//	engine := sandbox.NewEngine(logger, sandbox.Config{Timeout: 10 * time.Second})
//	outcome, err := engine.Execute(ctx, sandbox.ExecutionRequest{
//	    Language: "python",
//	    Code:     "print('Hello, World!')",
//	})
//	resp := sandbox.Classify(outcome)
package sandbox
