// Package config provides application configuration management.
//
// The config package loads the runbox configuration from an optional YAML
// file, RUNBOX_-prefixed environment variables and built-in defaults. It
// covers the HTTP gateway, the execution sandbox (scratch directory, timeout,
// output cap, container limits), logging, rate limiting, the scratch janitor
// and the per-language runtime table.
//
// Usage:
//
//	cfg, err := config.Load("runbox.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Execution timeout: %s\n", cfg.Timeout())
package config
