package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/logger"
	"github.com/isdmx/runbox/sandbox"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Report the isolation mode and host interpreters this machine would use",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log, err := logger.NewFromConfig(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		runtime, err := sandbox.NewContainerRuntimeFromConfig(log, cfg)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		decision := sandbox.NewIsolationSelectorFromConfig(log, cfg, runtime).Decide(ctx)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "backend:   %s\n", cfg.Sandbox.Backend)
		fmt.Fprintf(out, "isolation: %s\n", decision.Mode())

		languages := sandbox.NewLanguagesFromConfig(cfg)
		hosts := sandbox.NewHostResolver(log, cfg.ProbeTimeout())
		for _, name := range languages.Names() {
			rt, err := languages.Resolve(name)
			if err != nil {
				return err
			}
			if decision.ContainerRuntimeAvailable {
				fmt.Fprintf(out, "%-10s image %s\n", name+":", rt.Image)
				continue
			}
			binary, err := hosts.Resolve(ctx, rt)
			if err != nil {
				fmt.Fprintf(out, "%-10s unavailable (%v)\n", name+":", err)
				continue
			}
			fmt.Fprintf(out, "%-10s host binary %s\n", name+":", binary)
		}
		return nil
	},
}
