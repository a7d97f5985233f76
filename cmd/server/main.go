package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "runbox",
	Short: "runbox - sandboxed code execution service",
	Long: `runbox runs short, untrusted Node.js and Python programs and reports their
output, elapsed time and a success, error or timeout status.

Programs run in locked-down containers when docker or podman is available
and directly on the host otherwise. The service is exposed over HTTP
(POST /execute) and as an MCP tool (execute_code).`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ./runbox.yaml or ./config/runbox.yaml)")
	rootCmd.AddCommand(serveCmd, probeCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
