// Package cli wires the engine into the loadstone command.
package cli

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var logLevel string

// RootCmd is the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:     "loadstone",
	Short:   "Benchmark-execution engine for storage services",
	Version: version,
	Long: `Loadstone runs declarative benchmark tasks against a storage service:
it provisions isolated tenants and users, drives scenario iterations
under a configurable concurrency strategy, and judges the results
against declarative SLA rules.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		log.SetLevel(level)
		log.SetOutput(os.Stderr)
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main().
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warning", "log level (debug, info, warning, error)")

	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(validateCmd)
	RootCmd.AddCommand(scenariosCmd)
}
