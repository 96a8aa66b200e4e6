package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loadstone/loadstone/internal/invoker"
	"github.com/loadstone/loadstone/internal/scenarios"
	"github.com/loadstone/loadstone/internal/storage"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List the built-in scenario names",
	Run: func(cmd *cobra.Command, args []string) {
		registry := invoker.NewRegistry()
		if err := scenarios.Register(registry, storage.NewFake()); err != nil {
			fmt.Fprintf(os.Stderr, "Error registering scenarios: %v\n", err)
			os.Exit(1)
		}
		for _, name := range registry.Names() {
			fmt.Println(name)
		}
	},
}
