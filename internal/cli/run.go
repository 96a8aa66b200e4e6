package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loadstone/loadstone/internal/config"
	"github.com/loadstone/loadstone/internal/contexts"
	"github.com/loadstone/loadstone/internal/invoker"
	"github.com/loadstone/loadstone/internal/provision"
	"github.com/loadstone/loadstone/internal/report"
	"github.com/loadstone/loadstone/internal/scenarios"
	"github.com/loadstone/loadstone/internal/storage"
	"github.com/loadstone/loadstone/internal/task"
)

var runCmd = &cobra.Command{
	Use:   "run <task-file>",
	Short: "Run a benchmark task file",
	Long: `Run executes every scenario in the task file sequentially: context
setup, iterations under the configured runner, SLA evaluation, context
teardown. The exit code is 0 only when every scenario passes its SLA.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		endpoint, _ := cmd.Flags().GetString("endpoint")
		token, _ := cmd.Flags().GetString("token")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		fakeLatency, _ := cmd.Flags().GetDuration("fake-latency")
		jsonPath, _ := cmd.Flags().GetString("json")
		quiet, _ := cmd.Flags().GetBool("quiet")
		noColor, _ := cmd.Flags().GetBool("no-color")

		if !dryRun && endpoint == "" {
			fmt.Fprintln(os.Stderr, "Error: --endpoint is required unless --dry-run is set")
			os.Exit(1)
		}

		loaded, err := config.LoadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading task file: %v\n", err)
			os.Exit(1)
		}

		var api scenarios.API
		var prov provision.Provisioner
		if dryRun {
			fake := storage.NewFake()
			if fakeLatency > 0 {
				fake.SetLatency(fakeLatency)
			}
			api, prov = fake, fake
		} else {
			client := storage.NewClient(endpoint,
				storage.WithToken(token),
				storage.WithTimeout(timeout),
			)
			api, prov = client, client
		}

		registry := invoker.NewRegistry()
		if err := scenarios.Register(registry, api); err != nil {
			fmt.Fprintf(os.Stderr, "Error registering scenarios: %v\n", err)
			os.Exit(1)
		}

		orch := task.New(contexts.NewManager(prov), registry)
		if err := orch.Validate(loaded.Scenarios); err != nil {
			fmt.Fprintf(os.Stderr, "Task validation failed:\n%v\n", err)
			os.Exit(1)
		}

		// Ctrl-C stops after the current scenario's teardown rather than
		// killing the process with tenants still provisioned.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		console := report.NewConsole(report.Config{
			Quiet:   quiet,
			NoColor: noColor,
		})
		console.PrintHeader(loaded.Title, len(loaded.Scenarios))

		results := orch.Run(ctx, loaded.Scenarios)
		for i := range results {
			console.PrintResult(&results[i])
		}
		passed := console.PrintFooter(results)

		if jsonPath != "" {
			f, err := os.Create(jsonPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error writing JSON report: %v\n", err)
				os.Exit(1)
			}
			werr := report.WriteJSON(f, loaded.Title, results)
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				fmt.Fprintf(os.Stderr, "Error writing JSON report: %v\n", werr)
				os.Exit(1)
			}
		}

		if !passed {
			os.Exit(2)
		}
	},
}

func init() {
	runCmd.Flags().String("endpoint", "", "storage service base URL")
	runCmd.Flags().String("token", "", "bearer token for the storage service")
	runCmd.Flags().Duration("timeout", 30*time.Second, "per-request timeout")
	runCmd.Flags().Bool("dry-run", false, "run against an in-memory fake service")
	runCmd.Flags().Duration("fake-latency", 0, "per-operation latency of the fake service (with --dry-run)")
	runCmd.Flags().String("json", "", "write a JSON report to this file")
	runCmd.Flags().Bool("quiet", false, "one line per scenario")
	runCmd.Flags().Bool("no-color", false, "disable colored output")
}
