// Command receiptdrop wraps the development workflow and a few operational
// tasks: schema migration, queue inspection and token issuing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var composeFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "receiptdrop: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receiptdrop",
		Short: "ReceiptDrop development and operations CLI",
		Long: `ReceiptDrop CLI drives the Docker stack, applies the database schema, inspects the
extraction queue and issues bearer tokens for local testing.

Services: postgres (extraction records), redis (asynq queue, image cache, update
relay), minio (receipt images), ollama (vision model), api and worker.

A fresh checkout comes up in this order:

  receiptdrop up postgres redis minio ollama
  receiptdrop migrate
  receiptdrop up api worker       (or: receiptdrop run api / receiptdrop run worker)
  receiptdrop token alice`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use for stack commands")
	cmd.AddCommand(
		newBuildCmd(),
		newUpCmd(),
		newDownCmd(),
		newLogsCmd(),
		newTestCmd(),
		newRunCmd(),
		newMigrateCmd(),
		newQueueCmd(),
		newTokenCmd(),
	)
	return cmd
}

func newBuildCmd() *cobra.Command {
	var noCache bool
	cmd := &cobra.Command{
		Use:   "build [service...]",
		Short: "Build Docker images via docker compose",
		RunE: func(cmd *cobra.Command, args []string) error {
			return compose(cmd.Context(), "build", flagArgs(noCache, "--no-cache"), args)
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable Docker build cache")
	return cmd
}

func newUpCmd() *cobra.Command {
	var detach, skipBuild bool
	cmd := &cobra.Command{
		Use:   "up [service...]",
		Short: "Start stack services (all of postgres, redis, minio, ollama, api, worker by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := append(flagArgs(!skipBuild, "--build"), flagArgs(detach, "-d")...)
			return compose(cmd.Context(), "up", opts, args)
		},
	}
	cmd.Flags().BoolVarP(&detach, "detached", "d", true, "Run docker compose in detached mode")
	cmd.Flags().BoolVar(&skipBuild, "skip-build", false, "Skip rebuilding images before starting")
	return cmd
}

func newDownCmd() *cobra.Command {
	var removeVolumes bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the stack",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return compose(cmd.Context(), "down", flagArgs(removeVolumes, "-v"), nil)
		},
	}
	cmd.Flags().BoolVarP(&removeVolumes, "volumes", "v", false, "Remove stack volumes")
	return cmd
}

func newLogsCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs [service...]",
		Short: "Show logs from stack services (e.g. worker to follow extraction attempts)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return compose(cmd.Context(), "logs", flagArgs(follow, "-f"), args)
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "Stream logs continuously")
	return cmd
}

func newTestCmd() *cobra.Command {
	var race, cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgs := args
			if len(pkgs) == 0 {
				pkgs = []string{"./..."}
			}
			goArgs := []string{"test"}
			goArgs = append(goArgs, flagArgs(race, "-race")...)
			goArgs = append(goArgs, flagArgs(cover, "-cover")...)
			goArgs = append(goArgs, pkgs...)
			return runCommand(cmd.Context(), "go", goArgs...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable Go race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the api or worker binary with go run against the running stack",
		Long: `Run the api or worker outside Docker. Both read the same environment as the
containers; run "receiptdrop migrate" first so the extractions table exists.`,
	}
	cmd.AddCommand(
		newServiceRunner("api", "./cmd/api"),
		newServiceRunner("worker", "./cmd/worker"),
	)
	return cmd
}

func newServiceRunner(name, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("go run %s", path),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), "go", append([]string{"run", path}, args...)...)
		},
	}
}

// compose runs `docker compose -f <file> <sub> [opts...] [services...]`.
func compose(ctx context.Context, sub string, opts, services []string) error {
	args := []string{"compose", "-f", composeFile, sub}
	args = append(args, opts...)
	args = append(args, services...)
	return runCommand(ctx, "docker", args...)
}

func flagArgs(enabled bool, flag string) []string {
	if !enabled {
		return nil
	}
	return []string{flag}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
