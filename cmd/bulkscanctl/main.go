// Package main is the entry point for bulkscanctl, the operator CLI for
// the bulk-scan envelope ingestion pipeline: stack lifecycle commands plus
// a status lookup against the reporting HTTP surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
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
		fmt.Fprintf(os.Stderr, "bulkscanctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulkscanctl",
		Short: "Operations CLI for the bulk-scan ingestion pipeline",
		Long: `bulkscanctl wraps the day-to-day operational commands for the ingestion
pipeline's docker-compose stack (build, up, down, logs, test) and adds a
status lookup against the reporting HTTP surface for a given zip file.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use for stack commands")
	cmd.AddCommand(
		newStatusCmd(),
		newBuildCmd(),
		newUpCmd(),
		newDownCmd(),
		newLogsCmd(),
		newTestCmd(),
		newRunCmd(),
	)
	return cmd
}

func newBuildCmd() *cobra.Command {
	noCache := false
	cmd := &cobra.Command{
		Use:   "build [service...]",
		Short: "Build the stack's Docker images",
		RunE: func(cmd *cobra.Command, services []string) error {
			args := []string{"compose", "-f", composeFile, "build"}
			if noCache {
				args = append(args, "--no-cache")
			}
			return runCommand(cmd.Context(), "docker", append(args, services...)...)
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable Docker build cache")
	return cmd
}

func newUpCmd() *cobra.Command {
	detach, skipBuild := true, false
	cmd := &cobra.Command{
		Use:   "up [service...]",
		Short: "Start the docker-compose stack",
		RunE: func(cmd *cobra.Command, services []string) error {
			args := []string{"compose", "-f", composeFile, "up"}
			if !skipBuild {
				args = append(args, "--build")
			}
			if detach {
				args = append(args, "-d")
			}
			return runCommand(cmd.Context(), "docker", append(args, services...)...)
		},
	}
	cmd.Flags().BoolVarP(&detach, "detached", "d", detach, "Run docker compose in detached mode")
	cmd.Flags().BoolVar(&skipBuild, "skip-build", skipBuild, "Skip rebuilding images before starting")
	return cmd
}

func newDownCmd() *cobra.Command {
	removeVolumes := false
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Tear down the docker-compose stack",
		RunE: func(cmd *cobra.Command, _ []string) error {
			args := []string{"compose", "-f", composeFile, "down"}
			if removeVolumes {
				args = append(args, "-v")
			}
			return runCommand(cmd.Context(), "docker", args...)
		},
	}
	cmd.Flags().BoolVarP(&removeVolumes, "volumes", "v", removeVolumes, "Also remove stack volumes")
	return cmd
}

func newLogsCmd() *cobra.Command {
	follow := false
	cmd := &cobra.Command{
		Use:   "logs [service...]",
		Short: "Tail docker-compose service logs",
		RunE: func(cmd *cobra.Command, services []string) error {
			args := []string{"compose", "-f", composeFile, "logs"}
			if follow {
				args = append(args, "-f")
			}
			return runCommand(cmd.Context(), "docker", append(args, services...)...)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", follow, "Stream logs continuously")
	return cmd
}

func newTestCmd() *cobra.Command {
	race, cover := false, false
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run the module's Go tests",
		RunE: func(cmd *cobra.Command, pkgs []string) error {
			if len(pkgs) == 0 {
				pkgs = []string{"./..."}
			}
			args := []string{"test"}
			if race {
				args = append(args, "-race")
			}
			if cover {
				args = append(args, "-cover")
			}
			return runCommand(cmd.Context(), "go", append(args, pkgs...)...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", race, "Enable the Go race detector")
	cmd.Flags().BoolVar(&cover, "cover", cover, "Collect coverage data")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run individual Go binaries directly",
	}
	cmd.AddCommand(
		newServiceRunner("ingestor", "./cmd/ingestor"),
		newServiceRunner("uploadenqueue", "./cmd/uploadenqueue"),
		newServiceRunner("uploadworker", "./cmd/uploadworker"),
		newServiceRunner("sweeper", "./cmd/sweeper"),
		newServiceRunner("reportapi", "./cmd/reportapi"),
	)
	return cmd
}

func newServiceRunner(name, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("go run %s", path),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			goArgs := []string{"run", path}
			goArgs = append(goArgs, args...)
			return runCommand(ctx, "go", goArgs...)
		},
	}
}

func newStatusCmd() *cobra.Command {
	var addr string
	var name string
	var dcn string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query the reporting HTTP surface for a zip file's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), addr, name, dcn)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8090", "Reporting API base address")
	cmd.Flags().StringVar(&name, "name", "", "Zip file name to look up")
	cmd.Flags().StringVar(&dcn, "dcn", "", "Document control number to look up")
	return cmd
}

func runStatus(ctx context.Context, addr, name, dcn string) error {
	if (name == "") == (dcn == "") {
		return fmt.Errorf("exactly one of --name or --dcn is required")
	}
	url := addr + "/zip-files?"
	if name != "" {
		url += "name=" + name
	} else {
		url += "dcn=" + dcn
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request reporting api: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reporting api returned %s: %s", resp.Status, string(body))
	}
	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	encoded, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(encoded))
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
