package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/threatflux/inlineScanRunnerGo/internal/config"
	"github.com/threatflux/inlineScanRunnerGo/internal/docker/container"
	"github.com/threatflux/inlineScanRunnerGo/internal/logging"
	"github.com/threatflux/inlineScanRunnerGo/internal/scanner"
)

func newScanCommand(opts *globalOptions) *cobra.Command {
	var dockerfile string

	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Run the inline scan against a local image and print the JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dockerfile == "" {
				dockerfile = config.DefaultEnvProvider().Get("DOCKERFILE", "")
			}
			dockerfilePath, err := resolveDockerfile(dockerfile)
			if err != nil {
				return err
			}

			cfg, logger, err := loadRuntime(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			manager, err := initDockerManager(cfg, logger)
			if err != nil {
				return err
			}
			defer manager.Close()

			ctx := cmd.Context()
			client, err := manager.Client(ctx)
			if err != nil {
				return err
			}

			runner := container.NewDockerRunner(client,
				container.WithLogger(logger),
				container.WithStopTimeout(cfg.Scanner.StopTimeout),
				container.WithPullTimeout(cfg.Scanner.PullTimeout),
			)
			executor := scanner.NewExecutor(runner,
				scanner.WithScanImage(cfg.Scanner.Image),
				scanner.WithTeardownTimeout(cfg.Scanner.TeardownTimeout),
				scanner.WithLogger(logging.NewScanLogger(logger.WithField("image", args[0]))),
			)

			result, err := executor.Execute(ctx, scanner.ScanRequest{
				ImageTag:       args[0],
				DockerfilePath: dockerfilePath,
				Config:         cfg.BuildSettings(),
				Environment:    config.DefaultEnvProvider().Environ(),
			})
			if err != nil {
				if errors.Is(err, scanner.ErrCancelled) {
					logger.WithError(err).Warn("Scan aborted")
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dockerfile, "dockerfile", "f", "", "Dockerfile the image was built from (default $ISCAN_DOCKERFILE)")
	return cmd
}

// resolveDockerfile returns the absolute path of a Dockerfile to bind into the
// scan container, or "" when none is given.
func resolveDockerfile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid Dockerfile path %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot read Dockerfile: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("dockerfile %s is a directory", abs)
	}
	return abs, nil
}
