package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/threatflux/inlineScanRunnerGo/internal/config"
	"github.com/threatflux/inlineScanRunnerGo/internal/docker"
	"github.com/threatflux/inlineScanRunnerGo/internal/logging"
)

// Version information (will be set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// globalOptions are shared by every subcommand
type globalOptions struct {
	configFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:          "inline-scan",
		Short:        "Scan container images inside an ephemeral inline-scan container",
		Version:      fmt.Sprintf("%s (%s) built on %s", Version, Commit, BuildDate),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default searches ., ./config and /etc/inline-scan)")

	root.AddCommand(
		newScanCommand(opts),
		newSubmitCommand(opts),
		newReportCommand(opts),
		newEncryptCommand(),
	)
	return root
}

// loadRuntime loads the configuration and builds the process logger
func loadRuntime(opts *globalOptions, logOutput io.Writer) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(opts.configFile)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewWithOutput(logOutput, cfg.Logging.Level, cfg.Logging.Format)
	logger.WithFields(logrus.Fields{
		"version":    Version,
		"commit":     Commit,
		"build_date": BuildDate,
	}).Debug("Starting inline-scan")
	logger.Debug(cfg.String())

	return cfg, logger, nil
}

// initDockerManager creates the engine client manager from configuration
func initDockerManager(cfg *config.Config, logger *logrus.Logger) (*docker.ClientManager, error) {
	logger.WithFields(logrus.Fields{
		"host": cfg.Docker.Host,
	}).Debug("Initializing Docker client manager")

	opts := []docker.ClientOption{
		docker.WithLogger(logger),
		docker.WithAPIVersion(cfg.Docker.APIVersion),
		docker.WithHeader("User-Agent", "inline-scan/"+Version),
	}

	if cfg.Docker.Host != "" {
		opts = append(opts, docker.WithHost(cfg.Docker.Host))
	}
	if cfg.Docker.PingTimeout > 0 {
		opts = append(opts, docker.WithPingTimeout(cfg.Docker.PingTimeout))
	}
	if cfg.Docker.TLSVerify {
		opts = append(opts, docker.WithTLSConfig(
			cfg.Docker.TLSCertPath,
			cfg.Docker.TLSKeyPath,
			cfg.Docker.TLSCAPath,
		))
	}

	manager, err := docker.NewManager(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client manager: %w", err)
	}
	return manager, nil
}
