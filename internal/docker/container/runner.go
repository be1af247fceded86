// Package container runs short-lived helper containers and executes commands
// inside them through the Docker Engine API.
package container

import (
	"context"
	"io"
	"time"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/threatflux/inlineScanRunnerGo/internal/docker"
)

// Runner creates containers.
type Runner interface {
	// CreateContainer makes sure image is available locally and creates (but
	// does not start) a container from it.
	CreateContainer(ctx context.Context, image string, entrypoint, cmd, env, binds []string) (Container, error)
}

// Container is a handle to a single created container.
type Container interface {
	// ID returns the engine's container ID
	ID() string

	// RunAsync starts the container's main process without waiting for it.
	// Non-nil callbacks receive the container's log output.
	RunAsync(ctx context.Context, onOutput, onError LineFunc) error

	// Exec runs a command inside the container and blocks until it exits or
	// ctx is done.
	Exec(ctx context.Context, args []string, stdin io.Reader, onOutput, onError LineFunc) error

	// ExecAsync starts a command inside the container and returns once it is
	// running. Output is streamed until the command ends, ctx is done or the
	// container is stopped.
	ExecAsync(ctx context.Context, args []string, stdin io.Reader, onOutput, onError LineFunc) error

	// Stop stops and removes the container. It is safe to call repeatedly;
	// later calls return the first call's result.
	Stop(ctx context.Context) error
}

// RunnerOption configures a DockerRunner
type RunnerOption func(*DockerRunner)

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) RunnerOption {
	return func(r *DockerRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithStopTimeout sets the grace period given to the main process on Stop
func WithStopTimeout(timeout time.Duration) RunnerOption {
	return func(r *DockerRunner) {
		r.stopTimeout = timeout
	}
}

// WithPullTimeout bounds image pulls when the caller's context has no deadline
func WithPullTimeout(timeout time.Duration) RunnerOption {
	return func(r *DockerRunner) {
		r.pullTimeout = timeout
	}
}

// DockerRunner is a Runner backed by the Docker Engine API.
type DockerRunner struct {
	client      docker.APIClient
	logger      *logrus.Logger
	stopTimeout time.Duration
	pullTimeout time.Duration
	namePrefix  string
}

// NewDockerRunner creates a runner using the given API client
func NewDockerRunner(client docker.APIClient, opts ...RunnerOption) *DockerRunner {
	r := &DockerRunner{
		client:      client,
		logger:      logrus.New(),
		stopTimeout: 10 * time.Second,
		pullTimeout: 10 * time.Minute,
		namePrefix:  "inline-scan",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateContainer implements Runner. The container keeps stdin open so an
// idling entrypoint such as cat stays alive for exec calls.
func (r *DockerRunner) CreateContainer(ctx context.Context, image string, entrypoint, cmd, env, binds []string) (Container, error) {
	if err := r.ensureImage(ctx, image); err != nil {
		return nil, &CreationError{Image: image, Err: err}
	}

	name := r.namePrefix + "-" + uuid.NewString()
	config := &containertypes.Config{
		Image:      image,
		Entrypoint: entrypoint,
		Cmd:        cmd,
		Env:        env,
		OpenStdin:  true,
		Labels: map[string]string{
			"added-by": r.namePrefix,
		},
	}
	hostConfig := &containertypes.HostConfig{
		Binds: binds,
	}

	resp, err := r.client.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		return nil, &CreationError{Image: image, Err: err}
	}
	for _, warning := range resp.Warnings {
		r.logger.WithField("container_id", shortID(resp.ID)).Warn(warning)
	}

	r.logger.WithFields(logrus.Fields{
		"container_id": shortID(resp.ID),
		"name":         name,
		"image":        image,
	}).Debug("Created container")

	return newDockerContainer(r, resp.ID), nil
}
