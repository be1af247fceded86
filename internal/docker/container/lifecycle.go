package container

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/threatflux/inlineScanRunnerGo/internal/docker"
)

// dockerContainer is the Container returned by DockerRunner.
type dockerContainer struct {
	id     string
	client docker.APIClient
	logger *logrus.Entry
	runner *DockerRunner

	// lifetime is cancelled by Stop and bounds every background stream.
	lifetime context.Context
	release  context.CancelFunc

	stopOnce sync.Once
	stopErr  error
}

func newDockerContainer(r *DockerRunner, id string) *dockerContainer {
	lifetime, release := context.WithCancel(context.Background())
	return &dockerContainer{
		id:       id,
		client:   r.client,
		logger:   r.logger.WithField("container_id", shortID(id)),
		runner:   r,
		lifetime: lifetime,
		release:  release,
	}
}

func (c *dockerContainer) ID() string {
	return c.id
}

// RunAsync implements Container
func (c *dockerContainer) RunAsync(ctx context.Context, onOutput, onError LineFunc) error {
	if c.lifetime.Err() != nil {
		return &StartError{ContainerID: c.id, Err: ErrContainerStopped}
	}
	if err := c.client.ContainerStart(ctx, c.id, containertypes.StartOptions{}); err != nil {
		return &StartError{ContainerID: c.id, Err: err}
	}
	c.logger.Debug("Started container")

	if onOutput == nil && onError == nil {
		return nil
	}

	logs, err := c.client.ContainerLogs(c.lifetime, c.id, containertypes.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return &StartError{ContainerID: c.id, Err: errors.Wrap(err, "failed to follow container logs")}
	}

	go func() {
		defer logs.Close()
		stdout, stderr := newLineWriter(onOutput), newLineWriter(onError)
		_, copyErr := stdcopy.StdCopy(stdout, stderr, logs)
		stdout.Flush()
		stderr.Flush()
		if copyErr != nil && copyErr != io.EOF && c.lifetime.Err() == nil {
			c.logger.WithError(copyErr).Debug("Container log stream ended")
		}
	}()
	return nil
}

// Stop implements Container. A container that is already gone counts as
// removed.
func (c *dockerContainer) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.release()
		c.stopErr = c.stopAndRemove(ctx)
	})
	return c.stopErr
}

func (c *dockerContainer) stopAndRemove(ctx context.Context) error {
	c.gracefulStop(ctx)

	err := c.client.ContainerRemove(ctx, c.id, containertypes.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil {
		if errdefs.IsNotFound(err) || (errdefs.IsConflict(err) && isRemovalInProgress(err)) {
			c.logger.Debug("Container already removed")
			return nil
		}
		return errors.Wrapf(err, "failed to remove container %s", shortID(c.id))
	}

	c.logger.Debug("Removed container")
	return nil
}

// gracefulStop asks the main process to exit before the forced removal. When
// ctx has a deadline the stop gets at most half of the remaining time, so
// removal always keeps the other half. A grace period under one second skips
// the stop since forced removal kills the process anyway.
func (c *dockerContainer) gracefulStop(ctx context.Context) {
	grace := c.runner.stopTimeout
	stopCtx, cancel := ctx, context.CancelFunc(func() {})
	if deadline, ok := ctx.Deadline(); ok {
		half := time.Until(deadline) / 2
		if grace > half {
			grace = half
		}
		stopCtx, cancel = context.WithTimeout(ctx, half)
	}
	defer cancel()

	if grace < time.Second {
		c.logger.Debug("Skipping graceful stop")
		return
	}

	timeout := int(grace.Seconds())
	err := c.client.ContainerStop(stopCtx, c.id, containertypes.StopOptions{Timeout: &timeout})
	if err != nil && !errdefs.IsNotFound(err) && !errdefs.IsNotModified(err) {
		c.logger.WithError(err).Warn("Failed to stop container, forcing removal")
	}
}

func isRemovalInProgress(err error) bool {
	return strings.Contains(err.Error(), "already in progress")
}
