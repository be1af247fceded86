package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/sirupsen/logrus"
)

// execPollInterval is how often a finished stream's exec is inspected for its
// exit code.
var execPollInterval = 50 * time.Millisecond

// execSession is one attached exec instance.
type execSession struct {
	id     string
	args   []string
	resp   types.HijackedResponse
	c      *dockerContainer
	logger *logrus.Entry
}

// Exec implements Container
func (c *dockerContainer) Exec(ctx context.Context, args []string, stdin io.Reader, onOutput, onError LineFunc) error {
	session, err := c.startExec(ctx, args, stdin)
	if err != nil {
		return err
	}
	return session.wait(ctx, onOutput, onError)
}

// ExecAsync implements Container
func (c *dockerContainer) ExecAsync(ctx context.Context, args []string, stdin io.Reader, onOutput, onError LineFunc) error {
	session, err := c.startExec(ctx, args, stdin)
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.lifetime, cancel)

	go func() {
		defer cancel()
		defer stop()
		if err := session.wait(streamCtx, onOutput, onError); err != nil {
			session.logger.WithError(err).Debug("Async exec ended")
			return
		}
		session.logger.Debug("Async exec completed")
	}()
	return nil
}

// startExec creates an exec instance and attaches to it. Attaching starts the
// process.
func (c *dockerContainer) startExec(ctx context.Context, args []string, stdin io.Reader) (*execSession, error) {
	if len(args) == 0 {
		return nil, &CommandError{Args: args, ExitCode: -1, Err: ErrInvalidCommand}
	}
	if c.lifetime.Err() != nil {
		return nil, &CommandError{Args: args, ExitCode: -1, Err: ErrContainerStopped}
	}

	created, err := c.client.ContainerExecCreate(ctx, c.id, containertypes.ExecOptions{
		Cmd:          args,
		AttachStdin:  stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, &CommandError{Args: args, ExitCode: -1, Err: fmt.Errorf("exec creation failed: %w", err)}
	}

	resp, err := c.client.ContainerExecAttach(ctx, created.ID, containertypes.ExecStartOptions{})
	if err != nil {
		return nil, &CommandError{Args: args, ExitCode: -1, Err: fmt.Errorf("failed to attach to exec instance: %w", err)}
	}

	session := &execSession{
		id:   created.ID,
		args: args,
		resp: resp,
		c:    c,
		logger: c.logger.WithFields(logrus.Fields{
			"exec_id": shortID(created.ID),
			"command": strings.Join(args, " "),
		}),
	}

	if stdin != nil {
		go func() {
			if _, err := io.Copy(resp.Conn, stdin); err != nil {
				session.logger.WithError(err).Warn("Error copying stdin to exec")
			}
			if err := resp.CloseWrite(); err != nil {
				session.logger.WithError(err).Debug("Failed to close exec stdin")
			}
		}()
	}

	session.logger.Debug("Started exec instance")
	return session, nil
}

// wait streams the session's output to the callbacks and returns once the
// process has exited. If ctx ends first the attached connection is closed,
// which aborts the blocked read immediately.
func (s *execSession) wait(ctx context.Context, onOutput, onError LineFunc) error {
	stdout, stderr := newLineWriter(onOutput), newLineWriter(onError)

	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, s.resp.Reader)
		copied <- err
	}()

	select {
	case err := <-copied:
		s.resp.Close()
		stdout.Flush()
		stderr.Flush()
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			return &CommandError{Args: s.args, ExitCode: -1, Err: fmt.Errorf("error reading exec output: %w", err)}
		}
	case <-ctx.Done():
		s.resp.Close()
		<-copied
		return &CommandError{Args: s.args, ExitCode: -1, Err: ctx.Err()}
	}

	exitCode, err := s.waitForExit(ctx)
	if err != nil {
		return &CommandError{Args: s.args, ExitCode: -1, Err: err}
	}
	if exitCode != 0 {
		return &CommandError{Args: s.args, ExitCode: exitCode}
	}
	return nil
}

// waitForExit polls the exec instance until the engine reports it finished.
func (s *execSession) waitForExit(ctx context.Context) (int, error) {
	ticker := time.NewTicker(execPollInterval)
	defer ticker.Stop()

	for {
		inspect, err := s.c.client.ContainerExecInspect(ctx, s.id)
		if err != nil {
			if errdefs.IsNotFound(err) {
				return -1, fmt.Errorf("exec instance %s not found", shortID(s.id))
			}
			return -1, fmt.Errorf("failed to inspect exec instance while waiting: %w", err)
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}

		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-ticker.C:
		}
	}
}
