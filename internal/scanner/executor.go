package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/threatflux/inlineScanRunnerGo/internal/docker/container"
)

// DefaultTeardownTimeout bounds container removal and tail draining once a
// scan has ended.
const DefaultTeardownTimeout = 5 * time.Second

// Option configures an Executor
type Option func(*Executor)

// WithScanImage overrides the helper image
func WithScanImage(image string) Option {
	return func(e *Executor) {
		if image != "" {
			e.scanImage = image
		}
	}
}

// WithTeardownTimeout sets how long teardown may take
func WithTeardownTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		if timeout > 0 {
			e.teardownTimeout = timeout
		}
	}
}

// WithLogger sets the logger receiving tail output and progress
func WithLogger(logger Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Executor runs inline scans in a helper container, one container per call.
type Executor struct {
	runner          container.Runner
	logger          Logger
	scanImage       string
	teardownTimeout time.Duration
}

// NewExecutor creates an executor on top of runner
func NewExecutor(runner container.Runner, opts ...Option) *Executor {
	e := &Executor{
		runner:          runner,
		logger:          nopLogger{},
		scanImage:       DefaultScanImage,
		teardownTimeout: DefaultTeardownTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute scans req.ImageTag and returns the JSON line the scan script
// printed. The container is removed before Execute returns on every path.
//
// When ctx ends first, Execute returns without waiting for the in-flight
// engine call and the error matches both ErrCancelled and ctx.Err().
func (e *Executor) Execute(ctx context.Context, req ScanRequest) (string, error) {
	if req.ImageTag == "" || req.Config == nil {
		return "", fmt.Errorf("%w: image tag and config are required", ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return "", cancelled(StageCreate, err)
	}

	args := BuildArguments(req.Config, req.ImageTag, req.DockerfilePath)
	env := BuildEnvironment(req.Config, req.Environment)
	mounts := BuildMounts(req.DockerfilePath)

	e.logger.LogDebug(fmt.Sprintf("Creating scan container from %s with mounts %v", e.scanImage, mounts))
	c, err := e.runner.CreateContainer(ctx, e.scanImage, []string{idleEntrypoint}, nil, env, mounts)
	if err != nil {
		return "", e.failure(ctx, StageCreate, err)
	}

	tail := newTailForwarder(ctx, e.logger)
	defer e.teardown(c, tail)

	if err := c.RunAsync(ctx, nil, nil); err != nil {
		return "", e.failure(ctx, StageStart, err)
	}

	for _, cmd := range [][]string{
		{"mkdir", "-p", LogDirectory},
		{"touch", LogFile},
	} {
		if err := e.run(ctx, c, cmd, e.logger.LogDebug); err != nil {
			return "", e.failure(ctx, StagePrepare, err)
		}
	}

	if err := c.ExecAsync(tail.ctx, []string{"tail", "-f", LogFile}, nil, tail.push, e.logger.LogDebug); err != nil {
		return "", e.failure(ctx, StageTail, err)
	}

	scanCmd := append([]string{ScanScript}, args...)
	e.logger.LogDebug("Running " + strings.Join(scanCmd, " "))

	var output []string
	if err := e.run(ctx, c, scanCmd, func(line string) { output = append(output, line) }); err != nil {
		return "", e.failure(ctx, StageScan, err)
	}

	result := strings.Join(output, "\n")
	e.logger.LogDebug("Inline scan output: " + result)
	return result, nil
}

// run executes cmd in c and waits for it on a separate goroutine, so a
// cancelled ctx returns immediately even while the engine call is blocked.
// onOutput is only read back after the command finished.
func (e *Executor) run(ctx context.Context, c container.Container, cmd []string, onOutput container.LineFunc) error {
	done := make(chan error, 1)
	go func() {
		done <- c.Exec(ctx, cmd, nil, onOutput, e.logger.LogError)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// failure classifies err. Anything that happens after ctx ended is reported
// as a cancellation.
func (e *Executor) failure(ctx context.Context, stage Stage, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cancelled(stage, ctxErr)
	}
	return &ExecutionError{Stage: stage, Err: err}
}

// teardown stops the tail and removes the container on a fresh context
// bounded by the teardown timeout. Failures are only logged.
func (e *Executor) teardown(c container.Container, tail *tailForwarder) {
	tail.close()

	ctx, cancel := context.WithTimeout(context.Background(), e.teardownTimeout)
	defer cancel()

	if err := c.Stop(ctx); err != nil {
		e.logger.LogWarn(fmt.Sprintf("Failed to remove scan container %s: %v", c.ID(), err))
	} else {
		e.logger.LogDebug(fmt.Sprintf("Removed scan container %s", c.ID()))
	}

	if !tail.wait(e.teardownTimeout) {
		e.logger.LogWarn("Timed out waiting for scan log forwarding to finish")
	}
}
