package container

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	// ErrInvalidImage indicates an empty or unparsable image reference
	ErrInvalidImage = errors.New("invalid image reference")

	// ErrInvalidCommand indicates an empty exec command
	ErrInvalidCommand = errors.New("invalid command")

	// ErrImagePull indicates the image could not be pulled
	ErrImagePull = errors.New("failed to pull image")

	// ErrContainerStopped indicates a command was issued after Stop
	ErrContainerStopped = errors.New("container has been stopped")
)

// CreationError is returned when the engine cannot provide the image or
// rejects the container spec.
type CreationError struct {
	Image string
	Err   error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("failed to create container from image %s: %v", e.Image, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// StartError is returned when the container's main process cannot be started.
type StartError struct {
	ContainerID string
	Err         error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start container %s: %v", shortID(e.ContainerID), e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// CommandError is returned when a command inside the container exits nonzero
// or the engine call carrying it fails. ExitCode is -1 when no exit status
// was observed.
type CommandError struct {
	Args     []string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	cmd := strings.Join(e.Args, " ")
	if e.Err != nil {
		return fmt.Sprintf("command %q failed: %v", cmd, e.Err)
	}
	return fmt.Sprintf("command %q exited with status %d", cmd, e.ExitCode)
}

func (e *CommandError) Unwrap() error { return e.Err }

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
