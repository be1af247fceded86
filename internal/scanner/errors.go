package scanner

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when the caller's context ends before the scan
	// finished. The context's own error is wrapped alongside it.
	ErrCancelled = errors.New("scan cancelled")

	// ErrInvalidRequest indicates a ScanRequest missing its image or config
	ErrInvalidRequest = errors.New("invalid scan request")
)

// Stage names the step of a scan that failed.
type Stage string

const (
	StageCreate  Stage = "create container"
	StageStart   Stage = "start container"
	StagePrepare Stage = "prepare log file"
	StageTail    Stage = "tail scan log"
	StageScan    Stage = "run scan"
)

// ExecutionError wraps a container runtime failure with the stage it
// happened in. The runtime's typed errors stay reachable through errors.As.
type ExecutionError struct {
	Stage Stage
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("scan failed to %s: %v", e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func cancelled(stage Stage, cause error) error {
	return fmt.Errorf("%w while trying to %s: %w", ErrCancelled, stage, cause)
}
