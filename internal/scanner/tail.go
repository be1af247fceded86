package scanner

import (
	"context"
	"sync"
	"time"
)

const tailBufferSize = 256

// tailForwarder moves lines from the background tail exec to the logger on
// its own goroutine.
type tailForwarder struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger Logger

	lines    chan string
	done     chan struct{}
	finished chan struct{}
	once     sync.Once
}

func newTailForwarder(parent context.Context, logger Logger) *tailForwarder {
	ctx, cancel := context.WithCancel(parent)
	t := &tailForwarder{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		lines:    make(chan string, tailBufferSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go t.run()
	return t
}

// push is the tail's output callback. Lines arriving after close are dropped.
func (t *tailForwarder) push(line string) {
	select {
	case t.lines <- line:
	case <-t.done:
	}
}

func (t *tailForwarder) run() {
	defer close(t.finished)
	for {
		select {
		case line := <-t.lines:
			t.logger.LogInfo(line)
		case <-t.done:
			for {
				select {
				case line := <-t.lines:
					t.logger.LogInfo(line)
				default:
					return
				}
			}
		}
	}
}

// close cancels the tail exec and tells the forwarder to drain what is
// already buffered.
func (t *tailForwarder) close() {
	t.once.Do(func() {
		t.cancel()
		close(t.done)
	})
}

// wait reports whether the forwarder finished within timeout.
func (t *tailForwarder) wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.finished:
		return true
	case <-timer.C:
		return false
	}
}
