package container

import (
	"bytes"
	"strings"
	"sync"
)

// LineFunc receives one line of command output without its trailing newline.
type LineFunc func(line string)

// lineWriter splits the bytes written to it into lines and hands each
// complete line to fn. Flush emits a trailing partial line.
type lineWriter struct {
	mu  sync.Mutex
	fn  LineFunc
	buf bytes.Buffer
}

func newLineWriter(fn LineFunc) *lineWriter {
	return &lineWriter{fn: fn}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(w.buf.Next(idx + 1))
		w.emit(line[:len(line)-1])
	}
	return len(p), nil
}

func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	if w.fn != nil {
		w.fn(strings.TrimSuffix(line, "\r"))
	}
}
