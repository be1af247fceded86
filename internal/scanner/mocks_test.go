package scanner

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/threatflux/inlineScanRunnerGo/internal/docker/container"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) CreateContainer(ctx context.Context, image string, entrypoint, cmd, env, binds []string) (container.Container, error) {
	args := m.Called(ctx, image, entrypoint, cmd, env, binds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(container.Container), args.Error(1)
}

type MockContainer struct {
	mock.Mock
}

func (m *MockContainer) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContainer) RunAsync(ctx context.Context, onOutput, onError container.LineFunc) error {
	args := m.Called(ctx, onOutput, onError)
	return args.Error(0)
}

func (m *MockContainer) Exec(ctx context.Context, cmd []string, stdin io.Reader, onOutput, onError container.LineFunc) error {
	args := m.Called(ctx, cmd, stdin, onOutput, onError)
	return args.Error(0)
}

func (m *MockContainer) ExecAsync(ctx context.Context, cmd []string, stdin io.Reader, onOutput, onError container.LineFunc) error {
	args := m.Called(ctx, cmd, stdin, onOutput, onError)
	return args.Error(0)
}

func (m *MockContainer) Stop(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// command matches an exec whose first argument is name.
func command(name string) interface{} {
	return mock.MatchedBy(func(cmd []string) bool {
		return len(cmd) > 0 && cmd[0] == name
	})
}

// emit returns a Run function that writes lines to the exec's stdout callback.
func emit(lines ...string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		onOutput := args.Get(3).(container.LineFunc)
		for _, l := range lines {
			onOutput(l)
		}
	}
}

type testConfig struct {
	token     string
	url       string
	tlsVerify bool
	debug     bool
}

func defaultTestConfig() *testConfig {
	// A fresh string so the builder has to compare URLs by value.
	url := strings.Clone(DefaultEngineURL)
	return &testConfig{token: "foo-token", url: url, tlsVerify: true}
}

func (c *testConfig) Token() string         { return c.token }
func (c *testConfig) EngineURL() string     { return c.url }
func (c *testConfig) EngineTLSVerify() bool { return c.tlsVerify }
func (c *testConfig) Debug() bool           { return c.debug }

type recordingLogger struct {
	mu      sync.Mutex
	entries map[string][]string
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{entries: make(map[string][]string)}
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[level] = append(l.entries[level], msg)
}

func (l *recordingLogger) LogDebug(msg string) { l.record("debug", msg) }
func (l *recordingLogger) LogInfo(msg string)  { l.record("info", msg) }
func (l *recordingLogger) LogWarn(msg string)  { l.record("warn", msg) }
func (l *recordingLogger) LogError(msg string) { l.record("error", msg) }

func (l *recordingLogger) messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries[level]...)
}
