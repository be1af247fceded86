package container

import (
	"bufio"
	"io"
	"net"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/stdcopy"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/threatflux/inlineScanRunnerGo/internal/docker"
)

const testContainerID = "4f1c2d3e5a6b7c8d9e0f"

func newTestRunner(t *testing.T) (*DockerRunner, *docker.MockDockerClient) {
	t.Helper()
	client := new(docker.MockDockerClient)
	logger, _ := logtest.NewNullLogger()
	return NewDockerRunner(client, WithLogger(logger)), client
}

func newTestContainer(t *testing.T) (*dockerContainer, *docker.MockDockerClient) {
	t.Helper()
	runner, client := newTestRunner(t)
	return newDockerContainer(runner, testContainerID), client
}

// pipeResponse returns a hijacked response whose engine side is driven by
// serve. The engine side is closed once serve returns.
func pipeResponse(t *testing.T, serve func(conn net.Conn, stdout, stderr io.Writer)) types.HijackedResponse {
	t.Helper()
	clientConn, engineConn := net.Pipe()
	go func() {
		defer engineConn.Close()
		serve(engineConn, stdcopy.NewStdWriter(engineConn, stdcopy.Stdout), stdcopy.NewStdWriter(engineConn, stdcopy.Stderr))
	}()
	t.Cleanup(func() { clientConn.Close() })
	return types.HijackedResponse{Conn: clientConn, Reader: bufio.NewReader(clientConn)}
}

// collector gathers lines from a LineFunc.
type collector struct {
	lines chan string
}

func newCollector() *collector {
	return &collector{lines: make(chan string, 64)}
}

func (c *collector) fn(line string) {
	c.lines <- line
}

func (c *collector) drain() []string {
	var out []string
	for {
		select {
		case l := <-c.lines:
			out = append(out, l)
		default:
			return out
		}
	}
}

type mockSetup struct {
	client *docker.MockDockerClient
}
