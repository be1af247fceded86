package docker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/client"
	"github.com/docker/go-connections/tlsconfig"
	"github.com/sirupsen/logrus"
)

// Common errors with detailed descriptions for better error handling
var (
	// ErrNilOption indicates a nil option was provided
	ErrNilOption = errors.New("nil option provided to client configuration")

	// ErrInvalidHost indicates an invalid Docker host
	ErrInvalidHost = errors.New("invalid Docker host specification")

	// ErrMissingTLSConfig indicates incomplete TLS configuration
	ErrMissingTLSConfig = errors.New("TLS verification enabled but certificate paths not provided")

	// ErrConnectionFailed indicates a connection failure to Docker daemon
	ErrConnectionFailed = errors.New("failed to connect to Docker daemon")

	// ErrClientClosed indicates the client has been closed
	ErrClientClosed = errors.New("Docker client manager has been closed")

	// ErrInvalidAPIVersion indicates an invalid API version
	ErrInvalidAPIVersion = errors.New("invalid Docker API version format")
)

// DefaultHost is the engine socket used when no host is configured.
const DefaultHost = "unix:///var/run/docker.sock"

// ClientOption represents a functional option for configuring the Docker client
type ClientOption func(*ClientConfig) error

// ClientConfig represents the configuration for the Docker client
type ClientConfig struct {
	// Host is the Docker daemon socket to connect to
	Host string

	// APIVersion is the Docker API version to use; empty negotiates
	APIVersion string

	// TLSVerify indicates whether to use mutual TLS against the daemon
	TLSVerify bool

	TLSCertPath string
	TLSKeyPath  string
	TLSCAPath   string

	// PingTimeout bounds the connectivity check done when the client is created
	PingTimeout time.Duration

	// Headers are additional HTTP headers to include in requests
	Headers map[string]string

	// Logger is the logger to use
	Logger *logrus.Logger
}

// DefaultClientConfig returns the default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host:        DefaultHost,
		PingTimeout: 5 * time.Second,
		Headers:     make(map[string]string),
		Logger:      logrus.New(),
	}
}

// WithHost sets the Docker daemon host
func WithHost(host string) ClientOption {
	return func(config *ClientConfig) error {
		if host == "" {
			return ErrInvalidHost
		}
		if !strings.HasPrefix(host, "unix://") && !strings.HasPrefix(host, "tcp://") &&
			!strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") &&
			!strings.HasPrefix(host, "npipe://") {
			return fmt.Errorf("%w: host must start with unix://, tcp://, npipe://, http:// or https://", ErrInvalidHost)
		}
		config.Host = host
		return nil
	}
}

// WithAPIVersion pins the Docker API version; an empty version enables negotiation
func WithAPIVersion(version string) ClientOption {
	return func(config *ClientConfig) error {
		if version == "" {
			config.APIVersion = ""
			return nil
		}
		parts := strings.Split(strings.TrimPrefix(version, "v"), ".")
		if len(parts) != 2 {
			return fmt.Errorf("%w: version should be in format vX.Y or X.Y", ErrInvalidAPIVersion)
		}
		config.APIVersion = strings.TrimPrefix(version, "v")
		return nil
	}
}

// WithTLSConfig enables TLS with the given client certificate, key and CA
func WithTLSConfig(certPath, keyPath, caPath string) ClientOption {
	return func(config *ClientConfig) error {
		if certPath == "" || keyPath == "" || caPath == "" {
			return ErrMissingTLSConfig
		}
		config.TLSVerify = true
		config.TLSCertPath = certPath
		config.TLSKeyPath = keyPath
		config.TLSCAPath = caPath
		return nil
	}
}

// WithPingTimeout sets the ping timeout
func WithPingTimeout(timeout time.Duration) ClientOption {
	return func(config *ClientConfig) error {
		if timeout <= 0 {
			return fmt.Errorf("ping timeout must be positive")
		}
		config.PingTimeout = timeout
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) ClientOption {
	return func(config *ClientConfig) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		config.Logger = logger
		return nil
	}
}

// WithHeader adds an HTTP header
func WithHeader(key, value string) ClientOption {
	return func(config *ClientConfig) error {
		if key == "" {
			return fmt.Errorf("header key cannot be empty")
		}
		if config.Headers == nil {
			config.Headers = make(map[string]string)
		}
		config.Headers[key] = value
		return nil
	}
}

// ClientManager lazily creates and owns a single Docker API client.
type ClientManager struct {
	config ClientConfig
	logger *logrus.Logger

	mu     sync.Mutex
	client APIClient
	closed bool

	// newClient builds the underlying client; replaced in tests.
	newClient func(ctx context.Context, config ClientConfig) (APIClient, error)
}

// NewManager creates a new Docker client manager. No connection is made until
// Client is called.
func NewManager(opts ...ClientOption) (*ClientManager, error) {
	config := DefaultClientConfig()

	for _, opt := range opts {
		if opt == nil {
			return nil, ErrNilOption
		}
		if err := opt(&config); err != nil {
			return nil, fmt.Errorf("option application failed: %w", err)
		}
	}

	if config.TLSVerify && (config.TLSCertPath == "" || config.TLSKeyPath == "" || config.TLSCAPath == "") {
		return nil, ErrMissingTLSConfig
	}

	return &ClientManager{
		config:    config,
		logger:    config.Logger,
		newClient: createClient,
	}, nil
}

// Client returns the managed client, creating and pinging it on first use.
func (m *ClientManager) Client(ctx context.Context) (APIClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClientClosed
	}
	if m.client != nil {
		return m.client, nil
	}

	m.logger.WithField("host", m.config.Host).Debug("Creating Docker client")
	cli, err := m.newClient(ctx, m.config)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.config.PingTimeout)
	defer cancel()
	ping, err := cli.Ping(pingCtx)
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}

	m.logger.WithFields(logrus.Fields{
		"api_version": ping.APIVersion,
		"os_type":     ping.OSType,
	}).Debug("Docker client created and ping successful")

	m.client = cli
	return m.client, nil
}

// Close closes the managed Docker client and marks the manager as closed
func (m *ClientManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	if err != nil {
		return fmt.Errorf("failed to close Docker client: %w", err)
	}
	m.logger.Debug("Docker client closed")
	return nil
}

// createClient builds an SDK client from the configuration. The HTTP client
// carries no overall timeout: exec attach and log-follow streams live as long
// as the scan, and cancellation arrives through each call's context.
func createClient(_ context.Context, config ClientConfig) (APIClient, error) {
	var opts []client.Opt

	// The HTTP client must be set before the host so the SDK configures its
	// transport for the host's protocol.
	if config.TLSVerify {
		tlsConfig, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:             config.TLSCAPath,
			CertFile:           config.TLSCertPath,
			KeyFile:            config.TLSKeyPath,
			ExclusiveRootPools: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load Docker TLS configuration: %w", err)
		}
		opts = append(opts, client.WithHTTPClient(&http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		}))
	}

	opts = append(opts, client.WithHost(config.Host))

	if config.APIVersion != "" {
		opts = append(opts, client.WithVersion(config.APIVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}

	if len(config.Headers) > 0 {
		opts = append(opts, client.WithHTTPHeaders(config.Headers))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return cli, nil
}
