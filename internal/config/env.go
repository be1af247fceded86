package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// ErrEnvVarEmpty is returned when a required environment variable is not set
	ErrEnvVarEmpty = errors.New("required environment variable is not set")
)

// EnvProvider reads the calling process environment
type EnvProvider struct {
	log *logrus.Logger

	// Prefix is prepended to keys passed to Get and Require
	Prefix string

	// lookup and environ default to the os package
	lookup  func(string) (string, bool)
	environ func() []string
}

// NewEnvProvider creates a new environment provider
func NewEnvProvider(prefix string, logger *logrus.Logger) *EnvProvider {
	if logger == nil {
		logger = logrus.New()
	}
	return &EnvProvider{
		log:     logger,
		Prefix:  prefix,
		lookup:  os.LookupEnv,
		environ: os.Environ,
	}
}

// DefaultEnvProvider returns a provider for ISCAN_ variables
func DefaultEnvProvider() *EnvProvider {
	return NewEnvProvider(EnvPrefix, nil)
}

// Get gets an environment variable or returns a default value if not present
func (p *EnvProvider) Get(key, defaultValue string) string {
	fullKey := p.getFullKey(key)
	value, exists := p.lookup(fullKey)
	if !exists {
		p.log.Debugf("Environment variable %s not set, using default", fullKey)
		return defaultValue
	}
	return value
}

// Require gets an environment variable or returns an error if not present
func (p *EnvProvider) Require(key string) (string, error) {
	fullKey := p.getFullKey(key)
	value, exists := p.lookup(fullKey)
	if !exists || value == "" {
		return "", fmt.Errorf("%w: %s", ErrEnvVarEmpty, fullKey)
	}
	return value, nil
}

// Environ returns a snapshot of the whole environment, unprefixed. It is the
// source for proxy variables forwarded into the scan container.
func (p *EnvProvider) Environ() map[string]string {
	vars := p.environ()
	env := make(map[string]string, len(vars))
	for _, kv := range vars {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

func (p *EnvProvider) getFullKey(key string) string {
	if p.Prefix == "" {
		return key
	}
	return p.Prefix + "_" + strings.ToUpper(key)
}
