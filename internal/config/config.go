package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// EnvPrefix prefixes every configuration environment variable
	EnvPrefix = "ISCAN"

	encryptedPrefix = "enc:"
)

var (
	// ErrMissingEncryptionKey is returned when an encrypted value is found but
	// no key is configured
	ErrMissingEncryptionKey = errors.New("encrypted value requires security.encryption_key")

	// ErrDecryptFailed indicates an encrypted value could not be decrypted
	ErrDecryptFailed = errors.New("failed to decrypt value")
)

// SysdigConfig configures access to the scanning backend
type SysdigConfig struct {
	// Token is the API token, optionally encrypted with an "enc:" prefix
	Token string `mapstructure:"token" validate:"required"`

	// URL is the backend URL
	URL string `mapstructure:"url" validate:"required,url"`

	// TLSVerify enables verification of the backend certificate
	TLSVerify bool `mapstructure:"tls_verify"`

	// Debug makes the scan script verbose
	Debug bool `mapstructure:"debug"`

	// RequestTimeout bounds each backend request
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=0"`

	// RequestsPerSecond limits calls to the backend
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gt=0"`

	// Burst is the number of requests allowed above the steady rate
	Burst int `mapstructure:"burst" validate:"gte=1"`
}

// ScannerConfig configures the scan container
type ScannerConfig struct {
	Image           string        `mapstructure:"image" validate:"required"`
	TeardownTimeout time.Duration `mapstructure:"teardown_timeout" validate:"gt=0"`
	StopTimeout     time.Duration `mapstructure:"stop_timeout" validate:"gte=0"`
	PullTimeout     time.Duration `mapstructure:"pull_timeout" validate:"gte=0"`
}

// DockerConfig configures the engine connection
type DockerConfig struct {
	Host        string        `mapstructure:"host" validate:"required"`
	APIVersion  string        `mapstructure:"api_version"`
	TLSVerify   bool          `mapstructure:"tls_verify"`
	TLSCertPath string        `mapstructure:"tls_cert_path"`
	TLSKeyPath  string        `mapstructure:"tls_key_path"`
	TLSCAPath   string        `mapstructure:"tls_ca_path"`
	PingTimeout time.Duration `mapstructure:"ping_timeout" validate:"gte=0"`
}

// ProxyConfig configures the proxy used for backend requests. When URL is
// empty the process environment decides.
type ProxyConfig struct {
	URL      string `mapstructure:"url" validate:"omitempty,url"`
	NoProxy  string `mapstructure:"no_proxy"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// LoggingConfig configures the process logger
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// SecurityConfig holds the key used for encrypted values
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// Config holds all configuration for the application
type Config struct {
	Sysdig   SysdigConfig   `mapstructure:"sysdig"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Security SecurityConfig `mapstructure:"security"`
}

// configManager serializes loads through the global viper instance
type configManager struct {
	mu  sync.Mutex
	log *logrus.Logger
}

var (
	manager *configManager
	once    sync.Once
)

// GetConfigManager returns the singleton config manager instance
func GetConfigManager() *configManager {
	once.Do(func() {
		manager = &configManager{
			log: logrus.New(),
		}
	})
	return manager
}

// LoadConfig loads the configuration from defaults, the optional config
// file and ISCAN_* environment variables. An empty configFile searches the
// default locations.
func LoadConfig(configFile string) (*Config, error) {
	return GetConfigManager().Load(configFile)
}

// Load loads the configuration
func (cm *configManager) Load(configFile string) (*Config, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var config Config

	setDefaults()

	if err := loadConfigFile(configFile); err != nil {
		if configFile != "" {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
		cm.log.WithError(err).Warning("Failed to load config file, using environment variables only")
	}

	loadEnvVars()

	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := decryptSensitiveValues(&config); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration. Every key needs a
// default so environment variables are seen by Unmarshal.
func setDefaults() {
	viper.SetDefault("sysdig.token", "")
	viper.SetDefault("sysdig.url", "https://secure.sysdig.com")
	viper.SetDefault("sysdig.tls_verify", true)
	viper.SetDefault("sysdig.debug", false)
	viper.SetDefault("sysdig.request_timeout", "5m")
	viper.SetDefault("sysdig.requests_per_second", 5.0)
	viper.SetDefault("sysdig.burst", 5)

	viper.SetDefault("scanner.image", "quay.io/sysdig/secure-inline-scan:2")
	viper.SetDefault("scanner.teardown_timeout", "5s")
	viper.SetDefault("scanner.stop_timeout", "10s")
	viper.SetDefault("scanner.pull_timeout", "10m")

	viper.SetDefault("docker.host", "unix:///var/run/docker.sock")
	viper.SetDefault("docker.api_version", "")
	viper.SetDefault("docker.tls_verify", false)
	viper.SetDefault("docker.tls_cert_path", "")
	viper.SetDefault("docker.tls_key_path", "")
	viper.SetDefault("docker.tls_ca_path", "")
	viper.SetDefault("docker.ping_timeout", "10s")

	viper.SetDefault("proxy.url", "")
	viper.SetDefault("proxy.no_proxy", "")
	viper.SetDefault("proxy.user", "")
	viper.SetDefault("proxy.password", "")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("security.encryption_key", "")
}

// loadConfigFile loads configuration from a file
func loadConfigFile(configFile string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		return viper.ReadInConfig()
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/inline-scan")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// loadEnvVars binds ISCAN_SECTION_KEY environment variables
func loadEnvVars() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

// decryptSensitiveValues replaces "enc:" values with their plaintext
func decryptSensitiveValues(config *Config) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"sysdig.token", &config.Sysdig.Token},
		{"proxy.password", &config.Proxy.Password},
	}

	for _, f := range fields {
		if !strings.HasPrefix(*f.value, encryptedPrefix) {
			continue
		}
		if config.Security.EncryptionKey == "" {
			return fmt.Errorf("%s: %w", f.name, ErrMissingEncryptionKey)
		}
		plain, err := DecryptValue(*f.value, config.Security.EncryptionKey)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = plain
	}
	return nil
}

func deriveKey(passphrase string) []byte {
	salt := []byte("inline-scan-config-salt")
	return pbkdf2.Key([]byte(passphrase), salt, 4096, 32, sha256.New)
}

// EncryptValue encrypts value with a key derived from passphrase. The result
// carries the "enc:" prefix and can be placed in the config file.
func EncryptValue(value, passphrase string) (string, error) {
	if value == "" || strings.HasPrefix(value, encryptedPrefix) {
		return value, nil
	}

	block, err := aes.NewCipher(deriveKey(passphrase))
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	encrypted := gcm.Seal(nonce, nonce, []byte(value), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(encrypted), nil
}

// DecryptValue reverses EncryptValue. Values without the prefix are returned
// unchanged.
func DecryptValue(value, passphrase string) (string, error) {
	if !strings.HasPrefix(value, encryptedPrefix) {
		return value, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	block, err := aes.NewCipher(deriveKey(passphrase))
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptFailed)
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return string(plaintext), nil
}

// SafeString returns a string with sensitive information masked
func SafeString(val string) string {
	if val == "" {
		return ""
	}
	return "********"
}

// MaskSensitiveFields returns a copy of the config with sensitive fields masked
func (c *Config) MaskSensitiveFields() Config {
	masked := *c
	masked.Sysdig.Token = SafeString(masked.Sysdig.Token)
	masked.Proxy.Password = SafeString(masked.Proxy.Password)
	masked.Security.EncryptionKey = SafeString(masked.Security.EncryptionKey)
	if masked.Proxy.URL != "" {
		masked.Proxy.URL = maskURLCredentials(masked.Proxy.URL)
	}
	return masked
}

func maskURLCredentials(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User(SafeString(u.User.Username()))
	return u.String()
}

// String returns a representation of the config with sensitive information
// masked
func (c *Config) String() string {
	m := c.MaskSensitiveFields()
	var sb strings.Builder
	sb.WriteString("Configuration:\n")
	fmt.Fprintf(&sb, "  sysdig: url=%s tls_verify=%t debug=%t token=%s\n", m.Sysdig.URL, m.Sysdig.TLSVerify, m.Sysdig.Debug, m.Sysdig.Token)
	fmt.Fprintf(&sb, "  scanner: image=%s teardown_timeout=%s\n", m.Scanner.Image, m.Scanner.TeardownTimeout)
	fmt.Fprintf(&sb, "  docker: host=%s api_version=%s tls_verify=%t\n", m.Docker.Host, m.Docker.APIVersion, m.Docker.TLSVerify)
	fmt.Fprintf(&sb, "  proxy: url=%s no_proxy=%s user=%s password=%s\n", m.Proxy.URL, m.Proxy.NoProxy, m.Proxy.User, m.Proxy.Password)
	fmt.Fprintf(&sb, "  logging: level=%s format=%s\n", m.Logging.Level, m.Logging.Format)
	return sb.String()
}

// ValidationResult holds validation results
type ValidationResult struct {
	Errors []ValidationError
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

var validate = validator.New()

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	result := ValidationResult{}

	if err := validate.Struct(config); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			result.Errors = append(result.Errors, ValidationError{
				Field:   fe.Namespace(),
				Message: fmt.Sprintf("failed %q validation", fe.Tag()),
			})
		}
	}

	if !strings.Contains(config.Docker.Host, "://") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "docker.host",
			Message: fmt.Sprintf("host %q has no scheme", config.Docker.Host),
		})
	}

	if config.Docker.TLSVerify {
		for _, tlsFile := range []struct {
			field string
			path  string
		}{
			{"docker.tls_cert_path", config.Docker.TLSCertPath},
			{"docker.tls_key_path", config.Docker.TLSKeyPath},
			{"docker.tls_ca_path", config.Docker.TLSCAPath},
		} {
			if tlsFile.path == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   tlsFile.field,
					Message: "required when docker.tls_verify is enabled",
				})
			} else if !fileExists(tlsFile.path) {
				result.Errors = append(result.Errors, ValidationError{
					Field:   tlsFile.field,
					Message: fmt.Sprintf("file not found at %s", tlsFile.path),
				})
			}
		}
	}

	if (config.Proxy.User == "") != (config.Proxy.Password == "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "proxy.user",
			Message: "proxy user and password must be set together",
		})
	}

	if len(result.Errors) > 0 {
		errMsgs := make([]string, 0, len(result.Errors))
		for _, err := range result.Errors {
			errMsgs = append(errMsgs, fmt.Sprintf("%s: %s", err.Field, err.Message))
		}
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errMsgs, "; "))
	}
	return nil
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// BuildSettings exposes the scan-related settings read by the executor.
type BuildSettings struct {
	sysdig SysdigConfig
}

// BuildSettings returns the scanner view of the configuration
func (c *Config) BuildSettings() BuildSettings {
	return BuildSettings{sysdig: c.Sysdig}
}

func (s BuildSettings) Token() string         { return s.sysdig.Token }
func (s BuildSettings) EngineURL() string     { return s.sysdig.URL }
func (s BuildSettings) EngineTLSVerify() bool { return s.sysdig.TLSVerify }
func (s BuildSettings) Debug() bool           { return s.sysdig.Debug }
