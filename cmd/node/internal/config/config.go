package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TLSMode represents TLS certificate source
type TLSMode string

const (
	TLSModeFile       TLSMode = "file"
	TLSModeKubernetes TLSMode = "kubernetes"
	TLSModeMemory     TLSMode = "memory"
)

// AcceptErrorPolicy decides what the accept loop does when Accept fails.
type AcceptErrorPolicy string

const (
	// AcceptErrorsFatal stops the server on any accept error.
	AcceptErrorsFatal AcceptErrorPolicy = "fatal"
	// AcceptErrorsRetry backs off and retries temporary accept errors.
	AcceptErrorsRetry AcceptErrorPolicy = "retry"
)

// Config holds all application configuration
type Config struct {
	// Listener
	Address string `yaml:"address"`
	Port    uint16 `yaml:"port"`

	// Logging
	Verbose bool `yaml:"verbose"`
	Color   bool `yaml:"color"`
	Debug   bool `yaml:"debug"`

	// TLS Configuration
	TLSMode        TLSMode `yaml:"tls_mode"`
	TLSKeyFile     string  `yaml:"tls_key"`
	TLSCertFile    string  `yaml:"tls_cert"`
	TLSSecretName  string  `yaml:"tls_secret_name"`
	Namespace      string  `yaml:"namespace"`
	KubeConfigPath string  `yaml:"kubeconfig"`
	KubeContext    string  `yaml:"kube_context"`
	CertExpiryDays int     `yaml:"cert_expiry_warn_days"` // Warn when the leaf expires within this many days

	// Dispatch
	SniffTimeout      time.Duration     `yaml:"sniff_timeout"`
	HandshakeTimeout  time.Duration     `yaml:"handshake_timeout"`
	AcceptErrorPolicy AcceptErrorPolicy `yaml:"accept_errors"`

	// Plaintext health listener, empty to disable
	HealthServerPort string `yaml:"health_server_port"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Address:           "0.0.0.0",
		Port:              443,
		TLSMode:           TLSModeFile,
		Namespace:         "default",
		CertExpiryDays:    30,
		SniffTimeout:      5 * time.Second,
		AcceptErrorPolicy: AcceptErrorsFatal,
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, in that order of precedence. It does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.TLSMode = ParseTLSMode(string(cfg.TLSMode))
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error

	c.Address = getEnv("NODE_ADDRESS", c.Address)
	if v := os.Getenv("NODE_PORT"); v != "" {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid NODE_PORT %q: %w", v, err))
		} else {
			c.Port = uint16(port)
		}
	}

	c.Verbose = getEnvBool("NODE_VERBOSE", c.Verbose)
	c.Color = getEnvBool("NODE_COLOR", c.Color)
	c.Debug = getEnvBool("DEBUG", c.Debug)

	if mode := os.Getenv("TLS_MODE"); mode != "" {
		c.TLSMode = ParseTLSMode(mode)
	}
	c.TLSKeyFile = getEnv("TLS_KEY_FILE", c.TLSKeyFile)
	c.TLSCertFile = getEnv("TLS_CERT_FILE", c.TLSCertFile)
	c.TLSSecretName = getEnv("TLS_SECRET_NAME", c.TLSSecretName)
	c.Namespace = getEnv("POD_NAMESPACE", c.Namespace)
	c.Namespace = getEnv("NAMESPACE", c.Namespace)
	c.KubeConfigPath = getEnv("KUBECONFIG", c.KubeConfigPath)
	c.KubeContext = getEnv("KUBE_CONTEXT", c.KubeContext)
	c.CertExpiryDays = getEnvInt("TLS_EXPIRY_WARN_DAYS", c.CertExpiryDays)

	for key, target := range map[string]*time.Duration{
		"NODE_SNIFF_TIMEOUT":     &c.SniffTimeout,
		"NODE_HANDSHAKE_TIMEOUT": &c.HandshakeTimeout,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
				continue
			}
			*target = d
		}
	}
	if v := os.Getenv("NODE_ACCEPT_ERRORS"); v != "" {
		c.AcceptErrorPolicy = AcceptErrorPolicy(strings.ToLower(v))
	}
	c.HealthServerPort = getEnv("HEALTH_SERVER_PORT", c.HealthServerPort)

	return errors.Join(errs...)
}

// Validate ensures configuration is coherent
func (c *Config) Validate() error {
	switch c.TLSMode {
	case TLSModeFile:
		if c.TLSKeyFile == "" || c.TLSCertFile == "" {
			return fmt.Errorf("--tls-key and --tls-cert must be set when using file-based TLS")
		}
	case TLSModeKubernetes:
		if c.TLSSecretName == "" {
			return fmt.Errorf("TLS_SECRET_NAME must be set when using kubernetes TLS mode")
		}
	case TLSModeMemory:
	default:
		return fmt.Errorf("unsupported TLS mode: %q", c.TLSMode)
	}

	if c.SniffTimeout <= 0 {
		return fmt.Errorf("sniff timeout must be positive, got %s", c.SniffTimeout)
	}
	if c.HandshakeTimeout < 0 {
		return fmt.Errorf("handshake timeout must not be negative, got %s", c.HandshakeTimeout)
	}

	switch c.AcceptErrorPolicy {
	case AcceptErrorsFatal, AcceptErrorsRetry:
	default:
		return fmt.Errorf("unsupported accept error policy: %q (supported: %s, %s)",
			c.AcceptErrorPolicy, AcceptErrorsFatal, AcceptErrorsRetry)
	}

	if c.HealthServerPort != "" {
		if _, err := strconv.ParseUint(c.HealthServerPort, 10, 16); err != nil {
			return fmt.Errorf("invalid health server port %q", c.HealthServerPort)
		}
	}
	return nil
}

// ListenAddress returns the host:port the node binds.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(int(c.Port)))
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// ParseTLSMode accepts the mode names and their aliases.
func ParseTLSMode(mode string) TLSMode {
	switch strings.ToLower(mode) {
	case "file", "filesystem":
		return TLSModeFile
	case "kubernetes", "k8s", "secret":
		return TLSModeKubernetes
	case "memory", "in-memory", "self-signed":
		return TLSModeMemory
	}
	return TLSMode(mode)
}
