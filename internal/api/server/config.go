// Package server provides HTTP server configuration and lifecycle management.
package server

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	// Host is the address to bind to (default: "").
	Host string `yaml:"host"`

	// Port is the HTTP port.
	Port int `yaml:"port"`

	// StateDir is the path holding key records and software key material.
	StateDir string `yaml:"state_dir"`

	// Backend selects the key backend: "software" or "pkcs11".
	Backend string `yaml:"backend"`

	// HSMConfig is the path to the PKCS#11 configuration file.
	// Required when Backend is "pkcs11".
	HSMConfig string `yaml:"hsm_config"`

	// PassphraseEnv names the environment variable holding the
	// software keystore passphrase. The keystore is unsealed when the
	// variable is set and non-empty.
	PassphraseEnv string `yaml:"passphrase_env"`

	// AuditLog is the path to the append-only audit log. Empty
	// disables audit logging.
	AuditLog string `yaml:"audit_log"`

	// TLS configuration (optional)
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`

	// Timeouts
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:            "",
		Port:            8443,
		StateDir:        "./webcrypto-state",
		Backend:         "software",
		PassphraseEnv:   "WEBCRYPTO_PASSPHRASE",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfig reads a YAML config file over the defaults, then applies
// WEBCRYPTO_* environment overrides. The path may be empty.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("WEBCRYPTO_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("WEBCRYPTO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("WEBCRYPTO_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("WEBCRYPTO_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("WEBCRYPTO_HSM_CONFIG"); v != "" {
		c.HSMConfig = v
	}
	if v := os.Getenv("WEBCRYPTO_AUDIT_LOG"); v != "" {
		c.AuditLog = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Backend {
	case "software":
	case "pkcs11":
		if c.HSMConfig == "" {
			return fmt.Errorf("backend pkcs11 requires hsm_config")
		}
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	return nil
}

// Address returns the full listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Passphrase reads the software keystore passphrase from the
// environment. Empty means the keystore stays unsealed.
func (c *Config) Passphrase() []byte {
	if c.PassphraseEnv == "" {
		return nil
	}
	if v := os.Getenv(c.PassphraseEnv); v != "" {
		return []byte(v)
	}
	return nil
}
