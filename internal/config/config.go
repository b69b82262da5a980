// Internal configuration data structures for the git agent.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// DefaultDepth is the shallow clone depth applied when a sync request does
// not carry one.
const DefaultDepth = 1

// Config is the top-level agent configuration. All fields are optional; the
// zero value is a fully working configuration for repositories that need no
// static credentials.
type Config struct {
	LogLevel     string       `yaml:"log_level,omitempty"`
	DefaultDepth int          `yaml:"default_depth,omitempty"`
	Credentials  *Credentials `yaml:"credentials,omitempty"`
}

// Credentials holds static credentials used as the ambient fallback when a
// remote URL carries no username for agent-based authentication. At most one
// variant may be set.
type Credentials struct {
	BasicAuth   *BasicAuth `yaml:"basic_auth,omitempty"`
	SSHKey      *SSHKey    `yaml:"ssh_key,omitempty"`
	BearerToken string     `yaml:"bearer_token,omitempty"`
}

// BasicAuth is HTTP basic authentication, optionally with extra headers in
// "Name: value" form.
type BasicAuth struct {
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Headers  []string `yaml:"headers,omitempty"`
}

// SSHKey is an SSH private key in PEM form with SHA256 host key fingerprints
// to pin the remote against.
type SSHKey struct {
	Key          string   `yaml:"key"`
	Passphrase   string   `yaml:"passphrase,omitempty"`
	Fingerprints []string `yaml:"fingerprints"`
}

func (c *Credentials) validate() error {
	n := 0
	if c.BasicAuth != nil {
		n++
	}
	if c.SSHKey != nil {
		n++
	}
	if c.BearerToken != "" {
		n++
	}
	if n > 1 {
		return fmt.Errorf("credentials: at most one of basic_auth, ssh_key, bearer_token may be set")
	}
	return nil
}

// Load reads the configuration from path. An empty path returns defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		bs, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(bs, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DefaultDepth <= 0 {
		cfg.DefaultDepth = DefaultDepth
	}
	if cfg.Credentials != nil {
		if err := cfg.Credentials.validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}
