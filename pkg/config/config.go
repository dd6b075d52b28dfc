package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template keys the bot renders replies with. Every key must be present in
// the configuration file.
const (
	TemplateHelp        = "help"
	TemplateStart       = "start"
	TemplateComplete    = "complete"
	TemplateError       = "error"
	TemplateInvalidDate = "invalidDate"
)

var requiredTemplates = []string{
	TemplateHelp,
	TemplateStart,
	TemplateComplete,
	TemplateError,
	TemplateInvalidDate,
}

// Endpoint is a host/port pair for one of the platform surfaces.
type Endpoint struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// URL renders the https base URL for the endpoint.
func (e Endpoint) URL() string {
	return fmt.Sprintf("https://%s:%d", e.Host, e.Port)
}

// ComplianceConfig configures the optional compliance-export identity. When
// enabled, message reads are performed with tokens obtained via mutual-TLS
// client certificate authentication instead of the bot's own tokens.
type ComplianceConfig struct {
	Enabled      bool     `yaml:"enabled"`
	SessionAuth  Endpoint `yaml:"sessionAuth"`
	KeyAuth      Endpoint `yaml:"keyAuth"`
	CertPath     string   `yaml:"cert"`
	CertPassword string   `yaml:"certPassword"`
}

// Config is the full configuration surface of the export bot.
type Config struct {
	AppID         string `yaml:"appId"`
	AppRSAKeyPath string `yaml:"appRSAKey"`

	BotUsername   string `yaml:"botUsername"`
	BotRSAKeyPath string `yaml:"botRSAKey"`

	Pod        Endpoint `yaml:"pod"`
	Agent      Endpoint `yaml:"agent"`
	KeyManager Endpoint `yaml:"keyManager"`

	Compliance ComplianceConfig `yaml:"compliance"`

	// StreamMessageLimit caps how many messages are retained per stream in a
	// single export. Zero means unlimited.
	StreamMessageLimit int `yaml:"streamMessageLimit"`

	Debug bool `yaml:"debug"`

	Templates map[string]string `yaml:"templates"`
}

// Load reads and validates the YAML configuration at path. The DEBUGMODE
// environment variable, when set, overrides the debug flag from the file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if v := os.Getenv("DEBUGMODE"); v != "" {
		cfg.Debug = v == "1" || strings.EqualFold(v, "true")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every field required to run an export is present.
// The compliance block is only required when compliance mode is enabled.
func (c *Config) Validate() error {
	var missing []string

	if c.AppID == "" {
		missing = append(missing, "appId")
	}
	if c.AppRSAKeyPath == "" {
		missing = append(missing, "appRSAKey")
	}
	if c.BotUsername == "" {
		missing = append(missing, "botUsername")
	}
	if c.BotRSAKeyPath == "" {
		missing = append(missing, "botRSAKey")
	}
	if c.Pod.Host == "" {
		missing = append(missing, "pod.host")
	}
	if c.Agent.Host == "" {
		missing = append(missing, "agent.host")
	}
	if c.KeyManager.Host == "" {
		missing = append(missing, "keyManager.host")
	}

	if c.Compliance.Enabled {
		if c.Compliance.SessionAuth.Host == "" {
			missing = append(missing, "compliance.sessionAuth.host")
		}
		if c.Compliance.KeyAuth.Host == "" {
			missing = append(missing, "compliance.keyAuth.host")
		}
		if c.Compliance.CertPath == "" {
			missing = append(missing, "compliance.cert")
		}
	}

	for _, key := range requiredTemplates {
		if c.Templates[key] == "" {
			missing = append(missing, "templates."+key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("config is missing required fields: %s", strings.Join(missing, ", "))
	}
	if c.StreamMessageLimit < 0 {
		return fmt.Errorf("streamMessageLimit must not be negative, got %d", c.StreamMessageLimit)
	}
	return nil
}
