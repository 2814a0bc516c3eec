package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models offload.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Admin struct {
		Password string `yaml:"password"`
	} `yaml:"admin"`
	Generator struct {
		Model          string `yaml:"model"`
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		Anchor         struct {
			MinMultiple float64 `yaml:"min_multiple"`
			MaxMultiple float64 `yaml:"max_multiple"`
		} `yaml:"anchor"`
	} `yaml:"generator"`
	Intake struct {
		MaxTaskChars int `yaml:"max_task_chars"`
	} `yaml:"intake"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it or run with defaults via OFFLOAD_ env overrides", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Generator.Model == "" {
		return fmt.Errorf("config.generator.model is required")
	}
	if c.Generator.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.generator.timeout_seconds must be positive")
	}
	if c.Generator.Anchor.MinMultiple <= 0 || c.Generator.Anchor.MaxMultiple <= 0 {
		return fmt.Errorf("config.generator.anchor multiples must be positive")
	}
	if c.Generator.Anchor.MinMultiple > c.Generator.Anchor.MaxMultiple {
		return fmt.Errorf("config.generator.anchor.min_multiple exceeds max_multiple")
	}
	if c.Intake.MaxTaskChars <= 0 {
		return fmt.Errorf("config.intake.max_task_chars must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "offload.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

admin:
  password: ""

generator:
  model: gpt-5-nano
  base_url: https://api.openai.com
  timeout_seconds: 180
  anchor:
    min_multiple: 5
    max_multiple: 10

intake:
  max_task_chars: 2000
`
