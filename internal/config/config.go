package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models taskanchor.yml.
type Config struct {
	Ledger LedgerConfig `yaml:"ledger"`
	Server ServerConfig `yaml:"server"`
}

type LedgerConfig struct {
	// Mode selects the client implementation: "http" for the contract
	// gateway, "memory" for local development and tests.
	Mode     string `yaml:"mode"`
	Endpoint string `yaml:"endpoint"`
	ChainID  int64  `yaml:"chain_id"`
	// Contract is the commitment contract address all operations are keyed to.
	Contract string `yaml:"contract"`
	// Account is the signing account the service submits from.
	Account        string `yaml:"account"`
	MaxBatchSize   int    `yaml:"max_batch_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ta init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if no file exists.
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

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Ledger.Mode {
	case "http":
		if c.Ledger.Endpoint == "" {
			return fmt.Errorf("config.ledger.endpoint is required in http mode")
		}
		if c.Ledger.Contract == "" {
			return fmt.Errorf("config.ledger.contract is required in http mode")
		}
		if c.Ledger.Account == "" {
			return fmt.Errorf("config.ledger.account is required in http mode")
		}
	case "memory":
	default:
		return fmt.Errorf("config.ledger.mode must be http or memory, got %q", c.Ledger.Mode)
	}
	if c.Ledger.MaxBatchSize <= 0 {
		return fmt.Errorf("config.ledger.max_batch_size must be positive")
	}
	if c.Ledger.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.ledger.timeout_seconds must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskanchor.yml")
}

// Default returns a config suitable for local development.
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Mode:           "memory",
			ChainID:        1,
			MaxBatchSize:   20,
			TimeoutSeconds: 15,
		},
		Server: ServerConfig{
			Addr:     "127.0.0.1:8080",
			BasePath: "/v0",
		},
	}
}

// GenerateDefault returns the default config YAML for ta init.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `ledger:
  # http talks to the contract gateway, memory keeps an in-process ledger
  # for local development.
  mode: memory
  endpoint: ""
  chain_id: 1
  contract: ""
  account: ""
  max_batch_size: 20
  timeout_seconds: 15

server:
  addr: 127.0.0.1:8080
  base_path: /v0
`
