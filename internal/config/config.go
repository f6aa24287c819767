package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ClassDef describes one class of sensors: the traffic types it records and
// the sensors that belong to it.
type ClassDef struct {
	Name    string   `yaml:"name"`
	Types   []string `yaml:"types"`
	Sensors []string `yaml:"sensors"`
}

// SiteConfig maps the site's sensor/class/type names onto the repository
// layout. Flowtype and sensor ids are assigned from declaration order.
type SiteConfig struct {
	Root    string     `yaml:"root"`
	Classes []ClassDef `yaml:"classes"`
}

// IngestConfig holds the NATS settings shared by the record publisher and
// the repository packer.
type IngestConfig struct {
	NATSURL      string `yaml:"nats_url"`
	Subject      string `yaml:"subject"`
	FlushRecords int    `yaml:"flush_records"`
}

// ClickHouseConfig holds the connection settings for the export loader.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// APIConfig holds the settings for the HTTP filter API.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration struct for the toolkit.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Ingest     IngestConfig     `yaml:"ingest"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	API        APIConfig        `yaml:"api"`
}

// Load reads the configuration from a YAML file and returns a Config struct.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	return &cfg, nil
}
