package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Chain          ChainConfig          `yaml:"chain"`
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
	Genesis        GenesisConfig        `yaml:"genesis"`
}

// ChainConfig holds the time-step driver settings.
type ChainConfig struct {
	// StartHeight is the first height the driver will step.
	StartHeight uint64 `yaml:"start_height"`
	// StepInterval is the wall-clock duration of one height.
	StepInterval time.Duration `yaml:"step_interval"`
	// SnipeWindow is how close to the end a bid must land to trigger an
	// extension. Zero disables anti-snipe.
	SnipeWindow uint64 `yaml:"snipe_window"`
	// SnipeExtension is how far past the bid height the end is pushed.
	SnipeExtension uint64 `yaml:"snipe_extension"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "sqlx" or "otelsql"
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// GenesisConfig seeds balances and auctions at process initialization.
type GenesisConfig struct {
	Accounts []GenesisAccount `yaml:"accounts"`
	Auctions []GenesisAuction `yaml:"auctions"`
}

// GenesisAccount seeds one free balance.
type GenesisAccount struct {
	Address string `yaml:"address"`
	Balance string `yaml:"balance"`
}

// GenesisAuction is one seed auction tuple, validated with the same
// invariants as runtime creation.
type GenesisAuction struct {
	Creator       string  `yaml:"creator"`
	Origin        string  `yaml:"origin"`
	Timestamp     uint64  `yaml:"timestamp"`
	NumContainers uint64  `yaml:"num_containers"`
	NumTEU        uint64  `yaml:"num_teu"`
	Start         uint64  `yaml:"start"`
	End           *uint64 `yaml:"end,omitempty"`
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Chain: ChainConfig{
			StartHeight:    1,
			StepInterval:   time.Second,
			SnipeWindow:    0,
			SnipeExtension: 0,
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "sqlx",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "auctiond",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "auctiond-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlx", "otelsql":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"sqlx\" or \"otelsql\"", c.Database.Driver)
	}
	if c.Chain.StepInterval <= 0 {
		return fmt.Errorf("chain step_interval must be positive, got %s", c.Chain.StepInterval)
	}
	if c.Chain.SnipeWindow > 0 && c.Chain.SnipeExtension == 0 {
		return fmt.Errorf("snipe_extension must be set when snipe_window is enabled")
	}
	for i, a := range c.Genesis.Auctions {
		if a.Creator == a.Origin {
			return fmt.Errorf("genesis auction %d: creator and origin must differ", i)
		}
		if a.End != nil && *a.End <= a.Start {
			return fmt.Errorf("genesis auction %d: end must be after start", i)
		}
	}
	return nil
}
