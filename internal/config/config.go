package config

import (
	"fmt"
	"os"
	"time"

	"github.com/vitos/trade_journal/internal/domain"
	"github.com/vitos/trade_journal/internal/usecase"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Sweep struct {
		IntervalSec int `yaml:"interval_sec"`
	} `yaml:"sweep"`

	// Levels and Challenges replace the built-in table and catalog when set.
	Levels     []domain.TraderLevel         `yaml:"levels"`
	Challenges []domain.ChallengeDefinition `yaml:"challenges"`
}

// Load reads path and fills defaults for everything left empty.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default is the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "journal.db"
	}
	if c.Sweep.IntervalSec <= 0 {
		c.Sweep.IntervalSec = 300
	}
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweep.IntervalSec) * time.Second
}

// LevelTable validates the configured levels, or returns the default table.
func (c *Config) LevelTable() (*domain.LevelTable, error) {
	if len(c.Levels) == 0 {
		return domain.DefaultLevelTable, nil
	}
	return domain.NewLevelTable(c.Levels)
}

// Catalog validates the configured challenges, or returns the default catalog.
func (c *Config) Catalog() (*usecase.ChallengeCatalog, error) {
	if len(c.Challenges) == 0 {
		return usecase.NewChallengeCatalog(usecase.DefaultChallengeDefinitions())
	}
	return usecase.NewChallengeCatalog(c.Challenges)
}

// Validate checks the level table and catalog together so every problem is reported at once.
func (c *Config) Validate() error {
	_, tableErr := c.LevelTable()
	_, catalogErr := c.Catalog()
	var portErr error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		portErr = fmt.Errorf("port %d: %w", c.Server.Port, domain.ErrOutOfRange)
	}
	return multierr.Combine(tableErr, catalogErr, portErr)
}
