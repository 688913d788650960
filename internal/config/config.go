package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/garnizeh/experts/internal/experts"
	"github.com/garnizeh/experts/internal/repository/bigquery"
)

const (
	BackendSQLite   = "sqlite"
	BackendBigQuery = "bigquery"

	// insecureJWTSecret is the built-in default; it is only accepted when
	// EXPERTS_ENV=development.
	insecureJWTSecret = "supersecretkey"

	DefaultCostCeilingBytes int64 = 10_000_000_000
	DefaultFinderTimeout          = 60 * time.Second
)

type Config struct {
	Addr           string          `yaml:"addr"`
	JWTSecret      string          `yaml:"jwt_secret"`
	APITimeout     time.Duration   `yaml:"timeout"`
	DatabasePath   string          `yaml:"database_path"`
	TokenDuration  time.Duration   `yaml:"token_duration"`
	MigrateOnStart bool            `yaml:"migrate_on_start"`
	Seed           bool            `yaml:"seed"`
	Finder         FinderConfig    `yaml:"finder"`
	BigQuery       bigquery.Config `yaml:"bigquery"`
}

type FinderConfig struct {
	// Backend is "sqlite" or "bigquery".
	Backend          string            `yaml:"backend"`
	CostCeilingBytes int64             `yaml:"cost_ceiling_bytes"`
	Timeout          time.Duration     `yaml:"timeout"`
	Relations        experts.Relations `yaml:"relations"`
}

func LoadConfig(path string) (*Config, error) {
	apiTimeout := 15 * time.Second
	tokenDuration := 1 * time.Hour

	cfg := &Config{
		Addr:           getEnv("EXPERTS_ADDR", ":8080"),
		JWTSecret:      getEnv("EXPERTS_JWT_SECRET", insecureJWTSecret),
		APITimeout:     apiTimeout,
		DatabasePath:   getEnv("EXPERTS_DATABASE_PATH", "experts.db"),
		TokenDuration:  tokenDuration,
		MigrateOnStart: true,
		Finder: FinderConfig{
			Backend: getEnv("EXPERTS_BACKEND", BackendSQLite),
		},
		BigQuery: bigquery.Config{
			ProjectID: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate fills unset finder defaults and reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	} else if c.JWTSecret == insecureJWTSecret && !IsDevelopment() {
		errs = append(errs, errors.New("jwt_secret uses the insecure default; set EXPERTS_JWT_SECRET or EXPERTS_ENV=development"))
	}
	if c.APITimeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.APITimeout))
	}
	if c.TokenDuration <= 0 {
		errs = append(errs, fmt.Errorf("token_duration must be positive, got %s", c.TokenDuration))
	}
	errs = append(errs, c.ValidateFinder())

	return errors.Join(errs...)
}

// ValidateFinder checks only what a lookup needs: the database, the backend
// and the cost ceiling. Command-line tools use it instead of Validate.
func (c *Config) ValidateFinder() error {
	var errs []error

	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}

	if c.Finder.Backend == "" {
		c.Finder.Backend = BackendSQLite
	}
	if c.Finder.CostCeilingBytes == 0 {
		c.Finder.CostCeilingBytes = DefaultCostCeilingBytes
	}
	if c.Finder.Timeout == 0 {
		c.Finder.Timeout = DefaultFinderTimeout
	}

	switch c.Finder.Backend {
	case BackendSQLite:
		if c.Finder.Relations == (experts.Relations{}) {
			c.Finder.Relations = experts.DefaultRelations
		}
	case BackendBigQuery:
		if c.Finder.Relations == (experts.Relations{}) {
			c.Finder.Relations = experts.PublicDatasetRelations
		}
		if c.BigQuery.ProjectID == "" {
			errs = append(errs, errors.New("bigquery.project_id is required for the bigquery backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown finder backend %q", c.Finder.Backend))
	}

	if c.Finder.CostCeilingBytes < 0 {
		errs = append(errs, fmt.Errorf("finder.cost_ceiling_bytes must be positive, got %d", c.Finder.CostCeilingBytes))
	}
	if c.Finder.Timeout < 0 {
		errs = append(errs, fmt.Errorf("finder.timeout must be positive, got %s", c.Finder.Timeout))
	}
	if err := c.Finder.Relations.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether EXPERTS_ENV is "development".
func IsDevelopment() bool {
	return os.Getenv("EXPERTS_ENV") == "development"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
