package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/koba/db-fixture/internal/database"
)

// DefaultConfigName is looked up in the working directory when no config
// file is given.
const DefaultConfigName = "dbfixture"

type Config struct {
	Database    Database `mapstructure:"database"`
	Schema      string   `mapstructure:"schema"`
	Data        string   `mapstructure:"data"`
	Quote       Quote    `mapstructure:"quote"`
	Placeholder string   `mapstructure:"placeholder"`
}

type Database struct {
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	URL      string `mapstructure:"url"`
}

type Quote struct {
	Prefix string `mapstructure:"prefix"`
	Suffix string `mapstructure:"suffix"`
}

var envBindings = map[string]string{
	"database.type":     "DB_TYPE",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.name":     "DB_NAME",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.url":      "DATABASE_URL",
	"schema":            "DBFIXTURE_SCHEMA",
	"data":              "DBFIXTURE_DATA",
	"placeholder":       "DBFIXTURE_PLACEHOLDER",
}

// ReadIn points v at the config file, or at dbfixture.yaml in the working
// directory, and binds the environment. A missing default file is not an
// error; a missing explicit file is.
func ReadIn(v *viper.Viper, cfgFile string) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(DefaultConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load unmarshals v and applies defaults.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set defaults
	cfg.Database.Type = strings.ToLower(cfg.Database.Type)
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.Type == "" {
		return fmt.Errorf("database.type is required. Supported types: %v", database.SupportedTypes())
	}
	d, err := database.LookupDialect(c.Database.Type)
	if err != nil {
		return fmt.Errorf("%w. Supported types: %v", err, database.SupportedTypes())
	}

	if c.Placeholder != "" {
		if _, err := database.ParsePlaceholder(c.Placeholder); err != nil {
			return err
		}
	}

	if d.Name == "sqlite" && c.Database.URL == "" && c.Database.Name == "" {
		return fmt.Errorf("database.name must be the database file path for %s", c.Database.Type)
	}

	return nil
}

// DatabaseConfig returns the connection settings.
func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Type:        c.Database.Type,
		URL:         c.Database.URL,
		Host:        c.Database.Host,
		Port:        c.Database.Port,
		Database:    c.Database.Name,
		User:        c.Database.User,
		Password:    c.Database.Password,
		Placeholder: c.Placeholder,
	}
}
