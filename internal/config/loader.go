package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvFileVar names an explicit .env file to load before expansion.
const EnvFileVar = "EMS_ENV_FILE"

// Load reads a YAML or TOML config file and expands environment variables.
// A .env file next to the config (or the file named by EMS_ENV_FILE) is
// loaded first; variables already set in the environment win.
func Load(path string) (*ClientConfig, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg ClientConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parse config toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*ClientConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*ClientConfig, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := os.Getenv(EnvFileVar)
	explicit := envPath != ""
	if !explicit {
		envPath = filepath.Join(filepath.Dir(configPath), ".env")
	}

	err := godotenv.Load(envPath)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return nil
	}
	return err
}
