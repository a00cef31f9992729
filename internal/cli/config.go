package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/agentpi/agentpi-go/internal/types"
)

type Config struct {
	IssuerURL  string `yaml:"issuer_url"  mapstructure:"issuer_url"`
	IssuerAddr string `yaml:"issuer_addr" mapstructure:"issuer_addr"`
	ToolAddr   string `yaml:"tool_addr"   mapstructure:"tool_addr"`

	ToolID   string `yaml:"tool_id"   mapstructure:"tool_id"`
	ToolName string `yaml:"tool_name" mapstructure:"tool_name"`

	AgentKey string `yaml:"agent_key" mapstructure:"agent_key"`
	KeysDir  string `yaml:"keys_dir"  mapstructure:"keys_dir"`

	MaxScopes      []string `yaml:"max_scopes"      mapstructure:"max_scopes"`
	MaxRPM         int      `yaml:"max_rpm"         mapstructure:"max_rpm"`
	MaxDailyQuota  int      `yaml:"max_daily_quota" mapstructure:"max_daily_quota"`
	MaxConcurrency int      `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

func (c *Config) MaxLimits() types.Limits {
	return types.Limits{RPM: c.MaxRPM, DailyQuota: c.MaxDailyQuota, Concurrency: c.MaxConcurrency}
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".agentpi"), nil
}

func loadConfig(path string) (*Config, error) {
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.yaml")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	defaultKeys := ".keys"
	if dir, err := configDir(); err == nil {
		defaultKeys = filepath.Join(dir, "keys")
	}

	// Defaults
	v.SetDefault("issuer_url", "http://localhost:4010")
	v.SetDefault("issuer_addr", ":4010")
	v.SetDefault("tool_addr", ":4011")
	v.SetDefault("tool_id", "tool_example")
	v.SetDefault("tool_name", "Example Tool")
	v.SetDefault("agent_key", "agentpi_dev_key_12345")
	v.SetDefault("keys_dir", defaultKeys)
	v.SetDefault("max_scopes", []string{"read", "deploy", "write"})
	v.SetDefault("max_rpm", 120)
	v.SetDefault("max_daily_quota", 1000)
	v.SetDefault("max_concurrency", 5)

	// Env overrides: AGENTPI_ISSUER_URL, AGENTPI_AGENT_KEY, etc.
	v.SetEnvPrefix("AGENTPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Read file if it exists, otherwise return defaults without error
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
