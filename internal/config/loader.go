package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	// GlobalConfig holds the global configuration instance
	GlobalConfig *Config
)

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("/etc/peermarket")
		v.AddConfigPath("$HOME/.peermarket")
	}

	// Environment variables, e.g. MARKET_DATABASE_HOST
	v.SetEnvPrefix("MARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, rely on defaults and environment
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// WatchConfig re-reads the configuration file when it changes and invokes
// onChange with the freshly parsed config. Invalid updates are dropped.
func WatchConfig(configPath string, onChange func(*Config)) error {
	v := viper.New()
	if configPath == "" {
		return fmt.Errorf("config path required for watching")
	}
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated := &Config{}
		if err := v.Unmarshal(updated); err != nil {
			return
		}
		updated.SetDefaults()
		if err := updated.Validate(); err != nil {
			return
		}
		onChange(updated)
	})
	v.WatchConfig()
	return nil
}
