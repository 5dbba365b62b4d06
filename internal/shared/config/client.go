package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/promptwait/promptwait/pkg/await"
	"github.com/promptwait/promptwait/pkg/gateway"
)

// ClientConfig contains all configuration for a gateway client process.
type ClientConfig struct {
	Gateway gateway.Config `mapstructure:"gateway"`
	Await   await.Config   `mapstructure:"await"`
	Logging LoggingConfig  `mapstructure:"logging"`
}

// LoadClient loads the client configuration from the given path. If configPath
// is empty, it looks for promptwait.yaml in the config/ directory or the
// working directory. Environment variables with PROMPTWAIT_ prefix override
// config file values.
func LoadClient(configPath string) (*ClientConfig, error) {
	v := viper.New()

	v.SetDefault("gateway.base_url", "http://localhost:8188")
	v.SetDefault("gateway.request_timeout", gateway.DefaultRequestTimeout)
	v.SetDefault("gateway.retry_max_tries", gateway.DefaultRetryMaxTries)
	v.SetDefault("gateway.retry_base_delay", gateway.DefaultRetryBaseDelay)
	v.SetDefault("gateway.retry_max_delay", gateway.DefaultRetryMaxDelay)
	v.SetDefault("await.poll_interval", await.DefaultPollInterval)
	v.SetDefault("await.overall_timeout", await.DefaultOverallTimeout)
	v.SetDefault("await.max_unknown_streak", await.DefaultMaxUnknownStreak)
	v.SetDefault("await.not_found_grace", await.DefaultNotFoundGrace)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("promptwait")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PROMPTWAIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
