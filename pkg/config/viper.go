// Package config is responsible for initializing the application's configuration.
// It uses the Viper library to read settings from a config file and
// environment variables on top of the defaults in internal/config.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	appconfig "github.com/JakeFAU/artist-crawler/internal/config"
)

// EnvPrefix is prepended to every environment override,
// e.g. CRAWLER_ORACLE_PROVIDER=gemini.
const EnvPrefix = "CRAWLER"

// InitConfig builds a Viper instance with defaults, environment overrides
// and, when present, a config file. An explicit file must exist; without one
// config.yaml is searched for in the working directory and the XDG config
// home, and its absence is not an error.
func InitConfig(file string) (*viper.Viper, error) {
	v := viper.New()
	appconfig.SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath(appconfig.ConfigDir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}
