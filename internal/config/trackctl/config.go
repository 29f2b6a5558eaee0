package trackctl_config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerURL    string        `mapstructure:"server_url"`
	TokenFile    string        `mapstructure:"token_file"`
	RenewalFloor time.Duration `mapstructure:"renewal_floor"`
	LogLevel     string        `mapstructure:"log_level"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("token_file", defaultTokenFile())
	v.SetDefault("renewal_floor", "10s")
	v.SetDefault("log_level", "warn")

	v.SetEnvPrefix("TRACKCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".trackhire/refresh_token"
	}
	return filepath.Join(home, ".trackhire", "refresh_token")
}
