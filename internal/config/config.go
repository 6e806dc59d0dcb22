// Package config loads notegen settings from a config file, NOTEGEN_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const envPrefix = "NOTEGEN"

// Config holds every runtime setting.
type Config struct {
	APIURL           string        `mapstructure:"api_url"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	ProgressDuration time.Duration `mapstructure:"progress_duration"`
	PreviewAddr      string        `mapstructure:"preview_addr"`
	ExportDir        string        `mapstructure:"export_dir"`
	ChromePath       string        `mapstructure:"chrome_path"`
	PrintCommand     string        `mapstructure:"print_command"`
	LogFile          string        `mapstructure:"log_file"`
	NoAltScreen      bool          `mapstructure:"no_alt_screen"`
}

// New returns a viper instance with defaults, search paths and environment
// binding applied. Callers bind flags before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("notegen")
	v.AddConfigPath(filepath.Join(xdg.ConfigHome, "notegen"))
	v.AddConfigPath(".")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_url", "")
	v.SetDefault("request_timeout", 5*time.Minute)
	v.SetDefault("progress_duration", 2*time.Minute)
	v.SetDefault("preview_addr", "127.0.0.1:0")
	v.SetDefault("export_dir", "")
	v.SetDefault("chrome_path", "")
	v.SetDefault("print_command", "lp")
	v.SetDefault("log_file", "")
	v.SetDefault("no_alt_screen", false)
	return v
}

// Load reads the optional config file (path overrides the search) and
// unmarshals the merged settings.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that cannot work.
func (c Config) Validate() error {
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if c.ProgressDuration <= 0 {
		return fmt.Errorf("progress_duration must be positive")
	}
	return nil
}
