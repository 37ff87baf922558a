// Package config loads the user settings and resolves the host-dependent
// paths and binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LogSettings configures the logger.
type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	// Output is stdout, stderr or a file path
	Output string `mapstructure:"output" yaml:"output"`
}

// Settings holds the user-facing options of a conversion session.
type Settings struct {
	// OutputDir receives the converted files
	OutputDir string `mapstructure:"outputDir" yaml:"outputDir"`
	// Quality is the preset applied to added files
	Quality string `mapstructure:"quality" yaml:"quality"`
	// Tagged prefixes output names with the quality tag
	Tagged bool `mapstructure:"tagged" yaml:"tagged"`
	// Subtitles burns a sidecar subtitle file into the video
	Subtitles bool `mapstructure:"subtitles" yaml:"subtitles"`
	// DeleteInput removes the source after a successful conversion
	DeleteInput bool `mapstructure:"deleteInput" yaml:"deleteInput"`
	// Locale selects the preset display names (en_US, es_ES)
	Locale string `mapstructure:"locale" yaml:"locale"`
	// EncoderPath and ProberPath override binary resolution when set
	EncoderPath string `mapstructure:"encoderPath" yaml:"encoderPath"`
	ProberPath  string `mapstructure:"proberPath" yaml:"proberPath"`
	// ProfilesDir overrides the user profiles directory
	ProfilesDir string      `mapstructure:"profilesDir" yaml:"profilesDir"`
	Log         LogSettings `mapstructure:"log" yaml:"log"`
	// MetricsAddr serves Prometheus metrics when non-empty (e.g. ":9090")
	MetricsAddr string `mapstructure:"metricsAddr" yaml:"metricsAddr"`
}

// Load reads settings from the YAML file at path, then VIDEOMORPH_*
// environment variables, over the defaults for p. A missing file is not an
// error.
func Load(path string, p Platform) (*Settings, error) {
	v := viper.New()
	setDefaults(v, p)

	v.SetEnvPrefix("VIDEOMORPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &s, nil
}

func setDefaults(v *viper.Viper, p Platform) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("outputDir", home)
	v.SetDefault("quality", "MP4 Very High Quality")
	v.SetDefault("tagged", false)
	v.SetDefault("subtitles", false)
	v.SetDefault("deleteInput", false)
	v.SetDefault("locale", defaultLocale())
	v.SetDefault("encoderPath", "")
	v.SetDefault("proberPath", "")
	v.SetDefault("profilesDir", p.UserProfilesDir())
	v.SetDefault("metricsAddr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", filepath.Join(p.ConfigDir, "videomorph.log"))
}

func defaultLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			locale, _, _ := strings.Cut(v, ".")
			return locale
		}
	}
	return "en_US"
}

// Save writes s to path as YAML, creating the directory if needed.
func Save(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
