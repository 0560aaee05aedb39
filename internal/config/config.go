// Package config loads probe settings from settings.toml, the environment
// and hardcoded defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
)

// DefaultFileName is the settings file looked up and created on first run
const DefaultFileName = "settings.toml"

// EnvPrefix prefixes environment overrides, e.g. FERRET_IOC_DEEP_SEARCH
const EnvPrefix = "FERRET_IOC"

// Settings are the persistent probe options
type Settings struct {
	Server        string        `mapstructure:"server"`
	ProbeName     string        `mapstructure:"auth_probe_name"`
	AuthKey       string        `mapstructure:"auth_key"`
	DeepSearch    bool          `mapstructure:"deep_search"`
	MaxIocs       int           `mapstructure:"max_iocs"`
	FetchHours    int           `mapstructure:"fetch_hours"`
	MaxDepth      int           `mapstructure:"max_depth"`
	RegexTimeout  time.Duration `mapstructure:"regex_timeout"`
	SearchRoots   []string      `mapstructure:"search_roots"`
	RegistryHives []string      `mapstructure:"registry_hives"`
	Parallel      bool          `mapstructure:"parallel"`
	ReportDir     string        `mapstructure:"report_dir"`
	LogDir        string        `mapstructure:"log_dir"`
	LogLevel      string        `mapstructure:"log_level"`
	MetricsFile   string        `mapstructure:"metrics_file"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	HTTPRetries   int           `mapstructure:"http_retries"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server", "http://localhost:8080/")
	v.SetDefault("auth_probe_name", "TESTING")
	v.SetDefault("auth_key", "TESTING")
	v.SetDefault("deep_search", false)
	v.SetDefault("max_iocs", 5000)
	v.SetDefault("fetch_hours", 24)
	v.SetDefault("max_depth", 64)
	v.SetDefault("regex_timeout", "2s")
	v.SetDefault("search_roots", []string{})
	v.SetDefault("registry_hives", []string{"HKEY_LOCAL_MACHINE", "HKEY_CURRENT_USER", "HKEY_USERS"})
	v.SetDefault("parallel", false)
	v.SetDefault("report_dir", ".")
	v.SetDefault("log_dir", ".")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_file", "")
	v.SetDefault("http_timeout", "30s")
	v.SetDefault("http_retries", 3)
}

// Default returns the hardcoded settings
func Default() *Settings {
	v := viper.New()
	setDefaults(v)
	s := &Settings{}
	// defaults are well-formed, decoding cannot fail
	_ = v.Unmarshal(s)
	return s
}

// Load reads settings from path, or from settings.toml in the working
// directory and then next to the executable when path is empty. A missing
// file is created with defaults. Settings are always returned; a non-nil
// error means the file was unusable and defaults were applied.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, filepath.Ext(DefaultFileName)))
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(exe))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist):
			target := path
			if target == "" {
				target = DefaultFileName
			}
			if werr := v.SafeWriteConfigAs(target); werr != nil {
				logger.Warn("Could not write default settings to %s: %v", target, werr)
			} else {
				logger.Info("Default settings written to %s", target)
			}
		default:
			logger.Error("Settings file unreadable, using defaults: %v", err)
			return Default(), fmt.Errorf("read settings: %w", err)
		}
	} else {
		logger.Info("Settings loaded from %s", v.ConfigFileUsed())
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		logger.Error("Settings could not be decoded, using defaults: %v", err)
		return Default(), fmt.Errorf("decode settings: %w", err)
	}
	s.normalize()
	return s, nil
}

// normalize replaces nonsensical values with defaults
func (s *Settings) normalize() {
	d := Default()
	if s.Server == "" {
		s.Server = d.Server
	}
	if !strings.HasSuffix(s.Server, "/") {
		s.Server += "/"
	}
	if s.MaxIocs <= 0 {
		s.MaxIocs = d.MaxIocs
	}
	if s.FetchHours <= 0 {
		s.FetchHours = d.FetchHours
	}
	if s.MaxDepth <= 0 {
		s.MaxDepth = d.MaxDepth
	}
	if s.RegexTimeout <= 0 {
		s.RegexTimeout = d.RegexTimeout
	}
	if s.HTTPTimeout <= 0 {
		s.HTTPTimeout = d.HTTPTimeout
	}
	if s.HTTPRetries < 0 {
		s.HTTPRetries = 0
	}
	if s.ReportDir == "" {
		s.ReportDir = "."
	}
	if s.LogDir == "" {
		s.LogDir = "."
	}
}
