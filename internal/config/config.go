// Package config provides configuration management for shadowstream using
// Viper for loading from files, environment variables, and command-line
// flags.
//
// Configuration is read from .shadowstream.yml, with SHADOWSTREAM_ prefixed
// environment overrides (SHADOWSTREAM_SERVER_PORT for server.port). It covers
// renderer limits, where template files and their data live, the preview
// server, static export, and logging.
package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "SHADOWSTREAM"

// FileName is the configuration file name, without extension.
const FileName = ".shadowstream"

type Config struct {
	Render    RenderConfig    `mapstructure:"render" yaml:"render"`
	Templates TemplatesConfig `mapstructure:"templates" yaml:"templates"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Build     BuildConfig     `mapstructure:"build" yaml:"build"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type RenderConfig struct {
	// DeferHydration adds defer-hydration to top-level custom elements.
	DeferHydration bool `mapstructure:"defer_hydration" yaml:"defer_hydration"`
	MaxDepth       int  `mapstructure:"max_depth" yaml:"max_depth"`
	// CacheEntries bounds the compiled template cache; 0 is unbounded.
	CacheEntries int `mapstructure:"cache_entries" yaml:"cache_entries"`
}

type TemplatesConfig struct {
	Dir       string `mapstructure:"dir" yaml:"dir"`
	Data      string `mapstructure:"data" yaml:"data"`
	Extension string `mapstructure:"extension" yaml:"extension"`
}

type ServerConfig struct {
	Host   string `mapstructure:"host" yaml:"host"`
	Port   int    `mapstructure:"port" yaml:"port"`
	Reload bool   `mapstructure:"reload" yaml:"reload"`
}

// BuildConfig controls static export.
type BuildConfig struct {
	Output string `mapstructure:"output" yaml:"output"`
	// Workers is the export parallelism; 0 uses one per CPU.
	Workers int `mapstructure:"workers" yaml:"workers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Address returns host:port.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("render.defer_hydration", false)
	v.SetDefault("render.max_depth", 64)
	v.SetDefault("render.cache_entries", 0)
	v.SetDefault("templates.dir", "templates")
	v.SetDefault("templates.data", "")
	v.SetDefault("templates.extension", ".html")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.reload", true)
	v.SetDefault("build.output", "dist")
	v.SetDefault("build.workers", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults and environment overrides set
// up. The caller adds a config file or flag bindings before calling Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load decodes and validates the configuration held by v. A nil v uses the
// global viper instance.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
		SetDefaults(v)
	}

	var config Config
	err := v.Unmarshal(&config, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = false
		dc.WeaklyTypedInput = true
	})
	if err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	config.Templates.Extension = normalizeExtension(config.Templates.Extension)
	config.Log.Level = strings.ToLower(config.Log.Level)
	config.Log.Format = strings.ToLower(config.Log.Format)

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func normalizeExtension(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}
