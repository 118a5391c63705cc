// Package config provides layered configuration loading for the studio
// binaries. Precedence: flags > env > file > defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "STUDIO_"

// Config holds the resolved configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Renderer RendererConfig `yaml:"renderer"`
	Host     HostConfig     `yaml:"host"`

	// Sources tracks where each value came from, keyed by flag name.
	Sources map[string]Source `yaml:"-"`
}

// RendererConfig configures cmd/renderer.
type RendererConfig struct {
	// Page is the URL of the UI document the payload is read from.
	Page string `yaml:"page"`
	// Payload overrides the payload read from Page.
	Payload     string `yaml:"payload"`
	ProjectsDir string `yaml:"projects_dir"`
	VirtualFS   string `yaml:"virtual_fs"`
	DebugAddr   string `yaml:"debug_addr"`
	Title       string `yaml:"title"`
}

// HostConfig configures cmd/host and the in-process host of the shell.
type HostConfig struct {
	Listen        string `yaml:"listen"`
	DB            string `yaml:"db"`
	ImportDir     string `yaml:"import_dir"`
	LatestVersion string `yaml:"latest_version"`
	UpdateURL     string `yaml:"update_url"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// field binds a flag name to the string it configures. The env variable name
// is derived from the flag name.
type field struct {
	flag  string
	usage string
	get   func(c *Config) *string
}

var fields = []field{
	{"log-level", "log level (debug, info, warn, error)", func(c *Config) *string { return &c.LogLevel }},
	{"page", "url of the ui document", func(c *Config) *string { return &c.Renderer.Page }},
	{"payload", "startup payload, overrides the one in the ui document", func(c *Config) *string { return &c.Renderer.Payload }},
	{"projects-dir", "directory holding projects in shell mode", func(c *Config) *string { return &c.Renderer.ProjectsDir }},
	{"virtual-fs", "sqlite dsn of the sandbox filesystem", func(c *Config) *string { return &c.Renderer.VirtualFS }},
	{"debug-addr", "address to serve diagnostics on, empty to disable", func(c *Config) *string { return &c.Renderer.DebugAddr }},
	{"title", "title recorded on history entries", func(c *Config) *string { return &c.Renderer.Title }},
	{"listen", "host listen address", func(c *Config) *string { return &c.Host.Listen }},
	{"db", "sqlite database of the host project store", func(c *Config) *string { return &c.Host.DB }},
	{"import-dir", "directory watched for project files to import", func(c *Config) *string { return &c.Host.ImportDir }},
	{"latest-version", "latest released version announced to renderers", func(c *Config) *string { return &c.Host.LatestVersion }},
	{"update-url", "download url of the latest version", func(c *Config) *string { return &c.Host.UpdateURL }},
}

// EnvName returns the environment variable for a flag name.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// Default returns the default configuration.
func Default() *Config {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return &Config{
		LogLevel: "info",
		Renderer: RendererConfig{
			Page:        "http://localhost:1879/",
			ProjectsDir: filepath.Join(dataDir, "studio", "projects"),
			VirtualFS:   "file:studio-virtual.db",
			Title:       "Studio",
		},
		Host: HostConfig{
			Listen: "localhost:1879",
			DB:     "studio.db",
		},
		Sources: make(map[string]Source),
	}
}

// RegisterFlags adds the config file flag and the given value flags to fs.
// Unknown names are ignored so each binary only exposes what it uses.
func RegisterFlags(fs *pflag.FlagSet, names ...string) {
	defaults := Default()
	fs.String("config", "", "path to a yaml config file (env "+EnvName("config")+")")
	for _, f := range fields {
		for _, name := range names {
			if name == f.flag {
				fs.String(f.flag, *f.get(defaults), f.usage+" (env "+EnvName(f.flag)+")")
			}
		}
	}
}

// Load resolves the configuration. The file is taken from the --config flag
// or the STUDIO_CONFIG variable; a named file that cannot be read is an
// error. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := Default()
	for _, f := range fields {
		cfg.Sources[f.flag] = SourceDefault
	}

	path := os.Getenv(EnvName("config"))
	if fs != nil {
		if fl := fs.Lookup("config"); fl != nil && fl.Changed {
			path = fl.Value.String()
		}
	}
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	LoadFromEnv(cfg)
	ApplyFlags(cfg, fs)

	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the non-empty values of a yaml file.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	for _, f := range fields {
		if v := *f.get(&fileCfg); v != "" {
			*f.get(cfg) = v
			cfg.Sources[f.flag] = SourceFile
		}
	}
	return nil
}

// LoadFromEnv overlays STUDIO_* variables. A variable that is set but empty
// clears the value.
func LoadFromEnv(cfg *Config) {
	for _, f := range fields {
		if v, ok := os.LookupEnv(EnvName(f.flag)); ok {
			*f.get(cfg) = v
			cfg.Sources[f.flag] = SourceEnv
		}
	}
}

// ApplyFlags overlays the flags that were set on the command line.
func ApplyFlags(cfg *Config, fs *pflag.FlagSet) {
	if fs == nil {
		return
	}
	for _, f := range fields {
		if fl := fs.Lookup(f.flag); fl != nil && fl.Changed {
			*f.get(cfg) = fl.Value.String()
			cfg.Sources[f.flag] = SourceFlag
		}
	}
}

// Level parses the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid log level: %w", err)
	}
	return level, nil
}

// Logger returns a text logger on stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	level, _ := c.Level()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
