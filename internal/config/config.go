// Package config loads and edits the toystudio.toml application document.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/toystudio/internal/env"
	"github.com/loykin/toystudio/internal/logger"
	"github.com/loykin/toystudio/internal/paths"
	itls "github.com/loykin/toystudio/internal/tls"
)

// FileName is the config document looked up under the root directory.
const FileName = "toystudio.toml"

// EnvPrefix prefixes environment overrides, e.g. TOYSTUDIO_SERVER_LISTEN.
const EnvPrefix = "TOYSTUDIO"

type GitConfig struct {
	Binary string `mapstructure:"binary"`
}

type UVConfig struct {
	Binary   string `mapstructure:"binary"`
	CacheDir string `mapstructure:"cache_dir"`
	// External uses Binary from PATH even when a bundled <root>/bin/uv exists.
	External bool `mapstructure:"external"`
}

type ProductsConfig struct {
	LogOutput bool   `mapstructure:"log_output"`
	SeedDir   string `mapstructure:"seed_dir"`
}

type ServerConfig struct {
	Listen   string      `mapstructure:"listen"`
	BasePath string      `mapstructure:"base_path"`
	TLS      itls.Config `mapstructure:"tls"`
}

type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Listen   string        `mapstructure:"listen"`
	Interval time.Duration `mapstructure:"interval"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

type Config struct {
	Root        string         `mapstructure:"root"`
	Language    string         `mapstructure:"language"`
	ManifestExt string         `mapstructure:"manifest_ext"`
	Git         GitConfig      `mapstructure:"git"`
	UV          UVConfig       `mapstructure:"uv"`
	Env         []string       `mapstructure:"env"`
	EnvFiles    []string       `mapstructure:"env_files"`
	UseOSEnv    bool           `mapstructure:"use_os_env"`
	Log         logger.Config  `mapstructure:"log"`
	Products    ProductsConfig `mapstructure:"products"`
	Server      ServerConfig   `mapstructure:"server"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
	History     HistoryConfig  `mapstructure:"history"`

	path string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("language", "en")
	v.SetDefault("manifest_ext", paths.DefaultManifestExt)
	v.SetDefault("git.binary", "git")
	v.SetDefault("uv.binary", "uv")
	v.SetDefault("uv.cache_dir", "")
	v.SetDefault("uv.external", true)
	v.SetDefault("use_os_env", true)
	v.SetDefault("log.slog.level", logger.LevelInfo)
	v.SetDefault("log.slog.format", logger.FormatText)
	v.SetDefault("log.slog.color", false)
	v.SetDefault("log.slog.timestamps", true)
	v.SetDefault("log.slog.source", false)
	v.SetDefault("log.file.dir", "")
	v.SetDefault("log.file.max_size_mb", 10)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.max_age_days", 7)
	v.SetDefault("products.log_output", runtime.GOOS != "windows")
	v.SetDefault("products.seed_dir", "")
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.tls.min_version", "1.2")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.interval", "15s")
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsn", "")
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
	}
	return v
}

// read loads path into v. A missing file is fine: defaults and env still apply.
func read(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		var nf viper.ConfigFileNotFoundError
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load reads the document at path (optional), applies defaults and TOYSTUDIO_* overrides.
// A relative root resolves against the directory holding the document.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := read(v, path); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.path = path
	if !filepath.IsAbs(c.Root) {
		base := "."
		if path != "" {
			base = filepath.Dir(path)
		}
		c.Root = filepath.Join(base, c.Root)
	}
	if abs, err := filepath.Abs(c.Root); err == nil {
		c.Root = abs
	}
	for _, p := range []*string{&c.Log.File.Dir, &c.Server.TLS.Dir, &c.Server.TLS.CertFile, &c.Server.TLS.KeyFile, &c.Products.SeedDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Root, *p)
		}
	}
	return &c, nil
}

// Path is the document the config was loaded from, or "".
func (c *Config) Path() string { return c.path }

// Layout derives the install paths from Root and ManifestExt.
func (c *Config) Layout() paths.Layout {
	return paths.New(c.Root).WithExt(c.ManifestExt)
}

// UVBinary resolves the uv executable. Unless External is set, a bundled
// <root>/bin/uv wins over the configured binary.
func (c *Config) UVBinary() string {
	if !c.UV.External {
		name := "uv"
		if runtime.GOOS == "windows" {
			name = "uv.exe"
		}
		bundled := filepath.Join(c.Root, "bin", name)
		if fi, err := os.Stat(bundled); err == nil && !fi.IsDir() {
			return bundled
		}
	}
	return c.UV.Binary
}

// Environment composes the environment for git, uv and launched products.
// uv.cache_dir is exported as UV_CACHE_DIR.
func (c *Config) Environment() (*env.Env, error) {
	e, err := env.Build(env.Options{UseOSEnv: c.UseOSEnv, Files: c.EnvFiles, Vars: c.Env})
	if err != nil {
		return nil, err
	}
	if c.UV.CacheDir != "" {
		dir := c.UV.CacheDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(c.Root, dir)
		}
		e = e.WithSet("UV_CACHE_DIR", dir)
	}
	return e, nil
}

// DefaultPath returns <root>/toystudio.toml.
func DefaultPath(root string) string { return filepath.Join(root, FileName) }

// Get returns the value of key from the document at path, defaults included.
// An empty key returns every setting.
func Get(path, key string) (any, error) {
	v := newViper(path)
	if err := read(v, path); err != nil {
		return nil, err
	}
	if key == "" {
		return v.AllSettings(), nil
	}
	if !v.IsSet(key) {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	return v.Get(key), nil
}

// Keys lists every known key, sorted.
func Keys(path string) ([]string, error) {
	v := newViper(path)
	if err := read(v, path); err != nil {
		return nil, err
	}
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys, nil
}

// Set writes key=value into the document at path, creating it when missing.
// Only keys present in the document or its defaults are accepted.
func Set(path, key, value string) error {
	if path == "" {
		return errors.New("config path is required")
	}
	v := viper.New()
	setDefaults(v)
	if !v.IsSet(key) && !isListKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	// write only what the file holds plus the new key, so defaults stay implicit
	doc := viper.New()
	doc.SetConfigFile(path)
	doc.SetConfigType("toml")
	if err := read(doc, path); err != nil {
		return err
	}
	typed, err := coerce(key, value, v.Get(key))
	if err != nil {
		return err
	}
	doc.Set(key, typed)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := doc.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// coerce converts value to the type of the key's default.
func coerce(key, value string, def any) (any, error) {
	if isListKey(key) {
		return splitList(value), nil
	}
	switch def.(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("config key %q expects a boolean: %w", key, err)
		}
		return b, nil
	case int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("config key %q expects an integer: %w", key, err)
		}
		return n, nil
	}
	return value, nil
}

func isListKey(key string) bool { return key == "env" || key == "env_files" }

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
