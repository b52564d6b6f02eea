// Package config resolves linkctl settings from defaults, a YAML file, .env
// and LINKCTL_* environment variables. CLI flags are applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/linkctl/internal/api"
)

// Defaults.
const (
	DefaultAPIURL  = "http://localhost:8080/api/v1"
	DefaultTimeout = 30 * time.Second

	appName = "linkctl"
)

// Environment variables read by Load.
const (
	EnvAPIURL    = "LINKCTL_API_URL"
	EnvPublicURL = "LINKCTL_PUBLIC_URL"
	EnvDBPath    = "LINKCTL_DB_PATH"
	EnvTimeout   = "LINKCTL_TIMEOUT"
	EnvCacheTTL  = "LINKCTL_CACHE_TTL"
)

// Config holds resolved settings.
type Config struct {
	// APIURL is the backend API base, e.g. http://localhost:8080/api/v1.
	APIURL string `yaml:"api_url"`

	// PublicURL is where short links resolve. Derived from APIURL if empty.
	PublicURL string `yaml:"public_url"`

	// DBPath is the sqlite file holding the session.
	DBPath string `yaml:"db_path"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `yaml:"timeout"`

	// CacheTTL is how long list/show/stats reads are reused by one
	// LinkClient. Zero disables. Each linkctl command makes a single read,
	// so the CLI itself never hits the cache; it serves long-lived clients.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// File is the YAML config path. Empty means DefaultFile(); a missing
	// default file is not an error.
	File string

	// EnvFile is a dotenv file. Empty means ".env" in the working directory.
	EnvFile string

	// LookupEnv reads the environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		APIURL:  DefaultAPIURL,
		DBPath:  DefaultDBPath(),
		Timeout: DefaultTimeout,
	}
}

// Load resolves the config. Later sources override earlier ones: defaults,
// then the YAML file, then .env, then the process environment.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if err := cfg.readFile(opts.File); err != nil {
		return nil, err
	}

	lookup, err := envLookup(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// envLookup layers the process environment over the dotenv file.
func envLookup(opts LoadOptions) (func(string) (string, bool), error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	path := opts.EnvFile
	if path == "" {
		path = ".env"
	}
	dotenv, err := godotenv.Read(path)
	if err != nil {
		if opts.EnvFile == "" && errors.Is(err, fs.ErrNotExist) {
			return lookup, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}

	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAPIURL); ok {
		c.APIURL = v
	}
	if v, ok := lookup(EnvPublicURL); ok {
		c.PublicURL = v
	}
	if v, ok := lookup(EnvDBPath); ok {
		c.DBPath = v
	}
	if v, ok := lookup(EnvTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	if v, ok := lookup(EnvCacheTTL); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCacheTTL, err)
		}
		c.CacheTTL = d
	}
	return nil
}

// Normalize fills derived defaults and rejects unusable values. Call it
// again after applying flag overrides.
func (c *Config) Normalize() error {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api_url %q: must be an absolute URL", c.APIURL)
	}

	c.PublicURL = strings.TrimRight(strings.TrimSpace(c.PublicURL), "/")
	if c.PublicURL == "" {
		c.PublicURL = api.PublicBaseURL(c.APIURL)
	}

	if c.DBPath == "" {
		c.DBPath = DefaultDBPath()
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CacheTTL < 0 {
		c.CacheTTL = 0
	}
	return nil
}

// DefaultFile is $XDG_CONFIG_HOME/linkctl/config.yaml, or "" if no config
// directory can be determined.
func DefaultFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName, "config.yaml")
}

// DefaultDBPath is $XDG_STATE_HOME/linkctl/session.db, falling back to
// ~/.local/state.
func DefaultDBPath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appName, "session.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", appName, "session.db")
	}
	return filepath.Join(os.TempDir(), appName, "session.db")
}
