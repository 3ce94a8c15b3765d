// Package config loads langsync settings from, in increasing priority:
// built-in defaults, a YAML file (.langsync.yaml), environment variables
// (LANGSYNC_*, plus the legacy WEBLATE_URL, WEBLATE_API_KEY and
// WEBLATE_TIMEOUT) and command-line flags that were set explicitly.
//
// The API token may also come from the credential store (see package
// settings) when none of the layers above provides one.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/minios-linux/langsync/backup"
	"github.com/minios-linux/langsync/report"
	"github.com/minios-linux/langsync/settings"
)

// Defaults.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultOutput   = "table"
	DefaultLogLevel = "info"
)

// DefaultExclude lists the codes protected from deletion unless configured
// otherwise.
var DefaultExclude = []string{"en", "ko"}

// configFiles are looked up in the working directory when no file is given.
var configFiles = []string{".langsync.yaml", ".langsync.yml"}

var (
	// ErrMissingToken is returned by Validate when no API token was found in
	// flags, environment, config file or credential store.
	ErrMissingToken = errors.New("API token is required (--token, LANGSYNC_TOKEN/WEBLATE_API_KEY or `langsync auth login`)")
	// ErrMissingURL is returned by Validate when no server URL is configured.
	ErrMissingURL = errors.New("server URL is required (--url or LANGSYNC_URL/WEBLATE_URL)")
)

// Config is the merged configuration of one run.
type Config struct {
	// URL is the Weblate server root.
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
	Proxy string `koanf:"proxy"`

	// Timeout bounds each HTTP request. It is parsed separately: both Go
	// durations ("45s") and plain seconds ("45") are accepted.
	Timeout time.Duration `koanf:"-"`

	// Catalogue and Plurals are the two input files.
	Catalogue string `koanf:"catalogue"`
	Plurals   string `koanf:"plurals"`

	Exclude          []string `koanf:"exclude"`
	CataloguePlurals bool     `koanf:"catalogue_plurals"`

	Apply      bool   `koanf:"apply"`
	Yes        bool   `koanf:"yes"`
	Backup     bool   `koanf:"backup"`
	BackupFile string `koanf:"backup_file"`

	Output   string `koanf:"output"`
	LogLevel string `koanf:"log_level"`

	// TokenFromStore is set when Token came from the credential store.
	TokenFromStore bool `koanf:"-"`
	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

func defaults() map[string]any {
	return map[string]any{
		"timeout":     DefaultTimeout.String(),
		"exclude":     DefaultExclude,
		"backup":      true,
		"backup_file": backup.DefaultFile,
		"output":      DefaultOutput,
		"log_level":   DefaultLogLevel,
	}
}

// findConfigFile returns explicit if set, else the first config file present
// in the working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range configFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// legacyEnv maps the environment variables of the old scripts to keys.
var legacyEnv = map[string]string{
	"WEBLATE_URL":     "url",
	"WEBLATE_API_KEY": "token",
	"WEBLATE_TIMEOUT": "timeout",
}

// Load builds the configuration. cfgFile may be empty; flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	path := findConfigFile(cfgFile)
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// 3. Environment: legacy names first so that LANGSYNC_* wins.
	if err := k.Load(env.Provider("WEBLATE_", ".", func(s string) string {
		return legacyEnv[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}
	if err := k.Load(env.Provider("LANGSYNC_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "LANGSYNC_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were set explicitly
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = path

	timeout, err := ParseTimeout(k.String("timeout"))
	if err != nil {
		return nil, err
	}
	cfg.Timeout = timeout

	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	explicit := strings.TrimSpace(cfg.Token)
	cfg.Token = explicit
	if cfg.URL != "" {
		cfg.Token = settings.ResolveToken(cfg.URL, explicit)
		cfg.TokenFromStore = explicit == "" && cfg.Token != ""
	}
	return &cfg, nil
}

// ParseTimeout accepts a Go duration ("1m30s") or a number of seconds ("90").
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultTimeout, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid timeout %q: must be positive", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid timeout %q: must be positive", s)
	}
	return d, nil
}

// Validate checks the settings every command uses: output format and log
// level.
func (c *Config) Validate() error {
	if !report.ValidFormat(c.Output) {
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", c.Output)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// ValidateServer runs Validate and additionally requires a server URL and
// an API token.
func (c *Config) ValidateServer() error {
	if c.URL == "" {
		return ErrMissingURL
	}
	if c.Token == "" {
		return ErrMissingToken
	}
	return c.Validate()
}

// Level returns the configured log level.
func (c *Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
