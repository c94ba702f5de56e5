package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/benegessarit/skill-composer/internal/steps"
	"github.com/benegessarit/skill-composer/internal/store"
)

// Environment variables that override the config file.
const (
	EnvConfig     = "SKILLSPAN_CONFIG"
	EnvDB         = "SKILLSPAN_DB"
	EnvSkillsDirs = "SKILLSPAN_SKILLS_DIRS"
	EnvLogLevel   = "SKILLSPAN_LOG_LEVEL"
)

type Config struct {
	DBPath             string   `json:"dbPath,omitempty"`
	SkillsDirs         []string `json:"skillsDirs,omitempty"`
	RootInputs         []string `json:"rootInputs,omitempty"`
	LockTimeoutMs      int      `json:"lockTimeoutMs,omitempty"`
	LogLevel           string   `json:"logLevel,omitempty"`
	LogFile            string   `json:"logFile,omitempty"`
	VisitWarnThreshold int      `json:"visitWarnThreshold,omitempty"`

	// Alerts for repaired invariants and swept sessions.
	AlertDesktop       bool   `json:"alertDesktop,omitempty"`
	AlertCommand       string `json:"alertCommand,omitempty"`
	AlertWebhook       string `json:"alertWebhook,omitempty"`
	AlertWebhookFormat string `json:"alertWebhookFormat,omitempty"`

	// HTTP API served by "skillspan serve".
	ServeAddr   string   `json:"serveAddr,omitempty"`
	ServeTokens []string `json:"serveTokens,omitempty"`
}

var ConfigPath string

func init() {
	ConfigPath = defaultConfigPath()
}

func defaultConfigPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(HomeDir(), "config.json")
}

// HomeDir returns ~/.skillspan.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".skillspan")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DBPath:             store.DefaultPath(),
		SkillsDirs:         steps.DefaultDirs(),
		RootInputs:         []string{steps.RootInput},
		LockTimeoutMs:      int(store.DefaultLockTimeout / time.Millisecond),
		LogLevel:           "info",
		LogFile:            filepath.Join(HomeDir(), "logs", "skillspan.log"),
		VisitWarnThreshold: 10,
		ServeAddr:          "127.0.0.1:7788",
	}
}

// LoadConfig reads ConfigPath. A missing file yields the defaults; values
// absent from the file keep their defaults.
func LoadConfig() (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(ConfigPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	var file Config
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigPath, err)
	}
	cfg.merge(&file)
	return cfg, nil
}

// Load returns the effective configuration: file values over defaults,
// environment over both.
func Load() (*Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func SaveConfig(config *Config) error {
	data, err := json.MarshalIndent(config, "", "    ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(ConfigPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(ConfigPath, data, 0644)
}

func (c *Config) merge(o *Config) {
	if o.DBPath != "" {
		c.DBPath = expandHome(o.DBPath)
	}
	if len(o.SkillsDirs) > 0 {
		c.SkillsDirs = expandAll(o.SkillsDirs)
	}
	if len(o.RootInputs) > 0 {
		c.RootInputs = o.RootInputs
	}
	if o.LockTimeoutMs > 0 {
		c.LockTimeoutMs = o.LockTimeoutMs
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.LogFile != "" {
		c.LogFile = expandHome(o.LogFile)
	}
	if o.VisitWarnThreshold > 0 {
		c.VisitWarnThreshold = o.VisitWarnThreshold
	}
	if o.AlertDesktop {
		c.AlertDesktop = true
	}
	if o.AlertCommand != "" {
		c.AlertCommand = expandHome(o.AlertCommand)
	}
	if o.AlertWebhook != "" {
		c.AlertWebhook = o.AlertWebhook
	}
	if o.AlertWebhookFormat != "" {
		c.AlertWebhookFormat = o.AlertWebhookFormat
	}
	if o.ServeAddr != "" {
		c.ServeAddr = o.ServeAddr
	}
	if len(o.ServeTokens) > 0 {
		c.ServeTokens = o.ServeTokens
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDB); v != "" {
		c.DBPath = expandHome(v)
	}
	if v := os.Getenv(EnvSkillsDirs); v != "" {
		var dirs []string
		for _, d := range filepath.SplitList(v) {
			if d = strings.TrimSpace(d); d != "" {
				dirs = append(dirs, d)
			}
		}
		if len(dirs) > 0 {
			c.SkillsDirs = expandAll(dirs)
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// LockTimeout returns the store lock wait as a duration.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMs) * time.Millisecond
}

// Keys lists the names accepted by Set.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var setters = map[string]func(*Config, string) error{
	"dbPath": func(c *Config, v string) error {
		c.DBPath = v
		return nil
	},
	"skillsDirs": func(c *Config, v string) error {
		c.SkillsDirs = splitList(v)
		return nil
	},
	"rootInputs": func(c *Config, v string) error {
		c.RootInputs = splitList(v)
		return nil
	},
	"lockTimeoutMs": func(c *Config, v string) error {
		n, err := positiveInt(v)
		if err != nil {
			return err
		}
		c.LockTimeoutMs = n
		return nil
	},
	"logLevel": func(c *Config, v string) error {
		switch strings.ToLower(v) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(v)
			return nil
		}
		return fmt.Errorf("invalid log level %q (debug, info, warn, error)", v)
	},
	"logFile": func(c *Config, v string) error {
		c.LogFile = v
		return nil
	},
	"visitWarnThreshold": func(c *Config, v string) error {
		n, err := positiveInt(v)
		if err != nil {
			return err
		}
		c.VisitWarnThreshold = n
		return nil
	},
	"alertDesktop": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("expected true or false, got %q", v)
		}
		c.AlertDesktop = b
		return nil
	},
	"alertCommand": func(c *Config, v string) error {
		c.AlertCommand = v
		return nil
	},
	"alertWebhook": func(c *Config, v string) error {
		if v != "" && !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
			return fmt.Errorf("webhook must be an http(s) URL, got %q", v)
		}
		c.AlertWebhook = v
		return nil
	},
	"alertWebhookFormat": func(c *Config, v string) error {
		switch v {
		case "", "json", "slack":
			c.AlertWebhookFormat = v
			return nil
		}
		return fmt.Errorf("invalid webhook format %q (json, slack)", v)
	},
	"serveAddr": func(c *Config, v string) error {
		if _, _, err := net.SplitHostPort(v); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", v, err)
		}
		c.ServeAddr = v
		return nil
	},
	"serveTokens": func(c *Config, v string) error {
		c.ServeTokens = splitList(v)
		return nil
	},
}

// Set assigns one key. List values are comma separated.
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	return set(c, strings.TrimSpace(value))
}

// SetValue loads the config file (without env overrides), assigns key and
// saves it.
func SetValue(key, value string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	return SaveConfig(cfg)
}

func positiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("expected a positive integer, got %q", v)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func expandAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = expandHome(p)
	}
	return out
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
