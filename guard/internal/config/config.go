// Package config loads the locguard configuration: a YAML file, defaults,
// then LOCGUARD_* overrides from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level locguard configuration.
type Config struct {
	LocatorsPath string `yaml:"locators_path"`
	BackupPath   string `yaml:"backup_path"`
	JournalPath  string `yaml:"journal_path"`

	Browser    BrowserConfig    `yaml:"browser"`
	Target     TargetConfig     `yaml:"target"`
	Mining     MiningConfig     `yaml:"mining"`
	Validation ValidationConfig `yaml:"validation"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// BrowserConfig selects the live document. An empty Remote launches a
// local Chrome.
type BrowserConfig struct {
	Remote      string `yaml:"remote"`
	UserDataDir string `yaml:"user_data_dir"`
	Headless    *bool  `yaml:"headless"`
	Stealth     *bool  `yaml:"stealth"`
}

// TargetConfig names the pages of the monitored application.
type TargetConfig struct {
	LoginURL string `yaml:"login_url"`
	AppURL   string `yaml:"app_url"`
}

// MiningConfig tunes locator mining.
type MiningConfig struct {
	ClassPrefix      string        `yaml:"class_prefix"`
	MinCells         int           `yaml:"min_cells"`
	MinRowClassLen   int           `yaml:"min_row_class_len"`
	TestIDAttributes []string      `yaml:"test_id_attributes"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
}

// ValidationConfig tunes the acceptance gate.
type ValidationConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// MonitorConfig tunes the drift battery and the watch loop.
type MonitorConfig struct {
	Interval           time.Duration `yaml:"interval"`
	ShortTimeout       time.Duration `yaml:"short_timeout"`
	LongTimeout        time.Duration `yaml:"long_timeout"`
	LowRowCount        *int          `yaml:"low_row_count"`
	SuggestMiningAfter *int          `yaml:"suggest_mining_after"`
	PreviewLen         int           `yaml:"preview_len"`

	// AutoRepair lets the watch loop start a mining pass when a report
	// suggests it. The monitor itself never does.
	AutoRepair bool `yaml:"auto_repair"`
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, cfg.Validate()
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.LocatorsPath == "" {
		c.LocatorsPath = "locators.json"
	}
	if c.JournalPath == "" {
		c.JournalPath = "locguard.db"
	}
	if c.Browser.Headless == nil {
		c.Browser.Headless = ptr(true)
	}
	if c.Browser.Stealth == nil {
		c.Browser.Stealth = ptr(true)
	}
	if c.Mining.ClassPrefix == "" {
		c.Mining.ClassPrefix = "zp_"
	}
	if c.Mining.MinCells <= 0 {
		c.Mining.MinCells = 10
	}
	if c.Mining.MinRowClassLen <= 0 {
		c.Mining.MinRowClassLen = 8
	}
	if c.Mining.ProbeTimeout <= 0 {
		c.Mining.ProbeTimeout = 3 * time.Second
	}
	if c.Validation.Threshold <= 0 {
		c.Validation.Threshold = 0.70
	}
	if c.Monitor.Interval <= 0 {
		c.Monitor.Interval = 6 * time.Hour
	}
	if c.Monitor.ShortTimeout <= 0 {
		c.Monitor.ShortTimeout = 3 * time.Second
	}
	if c.Monitor.LongTimeout <= 0 {
		c.Monitor.LongTimeout = 45 * time.Second
	}
	if c.Monitor.LowRowCount == nil {
		c.Monitor.LowRowCount = ptr(5)
	}
	if c.Monitor.SuggestMiningAfter == nil {
		c.Monitor.SuggestMiningAfter = ptr(3)
	}
	if c.Monitor.PreviewLen <= 0 {
		c.Monitor.PreviewLen = 80
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8470"
	}
}

// Validate rejects values the components cannot work with.
func (c *Config) Validate() error {
	if c.Validation.Threshold > 1 {
		return fmt.Errorf("config: validation.threshold %v is above 1", c.Validation.Threshold)
	}
	if n := c.Monitor.LowRowCount; n != nil && *n < 0 {
		return fmt.Errorf("config: monitor.low_row_count %d is negative", *n)
	}
	if n := c.Monitor.SuggestMiningAfter; n != nil && *n < 0 {
		return fmt.Errorf("config: monitor.suggest_mining_after %d is negative", *n)
	}
	if c.Monitor.ShortTimeout > c.Monitor.LongTimeout {
		return fmt.Errorf("config: monitor.short_timeout %v exceeds long_timeout %v",
			c.Monitor.ShortTimeout, c.Monitor.LongTimeout)
	}
	return nil
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LOCGUARD_"

// Environ returns the environment overrides: variables from the given .env
// files (missing files are skipped) overlaid by the process environment.
func Environ(files ...string) (map[string]string, error) {
	env := make(map[string]string)
	for _, f := range files {
		vars, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", f, err)
		}
		for k, v := range vars {
			env[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	return env, nil
}

// ApplyEnv applies LOCGUARD_* overrides.
func (c *Config) ApplyEnv(env map[string]string) error {
	str := map[string]*string{
		"LOCATORS_PATH":  &c.LocatorsPath,
		"BACKUP_PATH":    &c.BackupPath,
		"JOURNAL_PATH":   &c.JournalPath,
		"BROWSER_REMOTE": &c.Browser.Remote,
		"USER_DATA_DIR":  &c.Browser.UserDataDir,
		"LOGIN_URL":      &c.Target.LoginURL,
		"APP_URL":        &c.Target.AppURL,
		"HTTP_ADDR":      &c.HTTP.Addr,
	}
	for k, dst := range str {
		if v, ok := env[EnvPrefix+k]; ok && v != "" {
			*dst = v
		}
	}

	bools := map[string]func(bool){
		"HEADLESS":    func(b bool) { c.Browser.Headless = ptr(b) },
		"STEALTH":     func(b bool) { c.Browser.Stealth = ptr(b) },
		"AUTO_REPAIR": func(b bool) { c.Monitor.AutoRepair = b },
	}
	for k, set := range bools {
		v, ok := env[EnvPrefix+k]
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, k, err)
		}
		set(b)
	}

	if v, ok := env[EnvPrefix+"MONITOR_INTERVAL"]; ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %sMONITOR_INTERVAL: %w", EnvPrefix, err)
		}
		c.Monitor.Interval = d
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
