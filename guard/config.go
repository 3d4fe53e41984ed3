package guard

import "github.com/hazyhaar/locguard/guard/internal/config"

// Re-exported configuration types.
type (
	Config           = config.Config
	BrowserConfig    = config.BrowserConfig
	TargetConfig     = config.TargetConfig
	MiningConfig     = config.MiningConfig
	ValidationConfig = config.ValidationConfig
	MonitorConfig    = config.MonitorConfig
	HTTPConfig       = config.HTTPConfig
)

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads the YAML file at path (defaults only when path is empty)
// and applies LOCGUARD_* overrides from envFiles and the process
// environment.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return nil, err
		}
	}
	env, err := config.Environ(envFiles...)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(env); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}
