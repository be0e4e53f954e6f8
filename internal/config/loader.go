package config

import "fmt"

// Loader builds a validated Config from defaults, the config file, the
// environment and command-line flags, in increasing precedence. It is
// reused by the watcher so reloads honour the same flag overrides.
type Loader struct {
	// Path is the config file. A missing file is not an error.
	Path string

	// Base holds defaults with flag values already applied.
	Base Config

	// Changed names the flags set on the command line.
	Changed map[string]bool
}

// Load produces a fresh, validated Config.
func (l Loader) Load() (*Config, error) {
	cfg := l.Base.clone()

	if l.Path != "" && FileExists(l.Path) {
		fc, err := LoadFileConfig(l.Path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := ApplyFileConfig(&cfg, fc, l.Changed); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnvConfig(&cfg, l.Changed); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
