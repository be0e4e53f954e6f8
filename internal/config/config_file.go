package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig is the TOML layout of config.toml. Durations are strings.
type FileConfig struct {
	General   GeneralSection          `toml:"general"`
	Clipboard map[string]BoardSection `toml:"clipboard"`
}

// GeneralSection is the [general] table.
type GeneralSection struct {
	PollingRate    string `toml:"polling_rate"`
	SyncInterval   string `toml:"sync_interval"`
	DataDir        string `toml:"data_dir"`
	ListenPorts    []int  `toml:"listen_ports"`
	DeviceName     string `toml:"device_name"`
	LogLevel       string `toml:"log_level"`
	PasteCommand   string `toml:"paste_command"`
	WindowCommand  string `toml:"window_command"`
	SyncBatchBytes int    `toml:"sync_batch_bytes"`
}

// BoardSection is one [clipboard.<name>] table.
type BoardSection struct {
	DBPath           string         `toml:"db_path"`
	MaxSize          *int           `toml:"max_size"`
	KeepDuplicates   *int           `toml:"keep_duplicates"`
	RemoveDuplicates *int           `toml:"remove_duplicates"`
	Include          *FilterSection `toml:"include"`
	Exclude          *FilterSection `toml:"exclude"`
}

// FilterSection is an include/exclude inline table.
type FilterSection struct {
	Applications []string `toml:"applications"`
	Patterns     []string `toml:"patterns"`
	MimeTypes    []string `toml:"mime_types"`
}

// defaultMaxSize applies to boards that omit max_size.
const defaultMaxSize = 1000

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path,
// $XDG_CONFIG_HOME/clipd/config.toml or the platform equivalent.
func DefaultConfigPath() string {
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "clipd", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map). When the
// file declares any [clipboard.*] table, those boards replace the defaults.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)
	g := fc.General

	s.setString("data-dir", g.DataDir, &cfg.DataDir)
	s.setString("device-name", g.DeviceName, &cfg.DeviceName)
	s.setString("log-level", g.LogLevel, &cfg.LogLevel)
	s.setString("paste-command", g.PasteCommand, &cfg.PasteCommand)
	s.setString("window-command", g.WindowCommand, &cfg.WindowCommand)
	s.setInts("port", g.ListenPorts, &cfg.ListenPorts)
	s.setInt("sync-batch-bytes", g.SyncBatchBytes, &cfg.SyncBatchBytes)

	if err := s.setDuration("polling-rate", g.PollingRate, &cfg.PollingRate); err != nil {
		return err
	}
	if err := s.setDuration("sync-interval", g.SyncInterval, &cfg.SyncInterval); err != nil {
		return err
	}

	if len(fc.Clipboard) > 0 {
		cfg.Boards = cfg.Boards[:0:0]
		for name, bs := range fc.Clipboard {
			cfg.Boards = append(cfg.Boards, bs.toBoard(name))
		}
	}
	return nil
}

func (bs BoardSection) toBoard(name string) Board {
	b := Board{
		Name:             name,
		DBPath:           bs.DBPath,
		MaxSize:          defaultMaxSize,
		KeepDuplicates:   bs.KeepDuplicates,
		RemoveDuplicates: bs.RemoveDuplicates,
		Include:          bs.Include.toFilter(),
		Exclude:          bs.Exclude.toFilter(),
	}
	if bs.MaxSize != nil {
		b.MaxSize = *bs.MaxSize
	}
	return b
}

func (fs *FilterSection) toFilter() *Filter {
	if fs == nil {
		return nil
	}
	return &Filter{
		Applications: fs.Applications,
		Patterns:     fs.Patterns,
		MimeTypes:    fs.MimeTypes,
	}
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
