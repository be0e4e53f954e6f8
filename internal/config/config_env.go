package config

import "os"

// ApplyEnvConfig applies configuration from environment variables (CLIPD_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", os.Getenv("CLIPD_DATA_DIR"), &cfg.DataDir)
	s.setString("device-name", os.Getenv("CLIPD_DEVICE_NAME"), &cfg.DeviceName)
	s.setString("log-level", os.Getenv("CLIPD_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("paste-command", os.Getenv("CLIPD_PASTE_COMMAND"), &cfg.PasteCommand)
	s.setString("window-command", os.Getenv("CLIPD_WINDOW_COMMAND"), &cfg.WindowCommand)

	if err := s.setDuration("polling-rate", os.Getenv("CLIPD_POLLING_RATE"), &cfg.PollingRate); err != nil {
		return err
	}
	if err := s.setDuration("sync-interval", os.Getenv("CLIPD_SYNC_INTERVAL"), &cfg.SyncInterval); err != nil {
		return err
	}
	if err := s.setIntFromString("sync-batch-bytes", os.Getenv("CLIPD_SYNC_BATCH_BYTES"), &cfg.SyncBatchBytes); err != nil {
		return err
	}

	return nil
}
