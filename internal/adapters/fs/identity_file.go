package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const identityFileName = "identity.json"

type identityRecord struct {
	DeviceID   string    `json:"device_id"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// IdentityFile implements ports.IdentityCache using a JSON file.
type IdentityFile struct {
	dir string
}

// NewIdentityFile creates an IdentityFile stored in dir.
func NewIdentityFile(dir string) *IdentityFile {
	return &IdentityFile{dir: dir}
}

// Load returns the cached device id, or "" if no file exists yet.
func (r *IdentityFile) Load(ctx context.Context) (string, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	var rec identityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", err
	}
	return rec.DeviceID, nil
}

// Save persists the device id atomically (temp file, then rename).
func (r *IdentityFile) Save(ctx context.Context, id string) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(identityRecord{DeviceID: id, ResolvedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}

	path := r.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Path returns the full path to the identity file.
func (r *IdentityFile) Path() string {
	return filepath.Join(r.dir, identityFileName)
}
