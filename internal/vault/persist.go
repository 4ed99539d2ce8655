package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Persister is the storage seam behind the vault. It only ever sees the
// sealed snapshot blob, never plaintext.
type Persister interface {
	Persist(blob string) error
	// Load returns the last persisted blob, or "" when nothing was saved yet.
	Load() (string, error)
}

const snapshotFormat = "portal-vault-snapshot"

type snapshotFile struct {
	Format  string    `yaml:"format"`
	SavedAt time.Time `yaml:"saved_at"`
	Blob    string    `yaml:"blob"`
}

// FilePersister keeps the snapshot in a single YAML file, replaced
// atomically on every write.
type FilePersister struct {
	Path string
}

// NewFilePersister creates the parent directory (0700) if needed.
func NewFilePersister(path string) (*FilePersister, error) {
	if path == "" {
		return nil, errors.New("vault snapshot path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FilePersister{Path: path}, nil
}

func (p *FilePersister) Persist(blob string) error {
	data, err := yaml.Marshal(snapshotFile{
		Format:  snapshotFormat,
		SavedAt: time.Now().UTC(),
		Blob:    blob,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.Path), ".vault-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, p.Path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (p *FilePersister) Load() (string, error) {
	data, err := os.ReadFile(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read snapshot: %w", err)
	}

	var f snapshotFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("parse snapshot: %w", err)
	}
	if f.Format != snapshotFormat {
		return "", fmt.Errorf("unexpected snapshot format %q", f.Format)
	}
	return f.Blob, nil
}
