package vault

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// KeyProvider supplies the vault-wide encryption passphrase. Deployments plug
// in a secret manager or hardware-backed source here; the vault only ever
// asks for the passphrase at the moment it seals or opens a value.
type KeyProvider interface {
	Passphrase() (string, error)
}

// StaticKey is a passphrase held in memory, typically loaded from config.
type StaticKey string

func (k StaticKey) Passphrase() (string, error) {
	if k == "" {
		return "", errors.New("vault passphrase is empty")
	}
	return string(k), nil
}

// FileKey reads the passphrase from a file on every call so rotated mounts
// (e.g. Kubernetes secrets) are picked up without a restart.
type FileKey struct {
	Path string
}

func (k FileKey) Passphrase() (string, error) {
	data, err := os.ReadFile(k.Path)
	if err != nil {
		return "", fmt.Errorf("read vault passphrase file: %w", err)
	}
	p := strings.TrimSpace(string(data))
	if p == "" {
		return "", fmt.Errorf("vault passphrase file %s is empty", k.Path)
	}
	return p, nil
}
