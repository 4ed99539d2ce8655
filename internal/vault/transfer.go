package vault

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"regportal.io/automation/internal/pkg/crypto"
	apperrors "regportal.io/automation/internal/pkg/errors"
)

// ExportVersion is the only snapshot document version ImportAll accepts.
const ExportVersion = "1.0"

type exportDocument struct {
	Version     string        `json:"version"`
	Timestamp   time.Time     `json:"timestamp"`
	Credentials []exportEntry `json:"credentials"`
}

// exportEntry is encoded as a two-element [id, record] array.
type exportEntry struct {
	ID     string
	Record *Record
}

func (e exportEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.ID, e.Record})
}

func (e *exportEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("credential entry must be [id, record], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.ID); err != nil {
		return fmt.Errorf("credential id: %w", err)
	}
	e.Record = &Record{}
	if err := json.Unmarshal(pair[1], e.Record); err != nil {
		return fmt.Errorf("credential %s: %w", e.ID, err)
	}
	return nil
}

// ExportAll serializes every record (ciphertext only) and seals the whole
// document once more under the vault passphrase. The result is
// base64(JSON{encrypted, salt, iv}).
func (v *Vault) ExportAll() (blob string, err error) {
	defer func() { v.record("export", err) }()

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.encodeLocked()
}

// ImportAll replaces the whole store with the records in blob. On any
// failure the store is left untouched. A wrong passphrase or tampered blob
// yields an integrity error; anything else an import error.
func (v *Vault) ImportAll(blob string) (err error) {
	defer func() { v.record("import", err) }()

	records, err := v.decodeBlob(blob)
	if err != nil {
		v.log.Warn("Vault import rejected", zap.Error(err))
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.records = records
	v.persistLocked("import")
	v.log.Info("Vault imported", zap.Int("records", len(records)))
	return nil
}

func (v *Vault) encodeLocked() (string, error) {
	doc := exportDocument{
		Version:     ExportVersion,
		Timestamp:   v.now().UTC(),
		Credentials: make([]exportEntry, 0, len(v.records)),
	}
	for id, r := range v.records {
		doc.Credentials = append(doc.Credentials, exportEntry{ID: id, Record: r})
	}
	plain, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal vault export: %w", err)
	}

	passphrase, err := v.keys.Passphrase()
	if err != nil {
		return "", err
	}
	sealed, err := v.cipher.Encrypt(string(plain), passphrase)
	if err != nil {
		return "", fmt.Errorf("seal vault export: %w", err)
	}
	wrapped, err := json.Marshal(sealed)
	if err != nil {
		return "", fmt.Errorf("marshal sealed export: %w", err)
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

func (v *Vault) decodeBlob(blob string) (map[string]*Record, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, apperrors.Import("blob is not valid base64", err)
	}
	var sealed crypto.Sealed
	if err := json.Unmarshal(raw, &sealed); err != nil {
		return nil, apperrors.Import("blob envelope is not valid JSON", err)
	}
	if sealed.Ciphertext == "" || sealed.Salt == "" || sealed.IV == "" {
		return nil, apperrors.Import("blob envelope is incomplete", nil)
	}

	passphrase, err := v.keys.Passphrase()
	if err != nil {
		return nil, err
	}
	plain, err := v.cipher.Decrypt(&sealed, passphrase)
	if err != nil {
		return nil, err
	}

	var doc exportDocument
	if err := json.Unmarshal([]byte(plain), &doc); err != nil {
		return nil, apperrors.Import("export document is malformed", err)
	}
	if doc.Version != ExportVersion {
		return nil, apperrors.Import(
			fmt.Sprintf("unsupported export version %q (expected %q)", doc.Version, ExportVersion),
			errors.New("version mismatch"),
		)
	}

	records := make(map[string]*Record, len(doc.Credentials))
	for _, e := range doc.Credentials {
		if e.ID == "" || e.Record == nil {
			return nil, apperrors.Import("export contains an empty credential entry", nil)
		}
		if e.Record.ID == "" {
			e.Record.ID = e.ID
		}
		if e.Record.ID != e.ID {
			return nil, apperrors.Import(fmt.Sprintf("credential key %s does not match record id %s", e.ID, e.Record.ID), nil)
		}
		records[e.ID] = e.Record
	}
	return records, nil
}
