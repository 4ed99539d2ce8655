// Package vault stores third-party portal credentials with their secret
// fields encrypted at rest.
//
// A Vault is an in-memory map guarded by a mutex. After every mutation the
// configured Persister receives an encrypted snapshot (the same blob
// ExportAll produces); without a Persister the state lives only in memory.
package vault

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"regportal.io/automation/internal/domain"
	"regportal.io/automation/internal/pkg/crypto"
	apperrors "regportal.io/automation/internal/pkg/errors"
	"regportal.io/automation/internal/pkg/logger"
)

// DefaultRotationThresholdDays is the password age after which rotation is due.
const DefaultRotationThresholdDays = 90

// OpsRecorder observes vault operations (metrics).
type OpsRecorder interface {
	VaultOperation(op string, err error)
}

// Vault is the credential store.
type Vault struct {
	mu      sync.Mutex
	records map[string]*Record

	cipher    *crypto.Cipher
	keys      KeyProvider
	persister Persister
	ops       OpsRecorder
	now       func() time.Time
	log       *zap.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithPersister stores a snapshot after every mutation and loads the last
// snapshot on New.
func WithPersister(p Persister) Option {
	return func(v *Vault) { v.persister = p }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// WithOpsRecorder reports every operation to r.
func WithOpsRecorder(r OpsRecorder) Option {
	return func(v *Vault) { v.ops = r }
}

// New creates a Vault. If a Persister is configured and holds a snapshot, the
// snapshot is imported before New returns.
func New(c *crypto.Cipher, keys KeyProvider, opts ...Option) (*Vault, error) {
	v := &Vault{
		records: make(map[string]*Record),
		cipher:  c,
		keys:    keys,
		now:     time.Now,
		log:     logger.Component("vault"),
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.persister != nil {
		blob, err := v.persister.Load()
		if err != nil {
			return nil, apperrors.Import("load vault snapshot", err)
		}
		if blob != "" {
			records, err := v.decodeBlob(blob)
			if err != nil {
				return nil, err
			}
			v.records = records
			v.log.Info("Vault snapshot loaded", zap.Int("records", len(records)))
		}
	}
	return v, nil
}

// Store validates and seals a new credential and returns its id.
func (v *Vault) Store(system domain.System, method domain.AuthMethod, f Fields) (id string, err error) {
	defer func() { v.record("store", err) }()

	if system == "" {
		return "", apperrors.MissingFields("system")
	}
	if !method.Valid() {
		return "", apperrors.BadRequest(apperrors.CodeInvalidAuthMethod, "unsupported auth method "+string(method))
	}

	rec := &Record{
		System:                system,
		AuthMethod:            method,
		Username:              f.Username,
		CertificateReference:  f.CertificateReference,
		FederatedProviderHint: f.FederatedProviderHint,
		APIKey:                f.APIKey,
		Metadata:              Metadata{ExpiresAt: cloneTime(f.ExpiresAt)},
	}

	// Check presence before paying for key derivation.
	probe := *rec
	if f.Password != "" {
		probe.EncryptedSecret = &crypto.Sealed{}
	}
	if missing := requiredFields(method, &probe); len(missing) > 0 {
		return "", apperrors.MissingFields(missing...)
	}

	passphrase, err := v.keys.Passphrase()
	if err != nil {
		return "", err
	}
	if f.Password != "" {
		if rec.EncryptedSecret, err = v.cipher.Encrypt(f.Password, passphrase); err != nil {
			return "", err
		}
	}
	if f.MFASeed != "" {
		if rec.EncryptedMFASeed, err = v.cipher.Encrypt(f.MFASeed, passphrase); err != nil {
			return "", err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for {
		rec.ID = crypto.RandomID()
		if _, taken := v.records[rec.ID]; !taken {
			break
		}
	}
	rec.Metadata.CreatedAt = v.now()
	v.records[rec.ID] = rec
	v.persistLocked("store")

	v.log.Info("Credential stored",
		zap.String("credential_id", rec.ID),
		zap.String("system", string(system)),
		zap.String("auth_method", string(method)),
	)
	return rec.ID, nil
}

// Retrieve decrypts and returns a credential, stamping its last use. It
// returns (nil, nil) when id is unknown or expired; expired records are
// purged.
func (v *Vault) Retrieve(id string) (cred *Credential, err error) {
	defer func() { v.record("retrieve", err) }()

	v.mu.Lock()
	defer v.mu.Unlock()

	rec, ok := v.records[id]
	if !ok {
		return nil, nil
	}
	now := v.now()
	if rec.expired(now) {
		delete(v.records, id)
		v.persistLocked("purge-expired")
		v.log.Info("Expired credential purged", zap.String("credential_id", id))
		return nil, nil
	}

	cred = &Credential{
		ID:                    rec.ID,
		System:                rec.System,
		AuthMethod:            rec.AuthMethod,
		Username:              rec.Username,
		CertificateReference:  rec.CertificateReference,
		FederatedProviderHint: rec.FederatedProviderHint,
		APIKey:                rec.APIKey,
	}
	if rec.EncryptedSecret != nil || rec.EncryptedMFASeed != nil {
		passphrase, err := v.keys.Passphrase()
		if err != nil {
			return nil, err
		}
		if rec.EncryptedSecret != nil {
			if cred.Password, err = v.cipher.Decrypt(rec.EncryptedSecret, passphrase); err != nil {
				v.log.Error("Credential failed integrity check", zap.String("credential_id", id), zap.Error(err))
				return nil, err
			}
		}
		if rec.EncryptedMFASeed != nil {
			if cred.MFASeed, err = v.cipher.Decrypt(rec.EncryptedMFASeed, passphrase); err != nil {
				v.log.Error("Credential failed integrity check", zap.String("credential_id", id), zap.Error(err))
				return nil, err
			}
		}
	}

	rec.Metadata.LastUsedAt = &now
	v.persistLocked("retrieve")
	cred.Metadata = rec.clone().Metadata
	return cred, nil
}

// Update applies u to the record. It returns false when id is unknown. A new
// password is re-sealed and refreshes LastRotatedAt.
func (v *Vault) Update(id string, u Update) (ok bool, err error) {
	defer func() { v.record("update", err) }()

	v.mu.Lock()
	defer v.mu.Unlock()

	cur, exists := v.records[id]
	if !exists {
		return false, nil
	}

	next := cur.clone()
	if u.Username != nil {
		next.Username = *u.Username
	}
	if u.CertificateReference != nil {
		next.CertificateReference = *u.CertificateReference
	}
	if u.APIKey != nil {
		next.APIKey = *u.APIKey
	}
	if u.ExpiresAt != nil {
		next.Metadata.ExpiresAt = cloneTime(u.ExpiresAt)
	}
	if u.Password != nil && *u.Password == "" {
		return false, apperrors.MissingFields("password")
	}
	if missing := requiredFields(next.AuthMethod, next); len(missing) > 0 {
		return false, apperrors.MissingFields(missing...)
	}

	if u.Password != nil || u.MFASeed != nil {
		passphrase, err := v.keys.Passphrase()
		if err != nil {
			return false, err
		}
		if u.Password != nil {
			if next.EncryptedSecret, err = v.cipher.Encrypt(*u.Password, passphrase); err != nil {
				return false, err
			}
			now := v.now()
			next.Metadata.LastRotatedAt = &now
		}
		if u.MFASeed != nil {
			next.EncryptedMFASeed = nil
			if *u.MFASeed != "" {
				if next.EncryptedMFASeed, err = v.cipher.Encrypt(*u.MFASeed, passphrase); err != nil {
					return false, err
				}
			}
		}
	}

	v.records[id] = next
	v.persistLocked("update")
	v.log.Info("Credential updated",
		zap.String("credential_id", id),
		zap.Bool("password_rotated", u.Password != nil),
	)
	return true, nil
}

// RotatePassword replaces the password and stamps LastRotatedAt.
func (v *Vault) RotatePassword(id, newPassword string) (bool, error) {
	return v.Update(id, Update{Password: &newPassword})
}

// Delete removes a record and reports whether it existed.
func (v *Vault) Delete(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, ok := v.records[id]
	if ok {
		delete(v.records, id)
		v.persistLocked("delete")
		v.log.Info("Credential deleted", zap.String("credential_id", id))
	}
	v.record("delete", nil)
	return ok
}

// List returns summaries ordered by creation time, optionally filtered by
// system. Secret fields are never included.
func (v *Vault) List(system domain.System) []Summary {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Summary, 0, len(v.records))
	for _, r := range v.records {
		if system != "" && r.System != system {
			continue
		}
		out = append(out, Summary{
			ID:         r.ID,
			System:     r.System,
			AuthMethod: r.AuthMethod,
			Username:   r.Username,
			Metadata:   r.clone().Metadata,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Metadata.CreatedAt.Equal(out[j].Metadata.CreatedAt) {
			return out[i].Metadata.CreatedAt.Before(out[j].Metadata.CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// NeedsRotation reports whether more than thresholdDays whole days have
// passed since the password was last rotated (or created). Unknown ids
// report false.
func (v *Vault) NeedsRotation(id string, thresholdDays int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	r, ok := v.records[id]
	if !ok {
		return false
	}
	ref := r.Metadata.CreatedAt
	if r.Metadata.LastRotatedAt != nil {
		ref = *r.Metadata.LastRotatedAt
	}
	days := int(v.now().Sub(ref) / (24 * time.Hour))
	return days > thresholdDays
}

// PurgeExpired drops every expired record and returns how many were removed.
func (v *Vault) PurgeExpired() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	n := 0
	for id, r := range v.records {
		if r.expired(now) {
			delete(v.records, id)
			n++
		}
	}
	if n > 0 {
		v.persistLocked("purge-expired")
		v.log.Info("Expired credentials purged", zap.Int("count", n))
	}
	return n
}

// Len returns the number of stored records, expired ones included.
func (v *Vault) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.records)
}

// persistLocked hands a snapshot to the Persister. Failures are logged and
// the in-memory state is kept; callers are not failed for a storage outage.
func (v *Vault) persistLocked(op string) {
	if v.persister == nil {
		v.log.Debug("Vault state changed (in-memory only)",
			zap.String("op", op),
			zap.Int("records", len(v.records)),
		)
		return
	}
	blob, err := v.encodeLocked()
	if err == nil {
		err = v.persister.Persist(blob)
	}
	if err != nil {
		v.log.Error("Vault persistence failed",
			zap.String("op", op),
			zap.String("code", apperrors.CodePersistenceDegraded),
			zap.Error(err),
		)
		v.record("persist", err)
	}
}

func (v *Vault) record(op string, err error) {
	if v.ops != nil {
		v.ops.VaultOperation(op, err)
	}
}
