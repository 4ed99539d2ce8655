package vault

import (
	"time"

	"regportal.io/automation/internal/domain"
	"regportal.io/automation/internal/pkg/crypto"
)

// Metadata tracks a record's lifecycle timestamps.
type Metadata struct {
	CreatedAt     time.Time  `json:"createdAt"`
	LastUsedAt    *time.Time `json:"lastUsedAt,omitempty"`
	LastRotatedAt *time.Time `json:"lastRotatedAt,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// Record is a stored credential. Password and MFA seed exist only as
// ciphertext. APIKey is kept in plaintext, matching the existing portal
// integrations; whether it should be sealed too is an open product decision.
type Record struct {
	ID                    string            `json:"id"`
	System                domain.System     `json:"system"`
	AuthMethod            domain.AuthMethod `json:"authMethod"`
	Username              string            `json:"username,omitempty"`
	EncryptedSecret       *crypto.Sealed    `json:"encryptedPassword,omitempty"`
	CertificateReference  string            `json:"certificatePath,omitempty"`
	FederatedProviderHint string            `json:"spidProvider,omitempty"`
	EncryptedMFASeed      *crypto.Sealed    `json:"encryptedMfaSeed,omitempty"`
	APIKey                string            `json:"apiKey,omitempty"`
	Metadata              Metadata          `json:"metadata"`
}

func (r *Record) clone() *Record {
	c := *r
	if r.EncryptedSecret != nil {
		s := *r.EncryptedSecret
		c.EncryptedSecret = &s
	}
	if r.EncryptedMFASeed != nil {
		s := *r.EncryptedMFASeed
		c.EncryptedMFASeed = &s
	}
	c.Metadata.LastUsedAt = cloneTime(r.Metadata.LastUsedAt)
	c.Metadata.LastRotatedAt = cloneTime(r.Metadata.LastRotatedAt)
	c.Metadata.ExpiresAt = cloneTime(r.Metadata.ExpiresAt)
	return &c
}

func (r *Record) expired(now time.Time) bool {
	return r.Metadata.ExpiresAt != nil && !now.Before(*r.Metadata.ExpiresAt)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Fields is the input to Store.
type Fields struct {
	Username              string
	Password              string
	CertificateReference  string
	FederatedProviderHint string
	MFASeed               string
	APIKey                string
	ExpiresAt             *time.Time
}

// Update carries the fields to change; nil leaves a field as it is.
type Update struct {
	Username             *string
	Password             *string
	CertificateReference *string
	MFASeed              *string
	APIKey               *string
	ExpiresAt            *time.Time
}

// Credential is the decrypted view returned by Retrieve. It is the only
// value that ever carries plaintext secret material out of the vault.
type Credential struct {
	ID                    string
	System                domain.System
	AuthMethod            domain.AuthMethod
	Username              string
	Password              string
	CertificateReference  string
	FederatedProviderHint string
	MFASeed               string
	APIKey                string
	Metadata              Metadata
}

// Summary is the listing view of a record. It never carries secret fields.
type Summary struct {
	ID         string            `json:"id"`
	System     domain.System     `json:"system"`
	AuthMethod domain.AuthMethod `json:"auth_method"`
	Username   string            `json:"username,omitempty"`
	Metadata   Metadata          `json:"metadata"`
}

// requiredFields returns the names of the fields auth method m needs that are
// absent from r.
func requiredFields(m domain.AuthMethod, r *Record) []string {
	var missing []string
	need := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}
	switch m {
	case domain.AuthPassword:
		need("username", r.Username != "")
		need("password", r.EncryptedSecret != nil)
	case domain.AuthCertificate:
		need("certificateReference", r.CertificateReference != "")
	case domain.AuthFederated:
		need("federatedProviderHint", r.FederatedProviderHint != "")
		need("username", r.Username != "")
		need("password", r.EncryptedSecret != nil)
	case domain.AuthAPIKey:
		need("apiKey", r.APIKey != "")
	}
	return missing
}
