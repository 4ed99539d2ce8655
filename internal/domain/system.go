// Package domain holds the types shared by the vault, the automation engine
// and the portal executors.
package domain

import "strings"

// System identifies an external regulatory portal.
type System string

const (
	SystemGSE     System = "gse"
	SystemTerna   System = "terna"
	SystemDSO     System = "dso"
	SystemCustoms System = "customs"
)

// KnownSystems lists every portal the service ships an executor for.
var KnownSystems = []System{SystemGSE, SystemTerna, SystemDSO, SystemCustoms}

// ParseSystem normalizes s and reports whether it is a known portal.
func ParseSystem(s string) (System, bool) {
	sys := System(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range KnownSystems {
		if k == sys {
			return sys, true
		}
	}
	return sys, false
}

// AuthMethod is the mechanism a credential authenticates with.
type AuthMethod string

const (
	AuthFederated   AuthMethod = "federated"   // federated identity login (SPID-style)
	AuthSmartcard   AuthMethod = "smartcard"   // national smartcard identity
	AuthPassword    AuthMethod = "password"    // username/password
	AuthCertificate AuthMethod = "certificate" // X.509 certificate reference
	AuthAPIKey      AuthMethod = "api_key"
)

// Valid reports whether m is one of the supported auth methods.
func (m AuthMethod) Valid() bool {
	switch m {
	case AuthFederated, AuthSmartcard, AuthPassword, AuthCertificate, AuthAPIKey:
		return true
	}
	return false
}
