// Package portal implements the per-system portal executors.
//
// An Executor owns the action table for one external system: which actions
// exist, which need a login, how the free-form task payload decodes into a
// typed input, and which scripted steps the action runs. The scripted
// interaction itself is delegated to a Driver.
package portal

import (
	"context"

	"regportal.io/automation/internal/domain"
	"regportal.io/automation/internal/vault"
)

// Step is one scripted interaction with a portal page.
type Step struct {
	Op     string `json:"op"` // navigate, authenticate, fill, submit, read, download
	Target string `json:"target"`
}

// Script is the full interaction a Driver runs for one task attempt.
type Script struct {
	System     domain.System
	BaseURL    string
	Action     string
	Steps      []Step
	Credential *vault.Credential
	// Input is the decoded, validated action payload (one of the *Payload types).
	Input any
}

// Output is what a Driver observed on the portal.
type Output struct {
	Data map[string]any
	// Rejected is set when the portal answered but refused the request.
	Rejected bool
	Reason   string
	// Partial is set when only part of the requested work completed.
	Partial bool
	Logs    []string
}

// Driver runs scripts against a live portal. Returned errors are
// infrastructure failures (unreachable portal, browser crash, timeout);
// business refusals are reported through Output.Rejected.
type Driver interface {
	Run(ctx context.Context, script *Script) (*Output, error)
}
