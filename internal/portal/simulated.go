package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"regportal.io/automation/internal/domain"
)

// Filing statuses tracked by the simulated portal.
const (
	FilingSubmitted = "submitted"
	FilingAccepted  = "accepted"
	FilingRejected  = "rejected"
)

// ErrPortalUnreachable is the infrastructure failure SimulatedDriver injects.
var ErrPortalUnreachable = errors.New("portal unreachable")

// Filing is a request the simulated portal has accepted.
type Filing struct {
	Reference string
	System    domain.System
	Action    string
	Status    string
	Documents []string
}

// SimulatedDriver implements Driver in memory, without a browser. It keeps
// the filings it was sent so check-status and download-documents answer
// consistently, and lets tests inject outages and refusals.
type SimulatedDriver struct {
	mu       sync.RWMutex
	filings  map[string]*Filing // key: reference
	seq      int
	outages  map[string]int    // key: system/action, value: remaining failures
	refusals map[string]string // key: system/action, value: reason
	calls    []Script
	latency  time.Duration
}

// NewSimulatedDriver creates a new SimulatedDriver.
func NewSimulatedDriver() *SimulatedDriver {
	return &SimulatedDriver{
		filings:  make(map[string]*Filing),
		outages:  make(map[string]int),
		refusals: make(map[string]string),
	}
}

// WithLatency makes every Run take d unless its context ends first.
func (d *SimulatedDriver) WithLatency(lat time.Duration) *SimulatedDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latency = lat
	return d
}

// Seed populates the simulated portal with existing filings.
func (d *SimulatedDriver) Seed(filings ...*Filing) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range filings {
		d.filings[f.Reference] = f
	}
}

// Reset clears all simulated state.
func (d *SimulatedDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filings = make(map[string]*Filing)
	d.outages = make(map[string]int)
	d.refusals = make(map[string]string)
	d.calls = nil
	d.seq = 0
}

// FailNext makes the next n runs of action on system return ErrPortalUnreachable.
func (d *SimulatedDriver) FailNext(system domain.System, action string, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outages[key(system, action)] = n
}

// Refuse makes every run of action on system come back rejected with reason.
func (d *SimulatedDriver) Refuse(system domain.System, action, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refusals[key(system, action)] = reason
}

// SetStatus moves a filing to status and attaches documents.
func (d *SimulatedDriver) SetStatus(reference, status string, documents ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.filings[reference]
	if !ok {
		return fmt.Errorf("filing %s not found", reference)
	}
	f.Status = status
	f.Documents = append(f.Documents, documents...)
	return nil
}

// Calls returns the scripts run so far, oldest first.
func (d *SimulatedDriver) Calls() []Script {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Script, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *SimulatedDriver) Run(ctx context.Context, s *Script) (*Output, error) {
	d.mu.RLock()
	lat := d.latency
	d.mu.RUnlock()
	if lat > 0 {
		t := time.NewTimer(lat)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, *s)

	k := key(s.System, s.Action)
	if n := d.outages[k]; n > 0 {
		d.outages[k] = n - 1
		return nil, fmt.Errorf("%s: %w", s.BaseURL, ErrPortalUnreachable)
	}
	if reason, ok := d.refusals[k]; ok {
		return &Output{Rejected: true, Reason: reason}, nil
	}

	logs := []string{fmt.Sprintf("simulated %d steps", len(s.Steps))}
	switch in := s.Input.(type) {
	case *LoginPayload:
		return &Output{
			Data: map[string]any{"authenticated": true, "username": s.Credential.Username},
			Logs: logs,
		}, nil
	case *StatusPayload:
		f, ok := d.filings[in.Reference]
		if !ok || f.System != s.System {
			return &Output{Rejected: true, Reason: "reference " + in.Reference + " not found"}, nil
		}
		return &Output{
			Data: map[string]any{"reference": f.Reference, "status": f.Status},
			Logs: logs,
		}, nil
	case *DownloadPayload:
		f, ok := d.filings[in.Reference]
		if !ok || f.System != s.System {
			return &Output{Rejected: true, Reason: "reference " + in.Reference + " not found"}, nil
		}
		docs := filterDocuments(f.Documents, in.Types)
		out := &Output{
			Data: map[string]any{"reference": f.Reference, "documents": docs},
			Logs: logs,
		}
		if len(in.Types) > 0 && len(docs) < len(in.Types) {
			out.Partial = true
			out.Reason = fmt.Sprintf("%d of %d requested document types available", len(docs), len(in.Types))
		}
		return out, nil
	default:
		// Every other action files something new.
		d.seq++
		ref := fmt.Sprintf("%s-%06d", strings.ToUpper(string(s.System)), d.seq)
		d.filings[ref] = &Filing{Reference: ref, System: s.System, Action: s.Action, Status: FilingSubmitted}
		return &Output{
			Data: map[string]any{"reference": ref, "status": FilingSubmitted},
			Logs: append(logs, "filed "+ref),
		}, nil
	}
}

// filterDocuments returns the documents whose type prefix (before ':') is
// in types, or all of them when types is empty.
func filterDocuments(docs, types []string) []string {
	if len(types) == 0 {
		out := make([]string, len(docs))
		copy(out, docs)
		return out
	}
	var out []string
	for _, t := range types {
		for _, doc := range docs {
			if strings.HasPrefix(doc, t+":") {
				out = append(out, doc)
				break
			}
		}
	}
	return out
}

func key(system domain.System, action string) string {
	return string(system) + "/" + action
}
