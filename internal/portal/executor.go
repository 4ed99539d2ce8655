package portal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"regportal.io/automation/internal/domain"
	apperrors "regportal.io/automation/internal/pkg/errors"
	"regportal.io/automation/internal/pkg/logger"
	"regportal.io/automation/internal/vault"
)

// Common action names. Systems add their own on top.
const (
	ActionLogin             = "login"
	ActionSubmitDeclaration = "submit-declaration"
	ActionCheckStatus       = "check-status"
	ActionDownloadDocuments = "download-documents"
)

// Request is one task attempt handed to an executor.
type Request struct {
	Task *domain.Task
	// Credential is nil when the action does not need a login.
	Credential *vault.Credential
}

type actionSpec struct {
	needsLogin bool
	input      func() any
	steps      func(in any) []Step
}

// Executor runs the actions of one portal through a Driver.
type Executor struct {
	system  domain.System
	baseURL string
	driver  Driver
	actions map[string]actionSpec
	now     func() time.Time
	log     *zap.Logger
}

// New builds the executor for system. It fails for a system no action table exists for.
func New(system domain.System, baseURL string, driver Driver) (*Executor, error) {
	var actions map[string]actionSpec
	switch system {
	case domain.SystemGSE:
		actions = gseActions()
	case domain.SystemTerna:
		actions = ternaActions()
	case domain.SystemDSO:
		actions = dsoActions()
	case domain.SystemCustoms:
		actions = customsActions()
	default:
		return nil, apperrors.ErrUnknownSystemf(string(system))
	}
	if driver == nil {
		return nil, fmt.Errorf("portal %s: driver is required", system)
	}
	return &Executor{
		system:  system,
		baseURL: strings.TrimRight(baseURL, "/"),
		driver:  driver,
		actions: actions,
		now:     time.Now,
		log:     logger.Component("portal", zap.String("system", string(system))),
	}, nil
}

// System returns the portal this executor drives.
func (e *Executor) System() domain.System { return e.system }

// Supports reports whether action exists for this portal.
func (e *Executor) Supports(action string) bool {
	_, ok := e.actions[action]
	return ok
}

// RequiresCredential reports whether action runs behind a portal login.
func (e *Executor) RequiresCredential(action string) bool {
	return e.actions[action].needsLogin
}

// Actions lists supported actions in sorted order.
func (e *Executor) Actions() []string {
	names := make([]string, 0, len(e.actions))
	for name := range e.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidatePayload decodes and validates payload for action without running it.
func (e *Executor) ValidatePayload(action string, payload domain.Payload) error {
	spec, ok := e.actions[action]
	if !ok {
		return apperrors.ErrUnsupportedActionf(string(e.system), action)
	}
	return decodePayload(payload, spec.input())
}

// Execute runs one attempt of req.Task.
//
// Unsupported actions, invalid payloads, a missing credential and portal
// refusals come back as failure results. A returned error means the portal
// could not be driven at all.
func (e *Executor) Execute(ctx context.Context, req *Request) (*domain.Result, error) {
	start := e.now()
	task := req.Task
	elapsed := func() time.Duration { return e.now().Sub(start) }

	spec, ok := e.actions[task.Action]
	if !ok {
		return domain.FailureResult(apperrors.CodeUnsupportedAction,
			fmt.Sprintf("action %q is not supported by the %s portal", task.Action, e.system), elapsed()), nil
	}

	input := spec.input()
	if err := decodePayload(task.Payload, input); err != nil {
		return domain.FailureResult(apperrors.CodeInvalidPayload, err.Error(), elapsed()), nil
	}
	if spec.needsLogin && req.Credential == nil {
		return domain.FailureResult(apperrors.CodeCredentialUnavail,
			"no usable credential for the "+string(e.system)+" portal", elapsed()), nil
	}

	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	script := &Script{
		System:     e.system,
		BaseURL:    e.baseURL,
		Action:     task.Action,
		Steps:      e.script(spec, input),
		Credential: req.Credential,
		Input:      input,
	}
	logs := []string{fmt.Sprintf("running %s on %s (%d steps)", task.Action, e.baseURL, len(script.Steps))}

	out, err := e.driver.Run(ctx, script)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%s %s timed out after %s: %w", e.system, task.Action, task.Timeout, err)
		}
		e.log.Warn("Portal driver failed",
			zap.String("task_id", task.ID),
			zap.String("action", task.Action),
			zap.Error(err),
		)
		return nil, err
	}
	logs = append(logs, out.Logs...)

	switch {
	case out.Rejected:
		e.log.Info("Portal rejected request",
			zap.String("task_id", task.ID),
			zap.String("action", task.Action),
			zap.String("reason", out.Reason),
		)
		res := domain.FailureResult(apperrors.CodePortalRejected, out.Reason, elapsed(), logs...)
		res.Data = out.Data
		return res, nil
	case out.Partial:
		return &domain.Result{
			Status:        domain.ResultPartial,
			Data:          out.Data,
			Error:         out.Reason,
			ExecutionTime: elapsed(),
			Logs:          logs,
		}, nil
	}
	return &domain.Result{
		Status:        domain.ResultSuccess,
		Data:          out.Data,
		ExecutionTime: elapsed(),
		Logs:          logs,
	}, nil
}

// script prefixes the action steps with the portal login when needed.
func (e *Executor) script(spec actionSpec, input any) []Step {
	var steps []Step
	if spec.needsLogin {
		steps = append(steps, Step{Op: "navigate", Target: "/login"}, Step{Op: "authenticate", Target: "credential"})
	}
	if spec.steps != nil {
		steps = append(steps, spec.steps(input)...)
	}
	return steps
}

func loginAction() actionSpec {
	return actionSpec{
		needsLogin: true,
		input:      func() any { return &LoginPayload{} },
	}
}

func statusAction(page string) actionSpec {
	return actionSpec{
		needsLogin: true,
		input:      func() any { return &StatusPayload{} },
		steps: func(in any) []Step {
			p := in.(*StatusPayload)
			return []Step{
				{Op: "navigate", Target: page},
				{Op: "fill", Target: "reference=" + p.Reference},
				{Op: "read", Target: "status"},
			}
		},
	}
}

func downloadAction(page string) actionSpec {
	return actionSpec{
		needsLogin: true,
		input:      func() any { return &DownloadPayload{} },
		steps: func(in any) []Step {
			p := in.(*DownloadPayload)
			return []Step{
				{Op: "navigate", Target: page + "/" + p.Reference},
				{Op: "download", Target: strings.Join(p.Types, ",")},
			}
		},
	}
}
