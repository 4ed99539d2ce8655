package portal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regportal.io/automation/internal/domain"
	apperrors "regportal.io/automation/internal/pkg/errors"
	"regportal.io/automation/internal/pkg/logger"
	"regportal.io/automation/internal/vault"
)

func init() {
	_ = logger.Init("error", "json")
}

var testCred = &vault.Credential{ID: "cred-1", System: domain.SystemGSE, AuthMethod: domain.AuthPassword, Username: "operator", Password: "pw"}

func newExecutor(t *testing.T, system domain.System) (*Executor, *SimulatedDriver) {
	t.Helper()
	driver := NewSimulatedDriver()
	exec, err := New(system, "https://portal.example.test/", driver)
	require.NoError(t, err)
	return exec, driver
}

func run(t *testing.T, exec *Executor, action string, payload domain.Payload, cred *vault.Credential) *domain.Result {
	t.Helper()
	res, err := exec.Execute(context.Background(), &Request{
		Task:       &domain.Task{ID: "t-" + action, System: exec.System(), Action: action, Payload: payload, Timeout: time.Second},
		Credential: cred,
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestNew_UnknownSystem(t *testing.T) {
	_, err := New(domain.System("inps"), "https://x", NewSimulatedDriver())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownSystem))

	_, err = New(domain.SystemGSE, "https://x", nil)
	assert.Error(t, err)
}

func TestExecutor_ActionTables(t *testing.T) {
	tests := []struct {
		system domain.System
		want   []string
	}{
		{domain.SystemGSE, []string{"check-status", "download-documents", "login", "submit-declaration"}},
		{domain.SystemTerna, []string{"check-status", "download-documents", "login", "register-plant", "submit-declaration"}},
		{domain.SystemDSO, []string{"check-status", "download-documents", "login", "submit-connection-request", "submit-declaration"}},
		{domain.SystemCustoms, []string{"check-status", "download-documents", "login", "submit-declaration"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.system), func(t *testing.T) {
			exec, _ := newExecutor(t, tt.system)
			assert.Equal(t, tt.want, exec.Actions())
			for _, a := range tt.want {
				assert.True(t, exec.Supports(a))
				assert.True(t, exec.RequiresCredential(a))
			}
			assert.False(t, exec.Supports("delete-everything"))
		})
	}
}

func TestExecutor_UnsupportedActionIsTypedFailure(t *testing.T) {
	exec, driver := newExecutor(t, domain.SystemGSE)

	res := run(t, exec, "register-plant", nil, testCred)
	assert.Equal(t, domain.ResultFailure, res.Status)
	assert.Equal(t, apperrors.CodeUnsupportedAction, res.ErrorCode)
	assert.Empty(t, driver.Calls(), "driver must not run for unsupported actions")

	err := exec.ValidatePayload("register-plant", nil)
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedAction))
}

func TestExecutor_ValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		system  domain.System
		action  string
		payload domain.Payload
		wantErr bool
		field   string
	}{
		{"login without payload", domain.SystemGSE, ActionLogin, nil, false, ""},
		{"login rejects unknown keys", domain.SystemGSE, ActionLogin, domain.Payload{"foo": 1}, true, ""},
		{"declaration ok", domain.SystemGSE, ActionSubmitDeclaration, domain.Payload{"kind": "RID", "period": "2026-09"}, false, ""},
		{"declaration bad period", domain.SystemGSE, ActionSubmitDeclaration, domain.Payload{"kind": "RID", "period": "09/2026"}, true, "period"},
		{"declaration missing kind", domain.SystemGSE, ActionSubmitDeclaration, domain.Payload{"period": "2026-09"}, true, "kind"},
		{"status needs reference", domain.SystemDSO, ActionCheckStatus, domain.Payload{}, true, "reference"},
		{"download with csv types", domain.SystemGSE, ActionDownloadDocuments, domain.Payload{"reference": "GSE-1", "types": "receipt,invoice"}, false, ""},
		{"download with since", domain.SystemGSE, ActionDownloadDocuments, domain.Payload{"reference": "GSE-1", "since": "2026-01-02T15:04:05Z"}, false, ""},
		{"plant ok with string power", domain.SystemTerna, ActionRegisterPlant, domain.Payload{
			"plantName": "Campo Sud", "technology": "solar", "powerKw": "950.5", "pod": "IT001E12345678", "municipality": "Lecce",
		}, false, ""},
		{"plant bad technology", domain.SystemTerna, ActionRegisterPlant, domain.Payload{
			"plantName": "Campo Sud", "technology": "fusion", "powerKw": 10, "pod": "IT001E12345678", "municipality": "Lecce",
		}, true, "technology"},
		{"connection zero power", domain.SystemDSO, ActionSubmitConnectionRequest, domain.Payload{
			"kind": "new", "requestedPowerKw": 0, "address": "Via Roma 1",
		}, true, "requestedPowerKw"},
		{"customs ok", domain.SystemCustoms, ActionSubmitDeclaration, domain.Payload{
			"regime": "import", "eori": "IT12345678901", "goodsCode": "85414300", "value": 12000, "currency": "EUR",
		}, false, ""},
		{"customs bad regime", domain.SystemCustoms, ActionSubmitDeclaration, domain.Payload{
			"regime": "smuggle", "eori": "IT12345678901", "goodsCode": "85414300", "value": 1,
		}, true, "regime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, _ := newExecutor(t, tt.system)
			err := exec.ValidatePayload(tt.action, tt.payload)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			appErr, ok := apperrors.IsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.CodeInvalidPayload, appErr.Code)
			assert.True(t, errors.Is(err, apperrors.ErrValidation))
			if tt.field != "" {
				require.NotEmpty(t, appErr.FieldErrors)
				assert.Equal(t, tt.field, appErr.FieldErrors[0].Field)
			}
		})
	}
}

func TestExecutor_MissingCredential(t *testing.T) {
	exec, driver := newExecutor(t, domain.SystemGSE)
	res := run(t, exec, ActionLogin, nil, nil)
	assert.Equal(t, domain.ResultFailure, res.Status)
	assert.Equal(t, apperrors.CodeCredentialUnavail, res.ErrorCode)
	assert.Empty(t, driver.Calls())
}

func TestExecutor_SubmitThenCheckAndDownload(t *testing.T) {
	exec, driver := newExecutor(t, domain.SystemGSE)

	res := run(t, exec, ActionSubmitDeclaration, domain.Payload{"kind": "RID", "period": "2026-09", "attachments": []string{"a.pdf"}}, testCred)
	require.Equal(t, domain.ResultSuccess, res.Status)
	ref, _ := res.Data["reference"].(string)
	assert.Equal(t, "GSE-000001", ref)

	calls := driver.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://portal.example.test", calls[0].BaseURL)
	assert.Equal(t, Step{Op: "authenticate", Target: "credential"}, calls[0].Steps[1])
	assert.Equal(t, Step{Op: "submit", Target: "declaration"}, calls[0].Steps[len(calls[0].Steps)-1])

	res = run(t, exec, ActionCheckStatus, domain.Payload{"reference": ref}, testCred)
	require.Equal(t, domain.ResultSuccess, res.Status)
	assert.Equal(t, FilingSubmitted, res.Data["status"])

	require.NoError(t, driver.SetStatus(ref, FilingAccepted, "receipt:r1.pdf"))

	res = run(t, exec, ActionDownloadDocuments, domain.Payload{"reference": ref, "types": []string{"receipt", "certificate"}}, testCred)
	assert.Equal(t, domain.ResultPartial, res.Status)
	assert.Equal(t, []string{"receipt:r1.pdf"}, res.Data["documents"])
	assert.False(t, res.Failed())

	res = run(t, exec, ActionDownloadDocuments, domain.Payload{"reference": ref}, testCred)
	assert.Equal(t, domain.ResultSuccess, res.Status)
}

func TestExecutor_RejectionAndUnknownReference(t *testing.T) {
	exec, driver := newExecutor(t, domain.SystemTerna)

	res := run(t, exec, ActionCheckStatus, domain.Payload{"reference": "TERNA-999999"}, testCred)
	assert.Equal(t, domain.ResultFailure, res.Status)
	assert.Equal(t, apperrors.CodePortalRejected, res.ErrorCode)

	driver.Refuse(domain.SystemTerna, ActionLogin, "account locked")
	res = run(t, exec, ActionLogin, nil, testCred)
	assert.Equal(t, apperrors.CodePortalRejected, res.ErrorCode)
	assert.Equal(t, "account locked", res.Error)
}

func TestExecutor_InfrastructureFailureIsError(t *testing.T) {
	exec, driver := newExecutor(t, domain.SystemDSO)
	driver.FailNext(domain.SystemDSO, ActionLogin, 1)

	_, err := exec.Execute(context.Background(), &Request{
		Task:       &domain.Task{ID: "t1", System: domain.SystemDSO, Action: ActionLogin},
		Credential: testCred,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPortalUnreachable))

	res := run(t, exec, ActionLogin, nil, testCred)
	assert.Equal(t, domain.ResultSuccess, res.Status)
	assert.Equal(t, "operator", res.Data["username"])
}

func TestExecutor_TimeoutIsEnforced(t *testing.T) {
	driver := NewSimulatedDriver().WithLatency(time.Second)
	exec, err := New(domain.SystemCustoms, "https://customs.example.test", driver)
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), &Request{
		Task:       &domain.Task{ID: "slow", System: domain.SystemCustoms, Action: ActionLogin, Timeout: 20 * time.Millisecond},
		Credential: testCred,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "timed out")
}

func TestSimulatedDriver_Reset(t *testing.T) {
	driver := NewSimulatedDriver()
	driver.Seed(&Filing{Reference: "GSE-1", System: domain.SystemGSE, Status: FilingAccepted})
	require.NoError(t, driver.SetStatus("GSE-1", FilingRejected))
	driver.Reset()
	assert.Error(t, driver.SetStatus("GSE-1", FilingAccepted))
	assert.Empty(t, driver.Calls())
}
