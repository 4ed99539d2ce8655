package automation

import (
	"context"

	"go.uber.org/zap"

	"regportal.io/automation/internal/domain"
	"regportal.io/automation/internal/pkg/crypto"
	apperrors "regportal.io/automation/internal/pkg/errors"
	"regportal.io/automation/internal/portal"
	"regportal.io/automation/internal/vault"
)

// claimed is a task taken off the queue together with its session.
type claimed struct {
	task    *domain.Task
	session string
}

// claim pops the first task whose session is not paused, marks its session
// running and returns it. It returns nil while another task is in flight.
func (e *Engine) claim(ctx context.Context) *claimed {
	var events []domain.Event

	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return nil
	}
	idx := -1
	for i, t := range e.queue {
		if s := e.openSessionLocked(t.System); s != nil && s.Status == domain.SessionPaused {
			continue
		}
		idx = i
		break
	}
	if idx < 0 {
		e.mu.Unlock()
		return nil
	}
	task := e.queue[idx]
	e.queue = append(e.queue[:idx], e.queue[idx+1:]...)

	sess := e.openSessionLocked(task.System)
	if sess == nil {
		sess = &domain.Session{
			ID:        crypto.RandomID(),
			System:    task.System,
			Status:    domain.SessionIdle,
			StartTime: e.now(),
		}
		e.sessions[sess.ID] = sess
		e.current[task.System] = sess.ID
		events = append(events, domain.Event{Type: domain.EventSessionCreated, Session: sess.Clone()})
	}
	sess.Status = domain.SessionRunning
	sess.CurrentTask = task
	e.busy = true
	depth := len(e.queue)
	events = append(events, domain.Event{Type: domain.EventTaskStarted, Task: task.Clone(), Session: sess.Clone()})
	e.mu.Unlock()

	e.metrics.SetQueueDepth(depth)
	e.publish(ctx, events...)
	return &claimed{task: task, session: sess.ID}
}

// openSessionLocked returns the session currently serving system, if any.
func (e *Engine) openSessionLocked(system domain.System) *domain.Session {
	id, ok := e.current[system]
	if !ok {
		return nil
	}
	s, ok := e.sessions[id]
	if !ok || s.Status == domain.SessionCompleted {
		return nil
	}
	return s
}

// execute runs a claimed task and records the outcome. Executor errors are
// reported as taskError and then handled like a failure result.
func (e *Engine) execute(ctx context.Context, run *claimed) {
	task := run.task
	ex := e.executors[task.System]
	start := e.now()

	e.log.Info("Task started",
		zap.String("task_id", task.ID),
		zap.String("session_id", run.session),
		zap.String("system", string(task.System)),
		zap.String("action", task.Action),
		zap.Int("retry_count", task.RetryCount),
	)

	var cred *vault.Credential
	if ex.RequiresCredential(task.Action) {
		cred = e.resolveCredential(task)
	}

	res, err := ex.Execute(ctx, &portal.Request{Task: task.Clone(), Credential: cred})
	elapsed := e.now().Sub(start)
	if err != nil {
		e.log.Error("Executor failed",
			zap.String("task_id", task.ID),
			zap.String("system", string(task.System)),
			zap.String("action", task.Action),
			zap.Error(err),
		)
		e.publish(ctx, domain.Event{Type: domain.EventTaskError, Task: task.Clone(), Error: err.Error()})
		res = domain.FailureResult(apperrors.CodeExecutorFailure, err.Error(), elapsed)
	} else if res == nil {
		res = domain.FailureResult(apperrors.CodeExecutorFailure, "executor returned no result", elapsed)
	}

	e.metrics.TaskAttempt(string(task.System), string(res.Status), elapsed)
	e.finish(ctx, run, res)
}

// resolveCredential returns the task's credential, or the first usable one
// stored for its system. Nil means none is usable.
func (e *Engine) resolveCredential(task *domain.Task) *vault.Credential {
	if e.creds == nil {
		return nil
	}
	ids := []string{task.CredentialID}
	if task.CredentialID == "" {
		ids = ids[:0]
		for _, s := range e.creds.List(task.System) {
			ids = append(ids, s.ID)
		}
	}
	for _, id := range ids {
		cred, err := e.creds.Retrieve(id)
		if err != nil {
			e.log.Warn("Credential unusable",
				zap.String("task_id", task.ID),
				zap.String("credential_id", id),
				zap.Error(err),
			)
			continue
		}
		if cred != nil {
			return cred
		}
	}
	return nil
}

// finish returns the session to idle and either completes the task or
// requeues it at the very front for another attempt.
func (e *Engine) finish(ctx context.Context, run *claimed, res *domain.Result) {
	task := run.task
	var events []domain.Event
	retried := false

	e.mu.Lock()
	sess := e.sessions[run.session]
	if sess != nil {
		sess.Status = domain.SessionIdle
		sess.CurrentTask = nil
	}
	e.busy = false

	if !res.Failed() {
		if sess != nil {
			sess.TasksCompleted++
		}
		events = append(events, domain.Event{Type: domain.EventTaskCompleted, Task: task.Clone(), Session: sess.Clone(), Result: res})
	} else {
		if sess != nil {
			sess.TasksFailed++
		}
		if !nonRetriable[res.ErrorCode] && task.RetryCount < task.MaxRetries {
			task.RetryCount++
			e.queue = append([]*domain.Task{task}, e.queue...)
			retried = true
			events = append(events, domain.Event{Type: domain.EventTaskRetry, Task: task.Clone(), Session: sess.Clone(), Result: res})
		} else {
			events = append(events, domain.Event{Type: domain.EventTaskCompleted, Task: task.Clone(), Session: sess.Clone(), Result: res})
		}
	}
	depth := len(e.queue)
	e.mu.Unlock()

	fields := []zap.Field{
		zap.String("task_id", task.ID),
		zap.String("session_id", run.session),
		zap.String("system", string(task.System)),
		zap.String("status", string(res.Status)),
		zap.Duration("elapsed", res.ExecutionTime),
	}
	switch {
	case retried:
		e.metrics.TaskRetried(string(task.System))
		e.log.Warn("Task failed, retrying", append(fields,
			zap.Int("retry_count", task.RetryCount),
			zap.Int("max_retries", task.MaxRetries),
			zap.String("error", res.Error),
		)...)
	case res.Failed():
		e.log.Error("Task failed permanently", append(fields,
			zap.String("error_code", res.ErrorCode),
			zap.String("error", res.Error),
		)...)
	default:
		e.log.Info("Task completed", fields...)
	}

	e.metrics.SetQueueDepth(depth)
	e.publish(ctx, events...)
	e.signal()
}

// release undoes a claim whose execution never started.
func (e *Engine) release(run *claimed) {
	e.mu.Lock()
	if sess := e.sessions[run.session]; sess != nil {
		sess.Status = domain.SessionIdle
		sess.CurrentTask = nil
	}
	e.queue = append([]*domain.Task{run.task}, e.queue...)
	e.busy = false
	e.mu.Unlock()
}
