// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the task lifecycle: the task store, the task
// manager state machine and the per-run event stream.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jllopis/agora/pkg/a2a"
	"github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EmptyResponseMessage is recorded when the reasoning step returns nothing.
const EmptyResponseMessage = "empty response"

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics attaches protocol metrics.
func WithMetrics(metrics *telemetry.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithRunTimeout bounds every reasoning run. Zero disables the bound.
func WithRunTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout >= 0 {
			m.runTimeout = timeout
		}
	}
}

// WithIDGenerator overrides task and session id generation.
func WithIDGenerator(fn func() string) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// Manager drives the lifecycle of tasks owned by this agent.
type Manager struct {
	store      TaskStore
	executor   Executor
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
	runTimeout time.Duration
	newID      func() string

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewManager builds a manager over an injected store and executor.
func NewManager(store TaskStore, executor Executor, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, stderrors.New("task store is required")
	}
	if executor == nil {
		return nil, stderrors.New("executor is required")
	}
	m := &Manager{
		store:    store,
		executor: executor,
		logger:   slog.Default(),
		tracer:   otel.Tracer("agora/a2a/server"),
		newID:    uuid.NewString,
		inflight: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// run is one claimed processing run of a task.
type run struct {
	taskID    string
	sessionID string
	message   a2a.Message
	history   []a2a.Message
	ctx       context.Context
	cancel    context.CancelFunc
	start     time.Time
}

// Send processes a message synchronously and returns the updated task.
func (m *Manager) Send(ctx context.Context, params a2a.TaskSendParams) (*a2a.Task, error) {
	ctx, span := m.tracer.Start(ctx, "Task.Send")
	defer span.End()

	r, err := m.begin(ctx, params)
	if err != nil {
		m.recordError(ctx, span, err)
		return nil, err
	}
	defer m.release(r)
	span.SetAttributes(attribute.String(telemetry.AttrTaskID, r.taskID))

	task := m.execute(r, nil)
	return trimHistory(task, params.HistoryLength), nil
}

// SendSubscribe starts processing and returns the stream of status events.
// Request validation and claim errors are returned synchronously; failures of
// the run itself arrive as a final failed event.
func (m *Manager) SendSubscribe(ctx context.Context, params a2a.TaskSendParams) (*Stream, error) {
	ctx, span := m.tracer.Start(ctx, "Task.SendSubscribe")
	r, err := m.begin(ctx, params)
	if err != nil {
		m.recordError(ctx, span, err)
		span.End()
		return nil, err
	}
	span.SetAttributes(attribute.String(telemetry.AttrTaskID, r.taskID))

	stream := newStream()
	go func() {
		defer span.End()
		defer stream.finish()
		defer m.release(r)

		// Cancel and the run timeout end r.ctx; only the consumer leaving
		// stops emission, so the final event is always delivered.
		emitCtx := context.WithoutCancel(r.ctx)
		streaming := true
		send := func(ev a2a.StatusUpdateEvent) {
			if !streaming {
				return
			}
			if err := stream.emit(emitCtx, ev); err != nil {
				streaming = false
				m.logger.DebugContext(emitCtx, "task.stream.detached",
					slog.String("task_id", r.taskID),
					slog.String("reason", err.Error()),
				)
			}
		}

		send(a2a.StatusUpdateEvent{
			ID:        r.taskID,
			SessionID: r.sessionID,
			Status:    a2a.TaskStatus{State: a2a.TaskStateWorking, Timestamp: time.Now().UTC()},
		})
		progress := func(text string) {
			msg := a2a.NewTextMessage(a2a.RoleAgent, text)
			send(a2a.StatusUpdateEvent{
				ID:        r.taskID,
				SessionID: r.sessionID,
				Status:    a2a.TaskStatus{State: a2a.TaskStateWorking, Message: &msg, Timestamp: msg.Timestamp},
			})
		}

		task := m.execute(r, progress)
		final := trimHistory(task.Clone(), params.HistoryLength)
		send(a2a.StatusUpdateEvent{
			ID:        r.taskID,
			SessionID: r.sessionID,
			Status:    task.Status,
			Final:     true,
			Task:      final,
		})
	}()
	return stream, nil
}

// Get returns the task.
func (m *Manager) Get(ctx context.Context, taskID string, historyLength int) (*a2a.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, errors.InvalidInput("task id is required")
	}
	return m.store.Get(ctx, taskID, historyLength)
}

// Cancel fails a non-terminal task and signals its in-flight run to stop.
// The run is not interrupted; its later writes are discarded.
func (m *Manager) Cancel(ctx context.Context, taskID string) (*a2a.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, errors.InvalidInput("task id is required")
	}
	task, err := m.store.Cancel(ctx, taskID, "task canceled by request")
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	cancel := m.inflight[taskID]
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.metrics.RecordTask(ctx, string(a2a.TaskStateFailed))
	m.logger.InfoContext(ctx, "task.cancel", slog.String("task_id", taskID))
	return task, nil
}

// InFlight reports whether a run currently holds the task.
func (m *Manager) InFlight(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[taskID]
	return ok
}

// begin validates params, claims the task and moves it to working.
func (m *Manager) begin(ctx context.Context, params a2a.TaskSendParams) (*run, error) {
	if err := validateSendParams(params); err != nil {
		return nil, err
	}
	taskID := strings.TrimSpace(params.ID)
	if taskID == "" {
		taskID = m.newID()
	}

	base := context.WithoutCancel(ctx)
	var runCtx context.Context
	var cancel context.CancelFunc
	if m.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(base, m.runTimeout)
	} else {
		runCtx, cancel = context.WithCancel(base)
	}
	if !m.claim(taskID, cancel) {
		cancel()
		return nil, errors.Conflict(taskID)
	}
	r := &run{taskID: taskID, ctx: runCtx, cancel: cancel, start: time.Now()}

	task, created, err := m.ensureTask(ctx, taskID, params.SessionID)
	if err != nil {
		m.release(r)
		return nil, err
	}
	r.sessionID = task.SessionID

	message := params.Message.Clone()
	message.Role = a2a.RoleUser
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	r.message = message

	if err := m.store.AppendMessage(ctx, taskID, message); err != nil {
		m.abandon(r, created, err)
		return nil, err
	}
	working, err := m.store.SetStatus(ctx, taskID, a2a.TaskStateWorking, nil, nil)
	if err != nil {
		m.abandon(r, created, err)
		return nil, err
	}
	r.history = working.History
	m.metrics.RecordTask(ctx, string(a2a.TaskStateWorking))
	m.logger.InfoContext(ctx, "task.run.start",
		slog.String("task_id", taskID),
		slog.String("session_id", r.sessionID),
		slog.Bool("created", created),
	)
	return r, nil
}

// ensureTask creates the task or checks that an existing one can continue.
func (m *Manager) ensureTask(ctx context.Context, taskID, sessionID string) (*a2a.Task, bool, error) {
	task, err := m.store.Get(ctx, taskID, 0)
	if errors.Is(err, errors.CodeNotFound) {
		if sessionID == "" {
			sessionID = m.newID()
		}
		task, err = m.store.Create(ctx, taskID, sessionID)
		if err != nil {
			return nil, false, err
		}
		return task, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	if state := task.Status.State; state.IsTerminal() {
		return nil, false, errors.TerminalTask(taskID, string(state))
	}
	if sessionID != "" && sessionID != task.SessionID {
		return nil, false, errors.InvalidInput(fmt.Sprintf("task %q belongs to another session", taskID)).
			WithContext("task_id", taskID)
	}
	return task, false, nil
}

// execute runs the reasoning step and records its outcome. It always
// returns the latest task snapshot, also when the outcome was discarded.
func (m *Manager) execute(r *run, progress ProgressFunc) *a2a.Task {
	req := ExecuteRequest{
		TaskID:    r.taskID,
		SessionID: r.sessionID,
		Message:   r.message,
		History:   r.history,
	}
	result, err := m.executor.Execute(r.ctx, req, progress)
	// Store writes must not be skipped because the run context ended.
	ctx := context.WithoutCancel(r.ctx)
	if err == nil && (result == nil || result.Message.IsEmpty()) {
		err = errors.Reasoning(EmptyResponseMessage, nil)
	}
	if err != nil {
		return m.fail(ctx, r, err)
	}

	reply := result.Message.Clone()
	reply.Role = a2a.RoleAgent
	if err := m.store.AppendMessage(ctx, r.taskID, reply); err != nil {
		return m.discarded(ctx, r, err)
	}
	for _, artifact := range result.Artifacts {
		if err := m.store.AppendArtifact(ctx, r.taskID, artifact); err != nil {
			return m.discarded(ctx, r, err)
		}
	}
	state := a2a.TaskStateCompleted
	if result.InputRequired {
		state = a2a.TaskStateInputRequired
	}
	task, err := m.store.SetStatus(ctx, r.taskID, state, &reply, nil)
	if err != nil {
		return m.discarded(ctx, r, err)
	}
	m.metrics.RecordTask(ctx, string(state))
	m.logger.InfoContext(ctx, "task.run.complete",
		slog.String("task_id", r.taskID),
		slog.String("state", string(state)),
		slog.Duration("duration", time.Since(r.start)),
	)
	return task
}

// fail records err on the task and moves it to failed.
func (m *Manager) fail(ctx context.Context, r *run, err error) *a2a.Task {
	if stderrors.Is(err, context.DeadlineExceeded) && !errors.Is(err, errors.CodeDelegation) {
		err = errors.Reasoning("reasoning step timed out", err)
	}
	detail := taskErrorFrom(err)
	msg := a2a.NewTextMessage(a2a.RoleAgent, detail.Message)
	task, setErr := m.store.SetStatus(ctx, r.taskID, a2a.TaskStateFailed, &msg, detail)
	if setErr != nil {
		return m.discarded(ctx, r, setErr)
	}
	m.metrics.RecordError(ctx, err, "task_manager")
	m.metrics.RecordTask(ctx, string(a2a.TaskStateFailed))
	m.logger.WarnContext(ctx, "task.run.failed",
		slog.String("task_id", r.taskID),
		slog.String("code", detail.Code),
		slog.String("error", err.Error()),
	)
	return task
}

// discarded handles a write rejected because the task finished meanwhile,
// typically after a cancel.
func (m *Manager) discarded(ctx context.Context, r *run, err error) *a2a.Task {
	m.logger.InfoContext(ctx, "task.run.discarded",
		slog.String("task_id", r.taskID),
		slog.String("reason", err.Error()),
	)
	task, getErr := m.store.Get(ctx, r.taskID, 0)
	if getErr != nil {
		return &a2a.Task{ID: r.taskID, SessionID: r.sessionID}
	}
	return task
}

// abandon fails a task that was created by this run but could not start.
func (m *Manager) abandon(r *run, created bool, cause error) {
	defer m.release(r)
	if !created {
		return
	}
	ctx := context.WithoutCancel(r.ctx)
	detail := taskErrorFrom(cause)
	msg := a2a.NewTextMessage(a2a.RoleAgent, detail.Message)
	_, _ = m.store.SetStatus(ctx, r.taskID, a2a.TaskStateFailed, &msg, detail)
}

func (m *Manager) claim(taskID string, cancel context.CancelFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[taskID]; busy {
		return false
	}
	m.inflight[taskID] = cancel
	return true
}

func (m *Manager) release(r *run) {
	m.mu.Lock()
	delete(m.inflight, r.taskID)
	m.mu.Unlock()
	r.cancel()
}

func (m *Manager) recordError(ctx context.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	m.metrics.RecordError(ctx, err, "task_manager")
	m.logger.DebugContext(ctx, "task.request.rejected", slog.String("error", err.Error()))
}

func validateSendParams(params a2a.TaskSendParams) error {
	if len(params.Message.Parts) == 0 || params.Message.IsEmpty() {
		return errors.InvalidInput("message must contain at least one non-empty part")
	}
	if params.Message.Role != "" && params.Message.Role != a2a.RoleUser {
		return errors.InvalidInput(fmt.Sprintf("inbound message role must be %q", a2a.RoleUser))
	}
	if params.HistoryLength < 0 {
		return errors.InvalidInput("historyLength must not be negative")
	}
	return nil
}

// taskErrorFrom renders err as the human readable detail stored on a task.
func taskErrorFrom(err error) *a2a.TaskError {
	e := errors.AsError(err)
	text := e.Message
	if e.Err != nil {
		text = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return &a2a.TaskError{Code: string(e.Code), Message: text}
}
