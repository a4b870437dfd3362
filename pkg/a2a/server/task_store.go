package server

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jllopis/agora/pkg/a2a"
	"github.com/jllopis/agora/pkg/errors"
)

// CancelErrorCode is recorded on tasks failed through tasks/cancel.
const CancelErrorCode = "CANCELED"

// TaskFilter defines filtering options for listing tasks.
type TaskFilter struct {
	SessionID string
	State     a2a.TaskState
	Limit     int
}

// TaskStore provides access to task records. Every mutation is atomic per
// task and validated against the lifecycle state machine.
type TaskStore interface {
	Create(ctx context.Context, taskID, sessionID string) (*a2a.Task, error)
	Get(ctx context.Context, taskID string, historyLength int) (*a2a.Task, error)
	AppendMessage(ctx context.Context, taskID string, message a2a.Message) error
	AppendArtifact(ctx context.Context, taskID string, artifact a2a.Artifact) error
	SetStatus(ctx context.Context, taskID string, state a2a.TaskState, message *a2a.Message, taskErr *a2a.TaskError) (*a2a.Task, error)
	Cancel(ctx context.Context, taskID, reason string) (*a2a.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]*a2a.Task, error)
}

// MemoryTaskStore keeps tasks in memory for the lifetime of the process.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*taskRecord
	seq   uint64
}

type taskRecord struct {
	task      *a2a.Task
	seq       uint64
	updatedAt time.Time
}

// NewMemoryTaskStore creates a new in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[string]*taskRecord),
	}
}

// Create stores a new task in the submitted state with an empty history.
func (s *MemoryTaskStore) Create(_ context.Context, taskID, sessionID string) (*a2a.Task, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, errors.InvalidInput("task id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; ok {
		return nil, errors.DuplicateTask(taskID)
	}
	now := time.Now().UTC()
	task := &a2a.Task{
		ID:        taskID,
		SessionID: sessionID,
		Status: a2a.TaskStatus{
			State:     a2a.TaskStateSubmitted,
			Timestamp: now,
		},
	}
	s.seq++
	s.tasks[taskID] = &taskRecord{task: task, seq: s.seq, updatedAt: now}
	return task.Clone(), nil
}

// Get returns a copy of the task, keeping only the last historyLength
// messages when historyLength is positive.
func (s *MemoryTaskStore) Get(_ context.Context, taskID string, historyLength int) (*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.tasks[taskID]
	if !ok {
		return nil, errors.NotFound(taskID)
	}
	return trimHistory(record.task.Clone(), historyLength), nil
}

// AppendMessage adds a message to the task history.
func (s *MemoryTaskStore) AppendMessage(_ context.Context, taskID string, message a2a.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, err := s.mutable(taskID)
	if err != nil {
		return err
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	record.task.History = append(record.task.History, message.Clone())
	record.updatedAt = time.Now().UTC()
	return nil
}

// AppendArtifact appends an artifact to the task.
func (s *MemoryTaskStore) AppendArtifact(_ context.Context, taskID string, artifact a2a.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, err := s.mutable(taskID)
	if err != nil {
		return err
	}
	artifact = artifact.Clone()
	artifact.Index = len(record.task.Artifacts)
	record.task.Artifacts = append(record.task.Artifacts, artifact)
	record.updatedAt = time.Now().UTC()
	return nil
}

// SetStatus moves the task to state when the state machine allows it and
// returns the resulting snapshot.
func (s *MemoryTaskStore) SetStatus(_ context.Context, taskID string, state a2a.TaskState, message *a2a.Message, taskErr *a2a.TaskError) (*a2a.Task, error) {
	if !state.Valid() {
		return nil, errors.InvalidInput("unknown task state " + string(state))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, err := s.mutable(taskID)
	if err != nil {
		return nil, err
	}
	current := record.task.Status.State
	if !a2a.CanTransition(current, state) {
		return nil, errors.InvalidState(taskID, string(current), string(state))
	}
	s.apply(record, state, message, taskErr)
	return record.task.Clone(), nil
}

// Cancel fails a non-terminal task with a cancellation detail.
func (s *MemoryTaskStore) Cancel(_ context.Context, taskID, reason string) (*a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.tasks[taskID]
	if !ok {
		return nil, errors.NotFound(taskID)
	}
	current := record.task.Status.State
	if current.IsTerminal() {
		return nil, errors.InvalidState(taskID, string(current), string(a2a.TaskStateFailed)).
			WithContext("operation", "cancel")
	}
	if strings.TrimSpace(reason) == "" {
		reason = "task canceled"
	}
	msg := a2a.NewTextMessage(a2a.RoleAgent, reason)
	s.apply(record, a2a.TaskStateFailed, &msg, &a2a.TaskError{Code: CancelErrorCode, Message: reason})
	return record.task.Clone(), nil
}

// List returns tasks in creation order.
func (s *MemoryTaskStore) List(_ context.Context, filter TaskFilter) ([]*a2a.Task, error) {
	s.mu.RLock()
	records := make([]*taskRecord, 0, len(s.tasks))
	for _, record := range s.tasks {
		if filter.SessionID != "" && record.task.SessionID != filter.SessionID {
			continue
		}
		if filter.State != "" && record.task.Status.State != filter.State {
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	out := make([]*a2a.Task, 0, len(records))
	for _, record := range records {
		out = append(out, record.task.Clone())
	}
	s.mu.RUnlock()
	return out, nil
}

// mutable returns the record when it exists and accepts mutations.
// Must be called under the write lock.
func (s *MemoryTaskStore) mutable(taskID string) (*taskRecord, error) {
	record, ok := s.tasks[taskID]
	if !ok {
		return nil, errors.NotFound(taskID)
	}
	if state := record.task.Status.State; state.IsTerminal() {
		return nil, errors.TerminalTask(taskID, string(state))
	}
	return record, nil
}

func (s *MemoryTaskStore) apply(record *taskRecord, state a2a.TaskState, message *a2a.Message, taskErr *a2a.TaskError) {
	now := time.Now().UTC()
	status := a2a.TaskStatus{State: state, Timestamp: now}
	if message != nil {
		msg := message.Clone()
		status.Message = &msg
	}
	record.task.Status = status
	if taskErr != nil {
		detail := *taskErr
		record.task.Error = &detail
	}
	record.updatedAt = now
}

func trimHistory(task *a2a.Task, historyLength int) *a2a.Task {
	if historyLength > 0 && historyLength < len(task.History) {
		task.History = task.History[len(task.History)-historyLength:]
	}
	return task
}

var _ TaskStore = (*MemoryTaskStore)(nil)
