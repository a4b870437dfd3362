// Package jsonrpc exposes the task manager over JSON-RPC 2.0 on HTTP, with
// Server-Sent Events for tasks/sendSubscribe.
package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jllopis/agora/pkg/a2a"
	"github.com/jllopis/agora/pkg/a2a/server"
	"github.com/jllopis/agora/pkg/errors"
)

// TaskService is the task manager surface served by Server.
type TaskService interface {
	Send(ctx context.Context, params a2a.TaskSendParams) (*a2a.Task, error)
	SendSubscribe(ctx context.Context, params a2a.TaskSendParams) (*server.Stream, error)
	Get(ctx context.Context, taskID string, historyLength int) (*a2a.Task, error)
	Cancel(ctx context.Context, taskID string) (*a2a.Task, error)
}

// Server exposes the JSON-RPC binding for A2A tasks.
type Server struct {
	service TaskService
	logger  *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a new JSON-RPC server wrapper.
func New(service TaskService, opts ...Option) *Server {
	s := &Server{service: service, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ServeHTTP handles JSON-RPC 2.0 requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.service == nil {
		writeError(w, nil, &a2a.RPCError{Code: a2a.CodeInternalError, Message: "task service not configured"})
		return
	}
	var req a2a.RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, &a2a.RPCError{Code: a2a.CodeParseError, Message: "invalid json"})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeError(w, req.ID, &a2a.RPCError{Code: a2a.CodeInvalidRequest, Message: "invalid request"})
		return
	}
	s.logger.DebugContext(r.Context(), "jsonrpc.request", slog.String("method", req.Method))

	switch req.Method {
	case a2a.MethodSend:
		s.handleSend(w, r, req)
	case a2a.MethodSendSubscribe:
		s.handleSendSubscribe(w, r, req)
	case a2a.MethodGet:
		s.handleGet(w, r, req)
	case a2a.MethodCancel:
		s.handleCancel(w, r, req)
	case a2a.MethodResubscribe, a2a.MethodPushNotificationSet, a2a.MethodPushNotificationGet:
		writeError(w, req.ID, &a2a.RPCError{
			Code:    a2a.CodeUnsupported,
			Message: fmt.Sprintf("%s is not supported", req.Method),
		})
	default:
		writeError(w, req.ID, &a2a.RPCError{Code: a2a.CodeMethodNotFound, Message: "method not found"})
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, req a2a.RPCRequest) {
	var params a2a.TaskSendParams
	if err := decodeParams(req.Params, &params); err != nil {
		writeError(w, req.ID, invalidParams(err))
		return
	}
	task, err := s.service.Send(r.Context(), params)
	if err != nil {
		s.writeServiceError(r.Context(), w, req, err)
		return
	}
	writeResult(w, req.ID, task)
}

func (s *Server) handleSendSubscribe(w http.ResponseWriter, r *http.Request, req a2a.RPCRequest) {
	var params a2a.TaskSendParams
	if err := decodeParams(req.Params, &params); err != nil {
		writeError(w, req.ID, invalidParams(err))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, req.ID, &a2a.RPCError{Code: a2a.CodeInternalError, Message: "streaming not supported"})
		return
	}
	stream, err := s.service.SendSubscribe(r.Context(), params)
	if err != nil {
		s.writeServiceError(r.Context(), w, req, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sse := &sseWriter{w: w, f: flusher, id: req.ID}
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "jsonrpc.stream.client_gone", slog.String("method", req.Method))
			return
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			if err := sse.send(ev); err != nil {
				s.logger.WarnContext(ctx, "jsonrpc.stream.write_failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, req a2a.RPCRequest) {
	var params a2a.TaskQueryParams
	if err := decodeParams(req.Params, &params); err != nil {
		writeError(w, req.ID, invalidParams(err))
		return
	}
	task, err := s.service.Get(r.Context(), params.ID, params.HistoryLength)
	if err != nil {
		s.writeServiceError(r.Context(), w, req, err)
		return
	}
	writeResult(w, req.ID, task)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, req a2a.RPCRequest) {
	var params a2a.TaskIDParams
	if err := decodeParams(req.Params, &params); err != nil {
		writeError(w, req.ID, invalidParams(err))
		return
	}
	task, err := s.service.Cancel(r.Context(), params.ID)
	if err != nil {
		s.writeServiceError(r.Context(), w, req, err)
		return
	}
	writeResult(w, req.ID, task)
}

func (s *Server) writeServiceError(ctx context.Context, w http.ResponseWriter, req a2a.RPCRequest, err error) {
	rpcErr := ToRPCError(err)
	level := slog.LevelInfo
	if rpcErr.Code == a2a.CodeInternalError {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "jsonrpc.request.failed",
		slog.String("method", req.Method),
		slog.Int("code", rpcErr.Code),
		slog.String("error", err.Error()),
	)
	writeError(w, req.ID, rpcErr)
}

// ToRPCError renders err as a JSON-RPC error object. Typed errors keep their
// code, kind and context in the data member.
func ToRPCError(err error) *a2a.RPCError {
	e := errors.AsError(err)
	rpcErr := &a2a.RPCError{Code: RPCCode(e.Code), Message: e.Message}
	if e.Code == errors.CodeInternal {
		rpcErr.Message = "internal error"
	}
	data, marshalErr := json.Marshal(a2a.RPCErrorData{
		Code:    string(e.Code),
		Kind:    string(e.Kind),
		Context: e.Context,
	})
	if marshalErr == nil {
		rpcErr.Data = data
	}
	return rpcErr
}

// RPCCode maps an error code to its JSON-RPC error code.
func RPCCode(code errors.ErrorCode) int {
	switch code {
	case errors.CodeNotFound:
		return a2a.CodeTaskNotFound
	case errors.CodeInvalidState:
		return a2a.CodeInvalidState
	case errors.CodeUnsupported:
		return a2a.CodeUnsupported
	case errors.CodeDuplicateTask:
		return a2a.CodeDuplicateTask
	case errors.CodeTerminalTask:
		return a2a.CodeTerminalTask
	case errors.CodeConflict:
		return a2a.CodeConflict
	case errors.CodeDiscovery:
		return a2a.CodeDiscoveryFailed
	case errors.CodeUnknownAgent:
		return a2a.CodeUnknownAgent
	case errors.CodeDelegation:
		return a2a.CodeDelegationFailed
	case errors.CodeReasoning:
		return a2a.CodeReasoningFailed
	case errors.CodeInvalidInput:
		return a2a.CodeInvalidParams
	default:
		return a2a.CodeInternalError
	}
}

func decodeParams(raw json.RawMessage, target any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("params are required")
	}
	return json.Unmarshal(raw, target)
}

func invalidParams(err error) *a2a.RPCError {
	return &a2a.RPCError{Code: a2a.CodeInvalidParams, Message: err.Error()}
}

func writeResult(w http.ResponseWriter, id any, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		writeError(w, id, &a2a.RPCError{Code: a2a.CodeInternalError, Message: err.Error()})
		return
	}
	writeJSON(w, a2a.RPCResponse{JSONRPC: "2.0", ID: id, Result: raw})
}

func writeError(w http.ResponseWriter, id any, rpcErr *a2a.RPCError) {
	writeJSON(w, a2a.RPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr})
}

func writeJSON(w http.ResponseWriter, payload a2a.RPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// sseWriter frames each status event as one SSE data line.
type sseWriter struct {
	w  http.ResponseWriter
	f  http.Flusher
	id any
}

func (s *sseWriter) send(ev a2a.StatusUpdateEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	data, err := json.Marshal(a2a.RPCResponse{JSONRPC: "2.0", ID: s.id, Result: payload})
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
