package a2a

import "encoding/json"

// JSON-RPC method names.
const (
	MethodSend                = "tasks/send"
	MethodSendSubscribe       = "tasks/sendSubscribe"
	MethodGet                 = "tasks/get"
	MethodCancel              = "tasks/cancel"
	MethodResubscribe         = "tasks/resubscribe"
	MethodPushNotificationSet = "tasks/pushNotification/set"
	MethodPushNotificationGet = "tasks/pushNotification/get"
)

// JSON-RPC error codes. The -32000 range below the standard codes maps the
// task, discovery, delegation and reasoning errors.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeTaskNotFound     = -32001
	CodeInvalidState     = -32002
	CodeUnsupported      = -32004
	CodeDuplicateTask    = -32010
	CodeTerminalTask     = -32011
	CodeConflict         = -32012
	CodeDiscoveryFailed  = -32020
	CodeUnknownAgent     = -32021
	CodeDelegationFailed = -32022
	CodeReasoningFailed  = -32030
)

// TaskSendParams are the params of tasks/send and tasks/sendSubscribe.
type TaskSendParams struct {
	ID            string         `json:"id,omitempty"`
	SessionID     string         `json:"sessionId,omitempty"`
	Message       Message        `json:"message"`
	HistoryLength int            `json:"historyLength,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// TaskIDParams identify a task.
type TaskIDParams struct {
	ID string `json:"id"`
}

// TaskQueryParams identify a task and bound the returned history.
type TaskQueryParams struct {
	ID            string `json:"id"`
	HistoryLength int    `json:"historyLength,omitempty"`
}

// StatusUpdateEvent is an ephemeral progress notification of one run.
// The final event of a run carries the task snapshot.
type StatusUpdateEvent struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId,omitempty"`
	Status    TaskStatus `json:"status"`
	Final     bool       `json:"final"`
	Task      *Task      `json:"task,omitempty"`
}

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RPCErrorData is the data member attached to agora errors.
type RPCErrorData struct {
	Code    string         `json:"code"`
	Kind    string         `json:"kind,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}
