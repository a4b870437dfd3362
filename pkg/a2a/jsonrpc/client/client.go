// Package client calls remote A2A agents over the JSON-RPC binding.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jllopis/agora/pkg/a2a"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// RPCError is a JSON-RPC error returned by the remote agent.
type RPCError struct {
	Code    int
	Message string
	Data    *a2a.RPCErrorData
}

func (e *RPCError) Error() string {
	if e.Data != nil && e.Data.Code != "" {
		return fmt.Sprintf("jsonrpc error %d (%s): %s", e.Code, e.Data.Code, e.Message)
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// HTTPError is a non-2xx answer of the remote endpoint.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http %s: %s", e.Status, e.Body)
	}
	return "http " + e.Status
}

// DecodeError reports a response that is not a valid JSON-RPC envelope.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode response: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// StreamResult is one item of a tasks/sendSubscribe stream. Err is set on
// the last item when the stream broke before the final event.
type StreamResult struct {
	Event a2a.StatusUpdateEvent
	Err   error
}

// Client wraps the JSON-RPC binding for A2A.
type Client struct {
	endpoint   string
	httpClient *http.Client
	headers    map[string]string
}

// Option configures the client.
type Option func(*Client)

// New creates a JSON-RPC client bound to an HTTP endpoint.
func New(endpoint string, opts ...Option) *Client {
	client := &Client{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// WithHeaders sets default headers for each request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = cloneHeaders(headers)
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// Endpoint returns the URL the client posts to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send invokes tasks/send.
func (c *Client) Send(ctx context.Context, params a2a.TaskSendParams) (*a2a.Task, error) {
	var task a2a.Task
	if err := c.call(ctx, a2a.MethodSend, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Get invokes tasks/get.
func (c *Client) Get(ctx context.Context, taskID string, historyLength int) (*a2a.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("task id is required")
	}
	var task a2a.Task
	params := a2a.TaskQueryParams{ID: taskID, HistoryLength: historyLength}
	if err := c.call(ctx, a2a.MethodGet, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Cancel invokes tasks/cancel.
func (c *Client) Cancel(ctx context.Context, taskID string) (*a2a.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("task id is required")
	}
	var task a2a.Task
	if err := c.call(ctx, a2a.MethodCancel, a2a.TaskIDParams{ID: taskID}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SendSubscribe invokes tasks/sendSubscribe and streams status events via SSE.
// Errors raised before the stream starts are returned directly.
func (c *Client) SendSubscribe(ctx context.Context, params a2a.TaskSendParams) (<-chan StreamResult, error) {
	request, err := c.newRequest(ctx, a2a.MethodSendSubscribe, params)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "text/event-stream")
	resp, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		// The server answered with a plain JSON-RPC error.
		defer resp.Body.Close()
		var decoded a2a.RPCResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, &DecodeError{Err: err}
		}
		if decoded.Error != nil {
			return nil, toRPCError(decoded.Error)
		}
		return nil, &DecodeError{Err: errors.New("expected an event stream")}
	}

	out := make(chan StreamResult)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		deliver := func(item StreamResult) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- item:
				return nil
			}
		}
		final := false
		err := readSSE(ctx, resp.Body, func(payload []byte) error {
			var decoded a2a.RPCResponse
			if err := json.Unmarshal(payload, &decoded); err != nil {
				return &DecodeError{Err: err}
			}
			if decoded.Error != nil {
				return toRPCError(decoded.Error)
			}
			var ev a2a.StatusUpdateEvent
			if err := json.Unmarshal(decoded.Result, &ev); err != nil {
				return &DecodeError{Err: err}
			}
			final = ev.Final
			return deliver(StreamResult{Event: ev})
		})
		if err == nil && !final {
			err = io.ErrUnexpectedEOF
		}
		if err != nil && ctx.Err() == nil {
			_ = deliver(StreamResult{Err: err})
		}
	}()
	return out, nil
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	request, err := c.newRequest(ctx, method, params)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseHTTPError(resp)
	}
	var decoded a2a.RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return &DecodeError{Err: err}
	}
	if decoded.Error != nil {
		return toRPCError(decoded.Error)
	}
	if result == nil {
		return nil
	}
	if len(decoded.Result) == 0 {
		return &DecodeError{Err: errors.New("empty result")}
	}
	if err := json.Unmarshal(decoded.Result, result); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method string, params any) (*http.Request, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(a2a.RPCRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  payload,
	})
	if err != nil {
		return nil, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	c.applyHeaders(ctx, request)
	return request, nil
}

func (c *Client) applyHeaders(ctx context.Context, request *http.Request) {
	for key, value := range c.headers {
		request.Header.Set(key, value)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(request.Header))
}

func toRPCError(e *a2a.RPCError) *RPCError {
	out := &RPCError{Code: e.Code, Message: e.Message}
	if len(e.Data) > 0 {
		var data a2a.RPCErrorData
		if err := json.Unmarshal(e.Data, &data); err == nil {
			out.Data = &data
		}
	}
	return out
}

func readSSE(ctx context.Context, body io.Reader, handle func([]byte) error) error {
	reader := bufio.NewReader(body)
	var buffer bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if buffer.Len() > 0 {
					return handle(buffer.Bytes())
				}
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if buffer.Len() == 0 {
				continue
			}
			if err := handle(buffer.Bytes()); err != nil {
				return err
			}
			buffer.Reset()
			continue
		}
		if strings.HasPrefix(line, "data:") {
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if buffer.Len() > 0 {
				buffer.WriteByte('\n')
			}
			buffer.WriteString(payload)
		}
	}
}

func parseHTTPError(response *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
	return &HTTPError{
		StatusCode: response.StatusCode,
		Status:     response.Status,
		Body:       strings.TrimSpace(string(payload)),
	}
}

func cloneHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		out[key] = value
	}
	return out
}
