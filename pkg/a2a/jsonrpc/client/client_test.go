package client

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jllopis/agora/pkg/a2a"
	"github.com/jllopis/agora/pkg/a2a/jsonrpc"
	"github.com/jllopis/agora/pkg/a2a/server"
	"github.com/jllopis/agora/pkg/errors"
)

func newRemote(t *testing.T) *httptest.Server {
	t.Helper()
	exec := server.ExecutorFunc(func(_ context.Context, req server.ExecuteRequest, progress server.ProgressFunc) (*server.Result, error) {
		progress.Report("step")
		return server.TextResult("pong: " + req.Message.Text()), nil
	})
	manager, err := server.NewManager(server.NewMemoryTaskStore(), exec)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	srv := httptest.NewServer(jsonrpc.New(manager))
	t.Cleanup(srv.Close)
	return srv
}

func params(id, text string) a2a.TaskSendParams {
	return a2a.TaskSendParams{ID: id, Message: a2a.NewTextMessage(a2a.RoleUser, text)}
}

func TestClientRoundTrip(t *testing.T) {
	srv := newRemote(t)
	c := New(srv.URL, WithHeaders(map[string]string{"X-Test": "1"}))
	ctx := context.Background()

	task, err := c.Send(ctx, params("t-1", "ping"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if task.Status.State != a2a.TaskStateCompleted || task.Status.Message.Text() != "pong: ping" {
		t.Fatalf("unexpected task %+v", task)
	}

	got, err := c.Get(ctx, "t-1", 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.History) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got.History))
	}

	_, err = c.Cancel(ctx, "t-1")
	var rpcErr *RPCError
	if !stderrors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T %v", err, err)
	}
	if rpcErr.Code != a2a.CodeInvalidState || rpcErr.Data == nil || rpcErr.Data.Code != string(errors.CodeInvalidState) {
		t.Fatalf("unexpected rpc error %+v", rpcErr)
	}
}

func TestClientSendSubscribe(t *testing.T) {
	srv := newRemote(t)
	c := New(srv.URL)

	stream, err := c.SendSubscribe(context.Background(), params("t-1", "ping"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var events []a2a.StatusUpdateEvent
	for item := range stream {
		if item.Err != nil {
			t.Fatalf("stream error: %v", item.Err)
		}
		events = append(events, item.Event)
	}
	if len(events) != 3 || !events[2].Final {
		t.Fatalf("unexpected events %+v", events)
	}
	if events[1].Status.Message.Text() != "step" {
		t.Fatalf("expected progress event, got %+v", events[1])
	}
}

func TestClientSendSubscribeRejected(t *testing.T) {
	srv := newRemote(t)
	c := New(srv.URL)
	if _, err := c.Send(context.Background(), params("done", "x")); err != nil {
		t.Fatalf("send: %v", err)
	}

	_, err := c.SendSubscribe(context.Background(), params("done", "again"))
	var rpcErr *RPCError
	if !stderrors.As(err, &rpcErr) || rpcErr.Code != a2a.CodeTerminalTask {
		t.Fatalf("expected terminal task rpc error, got %v", err)
	}
}

func TestClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Send(context.Background(), params("t", "x"))
	var httpErr *HTTPError
	if !stderrors.As(err, &httpErr) || httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected HTTPError 503, got %v", err)
	}
}

func TestClientDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Send(context.Background(), params("t", "x"))
	var decodeErr *DecodeError
	if !stderrors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestClientPropagatesHeadersAndHonoursContext(t *testing.T) {
	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("Authorization")
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(srv.URL,
		WithHeaders(map[string]string{"Authorization": "Bearer t"}),
		WithHTTPClient(&http.Client{}),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, params("t", "x"))
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if got := <-seen; got != "Bearer t" {
		t.Fatalf("expected auth header, got %q", got)
	}
}

func TestClientStreamTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"jsonrpc":"2.0","id":"1","result":{"id":"t","status":{"state":"working"},"final":false}}` + "\n\n"))
	}))
	defer srv.Close()

	stream, err := New(srv.URL).SendSubscribe(context.Background(), params("t", "x"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var last StreamResult
	count := 0
	for item := range stream {
		last = item
		count++
	}
	if count != 2 || last.Err == nil {
		t.Fatalf("expected one event and a trailing error, got %d items, last %+v", count, last)
	}
}
