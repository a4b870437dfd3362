// Package delegation forwards work to remote agents listed in the registry.
// Calls are bounded by a timeout, retried when the peer could not be reached,
// rate limited and guarded by a circuit breaker per agent.
package delegation

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jllopis/agora/pkg/a2a"
	"github.com/jllopis/agora/pkg/a2a/agentcard"
	"github.com/jllopis/agora/pkg/a2a/jsonrpc/client"
	"github.com/jllopis/agora/pkg/config"
	"github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/resilience"
	"github.com/jllopis/agora/pkg/telemetry"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultRetryDelay  = 200 * time.Millisecond
	defaultMaxAttempts = 3
)

// Sender is the part of the JSON-RPC client the router needs.
type Sender interface {
	Send(ctx context.Context, params a2a.TaskSendParams) (*a2a.Task, error)
}

// SenderFactory builds a Sender for a remote endpoint.
type SenderFactory func(endpoint string) Sender

// Candidate is a remote agent the local agent may delegate to.
type Candidate struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	URL         string           `json:"url"`
	Skills      []a2a.AgentSkill `json:"skills,omitempty"`
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records delegation outcomes and breaker states.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(r *Router) {
		r.metrics = metrics
	}
}

// WithHTTPClient sets the HTTP client used for remote calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(r *Router) {
		if httpClient != nil {
			r.httpClient = httpClient
		}
	}
}

// WithSenderFactory replaces the JSON-RPC client, mostly for tests.
func WithSenderFactory(factory SenderFactory) Option {
	return func(r *Router) {
		r.newSender = factory
	}
}

// WithRetryDelay sets the initial backoff between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.retryDelay = d
		}
	}
}

// Router delegates messages to registered remote agents.
type Router struct {
	registry   *agentcard.Registry
	cfg        config.DelegationConfig
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	httpClient *http.Client
	newSender  SenderFactory
	retryDelay time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*resilience.CircuitBreaker
}

// NewRouter creates a router over registry.
func NewRouter(registry *agentcard.Registry, cfg config.DelegationConfig, opts ...Option) *Router {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	r := &Router{
		registry:   registry,
		cfg:        cfg,
		logger:     slog.Default(),
		httpClient: http.DefaultClient,
		retryDelay: defaultRetryDelay,
		limiters:   make(map[string]*rate.Limiter),
		breakers:   make(map[string]*resilience.CircuitBreaker),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.newSender == nil {
		httpClient := r.httpClient
		r.newSender = func(endpoint string) Sender {
			return client.New(endpoint, client.WithHTTPClient(httpClient))
		}
	}
	return r
}

// ListCandidates returns the resolvable remote agents in configuration order.
func (r *Router) ListCandidates(ctx context.Context) []Candidate {
	known := r.registry.ListKnown(ctx)
	candidates := make([]Candidate, 0, len(known))
	for _, k := range known {
		if k.Card == nil {
			continue
		}
		name := k.Entry.Name
		if name == "" {
			name = k.Card.Name
		}
		candidates = append(candidates, Candidate{
			Name:        name,
			Description: k.Card.Description,
			URL:         endpointOf(k),
			Skills:      k.Card.Skills,
		})
	}
	return candidates
}

// Delegate sends message to the agent called name and waits for the remote
// task. Names match registered agents exactly, ignoring case; unknown names
// fail without touching the network. Every other failure is a CodeDelegation
// error whose Kind says why. A remote task that ends failed is a protocol
// failure; a caller that gives up yields KindCanceled, not KindTimeout.
func (r *Router) Delegate(ctx context.Context, name, message, sessionID string) (*a2a.Task, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	task, agent, err := r.delegate(ctx, name, message, sessionID)
	elapsed := time.Since(start)
	if errors.Is(err, errors.CodeUnknownAgent) {
		r.metrics.RecordDelegation(ctx, name, telemetry.OutcomeUnknown, elapsed)
		return nil, err
	}
	if err != nil {
		r.metrics.RecordDelegation(ctx, agent, telemetry.OutcomeFailure, elapsed)
		r.metrics.RecordError(ctx, err, "delegation")
		r.logger.WarnContext(ctx, "delegation.failed",
			slog.String("agent", agent),
			slog.String("kind", string(errors.KindOf(err))),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	r.metrics.RecordDelegation(ctx, agent, telemetry.OutcomeSuccess, elapsed)
	r.logger.InfoContext(ctx, "delegation.complete",
		slog.String("agent", agent),
		slog.String("task_id", task.ID),
		slog.String("state", string(task.Status.State)),
		slog.Duration("elapsed", elapsed),
	)
	return task, nil
}

// delegate returns the remote task and the registered name it resolved to.
func (r *Router) delegate(ctx context.Context, name, message, sessionID string) (*a2a.Task, string, error) {
	known, err := r.registry.Find(ctx, name)
	if err != nil {
		if errors.Is(err, errors.CodeUnknownAgent) {
			return nil, name, err
		}
		return nil, name, classify(ctx, name, err)
	}
	agent := known.Entry.Name
	if agent == "" {
		agent = known.Card.Name
	}
	endpoint := endpointOf(known)

	if limiter := r.limiter(agent); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			kind := errors.KindTimeout
			if stderrors.Is(ctx.Err(), context.Canceled) {
				kind = errors.KindCanceled
			}
			return nil, agent, errors.Delegation(kind, agent, err).
				WithAttribute("reason", "rate limited")
		}
	}

	params := a2a.TaskSendParams{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Message:   a2a.NewTextMessage(a2a.RoleUser, message),
	}
	sender := r.newSender(endpoint)
	breaker := r.breaker(agent)

	retry := resilience.DefaultRetryConfig().
		WithMaxAttempts(r.cfg.MaxAttempts).
		WithInitialDelay(r.retryDelay).
		// Leave room for several attempts inside the single call deadline.
		WithMaxDelay(r.cfg.Timeout / 4).
		WithIsRecoverable(func(err error) bool {
			return ctx.Err() == nil && errors.KindOf(err) == errors.KindRefused && !resilience.IsOpen(err)
		})
	retry.Notify = func(err error, wait time.Duration) {
		r.logger.InfoContext(ctx, "delegation.retry",
			slog.String("agent", agent),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	attempt := 0
	task, err := resilience.Retry(ctx, retry, func() (*a2a.Task, error) {
		attempt++
		return r.send(ctx, sender, breaker, agent, endpoint, attempt, params)
	})
	if err != nil {
		return nil, agent, classify(ctx, agent, err)
	}
	if task.Status.State == a2a.TaskStateFailed {
		detail := "remote task failed"
		if task.Error != nil {
			detail = task.Error.Code + ": " + task.Error.Message
		}
		return task, agent, errors.Delegation(errors.KindProtocol, agent, stderrors.New(detail)).
			WithContext("task_id", task.ID)
	}
	return task, agent, nil
}

func (r *Router) send(ctx context.Context, sender Sender, breaker *resilience.CircuitBreaker, agent, endpoint string, attempt int, params a2a.TaskSendParams) (*a2a.Task, error) {
	tracer := otel.Tracer("agora/delegation")
	ctx, span := tracer.Start(ctx, "delegation.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.DelegationAttributes(agent, endpoint, attempt)...),
	)
	defer span.End()

	var task *a2a.Task
	err := breaker.Call(func() error {
		var callErr error
		task, callErr = sender.Send(ctx, params)
		return callErr
	})
	if err != nil {
		classified := classify(ctx, agent, err)
		span.RecordError(classified)
		span.SetStatus(codes.Error, classified.Error())
		return nil, classified
	}
	span.SetAttributes(telemetry.TaskAttributes(task.ID, task.SessionID, string(task.Status.State))...)
	span.SetStatus(codes.Ok, "")
	return task, nil
}

func (r *Router) limiter(agent string) *rate.Limiter {
	if r.cfg.RateLimit <= 0 {
		return nil
	}
	key := strings.ToLower(agent)
	r.mu.Lock()
	defer r.mu.Unlock()
	if limiter, ok := r.limiters[key]; ok {
		return limiter
	}
	burst := r.cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(r.cfg.RateLimit), burst)
	r.limiters[key] = limiter
	return limiter
}

func (r *Router) breaker(agent string) *resilience.CircuitBreaker {
	key := strings.ToLower(agent)
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[key]; ok {
		return cb
	}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             agent,
		FailureThreshold: r.cfg.BreakerThreshold,
		Timeout:          r.cfg.BreakerReset,
		// Remote errors mean the peer answered.
		IsFailure: func(err error) bool {
			return kindOf(context.Background(), err) != errors.KindProtocol
		},
		OnStateChange: func(name string, from, to resilience.CircuitBreakerState) {
			r.logger.Warn("delegation.breaker",
				slog.String("agent", name),
				slog.String("from", string(from)),
				slog.String("to", string(to)),
			)
			r.metrics.RecordCircuitBreakerState(context.Background(), name, to.Value())
		},
	})
	r.breakers[key] = cb
	return cb
}

// BreakerState reports the circuit state kept for agent.
func (r *Router) BreakerState(agent string) resilience.CircuitBreakerState {
	return r.breaker(agent).State()
}

// FinalText folds the remote reply into plain text: the last agent message,
// or the text of the artifacts when the agent sent none.
func FinalText(task *a2a.Task) string {
	if task == nil {
		return ""
	}
	if msg := task.Status.Message; msg != nil && msg.Role == a2a.RoleAgent {
		if text := strings.TrimSpace(msg.Text()); text != "" {
			return text
		}
	}
	if msg := task.LastAgentMessage(); msg != nil {
		if text := strings.TrimSpace(msg.Text()); text != "" {
			return text
		}
	}
	var parts []string
	for _, artifact := range task.Artifacts {
		for _, part := range artifact.Parts {
			if part.Text != "" {
				parts = append(parts, part.Text)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// classify turns a transport or remote failure into a CodeDelegation error.
// Errors that already carry that code pass through.
func classify(ctx context.Context, agent string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errors.CodeDelegation) || errors.Is(err, errors.CodeUnknownAgent) {
		return err
	}
	e := errors.Delegation(kindOf(ctx, err), agent, err)
	var rpcErr *client.RPCError
	if stderrors.As(err, &rpcErr) {
		e.WithContext("remote_code", rpcErr.Code).WithContext("remote_message", rpcErr.Message)
		if rpcErr.Data != nil && rpcErr.Data.Code != "" {
			e.WithAttribute("remote_error", rpcErr.Data.Code)
		}
	}
	var httpErr *client.HTTPError
	if stderrors.As(err, &httpErr) {
		e.WithContext("http_status", httpErr.StatusCode)
	}
	return e
}

func kindOf(ctx context.Context, err error) errors.DelegationKind {
	var rpcErr *client.RPCError
	var decodeErr *client.DecodeError
	var httpErr *client.HTTPError
	var netErr net.Error
	switch {
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return errors.KindTimeout
	case stderrors.Is(err, context.Canceled), ctx.Err() != nil:
		return errors.KindCanceled
	case resilience.IsOpen(err):
		return errors.KindRefused
	case stderrors.As(err, &rpcErr), stderrors.As(err, &decodeErr):
		return errors.KindProtocol
	case stderrors.As(err, &httpErr):
		if httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests {
			return errors.KindRefused
		}
		return errors.KindProtocol
	case stderrors.As(err, &netErr) && netErr.Timeout():
		return errors.KindTimeout
	}
	return errors.KindRefused
}

func endpointOf(k agentcard.Known) string {
	if k.Card != nil && k.Card.URL != "" {
		return k.Card.URL
	}
	return k.Entry.URL
}

// String describes the candidate for prompts and logs.
func (c Candidate) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	if c.Description != "" {
		fmt.Fprintf(&b, ": %s", c.Description)
	}
	if len(c.Skills) > 0 {
		names := make([]string, 0, len(c.Skills))
		for _, skill := range c.Skills {
			names = append(names, skill.Name)
		}
		fmt.Fprintf(&b, " (skills: %s)", strings.Join(names, ", "))
	}
	return b.String()
}
