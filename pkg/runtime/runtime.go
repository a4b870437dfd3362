// Package runtime assembles an agora node from configuration: telemetry,
// the remote agent registry, delegation, the local agent, the task manager
// and the HTTP surface.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jllopis/agora/pkg/a2a"
	"github.com/jllopis/agora/pkg/a2a/agentcard"
	"github.com/jllopis/agora/pkg/a2a/jsonrpc"
	"github.com/jllopis/agora/pkg/a2a/server"
	"github.com/jllopis/agora/pkg/agent"
	"github.com/jllopis/agora/pkg/config"
	"github.com/jllopis/agora/pkg/delegation"
	"github.com/jllopis/agora/pkg/discovery"
	"github.com/jllopis/agora/pkg/governance"
	"github.com/jllopis/agora/pkg/guardrails"
	"github.com/jllopis/agora/pkg/health"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/mcp"
	"github.com/jllopis/agora/pkg/memory"
	"github.com/jllopis/agora/pkg/skills"
	"github.com/jllopis/agora/pkg/telemetry"
	"github.com/jllopis/agora/pkg/tools"
)

var errNotStarted = errors.New("runtime not started")

// Option customises an App.
type Option func(*App)

// WithLogger sets the application logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithExecutor replaces the agent selected by agent.kind.
func WithExecutor(executor server.Executor) Option {
	return func(a *App) {
		a.executor = executor
	}
}

// WithProvider replaces the LLM provider selected by llm.provider.
func WithProvider(provider llm.Provider) Option {
	return func(a *App) {
		a.provider = provider
	}
}

// WithHTTPClient sets the client used for card discovery and delegation.
func WithHTTPClient(client *http.Client) Option {
	return func(a *App) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// App is one running agora node.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpClient *http.Client
	telemetry  *telemetry.Providers
	metrics    *telemetry.Metrics

	card     *a2a.AgentCard
	file     *discovery.FileProvider
	resolver *discovery.Resolver
	registry *agentcard.Registry
	router   *delegation.Router
	memory   *memory.InMemoryConversation
	provider llm.Provider
	mcp      []*mcp.Client
	tools    []tools.Tool
	skills   []skills.SkillSpec
	executor server.Executor
	manager  *server.Manager
	health   *health.Registry
	sweeper  *Sweeper

	mu       sync.Mutex
	started  bool
	srv      *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	serveErr chan error
}

// New wires every component described by cfg. MCP servers are started and
// the registry is resolved once; nothing listens until Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	providers, err := telemetry.InitWithConfig(cfg.Agent.Name, cfg.Agent.Version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.telemetry = providers
	if a.metrics, err = telemetry.NewMetrics(); err != nil {
		return nil, a.abort(fmt.Errorf("metrics: %w", err))
	}

	if cfg.Agent.SkillsDir != "" {
		if a.skills, err = skills.LoadDir(cfg.Agent.SkillsDir); err != nil {
			return nil, a.abort(fmt.Errorf("skills: %w", err))
		}
	}
	if err := a.buildRegistry(ctx); err != nil {
		return nil, a.abort(err)
	}
	a.router = delegation.NewRouter(a.registry, cfg.Delegation,
		delegation.WithLogger(a.logger),
		delegation.WithMetrics(a.metrics),
		delegation.WithHTTPClient(a.httpClient),
	)
	a.memory = memory.NewInMemoryConversation(memory.ConversationConfig{
		MaxSessions:        cfg.Memory.MaxSessions,
		TruncationStrategy: truncationFor(cfg.Memory),
	})
	if a.provider == nil {
		if a.provider, err = newProvider(cfg.LLM, a.httpClient); err != nil {
			return nil, a.abort(err)
		}
	}
	if err := a.buildTools(ctx); err != nil {
		return nil, a.abort(err)
	}
	if a.executor == nil {
		if a.executor, err = a.buildExecutor(); err != nil {
			return nil, a.abort(fmt.Errorf("agent %s: %w", cfg.Agent.Kind, err))
		}
	}
	guard, err := buildGuardrails(cfg.Guardrails, a.logger)
	if err != nil {
		return nil, a.abort(fmt.Errorf("guardrails: %w", err))
	}
	a.executor = guardrails.Wrap(a.executor, guard)
	a.manager, err = server.NewManager(server.NewMemoryTaskStore(), a.executor,
		server.WithLogger(a.logger),
		server.WithMetrics(a.metrics),
		server.WithRunTimeout(cfg.Agent.RunTimeout),
	)
	if err != nil {
		return nil, a.abort(err)
	}

	a.health = a.buildHealth()
	a.sweeper = NewSweeper(cfg.Memory.SweepInterval, cfg.Memory.SweepTimeout, a.logger)
	a.sweeper.Add("conversation", ExpirerFunc(func(ctx context.Context) (int, error) {
		return a.memory.ExpireSessions(ctx, cfg.Memory.TTL)
	}))
	// Peers that were down at startup become addressable by name here.
	a.sweeper.Add("agent-names", ExpirerFunc(func(ctx context.Context) (int, error) {
		return a.registry.ResolveNames(ctx), nil
	}))
	return a, nil
}

func (a *App) buildRegistry(ctx context.Context) error {
	cfg := a.cfg
	a.card = agentcard.Build(agentcard.Config{
		Name:        cfg.Agent.Name,
		Description: cfg.Agent.Description,
		URL:         cfg.PublicURL(),
		Version:     cfg.Agent.Version,
		Streaming:   cfg.Agent.Streaming,
		Skills:      skillsFrom(cfg.Agent.Skills, a.skills),
	})

	providers := []discovery.Provider{discovery.NewConfigProvider(cfg.Registry)}
	if cfg.Registry.File != "" {
		file, err := discovery.NewFileProvider(cfg.Registry.File)
		if err != nil {
			return fmt.Errorf("registry file: %w", err)
		}
		a.file = file
		providers = append(providers, file)
	}
	resolver, err := discovery.NewResolver(providers...)
	if err != nil {
		return err
	}
	a.resolver = resolver
	endpoints, err := resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	a.registry, err = agentcard.NewRegistry(a.card, discovery.ToEntries(endpoints),
		agentcard.WithHTTPClient(a.httpClient),
		agentcard.WithCacheSize(cfg.Registry.CacheSize),
		agentcard.WithLogger(a.logger),
		agentcard.WithMetrics(a.metrics),
	)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	named := a.registry.ResolveNames(ctx)
	a.logger.InfoContext(ctx, "runtime.registry.loaded",
		slog.Int("agents", len(endpoints)),
		slog.Int("names_resolved", named),
	)
	return nil
}

// buildTools collects the local tools: the clock for llm agents, skills
// for agents backed by a model, then every MCP tool. The configured tool
// policy filters the result.
func (a *App) buildTools(ctx context.Context) error {
	kind := a.cfg.Agent.Kind
	if kind == config.KindLLM {
		a.tools = append(a.tools, tools.NewTimeTool())
	}
	if kind == config.KindLLM || kind == config.KindOrchestrator {
		a.tools = append(a.tools, skills.Tools(a.skills)...)
	}
	if err := a.connectMCP(ctx); err != nil {
		return err
	}

	policy := a.cfg.Agent.Tools
	filter := governance.NewToolFilter(
		governance.WithAllowlist(policy.Allow),
		governance.WithDenylist(policy.Deny),
		governance.WithLogger(a.logger),
	)
	if policy.FromSkills && len(a.skills) > 0 {
		allowed := make([][]string, 0, len(a.skills)+1)
		names := make([]string, 0, len(a.skills))
		for _, spec := range a.skills {
			allowed = append(allowed, spec.AllowedTools)
			names = append(names, skills.ToolName(spec.Name))
		}
		filter.AddToAllowlist(governance.AllowlistFromSkills(append(allowed, names))...)
	}
	a.tools = filter.Filter(ctx, a.tools)
	return nil
}

func (a *App) connectMCP(ctx context.Context) error {
	names := make([]string, 0, len(a.cfg.MCP.Servers))
	for name := range a.cfg.MCP.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		client, err := mcp.Connect(ctx, name, a.cfg.MCP.Servers[name])
		if err != nil {
			return err
		}
		a.mcp = append(a.mcp, client)
		loaded, err := mcp.LoadTools(ctx, client)
		if err != nil {
			return fmt.Errorf("mcp server %q: list tools: %w", name, err)
		}
		a.tools = append(a.tools, loaded...)
		a.logger.InfoContext(ctx, "runtime.mcp.connected",
			slog.String("server", name),
			slog.Int("tools", len(loaded)),
		)
	}
	return nil
}

func (a *App) buildExecutor() (server.Executor, error) {
	cfg := a.cfg.Agent
	opts := []agent.Option{
		agent.WithName(cfg.Name),
		agent.WithLogger(a.logger),
		agent.WithMetrics(a.metrics),
		agent.WithMemory(a.memory),
		agent.WithTools(a.tools...),
	}
	if cfg.TimeAgent != "" {
		opts = append(opts, agent.WithTimeAgent(cfg.TimeAgent))
	}
	if cfg.MaxIterations > 0 {
		opts = append(opts, agent.WithMaxIterations(cfg.MaxIterations))
	}
	if cfg.Instructions != "" {
		opts = append(opts, agent.WithInstructions(cfg.Instructions))
	}
	if a.provider != nil {
		opts = append(opts, agent.WithLLM(a.provider, a.cfg.LLM.Provider, a.cfg.LLM.Model))
	}

	switch cfg.Kind {
	case config.KindTime:
		return agent.NewTimeAgent(opts...)
	case config.KindGreeting:
		return agent.NewGreetingAgent(a.router, opts...)
	case config.KindOrchestrator:
		return agent.NewOrchestrator(a.router, opts...)
	case config.KindLLM:
		return agent.NewLLMAgent(opts...)
	}
	return nil, fmt.Errorf("unknown agent kind %q", cfg.Kind)
}

func buildGuardrails(cfg config.GuardrailsConfig, logger *slog.Logger) (*guardrails.Guardrails, error) {
	opts := []guardrails.Option{guardrails.WithLogger(logger)}
	if cfg.PromptInjection {
		detector, err := guardrails.NewPromptInjectionDetector(
			guardrails.WithInjectionThreshold(cfg.InjectionThreshold),
			guardrails.WithInjectionPatterns(cfg.InjectionPatterns...),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, guardrails.WithPromptInjectionDetector(detector))
	}
	types := make([]guardrails.PIIType, 0, len(cfg.PIITypes))
	for _, t := range cfg.PIITypes {
		types = append(types, guardrails.PIIType(t))
	}
	if cfg.BlockPII {
		opts = append(opts, guardrails.WithPIIInputChecker(guardrails.WithPIITypes(types...)))
	}
	if cfg.PII != "" && cfg.PII != "off" {
		mode, err := guardrails.ParsePIIMode(cfg.PII)
		if err != nil {
			return nil, err
		}
		opts = append(opts, guardrails.WithPIIFilter(mode, guardrails.WithPIITypes(types...)))
	}
	return guardrails.New(opts...), nil
}

func newProvider(cfg config.LLMConfig, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "ollama":
		return llm.NewOllama(cfg.BaseURL, cfg.Model,
			llm.WithOllamaHTTPClient(&http.Client{Transport: httpClient.Transport, Timeout: 2 * time.Minute}),
		), nil
	case "openai":
		return llm.NewOpenAI(cfg.Model,
			llm.WithOpenAIAPIKey(cfg.APIKey),
			llm.WithOpenAIBaseURL(cfg.BaseURL),
			llm.WithOpenAIHTTPClient(&http.Client{Transport: httpClient.Transport, Timeout: 2 * time.Minute}),
		), nil
	case "mock":
		return &llm.MockProvider{Response: "This is a canned reply."}, nil
	}
	return nil, fmt.Errorf("unknown llm.provider %q", cfg.Provider)
}

func (a *App) buildHealth() *health.Registry {
	registry := health.NewRegistry(10 * time.Second)
	registry.Register("agent", health.Static(health.Healthy, a.cfg.Agent.Name+" serving"))
	if len(a.registry.Entries()) > 0 {
		registry.Register("peers", agent.NewPeersHealthChecker(func(ctx context.Context) (int, int) {
			known, failed := a.registry.ListKnownDetailed(ctx)
			return len(known), len(failed)
		}))
	}
	if a.provider != nil {
		registry.Register("llm", agent.NewLLMHealthChecker(a.cfg.LLM.Provider, nil))
	}
	for _, client := range a.mcp {
		registry.Register("mcp:"+client.Name(), agent.NewMCPHealthChecker(client.Name(), func(ctx context.Context) (int, error) {
			listed, err := client.ListTools(ctx)
			return len(listed), err
		}))
	}
	return registry
}

// Handler returns the HTTP surface of the node.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	card := agentcard.PublishHandler(a.card)
	r.Method(http.MethodGet, agentcard.WellKnownPath, card)
	r.Method(http.MethodGet, agentcard.WellKnownAliasPath, card)
	r.Method(http.MethodGet, "/healthz", a.health.Handler())
	if a.telemetry.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", a.telemetry.MetricsHandler)
	}
	r.Method(http.MethodPost, "/", jsonrpc.New(a.manager, jsonrpc.WithLogger(a.logger)))
	return otelhttp.NewHandler(r, "agora")
}

// Card returns the published agent card.
func (a *App) Card() *a2a.AgentCard { return a.card }

// Manager returns the task manager.
func (a *App) Manager() *server.Manager { return a.manager }

// Router returns the delegation router.
func (a *App) Router() *delegation.Router { return a.router }

// Start listens on server.addr and launches the background loops.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Server.Addr, err)
	}
	a.listener = listener
	a.srv = &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
	a.serveErr = make(chan error, 1)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.serveErr <- err
		}
	}()
	if a.file != nil && a.cfg.Registry.Watch {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			err := discovery.Follow(runCtx, a.file, a.resolver, func(endpoints []discovery.AgentEndpoint) {
				a.registry.SetEntries(discovery.ToEntries(endpoints))
				a.registry.ResolveNames(runCtx)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.WarnContext(runCtx, "runtime.registry.watch.error", slog.String("error", err.Error()))
			}
		}()
	}
	a.sweeper.Start()
	a.started = true

	a.logger.InfoContext(ctx, "runtime.start",
		slog.String("agent", a.cfg.Agent.Name),
		slog.String("kind", a.cfg.Agent.Kind),
		slog.String("addr", listener.Addr().String()),
		slog.String("url", a.card.URL),
	)
	return nil
}

// Addr returns the bound listen address once started.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Stop shuts the server down gracefully and releases every component.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return errNotStarted
	}
	a.started = false

	var errs []error
	if err := a.srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	a.sweeper.Stop()
	a.cancel()
	a.wg.Wait()
	if err := a.close(ctx); err != nil {
		errs = append(errs, err)
	}
	a.logger.InfoContext(ctx, "runtime.stop", slog.String("agent", a.cfg.Agent.Name))
	return errors.Join(errs...)
}

// Run starts the node and blocks until ctx is done or the server fails,
// then shuts down within server.shutdown_timeout.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		_ = a.close(ctx)
		return err
	}
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-a.serveErr:
	}
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return errors.Join(serveErr, a.Stop(shutdownCtx))
}

// close releases MCP servers and flushes telemetry.
func (a *App) close(ctx context.Context) error {
	var errs []error
	for _, client := range a.mcp {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp %s: %w", client.Name(), err))
		}
	}
	a.mcp = nil
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) abort(err error) error {
	_ = a.close(context.Background())
	return err
}

// truncationFor picks the conversation truncation strategy; nil keeps the
// whole history.
func truncationFor(cfg config.MemoryConfig) memory.TruncationStrategy {
	switch {
	case cfg.Strategy == "tokens" && cfg.MaxTokens > 0:
		return memory.NewTokenStrategy(cfg.MaxTokens, true)
	case cfg.Strategy != "tokens" && cfg.Window > 0:
		return memory.NewWindowStrategy(cfg.Window, true)
	}
	return nil
}

// skillsFrom lists the configured skills first; a loaded skill whose id is
// already configured is skipped.
func skillsFrom(cfg []config.SkillConfig, loaded []skills.SkillSpec) []a2a.AgentSkill {
	out := make([]a2a.AgentSkill, 0, len(cfg)+len(loaded))
	seen := make(map[string]bool, len(cfg))
	for _, s := range cfg {
		seen[s.ID] = true
		out = append(out, a2a.AgentSkill{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Tags:        s.Tags,
			Examples:    s.Examples,
		})
	}
	for _, spec := range loaded {
		if !seen[spec.Name] {
			out = append(out, spec.AgentSkill())
		}
	}
	return out
}
