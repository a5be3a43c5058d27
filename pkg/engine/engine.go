package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/germanamz/tabletalk/pkg/agent"
	"github.com/germanamz/tabletalk/pkg/chats/message"
	"github.com/germanamz/tabletalk/pkg/database"
	"github.com/germanamz/tabletalk/pkg/memory"
	"github.com/germanamz/tabletalk/pkg/modeladapter"
	"github.com/germanamz/tabletalk/pkg/tools/mcpclient"
	"github.com/germanamz/tabletalk/pkg/tools/mcpserver"
	"github.com/germanamz/tabletalk/pkg/tools/report"
	"github.com/germanamz/tabletalk/pkg/tools/sqltools"
	"github.com/germanamz/tabletalk/pkg/tools/toolbox"
	"github.com/germanamz/tabletalk/pkg/tracing"
)

// Version is reported to MCP peers.
const Version = "0.1.0"

// DefaultInstructions is the system prompt used when the config has none.
const DefaultInstructions = `You are a data analyst with access to a SQL database.
Use list_tables and describe_tables to learn the schema before writing queries.
Use run_query to answer questions with data, and write_report when asked for an HTML report.
Answer concisely and cite the numbers you found.`

// Option customises an Engine.
type Option func(*options)

type options struct {
	completer modeladapter.Completer
	logger    *slog.Logger
}

// WithCompleter replaces the configured provider.
func WithCompleter(c modeladapter.Completer) Option {
	return func(o *options) { o.completer = c }
}

// WithLogger sets the logger used by the engine and the agent.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Engine owns every long-lived resource of the application.
type Engine struct {
	cfg        Config
	log        *slog.Logger
	events     *EventBus
	db         *sqlx.DB
	store      memory.Store
	tools      *toolbox.ToolBox
	completer  modeladapter.Completer
	tracer     *tracing.Provider
	agent      *agent.Agent
	mcpClients []*mcpclient.MCPClient

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates an Engine from the given configuration. It validates the
// config, opens the database and session store, connects MCP servers,
// builds the tool registry and provider, and assembles the agent. On error
// everything opened so far is released.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	e := &Engine{
		cfg:      cfg,
		log:      o.logger,
		events:   NewEventBus(),
		sessions: make(map[string]*Session),
	}

	if err := e.init(ctx, o); err != nil {
		_ = e.Close()
		return nil, err
	}

	return e, nil
}

func (e *Engine) init(ctx context.Context, o options) error {
	var err error

	e.tracer, err = tracing.New(ctx, e.cfg.Tracing)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	if e.cfg.Database.DSN != "" {
		e.db, err = database.Open(ctx, e.cfg.Database)
		if err != nil {
			return fmt.Errorf("engine: %w", err)
		}
	}

	e.store, err = memory.Open(ctx, e.cfg.Memory)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	if err := e.buildTools(ctx); err != nil {
		return err
	}

	e.completer = o.completer
	if e.completer == nil {
		e.completer, err = buildCompleter(e.cfg.Provider)
		if err != nil {
			return err
		}
	}

	if keep := e.cfg.Memory.Summary.Keep; keep > 0 && e.store != nil {
		e.store, err = memory.NewSummaryStore(e.store, e.completer, keep)
		if err != nil {
			return fmt.Errorf("engine: %w", err)
		}
	}

	mws := []agent.Middleware{
		agent.Recovery(),
		tracing.Middleware(e.tracer.Tracer()),
		agent.Logger(e.log, e.agentName()),
	}
	if e.cfg.Agent.Timeout > 0 {
		mws = append(mws, agent.Timeout(e.cfg.Agent.Timeout))
	}

	instructions := e.cfg.Agent.Instructions
	if instructions == "" {
		instructions = DefaultInstructions
	}

	e.agent, err = agent.New(agent.Config{
		Name:          e.agentName(),
		Instructions:  instructions,
		Completer:     e.completer,
		Tools:         tracing.WrapTools(e.tools, e.tracer.Tracer()),
		Memory:        e.store,
		MaxIterations: e.cfg.Agent.MaxIterations,
		Middleware:    mws,
		Logger:        e.log,
		Observer:      e.events,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	return nil
}

// buildTools registers the SQL tools when a database is configured, the
// report tool, and every tool of the configured MCP servers, then applies
// the agent.tools allow-list.
func (e *Engine) buildTools(ctx context.Context) error {
	e.tools = toolbox.New()

	if e.db != nil {
		sql, err := sqltools.New(e.db, sqltools.Options{
			MaxRows:   e.cfg.Tools.MaxRows,
			CacheSize: e.cfg.Tools.SchemaCache,
		})
		if err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		if err := e.tools.Merge(sql.Tools()); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
	} else {
		e.log.Info("no database configured, sql tools disabled")
	}

	if err := e.tools.Merge(report.New(e.cfg.Tools.ReportDir, e.cfg.Tools.ConfineReports).Tools()); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	for _, mc := range e.cfg.Tools.MCPServers {
		var (
			client *mcpclient.MCPClient
			err    error
		)
		if mc.URL != "" {
			client, err = mcpclient.NewSSE(ctx, mc.URL)
		} else {
			client, err = mcpclient.New(ctx, mc.Command, mc.Args...)
		}
		if err != nil {
			return fmt.Errorf("engine: mcp %q: %w", mc.Name, err)
		}
		e.mcpClients = append(e.mcpClients, client)

		tb, err := client.ToolBox(ctx)
		if err != nil {
			return fmt.Errorf("engine: mcp %q: list tools: %w", mc.Name, err)
		}
		if err := e.tools.Merge(tb); err != nil {
			return fmt.Errorf("engine: mcp %q: %w", mc.Name, err)
		}

		e.log.Info("mcp tools imported", "server", mc.Name, "tools", tb.Len())
	}

	if allow := e.cfg.Agent.Tools; len(allow) > 0 {
		for _, name := range allow {
			if _, ok := e.tools.Get(name); !ok {
				return fmt.Errorf("engine: agent.tools: unknown tool %q", name)
			}
		}
		e.tools = e.tools.Filter(allow)
	}

	return nil
}

func (e *Engine) agentName() string {
	if e.cfg.Agent.Name != "" {
		return e.cfg.Agent.Name
	}
	return "tabletalk"
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus { return e.events }

// Tools returns the tool registry.
func (e *Engine) Tools() *toolbox.ToolBox { return e.tools }

// Agent returns the assembled agent.
func (e *Engine) Agent() *agent.Agent { return e.agent }

// Completer returns the model provider, including any rate limiting.
func (e *Engine) Completer() modeladapter.Completer { return e.completer }

// NewSession returns the session with the given ID, creating it if needed.
// An empty ID gets a random one.
func (e *Engine) NewSession(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.sessions[id]; ok {
		return s
	}
	s := newSession(id, e)
	e.sessions[id] = s
	return s
}

// Session returns an existing session by ID.
func (e *Engine) Session(id string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	return s, ok
}

// History returns the persisted messages of a session, unsummarized.
// Without a session store it returns an empty slice.
func (e *Engine) History(ctx context.Context, sessionID string) ([]message.Message, error) {
	if e.store == nil {
		return []message.Message{}, nil
	}

	store := e.store
	if ss, ok := store.(*memory.SummaryStore); ok {
		store = ss.Inner()
	}

	msgs, err := store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("engine: history: %w", err)
	}
	return msgs, nil
}

// Sessions lists the sessions of the session store. It fails with
// memory.ErrListUnsupported when the store cannot enumerate them.
func (e *Engine) Sessions(ctx context.Context) ([]memory.SessionInfo, error) {
	lister, ok := e.store.(memory.Lister)
	if !ok {
		return nil, memory.ErrListUnsupported
	}

	sessions, err := lister.Sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: sessions: %w", err)
	}
	return sessions, nil
}

// ServeMCP serves the tool registry over MCP, reading requests from in and
// writing responses to out until ctx is done.
func (e *Engine) ServeMCP(ctx context.Context, in io.Reader, out io.Writer) error {
	srv := mcpserver.New(e.agentName(), Version)
	srv.Register(e.tools)

	return srv.Serve(ctx, in, out)
}

// Close shuts down MCP clients, the session store, the database and the
// tracer, returning every error encountered.
func (e *Engine) Close() error {
	var errs []error

	for _, c := range e.mcpClients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp client: %w", err))
		}
	}
	e.mcpClients = nil

	if closer, ok := e.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session store: %w", err))
		}
	}

	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}

	if e.tracer != nil {
		if err := e.tracer.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}

	return errors.Join(errs...)
}
