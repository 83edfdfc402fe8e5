package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"agentforge/internal/adapter/gateway"
	"agentforge/internal/adapter/llm"
	"agentforge/internal/adapter/store"
	"agentforge/internal/adapter/tool"
	"agentforge/internal/domain"
	"agentforge/internal/infra/config"
	"agentforge/internal/infra/logger"
	"agentforge/internal/infra/tracer"
	"agentforge/internal/usecase"
	"agentforge/internal/usecase/eventbus"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	flags := parseFlags()

	var err error
	switch {
	case flags.Serve:
		err = runServe(flags)
	case flags.List:
		err = runList(flags)
	case flags.Delete != "":
		err = runDelete(flags)
	case flags.Export != "":
		err = runExport(flags)
	case flags.Import != "":
		err = runImport(flags)
	default:
		err = runChat(flags)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`agentforge - self-hosting agent framework

USAGE:
    agentforge [FLAGS] [AGENT]
    agentforge serve [FLAGS]

With no agent name, the last-used agent is loaded (the agent-builder on
first run).

COMMANDS:
    serve       Start the HTTP/WebSocket gateway

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./agentforge.yaml)
    --model NAME       Override the agent's model for this session
    --no-history       Do not load or persist conversation history
    --list             List available agents and exit
    --delete NAME      Delete an agent and exit
    --export NAME      Print an agent's JSON definition and exit
    --import FILE      Import an agent from a JSON file and exit

CONFIGURATION:
    Config file: ./agentforge.yaml
    Environment: AGENTFORGE_* variables override config,
                 OPENROUTER_API_KEY supplies the API key

EXAMPLES:
    agentforge                      # Chat with the last-used agent
    agentforge agent-builder        # Chat with the bootstrap agent
    agentforge serve                # Serve the web gateway on :8000
    agentforge --list               # Show all agents
    agentforge --export my-agent > my-agent.json`)
}

// cliFlags holds parsed command line options.
type cliFlags struct {
	Serve     bool
	Agent     string
	Config    string
	Model     string
	NoHistory bool
	List      bool
	Delete    string
	Export    string
	Import    string
}

func parseFlags() cliFlags {
	var flags cliFlags
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() string {
			if i+1 < len(args) {
				i++
				return args[i]
			}
			return ""
		}
		switch {
		case arg == "serve":
			flags.Serve = true
		case arg == "--list":
			flags.List = true
		case arg == "--no-history":
			flags.NoHistory = true
		case arg == "--config":
			flags.Config = next()
		case strings.HasPrefix(arg, "--config="):
			flags.Config = strings.TrimPrefix(arg, "--config=")
		case arg == "--model":
			flags.Model = next()
		case strings.HasPrefix(arg, "--model="):
			flags.Model = strings.TrimPrefix(arg, "--model=")
		case arg == "--delete":
			flags.Delete = next()
		case strings.HasPrefix(arg, "--delete="):
			flags.Delete = strings.TrimPrefix(arg, "--delete=")
		case arg == "--export":
			flags.Export = next()
		case strings.HasPrefix(arg, "--export="):
			flags.Export = strings.TrimPrefix(arg, "--export=")
		case arg == "--import":
			flags.Import = next()
		case strings.HasPrefix(arg, "--import="):
			flags.Import = strings.TrimPrefix(arg, "--import=")
		case !strings.HasPrefix(arg, "-"):
			flags.Agent = arg
		}
	}
	return flags
}

func configPath(flags cliFlags) string {
	if flags.Config != "" {
		return flags.Config
	}
	if p := os.Getenv("AGENTFORGE_CONFIG"); p != "" {
		return p
	}
	return "agentforge.yaml"
}

// core holds the shared components every run mode needs.
type core struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *store.FileStore
	provider domain.LLMProvider
	counter  domain.TokenCounter
	cleanup  func()
}

func initCore(ctx context.Context, flags cliFlags) (*core, error) {
	cfg, err := config.Load(configPath(flags))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		logCloser()
		return nil, fmt.Errorf("tracer: %w", err)
	}

	st, err := store.New(cfg.Agent.DataDir, log)
	if err != nil {
		tracerShutdown(ctx)
		logCloser()
		return nil, fmt.Errorf("store: %w", err)
	}
	if _, err := st.Bootstrap(); err != nil {
		tracerShutdown(ctx)
		logCloser()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	provider := buildProvider(cfg, log)

	return &core{
		cfg:      cfg,
		log:      log,
		store:    st,
		provider: provider,
		counter:  llm.NewTiktokenCounter(),
		cleanup: func() {
			tracerShutdown(ctx)
			logCloser()
		},
	}, nil
}

func buildProvider(cfg *config.Config, log *slog.Logger) domain.LLMProvider {
	var provider domain.LLMProvider
	switch cfg.LLM.Provider.Name {
	case "openai":
		provider = llm.NewOpenAIProvider(cfg.LLM.Provider, log)
	default: // openrouter
		provider = llm.NewOpenRouterProvider(cfg.LLM.Provider, log)
	}

	if cfg.LLM.CircuitBreaker.Enabled {
		provider = llm.NewCircuitBreakerProvider(provider, llm.CircuitBreakerConfig{
			MaxFailures: cfg.LLM.CircuitBreaker.MaxFailures,
			Timeout:     cfg.LLM.CircuitBreaker.Timeout,
			Interval:    cfg.LLM.CircuitBreaker.Interval,
		}, log)
	}
	return provider
}

// usageSource exposes a session's token usage to the informational tool.
type usageSource struct {
	tracker *usecase.UsageTracker
	model   string
}

func (u *usageSource) Current() domain.Usage { return u.tracker.Total() }
func (u *usageSource) Model() string         { return u.model }

// modelFor resolves the model the agent chats with: CLI override, then the
// agent record, then the configured default.
func modelFor(record *domain.AgentRecord, cfg *config.Config, override string) string {
	if override != "" {
		return override
	}
	if record.Config.Model != "" {
		return record.Config.Model
	}
	if cfg.LLM.Provider.Model != "" {
		return cfg.LLM.Provider.Model
	}
	return domain.DefaultModel
}

// buildAgent assembles the execution loop for one agent record: resolved
// capabilities scope the tool registry, and the record's prompt and config
// drive the context builder.
func buildAgent(c *core, record *domain.AgentRecord, bus domain.EventBus, modelOverride string) (*usecase.Agent, *usecase.UsageTracker, []string, error) {
	model := modelFor(record, c.cfg, modelOverride)

	usage := usecase.NewUsageTracker()
	registry := tool.NewRegistry(c.log)
	inj := tool.Injectables{
		"_store": domain.AgentStore(c.store),
		"_usage": tool.UsageSource(&usageSource{tracker: usage, model: model}),
	}
	if err := registry.RegisterDescriptors(tool.DefaultDescriptors(nil), inj, c.log); err != nil {
		return nil, nil, nil, fmt.Errorf("tools: %w", err)
	}

	resolved := usecase.ResolveCapabilities(record.SystemPrompt, record.Capabilities)
	scoped := usecase.NewScopedToolExecutor(registry, resolved.Tools)

	builder := usecase.NewContextBuilder(resolved.SystemPrompt, model, record.Config.Temperature, c.cfg.Agent.HistoryWindow)
	builder.SetTokenCounter(c.counter)

	agent := usecase.NewAgent(usecase.AgentDeps{
		LLM:            c.provider,
		Tools:          scoped,
		ContextBuilder: builder,
		Logger:         c.log.With("agent", record.Name),
		MaxIterations:  c.cfg.Agent.MaxIterations,
		Bus:            bus,
		SessionLocker:  usecase.NewSessionLocker(),
		Usage:          usage,
	})
	return agent, usage, resolved.Tools, nil
}

func runServe(flags cliFlags) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := initCore(ctx, flags)
	if err != nil {
		return err
	}
	defer c.cleanup()

	factory := func(record *domain.AgentRecord, bus domain.EventBus) (gateway.ChatHandler, []string, error) {
		agent, _, tools, err := buildAgent(c, record, bus, "")
		return agent, tools, err
	}
	newBus := func() domain.EventBus { return eventbus.New(c.log) }

	srv := gateway.NewServer(c.store, factory, newBus, gateway.Config{
		Addr:      c.cfg.Gateway.Addr,
		RateLimit: c.cfg.Gateway.RateLimit,
		RateBurst: c.cfg.Gateway.RateBurst,
	}, c.log)

	return srv.Start(ctx)
}

func runList(flags cliFlags) error {
	ctx := context.Background()
	c, err := initCore(ctx, flags)
	if err != nil {
		return err
	}
	defer c.cleanup()

	names, err := c.store.List()
	if err != nil {
		return err
	}
	last, _ := c.store.LastAgent()

	fmt.Println("Available agents:")
	for _, name := range names {
		marker := "  "
		if name == last {
			marker = "* "
		}
		record, err := c.store.Load(name)
		if err != nil {
			fmt.Printf("%s%s (unreadable: %v)\n", marker, name, err)
			continue
		}
		caps := "[chat only]"
		if len(record.Capabilities) > 0 {
			caps = strings.Join(record.Capabilities, ", ")
		}
		fmt.Printf("%s%s - %s (%s)\n", marker, record.Name, record.Description, caps)
	}
	return nil
}

func runDelete(flags cliFlags) error {
	ctx := context.Background()
	c, err := initCore(ctx, flags)
	if err != nil {
		return err
	}
	defer c.cleanup()

	name := flags.Delete
	if name == domain.BootstrapAgentName {
		return fmt.Errorf("cannot delete the %s", domain.BootstrapAgentName)
	}
	if !c.store.Exists(name) {
		return fmt.Errorf("agent '%s' not found", name)
	}
	if err := c.store.Delete(name); err != nil {
		return err
	}
	fmt.Printf("Deleted agent '%s'\n", name)
	return nil
}

func runExport(flags cliFlags) error {
	ctx := context.Background()
	c, err := initCore(ctx, flags)
	if err != nil {
		return err
	}
	defer c.cleanup()

	record, err := c.store.Load(flags.Export)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runImport(flags cliFlags) error {
	ctx := context.Background()
	c, err := initCore(ctx, flags)
	if err != nil {
		return err
	}
	defer c.cleanup()

	data, err := os.ReadFile(flags.Import)
	if err != nil {
		return err
	}
	var record domain.AgentRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("parse agent definition: %w", err)
	}
	if record.Name == "" {
		return fmt.Errorf("agent definition has no name")
	}
	if err := c.store.Save(&record); err != nil {
		return err
	}
	fmt.Printf("Imported agent '%s'\n", record.Name)
	return nil
}
