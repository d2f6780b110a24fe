// Command agora is the CLI for the coordination engine: a server mode,
// a protocol-discovery listing, and a one-shot run invocation. Grounded
// on `cmd/hector/main.go`'s kong wiring in the teacher repo.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/agoraflow/agora/config"
	"github.com/agoraflow/agora/event"
	"github.com/agoraflow/agora/httpapi"
	"github.com/agoraflow/agora/llmgateway"
	"github.com/agoraflow/agora/logger"
	"github.com/agoraflow/agora/protocol"
	_ "github.com/agoraflow/agora/protocol/register"
	"github.com/agoraflow/agora/run"
	"github.com/agoraflow/agora/store"
	"github.com/agoraflow/agora/store/postgres"
	"github.com/agoraflow/agora/store/sqlite"
	"github.com/agoraflow/agora/tool"
)

// CLI is the root command set.
type CLI struct {
	ConfigFile string `short:"c" help:"Optional YAML config override." type:"path"`

	Serve     ServeCmd     `cmd:"" help:"Start the HTTP server."`
	Protocols ProtocolsCmd `cmd:"" help:"Protocol discovery."`
	Run       RunCmd       `cmd:"" help:"Run a single protocol to completion, one-shot."`
}

// ProtocolsCmd groups protocol-discovery subcommands.
type ProtocolsCmd struct {
	List ProtocolsListCmd `cmd:"" help:"List every registered protocol key."`
}

// ProtocolsListCmd prints every registered protocol key.
type ProtocolsListCmd struct{}

func (c *ProtocolsListCmd) Run(cli *CLI) error {
	for _, key := range protocol.Keys() {
		fmt.Println(key)
	}
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct{}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	cfg, controller, db, err := bootstrap(ctx, cli.ConfigFile)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	srv := &httpapi.Server{
		Controller: controller,
		Store:      db,
		Config: httpapi.Config{
			AuthSharedSecret: cfg.Server.AuthSharedSecret,
			DevBypassAuth:    cfg.Server.DevBypassAuth,
			CORSOrigin:       cfg.Server.CORSOrigin,
		},
	}

	slog.Info("agora server starting", "addr", cfg.Server.Addr, "protocols", len(protocol.Keys()))
	return serveHTTP(ctx, cfg.Server.Addr, srv.Router())
}

// RunCmd drives one protocol run to completion, printing
// each event as it's emitted, for local testing without the server.
type RunCmd struct {
	ProtocolKey string   `help:"Protocol key to run." required:""`
	Question    string   `help:"The question or scenario to pose." required:""`
	Agents      []string `help:"Agent keys to field (builtin or custom)." required:""`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx := context.Background()
	_, controller, db, err := bootstrap(ctx, cli.ConfigFile)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	req := run.Request{
		RunID: "cli-run", Kind: run.KindProtocol, ProtocolKey: c.ProtocolKey,
		Question: c.Question, AgentKeys: c.Agents,
	}
	return controller.Execute(ctx, req, func(ev event.Event) {
		fmt.Printf("[%s] %+v\n", ev.Kind, ev.Payload)
	})
}

// bootstrap loads config, initializes logging and tracing, and builds
// the run controller shared by serve and run.
func bootstrap(ctx context.Context, yamlPath string) (*config.Config, *run.Controller, *store.DB, error) {
	cfg, err := config.Load(yamlPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger.Init(logger.ParseLevel(cfg.Logging.Level), os.Stderr, cfg.Logging.Format)

	tracer, err := initTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, nil, nil, err
	}

	primary := llmgateway.NewAnthropicProvider(llmgateway.AnthropicConfig{
		APIKey: cfg.Providers.AnthropicAPIKey, DefaultModel: cfg.Providers.AnthropicModel, MaxTokens: cfg.Providers.MaxTokens,
	})
	traced := llmgateway.NewTracedGateway(primary, tracer, cfg.Tracing.LogPath)

	var generic llmgateway.Gateway
	if cfg.Providers.GenericAPIKey != "" {
		generic = llmgateway.NewOpenAIProvider(llmgateway.OpenAIConfig{
			APIKey: cfg.Providers.GenericAPIKey, BaseURL: cfg.Providers.GenericURL, DefaultModel: cfg.Providers.GenericModel,
		})
	}

	tools := tool.NewRegistry(tool.BuiltinSpecs()...)
	router := llmgateway.NewRouter(traced, generic, tools.Run)

	db, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, nil, err
	}

	controller := &run.Controller{
		Gateway: router, Tools: tools, Store: db, ThinkingModel: "claude-opus-4-6",
		OrchestrationModel: cfg.Providers.AnthropicModel, ThinkingBudget: 2048, ParallelConcurrency: 8,
	}

	return cfg, controller, db, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (*store.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(ctx, postgres.Config{DSN: cfg.PostgresDSN, MaxOpenConns: cfg.MaxOpenConns, MaxIdleConns: cfg.MaxIdleConns})
	default:
		return sqlite.Open(ctx, cfg.SQLitePath)
	}
}

func initTracer(ctx context.Context, cfg config.TracingConfig) (trace.Tracer, error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider().Tracer("agora"), nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("agora: otlp exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName("agora")))
	if err != nil {
		return nil, fmt.Errorf("agora: otel resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp.Tracer("agora"), nil
}

// serveHTTP runs the HTTP server until ctx is cancelled, then shuts it
// down gracefully.
func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agora"),
		kong.Description("Agora - a multi-agent coordination engine"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
