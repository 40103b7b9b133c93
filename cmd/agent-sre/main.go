// agent-sre is the AI-augmented SRE control plane: receives Prometheus alerts as
// CloudEvents, selects a remediation lambda through the cascading selector,
// optionally gates on human approval, invokes the lambda, and records the
// outcome in multi-tier memory.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/brunovlucena/homelab-sub000/pkg/api"
	"github.com/brunovlucena/homelab-sub000/pkg/approval"
	"github.com/brunovlucena/homelab-sub000/pkg/cleanup"
	"github.com/brunovlucena/homelab-sub000/pkg/config"
	"github.com/brunovlucena/homelab-sub000/pkg/database"
	"github.com/brunovlucena/homelab-sub000/pkg/examples"
	"github.com/brunovlucena/homelab-sub000/pkg/lambda"
	"github.com/brunovlucena/homelab-sub000/pkg/llm"
	"github.com/brunovlucena/homelab-sub000/pkg/memory"
	"github.com/brunovlucena/homelab-sub000/pkg/memory/domain"
	"github.com/brunovlucena/homelab-sub000/pkg/memory/manager"
	"github.com/brunovlucena/homelab-sub000/pkg/memory/memstore"
	"github.com/brunovlucena/homelab-sub000/pkg/memory/redisstore"
	"github.com/brunovlucena/homelab-sub000/pkg/memory/sqlstore"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
	"github.com/brunovlucena/homelab-sub000/pkg/selector"
	"github.com/brunovlucena/homelab-sub000/pkg/slack"
	"github.com/brunovlucena/homelab-sub000/pkg/ticket"
	"github.com/brunovlucena/homelab-sub000/pkg/trm"
	"github.com/brunovlucena/homelab-sub000/pkg/version"
	"github.com/brunovlucena/homelab-sub000/pkg/workflow"
)

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	ctx := context.Background()
	podID := resolvePodID()

	// 1. Configuration and observability.
	cfg, err := config.Initialize(ctx)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(observability.NewLogger(cfg.Server.LogLevel, cfg.Server.LogFormat))

	shutdownTracing := observability.InitTracing(version.AppName, version.Full())
	defer func() {
		observability.LogTelemetryError(shutdownTracing(context.Background()))
	}()

	metrics := observability.NewMetrics(observability.Registry)

	slog.Info("Starting agent-sre",
		"version", version.Full(),
		"pod_id", podID,
		"operation_mode", cfg.Workflow.OperationMode,
		"http_port", cfg.Server.HTTPPort)

	// 2. Memory stores: fast KV, durable SQL, volatile fallback.
	var fast, durable memory.Store
	sweepers := make(map[string]cleanup.Sweeper)
	pingers := make(map[string]api.Pinger)

	if cfg.Memory.FastURL != "" {
		store, err := redisstore.New(cfg.Memory.FastURL)
		if err != nil {
			slog.Error("Failed to configure fast store", "error", err)
			os.Exit(1)
		}
		fast = store
		pingers["fast_store"] = api.PingerFunc(store.Connect)
	}
	if cfg.Memory.DurableURL != "" {
		dbCfg, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		client, err := database.NewClientFromDSN(ctx, cfg.Memory.DurableURL, dbCfg)
		if err != nil {
			slog.Error("Failed to connect to durable store", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := client.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		store := sqlstore.New(client)
		durable = store
		sweepers["durable_store"] = store
		pingers["durable_store"] = api.PingerFunc(func(ctx context.Context) error {
			health, err := client.Health(ctx)
			if err != nil {
				slog.Warn("Durable store health check failed",
					"open_connections", health.OpenConnections,
					"in_use", health.InUse,
					"error", err)
			}
			return err
		})
	}
	if fast == nil && durable == nil {
		slog.Warn("No store configured, using volatile in-memory store")
		store := memstore.New()
		fast = store
		sweepers["memstore"] = store
	}

	mgr, err := manager.New(fast, durable, cfg.Server.AgentID, metrics)
	if err != nil {
		slog.Error("Failed to create memory manager", "error", err)
		os.Exit(1)
	}
	if err := mgr.Connect(ctx); err != nil {
		slog.Error("Failed to connect memory stores", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := mgr.Disconnect(context.Background()); err != nil {
			slog.Error("Error disconnecting memory stores", "error", err)
		}
	}()

	tasks := domain.NewFactory(mgr, cfg.Server.AgentID, "sre", "sre")

	// 3. Remediation examples: JSON file DB + vector store.
	exampleDB, err := examples.NewExampleDB(cfg.Memory.ExampleDBPath)
	if err != nil {
		slog.Error("Failed to open example database", "path", cfg.Memory.ExampleDBPath, "error", err)
		os.Exit(1)
	}
	index := examples.NewIndex(exampleDB, examples.NewVectorStore(nil))

	// 4. Selection pipeline: LLM provider, optional reasoning sidecar.
	var llmClient llm.Client
	if client, err := llm.New(cfg.LLM); err != nil {
		slog.Warn("LLM provider unavailable, selection falls back to earlier phases", "error", err)
	} else {
		llmClient = client
		slog.Info("LLM provider initialized", "provider", client.Provider())
	}

	var reasoner selector.Reasoner
	if trm.Enabled(cfg.LLM) {
		reasoner = trm.NewClient(cfg.LLM, 10*time.Second)
		slog.Info("Recursive reasoning sidecar enabled", "url", cfg.LLM.TRMURL)
	}

	sel := selector.New(llmClient, reasoner, index, metrics)

	// 5. Notifications, approvals, invocation, tickets.
	notifier := slack.NewNotifier(slack.NewClient(cfg.Slack))

	var providers []approval.Provider
	if notifier != nil {
		providers = append(providers, approval.NewSlackProvider(notifier, cfg.Approval.CallbackURL))
	}
	if cfg.Workflow.OperationMode == config.OperationModeSupervised && len(providers) == 0 {
		slog.Warn("Supervised mode with no approval providers configured; every workflow will fail at the approval gate")
	}
	approvals := approval.NewManager(cfg.Approval, mgr, cfg.Server.AgentID, metrics, providers...)
	approvals.Start()
	defer approvals.Stop()

	invoker := lambda.NewInvoker(cfg.Lambda, metrics)

	var filer ticket.Filer = ticket.NopFiler{}
	if cfg.Workflow.TicketURL != "" {
		filer = ticket.NewHTTPFiler(cfg.Workflow.TicketURL, 10*time.Second)
	}

	// 6. Workflow engine and dispatcher.
	engine := workflow.NewEngine(workflow.EngineParams{
		Config:    cfg.Workflow,
		Store:     mgr,
		Selector:  sel,
		Approvals: approvals,
		Invoker:   invoker,
		Outcomes:  index,
		Tickets:   filer,
		Notifier:  notifier,
		Memory:    mgr,
		Tasks:     tasks,
		Metrics:   metrics,
		OwnerPod:  podID,
		Domain:    "sre",
	})
	dispatcher := workflow.NewDispatcher(cfg.Workflow, engine)

	// 7. One-time startup orphan recovery.
	if marked, err := engine.RecoverOrphans(ctx); err != nil {
		slog.Error("Startup orphan recovery failed", "error", err)
	} else if marked > 0 {
		slog.Info("Startup orphan recovery finished", "orphans_marked", marked)
	}

	// 8. Retention sweeps.
	retention := cleanup.NewService(cfg.Memory, sweepers)
	retention.Start(ctx)
	defer retention.Stop()

	// 9. HTTP ingress.
	server := api.NewServer(api.ServerParams{
		Config:     cfg.Server,
		Dispatcher: dispatcher,
		Approvals:  approvals,
		Outcomes:   index,
		Store:      mgr,
		Metrics:    metrics,
		Pingers:    pingers,
	})
	httpServer := server.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("agent-sre started successfully",
		"pod_id", podID,
		"max_concurrent_workflows", cfg.Workflow.MaxConcurrent)

	// 10. Wait for shutdown signal or server error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown: drain workflows, then stop the HTTP server.
	if err := dispatcher.Drain(ctx); err != nil {
		slog.Warn("Dispatcher drain incomplete; remaining workflows will be orphan-recovered", "error", err)
	} else {
		slog.Info("Dispatcher drained")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
