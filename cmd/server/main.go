// Command server runs the fleet control plane: the Agent Session Manager,
// Delegation Orchestrator, Semantic Event Bridge, Background Task Engine,
// Tool Endpoint, External Triggers, and Client Streaming Gateway, all
// mounted on one HTTP listener.
//
// # Configuration
//
// Environment variables:
//
//	SERVER_ADDR                  - HTTP listen address (default: ":8080")
//	STORE_BACKEND                - "memory", "sqlite", or "postgres" (default: "memory")
//	SQLITE_PATH                  - sqlite backend file path (default: "fleetctl.db")
//	DATABASE_URL                 - postgres backend DSN (required when STORE_BACKEND=postgres)
//	REDIS_URL                    - Redis address for cross-node coordination (optional)
//	REDIS_PASSWORD               - Redis password (optional)
//	ORPHAN_THRESHOLD_MINUTES     - background task orphan reclaim threshold (default: 5)
//	DRAIN_INTERVAL_SECONDS       - background queue drain poll interval (default: 2)
//	POLL_INTERVAL_SECONDS        - GitHub Events API polling interval (default: 30)
//	SPECIALIST_USER_DIR          - file-user specialist definitions directory (optional)
//	SPECIALIST_BUNDLED_DIR       - file-bundled specialist definitions directory (optional)
//	DEFAULT_CWD                  - default working directory for spawned sessions (default: ".")
//	AGENT_JSONRPC_COMMAND        - command for the subprocess JSON-RPC provider
//	AGENT_STREAMJSON_COMMAND     - command for the subprocess line-delimited-JSON provider
//	GITHUB_WEBHOOK_BASE_PATH     - webhook receiver route (default: "/webhooks/github")
//
// No CLI surface is part of the core; every knob above is environment-driven.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/adapter/inprocess"
	"github.com/fleetctl/core/internal/adapter/jsonrpc"
	"github.com/fleetctl/core/internal/adapter/streamjson"
	"github.com/fleetctl/core/internal/background"
	"github.com/fleetctl/core/internal/bridge"
	dagengine "github.com/fleetctl/core/internal/engine"
	"github.com/fleetctl/core/internal/engine/inmem"
	"github.com/fleetctl/core/internal/orchestrator"
	"github.com/fleetctl/core/internal/session"
	"github.com/fleetctl/core/internal/specialists"
	"github.com/fleetctl/core/internal/store"
	"github.com/fleetctl/core/internal/store/litestore"
	"github.com/fleetctl/core/internal/store/memstore"
	"github.com/fleetctl/core/internal/store/pgstore"
	"github.com/fleetctl/core/internal/streamgw"
	"github.com/fleetctl/core/internal/telemetry"
	"github.com/fleetctl/core/internal/tools"
	"github.com/fleetctl/core/internal/triggers/polling"
	"github.com/fleetctl/core/internal/triggers/webhook"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := envOr("SERVER_ADDR", ":8080")
	logger := telemetry.NewClueLogger()

	st, closeStore, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	var rdb *redis.Client
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisURL, Password: os.Getenv("REDIS_PASSWORD")})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
	}

	defaultCwd := envOr("DEFAULT_CWD", ".")
	b := bridge.New(bridge.ACPNormalizer{}, logger)
	gw := streamgw.New(b, rdb, logger)

	specResolver := specialists.New(st.Specialists(), os.Getenv("SPECIALIST_USER_DIR"), os.Getenv("SPECIALIST_BUNDLED_DIR"))

	jsonrpcCommand := os.Getenv("AGENT_JSONRPC_COMMAND")
	streamjsonCommand := os.Getenv("AGENT_STREAMJSON_COMMAND")
	factory := func(ctx context.Context, provider string, handler adapter.NotificationHandler) (adapter.Adapter, error) {
		switch provider {
		case "jsonrpc":
			if jsonrpcCommand == "" {
				return nil, fmt.Errorf("provider %q requires AGENT_JSONRPC_COMMAND", provider)
			}
			parts := strings.Fields(jsonrpcCommand)
			return jsonrpc.New(parts[0], parts[1:], handler, logger), nil
		case "streamjson":
			if streamjsonCommand == "" {
				return nil, fmt.Errorf("provider %q requires AGENT_STREAMJSON_COMMAND", provider)
			}
			parts := strings.Fields(streamjsonCommand)
			return streamjson.New(parts[0], parts[1:], handler, logger), nil
		case session.WorkspaceProvider:
			return inprocess.New(workspaceEcho, handler), nil
		default:
			return nil, fmt.Errorf("unknown provider %q", provider)
		}
	}

	sessions := session.New(st.ACPSessions(), factory, logger)
	sessions.OnStarted = func(ctx context.Context, sessionID string) {
		gw.Relay(sessionID)
		b.Publish(ctx, sessionID, bridge.Event{Kind: bridge.KindStarted, SessionID: sessionID})
	}

	orch := orchestrator.New(orchestrator.Config{
		Sessions:    sessions,
		Store:       st,
		Bridge:      b,
		Specialists: specResolver,
		Log:         logger,
		DefaultCwd:  defaultCwd,
	})

	toolsEndpoint := tools.New(tools.Config{Store: st, Delegator: orch, Bridge: b, Log: logger})
	orch.SetReportSink(toolsEndpoint)

	orphanThreshold := time.Duration(envIntOr("ORPHAN_THRESHOLD_MINUTES", 5)) * time.Minute
	engine := background.New(background.Config{
		Store:           st,
		Sessions:        sessions,
		Specialists:     specResolver,
		Bridge:          b,
		Redis:           rdb,
		DAG:             dagEngine(),
		Log:             logger,
		OrphanThreshold: orphanThreshold,
		DefaultCwd:      defaultCwd,
	})
	scheduler := background.NewScheduler(engine, logger)
	scheduler.Start()
	defer scheduler.Stop()

	webhookReceiver := webhook.New(webhook.Config{
		Configs:  st.WebhookConfigs(),
		Logs:     st.WebhookTriggerLogs(),
		Engine:   engine,
		Log:      logger,
		BasePath: envOr("GITHUB_WEBHOOK_BASE_PATH", "/webhooks/github"),
	})

	poller := polling.New(polling.Config{
		Configs:  st.WebhookConfigs(),
		Handler:  webhookReceiver,
		Log:      logger,
		Interval: time.Duration(envIntOr("POLL_INTERVAL_SECONDS", 30)) * time.Second,
	})
	go poller.Run(ctx)

	go drainLoop(ctx, st, engine, logger, time.Duration(envIntOr("DRAIN_INTERVAL_SECONDS", 2))*time.Second)

	r := mux.NewRouter()
	webhookReceiver.Register(r)
	gw.Register(r)
	toolsEndpoint.Register(r)

	httpServer := &http.Server{Addr: addr, Handler: r}
	logger.Info(ctx, "fleetctl control plane listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// openStore selects a Persistence Façade backend via STORE_BACKEND.
func openStore(ctx context.Context) (store.Facade, func(), error) {
	switch backend := envOr("STORE_BACKEND", "memory"); backend {
	case "memory":
		st := memstore.New()
		return st, func() { _ = st.Close(ctx) }, nil
	case "sqlite":
		st, err := litestore.Open(ctx, envOr("SQLITE_PATH", "fleetctl.db"))
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close(ctx) }, nil
	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return nil, nil, fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
		st, err := pgstore.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close(ctx) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", backend)
	}
}

// dagEngine always selects the in-memory DAG executor; a durable
// (internal/engine/temporal) deployment swaps this call for
// temporal.New(opts) once client/task-queue configuration is available.
func dagEngine() dagengine.Engine { return inmem.New() }

// drainLoop periodically reserves and runs ready background tasks across
// every known workspace (DrainReady is workspace-scoped, so the loop lists
// workspaces fresh each tick rather than caching the set), and, every tenth
// tick, reclaims orphaned running tasks across all workspaces at once
// (ReclaimOrphans treats an empty workspaceID as "every workspace").
func drainLoop(ctx context.Context, st store.Facade, engine *background.Engine, logger telemetry.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	const reclaimEvery = 10
	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			workspaces, err := st.Workspaces().List(ctx)
			if err != nil {
				logger.Warn(ctx, "drain loop: list workspaces failed", "error", err.Error())
				continue
			}
			for _, ws := range workspaces {
				if err := engine.DrainReady(ctx, ws.ID); err != nil {
					logger.Warn(ctx, "drain loop: drain ready failed", "workspaceId", ws.ID, "error", err.Error())
				}
			}
			if tick%reclaimEvery == 0 {
				if err := engine.ReclaimOrphans(ctx, ""); err != nil {
					logger.Warn(ctx, "drain loop: reclaim orphans failed", "error", err.Error())
				}
			}
		}
	}
}

// workspaceEcho is the PromptFunc backing the in-process "workspace"
// provider: a minimal native fallback, used when no subprocess provider
// command is configured for a session, that emits the session/update
// wire shape ACPNormalizer expects (a message chunk, then completed)
// without actually invoking a model. Real deployments configure
// AGENT_JSONRPC_COMMAND/AGENT_STREAMJSON_COMMAND for specialist sessions;
// this keeps session.WorkspaceProvider exercised without requiring an
// external model SDK the retrieved pack doesn't provide one of.
func workspaceEcho(ctx context.Context, sessionID, cwd, text string, publish func(adapter.Notification)) error {
	emit := func(update map[string]any) {
		params, _ := json.Marshal(map[string]any{"update": update})
		publish(adapter.Notification{Method: "session/update", Params: params})
	}
	emit(map[string]any{"sessionUpdate": "agent_message_chunk", "text": "workspace provider received: " + text})
	emit(map[string]any{"sessionUpdate": "completed", "stopReason": "end_turn"})
	return nil
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
