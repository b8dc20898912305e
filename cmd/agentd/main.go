// Command agentd runs the AI agent orchestrator: it spawns the
// configured MCP tool servers, connects to the persistence service and
// the realtime chat bus, and serves the HTTP front-end that drives
// plan creation, admin directives, and approved-skill execution.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/onlysaid/agentd/internal/adminhandler"
	"github.com/onlysaid/agentd/internal/catalog"
	"github.com/onlysaid/agentd/internal/config"
	"github.com/onlysaid/agentd/internal/engine"
	"github.com/onlysaid/agentd/internal/httpapi"
	"github.com/onlysaid/agentd/internal/llmgateway"
	"github.com/onlysaid/agentd/internal/masking"
	"github.com/onlysaid/agentd/internal/mcphost"
	"github.com/onlysaid/agentd/internal/persistence"
	"github.com/onlysaid/agentd/internal/planner"
	"github.com/onlysaid/agentd/internal/socketclient"
	"github.com/onlysaid/agentd/internal/store"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "."), "path to the directory holding .env")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v (continuing with existing environment)", envPath, err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	manifest, err := config.LoadMCPManifest(cfg.MCPServersManifest)
	if err != nil {
		// Fatal per spec.md §7: an unreadable manifest exits non-zero.
		log.Fatalf("failed to load MCP server manifest: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host := mcphost.New(manifest)
	if err := host.Initialize(ctx); err != nil {
		log.Fatalf("failed to initialize MCP host: %v", err)
	}
	defer func() {
		if err := host.Close(); err != nil {
			slog.Error("error closing MCP host", "error", err)
		}
	}()
	if failed := host.FailedServers(); len(failed) > 0 {
		slog.Warn("some MCP servers failed to start", "failed", failed)
	}

	cat := catalog.New(host)
	gateway := llmgateway.New(cfg.LLM)
	pclient := persistence.New(cfg.ClientURL, cfg.PersistenceCallTimeout, cfg.PersistenceHealthTimeout)

	socket := socketclient.New(cfg.SocketServerURL, cfg.AgentUserID)
	if err := socket.Connect(ctx); err != nil {
		log.Fatalf("failed to connect to realtime bus: %v", err)
	}
	defer func() {
		if err := socket.Disconnect(context.Background()); err != nil {
			slog.Error("error disconnecting socket client", "error", err)
		}
	}()

	masker := masking.New(manifest)

	pl := planner.New(pclient, gateway, cat, socket)
	admin := adminhandler.New(pclient, gateway, cat, socket, cfg.AdminGroupActionsByPlanID)
	exec := engine.New(pclient, gateway, cat, host, socket, masker)

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open local durable store: %v", err)
	}
	defer db.Close()
	pool := store.NewWorkerPool(db, exec, cfg.MaxConcurrentExecutions)

	gin.SetMode(getEnv("GIN_MODE", "release"))
	server := httpapi.New(pl, admin, pool, host, cat, pclient, socket, cfg.AgentUserID)

	slog.Info("agentd starting", "http_addr", cfg.HTTPAddr)
	if err := server.Run(ctx, cfg.HTTPAddr); err != nil {
		log.Fatalf("http server exited with error: %v", err)
	}
	slog.Info("agentd shut down cleanly")
}
