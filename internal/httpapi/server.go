// Package httpapi exposes the orchestrator's HTTP surface: the six
// endpoints of spec.md §6 (create_plan, ask_admin, perform,
// agent_message, get_servers, get_tools), backed by gin.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/onlysaid/agentd/internal/adminhandler"
	"github.com/onlysaid/agentd/internal/catalog"
	"github.com/onlysaid/agentd/internal/mcphost"
	"github.com/onlysaid/agentd/internal/persistence"
	"github.com/onlysaid/agentd/internal/planner"
	"github.com/onlysaid/agentd/internal/socketclient"
	"github.com/onlysaid/agentd/internal/store"
)

// Server wires the orchestrator's business components onto gin routes.
type Server struct {
	router *gin.Engine
	http   *http.Server

	planner      *planner.Planner
	adminHandler *adminhandler.Handler
	workerPool   *store.WorkerPool
	host         *mcphost.Host
	catalog      *catalog.Catalog
	persistence  *persistence.Client
	socket       *socketclient.Client
	agentUserID  string

	logger *slog.Logger
}

// New builds a Server wired to its business components.
func New(
	p *planner.Planner,
	a *adminhandler.Handler,
	wp *store.WorkerPool,
	host *mcphost.Host,
	cat *catalog.Catalog,
	pc *persistence.Client,
	sc *socketclient.Client,
	agentUserID string,
) *Server {
	s := &Server{
		planner:      p,
		adminHandler: a,
		workerPool:   wp,
		host:         host,
		catalog:      cat,
		persistence:  pc,
		socket:       sc,
		agentUserID:  agentUserID,
		logger:       slog.Default().With("component", "httpapi"),
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)
	api := s.router.Group("/api")
	api.POST("/create_plan", s.createPlan)
	api.POST("/ask_admin", s.askAdmin)
	api.POST("/perform", s.perform)
	api.POST("/agent_message", s.agentMessage)
	api.GET("/get_servers", s.getServers)
	api.GET("/get_tools", s.getTools)
}

// Run starts listening on addr, blocking until the context is
// cancelled or a fatal listener error occurs.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
