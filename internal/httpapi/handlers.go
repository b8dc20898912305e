package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/onlysaid/agentd/internal/adminhandler"
	"github.com/onlysaid/agentd/internal/planner"
	"github.com/onlysaid/agentd/internal/socketclient"
)

type createPlanRequest struct {
	RoomID   string `json:"room_id" binding:"required"`
	Query    string `json:"query" binding:"required"`
	Summoner string `json:"summoner"`
	Assigner string `json:"assigner"`
	Assignee string `json:"assignee"`
	Reviewer string `json:"reviewer"`
}

// createPlan handles POST /api/create_plan. Per spec.md §5, planning
// runs in the background so the HTTP response is never blocked on an
// LLM round-trip or a chain of persistence calls.
func (s *Server) createPlan(c *gin.Context) {
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	go func() {
		// The request context dies the instant ServeHTTP returns below;
		// this background flow must outlive it, so strip cancellation
		// rather than inherit it.
		ctx := context.WithoutCancel(c.Copy().Request.Context())
		if err := s.planner.CreatePlan(ctx, planner.Request{
			RoomID:   req.RoomID,
			Query:    req.Query,
			Summoner: req.Summoner,
			Assigner: req.Assigner,
			Assignee: req.Assignee,
			Reviewer: req.Reviewer,
		}); err != nil {
			s.logger.Error("create_plan failed", "room_id", req.RoomID, "error", err)
		}
	}()

	c.String(http.StatusOK, "processed")
}

type askAdminRequest struct {
	RoomID       string `json:"room_id" binding:"required"`
	OwnerID      string `json:"owner_id" binding:"required"`
	OwnerMessage string `json:"owner_message" binding:"required"`
	Trust        bool   `json:"trust"`
}

// askAdmin handles POST /api/ask_admin.
func (s *Server) askAdmin(c *gin.Context) {
	var req askAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	go func() {
		ctx := context.WithoutCancel(c.Copy().Request.Context())
		if err := s.adminHandler.Process(ctx, adminhandler.OwnerMessage{
			RoomID:       req.RoomID,
			OwnerID:      req.OwnerID,
			OwnerMessage: req.OwnerMessage,
			Trust:        req.Trust,
		}); err != nil {
			s.logger.Error("ask_admin failed", "room_id", req.RoomID, "error", err)
		}
	}()

	c.String(http.StatusOK, "processed")
}

type performRequest struct {
	LogID string `json:"log_id" binding:"required"`
}

// perform handles POST /api/perform. The log-id is claimed through the
// local worker pool so a duplicate approval click is a no-op, and
// execution runs in the background bounded by MaxConcurrentExecutions.
func (s *Server) perform(c *gin.Context) {
	var req performRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.workerPool.Submit(c.Request.Context(), req.LogID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

type agentMessageRequest struct {
	Content string `json:"content" binding:"required"`
	RoomID  string `json:"room_id" binding:"required"`
}

// agentMessage handles POST /api/agent_message: a pre-formatted chat
// message (already carrying any log-id marker it needs) posted by an
// MCP tool server acting on the agent's own behalf.
func (s *Server) agentMessage(c *gin.Context) {
	var req agentMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, err := s.persistence.GetUserByID(ctx, s.agentUserID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	msg := socketclient.Message{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().Format(time.RFC3339),
		Sender:    user,
		Content:   req.Content,
		Avatar:    user.Avatar,
		RoomID:    req.RoomID,
		Mentions:  []interface{}{},
	}
	if err := s.socket.SendMessage(ctx, msg); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// getServers handles GET /api/get_servers.
func (s *Server) getServers(c *gin.Context) {
	servers, err := s.host.ListAllServers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, servers)
}

// getTools handles GET /api/get_tools?server=N. With no server query
// param, every known server's function descriptors are returned,
// matching the shape onlysaid_admin.py's tool catalog fetch expects.
func (s *Server) getTools(c *gin.Context) {
	server := c.Query("server")
	ctx := c.Request.Context()

	if server != "" {
		descriptors, err := s.catalog.FunctionDescriptors(ctx, server)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{server: descriptors})
		return
	}

	servers, err := s.host.ListAllServers(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make(map[string]interface{}, len(servers))
	for name := range servers {
		descriptors, err := s.catalog.FunctionDescriptors(ctx, name)
		if err != nil {
			s.logger.Warn("failed to load descriptors for get_tools", "server", name, "error", err)
			continue
		}
		out[name] = descriptors
	}
	c.JSON(http.StatusOK, out)
}
