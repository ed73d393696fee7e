// Package ingest implements the authenticated HTTP ingest surface (C1):
// validates and enqueues one normalized event per request, triggering the
// advisory hot path inline for pre_tool events. Grounded on echoryn's
// hivemind router/server composition.
package ingest

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kiosk404/spark/internal/queue"
	"github.com/kiosk404/spark/pkg/logger"
)

const maxBodyBytes = 128 * 1024

// Advisor is the narrow hook the ingest surface calls synchronously for
// every pre_tool event, implemented by internal/advisory.Engine. Kept as an
// interface here so ingest has no import-time dependency on the advisory
// package's internals.
type Advisor interface {
	HandlePreTool(ev queue.Event)
}

// Server wires the gin engine serving /ingest, /health, and /v1/stats.
type Server struct {
	Queue   *queue.Queue
	Auth    *AuthConfig
	Advisor Advisor

	engine *gin.Engine
}

// New builds the gin engine with recovery, auth, and routes installed.
func New(q *queue.Queue, auth *AuthConfig, advisor Advisor) *Server {
	s := &Server{Queue: q, Auth: auth, Advisor: advisor}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(BearerAuth(auth))
	s.installRoutes(r)
	s.engine = r
	return s
}

// Handler returns the http.Handler to bind a listener to.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) installRoutes(r *gin.Engine) {
	r.POST("/ingest", s.handleIngest)
	r.GET("/health", s.handleHealth)
	v1 := r.Group("/v1")
	v1.GET("/stats", s.handleStats)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.Queue.Stats())
}

func (s *Server) handleIngest(c *gin.Context) {
	if s.Queue.Backpressured() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": gin.H{"message": "queue backpressure", "code": "QUEUE_OVERFLOW"}})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "unable to read body", "code": "BAD_BODY"}})
		return
	}
	if len(body) > maxBodyBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": gin.H{"message": "body too large", "code": "TOO_LARGE"}})
		return
	}

	var ev queue.Event
	ev.V = 1
	if err := decodeEvent(body, &ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error(), "code": "BAD_EVENT"}})
		return
	}
	if err := ev.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error(), "code": "VALIDATION"}})
		return
	}

	offset, err := s.Queue.Append(ev)
	if err != nil {
		logger.Error("[Ingest] append failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "append failed", "code": "APPEND_FAILED"}})
		return
	}
	ev.Offset = offset

	if ev.Kind == queue.KindPreTool && s.Advisor != nil {
		s.Advisor.HandlePreTool(ev)
	}

	c.Status(http.StatusOK)
}
