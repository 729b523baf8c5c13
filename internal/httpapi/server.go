// Package httpapi exposes the webhook and read surface over HTTP. The
// interesting logic lives in internal/ingest and internal/ledger; handlers
// here only translate between HTTP and the pipeline.
package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/dendrite/internal/config"
	"github.com/roach88/dendrite/internal/ingest"
	"github.com/roach88/dendrite/internal/store"
)

// Server holds the HTTP surface's dependencies.
type Server struct {
	settings config.Settings
	registry *config.Registry
	store    *store.Store
	pipeline *ingest.Pipeline
	now      func() time.Time
}

// NewServer creates the HTTP surface.
func NewServer(settings config.Settings, registry *config.Registry, st *store.Store, pipeline *ingest.Pipeline) *Server {
	return &Server{
		settings: settings,
		registry: registry,
		store:    st,
		pipeline: pipeline,
		now:      time.Now,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	if s.settings.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "app": s.settings.AppName})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	slack := router.Group("/slack")
	slack.POST("/events", s.verifySlackRequest, s.handleSlackEvent)

	read := router.Group("/read")
	{
		read.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "read route online"})
		})
		read.GET("/graph/current", s.handleCurrentTruth)
		read.GET("/graph/changes", s.handleChangesSince)
		read.GET("/commits/:commit_id", s.handleGetCommit)
		read.GET("/projects/:project_id", s.handleGetProject)
		read.GET("/projects/:project_id/checklist", s.handleChecklist)
	}

	return router
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	router := s.Router()
	slog.Info("http server listening", "addr", s.settings.ListenAddr)
	return router.Run(s.settings.ListenAddr)
}

// verifySlackRequest authenticates the webhook before any state can change.
// The raw body is captured here so that both the signature check and the
// handler see identical bytes.
func (s *Server) verifySlackRequest(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	c.Request.Body.Close()

	err = VerifySignature(
		s.settings.SlackSigningSecret,
		c.GetHeader(HeaderSignature),
		c.GetHeader(HeaderTimestamp),
		body,
		s.now(),
	)
	if err != nil {
		slog.Warn("webhook signature rejected", "error", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	c.Set(rawBodyKey, body)
	c.Next()
}

const rawBodyKey = "dendrite_raw_body"

func rawBody(c *gin.Context) []byte {
	if v, ok := c.Get(rawBodyKey); ok {
		if b, ok := v.([]byte); ok {
			return b
		}
	}
	return nil
}
