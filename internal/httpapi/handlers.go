package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/dendrite/internal/ingest"
)

// handleSlackEvent ingests one webhook delivery. url_verification envelopes
// short-circuit with the echoed challenge; everything else runs the full
// pipeline. Classification outcomes (ignored, duplicate, parse failure,
// unknown project, no-op) are successful no-op responses, not errors.
func (s *Server) handleSlackEvent(c *gin.Context) {
	var env struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	body := rawBody(c)
	if err := json.Unmarshal(body, &env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON envelope"})
		return
	}

	if env.Type == "url_verification" {
		c.JSON(http.StatusOK, gin.H{"challenge": env.Challenge})
		return
	}

	var envelope ingest.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON envelope"})
		return
	}

	result, err := s.pipeline.HandleEvent(c.Request.Context(), envelope)
	if err != nil {
		slog.Error("event pipeline failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "result": result})
}

func (s *Server) handleCurrentTruth(c *gin.Context) {
	ctx := c.Request.Context()

	constraints, err := s.store.ActiveConstraints(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	dependencies, err := s.store.ActiveDependencies(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"constraints":  constraints,
		"dependencies": dependencies,
	})
}

func (s *Server) handleChangesSince(c *gin.Context) {
	raw := c.Query("since")
	since, err := parseSince(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'since' parameter, use ISO-8601 format"})
		return
	}

	commits, err := s.store.CommitsSince(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since.UTC(), "commits": commits})
}

// handleGetCommit returns one ledger entry together with any conflict
// reports it produced.
func (s *Server) handleGetCommit(c *gin.Context) {
	ctx := c.Request.Context()

	commit, err := s.store.GetCommit(ctx, c.Param("commit_id"))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "commit not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	conflicts, err := s.store.ConflictsForCommit(ctx, commit.CommitID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"commit": commit, "conflicts": conflicts})
}

func (s *Server) handleGetProject(c *gin.Context) {
	project, err := s.store.GetProject(c.Request.Context(), c.Param("project_id"))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, project)
}

func (s *Server) handleChecklist(c *gin.Context) {
	checklist, err := s.store.GetChecklist(c.Request.Context(), c.Param("project_id"))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, checklist)
}

// parseSince accepts RFC 3339 with a trailing Z or explicit offset.
func parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("missing since")
	}
	return time.Parse(time.RFC3339, raw)
}
