package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/justapithecus/glean/pipeline"
)

// JobRequest is the body of POST /v1/jobs.
type JobRequest struct {
	Message string `json:"message" binding:"required"`
}

// processJob runs the pipeline synchronously. Done is 200, a malformed
// message is 422 and any retryable abort is 503.
func (s *Server) processJob(c *gin.Context) {
	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"message\": \"...\"}"})
		return
	}

	res, err := s.deps.Processor.Process(c.Request.Context(), req.Message)
	if err != nil {
		_ = c.Error(err)
		status := http.StatusServiceUnavailable
		if errors.Is(err, pipeline.ErrParse) {
			status = http.StatusUnprocessableEntity
		}
		body := gin.H{
			"error":     err.Error(),
			"retryable": pipeline.Retryable(err),
		}
		if res != nil {
			body["state"] = res.State
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state":       res.State,
		"record":      res.Record,
		"compression": res.Compression,
		"extraction":  res.Extraction,
		"published":   res.Published,
		"duration_ms": res.Duration.Milliseconds(),
	})
}
