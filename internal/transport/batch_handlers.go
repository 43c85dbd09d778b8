package transport

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/anime-shed/image-editor-go/internal/errors"
	"github.com/anime-shed/image-editor-go/internal/logger"
	"github.com/anime-shed/image-editor-go/internal/repository"
	"github.com/anime-shed/image-editor-go/pkg/models"
)

// sseKeepAlive is the interval of comment frames on an idle event stream
const sseKeepAlive = 15 * time.Second

func (h *handler) startBatch(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	var req models.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	job, err := h.editor.StartBatch(ctx, req.Operation, req.Params)
	if err != nil {
		respondAppError(c, "failed to start batch", err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// getBatch returns the running job, or the last finished one
func (h *handler) getBatch(c *gin.Context) {
	if job, ok := h.editor.ActiveJob(); ok {
		c.JSON(http.StatusOK, gin.H{"active": true, "job": job})
		return
	}
	if job, ok := h.editor.LastJob(); ok {
		c.JSON(http.StatusOK, gin.H{"active": false, "job": job})
		return
	}
	respondAppError(c, "no batch job", apperrors.NewNotFoundError("No batch job has run yet", nil))
}

func (h *handler) cancelBatch(c *gin.Context) {
	job, err := h.editor.CancelBatch()
	if err != nil {
		respondAppError(c, "failed to cancel batch", err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// batchEvents streams batch progress as server-sent events until the client leaves
func (h *handler) batchEvents(c *gin.Context) {
	if h.obs.Stream == nil {
		respondAppError(c, "event stream unavailable", apperrors.NewNotFoundError("Event stream is not enabled", nil))
		return
	}

	// The server write timeout would otherwise end long-lived streams.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		logger.WithError(err).Debug("Could not clear write deadline for event stream")
	}

	events, unsubscribe := h.obs.Stream.Listen()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	_, _ = c.Writer.Write([]byte(":\n\n"))
	c.Writer.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(event.Type), event)
			return true
		case <-ticker.C:
			_, _ = w.Write([]byte(":\n\n"))
			return true
		}
	})
}

func (h *handler) listJobs(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	limit := repository.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, "invalid limit", err)
			return
		}
		limit = n
	}

	records, err := h.editor.History(ctx, limit)
	if err != nil {
		respondAppError(c, "failed to list jobs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": records})
}

func (h *handler) getJob(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	rec, err := h.editor.Job(ctx, c.Param("id"))
	if err != nil {
		respondAppError(c, "failed to load job", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handler) notifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": h.editor.Notifications()})
}
