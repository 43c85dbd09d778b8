package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/image-editor-go/internal/config"
	apperrors "github.com/anime-shed/image-editor-go/internal/errors"
	"github.com/anime-shed/image-editor-go/internal/logger"
	"github.com/anime-shed/image-editor-go/internal/observer"
	"github.com/anime-shed/image-editor-go/internal/service"
	"github.com/anime-shed/image-editor-go/pkg/models"
)

// Version is reported by the health check
const Version = "1.0.0"

// Observers are the event sinks exposed over HTTP. Either may be nil.
type Observers struct {
	Stream  *observer.StreamObserver
	Metrics *observer.MetricsObserver
}

type handler struct {
	editor *service.Editor
	obs    Observers
	cfg    *config.Config
}

func NewHandler(editor *service.Editor, obs Observers, cfg *config.Config) http.Handler {
	r := gin.New()

	h := &handler{editor: editor, obs: obs, cfg: cfg}

	// Add middleware
	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/metrics", h.metrics)
	r.POST("/chat", h.chat)

	r.GET("/gallery", h.listGallery)
	r.POST("/gallery", h.addToGallery)
	r.POST("/gallery/requeue", h.requeue)
	r.DELETE("/gallery/:id", h.removeImage)
	r.GET("/gallery/:id/image", h.imageData)

	r.GET("/selection", h.getSelection)
	r.DELETE("/selection", h.clearSelection)
	r.POST("/selection/:id", h.toggleSelection)

	r.POST("/batch", h.startBatch)
	r.GET("/batch", h.getBatch)
	r.DELETE("/batch", h.cancelBatch)
	r.GET("/batch/events", h.batchEvents)

	r.GET("/jobs", h.listJobs)
	r.GET("/jobs/:id", h.getJob)
	r.GET("/notifications", h.notifications)

	return r
}

func (h *handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
}

func (h *handler) chat(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	resp, err := h.editor.HandleChat(ctx, req)
	if err != nil {
		respondAppError(c, "failed to apply command", err)
		return
	}

	logger.WithFields(logrus.Fields{
		"intent":     resp.Command.Intent,
		"confidence": resp.Command.Confidence,
		"applied":    resp.Job != nil,
	}).Info("Chat message handled")

	c.JSON(http.StatusOK, resp)
}

func (h *handler) metrics(c *gin.Context) {
	out := gin.H{}
	if h.obs.Metrics != nil {
		for k, v := range h.obs.Metrics.GetMetrics() {
			out[k] = v
		}
	}
	if h.obs.Stream != nil {
		out["stream_subscribers"] = h.obs.Stream.Subscribers()
		out["stream_dropped_events"] = h.obs.Stream.Dropped()
	}
	out["gallery_items"] = len(h.editor.Gallery())
	c.JSON(http.StatusOK, out)
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("Request completed")
		case status >= http.StatusBadRequest:
			entry.Warn("Request completed")
		default:
			entry.Info("Request completed")
		}
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondAppError answers with the status and message carried by err
func respondAppError(c *gin.Context, fallback string, err error) {
	respondError(c, determineStatusCode(err), fallback, err)
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	resp := models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Details = appErr.Details
	} else if err != nil {
		resp.Details = err.Error()
	}
	c.AbortWithStatusJSON(code, resp)
}
