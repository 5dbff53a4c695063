// Package webhook exposes the HTTP receiver that agents deliver push
// notifications to. It is transport only; correlation, authentication and
// task updates live in the notify manager.
package webhook

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentlink-protocol/agentlink/internal/metrics"
	"github.com/agentlink-protocol/agentlink/internal/notify"
)

// maxNotificationBytes caps an inbound notification body.
const maxNotificationBytes = 4 << 20

// Handler handles inbound push notifications from agents.
type Handler struct {
	manager *notify.Manager
	logger  *zap.Logger
}

// NewHandler creates a new webhook Handler.
func NewHandler(manager *notify.Manager, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// Register registers the notification route on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/webhook", h.Receive)
}

// Receive handles POST /webhook.
//
// Failed authentication and unknown correlation tokens both get a 200 so a
// probing sender cannot distinguish a bad token from a stale one. Only an
// unparseable body is reported back as a client error.
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	result, err := h.manager.OnNotification(body, c.GetHeader("Authorization"))
	metrics.RecordNotification(string(result))
	metrics.SetPendingTasks(h.manager.PendingCount())

	switch result {
	case notify.ResultBadPayload:
		h.logger.Warn("rejected notification", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification payload"})
	case notify.ResultAuthFailed, notify.ResultUnknownCorrelation, notify.ResultTerminal:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})
	}
}

// NewRouter assembles the gin engine for the webhook receiver: recovery,
// CORS, request metrics, the notification route, health and metrics
// endpoints.
func NewRouter(manager *notify.Manager, logger *zap.Logger) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	router.Use(metrics.GinMiddleware())

	NewHandler(manager, logger).Register(&router.RouterGroup)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "pending_tasks": manager.PendingCount()})
	})
	router.GET("/metrics", metrics.Handler())

	return router
}
