// Package http exposes the lifecycle manager's inbound REST surface.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/webOS-ports/sam/internal/domain/catalog"
	"github.com/webOS-ports/sam/internal/domain/lifecycle"
	"github.com/webOS-ports/sam/internal/infrastructure/logging"
)

// replyTimeout bounds how long a request may sit suspended in the pipeline
// before the client gets a gateway timeout.
const replyTimeout = 30 * time.Second

// Handlers contains all HTTP handlers.
type Handlers struct {
	orchestrator *lifecycle.Orchestrator
	catalog      *catalog.Catalog
	logger       *logging.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(orchestrator *lifecycle.Orchestrator, cat *catalog.Catalog, logger *logging.Logger) *Handlers {
	return &Handlers{
		orchestrator: orchestrator,
		catalog:      cat,
		logger:       logger.Named("api"),
	}
}

// Root handles health check.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "sam",
	})
}

// Health handles detailed health check.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"running":      h.orchestrator.Apps().Size(),
		"launchPoints": h.catalog.Size(),
		"inTransition": h.orchestrator.IsTransition(false),
	})
}

// Launch handles app launch and relaunch requests.
func (h *Handlers) Launch(c *gin.Context) {
	h.dispatch(c, h.orchestrator.Launch)
}

// Pause handles pause requests.
func (h *Handlers) Pause(c *gin.Context) {
	h.dispatch(c, h.orchestrator.Pause)
}

// Close handles close requests.
func (h *Handlers) Close(c *gin.Context) {
	h.dispatch(c, h.orchestrator.Close)
}

// GetAppLifeStatus replies with one instance's current status.
func (h *Handlers) GetAppLifeStatus(c *gin.Context) {
	req := lifecycle.Request{
		AppID:         c.Query("appId"),
		LaunchPointID: c.Query("launchPointId"),
		InstanceID:    c.Query("instanceId"),
		DisplayID:     -1,
	}
	h.dispatchRequest(c, req, h.orchestrator.GetAppLifeStatus)
}

// Running lists all live instances.
func (h *Handlers) Running(c *gin.Context) {
	devmodeOnly := c.Query("devmode") == "true"
	c.JSON(http.StatusOK, gin.H{
		"returnValue": true,
		"running":     h.orchestrator.Running(devmodeOnly),
	})
}

// ListLaunchPoints lists the catalog.
func (h *Handlers) ListLaunchPoints(c *gin.Context) {
	points := h.catalog.List()
	out := make([]gin.H, 0, len(points))
	for _, lp := range points {
		out = append(out, gin.H{
			"launchPointId": lp.ID(),
			"appId":         lp.AppID(),
			"title":         lp.Title(),
			"appType":       string(lp.AppDesc().Type),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"returnValue":  true,
		"launchPoints": out,
	})
}

// dispatch binds the request body into a task and runs op, relaying the
// task's reply as the HTTP response.
func (h *Handlers) dispatch(c *gin.Context, op func(*lifecycle.LunaTask)) {
	var req lifecycle.Request
	req.DisplayID = -1
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"returnValue": false,
			"errorCode":   int(lifecycle.ErrCodeInvalidParam),
			"errorText":   err.Error(),
		})
		return
	}
	h.dispatchRequest(c, req, op)
}

func (h *Handlers) dispatchRequest(c *gin.Context, req lifecycle.Request, op func(*lifecycle.LunaTask)) {
	replies := make(chan map[string]any, 1)
	task := lifecycle.NewLunaTask(c.Request.Context(), req, lifecycle.ResponderFunc(func(payload map[string]any) error {
		replies <- payload
		return nil
	}))

	op(task)

	select {
	case payload := <-replies:
		status := http.StatusOK
		if ok, _ := payload["returnValue"].(bool); !ok {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, payload)
	case <-time.After(replyTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"returnValue": false,
			"errorCode":   int(lifecycle.ErrCodeGeneral),
			"errorText":   "request timed out",
		})
	}
}
