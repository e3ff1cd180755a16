// Package handler provides the HTTP handler layer for the background-task
// connector API. Each handler delegates to the service layer and writes a
// JSON response.
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/taskengine/backgroundtask/errs"
	"github.com/taskengine/backgroundtask/internal/api/service"
	ws "github.com/taskengine/backgroundtask/internal/api/websocket"
	"github.com/taskengine/backgroundtask/task"
)

// Handler groups the service and WebSocket hub dependencies for all HTTP
// handlers. Create one via New and register routes via RegisterRoutes.
type Handler struct {
	svc *service.Service
	hub *ws.Hub
}

// New constructs a Handler with the supplied service and WebSocket hub.
func New(svc *service.Service, hub *ws.Hub) *Handler {
	return &Handler{svc: svc, hub: hub}
}

// RegisterRoutes mounts all API routes onto the supplied Gin engine.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/tasks", h.createTask)
	r.GET("/tasks", h.listTasks)
	r.GET("/tasks/:id", h.getTask)
	r.POST("/tasks/:id/retry", h.retryTask)
	r.POST("/tasks/:id/cancel", h.cancelTask)
	r.DELETE("/tasks/:id", h.removeTask)
	r.GET("/ws/updates", h.serveWS)
}

// createTask handles POST /tasks.
func (h *Handler) createTask(c *gin.Context) {
	var in service.CreateTaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.svc.CreateTask(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// getTask handles GET /tasks/:id.
func (h *Handler) getTask(c *gin.Context) {
	v, err := h.svc.GetTask(c.Request.Context(), taskID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if v == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, v)
}

// retryTask handles POST /tasks/:id/retry.
func (h *Handler) retryTask(c *gin.Context) {
	if err := h.svc.RetryTask(c.Request.Context(), taskID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// cancelTask handles POST /tasks/:id/cancel.
func (h *Handler) cancelTask(c *gin.Context) {
	if err := h.svc.CancelTask(c.Request.Context(), taskID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// removeTask handles DELETE /tasks/:id.
func (h *Handler) removeTask(c *gin.Context) {
	if err := h.svc.RemoveTask(c.Request.Context(), taskID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listTasks handles GET /tasks with optional ?type=&status=&sort=&dir=&
// cursor=&pageSize= filters.
func (h *Handler) listTasks(c *gin.Context) {
	var statuses []task.Status
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, task.Status(s))
		}
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "0"))

	result, err := h.svc.ListTasks(c.Request.Context(), service.ListTasksInput{
		Type:          c.Query("type"),
		Statuses:      statuses,
		SortProperty:  c.Query("sort"),
		SortDirection: c.Query("dir"),
		Cursor:        c.Query("cursor"),
		PageSize:      pageSize,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// serveWS upgrades the connection to WebSocket and streams real-time events.
func (h *Handler) serveWS(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

func taskID(c *gin.Context) string {
	return c.Param("id")
}

// writeError maps a structured errs.Kind to its HTTP status; anything else
// is a 500.
func writeError(c *gin.Context, err error) {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errs.KindNamespaceMismatch:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
