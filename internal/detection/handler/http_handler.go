// Package handler exposes the detection workflow over HTTP.
package handler

import (
	"net/http"

	"trialops_backend/internal/detection/service"
	"trialops_backend/internal/detection/transport"
	"trialops_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves the signals, tasks and analyze endpoints.
type Handler struct {
	svc *service.Service
}

// New creates the detection HTTP handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the detection API on the given group. trigger is
// the rate-limit middleware for the manual analyze endpoint.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup, trigger gin.HandlerFunc) {
	api.POST("/detection/analyze", trigger, h.analyze)

	api.GET("/signals", h.listSignals)
	api.GET("/signals/:id", h.getSignal)
	api.PATCH("/signals/:id/status", h.updateSignalStatus)

	api.GET("/tasks", h.listTasks)
	api.GET("/tasks/:id", h.getTask)
	api.PATCH("/tasks/:id/status", h.updateTaskStatus)
}

func (h *Handler) analyze(c *gin.Context) {
	var req transport.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid analyze request", err.Error())
		return
	}

	summary, err := h.svc.AnalyzeDomainData(c.Request.Context(), req.TrialID, req.Domain, req.Source, req.RecordIDs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, summary)
}

func (h *Handler) listSignals(c *gin.Context) {
	var query transport.ListSignalsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid signal filter", err.Error())
		return
	}

	signals, err := h.svc.ListSignals(c.Request.Context(), query.Filter())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewListResponse(signals))
}

func (h *Handler) getSignal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	signal, err := h.svc.GetSignal(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, signal)
}

func (h *Handler) updateSignalStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.UpdateSignalStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid status update", err.Error())
		return
	}

	signal, err := h.svc.UpdateSignalStatus(c.Request.Context(), id, req.Status)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, signal)
}

func (h *Handler) listTasks(c *gin.Context) {
	var query transport.ListTasksQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid task filter", err.Error())
		return
	}

	tasks, err := h.svc.ListTasks(c.Request.Context(), query.Filter())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewListResponse(tasks))
}

func (h *Handler) getTask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	task, err := h.svc.GetTask(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, task)
}

func (h *Handler) updateTaskStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.UpdateTaskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid status update", err.Error())
		return
	}

	identity, ok := httpkit.MustGetIdentity(c)
	if !ok {
		return
	}
	var userID *uuid.UUID
	if identity.UserID != uuid.Nil {
		userID = &identity.UserID
	}

	task, err := h.svc.UpdateTaskStatus(c.Request.Context(), id, req.Status, userID, req.Note)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, task)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid id", nil)
		return uuid.Nil, false
	}
	return id, true
}
