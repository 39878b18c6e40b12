// Package handler receives ingestion notifications from the external
// record pipeline.
package handler

import (
	"net/http"

	"trialops_backend/internal/events"
	"trialops_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// IngestedRequest announces new or updated records for one batch.
// RecordIDs may be empty, meaning the whole batch should be re-evaluated.
type IngestedRequest struct {
	TrialID   string   `json:"trialId" binding:"required,max=64"`
	Domain    string   `json:"domain" binding:"required,max=16"`
	Source    string   `json:"source" binding:"required,max=64"`
	RecordIDs []string `json:"recordIds" binding:"omitempty,max=500,dive,required,max=128"`
}

// Handler publishes ingestion events onto the bus.
type Handler struct {
	bus events.Bus
}

// New creates the records HTTP handler.
func New(bus events.Bus) *Handler {
	return &Handler{bus: bus}
}

// RegisterRoutes mounts the ingestion trigger.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/records/ingested", h.ingested)
}

// ingested is fire-and-forget: analysis runs asynchronously and the caller
// observes the outcome through the signals and tasks endpoints.
func (h *Handler) ingested(c *gin.Context) {
	var req IngestedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid ingestion notice", err.Error())
		return
	}

	h.bus.Publish(c.Request.Context(), events.RecordsIngested{
		BaseEvent: events.NewBaseEvent(),
		TrialID:   req.TrialID,
		Domain:    req.Domain,
		Source:    req.Source,
		RecordIDs: req.RecordIDs,
	})

	httpkit.Accepted(c, gin.H{
		"trialId": req.TrialID,
		"domain":  req.Domain,
		"source":  req.Source,
	})
}
