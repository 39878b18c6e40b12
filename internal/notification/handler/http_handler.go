// Package handler exposes the in-app notification inbox over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"trialops_backend/internal/notification/inapp"
	"trialops_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *inapp.Service
}

func New(svc *inapp.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	rg := api.Group("/notifications")
	rg.GET("", h.List)
	rg.GET("/unread", h.CountUnread)
	rg.PATCH("/:id/read", h.MarkRead)
	rg.PATCH("/read-all", h.MarkAllRead)
}

func (h *Handler) List(c *gin.Context) {
	audience, ok := requireAudience(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	items, total, err := h.svc.List(c.Request.Context(), audience, page, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{
		"items": items,
		"total": total,
		"page":  page,
	})
}

func (h *Handler) CountUnread(c *gin.Context) {
	audience, ok := requireAudience(c)
	if !ok {
		return
	}

	count, err := h.svc.CountUnread(c.Request.Context(), audience)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"count": count})
}

func (h *Handler) MarkRead(c *gin.Context) {
	audience, ok := requireAudience(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), id, audience); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "ok"})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	audience, ok := requireAudience(c)
	if !ok {
		return
	}

	updated, err := h.svc.MarkAllRead(c.Request.Context(), audience)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "ok", "updated": updated})
}

func requireAudience(c *gin.Context) (inapp.Audience, bool) {
	identity, ok := httpkit.MustGetIdentity(c)
	if !ok {
		return inapp.Audience{}, false
	}
	return inapp.Audience{UserID: identity.UserID, Roles: identity.Roles}, true
}
