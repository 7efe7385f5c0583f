package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/lifetravel/cartguard/internal/services"
	"github.com/lifetravel/cartguard/pkg/response"
)

type SecurityEventHandler struct {
	events  *services.SecurityEventService
	log     *services.SecurityLogger
	configs *services.SystemConfigService
}

func NewSecurityEventHandler(events *services.SecurityEventService, log *services.SecurityLogger, configs *services.SystemConfigService) *SecurityEventHandler {
	return &SecurityEventHandler{events: events, log: log, configs: configs}
}

func (h *SecurityEventHandler) List(c *gin.Context) {
	var req services.SecurityEventListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.events.List(&req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *SecurityEventHandler) GetEventTypes(c *gin.Context) {
	types, err := h.events.GetEventTypes()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"event_types": types})
}

func (h *SecurityEventHandler) GetRetention(c *gin.Context) {
	response.Success(c, gin.H{"retention_days": h.configs.GetRetentionDays()})
}

type retentionRequest struct {
	RetentionDays int `json:"retention_days" binding:"required,min=1,max=3650"`
}

func (h *SecurityEventHandler) SetRetention(c *gin.Context) {
	var req retentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "retention_days must be between 1 and 3650")
		return
	}
	if err := h.configs.SetRetentionDays(req.RetentionDays); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"retention_days": req.RetentionDays})
}

// Cleanup triggers a retention purge immediately.
func (h *SecurityEventHandler) Cleanup(c *gin.Context) {
	deleted, err := h.log.CleanupOldLogs(h.configs.GetRetentionDays())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": deleted})
}
