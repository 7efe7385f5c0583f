package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/lifetravel/cartguard/internal/services"
	"github.com/lifetravel/cartguard/pkg/response"
)

type DashboardHandler struct {
	dashboard *services.DashboardService
}

func NewDashboardHandler(dashboard *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

func (h *DashboardHandler) Overview(c *gin.Context) {
	overview, err := h.dashboard.GetOverview()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, overview)
}

func (h *DashboardHandler) RiskScore(c *gin.Context) {
	score, err := h.dashboard.RiskScore()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, score)
}
