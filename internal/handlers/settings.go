package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lifetravel/cartguard/internal/services"
	"github.com/lifetravel/cartguard/pkg/response"
)

type SettingsHandler struct {
	configs *services.SystemConfigService
}

func NewSettingsHandler(configs *services.SystemConfigService) *SettingsHandler {
	return &SettingsHandler{configs: configs}
}

func (h *SettingsHandler) GetThresholds(c *gin.Context) {
	response.Success(c, h.configs.GetThresholds())
}

func (h *SettingsHandler) SetThresholds(c *gin.Context) {
	var req services.SecurityThresholds
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.configs.SetThresholds(req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, h.configs.GetThresholds())
}

type recoveryTemplateResponse struct {
	Subject  string `json:"subject"`
	Template string `json:"template"`
}

func (h *SettingsHandler) GetRecoveryTemplate(c *gin.Context) {
	response.Success(c, recoveryTemplateResponse{
		Subject:  h.configs.GetString("recovery_email_subject", ""),
		Template: h.configs.GetString("recovery_email_template", ""),
	})
}

type recoveryTemplateRequest struct {
	Subject  string `json:"subject"`
	Template string `json:"template"`
}

func (h *SettingsHandler) SetRecoveryTemplate(c *gin.Context) {
	var req recoveryTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.Template) == "" {
		response.BadRequest(c, "template cannot be empty")
		return
	}
	if req.Subject != "" {
		if err := h.configs.Set("recovery_email_subject", req.Subject); err != nil {
			response.Error(c, err)
			return
		}
	}
	if err := h.configs.Set("recovery_email_template", req.Template); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *SettingsHandler) GetEmailConfig(c *gin.Context) {
	configs, err := h.configs.ListGroup("email")
	if err != nil {
		response.Error(c, err)
		return
	}
	result := make(map[string]string, len(configs))
	for _, cfg := range configs {
		if cfg.Key == "email_password" && cfg.Value != "" {
			result[cfg.Key] = "********"
			continue
		}
		result[cfg.Key] = cfg.Value
	}
	response.Success(c, result)
}

type emailConfigRequest struct {
	Enabled  *bool   `json:"email_enabled"`
	Host     *string `json:"email_host"`
	Port     *int    `json:"email_port"`
	Username *string `json:"email_username"`
	Password *string `json:"email_password"`
	From     *string `json:"email_from"`
	UseTLS   *bool   `json:"email_use_tls"`
}

func (h *SettingsHandler) SetEmailConfig(c *gin.Context) {
	var req emailConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	pairs := map[string]string{}
	if req.Enabled != nil {
		pairs["email_enabled"] = strconv.FormatBool(*req.Enabled)
	}
	if req.Host != nil {
		pairs["email_host"] = *req.Host
	}
	if req.Port != nil {
		pairs["email_port"] = strconv.Itoa(*req.Port)
	}
	if req.Username != nil {
		pairs["email_username"] = *req.Username
	}
	if req.From != nil {
		pairs["email_from"] = *req.From
	}
	if req.UseTLS != nil {
		pairs["email_use_tls"] = strconv.FormatBool(*req.UseTLS)
	}
	// A masked password echoed back from the form means "keep current".
	if req.Password != nil && *req.Password != "" && *req.Password != "********" {
		pairs["email_password"] = *req.Password
	}

	for key, v := range pairs {
		if err := h.configs.Set(key, v); err != nil {
			response.Error(c, err)
			return
		}
	}
	response.Success(c, nil)
}
