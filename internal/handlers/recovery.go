package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/lifetravel/cartguard/internal/services"
	"github.com/lifetravel/cartguard/pkg/response"
)

// RecoveryHandler serves the public recovery endpoints reached from
// recovery email links.
type RecoveryHandler struct {
	recovery *services.RecoveryService
}

func NewRecoveryHandler(recovery *services.RecoveryService) *RecoveryHandler {
	return &RecoveryHandler{recovery: recovery}
}

// Open validates a recovery link and returns the cart so the storefront can
// rebuild it. Invalid links get a uniform 403 with no detail.
func (h *RecoveryHandler) Open(c *gin.Context) {
	token := c.Query("token")
	nonce := c.Query("nonce")
	if token == "" || nonce == "" {
		response.BadRequest(c, "missing token or nonce")
		return
	}

	cart, err := h.recovery.ValidateRecoveryLink(token, nonce, c.ClientIP(), c.Request.UserAgent(), c.Request.URL.RequestURI())
	if err != nil {
		response.Forbidden(c, err.Error())
		return
	}

	contents, _ := cart.Contents()
	response.Success(c, gin.H{
		"cart_id":    cart.ID,
		"email":      cart.Email,
		"cart_total": cart.CartTotal,
		"currency":   cart.Currency,
		"recovered":  cart.Recovered,
		"contents":   contents,
	})
}

type confirmRequest struct {
	Token   string `json:"token" binding:"required"`
	Nonce   string `json:"nonce" binding:"required"`
	OrderID *uint  `json:"order_id"`
}

// Confirm marks a cart recovered once the storefront completed checkout.
func (h *RecoveryHandler) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cart, err := h.recovery.ConfirmRecovery(req.Token, req.Nonce, req.OrderID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Forbidden(c, err.Error())
		return
	}

	response.Success(c, gin.H{"cart_id": cart.ID, "recovered": cart.Recovered})
}
