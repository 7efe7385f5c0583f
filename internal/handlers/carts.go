package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lifetravel/cartguard/internal/middleware"
	"github.com/lifetravel/cartguard/internal/services"
	"github.com/lifetravel/cartguard/internal/utils"
	"github.com/lifetravel/cartguard/pkg/response"
)

// Nonce action names for cart admin operations.
const (
	bulkNonceAction = "cart_bulk"
)

func cartNonceAction(verb string, cartID uint) string {
	return fmt.Sprintf("cart_%s_%d", verb, cartID)
}

type CartHandler struct {
	carts    *services.CartService
	recovery *services.RecoveryService
	queue    services.TaskQueue
}

func NewCartHandler(carts *services.CartService, recovery *services.RecoveryService, queue services.TaskQueue) *CartHandler {
	return &CartHandler{carts: carts, recovery: recovery, queue: queue}
}

// cartActionNonces are minted per row so the admin UI can build one-click
// action links the way classic admin grids do.
type cartActionNonces struct {
	View         string `json:"view"`
	SendRecovery string `json:"send_recovery"`
	Delete       string `json:"delete"`
}

// List renders one page of the abandoned cart grid.
func (h *CartHandler) List(c *gin.Context) {
	var req services.CartListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.carts.List(&req)
	if err != nil {
		response.Error(c, err)
		return
	}

	now := time.Now()
	nonces := make(map[uint]cartActionNonces, len(resp.Items))
	for _, cart := range resp.Items {
		nonces[cart.ID] = cartActionNonces{
			View:         utils.CreateNonce(cartNonceAction("view", cart.ID), now),
			SendRecovery: utils.CreateNonce(cartNonceAction("send_recovery", cart.ID), now),
			Delete:       utils.CreateNonce(cartNonceAction("delete", cart.ID), now),
		}
	}

	response.Success(c, gin.H{
		"carts":      resp,
		"nonces":     nonces,
		"bulk_nonce": utils.CreateNonce(bulkNonceAction, now),
	})
}

// checkNonce aborts with 403 when the request nonce does not verify.
// Admin action nonces are not a recoverable error path.
func checkNonce(c *gin.Context, action string) bool {
	nonce := c.Query("nonce")
	if nonce == "" {
		nonce = c.PostForm("nonce")
	}
	if utils.VerifyNonce(nonce, action, time.Now()) == 0 {
		response.Forbidden(c, "security check failed")
		c.Abort()
		return false
	}
	return true
}

func cartIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid cart id")
		return 0, false
	}
	return uint(id), true
}

// Get returns one cart with decoded contents.
func (h *CartHandler) Get(c *gin.Context) {
	cartID, ok := cartIDParam(c)
	if !ok {
		return
	}
	if !checkNonce(c, cartNonceAction("view", cartID)) {
		return
	}

	cart, err := h.carts.Get(cartID)
	if err != nil {
		response.NotFound(c, "cart not found")
		return
	}

	contents, _ := cart.Contents()
	response.Success(c, gin.H{"cart": cart, "contents": contents})
}

// SendRecovery queues a recovery email for one cart.
func (h *CartHandler) SendRecovery(c *gin.Context) {
	cartID, ok := cartIDParam(c)
	if !ok {
		return
	}
	if !checkNonce(c, cartNonceAction("send_recovery", cartID)) {
		return
	}

	adminID := middleware.GetUserID(c)
	task := &services.RecoveryTask{CartID: cartID}
	if adminID > 0 {
		task.RequestedBy = &adminID
	}

	if err := h.queue.Enqueue(task); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"queued": true, "cart_id": cartID})
}

// Delete removes one cart.
func (h *CartHandler) Delete(c *gin.Context) {
	cartID, ok := cartIDParam(c)
	if !ok {
		return
	}
	if !checkNonce(c, cartNonceAction("delete", cartID)) {
		return
	}

	var adminID *uint
	if id := middleware.GetUserID(c); id > 0 {
		adminID = &id
	}

	if err := h.carts.Delete(cartID, adminID, c.ClientIP()); err != nil {
		response.NotFound(c, "cart not found")
		return
	}
	response.Success(c, gin.H{"deleted": true, "cart_id": cartID})
}

type bulkRequest struct {
	Action  string `json:"action" binding:"required"` // send_recovery, delete
	CartIDs []uint `json:"cart_ids" binding:"required"`
	Nonce   string `json:"nonce" binding:"required"`
}

// Bulk applies an action to a set of carts under one bulk nonce.
func (h *CartHandler) Bulk(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if utils.VerifyNonce(req.Nonce, bulkNonceAction, time.Now()) == 0 {
		response.Forbidden(c, "security check failed")
		return
	}

	var adminID *uint
	if id := middleware.GetUserID(c); id > 0 {
		adminID = &id
	}

	processed := 0
	switch req.Action {
	case "send_recovery":
		for _, cartID := range req.CartIDs {
			task := &services.RecoveryTask{CartID: cartID, RequestedBy: adminID}
			if err := h.queue.Enqueue(task); err == nil {
				processed++
			}
		}
	case "delete":
		for _, cartID := range req.CartIDs {
			if err := h.carts.Delete(cartID, adminID, c.ClientIP()); err == nil {
				processed++
			}
		}
	default:
		response.BadRequest(c, "unknown bulk action")
		return
	}

	response.Success(c, gin.H{"action": req.Action, "processed": processed})
}

// Sync receives an abandoned cart reported by the storefront.
func (h *CartHandler) Sync(c *gin.Context) {
	var req services.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cart, err := h.carts.Sync(&req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, gin.H{"cart_id": cart.ID})
}
