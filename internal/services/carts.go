package services

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/lifetravel/cartguard/internal/models"
	"gorm.io/gorm"
)

const cartPageSize = 10

// Sortable columns for the cart grid. Anything else falls back to created_at.
var cartSortColumns = map[string]string{
	"id":           "id",
	"email":        "email",
	"cart_total":   "cart_total",
	"created_at":   "created_at",
	"last_updated": "last_updated",
}

// CartService manages abandoned cart rows and their audit trail.
type CartService struct {
	db      *gorm.DB
	log     *SecurityLogger
	configs *SystemConfigService
}

func NewCartService(db *gorm.DB, log *SecurityLogger) *CartService {
	return &CartService{db: db, log: log, configs: NewSystemConfigService(db)}
}

type CartListRequest struct {
	Page    int    `form:"page"`
	OrderBy string `form:"orderby"`
	Order   string `form:"order"`
	Search  string `form:"search"`
	// Filter: "", "recovered", "pending", "reminded"
	Filter string `form:"filter"`
}

type CartListResponse struct {
	Total    int64                  `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
	OrderBy  string                 `json:"orderby"`
	Order    string                 `json:"order"`
	Items    []models.AbandonedCart `json:"items"`
}

// List returns one page of carts. Sort column and direction are mapped
// through a hardcoded whitelist; unknown input falls back to created_at DESC.
func (s *CartService) List(req *CartListRequest) (*CartListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}

	orderBy, ok := cartSortColumns[strings.ToLower(req.OrderBy)]
	if !ok {
		orderBy = "created_at"
	}
	order := strings.ToLower(req.Order)
	if order != "asc" && order != "desc" {
		order = "desc"
	}

	query := s.db.Model(&models.AbandonedCart{})
	if req.Search != "" {
		query = query.Where("email LIKE ?", "%"+req.Search+"%")
	}
	switch req.Filter {
	case "recovered":
		query = query.Where("recovered = ?", true)
	case "pending":
		query = query.Where("recovered = ? AND reminder_sent = ?", false, false)
	case "reminded":
		query = query.Where("recovered = ? AND reminder_sent = ?", false, true)
	}

	var total int64
	query.Count(&total)

	var carts []models.AbandonedCart
	err := query.
		Order(orderBy + " " + order).
		Offset((req.Page - 1) * cartPageSize).
		Limit(cartPageSize).
		Find(&carts).Error
	if err != nil {
		return nil, err
	}

	return &CartListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: cartPageSize,
		OrderBy:  orderBy,
		Order:    order,
		Items:    carts,
	}, nil
}

// Get returns one cart by id.
func (s *CartService) Get(cartID uint) (*models.AbandonedCart, error) {
	var cart models.AbandonedCart
	if err := s.db.First(&cart, cartID).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// SyncRequest is an abandoned cart reported by the storefront.
type SyncRequest struct {
	Email        string          `json:"email" binding:"required"`
	CartContents json.RawMessage `json:"cart_contents" binding:"required"`
	CartTotal    float64         `json:"cart_total"`
	Currency     string          `json:"currency"`
}

// Sync upserts a cart keyed on email: the storefront re-reports the same
// abandoned cart whenever its contents change. Each sync is audit-logged,
// feeding the cart manipulation detector.
func (s *CartService) Sync(req *SyncRequest, ip, userAgent string) (*models.AbandonedCart, error) {
	addr, err := mail.ParseAddress(req.Email)
	if err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	email := strings.ToLower(addr.Address)

	var contents models.CartContents
	if err := json.Unmarshal(req.CartContents, &contents); err != nil {
		return nil, fmt.Errorf("invalid cart contents: %w", err)
	}

	currency := req.Currency
	if currency == "" {
		currency = "XAF"
	}

	now := time.Now()

	var cart models.AbandonedCart
	err = s.db.Where("email = ? AND recovered = ?", email, false).First(&cart).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		cart = models.AbandonedCart{
			Email:        email,
			CartContents: string(req.CartContents),
			CartTotal:    req.CartTotal,
			Currency:     currency,
			CreatedAt:    now,
			LastUpdated:  now,
		}
		if err := s.db.Create(&cart).Error; err != nil {
			return nil, err
		}
		s.auditSync(models.EventCartSync, &cart, ip, userAgent)
		s.checkRapidCreation(ip, userAgent)
	case err != nil:
		return nil, err
	default:
		updates := map[string]interface{}{
			"cart_contents": string(req.CartContents),
			"cart_total":    req.CartTotal,
			"currency":      currency,
			"last_updated":  now,
		}
		if err := s.db.Model(&cart).Updates(updates).Error; err != nil {
			return nil, err
		}
		s.auditSync(models.EventCartUpdated, &cart, ip, userAgent)
	}

	return &cart, nil
}

func (s *CartService) auditSync(eventType string, cart *models.AbandonedCart, ip, userAgent string) {
	cartID := cart.ID
	s.log.LogEvent(EventInput{
		EventType: eventType,
		Severity:  models.SeverityInfo,
		CartID:    &cartID,
		IPAddress: ip,
		UserAgent: userAgent,
		EventData: map[string]interface{}{
			"email":      cart.Email,
			"cart_total": cart.CartTotal,
		},
	})
}

// checkRapidCreation flags an IP creating carts faster than the tunable
// hourly limit. Runs after each new cart sync.
func (s *CartService) checkRapidCreation(ip, userAgent string) {
	if ip == "" {
		return
	}
	threshold := s.configs.GetInt("rapid_cart_creation", 10)

	var count int64
	s.db.Model(&models.SecurityEvent{}).
		Where("event_type = ? AND ip_address = ? AND event_time >= ?",
			models.EventCartSync, ip, time.Now().Add(-time.Hour)).
		Count(&count)

	if count >= int64(threshold) {
		s.log.LogEvent(EventInput{
			EventType: "rapid_cart_creation",
			Severity:  models.SeverityWarning,
			IPAddress: ip,
			UserAgent: userAgent,
			EventData: map[string]interface{}{
				"cart_count":   count,
				"window_hours": 1,
				"threshold":    threshold,
			},
		})
	}
}

// Delete removes a cart and audit-logs the removal.
func (s *CartService) Delete(cartID uint, adminID *uint, ip string) error {
	result := s.db.Delete(&models.AbandonedCart{}, cartID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	id := cartID
	s.log.LogEvent(EventInput{
		EventType: models.EventCartDeleted,
		Severity:  models.SeverityNotice,
		CartID:    &id,
		UserID:    adminID,
		IPAddress: ip,
	})
	return nil
}

// MarkRecovered flips the cart to recovered and records the converting order.
func (s *CartService) MarkRecovered(cartID uint, orderID *uint) error {
	updates := map[string]interface{}{
		"recovered":    true,
		"last_updated": time.Now(),
	}
	if orderID != nil {
		updates["order_id"] = *orderID
	}
	result := s.db.Model(&models.AbandonedCart{}).Where("id = ?", cartID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CartStats are the dashboard aggregates for abandoned carts.
type CartStats struct {
	Total          int64   `json:"total"`
	Recovered      int64   `json:"recovered"`
	ReminderSent   int64   `json:"reminder_sent"`
	AbandonedValue float64 `json:"abandoned_value"`
	RecoveredValue float64 `json:"recovered_value"`
}

// Stats computes cart aggregates.
func (s *CartService) Stats() (*CartStats, error) {
	var stats CartStats

	if err := s.db.Model(&models.AbandonedCart{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	s.db.Model(&models.AbandonedCart{}).Where("recovered = ?", true).Count(&stats.Recovered)
	s.db.Model(&models.AbandonedCart{}).Where("reminder_sent = ?", true).Count(&stats.ReminderSent)
	s.db.Model(&models.AbandonedCart{}).Where("recovered = ?", false).
		Select("COALESCE(SUM(cart_total), 0)").Scan(&stats.AbandonedValue)
	s.db.Model(&models.AbandonedCart{}).Where("recovered = ?", true).
		Select("COALESCE(SUM(cart_total), 0)").Scan(&stats.RecoveredValue)

	return &stats, nil
}
