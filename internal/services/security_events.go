package services

import (
	"github.com/lifetravel/cartguard/internal/models"
	"gorm.io/gorm"
)

// SecurityEventService is the read side of the security log.
type SecurityEventService struct {
	db *gorm.DB
}

func NewSecurityEventService(db *gorm.DB) *SecurityEventService {
	return &SecurityEventService{db: db}
}

type SecurityEventListRequest struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Severity  string `form:"severity"`
	EventType string `form:"event_type"`
	IPAddress string `form:"ip_address"`
	CartID    uint   `form:"cart_id"`
	Status    string `form:"status"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

type SecurityEventListResponse struct {
	Total    int64                  `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
	Items    []models.SecurityEvent `json:"items"`
}

func (s *SecurityEventService) List(req *SecurityEventListRequest) (*SecurityEventListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.Model(&models.SecurityEvent{})

	if req.Severity != "" {
		query = query.Where("severity = ?", req.Severity)
	}
	if req.EventType != "" {
		query = query.Where("event_type = ?", req.EventType)
	}
	if req.IPAddress != "" {
		query = query.Where("ip_address = ?", req.IPAddress)
	}
	if req.CartID != 0 {
		query = query.Where("cart_id = ?", req.CartID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.StartDate != "" {
		query = query.Where("event_time >= ?", req.StartDate)
	}
	if req.EndDate != "" {
		query = query.Where("event_time <= ?", req.EndDate+" 23:59:59")
	}

	var total int64
	query.Count(&total)

	var events []models.SecurityEvent
	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("event_time DESC").Find(&events).Error; err != nil {
		return nil, err
	}

	return &SecurityEventListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    events,
	}, nil
}

// GetEventTypes returns the distinct event types present in the log.
func (s *SecurityEventService) GetEventTypes() ([]string, error) {
	var types []string
	err := s.db.Model(&models.SecurityEvent{}).
		Distinct("event_type").
		Order("event_type").
		Pluck("event_type", &types).Error
	if err != nil {
		return nil, err
	}
	return types, nil
}
